package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"yuk-monitor-go/internal/logger"
	"yuk-monitor-go/internal/types"
)

// MessageSource hands out new channel posts to the poller. The Bot API client
// below is the production implementation; tests use an in-memory fake.
type MessageSource interface {
	FetchPosts(ctx context.Context) ([]types.ChannelPost, error)
}

var httpClient = &http.Client{
	Timeout: 35 * time.Second, // above the long-poll window
}

// BotAPIClient pulls channel posts via the Bot API getUpdates long poll.
// The update offset is guarded by a mutex that also serializes the polls
// themselves; the Bot API rejects overlapping getUpdates calls with a 409.
type BotAPIClient struct {
	apiBase string
	log     *logger.Logger

	mu     sync.Mutex
	offset int64
}

func NewBotAPIClient(token string) *BotAPIClient {
	return &BotAPIClient{
		apiBase: "https://api.telegram.org/bot" + token,
		log:     logger.New(),
	}
}

type apiChat struct {
	ID    int64  `json:"id"`
	Title string `json:"title"`
}

type apiMessage struct {
	MessageID  int64    `json:"message_id"`
	Chat       apiChat  `json:"chat"`
	SenderChat *apiChat `json:"sender_chat"`
	Date       int64    `json:"date"`
	Text       string   `json:"text"`
	Caption    string   `json:"caption"`
}

type apiUpdate struct {
	UpdateID          int64       `json:"update_id"`
	ChannelPost       *apiMessage `json:"channel_post"`
	EditedChannelPost *apiMessage `json:"edited_channel_post"`
}

type updatesResponse struct {
	OK          bool        `json:"ok"`
	Description string      `json:"description"`
	Result      []apiUpdate `json:"result"`
}

// FetchPosts returns the next batch of (possibly edited) channel posts.
// Edits come through like new posts; the store's replace-per-message upsert
// makes re-parsing them idempotent.
func (c *BotAPIClient) FetchPosts(ctx context.Context) ([]types.ChannelPost, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	q := url.Values{}
	q.Set("timeout", "25")
	q.Set("allowed_updates", `["channel_post","edited_channel_post"]`)
	if c.offset > 0 {
		q.Set("offset", strconv.FormatInt(c.offset, 10))
	}

	var resp updatesResponse
	if err := c.getJSON(ctx, c.apiBase+"/getUpdates?"+q.Encode(), &resp); err != nil {
		return nil, err
	}
	if !resp.OK {
		return nil, fmt.Errorf("getUpdates not ok: %s", resp.Description)
	}

	var posts []types.ChannelPost
	for _, u := range resp.Result {
		if u.UpdateID >= c.offset {
			c.offset = u.UpdateID + 1
		}
		msg := u.ChannelPost
		if msg == nil {
			msg = u.EditedChannelPost
		}
		if msg == nil {
			continue
		}
		text := msg.Text
		if text == "" {
			text = msg.Caption
		}
		post := types.ChannelPost{
			ChannelID:    msg.Chat.ID,
			ChannelTitle: msg.Chat.Title,
			MessageID:    msg.MessageID,
			Text:         text,
			Date:         time.Unix(msg.Date, 0).UTC(),
		}
		if msg.SenderChat != nil {
			post.SenderID = msg.SenderChat.ID
			post.SenderName = msg.SenderChat.Title
		}
		posts = append(posts, post)
	}
	if len(posts) > 0 {
		c.log.WithField("component", "bot-api").
			WithField("posts", len(posts)).Debug("fetched channel posts")
	}
	return posts, nil
}

// getJSON is the common HTTP helper: retries transport errors and 5xx with
// exponential backoff, gives up immediately on 4xx.
func (c *BotAPIClient) getJSON(ctx context.Context, rawURL string, target any) error {
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 12 * time.Second

	var lastErr error
	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		resp, err := httpClient.Do(req)
		if err != nil {
			lastErr = err
			return err
		}
		defer resp.Body.Close()

		body, _ := io.ReadAll(resp.Body)
		if resp.StatusCode >= 500 {
			lastErr = fmt.Errorf("server error: %s", body)
			return lastErr
		}
		if resp.StatusCode >= 400 {
			lastErr = fmt.Errorf("client error %d: %s", resp.StatusCode, body)
			return backoff.Permanent(lastErr)
		}
		if err := json.Unmarshal(body, target); err != nil {
			lastErr = fmt.Errorf("json decode error: %w", err)
			return lastErr
		}
		return nil
	}

	if err := backoff.Retry(operation, backoff.WithContext(bo, ctx)); err != nil {
		if lastErr != nil {
			return lastErr
		}
		return err
	}
	return nil
}
