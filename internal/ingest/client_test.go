package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeUpdatesServer serves updates 1..total in batches of two, honoring the
// offset parameter the way the real getUpdates endpoint does.
func fakeUpdatesServer(total int64) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		offset, _ := strconv.ParseInt(r.URL.Query().Get("offset"), 10, 64)
		if offset < 1 {
			offset = 1
		}

		var result []map[string]any
		for id := offset; id < offset+2 && id <= total; id++ {
			result = append(result, map[string]any{
				"update_id": id,
				"channel_post": map[string]any{
					"message_id": id,
					"chat":       map[string]any{"id": -100, "title": "Yuk Markazi"},
					"date":       1767000000,
					"text":       fmt.Sprintf("xabar %d", id),
				},
			})
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true, "result": result})
	}))
}

func TestFetchPostsAdvancesOffset(t *testing.T) {
	srv := fakeUpdatesServer(3)
	defer srv.Close()

	c := NewBotAPIClient("test-token")
	c.apiBase = srv.URL

	posts, err := c.FetchPosts(context.Background())
	require.NoError(t, err)
	require.Len(t, posts, 2)
	assert.Equal(t, int64(1), posts[0].MessageID)
	assert.Equal(t, "xabar 1", posts[0].Text)

	posts, err = c.FetchPosts(context.Background())
	require.NoError(t, err)
	require.Len(t, posts, 1)
	assert.Equal(t, int64(3), posts[0].MessageID)

	posts, err = c.FetchPosts(context.Background())
	require.NoError(t, err)
	assert.Empty(t, posts)
	assert.Equal(t, int64(4), c.offset)
}

// Concurrent callers share one offset: the background poller and a manual
// drain may fetch at the same time, and every update must still be delivered
// exactly once.
func TestFetchPostsConcurrentCallersNoDuplicates(t *testing.T) {
	const total = 6
	srv := fakeUpdatesServer(total)
	defer srv.Close()

	c := NewBotAPIClient("test-token")
	c.apiBase = srv.URL

	var wg sync.WaitGroup
	var mu sync.Mutex
	seen := map[int64]int{}
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 4; j++ {
				posts, err := c.FetchPosts(context.Background())
				assert.NoError(t, err)
				mu.Lock()
				for _, p := range posts {
					seen[p.MessageID]++
				}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	require.Len(t, seen, total)
	for id, n := range seen {
		assert.Equalf(t, 1, n, "update %d delivered %d times", id, n)
	}
	assert.Equal(t, int64(total+1), c.offset)
}
