package ingest

import (
	"context"
	"time"

	"yuk-monitor-go/internal/extract"
	"yuk-monitor-go/internal/logger"
	"yuk-monitor-go/internal/store"
)

// Poller drives the pipeline: fetch channel posts, run every text through the
// extraction dispatcher, persist the resulting drafts.
type Poller struct {
	source     MessageSource
	dispatcher *extract.Dispatcher
	db         *store.DB
	interval   time.Duration
	log        *logger.Logger
}

func NewPoller(source MessageSource, dispatcher *extract.Dispatcher, db *store.DB, interval time.Duration) *Poller {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Poller{
		source:     source,
		dispatcher: dispatcher,
		db:         db,
		interval:   interval,
		log:        logger.New(),
	}
}

// Run polls until ctx is cancelled. Fetch and store errors are logged and the
// loop keeps going; a broken poll cycle must not take the service down.
func (p *Poller) Run(ctx context.Context) {
	log := p.log.WithField("component", "poller")
	log.WithField("interval", p.interval.String()).Info("poller started")

	for {
		if _, err := p.DrainOnce(ctx); err != nil && ctx.Err() == nil {
			log.WithError(err).Warn("poll cycle failed")
		}
		select {
		case <-ctx.Done():
			log.Info("poller stopped")
			return
		case <-time.After(p.interval):
		}
	}
}

// DrainOnce fetches one batch of posts and persists their parsed shipments.
// Returns the number of shipments stored.
func (p *Poller) DrainOnce(ctx context.Context) (int, error) {
	posts, err := p.source.FetchPosts(ctx)
	if err != nil {
		return 0, err
	}

	stored := 0
	for _, post := range posts {
		drafts := p.dispatcher.Extract(ctx, post.Text)
		if err := p.db.SaveParsed(ctx, post, drafts); err != nil {
			p.log.WithChannel(post.ChannelID).
				WithField("component", "poller").
				WithField("message_id", post.MessageID).
				WithError(err).Error("failed to save parsed message")
			continue
		}
		stored += len(drafts)
	}
	if len(posts) > 0 {
		p.log.WithField("component", "poller").
			WithField("messages", len(posts)).
			WithField("shipments", stored).Info("batch ingested")
	}
	return stored, nil
}
