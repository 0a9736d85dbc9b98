package ingest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"yuk-monitor-go/internal/extract"
	"yuk-monitor-go/internal/store"
	"yuk-monitor-go/internal/types"
)

type fakeSource struct {
	batches [][]types.ChannelPost
}

func (f *fakeSource) FetchPosts(_ context.Context) ([]types.ChannelPost, error) {
	if len(f.batches) == 0 {
		return nil, nil
	}
	batch := f.batches[0]
	f.batches = f.batches[1:]
	return batch, nil
}

func TestDrainOnceParsesAndStores(t *testing.T) {
	db, err := store.New(":memory:")
	require.NoError(t, err)
	defer db.Close()

	src := &fakeSource{batches: [][]types.ChannelPost{{
		{
			ChannelID:    -100,
			ChannelTitle: "Yuk Markazi",
			MessageID:    1,
			Text: "\U0001F1FA\U0001F1FF Ташкент\n\U0001F1F7\U0001F1FA Москва\n" +
				"ЮК мева\n+998901234567",
			Date: time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC),
		},
		{
			ChannelID: -100,
			MessageID: 2,
			Text:      "shunchaki suhbat",
			Date:      time.Date(2026, 8, 29, 11, 0, 0, 0, time.UTC),
		},
	}}}

	p := NewPoller(src, extract.NewDefaultDispatcher(nil), db, time.Second)

	stored, err := p.DrainOnce(context.Background())
	require.NoError(t, err)
	// one parsed shipment plus one all-null placeholder draft
	assert.Equal(t, 2, stored)

	rows, err := db.ListShipments(context.Background(), store.ShipmentFilter{})
	require.NoError(t, err)
	require.Len(t, rows, 2)

	// newest message first
	assert.True(t, rows[0].ShipmentDraft.Empty())
	assert.Equal(t, "Ташкент", rows[1].Origin)
	assert.Equal(t, "Москва", rows[1].Destination)
	assert.Equal(t, "+998901234567", rows[1].Phone)

	// drained: nothing more to fetch
	stored, err = p.DrainOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, stored)
}
