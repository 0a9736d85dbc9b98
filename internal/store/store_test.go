package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"yuk-monitor-go/internal/types"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

// A file-backed database uses the full connection pool, and every connection
// must enforce foreign keys for the ON DELETE CASCADE to hold.
func TestForeignKeysEnforcedOnFileDB(t *testing.T) {
	db, err := New(filepath.Join(t.TempDir(), "yuk_monitor_test.db"))
	require.NoError(t, err)
	defer db.Close()
	ctx := context.Background()

	p := post(-100, 1, "raw text", time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC))
	require.NoError(t, db.SaveParsed(ctx, p, []types.ShipmentDraft{
		{Origin: "Ташкент", Destination: "Москва"},
	}))

	_, err = db.conn.ExecContext(ctx, "DELETE FROM messages")
	require.NoError(t, err)

	var n int
	require.NoError(t, db.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM shipments").Scan(&n))
	assert.Zero(t, n, "cascade should remove orphaned shipments")
}

func post(channelID, messageID int64, text string, date time.Time) types.ChannelPost {
	return types.ChannelPost{
		ChannelID:    channelID,
		ChannelTitle: "Yuk Markazi",
		MessageID:    messageID,
		Text:         text,
		Date:         date,
	}
}

func TestSaveParsedAndList(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	date := time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC)

	drafts := []types.ShipmentDraft{
		{Origin: "Ташкент", Destination: "Москва", CargoType: "мева", Phone: "+998901234567"},
		{Origin: "Ташкент", Destination: "Казань", CargoType: "мева", Phone: "+998901234567"},
	}
	require.NoError(t, db.SaveParsed(ctx, post(-100, 1, "raw text", date), drafts))

	rows, err := db.ListShipments(ctx, ShipmentFilter{})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, int64(-100), rows[0].ChannelID)
	assert.Equal(t, "Yuk Markazi", rows[0].ChannelTitle)
	assert.Equal(t, "Ташкент", rows[0].Origin)
	assert.Equal(t, "raw text", rows[0].Text)
	assert.True(t, rows[0].Date.Equal(date))
}

func TestSaveParsedReplacesShipments(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	date := time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC)

	p := post(-100, 7, "v1", date)
	require.NoError(t, db.SaveParsed(ctx, p, []types.ShipmentDraft{
		{Origin: "A", Destination: "B"},
		{Origin: "A", Destination: "C"},
	}))

	// the message got edited: re-ingest with a different parse
	p.Text = "v2"
	require.NoError(t, db.SaveParsed(ctx, p, []types.ShipmentDraft{
		{Origin: "X", Destination: "Y"},
	}))

	rows, err := db.ListShipments(ctx, ShipmentFilter{})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "X", rows[0].Origin)
	assert.Equal(t, "v2", rows[0].Text)
}

func TestSaveParsedAllNullDraft(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	require.NoError(t, db.SaveParsed(ctx,
		post(-100, 2, "unparseable", time.Now().UTC()),
		[]types.ShipmentDraft{{}}))

	rows, err := db.ListShipments(ctx, ShipmentFilter{})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.True(t, rows[0].ShipmentDraft.Empty())
}

func TestListShipmentsFilters(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	d1 := time.Date(2026, 8, 28, 9, 0, 0, 0, time.UTC)
	d2 := time.Date(2026, 8, 29, 9, 0, 0, 0, time.UTC)

	require.NoError(t, db.SaveParsed(ctx, post(-100, 1, "m1", d1), []types.ShipmentDraft{
		{Origin: "Ташкент", Destination: "Москва", Phone: "+998901234567"},
	}))
	require.NoError(t, db.SaveParsed(ctx, post(-200, 2, "m2", d2), []types.ShipmentDraft{
		{Origin: "Бухара", Destination: "Казань", TruckType: "ТЕНТ"},
	}))

	rows, err := db.ListShipments(ctx, ShipmentFilter{ChannelID: -200})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Бухара", rows[0].Origin)

	rows, err = db.ListShipments(ctx, ShipmentFilter{DateFrom: "2026-08-29"})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Казань", rows[0].Destination)

	rows, err = db.ListShipments(ctx, ShipmentFilter{Phone: "+998901234567"})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Ташкент", rows[0].Origin)

	rows, err = db.ListShipments(ctx, ShipmentFilter{TruckType: "ТЕНТ", DateTo: "2026-08-29"})
	require.NoError(t, err)
	require.Len(t, rows, 1)

	rows, err = db.ListShipments(ctx, ShipmentFilter{Origin: "нет такого"})
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestStats(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	date := time.Date(2026, 8, 29, 9, 0, 0, 0, time.UTC)

	require.NoError(t, db.SaveParsed(ctx, post(-100, 1, "m1", date), []types.ShipmentDraft{
		{Origin: "Ташкент", Destination: "Москва", CargoType: "мева", Phone: "+998901234567"},
		{Origin: "Ташкент", Destination: "Казань", CargoType: "мева", Phone: "+998901234567"},
	}))
	require.NoError(t, db.SaveParsed(ctx, post(-100, 2, "m2", date), []types.ShipmentDraft{
		{Origin: "Ташкент", Destination: "Москва", PaymentType: "НАХТ"},
	}))

	stats, err := db.Stats(ctx, ShipmentFilter{ChannelID: -100}, 10)
	require.NoError(t, err)

	assert.Equal(t, 3, stats.TotalShipments)
	require.NotEmpty(t, stats.Routes)
	assert.Equal(t, "Ташкент → Москва", stats.Routes[0].Key)
	assert.Equal(t, 2, stats.Routes[0].Total)

	require.Len(t, stats.CargoTypes, 1)
	assert.Equal(t, "мева", stats.CargoTypes[0].Key)
	assert.Equal(t, 2, stats.CargoTypes[0].Total)

	require.Len(t, stats.PaymentTypes, 1)
	assert.Equal(t, "НАХТ", stats.PaymentTypes[0].Key)

	require.Len(t, stats.Phones, 1)
	assert.Equal(t, 2, stats.Phones[0].Total)
}
