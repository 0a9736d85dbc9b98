package export

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"yuk-monitor-go/internal/types"
)

func TestWorkbookBytes(t *testing.T) {
	rows := []types.StoredShipment{
		{
			ID:           1,
			ChannelID:    -100,
			ChannelTitle: "Yuk Markazi",
			MessageID:    42,
			Date:         time.Date(2026, 8, 29, 10, 30, 0, 0, time.UTC),
			Text:         "raw ad text",
			ShipmentDraft: types.ShipmentDraft{
				Origin:      "Ташкент",
				Destination: "Москва",
				CargoType:   "мева",
				TruckType:   "ТЕНТ",
				PaymentType: "НАХТ",
				Phone:       "+998901234567",
			},
		},
	}

	data, err := WorkbookBytes(rows)
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()

	get := func(cell string) string {
		v, err := f.GetCellValue(sheetName, cell)
		require.NoError(t, err)
		return v
	}

	assert.Equal(t, "channel_id", get("A1"))
	assert.Equal(t, "text", get("K1"))
	assert.Equal(t, "-100", get("A2"))
	assert.Equal(t, "Yuk Markazi", get("B2"))
	assert.Equal(t, "42", get("C2"))
	assert.Equal(t, "Ташкент", get("E2"))
	assert.Equal(t, "Москва", get("F2"))
	assert.Equal(t, "+998901234567", get("J2"))
	assert.Equal(t, "raw ad text", get("K2"))
}

func TestWorkbookBytesEmpty(t *testing.T) {
	data, err := WorkbookBytes(nil)
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()

	v, err := f.GetCellValue(sheetName, "A1")
	require.NoError(t, err)
	assert.Equal(t, "channel_id", v)
}

func TestWorkbookBytesCapsText(t *testing.T) {
	rows := []types.StoredShipment{{
		ChannelID: -1, MessageID: 1,
		Date: time.Now().UTC(),
		Text: strings.Repeat("a", 6000),
	}}

	data, err := WorkbookBytes(rows)
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()

	v, err := f.GetCellValue(sheetName, "K2")
	require.NoError(t, err)
	assert.Len(t, v, 5000)
}
