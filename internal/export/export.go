package export

import (
	"bytes"
	"fmt"

	"github.com/xuri/excelize/v2"

	"yuk-monitor-go/internal/types"
)

const sheetName = "Shipments"

var headers = []string{
	"channel_id", "channel_title",
	"message_id", "date",
	"origin", "destination",
	"cargo_type", "truck_type",
	"payment_type", "phone",
	"text",
}

// columnWidths mirrors the layout the admin chat is used to.
var columnWidths = map[string]float64{
	"A": 14, "B": 24, "C": 12, "D": 22,
	"E": 18, "F": 18, "G": 22, "H": 12,
	"I": 12, "J": 16, "K": 60,
}

// WorkbookBytes renders shipments into an XLSX workbook. Source text is capped
// at 5000 characters per cell.
func WorkbookBytes(shipments []types.StoredShipment) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}

	row := make([]any, len(headers))
	for i, h := range headers {
		row[i] = h
	}
	if err := f.SetSheetRow(sheetName, "A1", &row); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}

	for i, sh := range shipments {
		text := sh.Text
		if r := []rune(text); len(r) > 5000 {
			text = string(r[:5000])
		}
		row := []any{
			sh.ChannelID,
			sh.ChannelTitle,
			sh.MessageID,
			sh.Date.Format("2006-01-02 15:04:05"),
			sh.Origin,
			sh.Destination,
			sh.CargoType,
			sh.TruckType,
			sh.PaymentType,
			sh.Phone,
			text,
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, fmt.Errorf("cell name: %w", err)
		}
		if err := f.SetSheetRow(sheetName, cell, &row); err != nil {
			return nil, fmt.Errorf("write row %d: %w", i+2, err)
		}
	}

	for col, width := range columnWidths {
		if err := f.SetColWidth(sheetName, col, col, width); err != nil {
			return nil, fmt.Errorf("set column width: %w", err)
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf.Bytes(), nil
}
