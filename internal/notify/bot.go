package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"

	"yuk-monitor-go/internal/export"
	"yuk-monitor-go/internal/logger"
	"yuk-monitor-go/internal/store"
)

var httpClient = &http.Client{
	Timeout: 60 * time.Second, // document uploads can be slow
}

// ExportSender builds shipment workbooks and pushes them to the admin chat
// through the Bot API sendDocument call.
type ExportSender struct {
	apiBase     string
	adminChatID int64
	db          *store.DB
	log         *logger.Logger
}

func NewExportSender(token string, adminChatID int64, db *store.DB) *ExportSender {
	return &ExportSender{
		apiBase:     "https://api.telegram.org/bot" + token,
		adminChatID: adminChatID,
		db:          db,
		log:         logger.New(),
	}
}

// SendExport sends the last N days of shipments as an XLSX document.
// days is clamped to 1..60.
func (s *ExportSender) SendExport(ctx context.Context, days int) error {
	if days < 1 {
		days = 1
	}
	if days > 60 {
		days = 60
	}

	today := time.Now()
	dateFrom := today.AddDate(0, 0, -(days - 1)).Format("2006-01-02")
	dateTo := today.Format("2006-01-02")

	rows, err := s.db.ListShipments(ctx, store.ShipmentFilter{DateFrom: dateFrom, DateTo: dateTo})
	if err != nil {
		return fmt.Errorf("load shipments: %w", err)
	}
	data, err := export.WorkbookBytes(rows)
	if err != nil {
		return fmt.Errorf("build workbook: %w", err)
	}

	filename := fmt.Sprintf("shipments_%s_%s.xlsx", dateFrom, dateTo)
	caption := fmt.Sprintf("Yuk monitor export: %s → %s (days=%d)", dateFrom, dateTo, days)

	s.log.WithField("component", "export-sender").
		WithField("shipments", len(rows)).
		WithField("filename", filename).Info("sending export to admin chat")

	return s.sendDocument(ctx, filename, caption, data)
}

func (s *ExportSender) sendDocument(ctx context.Context, filename, caption string, data []byte) error {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	_ = w.WriteField("chat_id", strconv.FormatInt(s.adminChatID, 10))
	_ = w.WriteField("caption", caption)
	part, err := w.CreateFormFile("document", filename)
	if err != nil {
		return err
	}
	if _, err := part.Write(data); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 45 * time.Second

	var lastErr error
	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost,
			s.apiBase+"/sendDocument", bytes.NewReader(body.Bytes()))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", w.FormDataContentType())

		resp, err := httpClient.Do(req)
		if err != nil {
			lastErr = err
			return err
		}
		defer resp.Body.Close()

		respBody, _ := io.ReadAll(resp.Body)
		if resp.StatusCode >= 500 {
			lastErr = fmt.Errorf("server error: %s", respBody)
			return lastErr
		}
		var parsed struct {
			OK          bool   `json:"ok"`
			Description string `json:"description"`
		}
		if err := json.Unmarshal(respBody, &parsed); err != nil {
			lastErr = fmt.Errorf("decode sendDocument response: %w", err)
			return backoff.Permanent(lastErr)
		}
		if !parsed.OK {
			lastErr = fmt.Errorf("sendDocument failed: %s", parsed.Description)
			return backoff.Permanent(lastErr)
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

// DailyLoop sends a one-day export at hour:minute local time until ctx is
// cancelled. The window is the calendar day the send fires on, so the default
// 00:05 schedule covers the day just started. Send failures are logged,
// never fatal.
func (s *ExportSender) DailyLoop(ctx context.Context, hour, minute int) {
	log := s.log.WithField("component", "export-sender")
	for {
		now := time.Now()
		next := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
		if !next.After(now) {
			next = next.AddDate(0, 0, 1)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Until(next)):
		}

		if err := s.SendExport(ctx, 1); err != nil {
			log.WithError(err).Warn("daily export failed")
		}
	}
}
