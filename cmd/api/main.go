package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"yuk-monitor-go/internal/export"
	"yuk-monitor-go/internal/extract"
	"yuk-monitor-go/internal/ingest"
	"yuk-monitor-go/internal/logger"
	"yuk-monitor-go/internal/notify"
	"yuk-monitor-go/internal/store"
)

func main() {
	_ = godotenv.Load() // loads .env

	log := logger.New()
	log.WithField("service", "yuk-monitor-go").Info("starting service")

	dbPath := envOr("DB_PATH", "yuk_monitor.db")
	db, err := store.New(dbPath)
	if err != nil {
		log.WithError(err).Fatal("failed to open database")
	}
	defer db.Close()
	log.WithField("db_path", dbPath).Info("database ready")

	// AI extraction is optional; without a credential the dispatcher runs the
	// deterministic chain only.
	var svc extract.TextCompletionService
	if gatewayURL, apiKey := os.Getenv("LLM_GATEWAY_URL"), os.Getenv("LLM_API_KEY"); gatewayURL != "" && apiKey != "" {
		svc = extract.NewChatClient(gatewayURL, apiKey, envOr("LLM_MODEL", "gpt-4o-mini"))
		log.Info("llm extraction enabled")
	} else {
		log.Info("llm gateway not configured, deterministic extraction only")
	}
	dispatcher := extract.NewDefaultDispatcher(svc)

	ctx := context.Background()

	var poller *ingest.Poller
	token := os.Getenv("TELEGRAM_BOT_TOKEN")
	if token != "" {
		source := ingest.NewBotAPIClient(token)
		interval := time.Duration(envInt("POLL_INTERVAL_SEC", 5)) * time.Second
		poller = ingest.NewPoller(source, dispatcher, db, interval)
		go poller.Run(ctx)
	} else {
		log.Warn("TELEGRAM_BOT_TOKEN not set, channel polling disabled")
	}

	var sender *notify.ExportSender
	if token != "" {
		chatID, _ := strconv.ParseInt(os.Getenv("TELEGRAM_ADMIN_CHAT_ID"), 10, 64)
		if chatID != 0 {
			sender = notify.NewExportSender(token, chatID, db)
			go sender.DailyLoop(ctx, envInt("EXPORT_HOUR", 0), envInt("EXPORT_MINUTE", 5))
		} else {
			log.Warn("TELEGRAM_ADMIN_CHAT_ID not set, export bot disabled")
		}
	}

	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "ok")
	})

	// parse only: text in, drafts out, nothing persisted
	mux.HandleFunc("/parse", func(w http.ResponseWriter, r *http.Request) {
		reqLog := logger.New().WithRequest(r).WithField("handler", "parse")
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var req struct {
			Text string `json:"text"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			reqLog.WithError(err).Warn("bad parse request")
			http.Error(w, "invalid JSON body", http.StatusBadRequest)
			return
		}

		start := time.Now()
		drafts := dispatcher.Extract(r.Context(), req.Text)
		reqLog.WithField("drafts", len(drafts)).
			WithField("duration_ms", time.Since(start).Milliseconds()).Info("parsed")

		writeJSON(w, map[string]any{
			"count":     len(drafts),
			"shipments": drafts,
		})
	})

	// drain pending channel posts right now
	mux.HandleFunc("/ingest", func(w http.ResponseWriter, r *http.Request) {
		reqLog := logger.New().WithRequest(r).WithField("handler", "ingest")
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if poller == nil {
			http.Error(w, "channel polling not configured", http.StatusServiceUnavailable)
			return
		}
		stored, err := poller.DrainOnce(r.Context())
		if err != nil {
			reqLog.WithError(err).Warn("ingest failed")
			http.Error(w, "ingest failed", http.StatusBadGateway)
			return
		}
		reqLog.WithField("shipments", stored).Info("manual ingest done")
		writeJSON(w, map[string]any{"stored_shipments": stored})
	})

	mux.HandleFunc("/shipments", func(w http.ResponseWriter, r *http.Request) {
		reqLog := logger.New().WithRequest(r).WithField("handler", "shipments")
		f := filterFromQuery(r)
		if f.Limit == 0 {
			f.Limit = 200
		}
		rows, err := db.ListShipments(r.Context(), f)
		if err != nil {
			reqLog.WithError(err).Error("list shipments failed")
			http.Error(w, "query failed", http.StatusInternalServerError)
			return
		}
		writeJSON(w, map[string]any{
			"count":     len(rows),
			"shipments": rows,
		})
	})

	mux.HandleFunc("/stats", func(w http.ResponseWriter, r *http.Request) {
		reqLog := logger.New().WithRequest(r).WithField("handler", "stats")
		f := filterFromQuery(r)
		limit := 10
		if v, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && v > 0 {
			limit = v
		}
		stats, err := db.Stats(r.Context(), f, limit)
		if err != nil {
			reqLog.WithError(err).Error("stats failed")
			http.Error(w, "query failed", http.StatusInternalServerError)
			return
		}
		writeJSON(w, stats)
	})

	mux.HandleFunc("/export.xlsx", func(w http.ResponseWriter, r *http.Request) {
		reqLog := logger.New().WithRequest(r).WithField("handler", "export")
		f := filterFromQuery(r)
		rows, err := db.ListShipments(r.Context(), f)
		if err != nil {
			reqLog.WithError(err).Error("export query failed")
			http.Error(w, "query failed", http.StatusInternalServerError)
			return
		}
		data, err := export.WorkbookBytes(rows)
		if err != nil {
			reqLog.WithError(err).Error("workbook build failed")
			http.Error(w, "export failed", http.StatusInternalServerError)
			return
		}

		parts := []string{"shipments"}
		if f.ChannelID != 0 {
			parts = append(parts, fmt.Sprintf("channel_%d", f.ChannelID))
		}
		if f.DateFrom != "" {
			parts = append(parts, "from_"+f.DateFrom)
		}
		if f.DateTo != "" {
			parts = append(parts, "to_"+f.DateTo)
		}
		filename := strings.Join(parts, "_") + ".xlsx"

		w.Header().Set("Content-Type",
			"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
		if _, err := w.Write(data); err != nil {
			reqLog.WithError(err).Error("failed to write workbook")
		}
		reqLog.WithField("rows", len(rows)).Info("export downloaded")
	})

	mux.HandleFunc("/notify/export", func(w http.ResponseWriter, r *http.Request) {
		reqLog := logger.New().WithRequest(r).WithField("handler", "notify-export")
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if sender == nil {
			http.Error(w, "export bot not configured", http.StatusServiceUnavailable)
			return
		}
		days := 1
		if v, err := strconv.Atoi(r.URL.Query().Get("days")); err == nil {
			days = v
		}
		if err := sender.SendExport(r.Context(), days); err != nil {
			reqLog.WithError(err).Error("export send failed")
			http.Error(w, "send failed", http.StatusBadGateway)
			return
		}
		reqLog.WithField("days", days).Info("export sent to admin chat")
		writeJSON(w, map[string]any{"sent": true, "days": days})
	})

	addr := fmt.Sprintf(":%s", envOr("PORT", "8080"))
	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	log.WithField("addr", addr).Info("listening")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.WithError(err).Fatal("server terminated")
	}
}

func filterFromQuery(r *http.Request) store.ShipmentFilter {
	q := r.URL.Query()
	var f store.ShipmentFilter
	f.ChannelID, _ = strconv.ParseInt(q.Get("channel_id"), 10, 64)
	f.DateFrom = q.Get("date_from")
	f.DateTo = q.Get("date_to")
	f.Phone = q.Get("phone")
	f.Origin = q.Get("origin")
	f.Destination = q.Get("destination")
	f.CargoType = q.Get("cargo_type")
	f.TruckType = q.Get("truck_type")
	f.PaymentType = q.Get("payment_type")
	f.Limit, _ = strconv.Atoi(q.Get("limit"))
	return f
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func envOr(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func envInt(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
