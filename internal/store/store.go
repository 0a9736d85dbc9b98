package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"yuk-monitor-go/internal/types"
)

// DB wraps the sqlite connection holding channels, raw messages and the
// shipments parsed out of them. One message owns zero or more shipments;
// re-ingesting a message replaces its shipments wholesale.
type DB struct {
	conn *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS channels (
	channel_id INTEGER PRIMARY KEY,
	title      TEXT
);
CREATE TABLE IF NOT EXISTS messages (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	channel_id  INTEGER NOT NULL REFERENCES channels(channel_id),
	message_id  INTEGER NOT NULL,
	sender_id   INTEGER,
	sender_name TEXT,
	text        TEXT,
	date        TEXT,
	UNIQUE(channel_id, message_id)
);
CREATE TABLE IF NOT EXISTS shipments (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	message_ref     INTEGER NOT NULL REFERENCES messages(id) ON DELETE CASCADE,
	origin          TEXT,
	destination     TEXT,
	cargo_type      TEXT,
	truck_type      TEXT,
	payment_type    TEXT,
	phone           TEXT,
	weight          TEXT,
	additional_info TEXT,
	created_at      TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_shipments_message ON shipments(message_ref);
CREATE INDEX IF NOT EXISTS idx_messages_date ON messages(date);
`

// New opens (or creates) the database at path and runs migrations.
// ":memory:" is supported for tests; it pins the pool to one connection so
// every statement sees the same in-memory database.
func New(path string) (*DB, error) {
	// foreign_keys goes in the DSN so every pooled connection enforces it,
	// not just the one a PRAGMA would run on.
	dsn := path
	if !strings.Contains(dsn, "_foreign_keys=") {
		sep := "?"
		if strings.Contains(dsn, "?") {
			sep = "&"
		}
		dsn += sep + "_foreign_keys=on"
	}
	conn, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if path == ":memory:" || strings.Contains(path, "mode=memory") {
		conn.SetMaxOpenConns(1)
		conn.SetMaxIdleConns(1)
	}
	if _, err := conn.Exec(schema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &DB{conn: conn}, nil
}

func (db *DB) Close() error { return db.conn.Close() }

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func fromNull(ns sql.NullString) string {
	if ns.Valid {
		return ns.String
	}
	return ""
}

// SaveParsed upserts the message and replaces its shipments with drafts.
func (db *DB) SaveParsed(ctx context.Context, post types.ChannelPost, drafts []types.ShipmentDraft) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO channels (channel_id, title) VALUES (?, ?)
		ON CONFLICT(channel_id) DO UPDATE SET title = COALESCE(excluded.title, title)`,
		post.ChannelID, nullable(post.ChannelTitle)); err != nil {
		return fmt.Errorf("upsert channel: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO messages (channel_id, message_id, sender_id, sender_name, text, date)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(channel_id, message_id) DO UPDATE SET
			sender_id = excluded.sender_id,
			sender_name = excluded.sender_name,
			text = excluded.text,
			date = excluded.date`,
		post.ChannelID, post.MessageID, post.SenderID, nullable(post.SenderName),
		post.Text, post.Date.UTC().Format(time.RFC3339)); err != nil {
		return fmt.Errorf("upsert message: %w", err)
	}

	var msgRef int64
	if err := tx.QueryRowContext(ctx,
		`SELECT id FROM messages WHERE channel_id = ? AND message_id = ?`,
		post.ChannelID, post.MessageID).Scan(&msgRef); err != nil {
		return fmt.Errorf("resolve message row: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM shipments WHERE message_ref = ?`, msgRef); err != nil {
		return fmt.Errorf("clear shipments: %w", err)
	}

	now := time.Now().UTC().Format(time.RFC3339)
	for _, d := range drafts {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO shipments
				(message_ref, origin, destination, cargo_type, truck_type,
				 payment_type, phone, weight, additional_info, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			msgRef, nullable(d.Origin), nullable(d.Destination), nullable(d.CargoType),
			nullable(d.TruckType), nullable(d.PaymentType), nullable(d.Phone),
			nullable(d.Weight), nullable(d.AdditionalInfo), now); err != nil {
			return fmt.Errorf("insert shipment: %w", err)
		}
	}

	return tx.Commit()
}

// ShipmentFilter narrows ListShipments. Zero values mean "no filter".
type ShipmentFilter struct {
	ChannelID   int64
	DateFrom    string // YYYY-MM-DD
	DateTo      string
	Phone       string
	Origin      string
	Destination string
	CargoType   string
	TruckType   string
	PaymentType string
	Limit       int
}

func (f ShipmentFilter) where() (string, []any) {
	var conds []string
	var args []any
	add := func(cond string, v any) {
		conds = append(conds, cond)
		args = append(args, v)
	}
	if f.ChannelID != 0 {
		add("m.channel_id = ?", f.ChannelID)
	}
	if f.DateFrom != "" {
		add("date(m.date) >= ?", f.DateFrom)
	}
	if f.DateTo != "" {
		add("date(m.date) <= ?", f.DateTo)
	}
	if f.Phone != "" {
		add("s.phone = ?", f.Phone)
	}
	if f.Origin != "" {
		add("s.origin = ?", f.Origin)
	}
	if f.Destination != "" {
		add("s.destination = ?", f.Destination)
	}
	if f.CargoType != "" {
		add("s.cargo_type = ?", f.CargoType)
	}
	if f.TruckType != "" {
		add("s.truck_type = ?", f.TruckType)
	}
	if f.PaymentType != "" {
		add("s.payment_type = ?", f.PaymentType)
	}
	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// ListShipments returns stored shipments joined with their message, newest
// message first.
func (db *DB) ListShipments(ctx context.Context, f ShipmentFilter) ([]types.StoredShipment, error) {
	where, args := f.where()
	q := `
		SELECT s.id, m.channel_id, COALESCE(c.title, ''), m.message_id, m.date,
		       COALESCE(m.text, ''),
		       s.origin, s.destination, s.cargo_type, s.truck_type,
		       s.payment_type, s.phone, s.weight, s.additional_info
		FROM shipments s
		JOIN messages m ON m.id = s.message_ref
		JOIN channels c ON c.channel_id = m.channel_id` + where + `
		ORDER BY m.date DESC, s.id ASC`
	if f.Limit > 0 {
		q += fmt.Sprintf(" LIMIT %d", f.Limit)
	}

	rows, err := db.conn.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list shipments: %w", err)
	}
	defer rows.Close()

	var out []types.StoredShipment
	for rows.Next() {
		var sh types.StoredShipment
		var dateRaw string
		var origin, dest, cargo, truck, payment, phone, weight, info sql.NullString
		if err := rows.Scan(&sh.ID, &sh.ChannelID, &sh.ChannelTitle, &sh.MessageID, &dateRaw,
			&sh.Text, &origin, &dest, &cargo, &truck, &payment, &phone, &weight, &info); err != nil {
			return nil, fmt.Errorf("scan shipment: %w", err)
		}
		sh.Date, _ = time.Parse(time.RFC3339, dateRaw)
		sh.Origin = fromNull(origin)
		sh.Destination = fromNull(dest)
		sh.CargoType = fromNull(cargo)
		sh.TruckType = fromNull(truck)
		sh.PaymentType = fromNull(payment)
		sh.Phone = fromNull(phone)
		sh.Weight = fromNull(weight)
		sh.AdditionalInfo = fromNull(info)
		out = append(out, sh)
	}
	return out, rows.Err()
}

// ChannelStats is the per-channel frequency dashboard the reporting UI shows.
type ChannelStats struct {
	TotalShipments int             `json:"total_shipments"`
	Routes         []types.StatRow `json:"routes"`
	CargoTypes     []types.StatRow `json:"cargo_types"`
	TruckTypes     []types.StatRow `json:"truck_types"`
	PaymentTypes   []types.StatRow `json:"payment_types"`
	Phones         []types.StatRow `json:"phones"`
}

// Stats aggregates shipment frequencies for one channel and date window.
// limit caps each frequency table (the dashboard shows top-N buckets).
func (db *DB) Stats(ctx context.Context, f ShipmentFilter, limit int) (ChannelStats, error) {
	var stats ChannelStats
	where, args := f.where()
	base := ` FROM shipments s JOIN messages m ON m.id = s.message_ref` + where

	if err := db.conn.QueryRowContext(ctx, "SELECT COUNT(*)"+base, args...).
		Scan(&stats.TotalShipments); err != nil {
		return stats, fmt.Errorf("count shipments: %w", err)
	}

	freq := func(expr, notNull string) ([]types.StatRow, error) {
		cond := " WHERE " + notNull
		if where != "" {
			cond = where + " AND " + notNull
		}
		q := "SELECT " + expr + " AS k, COUNT(*) AS total" +
			` FROM shipments s JOIN messages m ON m.id = s.message_ref` + cond +
			" GROUP BY k ORDER BY total DESC, k ASC" +
			fmt.Sprintf(" LIMIT %d", limit)
		rows, err := db.conn.QueryContext(ctx, q, args...)
		if err != nil {
			return nil, err
		}
		defer rows.Close()
		var out []types.StatRow
		for rows.Next() {
			var r types.StatRow
			if err := rows.Scan(&r.Key, &r.Total); err != nil {
				return nil, err
			}
			out = append(out, r)
		}
		return out, rows.Err()
	}

	var err error
	if stats.Routes, err = freq(
		"COALESCE(s.origin,'?') || ' → ' || COALESCE(s.destination,'?')",
		"(s.origin IS NOT NULL OR s.destination IS NOT NULL)"); err != nil {
		return stats, fmt.Errorf("route stats: %w", err)
	}
	if stats.CargoTypes, err = freq("s.cargo_type", "s.cargo_type IS NOT NULL"); err != nil {
		return stats, fmt.Errorf("cargo stats: %w", err)
	}
	if stats.TruckTypes, err = freq("s.truck_type", "s.truck_type IS NOT NULL"); err != nil {
		return stats, fmt.Errorf("truck stats: %w", err)
	}
	if stats.PaymentTypes, err = freq("s.payment_type", "s.payment_type IS NOT NULL"); err != nil {
		return stats, fmt.Errorf("payment stats: %w", err)
	}
	if stats.Phones, err = freq("s.phone", "s.phone IS NOT NULL AND s.phone != ''"); err != nil {
		return stats, fmt.Errorf("phone stats: %w", err)
	}
	return stats, nil
}
