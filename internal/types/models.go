package types

import "time"

// Field length caps enforced by truncation everywhere a draft is produced.
const (
	MaxOriginLen      = 50
	MaxDestinationLen = 50
	MaxCargoTypeLen   = 50
	MaxTruckTypeLen   = 50
	MaxPaymentTypeLen = 30
)

// ShipmentDraft is one parsed shipment offer. Every field is optional; a draft
// with all fields empty is still a valid result (the message was seen but not
// understood). Drafts carry no identity — the caller keys them by source message.
type ShipmentDraft struct {
	Origin         string `json:"origin,omitempty"`
	Destination    string `json:"destination,omitempty"`
	CargoType      string `json:"cargo_type,omitempty"`
	TruckType      string `json:"truck_type,omitempty"`
	PaymentType    string `json:"payment_type,omitempty"`
	Phone          string `json:"phone,omitempty"`
	Weight         string `json:"weight,omitempty"`
	AdditionalInfo string `json:"additional_info,omitempty"`
}

// Empty reports whether no field was extracted at all.
func (d ShipmentDraft) Empty() bool {
	return d == ShipmentDraft{}
}

// ChannelPost is one raw message pulled from a monitored channel.
type ChannelPost struct {
	ChannelID    int64     `json:"channel_id"`
	ChannelTitle string    `json:"channel_title,omitempty"`
	MessageID    int64     `json:"message_id"`
	SenderID     int64     `json:"sender_id,omitempty"`
	SenderName   string    `json:"sender_name,omitempty"`
	Text         string    `json:"text"`
	Date         time.Time `json:"date"`
}

// StoredShipment is a persisted draft joined with its source message.
type StoredShipment struct {
	ID           int64     `json:"id"`
	ChannelID    int64     `json:"channel_id"`
	ChannelTitle string    `json:"channel_title,omitempty"`
	MessageID    int64     `json:"message_id"`
	Date         time.Time `json:"date"`
	Text         string    `json:"text,omitempty"`
	ShipmentDraft
}

// StatRow is one bucket of a frequency table (routes, cargo types, phones, ...).
type StatRow struct {
	Key   string `json:"key"`
	Total int    `json:"total"`
}
