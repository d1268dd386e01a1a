package models

import "time"

// EventKind classifies a stock transition in the history log.
type EventKind string

const (
	EventInStock    EventKind = "in_stock"
	EventNotInStock EventKind = "not_in_stock"
)

// HistoryEvent is an append-only record of one variant stock
// transition. Rows are never mutated or deleted.
type HistoryEvent struct {
	ID        int64
	ProductID string
	VariantID string
	Kind      EventKind
	Timestamp time.Time
}

// NotificationRule maps a user to a keyword watched in new products.
// The (Username, Keyword) pair is unique; ChatID is only used to
// route the delivery.
type NotificationRule struct {
	Username string
	Keyword  string
	ChatID   int64
}

// AppState is the singleton row tracking scan bookkeeping.
type AppState struct {
	LastScanTimestamp *time.Time
}
