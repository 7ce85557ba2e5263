package events

import (
	"encoding/json"
	"time"
)

// Event types emitted by the settlement core.
const (
	TypeOrderCreated      = "order.created"
	TypeOrderCancelled    = "order.cancelled"
	TypeOrderTaken        = "order.taken"
	TypeTradeOpened       = "trade.opened"
	TypeDeliverySubmitted = "trade.delivery_submitted"
	TypeReceiptConfirmed  = "trade.receipt_confirmed"
	TypeReceiptRejected   = "trade.receipt_rejected"
	TypeAdminResolved     = "trade.admin_resolved"
)

// Event is one append-only audit record. Rows double as the publishing outbox:
// Dispatched flips once the event has been handed to the broker.
type Event struct {
	ID         uint            `gorm:"primaryKey" json:"-"`
	EventID    string          `gorm:"uniqueIndex" json:"event_id"`
	Type       string          `gorm:"index" json:"type"`
	Entity     string          `json:"entity"`
	EntityID   uint64          `json:"entity_id"`
	Payload    json.RawMessage `gorm:"type:text" json:"payload"`
	Dispatched bool            `gorm:"index" json:"dispatched"`
	CreatedAt  time.Time       `json:"created_at"`
}
