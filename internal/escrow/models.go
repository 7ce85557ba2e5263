package escrow

import (
	"time"

	"github.com/shopspring/decimal"
)

// Trade statuses. A trade moves AWAITING_DELIVERY → DELIVERED_PENDING_CONFIRM →
// {RELEASED | DISPUTE_PENDING} → {RELEASED | REFUNDED}; RELEASED and REFUNDED
// are terminal.
const (
	StatusNone                    = "NONE"
	StatusAwaitingDelivery        = "AWAITING_DELIVERY"
	StatusDeliveredPendingConfirm = "DELIVERED_PENDING_CONFIRM"
	StatusDisputePending          = "DISPUTE_PENDING"
	StatusReleased                = "RELEASED"
	StatusRefunded                = "REFUNDED"
)

// Trade is an accepted order under custody. QuoteAmount plus FeeAmount was
// moved into the escrow account atomically with row creation and stays there
// until a terminal transition pays it out.
type Trade struct {
	ID          uint64          `gorm:"primaryKey" json:"trade_id"`
	OrderID     uint64          `gorm:"uniqueIndex" json:"order_id"`
	Buyer       string          `json:"buyer"`
	Seller      string          `json:"seller"`
	QuoteToken  string          `json:"quote_token"`
	QuoteAmount decimal.Decimal `gorm:"type:decimal(38,0)" json:"quote_amount"`
	FeeAmount   decimal.Decimal `gorm:"type:decimal(38,0)" json:"fee_amount"`
	SellAsset   string          `json:"sell_asset"`
	SellAmount  decimal.Decimal `gorm:"type:decimal(38,0)" json:"sell_amount"`
	DeliveryRef string          `json:"delivery_ref"`
	DeliveredAt int64           `json:"delivered_at"` // unix seconds, 0 until delivery is attested
	Status      string          `json:"status"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// OpenTradeParams carries everything the order-take flow hands over when it
// opens a trade.
type OpenTradeParams struct {
	OrderID     uint64
	Buyer       string
	Seller      string
	QuoteToken  string
	QuoteAmount decimal.Decimal
	FeeAmount   decimal.Decimal
	SellAsset   string
	SellAmount  decimal.Decimal
}
