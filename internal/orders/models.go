package orders

import (
	"time"

	"github.com/shopspring/decimal"
)

// Order statuses. TAKEN and CANCELLED are terminal.
const (
	StatusOpen      = "OPEN"
	StatusTaken     = "TAKEN"
	StatusCancelled = "CANCELLED"
)

// Order is a standing sell intent. QuoteAmount is computed once at creation
// and never recomputed: the price is locked even if the oracle moves.
type Order struct {
	ID          uint64          `gorm:"primaryKey" json:"order_id"`
	Seller      string          `gorm:"index" json:"seller"`
	SellAsset   string          `json:"sell_asset"`
	SellAmount  decimal.Decimal `gorm:"type:decimal(38,0)" json:"sell_amount"`
	QuoteToken  string          `json:"quote_token"`
	QuoteAmount decimal.Decimal `gorm:"type:decimal(38,0)" json:"quote_amount"`
	Status      string          `json:"status"`
	TradeID     uint64          `json:"trade_id"` // 0 until the order is taken
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}
