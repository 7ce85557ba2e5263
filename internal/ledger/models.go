package ledger

import (
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Balance is one account's holding of one currency, in integer base units.
type Balance struct {
	gorm.Model `json:"-"`
	Account    string          `gorm:"uniqueIndex:idx_account_currency" json:"account"`
	Currency   string          `gorm:"uniqueIndex:idx_account_currency" json:"currency"`
	Amount     decimal.Decimal `gorm:"type:decimal(38,0)" json:"amount"`
}
