package oracle

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Feed registers an external price feed. Decimals are fixed at creation; the
// settlement config caches them again at asset-bind time.
type Feed struct {
	gorm.Model `json:"-"`
	Ref        string `gorm:"uniqueIndex" json:"ref"`
	Decimals   int32  `json:"decimals"`
}

// Round is one posted price observation. The latest round per feed is the
// current price. Rounds are append-only.
type Round struct {
	ID        uint            `gorm:"primaryKey" json:"-"`
	FeedRef   string          `gorm:"index" json:"feed_ref"`
	Answer    decimal.Decimal `gorm:"type:decimal(38,0)" json:"answer"`
	UpdatedAt int64           `json:"updated_at"` // unix seconds reported by the feed
	CreatedAt time.Time       `json:"created_at"`
}
