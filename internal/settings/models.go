package settings

import "gorm.io/gorm"

// Platform is the single-row settlement configuration: fee and spread rates in
// basis points, the treasury payout address and the escrow custody account.
type Platform struct {
	gorm.Model    `json:"-"`
	FeeBps        int64  `json:"fee_bps"`
	SpreadBps     int64  `json:"spread_bps"`
	Treasury      string `json:"treasury"`
	EscrowAccount string `json:"escrow_account"`
}

// QuoteToken marks a currency as an allowed settlement denomination.
type QuoteToken struct {
	gorm.Model `json:"-"`
	Symbol     string `gorm:"uniqueIndex" json:"symbol"`
	Decimals   int32  `json:"decimals"`
	Allowed    bool   `json:"allowed"`
}

// Asset binds a tradable instrument to a price feed. FeedDecimals is read from
// the oracle once at bind time and cached here. Decimals is the instrument's
// native scale (18 under symbol-keyed pricing). Bindings are never deleted,
// only disabled.
type Asset struct {
	gorm.Model   `json:"-"`
	Symbol       string `gorm:"uniqueIndex" json:"symbol"`
	FeedRef      string `json:"feed_ref"`
	FeedDecimals int32  `json:"feed_decimals"`
	Decimals     int32  `json:"decimals"`
	Enabled      bool   `json:"enabled"`
}
