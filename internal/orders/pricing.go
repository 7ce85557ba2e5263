package orders

import (
	"github.com/shopspring/decimal"

	"github.com/ksred/otc-settlement/internal/settings"
)

// All pricing runs on integer base units scaled to an 18-decimal canonical
// form. Division truncates toward zero throughout, so quoted amounts never
// exceed the fixed-point value they round from.
const canonicalDecimals int32 = 18

var bpsDenominator = decimal.NewFromInt(10000)

func pow10(n int32) decimal.Decimal {
	return decimal.New(1, n)
}

// divTrunc is integer division truncating toward zero.
func divTrunc(a, b decimal.Decimal) decimal.Decimal {
	q, _ := a.QuoRem(b, 0)
	return q
}

// rescale converts an integer amount between decimal scales, truncating when
// scaling down.
func rescale(amount decimal.Decimal, from, to int32) decimal.Decimal {
	switch {
	case to > from:
		return amount.Mul(pow10(to - from))
	case to < from:
		return divTrunc(amount, pow10(from-to))
	default:
		return amount
	}
}

// applySpread marks a value up by spreadBps: value + floor(value*bps/10000).
func applySpread(value decimal.Decimal, spreadBps int64) decimal.Decimal {
	markup := divTrunc(value.Mul(decimal.NewFromInt(spreadBps)), bpsDenominator)
	return value.Add(markup)
}

// Quoter computes the quote amount locked into an order at creation time. Two
// strategies exist and are never mixed: symbol-keyed pricing with a USD-pegged
// quote, and token-pair pricing with a bilateral oracle conversion.
type Quoter interface {
	Quote(sellAsset string, sellAmount decimal.Decimal, quoteToken string) (decimal.Decimal, error)
}

// SymbolQuoter prices symbol-keyed assets against a quote currency assumed
// pegged 1:1 to USD. Sell amounts are already 18-decimal; the only oracle read
// is the sell asset's.
type SymbolQuoter struct {
	settings *settings.Service
}

func NewSymbolQuoter(settingsService *settings.Service) *SymbolQuoter {
	return &SymbolQuoter{settings: settingsService}
}

func (q *SymbolQuoter) Quote(sellAsset string, sellAmount decimal.Decimal, quoteToken string) (decimal.Decimal, error) {
	price, feedDecimals, err := q.settings.GetOraclePrice(sellAsset)
	if err != nil {
		return decimal.Zero, err
	}

	platform, err := q.settings.Platform()
	if err != nil {
		return decimal.Zero, err
	}

	usd := divTrunc(sellAmount.Mul(price), pow10(feedDecimals))
	usd = applySpread(usd, platform.SpreadBps)

	token, err := q.settings.QuoteToken(quoteToken)
	if err != nil {
		return decimal.Zero, err
	}
	if token == nil {
		return decimal.Zero, ErrInvalidToken
	}

	return rescale(usd, canonicalDecimals, token.Decimals), nil
}

// PairQuoter prices token-keyed assets with full bilateral conversion: the
// sell asset's oracle gives the USD value, the quote asset's oracle converts
// it into quote units. Sell amounts arrive in the asset's native decimals.
type PairQuoter struct {
	settings *settings.Service
}

func NewPairQuoter(settingsService *settings.Service) *PairQuoter {
	return &PairQuoter{settings: settingsService}
}

func (q *PairQuoter) Quote(sellAsset string, sellAmount decimal.Decimal, quoteToken string) (decimal.Decimal, error) {
	if sellAsset == quoteToken {
		return decimal.Zero, ErrInvalidToken
	}

	asset, err := q.settings.Asset(sellAsset)
	if err != nil {
		return decimal.Zero, err
	}
	if asset == nil || !asset.Enabled {
		return decimal.Zero, settings.ErrUnsupportedAsset
	}

	price, feedDecimals, err := q.settings.GetOraclePrice(sellAsset)
	if err != nil {
		return decimal.Zero, err
	}

	platform, err := q.settings.Platform()
	if err != nil {
		return decimal.Zero, err
	}

	normalized := rescale(sellAmount, asset.Decimals, canonicalDecimals)
	usd := divTrunc(normalized.Mul(price), pow10(feedDecimals))
	usd = applySpread(usd, platform.SpreadBps)

	quotePrice, quoteFeedDecimals, err := q.settings.GetOraclePrice(quoteToken)
	if err != nil {
		return decimal.Zero, err
	}

	token, err := q.settings.QuoteToken(quoteToken)
	if err != nil {
		return decimal.Zero, err
	}
	if token == nil {
		return decimal.Zero, ErrInvalidToken
	}

	quote := divTrunc(usd.Mul(pow10(quoteFeedDecimals)), quotePrice)
	return rescale(quote, canonicalDecimals, token.Decimals), nil
}
