package escrow_test

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/ksred/otc-settlement/internal/access"
	"github.com/ksred/otc-settlement/internal/database"
	"github.com/ksred/otc-settlement/internal/escrow"
	"github.com/ksred/otc-settlement/internal/events"
	"github.com/ksred/otc-settlement/internal/ledger"
	"github.com/ksred/otc-settlement/internal/oracle"
	"github.com/ksred/otc-settlement/internal/orders"
	"github.com/ksred/otc-settlement/internal/settings"
)

const (
	owner        = "owner-addr"
	seller       = "seller-addr"
	buyer        = "buyer-addr"
	treasuryAddr = "treasury-main"
	escrowAddr   = "escrow-custody"
	quoteSymbol  = "USDQ"

	buyerFunding = 10_000_000000
)

type fixture struct {
	db       *gorm.DB
	access   *access.Service
	settings *settings.Service
	ledger   *ledger.Service
	escrow   *escrow.Service
	orders   *orders.Service
	recorder *events.Recorder
}

// newFixture wires the full stack: gold at $3000 on an 8-decimal feed, 20 bps
// spread, 30 bps fee, a funded buyer. An optional verifier replaces the
// accept-all default.
func newFixture(t *testing.T, verifier escrow.DeliveryVerifier) *fixture {
	t.Helper()
	db, err := database.NewDatabase(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)

	accessService := access.NewService(db)
	require.NoError(t, accessService.Bootstrap(owner))

	oracleService := oracle.NewService(db, accessService)
	settingsService := settings.NewService(db, accessService, oracleService)
	ledgerService := ledger.NewService(db)
	recorder := events.NewRecorder(db)
	escrowService := escrow.NewService(db, settingsService, accessService, ledgerService, recorder, verifier)
	ordersService := orders.NewService(
		db,
		accessService,
		settingsService,
		ledgerService,
		escrowService,
		escrowService.OpenerCapability(),
		recorder,
		orders.NewSymbolQuoter(settingsService),
	)

	_, err = oracleService.CreateFeed(owner, "xau-usd", 8)
	require.NoError(t, err)
	_, err = oracleService.PostRound(owner, "xau-usd", decimal.NewFromInt(3000_00000000), time.Now().Unix())
	require.NoError(t, err)
	require.NoError(t, settingsService.SetAsset(owner, "XAU", "xau-usd", 18, true))
	require.NoError(t, settingsService.SetQuoteToken(owner, quoteSymbol, 6, true))
	require.NoError(t, settingsService.SetSpreadBps(owner, 20))
	require.NoError(t, settingsService.SetFeeBps(owner, 30))
	require.NoError(t, settingsService.SetTreasury(owner, treasuryAddr))
	require.NoError(t, settingsService.SetEscrowAccount(owner, escrowAddr))

	_, err = ledgerService.Deposit(buyer, quoteSymbol, decimal.NewFromInt(buyerFunding))
	require.NoError(t, err)

	return &fixture{
		db:       db,
		access:   accessService,
		settings: settingsService,
		ledger:   ledgerService,
		escrow:   escrowService,
		orders:   ordersService,
		recorder: recorder,
	}
}

// openTrade runs create+take and returns the trade in AWAITING_DELIVERY.
// Quote 3006.000000 USDQ, fee 9.018000, custody total 3015.018000.
func (f *fixture) openTrade(t *testing.T) *escrow.Trade {
	t.Helper()
	order, err := f.orders.CreateOrder(seller, "XAU", decimal.New(1, 18), quoteSymbol)
	require.NoError(t, err)
	trade, err := f.orders.TakeOrder(buyer, order.ID)
	require.NoError(t, err)
	return trade
}

func (f *fixture) balance(t *testing.T, account string) decimal.Decimal {
	t.Helper()
	amount, err := f.ledger.BalanceOf(account, quoteSymbol)
	require.NoError(t, err)
	return amount
}

func TestOpenTradeRequiresCapability(t *testing.T) {
	f := newFixture(t, nil)

	params := escrow.OpenTradeParams{
		OrderID:     42,
		Buyer:       buyer,
		Seller:      seller,
		QuoteToken:  quoteSymbol,
		QuoteAmount: decimal.NewFromInt(100),
	}

	_, err := f.escrow.OpenTradeFromOrder(nil, f.db, params)
	assert.ErrorIs(t, err, escrow.ErrUnauthorizedOpener)

	// A capability minted by a different service instance is rejected even
	// though it points at the same database.
	other := escrow.NewService(f.db, f.settings, f.access, f.ledger, f.recorder, nil)
	_, err = f.escrow.OpenTradeFromOrder(other.OpenerCapability(), f.db, params)
	assert.ErrorIs(t, err, escrow.ErrUnauthorizedOpener)
}

func TestOpenTradeValidatesParams(t *testing.T) {
	f := newFixture(t, nil)
	cap := f.escrow.OpenerCapability()

	_, err := f.escrow.OpenTradeFromOrder(cap, f.db, escrow.OpenTradeParams{
		QuoteAmount: decimal.NewFromInt(1),
	})
	assert.ErrorIs(t, err, escrow.ErrInvalidToken)

	_, err = f.escrow.OpenTradeFromOrder(cap, f.db, escrow.OpenTradeParams{
		QuoteToken: quoteSymbol,
	})
	assert.ErrorIs(t, err, escrow.ErrInvalidAmount)
}

func TestSubmitDelivery(t *testing.T) {
	f := newFixture(t, nil)
	trade := f.openTrade(t)

	_, err := f.escrow.SubmitDelivery(buyer, trade.ID, "shipment-1")
	assert.ErrorIs(t, err, escrow.ErrNotSeller)

	delivered, err := f.escrow.SubmitDelivery(seller, trade.ID, "shipment-1")
	require.NoError(t, err)
	assert.Equal(t, escrow.StatusDeliveredPendingConfirm, delivered.Status)
	assert.Equal(t, "shipment-1", delivered.DeliveryRef)
	assert.NotZero(t, delivered.DeliveredAt)

	// Delivery cannot be attested twice.
	_, err = f.escrow.SubmitDelivery(seller, trade.ID, "shipment-2")
	assert.ErrorIs(t, err, escrow.ErrInvalidState)

	_, err = f.escrow.SubmitDelivery(seller, 9999, "shipment-1")
	assert.ErrorIs(t, err, escrow.ErrTradeNotFound)
}

// rejectingVerifier fails every attestation with a fixed error.
type rejectingVerifier struct{ err error }

func (v rejectingVerifier) VerifyDelivery(*escrow.Trade, string) error { return v.err }

func TestSubmitDeliveryHonorsVerifier(t *testing.T) {
	verifierErr := errors.New("carrier reference not recognized")
	f := newFixture(t, rejectingVerifier{err: verifierErr})
	trade := f.openTrade(t)

	_, err := f.escrow.SubmitDelivery(seller, trade.ID, "bogus")
	assert.ErrorIs(t, err, verifierErr)

	// The rejected attestation left the trade untouched.
	reloaded, err := f.escrow.GetTrade(trade.ID)
	require.NoError(t, err)
	assert.Equal(t, escrow.StatusAwaitingDelivery, reloaded.Status)
	assert.Empty(t, reloaded.DeliveryRef)
}

func TestConfirmReceiptPaysSellerAndTreasury(t *testing.T) {
	f := newFixture(t, nil)
	trade := f.openTrade(t)

	_, err := f.escrow.SubmitDelivery(seller, trade.ID, "shipment-1")
	require.NoError(t, err)

	_, err = f.escrow.ConfirmReceipt(seller, trade.ID)
	assert.ErrorIs(t, err, escrow.ErrNotBuyer)

	released, err := f.escrow.ConfirmReceipt(buyer, trade.ID)
	require.NoError(t, err)
	assert.Equal(t, escrow.StatusReleased, released.Status)

	assert.True(t, f.balance(t, seller).Equal(decimal.NewFromInt(3006_000000)))
	assert.True(t, f.balance(t, treasuryAddr).Equal(decimal.NewFromInt(9_018000)))
	assert.True(t, f.balance(t, escrowAddr).IsZero())
	assert.True(t, f.balance(t, buyer).Equal(decimal.NewFromInt(buyerFunding-3015_018000)))

	// Terminal: no further transitions.
	_, err = f.escrow.ConfirmReceipt(buyer, trade.ID)
	assert.ErrorIs(t, err, escrow.ErrInvalidState)
	_, err = f.escrow.RejectReceipt(buyer, trade.ID)
	assert.ErrorIs(t, err, escrow.ErrInvalidState)
}

func TestConfirmBeforeDeliveryIsIllegal(t *testing.T) {
	f := newFixture(t, nil)
	trade := f.openTrade(t)

	_, err := f.escrow.ConfirmReceipt(buyer, trade.ID)
	assert.ErrorIs(t, err, escrow.ErrInvalidState)
	_, err = f.escrow.RejectReceipt(buyer, trade.ID)
	assert.ErrorIs(t, err, escrow.ErrInvalidState)
}

func TestRejectReceiptOpensDispute(t *testing.T) {
	f := newFixture(t, nil)
	trade := f.openTrade(t)

	_, err := f.escrow.SubmitDelivery(seller, trade.ID, "shipment-1")
	require.NoError(t, err)

	_, err = f.escrow.RejectReceipt(seller, trade.ID)
	assert.ErrorIs(t, err, escrow.ErrNotBuyer)

	disputed, err := f.escrow.RejectReceipt(buyer, trade.ID)
	require.NoError(t, err)
	assert.Equal(t, escrow.StatusDisputePending, disputed.Status)

	// Funds stay in custody while the dispute is open.
	assert.True(t, f.balance(t, escrowAddr).Equal(decimal.NewFromInt(3015_018000)))

	// Neither party can move a disputed trade.
	_, err = f.escrow.ConfirmReceipt(buyer, trade.ID)
	assert.ErrorIs(t, err, escrow.ErrInvalidState)
	_, err = f.escrow.SubmitDelivery(seller, trade.ID, "shipment-2")
	assert.ErrorIs(t, err, escrow.ErrInvalidState)
}

func disputedTrade(t *testing.T, f *fixture) *escrow.Trade {
	t.Helper()
	trade := f.openTrade(t)
	_, err := f.escrow.SubmitDelivery(seller, trade.ID, "shipment-1")
	require.NoError(t, err)
	_, err = f.escrow.RejectReceipt(buyer, trade.ID)
	require.NoError(t, err)
	return trade
}

func TestAdminForceRelease(t *testing.T) {
	f := newFixture(t, nil)
	trade := disputedTrade(t, f)

	_, err := f.escrow.AdminForceRelease(buyer, trade.ID)
	assert.ErrorIs(t, err, access.ErrNotAdmin)

	released, err := f.escrow.AdminForceRelease(owner, trade.ID)
	require.NoError(t, err)
	assert.Equal(t, escrow.StatusReleased, released.Status)

	// Same payout as a buyer confirmation.
	assert.True(t, f.balance(t, seller).Equal(decimal.NewFromInt(3006_000000)))
	assert.True(t, f.balance(t, treasuryAddr).Equal(decimal.NewFromInt(9_018000)))
	assert.True(t, f.balance(t, escrowAddr).IsZero())

	_, err = f.escrow.AdminForceRelease(owner, trade.ID)
	assert.ErrorIs(t, err, escrow.ErrInvalidState)
}

func TestAdminForceRefund(t *testing.T) {
	f := newFixture(t, nil)
	trade := disputedTrade(t, f)

	refunded, err := f.escrow.AdminForceRefund(owner, trade.ID)
	require.NoError(t, err)
	assert.Equal(t, escrow.StatusRefunded, refunded.Status)

	// The buyer gets principal plus fee back; the platform earns nothing.
	assert.True(t, f.balance(t, buyer).Equal(decimal.NewFromInt(buyerFunding)))
	assert.True(t, f.balance(t, seller).IsZero())
	assert.True(t, f.balance(t, treasuryAddr).IsZero())
	assert.True(t, f.balance(t, escrowAddr).IsZero())

	_, err = f.escrow.AdminForceRefund(owner, trade.ID)
	assert.ErrorIs(t, err, escrow.ErrInvalidState)
}

func TestAdminResolveRequiresDispute(t *testing.T) {
	f := newFixture(t, nil)
	trade := f.openTrade(t)

	_, err := f.escrow.AdminForceRelease(owner, trade.ID)
	assert.ErrorIs(t, err, escrow.ErrInvalidState)
	_, err = f.escrow.AdminForceRefund(owner, trade.ID)
	assert.ErrorIs(t, err, escrow.ErrInvalidState)

	// A granted admin may resolve once disputed.
	_, err = f.escrow.SubmitDelivery(seller, trade.ID, "shipment-1")
	require.NoError(t, err)
	_, err = f.escrow.RejectReceipt(buyer, trade.ID)
	require.NoError(t, err)

	require.NoError(t, f.access.SetAdmin(owner, "moderator", true))
	_, err = f.escrow.AdminForceRefund("moderator", trade.ID)
	require.NoError(t, err)
}

func TestTreasuryReadAtPayoutTime(t *testing.T) {
	f := newFixture(t, nil)
	trade := f.openTrade(t)

	_, err := f.escrow.SubmitDelivery(seller, trade.ID, "shipment-1")
	require.NoError(t, err)

	// Blank out the treasury after the trade opened; the setter refuses empty
	// values so write the row directly.
	require.NoError(t, f.db.Model(&settings.Platform{}).Where("1 = 1").
		Update("treasury", "").Error)

	_, err = f.escrow.ConfirmReceipt(buyer, trade.ID)
	assert.ErrorIs(t, err, settings.ErrTreasuryRequired)

	// The failed release left the trade confirmable and the funds in custody.
	reloaded, err := f.escrow.GetTrade(trade.ID)
	require.NoError(t, err)
	assert.Equal(t, escrow.StatusDeliveredPendingConfirm, reloaded.Status)
	assert.True(t, f.balance(t, escrowAddr).Equal(decimal.NewFromInt(3015_018000)))

	// Pointing the treasury somewhere new routes the fee there.
	require.NoError(t, f.settings.SetTreasury(owner, "treasury-two"))
	_, err = f.escrow.ConfirmReceipt(buyer, trade.ID)
	require.NoError(t, err)
	assert.True(t, f.balance(t, "treasury-two").Equal(decimal.NewFromInt(9_018000)))
}

func TestReleaseWithZeroFeeNeedsNoTreasury(t *testing.T) {
	f := newFixture(t, nil)
	require.NoError(t, f.settings.SetFeeBps(owner, 0))
	require.NoError(t, f.db.Model(&settings.Platform{}).Where("1 = 1").
		Update("treasury", "").Error)

	trade := f.openTrade(t)
	assert.True(t, trade.FeeAmount.IsZero())

	_, err := f.escrow.SubmitDelivery(seller, trade.ID, "shipment-1")
	require.NoError(t, err)
	_, err = f.escrow.ConfirmReceipt(buyer, trade.ID)
	require.NoError(t, err)

	assert.True(t, f.balance(t, seller).Equal(decimal.NewFromInt(3006_000000)))
	assert.True(t, f.balance(t, escrowAddr).IsZero())
}

func TestGetTradeUnknownIsNone(t *testing.T) {
	f := newFixture(t, nil)

	trade, err := f.escrow.GetTrade(424242)
	require.NoError(t, err)
	assert.Equal(t, escrow.StatusNone, trade.Status)
	assert.Zero(t, trade.ID)
}

func TestAuditTrailFollowsLifecycle(t *testing.T) {
	f := newFixture(t, nil)
	trade := f.openTrade(t)

	_, err := f.escrow.SubmitDelivery(seller, trade.ID, "shipment-1")
	require.NoError(t, err)
	_, err = f.escrow.ConfirmReceipt(buyer, trade.ID)
	require.NoError(t, err)

	trail, err := f.recorder.Trail("trade", trade.ID)
	require.NoError(t, err)
	require.Len(t, trail, 3)
	assert.Equal(t, events.TypeTradeOpened, trail[0].Type)
	assert.Equal(t, events.TypeDeliverySubmitted, trail[1].Type)
	assert.Equal(t, events.TypeReceiptConfirmed, trail[2].Type)
}
