package orders_test

import (
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
	owner         = "owner-addr"
	seller        = "seller-addr"
	buyer         = "buyer-addr"
	treasuryAddr  = "treasury-main"
	escrowAddr    = "escrow-custody"
	quoteSymbol   = "USDQ"
	quoteDecimals = 6
)

type fixture struct {
	db       *gorm.DB
	access   *access.Service
	oracle   *oracle.Service
	settings *settings.Service
	ledger   *ledger.Service
	escrow   *escrow.Service
	orders   *orders.Service
}

// newFixture wires the full stack against a fresh database: a gold feed at
// $3000 with 8 decimals, an 18-decimal XAU asset, a 6-decimal USDQ quote
// token, 20 bps spread and 30 bps fee.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := database.NewDatabase(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)

	accessService := access.NewService(db)
	require.NoError(t, accessService.Bootstrap(owner))

	oracleService := oracle.NewService(db, accessService)
	settingsService := settings.NewService(db, accessService, oracleService)
	ledgerService := ledger.NewService(db)
	recorder := events.NewRecorder(db)
	escrowService := escrow.NewService(db, settingsService, accessService, ledgerService, recorder, nil)
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
	require.NoError(t, settingsService.SetQuoteToken(owner, quoteSymbol, quoteDecimals, true))
	require.NoError(t, settingsService.SetSpreadBps(owner, 20))
	require.NoError(t, settingsService.SetFeeBps(owner, 30))
	require.NoError(t, settingsService.SetTreasury(owner, treasuryAddr))
	require.NoError(t, settingsService.SetEscrowAccount(owner, escrowAddr))

	return &fixture{
		db:       db,
		access:   accessService,
		oracle:   oracleService,
		settings: settingsService,
		ledger:   ledgerService,
		escrow:   escrowService,
		orders:   ordersService,
	}
}

func (f *fixture) fundBuyer(t *testing.T, amount decimal.Decimal) {
	t.Helper()
	_, err := f.ledger.Deposit(buyer, quoteSymbol, amount)
	require.NoError(t, err)
}

// oneUnit is 1.0 of an 18-decimal asset in base units.
var oneUnit = decimal.New(1, 18)

func TestCreateOrderLocksQuote(t *testing.T) {
	f := newFixture(t)

	order, err := f.orders.CreateOrder(seller, "XAU", oneUnit, quoteSymbol)
	require.NoError(t, err)

	// $3000 plus 20 bps spread, rescaled to 6 decimals.
	assert.True(t, order.QuoteAmount.Equal(decimal.NewFromInt(3006_000000)),
		"got %s", order.QuoteAmount)
	assert.Equal(t, orders.StatusOpen, order.Status)
	assert.NotZero(t, order.ID)
}

func TestCreateOrderValidation(t *testing.T) {
	f := newFixture(t)

	_, err := f.orders.CreateOrder(seller, "XAU", decimal.Zero, quoteSymbol)
	assert.ErrorIs(t, err, orders.ErrInvalidAmount)

	_, err = f.orders.CreateOrder(seller, "XAU", decimal.NewFromInt(-1), quoteSymbol)
	assert.ErrorIs(t, err, orders.ErrInvalidAmount)

	_, err = f.orders.CreateOrder(seller, "XAU", oneUnit, "UNLISTED")
	assert.ErrorIs(t, err, orders.ErrInvalidToken)

	require.NoError(t, f.settings.SetQuoteToken(owner, quoteSymbol, quoteDecimals, false))
	_, err = f.orders.CreateOrder(seller, "XAU", oneUnit, quoteSymbol)
	assert.ErrorIs(t, err, orders.ErrInvalidToken)

	_, err = f.orders.CreateOrder(seller, "UNKNOWN", oneUnit, quoteSymbol)
	assert.Error(t, err)
}

func TestCreateOrderRejectsInactiveSeller(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.access.SetBanned(owner, seller, true))
	_, err := f.orders.CreateOrder(seller, "XAU", oneUnit, quoteSymbol)
	assert.ErrorIs(t, err, access.ErrUserInactive)
}

func TestCancelOrder(t *testing.T) {
	f := newFixture(t)

	order, err := f.orders.CreateOrder(seller, "XAU", oneUnit, quoteSymbol)
	require.NoError(t, err)

	_, err = f.orders.CancelOrder(buyer, order.ID)
	assert.ErrorIs(t, err, orders.ErrNotSeller)

	cancelled, err := f.orders.CancelOrder(seller, order.ID)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusCancelled, cancelled.Status)

	_, err = f.orders.CancelOrder(seller, order.ID)
	assert.ErrorIs(t, err, orders.ErrOrderNotOpen)

	_, err = f.orders.CancelOrder(seller, 9999)
	assert.ErrorIs(t, err, orders.ErrOrderNotFound)
}

func TestTakeOrderMovesFundsIntoEscrow(t *testing.T) {
	f := newFixture(t)
	f.fundBuyer(t, decimal.NewFromInt(10_000_000000))

	order, err := f.orders.CreateOrder(seller, "XAU", oneUnit, quoteSymbol)
	require.NoError(t, err)

	trade, err := f.orders.TakeOrder(buyer, order.ID)
	require.NoError(t, err)

	// Quote 3006.000000, fee 30 bps = 9.018000, deposit total 3015.018000.
	assert.True(t, trade.QuoteAmount.Equal(decimal.NewFromInt(3006_000000)))
	assert.True(t, trade.FeeAmount.Equal(decimal.NewFromInt(9_018000)))
	assert.Equal(t, escrow.StatusAwaitingDelivery, trade.Status)
	assert.Equal(t, buyer, trade.Buyer)
	assert.Equal(t, seller, trade.Seller)

	escrowBalance, err := f.ledger.BalanceOf(escrowAddr, quoteSymbol)
	require.NoError(t, err)
	assert.True(t, escrowBalance.Equal(decimal.NewFromInt(3015_018000)),
		"got %s", escrowBalance)

	buyerBalance, err := f.ledger.BalanceOf(buyer, quoteSymbol)
	require.NoError(t, err)
	assert.True(t, buyerBalance.Equal(decimal.NewFromInt(10_000_000000-3015_018000)))

	taken, err := f.orders.GetOrder(order.ID)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusTaken, taken.Status)
	assert.Equal(t, trade.ID, taken.TradeID)
}

func TestTakeOrderRejectsSelfTrade(t *testing.T) {
	f := newFixture(t)

	order, err := f.orders.CreateOrder(seller, "XAU", oneUnit, quoteSymbol)
	require.NoError(t, err)

	_, err = f.orders.TakeOrder(seller, order.ID)
	assert.ErrorIs(t, err, orders.ErrSelfTrade)
}

func TestTakeOrderInsufficientFundsLeavesOrderOpen(t *testing.T) {
	f := newFixture(t)
	f.fundBuyer(t, decimal.NewFromInt(1_000000)) // nowhere near enough

	order, err := f.orders.CreateOrder(seller, "XAU", oneUnit, quoteSymbol)
	require.NoError(t, err)

	_, err = f.orders.TakeOrder(buyer, order.ID)
	assert.ErrorIs(t, err, ledger.ErrTransferFailed)

	// The whole take rolled back: order still open, no trade, no funds moved.
	reloaded, err := f.orders.GetOrder(order.ID)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusOpen, reloaded.Status)
	assert.Zero(t, reloaded.TradeID)

	escrowBalance, err := f.ledger.BalanceOf(escrowAddr, quoteSymbol)
	require.NoError(t, err)
	assert.True(t, escrowBalance.IsZero())
}

func TestTakeOrderOnlyOnce(t *testing.T) {
	f := newFixture(t)
	f.fundBuyer(t, decimal.NewFromInt(10_000_000000))
	_, err := f.ledger.Deposit("buyer-2", quoteSymbol, decimal.NewFromInt(10_000_000000))
	require.NoError(t, err)

	order, err := f.orders.CreateOrder(seller, "XAU", oneUnit, quoteSymbol)
	require.NoError(t, err)

	_, err = f.orders.TakeOrder(buyer, order.ID)
	require.NoError(t, err)

	_, err = f.orders.TakeOrder("buyer-2", order.ID)
	assert.ErrorIs(t, err, orders.ErrOrderNotOpen)

	// A taken order cannot be cancelled either.
	_, err = f.orders.CancelOrder(seller, order.ID)
	assert.ErrorIs(t, err, orders.ErrOrderNotOpen)
}

func TestTakeOrderRejectsInactiveBuyer(t *testing.T) {
	f := newFixture(t)
	f.fundBuyer(t, decimal.NewFromInt(10_000_000000))

	order, err := f.orders.CreateOrder(seller, "XAU", oneUnit, quoteSymbol)
	require.NoError(t, err)

	require.NoError(t, f.access.SetFrozen(owner, buyer, true))
	_, err = f.orders.TakeOrder(buyer, order.ID)
	assert.ErrorIs(t, err, access.ErrUserInactive)
}

func TestTakeOrderRequiresEscrowAccount(t *testing.T) {
	f := newFixture(t)
	f.fundBuyer(t, decimal.NewFromInt(10_000_000000))

	order, err := f.orders.CreateOrder(seller, "XAU", oneUnit, quoteSymbol)
	require.NoError(t, err)

	// Blank out the custody account directly; the setter refuses empty values.
	require.NoError(t, f.db.Model(&settings.Platform{}).Where("1 = 1").
		Update("escrow_account", "").Error)

	_, err = f.orders.TakeOrder(buyer, order.ID)
	assert.ErrorIs(t, err, settings.ErrEscrowNotConfigured)
}

func TestGetOrdersBySeller(t *testing.T) {
	f := newFixture(t)

	_, err := f.orders.CreateOrder(seller, "XAU", oneUnit, quoteSymbol)
	require.NoError(t, err)
	_, err = f.orders.CreateOrder(seller, "XAU", oneUnit.Mul(decimal.NewFromInt(2)), quoteSymbol)
	require.NoError(t, err)
	_, err = f.orders.CreateOrder("other-seller", "XAU", oneUnit, quoteSymbol)
	require.NoError(t, err)

	list, err := f.orders.GetOrdersBySeller(seller)
	require.NoError(t, err)
	assert.Len(t, list, 2)
}
