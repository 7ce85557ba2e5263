package ledger_test

import (
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/ksred/otc-settlement/internal/database"
	"github.com/ksred/otc-settlement/internal/ledger"
)

func newService(t *testing.T) (*ledger.Service, *gorm.DB) {
	t.Helper()
	db, err := database.NewDatabase(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	return ledger.NewService(db), db
}

func TestDeposit(t *testing.T) {
	svc, _ := newService(t)

	balance, err := svc.Deposit("alice", "USDQ", decimal.NewFromInt(100))
	require.NoError(t, err)
	assert.True(t, balance.Amount.Equal(decimal.NewFromInt(100)))

	balance, err = svc.Deposit("alice", "USDQ", decimal.NewFromInt(50))
	require.NoError(t, err)
	assert.True(t, balance.Amount.Equal(decimal.NewFromInt(150)))

	_, err = svc.Deposit("alice", "USDQ", decimal.Zero)
	assert.ErrorIs(t, err, ledger.ErrInvalidAmount)

	_, err = svc.Deposit("alice", "USDQ", decimal.NewFromInt(-5))
	assert.ErrorIs(t, err, ledger.ErrInvalidAmount)
}

func TestBalanceOfUnknownIsZero(t *testing.T) {
	svc, _ := newService(t)

	amount, err := svc.BalanceOf("nobody", "USDQ")
	require.NoError(t, err)
	assert.True(t, amount.IsZero())
}

func TestTransfer(t *testing.T) {
	svc, db := newService(t)

	_, err := svc.Deposit("alice", "USDQ", decimal.NewFromInt(100))
	require.NoError(t, err)

	err = db.Transaction(func(tx *gorm.DB) error {
		return svc.Transfer(tx, "alice", "bob", "USDQ", decimal.NewFromInt(40))
	})
	require.NoError(t, err)

	aliceBalance, err := svc.BalanceOf("alice", "USDQ")
	require.NoError(t, err)
	assert.True(t, aliceBalance.Equal(decimal.NewFromInt(60)))

	bobBalance, err := svc.BalanceOf("bob", "USDQ")
	require.NoError(t, err)
	assert.True(t, bobBalance.Equal(decimal.NewFromInt(40)))
}

func TestTransferInsufficientFunds(t *testing.T) {
	svc, db := newService(t)

	_, err := svc.Deposit("alice", "USDQ", decimal.NewFromInt(10))
	require.NoError(t, err)

	err = db.Transaction(func(tx *gorm.DB) error {
		return svc.Transfer(tx, "alice", "bob", "USDQ", decimal.NewFromInt(11))
	})
	assert.ErrorIs(t, err, ledger.ErrTransferFailed)

	// The failed transfer must not have moved anything.
	aliceBalance, err := svc.BalanceOf("alice", "USDQ")
	require.NoError(t, err)
	assert.True(t, aliceBalance.Equal(decimal.NewFromInt(10)))

	bobBalance, err := svc.BalanceOf("bob", "USDQ")
	require.NoError(t, err)
	assert.True(t, bobBalance.IsZero())
}

func TestTransferEdgeAmounts(t *testing.T) {
	svc, db := newService(t)

	// Zero-amount transfers succeed without touching balances.
	err := db.Transaction(func(tx *gorm.DB) error {
		return svc.Transfer(tx, "alice", "bob", "USDQ", decimal.Zero)
	})
	require.NoError(t, err)

	err = db.Transaction(func(tx *gorm.DB) error {
		return svc.Transfer(tx, "alice", "bob", "USDQ", decimal.NewFromInt(-1))
	})
	assert.ErrorIs(t, err, ledger.ErrTransferFailed)
}

func TestTransfersByCurrencyAreIndependent(t *testing.T) {
	svc, db := newService(t)

	_, err := svc.Deposit("alice", "USDQ", decimal.NewFromInt(100))
	require.NoError(t, err)
	_, err = svc.Deposit("alice", "EURQ", decimal.NewFromInt(5))
	require.NoError(t, err)

	err = db.Transaction(func(tx *gorm.DB) error {
		return svc.Transfer(tx, "alice", "bob", "EURQ", decimal.NewFromInt(100))
	})
	assert.ErrorIs(t, err, ledger.ErrTransferFailed)

	usdq, err := svc.BalanceOf("alice", "USDQ")
	require.NoError(t, err)
	assert.True(t, usdq.Equal(decimal.NewFromInt(100)))
}
