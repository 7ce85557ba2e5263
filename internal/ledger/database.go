package ledger

import (
	"errors"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Database struct {
	db *gorm.DB
}

func NewDatabase(db *gorm.DB) *Database {
	return &Database{db: db}
}

// getBalance reads a balance row on the given handle, returning a zero-amount
// record for unknown pairs.
func (d *Database) getBalance(tx *gorm.DB, account, currency string) (*Balance, error) {
	var balance Balance
	err := tx.Where("account = ? AND currency = ?", account, currency).First(&balance).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &Balance{Account: account, Currency: currency, Amount: decimal.Zero}, nil
	}
	if err != nil {
		return nil, err
	}
	return &balance, nil
}

// saveBalance persists a balance row on the given handle.
func (d *Database) saveBalance(tx *gorm.DB, balance *Balance) error {
	if balance.ID == 0 {
		return tx.Create(balance).Error
	}
	return tx.Save(balance).Error
}
