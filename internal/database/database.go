package database

import (
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/ksred/otc-settlement/internal/access"
	"github.com/ksred/otc-settlement/internal/escrow"
	"github.com/ksred/otc-settlement/internal/events"
	"github.com/ksred/otc-settlement/internal/ledger"
	"github.com/ksred/otc-settlement/internal/oracle"
	"github.com/ksred/otc-settlement/internal/orders"
	"github.com/ksred/otc-settlement/internal/settings"
)

// NewDatabase initializes and returns a new GORM DB connection
func NewDatabase(path string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}

	err = db.AutoMigrate(
		&access.Account{},
		&access.Ownership{},
		&oracle.Feed{},
		&oracle.Round{},
		&settings.Platform{},
		&settings.QuoteToken{},
		&settings.Asset{},
		&ledger.Balance{},
		&orders.Order{},
		&escrow.Trade{},
		&events.Event{},
	)
	if err != nil {
		return nil, err
	}

	return db, nil
}
