package escrow

import (
	"errors"

	"gorm.io/gorm"
)

type Database struct {
	db *gorm.DB
}

func NewDatabase(db *gorm.DB) *Database {
	return &Database{db: db}
}

func (d *Database) createTrade(tx *gorm.DB, trade *Trade) error {
	return tx.Create(trade).Error
}

func (d *Database) GetTrade(tradeID uint64) (*Trade, error) {
	var trade Trade
	if err := d.db.Where("id = ?", tradeID).First(&trade).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &trade, nil
}

func (d *Database) saveTrade(tx *gorm.DB, trade *Trade) error {
	return tx.Save(trade).Error
}
