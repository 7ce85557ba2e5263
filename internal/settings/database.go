package settings

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

// GetPlatform returns the configuration row, creating the zero-value row on
// first access.
func (d *Database) GetPlatform() (*Platform, error) {
	var platform Platform
	err := d.db.First(&platform).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		platform = Platform{}
		if err := d.db.Create(&platform).Error; err != nil {
			return nil, err
		}
		return &platform, nil
	}
	if err != nil {
		return nil, err
	}
	return &platform, nil
}

func (d *Database) SavePlatform(platform *Platform) error {
	return d.db.Save(platform).Error
}

func (d *Database) GetQuoteToken(symbol string) (*QuoteToken, error) {
	var token QuoteToken
	if err := d.db.Where("symbol = ?", symbol).First(&token).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &token, nil
}

func (d *Database) SaveQuoteToken(token *QuoteToken) error {
	existing, err := d.GetQuoteToken(token.Symbol)
	if err != nil {
		return err
	}
	if existing == nil {
		return d.db.Create(token).Error
	}
	token.ID = existing.ID
	token.CreatedAt = existing.CreatedAt
	return d.db.Save(token).Error
}

func (d *Database) GetAsset(symbol string) (*Asset, error) {
	var asset Asset
	if err := d.db.Where("symbol = ?", symbol).First(&asset).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &asset, nil
}

func (d *Database) SaveAsset(asset *Asset) error {
	existing, err := d.GetAsset(asset.Symbol)
	if err != nil {
		return err
	}
	if existing == nil {
		return d.db.Create(asset).Error
	}
	asset.ID = existing.ID
	asset.CreatedAt = existing.CreatedAt
	return d.db.Save(asset).Error
}
