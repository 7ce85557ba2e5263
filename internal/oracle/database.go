package oracle

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

func (d *Database) CreateFeed(feed *Feed) error {
	return d.db.Create(feed).Error
}

func (d *Database) GetFeed(ref string) (*Feed, error) {
	var feed Feed
	if err := d.db.Where("ref = ?", ref).First(&feed).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &feed, nil
}

func (d *Database) CreateRound(round *Round) error {
	return d.db.Create(round).Error
}

// GetLatestRound returns the most recently posted round for a feed, or nil
// when none has been posted yet.
func (d *Database) GetLatestRound(ref string) (*Round, error) {
	var round Round
	if err := d.db.Where("feed_ref = ?", ref).Order("id DESC").First(&round).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &round, nil
}
