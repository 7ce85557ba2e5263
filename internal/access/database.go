package access

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

// GetAccount returns the stored flags for an address. Unknown addresses get a
// zero-value record: every flag off, which is the default standing of a user.
func (d *Database) GetAccount(address string) (*Account, error) {
	var account Account
	if err := d.db.Where("address = ?", address).First(&account).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &Account{Address: address}, nil
		}
		return nil, err
	}
	return &account, nil
}

// SaveAccount upserts the flags for an address.
func (d *Database) SaveAccount(account *Account) error {
	var existing Account
	err := d.db.Where("address = ?", account.Address).First(&existing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return d.db.Create(account).Error
	}
	if err != nil {
		return err
	}
	account.ID = existing.ID
	account.CreatedAt = existing.CreatedAt
	return d.db.Save(account).Error
}

// GetOwner returns the current owner address, or empty when unset.
func (d *Database) GetOwner() (string, error) {
	var ownership Ownership
	if err := d.db.First(&ownership).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", nil
		}
		return "", err
	}
	return ownership.Owner, nil
}

// SetOwner replaces the single ownership row.
func (d *Database) SetOwner(owner string) error {
	var ownership Ownership
	err := d.db.First(&ownership).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return d.db.Create(&Ownership{Owner: owner}).Error
	}
	if err != nil {
		return err
	}
	ownership.Owner = owner
	return d.db.Save(&ownership).Error
}
