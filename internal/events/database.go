package events

import "gorm.io/gorm"

type Database struct {
	db *gorm.DB
}

func NewDatabase(db *gorm.DB) *Database {
	return &Database{db: db}
}

func (d *Database) createEvent(tx *gorm.DB, event *Event) error {
	return tx.Create(event).Error
}

// GetUndispatched returns the oldest events not yet handed to the broker.
func (d *Database) GetUndispatched(limit int) ([]Event, error) {
	var batch []Event
	if err := d.db.Where("dispatched = ?", false).Order("id ASC").Limit(limit).Find(&batch).Error; err != nil {
		return nil, err
	}
	return batch, nil
}

func (d *Database) MarkDispatched(id uint) error {
	return d.db.Model(&Event{}).Where("id = ?", id).Update("dispatched", true).Error
}

// GetByEntity returns the audit trail for one entity, oldest first.
func (d *Database) GetByEntity(entity string, entityID uint64) ([]Event, error) {
	var trail []Event
	if err := d.db.Where("entity = ? AND entity_id = ?", entity, entityID).Order("id ASC").Find(&trail).Error; err != nil {
		return nil, err
	}
	return trail, nil
}
