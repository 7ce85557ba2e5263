package events

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Recorder appends audit events. Mutating operations record through RecordTx
// inside their own transaction so an event exists exactly when its state
// change committed.
type Recorder struct {
	gormDB *gorm.DB
	db     *Database
}

func NewRecorder(gormDB *gorm.DB) *Recorder {
	return &Recorder{
		gormDB: gormDB,
		db:     NewDatabase(gormDB),
	}
}

// RecordTx appends an event on the caller's transaction handle.
func (r *Recorder) RecordTx(tx *gorm.DB, eventType, entity string, entityID uint64, payload interface{}) error {
	blob, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal event payload: %w", err)
	}

	event := &Event{
		EventID:  uuid.New().String(),
		Type:     eventType,
		Entity:   entity,
		EntityID: entityID,
		Payload:  blob,
	}
	return r.db.createEvent(tx, event)
}

// Record appends an event outside any caller transaction.
func (r *Recorder) Record(eventType, entity string, entityID uint64, payload interface{}) error {
	return r.RecordTx(r.gormDB, eventType, entity, entityID, payload)
}

// Trail returns the audit history for an entity.
func (r *Recorder) Trail(entity string, entityID uint64) ([]Event, error) {
	return r.db.GetByEntity(entity, entityID)
}
