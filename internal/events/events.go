package events

import (
	"gorm.io/gorm"
)

// InsertEvent appends an interaction event.
func InsertEvent(db *gorm.DB, e *Event) error {
	return db.Create(e).Error
}

// ListEventsByVisit returns a visit's events in occurrence order.
func ListEventsByVisit(db *gorm.DB, visitID string) ([]Event, error) {
	var out []Event
	err := db.Where("visit_id = ?", visitID).Order("occurred_at, id").Find(&out).Error
	return out, err
}
