package events

import (
	"errors"
	"time"

	"gorm.io/gorm"
)

// secondsBetween returns whole seconds from earlier to later, never negative.
func secondsBetween(earlier, later time.Time) int64 {
	d := int64(later.Sub(earlier) / time.Second)
	if d < 0 {
		return 0
	}
	return d
}

// LastPageview returns the most recent pageview of a visit or gorm.ErrRecordNotFound.
func LastPageview(db *gorm.DB, visitID string) (*Pageview, error) {
	var p Pageview
	err := db.Where("visit_id = ?", visitID).
		Order("viewed_at DESC, id DESC").
		First(&p).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// BackfillTimeOnPage fills time_on_page on the visit's latest pageview that
// still lacks it, measuring up to at. Pageviews already back-filled are left alone.
func BackfillTimeOnPage(db *gorm.DB, visitID string, at time.Time) error {
	prev, err := LastPageview(db, visitID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if prev.TimeOnPage != nil {
		return nil
	}

	return db.Model(&Pageview{}).
		Where("id = ? AND time_on_page IS NULL", prev.ID).
		UpdateColumn("time_on_page", secondsBetween(prev.ViewedAt, at)).Error
}

// InsertPageview back-fills the previous pageview of the visit and appends p.
// Callers run it inside a write transaction together with the counter update.
func InsertPageview(tx *gorm.DB, p *Pageview) error {
	if err := BackfillTimeOnPage(tx, p.VisitID, p.ViewedAt); err != nil {
		return err
	}
	return tx.Create(p).Error
}

// MarkExit flags the visit's last pageview as the exit page and back-fills its
// time on page up to at. It returns the pageview, or nil when the visit has none.
func MarkExit(db *gorm.DB, visitID string, at time.Time) (*Pageview, error) {
	last, err := LastPageview(db, visitID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	updates := map[string]any{"is_exit": true}
	if last.TimeOnPage == nil {
		updates["time_on_page"] = secondsBetween(last.ViewedAt, at)
	}
	if err := db.Model(&Pageview{}).Where("id = ?", last.ID).UpdateColumns(updates).Error; err != nil {
		return nil, err
	}

	last.IsExit = true
	if last.TimeOnPage == nil {
		tp := secondsBetween(last.ViewedAt, at)
		last.TimeOnPage = &tp
	}
	return last, nil
}

// ListByVisit returns a visit's pageviews in viewing order.
func ListByVisit(db *gorm.DB, visitID string) ([]Pageview, error) {
	var out []Pageview
	err := db.Where("visit_id = ?", visitID).Order("viewed_at, id").Find(&out).Error
	return out, err
}
