// Package visits stores browsing sessions and the conditional updates that
// move them from active to closed.
package visits

import (
	"net/url"
	"time"

	"gorm.io/gorm"
)

// Visit is one browsing session by one visitor. At most one visit per visitor
// is active at a time; the store enforces this with a partial unique index.
type Visit struct {
	ID             string     `gorm:"primaryKey;size:36" json:"id"`
	VisitorID      string     `gorm:"index;size:36;not null" json:"visitor_id"`
	WebsiteID      *uint      `gorm:"index" json:"website_id"`
	StartedAt      time.Time  `gorm:"index;not null" json:"started_at"`
	EndedAt        *time.Time `json:"ended_at"`
	Duration       *int64     `json:"duration"` // seconds, set on close
	IsActive       bool       `gorm:"not null" json:"is_active"`
	EntryPage      string     `gorm:"type:text" json:"entry_page"`
	ExitPage       *string    `gorm:"type:text" json:"exit_page"`
	LastPage       string     `gorm:"type:text" json:"last_page"`
	LastActivityAt time.Time  `gorm:"index;not null" json:"last_activity_at"`
	Referrer       string     `gorm:"type:text" json:"referrer"`
	ReferrerSource string     `json:"referrer_source"`
	UTMSource      string     `json:"utm_source"`
	UTMMedium      string     `json:"utm_medium"`
	UTMCampaign    string     `json:"utm_campaign"`
	UTMTerm        string     `json:"utm_term"`
	UTMContent     string     `json:"utm_content"`
	CreatedAt      time.Time  `json:"created_at"`
}

// ActiveVisitIndexSQL creates the index that allows one active visit per visitor.
const ActiveVisitIndexSQL = "CREATE UNIQUE INDEX IF NOT EXISTS idx_visits_one_active_per_visitor ON visits(visitor_id) WHERE is_active = 1"

// ApplyUTM copies utm_* query parameters of rawURL onto the visit.
func (v *Visit) ApplyUTM(rawURL string) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return
	}
	q := u.Query()
	v.UTMSource = q.Get("utm_source")
	v.UTMMedium = q.Get("utm_medium")
	v.UTMCampaign = q.Get("utm_campaign")
	v.UTMTerm = q.Get("utm_term")
	v.UTMContent = q.Get("utm_content")
}

// IdleSince reports whether the visit has seen no activity since cutoff.
func (v *Visit) IdleSince(cutoff time.Time) bool {
	return v.LastActivityAt.Before(cutoff)
}

// FindActive returns the visitor's active visit or gorm.ErrRecordNotFound.
func FindActive(db *gorm.DB, visitorID string) (*Visit, error) {
	var v Visit
	if err := db.Where("visitor_id = ? AND is_active = ?", visitorID, true).First(&v).Error; err != nil {
		return nil, err
	}
	return &v, nil
}

// FindLatest returns the visitor's most recently started visit, active or not.
func FindLatest(db *gorm.DB, visitorID string) (*Visit, error) {
	var v Visit
	if err := db.Where("visitor_id = ?", visitorID).Order("started_at DESC").First(&v).Error; err != nil {
		return nil, err
	}
	return &v, nil
}

// FindByID returns a visit by id.
func FindByID(db *gorm.DB, id string) (*Visit, error) {
	var v Visit
	if err := db.Where("id = ?", id).First(&v).Error; err != nil {
		return nil, err
	}
	return &v, nil
}

// Create inserts an active visit. A second active visit for the same visitor
// fails with a unique constraint error.
func Create(db *gorm.DB, v *Visit) error {
	return db.Create(v).Error
}

// Touch records activity on an active visit. last_activity_at only moves forward.
func Touch(db *gorm.DB, id string, at time.Time, page string) error {
	updates := map[string]any{
		"last_activity_at": gorm.Expr("CASE WHEN last_activity_at < ? THEN ? ELSE last_activity_at END", at, at),
	}
	if page != "" {
		updates["last_page"] = page
	}
	return db.Model(&Visit{}).
		Where("id = ? AND is_active = ?", id, true).
		UpdateColumns(updates).Error
}

// Closure describes how a visit ends.
type Closure struct {
	EndedAt  time.Time
	ExitPage string
}

// DurationSeconds is ended_at - started_at in whole seconds, never negative.
func DurationSeconds(startedAt, endedAt time.Time) int64 {
	d := int64(endedAt.Sub(startedAt) / time.Second)
	if d < 0 {
		return 0
	}
	return d
}

// Close transitions an active visit to closed. The update is conditional on
// the visit still being active, so when several closers race exactly one
// reports true.
func Close(db *gorm.DB, v *Visit, c Closure) (bool, error) {
	endedAt := c.EndedAt
	if endedAt.Before(v.StartedAt) {
		endedAt = v.StartedAt
	}
	duration := DurationSeconds(v.StartedAt, endedAt)

	updates := map[string]any{
		"is_active": false,
		"ended_at":  endedAt,
		"duration":  duration,
	}
	if c.ExitPage != "" {
		updates["exit_page"] = c.ExitPage
	}

	result := db.Model(&Visit{}).
		Where("id = ? AND is_active = ?", v.ID, true).
		UpdateColumns(updates)
	if result.Error != nil {
		return false, result.Error
	}
	if result.RowsAffected == 0 {
		return false, nil
	}

	v.IsActive = false
	v.EndedAt = &endedAt
	v.Duration = &duration
	if c.ExitPage != "" {
		exitPage := c.ExitPage
		v.ExitPage = &exitPage
	}
	return true, nil
}

// ListIdle returns active visits whose last activity is older than cutoff.
func ListIdle(db *gorm.DB, cutoff time.Time, limit int) ([]Visit, error) {
	var out []Visit
	err := db.Where("is_active = ? AND last_activity_at < ?", true, cutoff).
		Order("last_activity_at").
		Limit(limit).
		Find(&out).Error
	return out, err
}

// ListActive returns the most recently active visits.
func ListActive(db *gorm.DB, websiteID *uint, limit int) ([]Visit, error) {
	q := db.Where("is_active = ?", true).Order("last_activity_at DESC").Limit(limit)
	if websiteID != nil {
		q = q.Where("website_id = ?", *websiteID)
	}

	var out []Visit
	err := q.Find(&out).Error
	return out, err
}

// ListByVisitor returns a visitor's visits, newest first.
func ListByVisitor(db *gorm.DB, visitorID string) ([]Visit, error) {
	var out []Visit
	err := db.Where("visitor_id = ?", visitorID).Order("started_at DESC").Find(&out).Error
	return out, err
}
