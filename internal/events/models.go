package events

import (
	"time"

	"gorm.io/datatypes"
)

// Pageview is one URL view within a visit. Rows are append-only except for
// the time_on_page and is_exit back-fill.
type Pageview struct {
	ID         uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	VisitID    string    `gorm:"index:idx_pageviews_visit_viewed;size:36;not null" json:"visit_id"`
	VisitorID  string    `gorm:"index;size:36;not null" json:"visitor_id"`
	WebsiteID  *uint     `gorm:"index" json:"website_id"`
	URL        string    `gorm:"type:text;not null" json:"url"`
	PageTitle  string    `json:"page_title"`
	ViewedAt   time.Time `gorm:"index:idx_pageviews_visit_viewed;not null" json:"viewed_at"`
	Referrer   string    `gorm:"type:text" json:"referrer"`
	IsEntrance bool      `gorm:"not null" json:"is_entrance"`
	IsExit     bool      `gorm:"not null" json:"is_exit"`
	TimeOnPage *int64    `json:"time_on_page"` // seconds
	CreatedAt  time.Time `json:"created_at"`
}

// Event is a discrete interaction: a click, a custom event or an exit.
type Event struct {
	ID            uint              `gorm:"primaryKey;autoIncrement" json:"id"`
	VisitID       string            `gorm:"index;size:36;not null" json:"visit_id"`
	VisitorID     string            `gorm:"index;size:36;not null" json:"visitor_id"`
	WebsiteID     *uint             `gorm:"index" json:"website_id"`
	EventType     string            `gorm:"index;not null" json:"event_type"`
	EventCategory string            `json:"event_category"`
	EventAction   string            `json:"event_action"`
	EventLabel    string            `gorm:"type:text" json:"event_label"`
	EventValue    string            `json:"event_value"`
	PageURL       string            `gorm:"type:text" json:"page_url"`
	ComponentID   string            `json:"component_id"`
	OccurredAt    time.Time         `gorm:"index;not null" json:"occurred_at"`
	Metadata      datatypes.JSONMap `gorm:"type:json" json:"metadata"`
	CreatedAt     time.Time         `json:"created_at"`
}
