package analytics

import (
	"gorm.io/gorm"

	"trackmaster/internal/visitors"
	"trackmaster/internal/visits"
)

// RecentVisitor is a visitor listing row with its display alias.
type RecentVisitor struct {
	visitors.Visitor
	Alias string `json:"alias"`
}

// GetRecentVisitors returns the most recently seen visitors.
func GetRecentVisitors(db *gorm.DB, websiteID *uint, limit int) ([]RecentVisitor, error) {
	if limit <= 0 {
		limit = DefaultTopLimit
	}

	list, err := visitors.ListRecent(db, websiteID, limit)
	if err != nil {
		return nil, wrap("recent visitors", err)
	}

	out := make([]RecentVisitor, len(list))
	for i, v := range list {
		out[i] = RecentVisitor{Visitor: v, Alias: visitors.Alias(v.ID)}
	}
	return out, nil
}

// GetActiveVisits returns the visits currently in progress, most recently
// active first.
func GetActiveVisits(db *gorm.DB, websiteID *uint, limit int) ([]visits.Visit, error) {
	if limit <= 0 {
		limit = DefaultTopLimit
	}
	out, err := visits.ListActive(db, websiteID, limit)
	if err != nil {
		return nil, wrap("active visits", err)
	}
	return out, nil
}
