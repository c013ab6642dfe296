// Package analytics answers read-only questions about tracked traffic.
package analytics

import (
	"context"
	"fmt"

	"github.com/pariz/gountries"
	"golang.org/x/sync/errgroup"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gorm.io/gorm"

	"trackmaster/internal/events"
	"trackmaster/internal/visitors"
	"trackmaster/internal/visits"
)

// DefaultTopLimit is the number of rows in the top-N breakdowns.
const DefaultTopLimit = 10

// UnknownCountry labels visitors without a resolved country.
const UnknownCountry = "Unknown"

// MetricCountResult is one row of a breakdown.
type MetricCountResult struct {
	Name  string `json:"name"`
	Count int64  `json:"count"`
}

// VisitorStats summarizes traffic for one website, or for all of them.
type VisitorStats struct {
	TotalVisitors      int64               `json:"total_visitors"`
	ActiveVisitors     int64               `json:"active_visitors"`
	TotalPageviews     int64               `json:"total_pageviews"`
	TotalEvents        int64               `json:"total_events"`
	AvgVisitDuration   float64             `json:"avg_visit_duration"` // seconds, closed visits only
	TopCountries       []MetricCountResult `json:"top_countries"`
	TopReferrerSources []MetricCountResult `json:"top_referrer_sources"`
}

// StatsParams scopes a stats query. A nil WebsiteID covers every website.
type StatsParams struct {
	WebsiteID *uint
	TopLimit  int
}

func scope(q *gorm.DB, websiteID *uint) *gorm.DB {
	if websiteID == nil {
		return q
	}
	return q.Where("website_id = ?", *websiteID)
}

// GetVisitorStats runs the independent aggregate queries concurrently.
func GetVisitorStats(ctx context.Context, db *gorm.DB, params StatsParams) (*VisitorStats, error) {
	limit := params.TopLimit
	if limit <= 0 {
		limit = DefaultTopLimit
	}

	var stats VisitorStats
	g, gctx := errgroup.WithContext(ctx)
	conn := func() *gorm.DB { return db.WithContext(gctx) }

	g.Go(func() error {
		err := scope(conn().Model(&visitors.Visitor{}), params.WebsiteID).Count(&stats.TotalVisitors).Error
		return wrap("total visitors", err)
	})
	g.Go(func() error {
		err := scope(conn().Model(&visits.Visit{}), params.WebsiteID).
			Where("is_active = ?", true).
			Distinct("visitor_id").
			Count(&stats.ActiveVisitors).Error
		return wrap("active visitors", err)
	})
	g.Go(func() error {
		err := scope(conn().Model(&events.Pageview{}), params.WebsiteID).Count(&stats.TotalPageviews).Error
		return wrap("total pageviews", err)
	})
	g.Go(func() error {
		err := scope(conn().Model(&events.Event{}), params.WebsiteID).Count(&stats.TotalEvents).Error
		return wrap("total events", err)
	})
	g.Go(func() error {
		err := scope(conn().Model(&visits.Visit{}), params.WebsiteID).
			Where("duration IS NOT NULL").
			Select("COALESCE(AVG(duration), 0)").
			Scan(&stats.AvgVisitDuration).Error
		return wrap("average duration", err)
	})
	g.Go(func() error {
		var rows []MetricCountResult
		err := scope(conn().Model(&visitors.Visitor{}), params.WebsiteID).
			Select("country AS name, COUNT(*) AS count").
			Group("country").
			Order("count DESC, name ASC").
			Limit(limit).
			Scan(&rows).Error
		if err != nil {
			return wrap("top countries", err)
		}
		stats.TopCountries = convertCountryStats(rows)
		return nil
	})
	g.Go(func() error {
		var rows []MetricCountResult
		err := scope(conn().Model(&visits.Visit{}), params.WebsiteID).
			Select("referrer_source AS name, COUNT(*) AS count").
			Group("referrer_source").
			Order("count DESC, name ASC").
			Limit(limit).
			Scan(&rows).Error
		if err != nil {
			return wrap("top referrer sources", err)
		}
		stats.TopReferrerSources = rows
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &stats, nil
}

func wrap(what string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("error fetching %s: %w", what, err)
}

// convertCountryStats replaces ISO alpha-2 codes with common country names.
func convertCountryStats(items []MetricCountResult) []MetricCountResult {
	result := make([]MetricCountResult, 0, len(items))
	if len(items) == 0 {
		return result
	}

	caser := cases.Upper(language.AmericanEnglish)
	countries := gountries.New()

	for _, item := range items {
		name := item.Name
		switch country, err := countries.FindCountryByAlpha(item.Name); {
		case item.Name == "":
			name = UnknownCountry
		case err == nil:
			name = country.Name.Common
		default:
			name = caser.String(item.Name)
		}
		result = append(result, MetricCountResult{Name: name, Count: item.Count})
	}
	return result
}
