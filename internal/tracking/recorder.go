package tracking

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"gorm.io/datatypes"

	"trackmaster/internal/events"
)

// PageviewInput is a pageview to append to a resolved visit.
type PageviewInput struct {
	Resolution *Resolution
	URL        string
	PageTitle  string
	Referrer   string
	ViewedAt   time.Time
}

// EventInput is a discrete event to append to a resolved visit.
type EventInput struct {
	Resolution *Resolution
	Type       string
	Category   string
	Action     string
	Label      string
	Value      string
	PageURL    string
	Component  string
	Metadata   map[string]any
	OccurredAt time.Time
}

// Recorder persists pageview and event facts.
type Recorder struct {
	store  Store
	logger *slog.Logger
}

func NewRecorder(store Store, logger *slog.Logger) *Recorder {
	return &Recorder{store: store, logger: logger}
}

// RecordPageview appends a pageview. The previous pageview of the visit gets
// its time on page and the website's pageview counter is incremented in the
// same write. The pageview is an entrance when its visit was opened by the
// same beacon.
func (r *Recorder) RecordPageview(ctx context.Context, in PageviewInput) (*events.Pageview, error) {
	if strings.TrimSpace(in.URL) == "" {
		return nil, newValidationError("url", "is required for pageviews")
	}

	res := in.Resolution
	p := &events.Pageview{
		VisitID:    res.VisitID,
		VisitorID:  res.VisitorID,
		WebsiteID:  res.WebsiteID,
		URL:        in.URL,
		PageTitle:  in.PageTitle,
		ViewedAt:   in.ViewedAt,
		Referrer:   in.Referrer,
		IsEntrance: res.IsNewVisit,
	}
	if err := r.store.InsertPageview(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// RecordEvent appends an event.
func (r *Recorder) RecordEvent(ctx context.Context, in EventInput) (*events.Event, error) {
	res := in.Resolution
	e := &events.Event{
		VisitID:       res.VisitID,
		VisitorID:     res.VisitorID,
		WebsiteID:     res.WebsiteID,
		EventType:     in.Type,
		EventCategory: in.Category,
		EventAction:   in.Action,
		EventLabel:    in.Label,
		EventValue:    in.Value,
		PageURL:       in.PageURL,
		ComponentID:   in.Component,
		OccurredAt:    in.OccurredAt,
	}
	if len(in.Metadata) > 0 {
		e.Metadata = datatypes.JSONMap(in.Metadata)
	}
	if err := r.store.InsertEvent(ctx, e); err != nil {
		return nil, err
	}
	return e, nil
}
