package tracking

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"trackmaster/internal/events"
	"trackmaster/internal/metrics"
	"trackmaster/internal/pkg/geoip"
)

// Result is what a successfully processed beacon produced.
type Result struct {
	VisitorID    string
	VisitID      string
	IsNewVisitor bool
	IsNewVisit   bool
	Pageview     *events.Pageview
	Event        *events.Event
	Closed       bool
}

// Tracker runs a beacon through identity resolution and recording.
type Tracker struct {
	resolver *Resolver
	recorder *Recorder
	expirer  *Expirer
	logger   *slog.Logger
	metrics  *metrics.Metrics
	now      func() time.Time
}

// Options configure a Tracker. Zero values fall back to defaults.
type Options struct {
	SessionTimeout time.Duration
	Locator        geoip.Locator
	Metrics        *metrics.Metrics
	Clock          func() time.Time
}

func NewTracker(store Store, logger *slog.Logger, opts Options) *Tracker {
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	expirer := NewExpirer(store, opts.SessionTimeout, logger, opts.Metrics)
	return &Tracker{
		resolver: NewResolver(store, expirer, opts.Locator, logger, opts.Metrics),
		recorder: NewRecorder(store, logger),
		expirer:  expirer,
		logger:   logger,
		metrics:  opts.Metrics,
		now:      clock,
	}
}

// Expirer returns the expirer shared with the resolver, for the sweep job.
func (t *Tracker) Expirer() *Expirer {
	return t.expirer
}

// Now returns the tracker's current time.
func (t *Tracker) Now() time.Time {
	return t.now().UTC()
}

// Track validates b, resolves its visitor and visit, and records what its
// intent asks for. Validation failures are returned before anything is
// written.
func (t *Tracker) Track(ctx context.Context, b *Beacon) (*Result, error) {
	start := time.Now()
	intent := b.Intent()

	result, err := t.track(ctx, b, intent)

	outcome := metrics.OutcomeRecorded
	switch {
	case IsValidationError(err):
		outcome = metrics.OutcomeInvalid
	case err != nil:
		outcome = metrics.OutcomeFailed
	}
	t.metrics.ObserveBeacon(intent.String(), outcome, time.Since(start))

	return result, err
}

func (t *Tracker) track(ctx context.Context, b *Beacon, intent Intent) (*Result, error) {
	if err := b.Validate(); err != nil {
		return nil, err
	}

	now := b.ReceivedAt.UTC()
	if b.ReceivedAt.IsZero() {
		now = t.Now()
	}

	res, err := t.resolver.Resolve(ctx, b, now)
	if err != nil {
		return nil, err
	}

	result := &Result{
		VisitorID:    res.VisitorID,
		VisitID:      res.VisitID,
		IsNewVisitor: res.IsNewVisitor,
		IsNewVisit:   res.IsNewVisit,
	}

	switch intent {
	case IntentPageview:
		result.Pageview, err = t.recorder.RecordPageview(ctx, PageviewInput{
			Resolution: res,
			URL:        b.URL,
			PageTitle:  b.PageTitle,
			Referrer:   b.Referrer,
			ViewedAt:   now,
		})
		if err != nil {
			return nil, err
		}

	case IntentExit:
		result.Event, err = t.recorder.RecordEvent(ctx, eventInput(res, b, now))
		if err != nil {
			return nil, err
		}
		result.Closed, err = t.expirer.CloseOnExit(ctx, res.Visit, now, b.URL)
		if err != nil {
			return nil, err
		}

	default:
		result.Event, err = t.recorder.RecordEvent(ctx, eventInput(res, b, now))
		if err != nil {
			return nil, err
		}
	}

	t.logger.Debug("Beacon recorded",
		slog.String("intent", intent.String()),
		slog.String("visitor_id", result.VisitorID),
		slog.String("visit_id", result.VisitID),
		slog.Bool("new_visitor", result.IsNewVisitor),
		slog.Bool("new_visit", result.IsNewVisit))

	return result, nil
}

func eventInput(res *Resolution, b *Beacon, now time.Time) EventInput {
	eventType := strings.ToLower(strings.TrimSpace(b.EventType))
	category := b.EventCategory
	action := b.EventAction
	if eventType == events.EventTypeExit {
		if category == "" {
			category = events.CategoryNavigation
		}
		if action == "" {
			action = events.ActionExit
		}
	}

	return EventInput{
		Resolution: res,
		Type:       eventType,
		Category:   category,
		Action:     action,
		Label:      b.EventLabel,
		Value:      b.EventValue,
		PageURL:    b.URL,
		Component:  b.ComponentID,
		Metadata:   b.Metadata,
		OccurredAt: now,
	}
}
