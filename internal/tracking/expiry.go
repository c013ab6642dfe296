package tracking

import (
	"context"
	"log/slog"
	"time"

	"trackmaster/internal/metrics"
	"trackmaster/internal/visits"
)

// DefaultSessionTimeout is the idle window after which an active visit is
// considered over.
const DefaultSessionTimeout = 30 * time.Minute

// Expirer closes visits, either on an explicit exit or after the idle window.
// The lazy path in Resolver and the periodic sweep share CloseIdle, and every
// close is a conditional update, so a visit is closed exactly once.
type Expirer struct {
	store   Store
	window  time.Duration
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func NewExpirer(store Store, window time.Duration, logger *slog.Logger, m *metrics.Metrics) *Expirer {
	if window <= 0 {
		window = DefaultSessionTimeout
	}
	return &Expirer{store: store, window: window, logger: logger, metrics: m}
}

func (e *Expirer) Window() time.Duration {
	return e.window
}

func (e *Expirer) cutoff(now time.Time) time.Time {
	return now.Add(-e.window)
}

// IsIdle reports whether v has been inactive for longer than the window at now.
func (e *Expirer) IsIdle(v *visits.Visit, now time.Time) bool {
	return v.IsActive && v.IdleSince(e.cutoff(now))
}

// CloseIdle closes v as of its last activity. It reports false when v was
// already closed or has seen activity within the window since it was read.
func (e *Expirer) CloseIdle(ctx context.Context, v *visits.Visit, now time.Time) (bool, error) {
	cutoff := e.cutoff(now)
	closed, err := e.store.CloseVisit(ctx, v, visits.Closure{
		EndedAt:  v.LastActivityAt,
		ExitPage: v.LastPage,
	}, &cutoff)
	if err != nil {
		return false, err
	}
	if closed {
		e.metrics.VisitsClosed(metrics.CloseReasonIdle, 1)
	}
	return closed, nil
}

// CloseOnExit ends v at the exit beacon's time. The exit page is pageURL, or
// the visit's last known page when the beacon carries none. The visit's last
// pageview is flagged as the exit and its time on page filled in.
func (e *Expirer) CloseOnExit(ctx context.Context, v *visits.Visit, at time.Time, pageURL string) (bool, error) {
	exitPage := pageURL
	if exitPage == "" {
		exitPage = v.LastPage
	}

	closed, err := e.store.CloseVisit(ctx, v, visits.Closure{EndedAt: at, ExitPage: exitPage}, nil)
	if err != nil || !closed {
		return closed, err
	}
	e.metrics.VisitsClosed(metrics.CloseReasonExit, 1)

	if _, err := e.store.MarkExitPageview(ctx, v.ID, at); err != nil {
		return true, err
	}
	return true, nil
}

// Sweep closes every visit idle at now, batch rows at a time, and returns how
// many it closed.
func (e *Expirer) Sweep(ctx context.Context, now time.Time, batch int) (int, error) {
	if batch <= 0 {
		batch = 500
	}
	cutoff := e.cutoff(now)

	total := 0
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}

		idle, err := e.store.ListIdleVisits(ctx, cutoff, batch)
		if err != nil {
			return total, err
		}

		closedInBatch := 0
		for i := range idle {
			v := &idle[i]
			closed, err := e.store.CloseVisit(ctx, v, visits.Closure{
				EndedAt:  v.LastActivityAt,
				ExitPage: v.LastPage,
			}, &cutoff)
			if err != nil {
				e.metrics.VisitsClosed(metrics.CloseReasonSweep, total+closedInBatch)
				return total + closedInBatch, err
			}
			if closed {
				closedInBatch++
			}
		}
		total += closedInBatch

		if len(idle) < batch || closedInBatch == 0 {
			break
		}
	}

	e.metrics.VisitsClosed(metrics.CloseReasonSweep, total)
	if total > 0 {
		e.logger.Info("Closed idle visits",
			slog.Int("count", total),
			slog.Duration("idle_window", e.window))
	}
	return total, nil
}
