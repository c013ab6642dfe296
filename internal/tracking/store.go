package tracking

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/karloscodes/cartridge/sqlite"
	"gorm.io/gorm"

	"trackmaster/internal/events"
	"trackmaster/internal/visitors"
	"trackmaster/internal/visits"
	"trackmaster/internal/websites"
)

// Store is the persistence boundary of the ingestion pipeline. Lookups return
// ErrNotFound when nothing matches. Creates surface unique constraint
// violations unchanged so callers can re-read. Every other failure wraps
// ErrStoreUnavailable.
type Store interface {
	FindWebsiteByTrackingCode(ctx context.Context, code string) (*websites.Website, error)

	FindVisitorByID(ctx context.Context, id string) (*visitors.Visitor, error)
	FindVisitorByFingerprint(ctx context.Context, dedupKey string) (*visitors.Visitor, error)
	// CreateVisitor inserts v and bumps its website's visitor counter in one
	// transaction.
	CreateVisitor(ctx context.Context, v *visitors.Visitor) error
	TouchVisitor(ctx context.Context, id string, at time.Time) error

	FindActiveVisit(ctx context.Context, visitorID string) (*visits.Visit, error)
	FindLatestVisit(ctx context.Context, visitorID string) (*visits.Visit, error)
	// CreateVisit inserts v and adds one to its visitor's visit_count in one
	// transaction.
	CreateVisit(ctx context.Context, v *visits.Visit) error
	TouchVisit(ctx context.Context, visitID string, at time.Time, page string) error
	CloseVisit(ctx context.Context, v *visits.Visit, c visits.Closure, idleBefore *time.Time) (bool, error)
	ListIdleVisits(ctx context.Context, cutoff time.Time, limit int) ([]visits.Visit, error)

	// InsertPageview back-fills the previous pageview's time on page, appends
	// p and bumps the website's pageview counter in one transaction.
	InsertPageview(ctx context.Context, p *events.Pageview) error
	MarkExitPageview(ctx context.Context, visitID string, at time.Time) (*events.Pageview, error)
	InsertEvent(ctx context.Context, e *events.Event) error
}

// GormStore implements Store over the application database.
type GormStore struct {
	db     *gorm.DB
	logger *slog.Logger
}

// NewGormStore creates a Store backed by db.
func NewGormStore(db *gorm.DB, logger *slog.Logger) *GormStore {
	return &GormStore{db: db, logger: logger}
}

var _ Store = (*GormStore)(nil)

func (s *GormStore) conn(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx)
}

func (s *GormStore) write(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return sqlite.PerformWrite(s.logger, s.conn(ctx), fn)
}

func (s *GormStore) FindWebsiteByTrackingCode(ctx context.Context, code string) (*websites.Website, error) {
	w, err := websites.GetWebsiteByTrackingCode(s.conn(ctx), code)
	if err != nil {
		var notFound *websites.WebsiteNotFoundError
		if errors.As(err, &notFound) {
			return nil, ErrNotFound
		}
		return nil, storeError("find website", err)
	}
	return w, nil
}

func (s *GormStore) FindVisitorByID(ctx context.Context, id string) (*visitors.Visitor, error) {
	v, err := visitors.FindByID(s.conn(ctx), id)
	if err != nil {
		return nil, storeError("find visitor", err)
	}
	return v, nil
}

func (s *GormStore) FindVisitorByFingerprint(ctx context.Context, dedupKey string) (*visitors.Visitor, error) {
	v, err := visitors.FindByDedupKey(s.conn(ctx), dedupKey)
	if err != nil {
		return nil, storeError("find visitor by fingerprint", err)
	}
	return v, nil
}

func (s *GormStore) CreateVisitor(ctx context.Context, v *visitors.Visitor) error {
	return storeError("create visitor", s.write(ctx, func(tx *gorm.DB) error {
		if err := visitors.Create(tx, v); err != nil {
			return err
		}
		if v.WebsiteID == nil {
			return nil
		}
		return websites.IncrementCounter(tx, *v.WebsiteID, websites.CounterVisitors)
	}))
}

func (s *GormStore) TouchVisitor(ctx context.Context, id string, at time.Time) error {
	return storeError("touch visitor", s.write(ctx, func(tx *gorm.DB) error {
		return visitors.Touch(tx, id, at, 0)
	}))
}

func (s *GormStore) FindActiveVisit(ctx context.Context, visitorID string) (*visits.Visit, error) {
	v, err := visits.FindActive(s.conn(ctx), visitorID)
	if err != nil {
		return nil, storeError("find active visit", err)
	}
	return v, nil
}

func (s *GormStore) FindLatestVisit(ctx context.Context, visitorID string) (*visits.Visit, error) {
	v, err := visits.FindLatest(s.conn(ctx), visitorID)
	if err != nil {
		return nil, storeError("find latest visit", err)
	}
	return v, nil
}

func (s *GormStore) CreateVisit(ctx context.Context, v *visits.Visit) error {
	return storeError("create visit", s.write(ctx, func(tx *gorm.DB) error {
		if err := visits.Create(tx, v); err != nil {
			return err
		}
		return visitors.Touch(tx, v.VisitorID, v.StartedAt, 1)
	}))
}

func (s *GormStore) TouchVisit(ctx context.Context, visitID string, at time.Time, page string) error {
	return storeError("touch visit", s.write(ctx, func(tx *gorm.DB) error {
		return visits.Touch(tx, visitID, at, page)
	}))
}

func (s *GormStore) CloseVisit(ctx context.Context, v *visits.Visit, c visits.Closure, idleBefore *time.Time) (bool, error) {
	var closed bool
	err := s.write(ctx, func(tx *gorm.DB) error {
		if idleBefore != nil {
			tx = tx.Where("last_activity_at < ?", *idleBefore)
		}
		var err error
		closed, err = visits.Close(tx, v, c)
		return err
	})
	if err != nil {
		return false, storeError("close visit", err)
	}
	return closed, nil
}

func (s *GormStore) ListIdleVisits(ctx context.Context, cutoff time.Time, limit int) ([]visits.Visit, error) {
	out, err := visits.ListIdle(s.conn(ctx), cutoff, limit)
	if err != nil {
		return nil, storeError("list idle visits", err)
	}
	return out, nil
}

func (s *GormStore) InsertPageview(ctx context.Context, p *events.Pageview) error {
	return storeError("insert pageview", s.write(ctx, func(tx *gorm.DB) error {
		if err := events.InsertPageview(tx, p); err != nil {
			return err
		}
		if p.WebsiteID == nil {
			return nil
		}
		return websites.IncrementCounter(tx, *p.WebsiteID, websites.CounterPageviews)
	}))
}

func (s *GormStore) MarkExitPageview(ctx context.Context, visitID string, at time.Time) (*events.Pageview, error) {
	var p *events.Pageview
	err := s.write(ctx, func(tx *gorm.DB) error {
		var err error
		p, err = events.MarkExit(tx, visitID, at)
		return err
	})
	if err != nil {
		return nil, storeError("mark exit pageview", err)
	}
	return p, nil
}

func (s *GormStore) InsertEvent(ctx context.Context, e *events.Event) error {
	return storeError("insert event", s.write(ctx, func(tx *gorm.DB) error {
		return events.InsertEvent(tx, e)
	}))
}
