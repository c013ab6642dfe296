package tracking

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/language"

	"trackmaster/internal/fingerprint"
	"trackmaster/internal/metrics"
	"trackmaster/internal/pkg/geoip"
	"trackmaster/internal/pkg/referrers"
	"trackmaster/internal/visitors"
	"trackmaster/internal/visits"
	"trackmaster/internal/websites"
)

// Resolution is the visitor and visit a beacon belongs to.
type Resolution struct {
	VisitorID    string
	VisitID      string
	WebsiteID    *uint
	IsNewVisitor bool
	IsNewVisit   bool
	Visitor      *visitors.Visitor
	Visit        *visits.Visit
}

// Resolver maps beacons onto visitors and visits, creating them as needed.
type Resolver struct {
	store   Store
	expirer *Expirer
	geo     geoip.Locator
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func NewResolver(store Store, expirer *Expirer, geo geoip.Locator, logger *slog.Logger, m *metrics.Metrics) *Resolver {
	return &Resolver{store: store, expirer: expirer, geo: geo, logger: logger, metrics: m}
}

// Resolve finds or creates the visitor and the active visit for b at now.
func (r *Resolver) Resolve(ctx context.Context, b *Beacon, now time.Time) (*Resolution, error) {
	website, err := r.resolveWebsite(ctx, b.TrackingCode)
	if err != nil {
		return nil, err
	}

	res := &Resolution{}
	if website != nil {
		res.WebsiteID = &website.ID
	}

	visitor, created, err := r.resolveVisitor(ctx, b, res.WebsiteID, now)
	if err != nil {
		return nil, err
	}
	res.Visitor = visitor
	res.VisitorID = visitor.ID
	res.IsNewVisitor = created

	visit, opened, err := r.resolveVisit(ctx, b, visitor, res.WebsiteID, now)
	if err != nil {
		return nil, err
	}
	res.Visit = visit
	res.VisitID = visit.ID
	res.IsNewVisit = opened

	// Opening a visit already moved the visitor forward in the same write.
	if opened {
		visitor.VisitCount++
		if now.After(visitor.LastVisitAt) {
			visitor.LastVisitAt = now
		}
	} else if err := r.store.TouchVisitor(ctx, visitor.ID, now); err != nil {
		return nil, err
	}

	return res, nil
}

// resolveWebsite returns nil for an empty or unknown tracking code.
func (r *Resolver) resolveWebsite(ctx context.Context, code string) (*websites.Website, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, nil
	}
	w, err := r.store.FindWebsiteByTrackingCode(ctx, code)
	if errors.Is(err, ErrNotFound) {
		r.logger.Debug("Unknown tracking code", slog.String("tracking_code", code))
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return w, nil
}

func (r *Resolver) resolveVisitor(ctx context.Context, b *Beacon, websiteID *uint, now time.Time) (*visitors.Visitor, bool, error) {
	if id := strings.TrimSpace(b.VisitorID); visitors.IsWellFormedID(id) {
		v, err := r.store.FindVisitorByID(ctx, id)
		if err == nil {
			return v, false, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, false, err
		}
		r.logger.Debug("Supplied visitor id does not exist, falling back to fingerprint",
			slog.String("visitor_id", id))
	}

	key := fingerprint.DedupKey(b.IPAddress, b.UserAgent)
	v, err := r.store.FindVisitorByFingerprint(ctx, key)
	if err == nil {
		return v, false, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, false, err
	}

	v = r.newVisitor(b, key, websiteID, now)
	err = r.store.CreateVisitor(ctx, v)
	if err == nil {
		r.metrics.VisitorCreated()
		return v, true, nil
	}
	if !isUniqueViolation(err) {
		return nil, false, err
	}

	// Another request created the same fingerprint first.
	winner, err := r.store.FindVisitorByFingerprint(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return nil, false, ErrConflict
	}
	if err != nil {
		return nil, false, err
	}
	return winner, false, nil
}

func (r *Resolver) newVisitor(b *Beacon, key string, websiteID *uint, now time.Time) *visitors.Visitor {
	sig := fingerprint.Parse(b.UserAgent)
	loc := geoip.Location{}
	if r.geo != nil {
		loc = r.geo.Lookup(b.IPAddress)
	}

	return &visitors.Visitor{
		ID:             visitors.NewID(),
		DedupKey:       key,
		FirstVisitAt:   now,
		LastVisitAt:    now,
		IPAddress:      strings.TrimSpace(b.IPAddress),
		UserAgent:      strings.TrimSpace(b.UserAgent),
		Browser:        sig.Browser,
		BrowserVersion: sig.BrowserVersion,
		OS:             sig.OS,
		OSVersion:      sig.OSVersion,
		DeviceType:     sig.DeviceType,
		ScreenWidth:    b.ScreenWidth,
		ScreenHeight:   b.ScreenHeight,
		Language:       normalizeLanguage(b.Language),
		Referrer:       b.Referrer,
		Country:        loc.Country,
		City:           loc.City,
		Region:         loc.Region,
		Timezone:       loc.Timezone,
		WebsiteID:      websiteID,
	}
}

func (r *Resolver) resolveVisit(ctx context.Context, b *Beacon, visitor *visitors.Visitor, websiteID *uint, now time.Time) (*visits.Visit, bool, error) {
	active, err := r.store.FindActiveVisit(ctx, visitor.ID)
	switch {
	case errors.Is(err, ErrNotFound):
		active = nil
	case err != nil:
		return nil, false, err
	}

	var expired *visits.Visit
	if active != nil && r.expirer.IsIdle(active, now) {
		expired = active
		if _, err := r.expirer.CloseIdle(ctx, active, now); err != nil {
			return nil, false, err
		}
		// Whether or not this call closed it, read again: a concurrent
		// request may have touched it or already opened the next visit.
		active, err = r.store.FindActiveVisit(ctx, visitor.ID)
		switch {
		case errors.Is(err, ErrNotFound):
			active = nil
		case err != nil:
			return nil, false, err
		case r.expirer.IsIdle(active, now):
			return nil, false, ErrConflict
		}
	}

	if active != nil {
		if err := r.store.TouchVisit(ctx, active.ID, now, b.URL); err != nil {
			return nil, false, err
		}
		return active, false, nil
	}

	// An exit ends the visit it belongs to and never starts one. Only a
	// visitor with no visit at all gets a new one.
	if b.Intent() == IntentExit {
		if expired != nil {
			return expired, false, nil
		}
		latest, err := r.store.FindLatestVisit(ctx, visitor.ID)
		if err == nil {
			return latest, false, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, false, err
		}
	}

	v := &visits.Visit{
		ID:             uuid.NewString(),
		VisitorID:      visitor.ID,
		WebsiteID:      websiteID,
		StartedAt:      now,
		IsActive:       true,
		EntryPage:      b.URL,
		LastPage:       b.URL,
		LastActivityAt: now,
		Referrer:       b.Referrer,
		ReferrerSource: referrers.Source(b.Referrer, b.URL),
	}
	v.ApplyUTM(b.URL)

	err = r.store.CreateVisit(ctx, v)
	if err == nil {
		r.metrics.VisitOpened()
		return v, true, nil
	}
	if !isUniqueViolation(err) {
		return nil, false, err
	}

	winner, err := r.store.FindActiveVisit(ctx, visitor.ID)
	if errors.Is(err, ErrNotFound) {
		return nil, false, ErrConflict
	}
	if err != nil {
		return nil, false, err
	}
	if err := r.store.TouchVisit(ctx, winner.ID, now, b.URL); err != nil {
		return nil, false, err
	}
	return winner, false, nil
}

// normalizeLanguage canonicalizes a BCP 47 tag such as "en_us" to "en-US".
// Unparseable values are kept as sent.
func normalizeLanguage(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	tag, err := language.Parse(strings.ReplaceAll(raw, "_", "-"))
	if err != nil {
		return raw
	}
	return tag.String()
}
