// Package tracking resolves tracking beacons into visitors and visits and
// records the pageviews and events they carry.
package tracking

import (
	"strings"
	"time"

	"trackmaster/internal/events"
)

// Beacon is one inbound tracking payload after transport decoding.
type Beacon struct {
	VisitorID     string
	TrackingCode  string
	URL           string
	PageTitle     string
	Referrer      string
	ScreenWidth   int
	ScreenHeight  int
	Language      string
	IPAddress     string
	UserAgent     string
	EventType     string
	EventCategory string
	EventAction   string
	EventLabel    string
	EventValue    string
	ComponentID   string
	Metadata      map[string]any
	ReceivedAt    time.Time
}

// Intent is what a beacon asks the pipeline to record.
type Intent int

const (
	IntentPageview Intent = iota
	IntentEvent
	IntentExit
)

func (i Intent) String() string {
	switch i {
	case IntentPageview:
		return "pageview"
	case IntentExit:
		return "exit"
	default:
		return "event"
	}
}

// Intent classifies the beacon by its event type. A missing event type is a
// pageview.
func (b *Beacon) Intent() Intent {
	switch strings.ToLower(strings.TrimSpace(b.EventType)) {
	case "", events.EventTypePageview:
		return IntentPageview
	case events.EventTypeExit:
		return IntentExit
	default:
		return IntentEvent
	}
}

// Validate checks the fields the beacon's intent requires.
func (b *Beacon) Validate() error {
	if b.Intent() == IntentPageview && strings.TrimSpace(b.URL) == "" {
		return newValidationError("url", "is required for pageviews")
	}
	return nil
}
