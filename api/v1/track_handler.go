package v1

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/karloscodes/cartridge"

	"trackmaster/internal/config"
	"trackmaster/internal/metrics"
	"trackmaster/internal/pkg/geoip"
	"trackmaster/internal/tracking"
)

const (
	msgTrackingAvailable = "Tracking API is available"
	errTrackingFailed    = "Tracking temporarily unavailable"
	errInvalidPayload    = "Invalid tracking payload"
)

// TrackParams is the JSON body of a tracking beacon.
type TrackParams struct {
	Ping          bool           `json:"ping"`
	VisitorID     string         `json:"visitor_id"`
	TrackingCode  string         `json:"tracking_code"`
	URL           string         `json:"url"`
	PageTitle     string         `json:"page_title"`
	Referrer      string         `json:"referrer"`
	ScreenWidth   float64        `json:"screen_width"`
	ScreenHeight  float64        `json:"screen_height"`
	Language      string         `json:"language"`
	IPAddress     string         `json:"ip_address"`
	UserAgent     string         `json:"user_agent"`
	EventType     string         `json:"event_type"`
	EventCategory string         `json:"event_category"`
	EventAction   string         `json:"event_action"`
	EventLabel    string         `json:"event_label"`
	EventValue    EventValue     `json:"event_value"`
	ComponentID   string         `json:"component_id"`
	Metadata      map[string]any `json:"metadata"`
}

// EventValue accepts a JSON string, number or boolean and keeps its text.
type EventValue string

func (v *EventValue) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*v = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = EventValue(s)
		return nil
	}
	if _, err := strconv.ParseFloat(string(data), 64); err == nil {
		*v = EventValue(data)
		return nil
	}
	if b, err := strconv.ParseBool(string(data)); err == nil {
		*v = EventValue(strconv.FormatBool(b))
		return nil
	}
	// Objects and arrays are kept as compact JSON.
	var buf bytes.Buffer
	if err := json.Compact(&buf, data); err != nil {
		return err
	}
	*v = EventValue(buf.String())
	return nil
}

func (p *TrackParams) beacon(c *fiber.Ctx, logger *slog.Logger) *tracking.Beacon {
	ip := strings.TrimSpace(p.IPAddress)
	if ip == "" {
		ip = clientIP(c, logger)
	}

	return &tracking.Beacon{
		VisitorID:     p.VisitorID,
		TrackingCode:  p.TrackingCode,
		URL:           p.URL,
		PageTitle:     p.PageTitle,
		Referrer:      p.Referrer,
		ScreenWidth:   int(p.ScreenWidth),
		ScreenHeight:  int(p.ScreenHeight),
		Language:      p.Language,
		IPAddress:     ip,
		UserAgent:     userAgent(c, p.UserAgent),
		EventType:     p.EventType,
		EventCategory: p.EventCategory,
		EventAction:   p.EventAction,
		EventLabel:    p.EventLabel,
		EventValue:    string(p.EventValue),
		ComponentID:   p.ComponentID,
		Metadata:      p.Metadata,
	}
}

func newTracker(ctx *cartridge.Context) *tracking.Tracker {
	store := tracking.NewGormStore(ctx.DBManager.GetConnection(), ctx.Logger)
	return tracking.NewTracker(store, ctx.Logger, tracking.Options{
		SessionTimeout: config.GetConfig().GetSessionTimeout(),
		Locator:        geoip.Default(),
		Metrics:        metrics.Default(),
	})
}

// CreateTrackAction ingests one beacon. The body is parsed as JSON whatever
// the content type, since sendBeacon posts text/plain. Every failure is
// answered with 200 and the fallback shape so the embedding page never sees
// an error.
func CreateTrackAction(ctx *cartridge.Context) error {
	var params TrackParams
	if err := json.Unmarshal(ctx.Body(), &params); err != nil {
		ctx.Logger.Debug("Failed to parse tracking payload", slog.Any("error", err))
		return fallbackResponse(ctx, errInvalidPayload)
	}

	if params.Ping {
		return ctx.Status(http.StatusOK).JSON(fiber.Map{
			"success": true,
			"message": msgTrackingAvailable,
		})
	}

	beacon := params.beacon(ctx.Ctx, ctx.Logger)
	result, err := newTracker(ctx).Track(ctx.UserContext(), beacon)
	if err != nil {
		if tracking.IsValidationError(err) {
			ctx.Logger.Debug("Rejected tracking beacon", slog.Any("error", err))
			return fallbackResponse(ctx, err.Error())
		}
		ctx.Logger.Error("Failed to track beacon",
			slog.String("event_type", beacon.EventType),
			slog.String("tracking_code", beacon.TrackingCode),
			slog.Any("error", err))
		return fallbackResponse(ctx, errTrackingFailed)
	}

	return ctx.Status(http.StatusOK).JSON(fiber.Map{
		"success":    true,
		"visitor_id": result.VisitorID,
		"visit_id":   result.VisitID,
	})
}

// fallbackResponse answers a failed beacon with a fresh visitor id the client
// may keep using.
func fallbackResponse(ctx *cartridge.Context, message string) error {
	metrics.Default().Fallback()
	return ctx.Status(http.StatusOK).JSON(fiber.Map{
		"success":    false,
		"error":      message,
		"fallback":   true,
		"visitor_id": uuid.NewString(),
	})
}
