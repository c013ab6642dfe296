package websites

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
)

// WebsiteNotFoundError represents an error when a website is not found
type WebsiteNotFoundError struct {
	TrackingCode string
}

func (e *WebsiteNotFoundError) Error() string {
	return fmt.Sprintf("website not found for tracking code: %s", e.TrackingCode)
}

// NewWebsiteNotFoundError creates a new WebsiteNotFoundError
func NewWebsiteNotFoundError(trackingCode string) *WebsiteNotFoundError {
	return &WebsiteNotFoundError{TrackingCode: trackingCode}
}

// Website represents a tracked website
type Website struct {
	ID            uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	Name          string    `gorm:"not null;default:''" json:"name"`
	Domain        string    `gorm:"index;not null" json:"domain"`              // Base domain, e.g., "example.com"
	TrackingCode  string    `gorm:"uniqueIndex;not null" json:"tracking_code"` // Routes anonymous beacons to this website
	VisitorCount  int64     `gorm:"not null;default:0" json:"visitor_count"`
	PageviewCount int64     `gorm:"not null;default:0" json:"pageview_count"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Counter names a denormalized counter column on websites.
type Counter string

const (
	CounterVisitors  Counter = "visitor_count"
	CounterPageviews Counter = "pageview_count"
)

// GetWebsiteByTrackingCode resolves a tracking code to its website.
// Returns a *WebsiteNotFoundError when no website carries the code.
func GetWebsiteByTrackingCode(db *gorm.DB, trackingCode string) (*Website, error) {
	var website Website
	if err := db.Where("tracking_code = ?", trackingCode).First(&website).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, NewWebsiteNotFoundError(trackingCode)
		}
		return nil, fmt.Errorf("unexpected error querying website: %w", err)
	}
	return &website, nil
}

// IncrementCounter atomically adds one to the given counter.
// The increment happens in SQL so concurrent writers never lose updates.
func IncrementCounter(db *gorm.DB, websiteID uint, counter Counter) error {
	switch counter {
	case CounterVisitors, CounterPageviews:
	default:
		return fmt.Errorf("unknown website counter: %s", counter)
	}

	result := db.Model(&Website{}).
		Where("id = ?", websiteID).
		UpdateColumn(string(counter), gorm.Expr(string(counter)+" + 1"))
	if result.Error != nil {
		return fmt.Errorf("failed to increment %s: %w", counter, result.Error)
	}
	return nil
}

// BaseDomainForHost returns the canonical base domain for a hostname, preserving localhost
// semantics while collapsing known subdomain patterns (e.g. foo.example.com -> example.com).
func BaseDomainForHost(host string) string {
	return stripSubdomains(host)
}

var ccTLDPatterns = map[string]bool{
	"co.uk":  true,
	"co.jp":  true,
	"co.za":  true,
	"co.nz":  true,
	"co.in":  true,
	"com.au": true,
	"com.br": true,
	"org.uk": true,
	"gov.uk": true,
	"edu.au": true,
	"ac.uk":  true,
	"ne.jp":  true,
	"or.jp":  true,
}

// stripSubdomains extracts the base domain from a hostname
func stripSubdomains(host string) string {
	host = strings.TrimSuffix(strings.ToLower(strings.TrimSpace(host)), ".")
	parts := strings.Split(host, ".")
	if len(parts) < 2 {
		return host
	}

	last := parts[len(parts)-1]
	if last == "localhost" {
		return "localhost"
	}

	secondLast := parts[len(parts)-2]
	if len(parts) > 2 && ccTLDPatterns[secondLast+"."+last] {
		return parts[len(parts)-3] + "." + secondLast + "." + last
	}

	return secondLast + "." + last
}

// normalizeDomain accepts either a bare host or a URL and returns its base domain.
func normalizeDomain(domain string) string {
	domain = strings.TrimSpace(domain)
	if i := strings.Index(domain, "://"); i >= 0 {
		domain = domain[i+3:]
	}
	if i := strings.IndexAny(domain, "/?#"); i >= 0 {
		domain = domain[:i]
	}
	if i := strings.LastIndex(domain, ":"); i >= 0 && !strings.Contains(domain[i:], "]") {
		domain = domain[:i]
	}
	return BaseDomainForHost(domain)
}

// GetAllWebsites retrieves all websites
func GetAllWebsites(db *gorm.DB) ([]Website, error) {
	var websites []Website
	if err := db.Order("id").Find(&websites).Error; err != nil {
		return nil, fmt.Errorf("failed to get websites: %w", err)
	}
	return websites, nil
}

// GetWebsiteByID retrieves a website by its ID
func GetWebsiteByID(db *gorm.DB, id uint) (Website, error) {
	var website Website
	if err := db.First(&website, id).Error; err != nil {
		return Website{}, err
	}
	return website, nil
}

// CreateWebsite stores a website, normalizing its domain and assigning a
// tracking code when none is set.
func CreateWebsite(db *gorm.DB, website *Website) error {
	if strings.TrimSpace(website.Domain) == "" {
		return errors.New("website domain is required")
	}

	website.Domain = normalizeDomain(website.Domain)
	if website.Name == "" {
		website.Name = website.Domain
	}
	if website.TrackingCode == "" {
		code, err := GenerateTrackingCode()
		if err != nil {
			return err
		}
		website.TrackingCode = code
	}

	now := time.Now().UTC()
	website.CreatedAt = now
	website.UpdatedAt = now

	return db.Create(website).Error
}

// DeleteWebsite deletes a website by its ID
func DeleteWebsite(db *gorm.DB, id uint) error {
	result := db.Delete(&Website{}, id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
