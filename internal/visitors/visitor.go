package visitors

import (
	"time"

	"gorm.io/gorm"
)

// Visitor is a long-lived identity for a browser/device pairing.
type Visitor struct {
	ID             string    `gorm:"primaryKey;size:36" json:"id"`
	DedupKey       string    `gorm:"uniqueIndex;size:64;not null" json:"-"`
	FirstVisitAt   time.Time `gorm:"not null" json:"first_visit_at"`
	LastVisitAt    time.Time `gorm:"index;not null" json:"last_visit_at"`
	VisitCount     int64     `gorm:"not null" json:"visit_count"`
	IPAddress      string    `json:"ip_address"`
	UserAgent      string    `gorm:"type:text" json:"user_agent"`
	Browser        string    `json:"browser"`
	BrowserVersion string    `json:"browser_version"`
	OS             string    `json:"os"`
	OSVersion      string    `json:"os_version"`
	DeviceType     string    `json:"device_type"`
	ScreenWidth    int       `json:"screen_width"`
	ScreenHeight   int       `json:"screen_height"`
	Language       string    `json:"language"`
	Referrer       string    `gorm:"type:text" json:"referrer"`
	Country        string    `gorm:"index" json:"country"`
	City           string    `json:"city"`
	Region         string    `json:"region"`
	Timezone       string    `json:"timezone"`
	WebsiteID      *uint     `gorm:"index" json:"website_id"`
	UserID         *string   `gorm:"index" json:"user_id"`
	CreatedAt      time.Time `json:"created_at"`
}

// FindByID returns the visitor with the given id or gorm.ErrRecordNotFound.
func FindByID(db *gorm.DB, id string) (*Visitor, error) {
	var v Visitor
	if err := db.Where("id = ?", id).First(&v).Error; err != nil {
		return nil, err
	}
	return &v, nil
}

// FindByDedupKey returns the visitor registered under an (ip, user agent) key.
func FindByDedupKey(db *gorm.DB, key string) (*Visitor, error) {
	var v Visitor
	if err := db.Where("dedup_key = ?", key).First(&v).Error; err != nil {
		return nil, err
	}
	return &v, nil
}

// Create inserts a new visitor. A duplicate dedup key surfaces as a unique
// constraint error from the store.
func Create(db *gorm.DB, v *Visitor) error {
	return db.Create(v).Error
}

// Touch moves last_visit_at forward to at (never backwards) and adds
// visitIncrement to visit_count in a single statement.
func Touch(db *gorm.DB, id string, at time.Time, visitIncrement int) error {
	return db.Model(&Visitor{}).
		Where("id = ?", id).
		UpdateColumns(map[string]any{
			"last_visit_at": gorm.Expr("CASE WHEN last_visit_at < ? THEN ? ELSE last_visit_at END", at, at),
			"visit_count":   gorm.Expr("visit_count + ?", visitIncrement),
		}).Error
}

// ListRecent returns the most recently seen visitors.
func ListRecent(db *gorm.DB, websiteID *uint, limit int) ([]Visitor, error) {
	q := db.Order("last_visit_at DESC").Limit(limit)
	if websiteID != nil {
		q = q.Where("website_id = ?", *websiteID)
	}

	var out []Visitor
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
