package websites

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strconv"
	"time"

	"gorm.io/gorm"
)

const trackingCodeAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

// GenerateTrackingCode returns a new opaque tracking code: a base36 timestamp
// followed by random base36 characters.
func GenerateTrackingCode() (string, error) {
	code := strconv.FormatInt(time.Now().UnixMilli(), 36)

	max := big.NewInt(int64(len(trackingCodeAlphabet)))
	suffix := make([]byte, 12)
	for i := range suffix {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("failed to generate tracking code: %w", err)
		}
		suffix[i] = trackingCodeAlphabet[n.Int64()]
	}

	return code + string(suffix), nil
}

// RotateTrackingCode replaces a website's tracking code. Scripts embedded with
// the old code stop being attributed to the website.
func RotateTrackingCode(db *gorm.DB, websiteID uint) (string, error) {
	code, err := GenerateTrackingCode()
	if err != nil {
		return "", err
	}

	result := db.Model(&Website{}).
		Where("id = ?", websiteID).
		Updates(map[string]any{"tracking_code": code, "updated_at": time.Now().UTC()})
	if result.Error != nil {
		return "", result.Error
	}
	if result.RowsAffected == 0 {
		return "", gorm.ErrRecordNotFound
	}
	return code, nil
}
