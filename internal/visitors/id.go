package visitors

import (
	"github.com/google/uuid"
)

// NewID returns a fresh opaque visitor identifier. Clients replay it as a
// capability token, so it carries no information about the visitor.
func NewID() string {
	return uuid.NewString()
}

// IsWellFormedID reports whether s looks like an id issued by NewID.
// Malformed ids are treated the same as unknown ones and never hit the store.
func IsWellFormedID(s string) bool {
	if len(s) != 36 {
		return false
	}
	_, err := uuid.Parse(s)
	return err == nil
}
