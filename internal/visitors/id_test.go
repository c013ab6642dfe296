package visitors

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewID(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := NewID()
		assert.True(t, IsWellFormedID(id))
		assert.False(t, seen[id], "ids must not repeat")
		seen[id] = true
	}
}

func TestIsWellFormedID(t *testing.T) {
	tests := []struct {
		id   string
		want bool
	}{
		{"6f1c2a36-9a55-4d6f-9d0e-0a4c1f8b2e11", true},
		{"", false},
		{"not-a-uuid", false},
		{"6f1c2a369a554d6f9d0e0a4c1f8b2e11", false},
		{"6f1c2a36-9a55-4d6f-9d0e-0a4c1f8b2e1z", false},
		{"'; DROP TABLE visitors; --", false},
	}

	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			assert.Equal(t, tt.want, IsWellFormedID(tt.id))
		})
	}
}
