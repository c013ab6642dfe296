package visitors_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"trackmaster/internal/visitors"
)

func TestAlias(t *testing.T) {
	t.Run("same id yields same alias", func(t *testing.T) {
		id := visitors.NewID()
		assert.Equal(t, visitors.Alias(id), visitors.Alias(id))
	})

	t.Run("alias format is 'Adjective Animal'", func(t *testing.T) {
		for i := 0; i < 50; i++ {
			assert.Regexp(t, `^[A-Z][a-z]+ [A-Z][a-z]+$`, visitors.Alias(visitors.NewID()))
		}
	})

	t.Run("aliases spread across many ids", func(t *testing.T) {
		seen := make(map[string]bool)
		for i := 0; i < 200; i++ {
			seen[visitors.Alias(visitors.NewID())] = true
		}
		assert.Greater(t, len(seen), 100)
	})
}
