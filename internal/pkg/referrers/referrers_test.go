package referrers

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFriendlyName(t *testing.T) {
	tests := []struct {
		hostname string
		expected string
	}{
		// Known referrers
		{"google.com", "Google"},
		{"news.ycombinator.com", "Hacker News"},
		{"x.com", "X/Twitter"},
		{"t.co", "X/Twitter"},
		{"reddit.com", "Reddit"},

		// With www prefix
		{"www.google.com", "Google"},

		// Subdomains of known referrers
		{"l.facebook.com", "Facebook"},
		{"old.reddit.com", "Reddit"},
		{"u1.mail.google.com", "Gmail"},

		// Unknown referrers
		{"example.com", "Example.com"},
		{"www.myblog.io", "Myblog.io"},

		// Case insensitive
		{"GOOGLE.COM", "Google"},

		{"", Direct},
	}

	for _, tt := range tests {
		t.Run(tt.hostname, func(t *testing.T) {
			assert.Equal(t, tt.expected, FriendlyName(tt.hostname))
		})
	}
}

func TestSource(t *testing.T) {
	tests := []struct {
		name     string
		referrer string
		page     string
		expected string
	}{
		{"empty referrer", "", "https://example.com/", Direct},
		{"garbage referrer", "::not a url", "https://example.com/", Direct},
		{"same host", "https://example.com/blog", "https://example.com/pricing", Direct},
		{"same host with www", "https://www.example.com/", "https://example.com/pricing", Direct},
		{"search engine", "https://www.google.com/search?q=x", "https://example.com/", "Google"},
		{"other site", "https://someblog.dev/post", "https://example.com/", "Someblog.dev"},
		{"relative page url", "https://github.com/org/repo", "/home", "GitHub"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Source(tt.referrer, tt.page))
		})
	}
}
