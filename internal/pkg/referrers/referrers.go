// Package referrers turns referrer URLs into the source names shown on visits.
package referrers

import (
	"net/url"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Direct is the source of visits without an external referrer.
const Direct = "Direct"

var knownSources = map[string][]string{
	"Google":         {"google.com", "google.co.uk", "google.de", "google.fr", "google.es", "google.it", "google.ca", "google.com.au", "google.co.jp", "google.com.br"},
	"Bing":           {"bing.com"},
	"DuckDuckGo":     {"duckduckgo.com"},
	"Yahoo":          {"yahoo.com"},
	"Baidu":          {"baidu.com"},
	"Yandex":         {"yandex.ru"},
	"Ecosia":         {"ecosia.org"},
	"Kagi":           {"kagi.com"},
	"X/Twitter":      {"x.com", "twitter.com", "t.co"},
	"Facebook":       {"facebook.com", "fb.com"},
	"Instagram":      {"instagram.com"},
	"LinkedIn":       {"linkedin.com", "lnkd.in"},
	"TikTok":         {"tiktok.com"},
	"Pinterest":      {"pinterest.com"},
	"Reddit":         {"reddit.com"},
	"Threads":        {"threads.net"},
	"Bluesky":        {"bsky.app"},
	"Mastodon":       {"mastodon.social"},
	"YouTube":        {"youtube.com", "youtu.be"},
	"Discord":        {"discord.com", "discordapp.com"},
	"Telegram":       {"telegram.org", "t.me"},
	"Slack":          {"slack.com"},
	"Hacker News":    {"news.ycombinator.com", "hn.algolia.com"},
	"Lobsters":       {"lobste.rs"},
	"Product Hunt":   {"producthunt.com"},
	"DEV Community":  {"dev.to"},
	"Medium":         {"medium.com"},
	"Substack":       {"substack.com"},
	"GitHub":         {"github.com"},
	"GitLab":         {"gitlab.com"},
	"Stack Overflow": {"stackoverflow.com"},
	"Gmail":          {"mail.google.com"},
	"Outlook":        {"outlook.live.com", "outlook.office.com"},
	"Proton Mail":    {"protonmail.com", "mail.proton.me"},
	"Bitly":          {"bit.ly"},
}

var hostToSource = func() map[string]string {
	m := make(map[string]string)
	for name, hosts := range knownSources {
		for _, host := range hosts {
			m[host] = name
		}
	}
	return m
}()

var titleCaser = cases.Title(language.English)

// FriendlyName returns a display name for a referrer hostname. Unknown hosts
// are returned without "www." and title-cased.
func FriendlyName(hostname string) string {
	hostname = strings.TrimPrefix(strings.ToLower(hostname), "www.")
	if hostname == "" {
		return Direct
	}

	if name, ok := hostToSource[hostname]; ok {
		return name
	}

	// Subdomains of a known source (l.facebook.com, old.reddit.com); the
	// longest matching host wins.
	best, bestLen := "", 0
	for host, name := range hostToSource {
		if len(host) > bestLen && strings.HasSuffix(hostname, "."+host) {
			best, bestLen = name, len(host)
		}
	}
	if best != "" {
		return best
	}

	return titleCaser.String(hostname)
}

// Source classifies a referrer URL relative to the page it led to. Empty,
// unparseable and same-host referrers are Direct.
func Source(referrer, pageURL string) string {
	referrer = strings.TrimSpace(referrer)
	if referrer == "" {
		return Direct
	}

	ref, err := url.Parse(referrer)
	if err != nil || ref.Hostname() == "" {
		return Direct
	}

	if page, err := url.Parse(pageURL); err == nil && page.Hostname() != "" {
		if strings.EqualFold(trimWWW(page.Hostname()), trimWWW(ref.Hostname())) {
			return Direct
		}
	}

	return FriendlyName(ref.Hostname())
}

func trimWWW(host string) string {
	return strings.TrimPrefix(strings.ToLower(host), "www.")
}
