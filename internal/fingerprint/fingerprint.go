// Package fingerprint derives a coarse client signature from a user agent and
// the key used to de-duplicate anonymous visitors.
package fingerprint

import (
	_ "embed"
	"encoding/hex"
	"log/slog"
	"net/netip"
	"strings"
	"sync"

	"go.elara.ws/pcre"
	"golang.org/x/crypto/blake2b"
	"gopkg.in/yaml.v3"
)

// Unknown is reported for any name field that could not be detected.
const Unknown = "Unknown"

// Device classes.
const (
	DeviceMobile  = "Mobile"
	DeviceTablet  = "Tablet"
	DeviceDesktop = "Desktop"
)

//go:embed rules.yml
var rulesFile []byte

// Signature is the structured result of parsing a user agent.
type Signature struct {
	Browser        string `json:"browser"`
	BrowserVersion string `json:"browser_version"`
	OS             string `json:"os"`
	OSVersion      string `json:"os_version"`
	DeviceType     string `json:"device_type"`
}

type rule struct {
	Name     string            `yaml:"name"`
	Tokens   []string          `yaml:"tokens"`
	Exclude  []string          `yaml:"exclude"`
	Version  string            `yaml:"version"`
	Versions map[string]string `yaml:"versions"`
}

type ruleSet struct {
	Browsers []rule `yaml:"browsers"`
	OSs      []rule `yaml:"oss"`
	Devices  struct {
		Mobile []string `yaml:"mobile"`
		Tablet []string `yaml:"tablet"`
	} `yaml:"devices"`
}

type regexCache struct {
	compiled map[string]*pcre.Regexp
	mutex    sync.RWMutex
}

func (rc *regexCache) get(pattern string) (*pcre.Regexp, error) {
	rc.mutex.RLock()
	if regex, exists := rc.compiled[pattern]; exists {
		rc.mutex.RUnlock()
		return regex, nil
	}
	rc.mutex.RUnlock()

	rc.mutex.Lock()
	defer rc.mutex.Unlock()

	if regex, exists := rc.compiled[pattern]; exists {
		return regex, nil
	}

	regex, err := pcre.Compile(pattern)
	if err != nil {
		return nil, err
	}
	rc.compiled[pattern] = regex
	return regex, nil
}

var (
	rules     ruleSet
	cache     = &regexCache{compiled: make(map[string]*pcre.Regexp)}
	rulesOnce sync.Once
)

func loadRules() *ruleSet {
	rulesOnce.Do(func() {
		if err := yaml.Unmarshal(rulesFile, &rules); err != nil {
			slog.Default().Error("Failed to parse fingerprint rules", slog.Any("error", err))
		}
	})
	return &rules
}

// Parse derives a Signature from a raw user agent. It never fails: fields that
// cannot be detected are reported as Unknown with an empty version.
func Parse(userAgent string) Signature {
	rs := loadRules()
	ua := strings.ToLower(strings.ToValidUTF8(userAgent, ""))

	sig := Signature{Browser: Unknown, OS: Unknown, DeviceType: DeviceDesktop}

	if r := firstMatch(rs.Browsers, ua); r != nil {
		sig.Browser = r.Name
		sig.BrowserVersion = extractVersion(r, ua)
	}

	if r := firstMatch(rs.OSs, ua); r != nil {
		sig.OS = r.Name
		sig.OSVersion = extractVersion(r, ua)
	}

	switch {
	case containsAny(ua, rs.Devices.Mobile):
		sig.DeviceType = DeviceMobile
	case containsAny(ua, rs.Devices.Tablet):
		sig.DeviceType = DeviceTablet
	}

	return sig
}

func firstMatch(candidates []rule, ua string) *rule {
	for i := range candidates {
		r := &candidates[i]
		if containsAny(ua, r.Tokens) && !containsAny(ua, r.Exclude) {
			return r
		}
	}
	return nil
}

func extractVersion(r *rule, ua string) string {
	if r.Version == "" {
		return ""
	}

	regex, err := cache.get(r.Version)
	if err != nil {
		return ""
	}

	matches := regex.FindStringSubmatch(ua)
	if len(matches) < 2 {
		return ""
	}

	version := strings.ReplaceAll(matches[1], "_", ".")
	if mapped, ok := r.Versions[version]; ok {
		return mapped
	}
	if len(r.Versions) > 0 {
		return ""
	}
	return version
}

func containsAny(s string, tokens []string) bool {
	for _, token := range tokens {
		if token != "" && strings.Contains(s, token) {
			return true
		}
	}
	return false
}

// DedupKey returns the fixed-width key identifying an anonymous visitor by
// (ip, user agent). IPs are canonicalized when parseable so that textual
// variants of one address collide.
func DedupKey(ip, userAgent string) string {
	ip = strings.TrimSpace(ip)
	if addr, err := netip.ParseAddr(ip); err == nil {
		ip = addr.Unmap().String()
	}

	h, _ := blake2b.New256(nil)
	h.Write([]byte(ip))
	h.Write([]byte{0})
	h.Write([]byte(strings.TrimSpace(userAgent)))
	return hex.EncodeToString(h.Sum(nil))
}
