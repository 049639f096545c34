package domain

import (
	"net/url"
	"strings"
	"unicode/utf8"
)

// NormalizeOrigin reduces an Origin header or allow-list entry to "scheme://host[:port]" in lower case.
// Values that do not parse as absolute URLs are returned trimmed and lower-cased.
func NormalizeOrigin(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.TrimRight(s, "/")
	u, err := url.Parse(s)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return s
	}
	return u.Scheme + "://" + u.Host
}

// TruncateUserAgent keeps at most 100 bytes of the user agent, cut on a rune boundary.
func TruncateUserAgent(ua string) string {
	const max = 100
	ua = strings.TrimSpace(ua)
	if len(ua) <= max {
		return ua
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(ua[cut]) {
		cut--
	}
	return ua[:cut]
}
