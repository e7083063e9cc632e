// Package origin decides which callers may reach the inference server.
//
// An allow-list is an ordered list of patterns. The pattern "*://*/*" allows every
// origin; any other pattern is an origin prefix such as "https://app.example/*".
package origin

import (
	"errors"
	"net/url"
	"regexp"
	"strings"
)

// AllowAll is the wildcard pattern that authorizes every origin.
const AllowAll = "*://*/*"

// ErrInvalidPattern is returned when a pattern cannot be added to the allow-list.
var ErrInvalidPattern = errors.New("invalid origin pattern")

// AllowList is an ordered sequence of origin patterns.
type AllowList []string

// Authorize reports whether callerOrigin is allowed by list.
//
// A pattern matches when it is the wildcard, or when the pattern with its "*://*"
// and "/*" parts removed is contained in callerOrigin. An empty list, an empty
// origin, or a pattern that is empty after stripping never match.
func Authorize(callerOrigin string, list AllowList) bool {
	for _, pattern := range list {
		if pattern == AllowAll {
			return true
		}
	}
	if callerOrigin == "" {
		return false
	}
	for _, pattern := range list {
		stripped := strip(pattern)
		if stripped == "" {
			continue
		}
		if strings.Contains(callerOrigin, stripped) {
			return true
		}
	}
	return false
}

// Contains reports whether pattern is already in the list.
func (l AllowList) Contains(pattern string) bool {
	for _, p := range l {
		if p == pattern {
			return true
		}
	}
	return false
}

func strip(pattern string) string {
	s := strings.ReplaceAll(pattern, "*://*", "")
	s = strings.ReplaceAll(s, "/*", "")
	return strings.TrimSpace(s)
}

// Normalize reduces a URL to its scheme://host[:port] origin.
func Normalize(rawURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", err
	}
	if u.Scheme == "" || u.Host == "" {
		return "", errors.New("url has no scheme or host: " + rawURL)
	}
	return strings.ToLower(u.Scheme) + "://" + strings.ToLower(u.Host), nil
}

// PatternFor returns the allow-list pattern covering every page of origin.
func PatternFor(origin string) string {
	return strings.TrimSuffix(origin, "/") + "/*"
}

var (
	originPattern = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9+.-]*://[a-zA-Z0-9.-]+(:[0-9]+)?(/\*)?$`)
	domainPattern = regexp.MustCompile(`^(\*://)?([*a-zA-Z0-9.-]+)(/\*)?$`)
)

// ValidPattern reports whether p can be stored in an allow-list.
// Accepted forms: "*://*/*", "scheme://host[:port][/*]" and "[*://]host[/*]".
func ValidPattern(p string) bool {
	if p == AllowAll {
		return true
	}
	if strip(p) == "" {
		return false
	}
	return originPattern.MatchString(p) || domainPattern.MatchString(p)
}
