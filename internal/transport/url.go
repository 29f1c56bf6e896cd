package transport

import (
	"net/url"
	"strconv"
	"strings"
	"time"
)

// LocalScheme addresses recordings stored under the local storage directory,
// e.g. local://my-clip.
const LocalScheme = "local"

// NormalizeBase returns base with a scheme and without a trailing slash.
// Protocol-relative ("//host/path") and bare ("host/path") bases use https.
func NormalizeBase(base string) string {
	base = strings.TrimSpace(base)
	switch {
	case strings.HasPrefix(base, "//"):
		base = "https:" + base
	case !strings.Contains(base, "://"):
		base = "https://" + base
	}
	return strings.TrimRight(base, "/")
}

// Join resolves an asset path against a session base URL. Absolute asset
// URLs are returned unchanged.
func Join(base, path string) string {
	if strings.Contains(path, "://") {
		return path
	}
	return NormalizeBase(base) + "/" + strings.TrimLeft(path, "/")
}

// WithCacheBust appends a millisecond timestamp query so intermediaries do not
// serve a stale copy of a frequently rewritten file.
func WithCacheBust(rawURL string, now time.Time) string {
	sep := "?"
	if strings.Contains(rawURL, "?") {
		sep = "&"
	}
	return rawURL + sep + strconv.FormatInt(now.UnixMilli(), 10)
}

// IsLocal reports whether rawURL addresses a local recording.
func IsLocal(rawURL string) bool {
	u, err := url.Parse(rawURL)
	return err == nil && u.Scheme == LocalScheme
}
