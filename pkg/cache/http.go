package cache

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	// DefaultTTL is the fallback freshness when the reply carries no
	// Cache-Control max-age or Expires header
	DefaultTTL = 5 * time.Minute
)

// Cacheable reports whether a reply may be stored. Only 200 replies without
// Cache-Control no-store are kept.
func Cacheable(status int, header http.Header) bool {
	if status != http.StatusOK {
		return false
	}
	for _, directive := range cacheControl(header) {
		if directive == "no-store" {
			return false
		}
	}
	return true
}

// NewEntry builds an entry from a reply.
func NewEntry(status int, header http.Header, body []byte, now time.Time) *Entry {
	entry := &Entry{
		Body:       body,
		ETag:       header.Get("ETag"),
		StatusCode: status,
		CachedAt:   now,
		Expires:    Expiry(header, now),
	}

	if lastModStr := header.Get("Last-Modified"); lastModStr != "" {
		if lastMod, err := http.ParseTime(lastModStr); err == nil {
			entry.LastModified = lastMod
		}
	}

	return entry
}

// Expiry computes the freshness deadline of a reply. Cache-Control max-age
// wins over Expires; without either, now + DefaultTTL is used. no-cache
// makes the reply stale immediately.
func Expiry(header http.Header, now time.Time) time.Time {
	for _, directive := range cacheControl(header) {
		if directive == "no-cache" {
			return now
		}
		if v, ok := strings.CutPrefix(directive, "max-age="); ok {
			if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
				return now.Add(time.Duration(secs) * time.Second)
			}
		}
	}

	expiresStr := header.Get("Expires")
	if expiresStr == "" {
		return now.Add(DefaultTTL)
	}

	expires, err := http.ParseTime(expiresStr)
	if err != nil {
		return now.Add(DefaultTTL)
	}
	if expires.Before(now) {
		return now
	}
	return expires
}

// AddConditionalHeaders sets If-None-Match (preferred) or If-Modified-Since
// on req from entry.
func AddConditionalHeaders(req *http.Request, entry *Entry) {
	if entry == nil || req == nil {
		return
	}

	if entry.ETag != "" {
		req.Header.Set("If-None-Match", entry.ETag)
	} else if !entry.LastModified.IsZero() {
		req.Header.Set("If-Modified-Since", entry.LastModified.UTC().Format(http.TimeFormat))
	}
}

func cacheControl(header http.Header) []string {
	raw := header.Get("Cache-Control")
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		out = append(out, strings.ToLower(strings.TrimSpace(p)))
	}
	return out
}
