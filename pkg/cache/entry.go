package cache

import "time"

// Entry is a cached reply.
type Entry struct {
	// Body is the raw response body.
	Body []byte `json:"body"`

	// ETag is sent back as If-None-Match when revalidating.
	ETag string `json:"etag,omitempty"`

	// Expires is when the entry stops being fresh.
	Expires time.Time `json:"expires"`

	// LastModified is sent back as If-Modified-Since when no ETag is known.
	LastModified time.Time `json:"last_modified,omitempty"`

	// StatusCode of the cached reply.
	StatusCode int `json:"status_code"`

	// CachedAt is when the reply was stored.
	CachedAt time.Time `json:"cached_at"`
}

// IsExpired returns true once the freshness deadline has passed.
func (e *Entry) IsExpired() bool {
	return time.Now().After(e.Expires)
}

// TTL returns the remaining freshness, or 0 if already expired.
func (e *Entry) TTL() time.Duration {
	ttl := time.Until(e.Expires)
	if ttl < 0 {
		return 0
	}
	return ttl
}

// CanRevalidate reports whether a conditional request can be built from the entry.
func (e *Entry) CanRevalidate() bool {
	return e != nil && (e.ETag != "" || !e.LastModified.IsZero())
}
