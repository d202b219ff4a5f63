// Package cache stores HTTP replies in Redis so repeated fetches of the same
// URL can be answered locally or revalidated with a conditional request.
//
// Entries stay in Redis past their freshness deadline for a retention window.
// A stale entry that carries an ETag or Last-Modified value is still useful:
// the transport sends it back as If-None-Match or If-Modified-Since and, on
// 304 Not Modified, refreshes the entry instead of downloading the body again.
package cache
