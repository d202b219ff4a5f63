package cache

import (
	"net/url"
	"sort"
	"strings"
)

// Key identifies a cached reply by the URL it was fetched from.
type Key struct {
	URL string
}

// KeyFor returns the key for rawURL.
func KeyFor(rawURL string) Key {
	return Key{URL: rawURL}
}

// String returns a normalized form of the URL so that equivalent addresses
// share an entry. Scheme and host are lowercased, trailing slashes on the
// path are dropped and query parameters are sorted.
//
// Example:
//
//	HTTP://API.Example.com/v1/items/?b=2&a=1 -> http://api.example.com/v1/items?a=1&b=2
func (k Key) String() string {
	u, err := url.Parse(k.URL)
	if err != nil || u.Host == "" {
		return k.URL
	}

	var b strings.Builder
	b.WriteString(strings.ToLower(u.Scheme))
	b.WriteString("://")
	b.WriteString(strings.ToLower(u.Host))
	b.WriteString(strings.TrimRight(u.EscapedPath(), "/"))

	query := u.Query()
	if len(query) > 0 {
		keys := make([]string, 0, len(query))
		for key := range query {
			keys = append(keys, key)
		}
		sort.Strings(keys)

		parts := make([]string, 0, len(keys))
		for _, key := range keys {
			values := query[key]
			sort.Strings(values)
			for _, v := range values {
				parts = append(parts, url.QueryEscape(key)+"="+url.QueryEscape(v))
			}
		}
		b.WriteString("?")
		b.WriteString(strings.Join(parts, "&"))
	}

	return b.String()
}
