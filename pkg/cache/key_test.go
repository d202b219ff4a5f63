package cache

import "testing"

func TestKey_String(t *testing.T) {
	tests := []struct {
		name string
		url  string
		want string
	}{
		{"plain", "http://api.example.com/v1/items", "http://api.example.com/v1/items"},
		{"case folded host", "HTTP://API.Example.com/v1/items", "http://api.example.com/v1/items"},
		{"trailing slash", "http://api.example.com/v1/items/", "http://api.example.com/v1/items"},
		{"sorted query", "http://api.example.com/v1/items?b=2&a=1", "http://api.example.com/v1/items?a=1&b=2"},
		{"repeated query", "http://api.example.com/x?tag=z&tag=a", "http://api.example.com/x?tag=a&tag=z"},
		{"root", "http://api.example.com/", "http://api.example.com"},
		{"not absolute", "/v1/items", "/v1/items"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KeyFor(tt.url).String(); got != tt.want {
				t.Errorf("Key.String() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestKey_EquivalentURLsShareKey(t *testing.T) {
	a := KeyFor("http://API.example.com/v1/items/?page=2&sort=asc")
	b := KeyFor("http://api.example.com/v1/items?sort=asc&page=2")

	if a.String() != b.String() {
		t.Errorf("keys differ: %q vs %q", a.String(), b.String())
	}
}
