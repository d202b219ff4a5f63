//go:build integration

package ratelimit

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/Sternrassler/fetch-dispatcher/internal/testutil"
)

func TestIntegration_TrackerSharedAcrossInstances(t *testing.T) {
	client := testutil.NewRedisContainer(t)
	ctx := context.Background()

	writer := NewTracker(client)
	reader := NewTracker(client)

	header := http.Header{}
	header.Set("RateLimit-Limit", "60")
	header.Set("RateLimit-Remaining", "4")
	header.Set("RateLimit-Reset", "30")

	if err := writer.Observe(ctx, "https://api.example.com/items", header); err != nil {
		t.Fatalf("Observe failed: %v", err)
	}

	state, err := reader.State(ctx, "api.example.com")
	if err != nil {
		t.Fatalf("State failed: %v", err)
	}
	if state.Remaining != 4 || state.Limit != 60 {
		t.Errorf("state = %+v, want remaining=4 limit=60", state)
	}
	if state.Level() != LevelCritical {
		t.Errorf("level = %s, want %s", state.Level(), LevelCritical)
	}

	ttl, err := client.TTL(ctx, DefaultPrefix+"api.example.com").Result()
	if err != nil {
		t.Fatalf("TTL failed: %v", err)
	}
	if ttl <= 0 || ttl > 90*time.Second {
		t.Errorf("ttl = %s, want within (0, 90s]", ttl)
	}
}
