package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/Sternrassler/fetch-dispatcher/internal/testutil"
	"github.com/Sternrassler/fetch-dispatcher/pkg/fetch"
	"github.com/Sternrassler/fetch-dispatcher/pkg/limiter"
	"github.com/Sternrassler/fetch-dispatcher/pkg/result"
	"github.com/Sternrassler/fetch-dispatcher/pkg/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRunner records concurrency and answers from a status table.
type fakeRunner struct {
	mu       sync.Mutex
	active   int
	peak     int
	calls    int
	delay    func(endpoint string) time.Duration
	statuses map[string]int
}

func (f *fakeRunner) Run(_ context.Context, baseURL, endpoint string, _ int) result.Response {
	f.mu.Lock()
	f.calls++
	f.active++
	if f.active > f.peak {
		f.peak = f.active
	}
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.active--
		f.mu.Unlock()
	}()

	if f.delay != nil {
		time.Sleep(f.delay(endpoint))
	}

	url := fetch.JoinURL(baseURL, endpoint)
	status, ok := f.statuses[endpoint]
	if !ok {
		status = http.StatusOK
	}
	if status == 0 {
		return result.Failure(url, 0, errors.New("connection refused"), time.Now())
	}
	body, _ := json.Marshal(map[string]string{"endpoint": endpoint})
	return result.Success(url, status, body, time.Now())
}

func newTestDispatcher(t *testing.T, cfg Config, runner Runner) *Dispatcher {
	t.Helper()
	d, err := New(cfg, runner)
	require.NoError(t, err)
	return d
}

func endpointList(n int) []string {
	endpoints := make([]string, n)
	for i := range endpoints {
		endpoints[i] = fmt.Sprintf("/items/%d", i)
	}
	return endpoints
}

func TestNew_Validation(t *testing.T) {
	runner := &fakeRunner{}

	tests := []struct {
		name    string
		cfg     Config
		runner  Runner
		wantErr bool
	}{
		{"default", DefaultConfig("http://api.test"), runner, false},
		{"missing base url", DefaultConfig(""), runner, true},
		{"nil runner", DefaultConfig("http://api.test"), nil, true},
		{"zero concurrency", Config{BaseURL: "http://api.test", MaxConcurrent: 0, MaxRetries: 3}, runner, true},
		{"zero retries", Config{BaseURL: "http://api.test", MaxConcurrent: 1, MaxRetries: 0}, runner, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.cfg, tt.runner)
			if (err != nil) != tt.wantErr {
				t.Fatalf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				assert.ErrorIs(t, err, ErrInvalidConfig)
			}
		})
	}
}

func TestNew_ZeroConcurrencyWrapsLimiterError(t *testing.T) {
	_, err := New(Config{BaseURL: "http://api.test", MaxConcurrent: 0, MaxRetries: 1}, &fakeRunner{})
	assert.ErrorIs(t, err, limiter.ErrInvalidCapacity)
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig("http://api.test")
	assert.Equal(t, 10, cfg.MaxConcurrent)
	assert.Equal(t, 3, cfg.MaxRetries)
}

func TestDispatchAll_PreservesInputOrder(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	delays := make(map[string]time.Duration)
	endpoints := endpointList(40)
	for _, ep := range endpoints {
		delays[ep] = time.Duration(rng.Intn(10)) * time.Millisecond
	}

	runner := &fakeRunner{delay: func(ep string) time.Duration { return delays[ep] }}
	d := newTestDispatcher(t, DefaultConfig("http://api.test/"), runner)

	batch, err := d.DispatchAll(context.Background(), endpoints, 3)
	require.NoError(t, err)
	require.Len(t, batch.Responses, len(endpoints))

	for i, ep := range endpoints {
		assert.Equal(t, fetch.JoinURL("http://api.test/", ep), batch.Responses[i].URL, "position %d", i)
	}
	assert.NotEmpty(t, batch.ID)
	assert.Equal(t, len(endpoints), runner.calls)
}

func TestDispatchAll_BoundsConcurrency(t *testing.T) {
	for _, k := range []int{1, 3, 8} {
		t.Run(fmt.Sprintf("max_concurrent=%d", k), func(t *testing.T) {
			runner := &fakeRunner{delay: func(string) time.Duration { return 5 * time.Millisecond }}
			cfg := DefaultConfig("http://api.test")
			cfg.MaxConcurrent = k
			d := newTestDispatcher(t, cfg, runner)

			_, err := d.DispatchAll(context.Background(), endpointList(30), 1)
			require.NoError(t, err)

			assert.LessOrEqual(t, d.Limiter().Peak(), k)
			assert.LessOrEqual(t, runner.peak, k)
			assert.Equal(t, k, runner.peak, "30 slow tasks should saturate the limiter")
			assert.Equal(t, 0, d.Limiter().InFlight(), "every slot released")
		})
	}
}

func TestDispatchAll_LaunchesConcurrently(t *testing.T) {
	runner := &fakeRunner{delay: func(string) time.Duration { return 50 * time.Millisecond }}
	cfg := DefaultConfig("http://api.test")
	cfg.MaxConcurrent = 10
	d := newTestDispatcher(t, cfg, runner)

	start := time.Now()
	_, err := d.DispatchAll(context.Background(), endpointList(10), 1)
	require.NoError(t, err)

	assert.Less(t, time.Since(start), 400*time.Millisecond, "10 tasks of 50ms with 10 slots should overlap")
}

func TestDispatchAll_ReplacesResults(t *testing.T) {
	runner := &fakeRunner{statuses: map[string]int{"/bad": 0}}
	d := newTestDispatcher(t, DefaultConfig("http://api.test"), runner)

	first, err := d.DispatchAll(context.Background(), []string{"/a", "/bad", "/c"}, 1)
	require.NoError(t, err)
	assert.Equal(t, first, d.Results())
	assert.Len(t, d.Successful(), 2)
	assert.Len(t, d.Failed(), 1)

	second, err := d.DispatchAll(context.Background(), []string{"/x"}, 1)
	require.NoError(t, err)

	assert.Equal(t, second, d.Results())
	assert.Len(t, d.Results().Responses, 1, "no accumulation across calls")
	assert.Len(t, d.Successful(), 1)
	assert.Empty(t, d.Failed())
	assert.NotEqual(t, first.ID, second.ID)
}

func TestDispatchAll_EmptyEndpoints(t *testing.T) {
	d := newTestDispatcher(t, DefaultConfig("http://api.test"), &fakeRunner{})

	batch, err := d.DispatchAll(context.Background(), nil, 3)
	require.NoError(t, err)
	assert.Equal(t, 0, batch.Len())
	assert.Empty(t, batch.Successful())
	assert.Empty(t, batch.Failed())
}

func TestDispatchAll_InvalidRetries(t *testing.T) {
	runner := &fakeRunner{}
	d := newTestDispatcher(t, DefaultConfig("http://api.test"), runner)

	_, err := d.DispatchAll(context.Background(), []string{"/a"}, 0)
	assert.ErrorIs(t, err, fetch.ErrInvalidRetries)
	assert.Equal(t, 0, runner.calls)
}

func TestDispatch_UsesConfiguredRetries(t *testing.T) {
	var got int
	var mu sync.Mutex
	runner := runnerFunc(func(_ context.Context, base, ep string, maxRetries int) result.Response {
		mu.Lock()
		got = maxRetries
		mu.Unlock()
		return result.Success(fetch.JoinURL(base, ep), 200, json.RawMessage(`{}`), time.Now())
	})

	cfg := DefaultConfig("http://api.test")
	cfg.MaxRetries = 7
	d := newTestDispatcher(t, cfg, runner)

	_, err := d.Dispatch(context.Background(), []string{"/a"})
	require.NoError(t, err)
	assert.Equal(t, 7, got)
}

func TestDispatchAll_Cancelled(t *testing.T) {
	block := make(chan struct{})
	runner := runnerFunc(func(ctx context.Context, base, ep string, _ int) result.Response {
		select {
		case <-block:
		case <-ctx.Done():
		}
		return result.Failure(fetch.JoinURL(base, ep), 0, ctx.Err(), time.Now())
	})

	cfg := DefaultConfig("http://api.test")
	cfg.MaxConcurrent = 2
	d := newTestDispatcher(t, cfg, runner)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	endpoints := endpointList(6)
	batch, err := d.DispatchAll(ctx, endpoints, 3)

	assert.ErrorIs(t, err, ErrInterrupted)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	require.Len(t, batch.Responses, len(endpoints))
	for i, r := range batch.Responses {
		assert.Equal(t, fetch.JoinURL("http://api.test", endpoints[i]), r.URL)
		assert.Equal(t, 0, r.Status)
		assert.True(t, r.HasError())
	}
	assert.Equal(t, 0, d.Limiter().InFlight())
}

func TestDispatchAllFunc(t *testing.T) {
	runner := &fakeRunner{}

	batch, err := DispatchAll(context.Background(), runner, "http://api.test", []string{"/a", "/b"}, 1, 3)
	require.NoError(t, err)
	assert.Equal(t, 2, batch.Len())

	_, err = DispatchAll(context.Background(), runner, "http://api.test", []string{"/a"}, 0, 3)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

// TestDispatchAll_MixedOutcomes drives the full stack against a mock server:
// /a answers 200, /b drops the connection on every attempt.
func TestDispatchAll_MixedOutcomes(t *testing.T) {
	mock := testutil.NewMockServer()
	defer mock.Close()
	mock.SetResponse("/a", testutil.OKResponse(`{"name":"a"}`))
	mock.SetResponse("/b", testutil.DroppedResponse())

	client, err := transport.New(transport.DefaultConfig())
	require.NoError(t, err)

	unit := 50 * time.Millisecond
	task := fetch.NewTask(client, fetch.Config{Backoff: fetch.Backoff{Unit: unit, Multiplier: 2}})

	cfg := DefaultConfig(mock.URL())
	cfg.MaxConcurrent = 1
	d := newTestDispatcher(t, cfg, task)

	batch, err := d.DispatchAll(context.Background(), []string{"/a", "/b"}, 2)
	require.NoError(t, err)

	successful := batch.Successful()
	require.Len(t, successful, 1)
	assert.Equal(t, mock.URL()+"/a", successful[0].URL)
	assert.Equal(t, http.StatusOK, successful[0].Status)
	assert.JSONEq(t, `{"name":"a"}`, string(successful[0].Data))

	failed := batch.Failed()
	require.Len(t, failed, 1)
	assert.Equal(t, mock.URL()+"/b", failed[0].URL)
	assert.Equal(t, 0, failed[0].Status)
	assert.NotEmpty(t, failed[0].Error)

	assert.Equal(t, 1, mock.RequestCount("/a"))
	times := mock.RequestTimes("/b")
	require.Len(t, times, 2)
	assert.GreaterOrEqual(t, times[1].Sub(times[0]), unit-10*time.Millisecond)
	assert.Equal(t, 1, mock.PeakConcurrency())
}

type runnerFunc func(ctx context.Context, baseURL, endpoint string, maxRetries int) result.Response

func (f runnerFunc) Run(ctx context.Context, baseURL, endpoint string, maxRetries int) result.Response {
	return f(ctx, baseURL, endpoint, maxRetries)
}
