// Package testutil provides a scriptable HTTP server for tests.
package testutil

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"time"
)

// MockResponse scripts one reply of the mock server.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration

	// Drop closes the connection without writing a response, which the
	// client observes as a transport failure.
	Drop bool
}

// MockServer is an httptest server whose replies are scripted per path.
// Each path holds a sequence of replies; the last one repeats once the
// sequence is used up. Unknown paths get a 404 JSON body.
type MockServer struct {
	Server *httptest.Server

	mu          sync.Mutex
	scripts     map[string][]MockResponse
	handlers    map[string]http.HandlerFunc
	requests    map[string][]time.Time
	conditional int
	inFlight    int
	peak        int
}

// NewMockServer starts a mock server. Keep-alives are disabled so every
// request arrives on a fresh connection.
func NewMockServer() *MockServer {
	m := &MockServer{
		scripts:  make(map[string][]MockResponse),
		handlers: make(map[string]http.HandlerFunc),
		requests: make(map[string][]time.Time),
	}

	m.Server = httptest.NewUnstartedServer(http.HandlerFunc(m.handle))
	m.Server.Config.SetKeepAlivesEnabled(false)
	m.Server.Start()

	return m
}

// URL returns the base URL of the server.
func (m *MockServer) URL() string {
	return m.Server.URL
}

// Close shuts down the server.
func (m *MockServer) Close() {
	m.Server.Close()
}

// SetResponse makes path always answer with resp.
func (m *MockServer) SetResponse(path string, resp MockResponse) {
	m.SetSequence(path, resp)
}

// SetSequence makes path answer with resps in order.
func (m *MockServer) SetSequence(path string, resps ...MockResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scripts[path] = append([]MockResponse(nil), resps...)
}

// SetHandler installs a custom handler for path.
func (m *MockServer) SetHandler(path string, handler http.HandlerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// RequestCount returns how many requests path received.
func (m *MockServer) RequestCount(path string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests[path])
}

// TotalRequests returns the number of requests across all paths.
func (m *MockServer) TotalRequests() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	total := 0
	for _, times := range m.requests {
		total += len(times)
	}
	return total
}

// RequestTimes returns the arrival times of requests to path.
func (m *MockServer) RequestTimes(path string) []time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]time.Time(nil), m.requests[path]...)
}

// ConditionalCount returns the number of requests carrying If-None-Match
// or If-Modified-Since.
func (m *MockServer) ConditionalCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.conditional
}

// PeakConcurrency returns the highest number of requests handled at once.
func (m *MockServer) PeakConcurrency() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.peak
}

// Reset clears scripts, handlers and counters.
func (m *MockServer) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scripts = make(map[string][]MockResponse)
	m.handlers = make(map[string]http.HandlerFunc)
	m.requests = make(map[string][]time.Time)
	m.conditional = 0
	m.inFlight = 0
	m.peak = 0
}

func (m *MockServer) handle(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path

	m.mu.Lock()
	m.requests[path] = append(m.requests[path], time.Now())
	if r.Header.Get("If-None-Match") != "" || r.Header.Get("If-Modified-Since") != "" {
		m.conditional++
	}
	m.inFlight++
	if m.inFlight > m.peak {
		m.peak = m.inFlight
	}
	handler := m.handlers[path]
	resp, scripted := m.next(path)
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.inFlight--
		m.mu.Unlock()
	}()

	if handler != nil {
		handler(w, r)
		return
	}
	if !scripted {
		resp = NotFoundResponse()
	}

	if resp.Delay > 0 {
		select {
		case <-time.After(resp.Delay):
		case <-r.Context().Done():
			return
		}
	}

	if resp.Drop {
		dropConnection(w)
		return
	}

	for k, v := range resp.Headers {
		w.Header().Set(k, v)
	}
	if w.Header().Get("Content-Type") == "" {
		w.Header().Set("Content-Type", "application/json")
	}
	w.WriteHeader(resp.StatusCode)
	w.Write([]byte(resp.Body))
}

// next pops the next scripted reply for path. Caller holds m.mu.
func (m *MockServer) next(path string) (MockResponse, bool) {
	script, ok := m.scripts[path]
	if !ok || len(script) == 0 {
		return MockResponse{}, false
	}
	resp := script[0]
	if len(script) > 1 {
		m.scripts[path] = script[1:]
	}
	return resp, true
}

func dropConnection(w http.ResponseWriter) {
	hj, ok := w.(http.Hijacker)
	if !ok {
		panic("testutil: response writer does not support hijacking")
	}
	conn, _, err := hj.Hijack()
	if err != nil {
		return
	}
	conn.Close()
}

// JSONResponse creates a reply with the given status and JSON body.
func JSONResponse(status int, body string) MockResponse {
	return MockResponse{StatusCode: status, Body: body}
}

// OKResponse creates a 200 reply with a JSON body.
func OKResponse(body string) MockResponse {
	return JSONResponse(http.StatusOK, body)
}

// NotFoundResponse creates a 404 reply with a JSON error body.
func NotFoundResponse() MockResponse {
	return JSONResponse(http.StatusNotFound, `{"error":"not found"}`)
}

// ServerErrorResponse creates a 500 reply with a JSON error body.
func ServerErrorResponse() MockResponse {
	return JSONResponse(http.StatusInternalServerError, `{"error":"internal server error"}`)
}

// DroppedResponse closes the connection without replying.
func DroppedResponse() MockResponse {
	return MockResponse{Drop: true}
}

// CacheableResponse creates a 200 reply carrying an ETag and max-age.
func CacheableResponse(body, etag string, maxAge time.Duration) MockResponse {
	return MockResponse{
		StatusCode: http.StatusOK,
		Body:       body,
		Headers: map[string]string{
			"ETag":          etag,
			"Cache-Control": "max-age=" + strconv.Itoa(int(maxAge/time.Second)),
		},
	}
}

// NewConditionalHandler answers 304 when If-None-Match equals etag and a
// full 200 reply otherwise. maxAge sets Cache-Control on both.
func NewConditionalHandler(etag, body string, maxAge time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "max-age="+strconv.Itoa(int(maxAge/time.Second)))

		if r.Header.Get("If-None-Match") == etag {
			w.WriteHeader(http.StatusNotModified)
			return
		}

		w.Header().Set("ETag", etag)
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(body))
	}
}
