package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

// MockLivepeerServer is a fake of the streaming platform API. Handlers are keyed by
// "METHOD /path"; unmatched requests get 404 and are still counted.
type MockLivepeerServer struct {
	*httptest.Server

	mu       sync.Mutex
	Handlers map[string]http.HandlerFunc
	calls    map[string]int
}

// NewMockLivepeerServer starts a mock server closed by t.Cleanup.
func NewMockLivepeerServer(t *testing.T) *MockLivepeerServer {
	t.Helper()
	m := &MockLivepeerServer{
		Handlers: make(map[string]http.HandlerFunc),
		calls:    make(map[string]int),
	}
	m.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Method + " " + r.URL.Path
		m.mu.Lock()
		m.calls[key]++
		handler, ok := m.Handlers[key]
		m.mu.Unlock()
		if ok {
			handler(w, r)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(m.Close)
	return m
}

// Handle registers h for method and path.
func (m *MockLivepeerServer) Handle(method, path string, h http.HandlerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Handlers[method+" "+path] = h
}

// JSON registers a handler answering with v.
func (m *MockLivepeerServer) JSON(method, path string, v any) {
	m.Handle(method, path, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, v)
	})
}

// Status registers a handler answering with an empty body and code.
func (m *MockLivepeerServer) Status(method, path string, code int) {
	m.Handle(method, path, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(code)
	})
}

// Calls returns how many times method and path were requested.
func (m *MockLivepeerServer) Calls(method, path string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[method+" "+path]
}

// MockCreateStream answers POST /stream.
func (m *MockLivepeerServer) MockCreateStream(id, streamKey, playbackID string) {
	m.JSON(http.MethodPost, "/stream", map[string]any{
		"id": id, "streamKey": streamKey, "playbackId": playbackID, "isActive": false, "record": true,
	})
}

// MockStream answers GET /stream/{id}.
func (m *MockLivepeerServer) MockStream(id, playbackID string, active bool) {
	m.JSON(http.MethodGet, "/stream/"+id, map[string]any{
		"id": id, "playbackId": playbackID, "isActive": active,
	})
}

// MockSessions answers GET /stream/{id}/sessions.
func (m *MockLivepeerServer) MockSessions(streamID string, sessions []map[string]any) {
	m.JSON(http.MethodGet, "/stream/"+streamID+"/sessions", sessions)
}

// MockAsset answers GET /asset/{id} with a ready asset when playbackID is set, else processing.
func (m *MockLivepeerServer) MockAsset(id, playbackID string) {
	phase := "processing"
	if playbackID != "" {
		phase = "ready"
	}
	m.JSON(http.MethodGet, "/asset/"+id, map[string]any{
		"id": id, "playbackId": playbackID, "status": map[string]any{"phase": phase},
	})
}

// MockViews answers the total and concurrent view endpoints for playbackID.
func (m *MockLivepeerServer) MockViews(playbackID string, total int64, now int) {
	m.JSON(http.MethodGet, "/data/views/query/total/"+playbackID, map[string]any{"playbackId": playbackID, "viewCount": total})
	m.JSON(http.MethodGet, "/data/views/now", []map[string]any{{"viewCount": now}})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v) //nolint:errcheck // test mock response
}
