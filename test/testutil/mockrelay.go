package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
)

// MockRelay is an httptest.Server that simulates the message relay endpoint
// used by the http backend: POST <path>?message=<prompt>.
type MockRelay struct {
	Server *httptest.Server

	mu sync.Mutex
	// Clean and Anonymized are returned as response_clean and response_anonymized.
	Clean      string
	Anonymized string
	// FailStatus, when non-zero, makes every call fail with that status.
	FailStatus int

	messages []string
}

// NewMockRelay creates and starts a mock relay server.
func NewMockRelay(clean, anonymized string) *MockRelay {
	m := &MockRelay{Clean: clean, Anonymized: anonymized}
	m.Server = httptest.NewServer(http.HandlerFunc(m.handle))
	return m
}

// Close shuts down the mock server.
func (m *MockRelay) Close() {
	m.Server.Close()
}

// URL returns the relay endpoint URL.
func (m *MockRelay) URL() string {
	return m.Server.URL + "/send-to-websocket/"
}

// Fail makes subsequent calls answer with status.
func (m *MockRelay) Fail(status int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.FailStatus = status
}

// Messages returns every prompt received so far.
func (m *MockRelay) Messages() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.messages...)
}

func (m *MockRelay) handle(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/send-to-websocket/" || r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}

	m.mu.Lock()
	m.messages = append(m.messages, r.URL.Query().Get("message"))
	fail, clean, anon := m.FailStatus, m.Clean, m.Anonymized
	m.mu.Unlock()

	if fail != 0 {
		http.Error(w, "relay unavailable", fail)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":              "success",
		"response_clean":      clean,
		"response_anonymized": anon,
	})
}
