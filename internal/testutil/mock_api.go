// Package testutil provides testing utilities for mp-resolve.
package testutil

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"
)

// MockResponse defines the behavior for one mock payments API response.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// MockPaymentsAPI is a configurable mock payments server for testing.
type MockPaymentsAPI struct {
	server   *httptest.Server
	mu       sync.RWMutex
	handlers map[string]func(w http.ResponseWriter, r *http.Request)

	// Tracking
	requestCount int
	pathCounts   map[string]int
	lastHeader   http.Header
}

// NewMockPaymentsAPI creates a new mock payments server.
func NewMockPaymentsAPI() *MockPaymentsAPI {
	mock := &MockPaymentsAPI{
		handlers:   make(map[string]func(w http.ResponseWriter, r *http.Request)),
		pathCounts: make(map[string]int),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mock.mu.Lock()
		mock.requestCount++
		mock.pathCounts[r.URL.Path]++
		mock.lastHeader = r.Header.Clone()
		mock.mu.Unlock()

		mock.mu.RLock()
		handler, exists := mock.handlers[r.URL.Path]
		mock.mu.RUnlock()

		if exists {
			handler(w, r)
			return
		}

		mock.defaultHandler(w, r)
	}))

	return mock
}

// URL returns the mock server URL, usable as the API base.
func (m *MockPaymentsAPI) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockPaymentsAPI) Close() {
	m.server.Close()
}

// SetHandler sets a custom handler for a specific payment path.
func (m *MockPaymentsAPI) SetHandler(path string, handler func(w http.ResponseWriter, r *http.Request)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// SetPayment configures the response for one payment identifier.
func (m *MockPaymentsAPI) SetPayment(paymentID string, resp MockResponse) {
	m.SetHandler("/"+paymentID, func(w http.ResponseWriter, r *http.Request) {
		if resp.Delay > 0 {
			time.Sleep(resp.Delay)
		}

		for key, value := range resp.Headers {
			w.Header().Set(key, value)
		}
		if w.Header().Get("Content-Type") == "" {
			w.Header().Set("Content-Type", "application/json; charset=utf-8")
		}

		w.WriteHeader(resp.StatusCode)
		if resp.Body != "" {
			w.Write([]byte(resp.Body))
		}
	})
}

// FlakyPayment configures a payment that fails with failStatus for the
// first failures requests and then succeeds with the given body.
func (m *MockPaymentsAPI) FlakyPayment(paymentID string, failStatus, failures int, body string) {
	var mu sync.Mutex
	served := 0
	m.SetHandler("/"+paymentID, func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		served++
		n := served
		mu.Unlock()

		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		if n <= failures {
			w.WriteHeader(failStatus)
			w.Write([]byte(`{"error": "try later"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(body))
	})
}

// RequestCount returns the total number of requests served.
func (m *MockPaymentsAPI) RequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.requestCount
}

// RequestsFor returns the number of requests for one payment identifier.
func (m *MockPaymentsAPI) RequestsFor(paymentID string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.pathCounts["/"+paymentID]
}

// LastHeader returns the headers of the most recent request.
func (m *MockPaymentsAPI) LastHeader() http.Header {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastHeader
}

// defaultHandler answers any unconfigured payment with a plain success.
func (m *MockPaymentsAPI) defaultHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{"order": {"id": "order-for%s"}, "external_reference": "ref-for%s"}`, r.URL.Path, r.URL.Path)
}

// NewPaymentResponse creates a 200 response with the standard shape.
func NewPaymentResponse(orderID, externalReference string) MockResponse {
	return MockResponse{
		StatusCode: http.StatusOK,
		Body:       fmt.Sprintf(`{"order": {"id": "%s"}, "external_reference": "%s"}`, orderID, externalReference),
	}
}

// NewRateLimitResponse creates a 429 response with a Retry-After hint.
func NewRateLimitResponse(retryAfterSeconds int) MockResponse {
	return MockResponse{
		StatusCode: http.StatusTooManyRequests,
		Body:       `{"error": "Rate limit exceeded"}`,
		Headers: map[string]string{
			"Retry-After": fmt.Sprintf("%d", retryAfterSeconds),
		},
	}
}

// NewServerErrorResponse creates a 500 response.
func NewServerErrorResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusInternalServerError,
		Body:       `{"error": "Internal server error"}`,
	}
}

// NewNotFoundResponse creates a 404 response with an API message.
func NewNotFoundResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusNotFound,
		Body:       `{"message": "Payment not found", "status": 404}`,
	}
}
