package crawler

import (
	"context"
	"net/http"
	"sync"
	"time"

	"sjsage522/stockwatcher/helpers"
	"sjsage522/stockwatcher/services/cache"
)

// MockFetcher serves canned responses keyed by URL and records every call
type MockFetcher struct {
	mu        sync.Mutex
	responses map[string]*helpers.Response
	errs      map[string]error
	calls     []string
}

func NewMockFetcher() *MockFetcher {
	return &MockFetcher{
		responses: make(map[string]*helpers.Response),
		errs:      make(map[string]error),
	}
}

// Respond registers a response for url
func (m *MockFetcher) Respond(url string, status int, contentType, body string) *MockFetcher {
	m.responses[url] = &helpers.Response{
		URL:        url,
		StatusCode: status,
		Header:     http.Header{"Content-Type": []string{contentType}},
		Body:       []byte(body),
	}
	return m
}

// Fail registers a transport error for url
func (m *MockFetcher) Fail(url string, err error) *MockFetcher {
	m.errs[url] = err
	return m
}

func (m *MockFetcher) Get(ctx context.Context, url string, timeout time.Duration) (*helpers.Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, url)

	if err, ok := m.errs[url]; ok {
		return nil, err
	}
	if resp, ok := m.responses[url]; ok {
		return resp, nil
	}
	return &helpers.Response{URL: url, StatusCode: http.StatusNotFound, Header: http.Header{}}, nil
}

func (m *MockFetcher) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

// MockCacheService implements a simple in-memory cache for testing
type MockCacheService struct {
	cache map[string][]byte
	ttl   map[string]time.Duration
}

func NewMockCacheService() *MockCacheService {
	return &MockCacheService{
		cache: make(map[string][]byte),
		ttl:   make(map[string]time.Duration),
	}
}

func (m *MockCacheService) Get(key string) ([]byte, error) {
	if val, ok := m.cache[key]; ok {
		return val, nil
	}
	return nil, cache.ErrCacheMiss
}

func (m *MockCacheService) Set(key string, value []byte, expiration time.Duration) error {
	m.cache[key] = value
	m.ttl[key] = expiration
	return nil
}

func (m *MockCacheService) Delete(key string) error {
	delete(m.cache, key)
	return nil
}

// stubChecker is an AvailabilityChecker with a fixed answer
type stubChecker struct {
	available bool
	calls     []string
}

func (s *stubChecker) Resolve(ctx context.Context, productURL string) bool {
	s.calls = append(s.calls, productURL)
	return s.available
}
