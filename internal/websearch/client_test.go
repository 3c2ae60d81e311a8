package websearch

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vendor-chat-backend/internal/cache"
)

type memCache struct {
	mu   sync.Mutex
	data map[string][]byte
	ttls map[string]time.Duration
}

func newMemCache() *memCache {
	return &memCache{data: map[string][]byte{}, ttls: map[string]time.Duration{}}
}

func (m *memCache) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.data[key]
	if !ok {
		return nil, cache.ErrMiss
	}
	return b, nil
}

func (m *memCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	m.ttls[key] = ttl
	return nil
}

func (m *memCache) Close() error { return nil }

func TestSearchSendsBearerAndCaches(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))

		var req searchRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "Sample Caterers reviews", req.Query)
		assert.Equal(t, 2, req.MaxResults)

		_, _ = w.Write([]byte(`{"results":[
			{"title":"Sample Caterers - reviews","url":"https://a.example","content":"Great food"},
			{"title":"","url":"https://empty.example","content":""},
			{"title":"Sample Caterers menu","url":"https://b.example","content":"Menu"},
			{"title":"Extra","url":"https://c.example","content":"Dropped"}
		]}`))
	}))
	defer srv.Close()

	mc := newMemCache()
	c := New(Options{Endpoint: srv.URL, APIKey: "secret", Cache: mc, CacheTTL: time.Minute})

	got, err := c.Search(context.Background(), "Sample Caterers reviews", 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "https://a.example", got[0].URL)
	assert.Equal(t, "Sample Caterers menu", got[1].Title)

	again, err := c.Search(context.Background(), "sample caterers REVIEWS", 2)
	require.NoError(t, err)
	assert.Equal(t, got, again)
	assert.Equal(t, 1, calls, "second call served from cache")

	for k, ttl := range mc.ttls {
		assert.True(t, strings.HasPrefix(k, keyPrefix))
		assert.Equal(t, time.Minute, ttl)
	}
}

func TestSearchErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := New(Options{Endpoint: srv.URL, APIKey: "k"})
	_, err := c.Search(context.Background(), "anything", 3)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")

	_, err = c.Search(context.Background(), "   ", 3)
	assert.Error(t, err)
}

func TestSearchRespectsCancelledContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"results":[]}`))
	}))
	defer srv.Close()

	c := New(Options{Endpoint: srv.URL, APIKey: "k", RPS: 0.001})
	_, err := c.Search(context.Background(), "first", 1)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = c.Search(ctx, "second", 1)
	assert.Error(t, err)
}

func TestCacheKey(t *testing.T) {
	assert.Equal(t, cacheKey("Royal Caterers", 3), cacheKey("royal caterers", 3))
	assert.NotEqual(t, cacheKey("royal caterers", 3), cacheKey("royal caterers", 5))
}
