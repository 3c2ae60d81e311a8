// Package websearch is the last-resort vendor source: a bearer-authenticated
// web search API, rate limited and cached.
package websearch

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	"vendor-chat-backend/internal/cache"
	"vendor-chat-backend/internal/vendor"
)

const keyPrefix = "websearch:"

type Options struct {
	Endpoint string
	APIKey   string
	// RPS bounds outgoing requests per second; zero or less means unlimited.
	RPS        float64
	Cache      cache.Client
	CacheTTL   time.Duration
	HTTPClient *http.Client
	Logger     zerolog.Logger
}

type Client struct {
	http     *http.Client
	endpoint string
	limiter  *rate.Limiter
	cache    cache.Client
	ttl      time.Duration
	logger   zerolog.Logger
}

type searchRequest struct {
	Query      string `json:"query"`
	MaxResults int    `json:"max_results"`
}

type searchResponse struct {
	Results []vendor.WebResult `json:"results"`
}

func New(opts Options) *Client {
	base := opts.HTTPClient
	if base == nil {
		base = &http.Client{Timeout: 15 * time.Second}
	}
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, base)
	hc := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: opts.APIKey,
		TokenType:   "Bearer",
	}))
	hc.Timeout = base.Timeout

	limit := rate.Inf
	if opts.RPS > 0 {
		limit = rate.Limit(opts.RPS)
	}
	c := opts.Cache
	if c == nil {
		c = cache.Noop{}
	}
	return &Client{
		http:     hc,
		endpoint: opts.Endpoint,
		limiter:  rate.NewLimiter(limit, 1),
		cache:    c,
		ttl:      opts.CacheTTL,
		logger:   opts.Logger,
	}
}

// Search returns at most maxResults snippets for query.
func (c *Client) Search(ctx context.Context, query string, maxResults int) ([]vendor.WebResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("websearch: query is required")
	}
	if maxResults <= 0 {
		maxResults = 3
	}
	key := cacheKey(query, maxResults)

	if b, err := c.cache.Get(ctx, key); err == nil {
		var results []vendor.WebResult
		if err := json.Unmarshal(b, &results); err == nil {
			c.logger.Debug().Str("query", query).Msg("web search cache hit")
			return results, nil
		}
	} else if !errors.Is(err, cache.ErrMiss) {
		c.logger.Warn().Err(err).Msg("web search cache read failed")
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("websearch: rate limit: %w", err)
	}

	results, err := c.fetch(ctx, query, maxResults)
	if err != nil {
		return nil, err
	}

	if b, err := json.Marshal(results); err == nil {
		if err := c.cache.Set(ctx, key, b, c.ttl); err != nil {
			c.logger.Warn().Err(err).Msg("web search cache write failed")
		}
	}
	return results, nil
}

func (c *Client) fetch(ctx context.Context, query string, maxResults int) ([]vendor.WebResult, error) {
	body, err := json.Marshal(searchRequest{Query: query, MaxResults: maxResults})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("websearch: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("websearch: request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("websearch: status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var out searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("websearch: decode: %w", err)
	}

	results := make([]vendor.WebResult, 0, len(out.Results))
	for _, r := range out.Results {
		if strings.TrimSpace(r.Title) == "" && strings.TrimSpace(r.Content) == "" {
			continue
		}
		results = append(results, r)
		if len(results) == maxResults {
			break
		}
	}
	return results, nil
}

func cacheKey(query string, maxResults int) string {
	sum := sha256.Sum256([]byte(strings.ToLower(query) + "|" + strconv.Itoa(maxResults)))
	return keyPrefix + hex.EncodeToString(sum[:])
}
