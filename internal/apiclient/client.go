// Package apiclient talks to the upstream claims REST API.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/agchavez/interlace/internal/metrics"
)

// Token is the bearer credential attached to a request
type Token struct {
	Access string
	UserID int
}

// TokenSource yields the access token for the current operator
type TokenSource interface {
	Token(ctx context.Context) (Token, error)
}

// StaticToken is a TokenSource that always returns the same token
type StaticToken Token

// Token returns the static token
func (s StaticToken) Token(context.Context) (Token, error) {
	return Token(s), nil
}

// QueryCache stores decoded GET responses
type QueryCache interface {
	Get(ctx context.Context, key string, value interface{}) error
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	DeleteMatching(ctx context.Context, pattern string) error
}

// Options configures a Client
type Options struct {
	BaseURL  string
	Timeout  time.Duration
	Cache    QueryCache
	CacheTTL time.Duration
	Metrics  *metrics.Metrics
	// HTTPClient overrides the default client, mostly for tests
	HTTPClient *http.Client
}

// Client is a typed client for the claims API
type Client struct {
	baseURL  string
	http     *http.Client
	cache    QueryCache
	cacheTTL time.Duration
	metrics  *metrics.Metrics
	group    singleflight.Group
}

// New creates a new claims API client. BaseURL is the server root; the
// /api prefix is appended here.
func New(opts Options) (*Client, error) {
	if opts.BaseURL == "" {
		return nil, errors.New("base URL is required")
	}
	if _, err := url.Parse(opts.BaseURL); err != nil {
		return nil, errors.Wrap(err, "invalid base URL")
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	return &Client{
		baseURL:  strings.TrimRight(opts.BaseURL, "/") + "/api",
		http:     httpClient,
		cache:    opts.Cache,
		cacheTTL: opts.CacheTTL,
		metrics:  opts.Metrics,
	}, nil
}

type request struct {
	method      string
	path        string
	query       url.Values
	body        io.Reader
	contentType string
	token       *Token
}

// send performs the request and returns the body of a 2xx response
func (c *Client) send(ctx context.Context, r request) ([]byte, http.Header, error) {
	endpoint := c.baseURL + r.path
	if len(r.query) > 0 {
		endpoint += "?" + r.query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, r.method, endpoint, r.body)
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to build request")
	}
	req.Header.Set("Accept", "application/json")
	if r.contentType != "" {
		req.Header.Set("Content-Type", r.contentType)
	}
	if r.token != nil && r.token.Access != "" {
		req.Header.Set("Authorization", "Bearer "+r.token.Access)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	c.observe(r.method, start, err == nil && resp.StatusCode < 500)
	if err != nil {
		if ctx.Err() != nil {
			return nil, nil, ctx.Err()
		}
		log.Warn().Err(err).Str("method", r.method).Str("path", r.path).Msg("Claims API request failed")
		return nil, nil, errors.Wrapf(ErrNetwork, "%s %s: %v", r.method, r.path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, errors.Wrapf(ErrNetwork, "read %s %s: %v", r.method, r.path, err)
	}

	log.Debug().
		Str("method", r.method).
		Str("path", r.path).
		Int("status", resp.StatusCode).
		Dur("duration", time.Since(start)).
		Msg("Claims API request")

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, nil, parseError(resp.StatusCode, body)
	}
	return body, resp.Header, nil
}

func (c *Client) observe(method string, start time.Time, ok bool) {
	if c.metrics == nil {
		return
	}
	name := "upstream." + strings.ToLower(method)
	c.metrics.RecordTimer(name, time.Since(start).Milliseconds())
	if ok {
		c.metrics.RecordSuccess("upstream")
	} else {
		c.metrics.RecordError("upstream")
	}
}

func (c *Client) token(ctx context.Context, ts TokenSource) (*Token, error) {
	if ts == nil {
		return nil, ErrUnauthorized
	}
	tok, err := ts.Token(ctx)
	if err != nil {
		return nil, err
	}
	return &tok, nil
}

// getJSON performs an authenticated GET through the query cache. Identical
// concurrent queries share one upstream request; cancelling one caller does
// not fail the others.
func (c *Client) getJSON(ctx context.Context, ts TokenSource, path string, query url.Values, out interface{}) error {
	tok, err := c.token(ctx, ts)
	if err != nil {
		return err
	}

	key := cacheKey(tok.UserID, path, query)
	if c.cache != nil {
		if err := c.cache.Get(ctx, key, out); err == nil {
			c.count("cache.hit")
			return nil
		}
		c.count("cache.miss")
	}

	// The shared fetch outlives any single caller; the HTTP client timeout
	// bounds it and each caller stops waiting when its own ctx ends.
	shared := context.WithoutCancel(ctx)
	ch := c.group.DoChan(key, func() (interface{}, error) {
		b, _, err := c.send(shared, request{method: http.MethodGet, path: path, query: query, token: tok})
		return b, err
	})

	var body []byte
	select {
	case <-ctx.Done():
		return ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return res.Err
		}
		body = res.Val.([]byte)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return errors.Wrapf(err, "failed to decode %s", path)
	}

	if c.cache != nil && c.cacheTTL > 0 {
		if err := c.cache.Set(ctx, key, out, c.cacheTTL); err != nil {
			log.Warn().Err(err).Str("key", key).Msg("Failed to cache query")
		}
	}
	return nil
}

// sendJSON performs a request with an optional JSON body and decodes a JSON
// response into out when out is not nil.
func (c *Client) sendJSON(ctx context.Context, tok *Token, method, path string, in, out interface{}) error {
	var body io.Reader
	contentType := ""
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return errors.Wrap(err, "failed to encode request body")
		}
		body = bytes.NewReader(data)
		contentType = "application/json"
	}

	resp, _, err := c.send(ctx, request{method: method, path: path, body: body, contentType: contentType, token: tok})
	if err != nil {
		return err
	}
	return decodeInto(resp, out, path)
}

func decodeInto(body []byte, out interface{}, path string) error {
	if out == nil || len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return errors.Wrapf(err, "failed to decode %s", path)
	}
	return nil
}

// invalidate drops cached queries whose path starts with one of prefixes
func (c *Client) invalidate(ctx context.Context, prefixes ...string) {
	if c.cache == nil {
		return
	}
	for _, p := range prefixes {
		pattern := fmt.Sprintf("%s:*:%s*", cacheNamespace, p)
		if err := c.cache.DeleteMatching(ctx, pattern); err != nil {
			log.Warn().Err(err).Str("pattern", pattern).Msg("Failed to invalidate cached queries")
		}
	}
}

func (c *Client) count(name string) {
	if c.metrics != nil {
		c.metrics.IncrementCounter(name)
	}
}

const cacheNamespace = "query"

// cacheKey identifies a query by user, path and sorted parameters
func cacheKey(userID int, path string, query url.Values) string {
	key := fmt.Sprintf("%s:u%d:%s", cacheNamespace, userID, path)
	if len(query) > 0 {
		// Encode sorts by key
		key += "?" + query.Encode()
	}
	return key
}
