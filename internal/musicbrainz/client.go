// Crescendo - AI-Assisted Music Discovery for Media Libraries
// Copyright 2026 Crescendo Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/crescendo-app/crescendo

// Package musicbrainz is a read-only client for the MusicBrainz search API,
// used as the external reference for existence checks. The service publishes
// a hard rate limit of one request per second per client, enforced here
// through a shared bucket; results are memoized so repeated lookups inside a
// burst of invocations don't consume the budget.
package musicbrainz

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/crescendo-app/crescendo/internal/cache"
	"github.com/crescendo-app/crescendo/internal/logging"
	"github.com/crescendo-app/crescendo/internal/metrics"
	"github.com/crescendo-app/crescendo/internal/models"
	"github.com/crescendo-app/crescendo/internal/ratelimit"
)

// RateLimitKey is the shared bucket key for all MusicBrainz traffic.
const RateLimitKey = "musicbrainz"

// maxResponseBytes bounds how much of a search response is read.
const maxResponseBytes = 1 << 20

// Config carries the client settings.
type Config struct {
	// BaseURL is the API root, e.g. "https://musicbrainz.org".
	BaseURL string

	// UserAgent identifies this client, as the service requires.
	UserAgent string

	// Timeout bounds one search request.
	Timeout time.Duration

	// PositiveTTL is how long confirmed matches are memoized.
	PositiveTTL time.Duration

	// NegativeTTL is how long zero-match results are memoized. Kept short so
	// freshly released albums stop being rejected quickly.
	NegativeTTL time.Duration
}

// Client performs artist and release-group searches.
type Client struct {
	cfg    Config
	httpc  *http.Client
	limits *ratelimit.Registry
	memo   *cache.Cache
}

// New creates a client. The limiter registry is shared with the rest of the
// pipeline; the memo cache is owned by the client.
func New(cfg Config, limits *ratelimit.Registry) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://musicbrainz.org"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.PositiveTTL <= 0 {
		cfg.PositiveTTL = 24 * time.Hour
	}
	if cfg.NegativeTTL <= 0 {
		cfg.NegativeTTL = 15 * time.Minute
	}
	return &Client{
		cfg:    cfg,
		httpc:  &http.Client{Timeout: cfg.Timeout},
		limits: limits,
		memo:   cache.New(cfg.PositiveTTL),
	}
}

// Close stops the memo cache's background sweep.
func (c *Client) Close() {
	c.memo.Stop()
}

// SearchArtist returns the number of artists matching the name.
func (c *Client) SearchArtist(ctx context.Context, artist string) (int, error) {
	query := fmt.Sprintf(`artist:"%s"`, escapeLucene(artist))
	return c.search(ctx, "artist", query, models.NormalizeName(artist))
}

// SearchRelease returns the number of release groups matching artist+title.
func (c *Client) SearchRelease(ctx context.Context, artist, title string) (int, error) {
	query := fmt.Sprintf(`artist:"%s" AND releasegroup:"%s"`,
		escapeLucene(artist), escapeLucene(title))
	key := models.NormalizeName(artist) + "|" + models.NormalizeName(title)
	return c.search(ctx, "release-group", query, key)
}

// searchResponse is the subset of the search payload we consume.
type searchResponse struct {
	Count int `json:"count"`
}

func (c *Client) search(ctx context.Context, entity, query, memoKey string) (int, error) {
	cacheKey := cache.GenerateKey(entity, memoKey)
	if v, ok := c.memo.Get(cacheKey); ok {
		metrics.LookupRequests.WithLabelValues("cached").Inc()
		return v.(int), nil
	}

	if err := c.limits.Acquire(ctx, RateLimitKey); err != nil {
		metrics.LookupRequests.WithLabelValues("error").Inc()
		return 0, fmt.Errorf("musicbrainz rate limit: %w", err)
	}

	count, err := c.doSearch(ctx, entity, query)
	if err != nil {
		metrics.LookupRequests.WithLabelValues("error").Inc()
		return 0, err
	}

	if count > 0 {
		metrics.LookupRequests.WithLabelValues("match").Inc()
		c.memo.SetWithTTL(cacheKey, count, c.cfg.PositiveTTL)
	} else {
		metrics.LookupRequests.WithLabelValues("no_match").Inc()
		c.memo.SetWithTTL(cacheKey, count, c.cfg.NegativeTTL)
	}
	return count, nil
}

func (c *Client) doSearch(ctx context.Context, entity, query string) (int, error) {
	u := fmt.Sprintf("%s/ws/2/%s?query=%s&fmt=json&limit=1",
		c.cfg.BaseURL, entity, url.QueryEscape(query))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return 0, fmt.Errorf("build search request: %w", err)
	}
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpc.Do(req)
	if err != nil {
		return 0, fmt.Errorf("musicbrainz %s search: %w", entity, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 512))
		return 0, fmt.Errorf("musicbrainz %s search: status %d", entity, resp.StatusCode)
	}

	var out searchResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&out); err != nil {
		return 0, fmt.Errorf("musicbrainz %s search: decode: %w", entity, err)
	}

	logging.Debug().
		Str("entity", entity).
		Int("count", out.Count).
		Dur("elapsed", time.Since(start)).
		Msg("musicbrainz lookup")
	return out.Count, nil
}

// escapeLucene escapes characters with meaning inside a quoted Lucene phrase.
func escapeLucene(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `"`, `\"`)
}
