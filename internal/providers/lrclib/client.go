// Package lrclib is a client for the LRCLib lyrics API.
package lrclib

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	jsoniter "github.com/json-iterator/go"

	"github.com/Gasiyu/Composer/internal/match"
	"github.com/Gasiyu/Composer/internal/provider"
	"github.com/Gasiyu/Composer/internal/ratelimit"
)

const (
	DefaultBaseURL   = "https://lrclib.net/api"
	DefaultUserAgent = "Composer/1.0 (https://github.com/Gasiyu/Composer)"
	DefaultTimeout   = 10 * time.Second
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type Config struct {
	BaseURL     string
	UserAgent   string
	Timeout     time.Duration
	MaxRequests int
	Window      time.Duration
	CacheSize   int
	CacheTTL    time.Duration

	// Optional overrides.
	HTTPClient *http.Client
	Limiter    *ratelimit.Limiter
	Logger     *slog.Logger
}

type Client struct {
	cfg     Config
	client  *http.Client
	limiter *ratelimit.Limiter
	cache   *expirable.LRU[string, []provider.Candidate]
	logger  *slog.Logger
}

func New(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	c := &Client{cfg: cfg, client: cfg.HTTPClient, limiter: cfg.Limiter, logger: cfg.Logger}
	if c.client == nil {
		c.client = &http.Client{Timeout: cfg.Timeout}
	}
	if c.limiter == nil {
		c.limiter = ratelimit.New(cfg.MaxRequests, cfg.Window)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	c.logger = c.logger.With(slog.String("component", "lrclib"))
	if cfg.CacheSize > 0 && cfg.CacheTTL > 0 {
		c.cache = expirable.NewLRU[string, []provider.Candidate](cfg.CacheSize, nil, cfg.CacheTTL)
	}
	return c
}

func (c *Client) Source() provider.Source { return provider.SourceLRCLib }

// Search returns candidates for q ordered by descending accuracy. It retries
// once with Latin names when the first attempt finds nothing.
func (c *Client) Search(ctx context.Context, q provider.Query) []provider.Candidate {
	return c.SearchWithFallback(ctx, q, true)
}

// SearchWithFallback is Search with control over the Latin-name retry.
// Errors are logged and reported as an empty result.
func (c *Client) SearchWithFallback(ctx context.Context, q provider.Query, allowFallback bool) []provider.Candidate {
	items, err := c.search(ctx, q)
	if err != nil {
		c.logFailure(ctx, "search failed", err, slog.String("title", q.Title), slog.String("artist", q.Artist))
		items = nil
	}

	results := make([]provider.Candidate, 0, len(items))
	for _, item := range items {
		item.Score = match.Score(item, q)
		results = append(results, item)
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })

	if len(results) > 0 || !allowFallback {
		c.logger.Info("search complete",
			slog.String("title", q.Title), slog.String("artist", q.Artist), slog.Int("results", len(results)))
		return results
	}

	alt, ok := LatinFallback(q)
	if !ok {
		return results
	}
	c.logger.Info("retrying search with latin names",
		slog.String("title", alt.Title), slog.String("artist", alt.Artist), slog.String("album", alt.Album))
	return c.SearchWithFallback(ctx, alt, false)
}

func (c *Client) search(ctx context.Context, q provider.Query) ([]provider.Candidate, error) {
	params := url.Values{}
	params.Set("track_name", q.Title)
	params.Set("artist_name", q.Artist)
	if q.Album != "" {
		params.Set("album_name", q.Album)
	}
	if q.Duration > 0 {
		params.Set("duration", strconv.Itoa(q.Duration))
	}
	u := c.cfg.BaseURL + "/search?" + params.Encode()

	if c.cache != nil {
		if cached, ok := c.cache.Get(u); ok {
			c.logger.Debug("search cache hit", slog.String("url", u))
			return cloneCandidates(cached), nil
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	c.logger.Debug("searching lyrics", slog.String("url", u))
	resp, err := c.doRequest(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if err := statusError(resp.StatusCode); err != nil {
		return nil, err
	}

	var data []lyricsItem
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, fmt.Errorf("%w: %v", provider.ErrInvalidResponse, err)
	}
	items := make([]provider.Candidate, 0, len(data))
	for _, d := range data {
		cand := d.candidate()
		if !cand.Valid() {
			continue
		}
		items = append(items, cand)
	}
	if c.cache != nil && len(items) > 0 {
		c.cache.Add(u, cloneCandidates(items))
	}
	return items, nil
}

// GetByID fetches one lyrics record. A missing record is reported as false
// without an error being logged.
func (c *Client) GetByID(ctx context.Context, id string) (provider.Candidate, bool) {
	if strings.TrimSpace(id) == "" {
		return provider.Candidate{}, false
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/get/"+url.PathEscape(id), nil)
	if err != nil {
		c.logger.Error("build request", slog.String("id", id), slog.Any("err", err))
		return provider.Candidate{}, false
	}
	resp, err := c.doRequest(req)
	if err != nil {
		c.logFailure(ctx, "get lyrics failed", err, slog.String("id", id))
		return provider.Candidate{}, false
	}
	defer resp.Body.Close()
	if err := statusError(resp.StatusCode); err != nil {
		c.logFailure(ctx, "get lyrics failed", err, slog.String("id", id))
		return provider.Candidate{}, false
	}
	var item lyricsItem
	if err := json.NewDecoder(resp.Body).Decode(&item); err != nil {
		c.logFailure(ctx, "decode lyrics", fmt.Errorf("%w: %v", provider.ErrInvalidResponse, err), slog.String("id", id))
		return provider.Candidate{}, false
	}
	cand := item.candidate()
	if !cand.Valid() {
		return provider.Candidate{}, false
	}
	c.logger.Info("retrieved lyrics", slog.String("id", id))
	return cand, true
}

// Health issues a cheap search to check that the API answers, and reports
// how many requests are left in the current rate-limit window.
func (c *Client) Health(ctx context.Context) (bool, string) {
	_, err := c.search(ctx, provider.Query{Title: "test", Artist: "test"})
	if err != nil {
		return false, err.Error()
	}
	return true, fmt.Sprintf("ok, %d requests left in window", c.limiter.Available())
}

// logFailure logs err with a level and reason that tell a transient
// failure from a broken one.
func (c *Client) logFailure(ctx context.Context, msg string, err error, attrs ...any) {
	level, reason := slog.LevelError, "error"
	switch {
	case provider.IsNotFound(err):
		level, reason = slog.LevelInfo, "not found"
	case provider.IsRateLimited(err):
		level, reason = slog.LevelWarn, "rate limited"
	case provider.IsTemporary(err):
		level, reason = slog.LevelWarn, "temporary"
	case errors.Is(err, context.Canceled):
		level, reason = slog.LevelDebug, "cancelled"
	case provider.IsInvalidResponse(err):
		reason = "invalid response"
	}
	attrs = append(attrs, slog.String("reason", reason), slog.Any("err", err))
	c.logger.Log(ctx, level, msg, attrs...)
}

func (c *Client) doRequest(req *http.Request) (*http.Response, error) {
	if c.limiter.Available() == 0 {
		c.logger.Debug("rate limit reached, waiting for a free slot", slog.String("url", req.URL.String()))
	}
	if err := c.limiter.Acquire(req.Context()); err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, mapHTTPError(err)
	}
	return resp, nil
}

func statusError(code int) error {
	switch {
	case code == http.StatusOK:
		return nil
	case code == http.StatusNotFound:
		return provider.ErrNotFound
	case code == http.StatusTooManyRequests:
		return provider.ErrRateLimited
	case code >= 500:
		return fmt.Errorf("%w: http status %d", provider.ErrTemporary, code)
	default:
		return fmt.Errorf("http status %d", code)
	}
}

func mapHTTPError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", provider.ErrTemporary, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", provider.ErrTemporary, err)
	}
	return err
}

type lyricsItem struct {
	ID           *int64  `json:"id"`
	TrackName    string  `json:"trackName"`
	ArtistName   string  `json:"artistName"`
	AlbumName    string  `json:"albumName"`
	Duration     float64 `json:"duration"`
	Instrumental bool    `json:"instrumental"`
	PlainLyrics  string  `json:"plainLyrics"`
	SyncedLyrics string  `json:"syncedLyrics"`
}

func (i lyricsItem) candidate() provider.Candidate {
	c := provider.Candidate{
		Title:        i.TrackName,
		Artist:       i.ArtistName,
		Album:        i.AlbumName,
		Duration:     i.Duration,
		PlainLyrics:  i.PlainLyrics,
		SyncedLyrics: i.SyncedLyrics,
		Source:       provider.SourceLRCLib,
	}
	if i.ID != nil {
		c.ID = strconv.FormatInt(*i.ID, 10)
	}
	return c
}

func cloneCandidates(in []provider.Candidate) []provider.Candidate {
	out := make([]provider.Candidate, len(in))
	copy(out, in)
	return out
}

var parenGroup = regexp.MustCompile(`\(([^()]*)\)`)

// LatinFallback rewrites every field that has characters outside Latin-1
// and a parenthesized group to the trimmed content of its first group, e.g.
// "愛 (Love)" becomes "Love". It reports false when no field qualified.
func LatinFallback(q provider.Query) (provider.Query, bool) {
	changed := false
	sub := func(s string) string {
		alt, ok := latinAlternative(s)
		if ok {
			changed = true
			return alt
		}
		return s
	}
	out := q
	out.Title = sub(q.Title)
	out.Artist = sub(q.Artist)
	if q.Album != "" {
		out.Album = sub(q.Album)
	}
	return out, changed
}

func latinAlternative(s string) (string, bool) {
	if !hasNonLatin1(s) {
		return "", false
	}
	m := parenGroup.FindStringSubmatch(s)
	if m == nil {
		return "", false
	}
	alt := strings.TrimSpace(m[1])
	if alt == "" {
		return "", false
	}
	return alt, true
}

func hasNonLatin1(s string) bool {
	for _, r := range s {
		if r > 0xFF {
			return true
		}
	}
	return false
}
