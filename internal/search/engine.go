// Package search implements the web retrieval side of scout: DuckDuckGo HTML
// search, model-driven relevance selection, and bounded-concurrency scraping
// with an optional browser-rendered fallback.
package search

import (
	"context"
	"time"

	"scout/internal/llm"
)

// TimeRange is the coarse recency filter applied to a search query.
type TimeRange string

const (
	RangeDay   TimeRange = "d"
	RangeWeek  TimeRange = "w"
	RangeMonth TimeRange = "m"
	RangeYear  TimeRange = "y"
	RangeNone  TimeRange = "none"
)

// ParseTimeRange maps a one-letter token to a TimeRange; anything
// unrecognized is RangeNone.
func ParseTimeRange(s string) TimeRange {
	switch TimeRange(s) {
	case RangeDay, RangeWeek, RangeMonth, RangeYear:
		return TimeRange(s)
	default:
		return RangeNone
	}
}

// Result is a single search hit.
type Result struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

// Config tunes the engine.
type Config struct {
	MaxResults      int
	SelectLimit     int
	ConcurrentFetch int
	FetchTimeout    time.Duration
	UserAgent       string
	AllowedDomains  []string
	BlockedDomains  []string
	BrowserFallback bool
}

// DefaultConfig returns sensible engine defaults.
func DefaultConfig() Config {
	return Config{
		MaxResults:      10,
		SelectLimit:     3,
		ConcurrentFetch: 2,
		FetchTimeout:    30 * time.Second,
		UserAgent:       "scout/1.0 (research agent)",
		BlockedDomains: []string{
			"facebook.com", "twitter.com", "instagram.com",
			"linkedin.com", "tiktok.com",
		},
	}
}

// WebEngine combines search, selection, and scraping. It is stateless apart
// from the lazily launched fallback browser, so one engine serves a whole
// process.
type WebEngine struct {
	cfg     Config
	client  llm.Client
	scraper *Scraper
}

// NewWebEngine builds an engine. client is used only for relevance
// selection; pass nil to fall back to top-ranked results.
func NewWebEngine(cfg Config, client llm.Client) *WebEngine {
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = 10
	}
	if cfg.SelectLimit <= 0 {
		cfg.SelectLimit = 3
	}
	if cfg.ConcurrentFetch <= 0 {
		cfg.ConcurrentFetch = 2
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 30 * time.Second
	}
	return &WebEngine{
		cfg:     cfg,
		client:  client,
		scraper: NewScraper(cfg),
	}
}

// Search runs a DuckDuckGo query with the given recency filter.
func (e *WebEngine) Search(ctx context.Context, query string, tr TimeRange) ([]Result, error) {
	return searchDuckDuckGo(ctx, query, tr, e.cfg)
}

// Scrape fetches the given URLs and returns url -> extracted text. URLs that
// fail or yield no usable text are simply absent from the map.
func (e *WebEngine) Scrape(ctx context.Context, urls []string) (map[string]string, error) {
	return e.scraper.Scrape(ctx, urls)
}

// Close releases the fallback browser, if one was ever launched.
func (e *WebEngine) Close() {
	e.scraper.Close()
}
