package search

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/net/html"
	"golang.org/x/sync/errgroup"

	"scout/internal/logging"
)

const (
	maxFetchBytes = 1 << 20 // per-page download cap
	minTextChars  = 200     // below this the page likely needs JS rendering
	maxTextChars  = 10000   // per-page contribution cap to the session document
)

// Scraper fetches pages and extracts readable text. Concurrency is bounded;
// failures are logged and skipped rather than failing the batch.
type Scraper struct {
	cfg        Config
	httpClient *http.Client

	browserMu sync.Mutex
	browser   *Browser
}

// NewScraper builds a scraper from engine config.
func NewScraper(cfg Config) *Scraper {
	return &Scraper{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: cfg.FetchTimeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 5 {
					return fmt.Errorf("too many redirects")
				}
				return nil
			},
		},
	}
}

// Scrape fetches urls concurrently and returns url -> extracted text.
// URLs that fail, are domain-blocked, or yield no usable text are absent
// from the result.
func (s *Scraper) Scrape(ctx context.Context, urls []string) (map[string]string, error) {
	log := logging.Get(logging.CategoryScraper)

	var (
		mu      sync.Mutex
		content = make(map[string]string, len(urls))
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.ConcurrentFetch)

	for _, u := range urls {
		u := u
		if !s.domainAllowed(u) {
			log.Debug("skipping blocked domain", zap.String("url", u))
			continue
		}
		g.Go(func() error {
			text, err := s.fetchText(gctx, u)
			if err != nil {
				log.Debug("fetch failed", zap.String("url", u), zap.Error(err))
				return nil // skip, don't fail the batch
			}
			if text == "" {
				return nil
			}
			mu.Lock()
			content[u] = text
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return content, err
	}
	log.Info("scrape batch done",
		zap.Int("requested", len(urls)),
		zap.Int("scraped", len(content)))
	return content, nil
}

// fetchText downloads a page and extracts its readable text, falling back to
// a browser-rendered fetch when the static HTML carries too little.
func (s *Scraper) fetchText(ctx context.Context, url string) (string, error) {
	body, err := s.fetchStatic(ctx, url)
	if err != nil {
		return "", err
	}

	text := extractReadableText(body)

	if len(text) < minTextChars && s.cfg.BrowserFallback {
		rendered, rerr := s.fetchRendered(ctx, url)
		if rerr == nil {
			if rtext := extractReadableText(rendered); len(rtext) > len(text) {
				text = rtext
			}
		} else {
			logging.Get(logging.CategoryScraper).Debug("browser fallback failed",
				zap.String("url", url), zap.Error(rerr))
		}
	}

	if len(text) > maxTextChars {
		text = text[:maxTextChars] + "..."
	}
	return text, nil
}

func (s *Scraper) fetchStatic(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", s.cfg.UserAgent)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBytes))
	if err != nil {
		return "", err
	}
	return string(body), nil
}

func (s *Scraper) fetchRendered(ctx context.Context, url string) (string, error) {
	s.browserMu.Lock()
	if s.browser == nil {
		b, err := NewBrowser()
		if err != nil {
			s.browserMu.Unlock()
			return "", err
		}
		s.browser = b
	}
	b := s.browser
	s.browserMu.Unlock()

	return b.FetchHTML(ctx, url, s.cfg.FetchTimeout)
}

// domainAllowed applies the blocklist, then the allowlist (empty = all).
func (s *Scraper) domainAllowed(url string) bool {
	for _, blocked := range s.cfg.BlockedDomains {
		if strings.Contains(url, blocked) {
			return false
		}
	}
	if len(s.cfg.AllowedDomains) == 0 {
		return true
	}
	for _, allowed := range s.cfg.AllowedDomains {
		if strings.Contains(url, allowed) {
			return true
		}
	}
	return false
}

// Close shuts down the fallback browser if one was launched.
func (s *Scraper) Close() {
	s.browserMu.Lock()
	defer s.browserMu.Unlock()
	if s.browser != nil {
		s.browser.Close()
		s.browser = nil
	}
}

// skipElements are HTML elements whose text never belongs in findings.
var skipElements = map[string]bool{
	"script": true, "style": true, "noscript": true,
	"nav": true, "header": true, "footer": true, "aside": true,
	"form": true, "iframe": true, "svg": true,
}

// extractReadableText pulls visible text out of an HTML document, collapsing
// whitespace. Malformed HTML degrades gracefully because html.Parse always
// returns a tree.
func extractReadableText(htmlContent string) string {
	doc, err := html.Parse(strings.NewReader(htmlContent))
	if err != nil {
		return ""
	}

	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && skipElements[n.Data] {
			return
		}
		if n.Type == html.TextNode {
			if t := strings.TrimSpace(n.Data); t != "" {
				sb.WriteString(t)
				sb.WriteString(" ")
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	return strings.Join(strings.Fields(sb.String()), " ")
}
