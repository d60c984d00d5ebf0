package search

import (
	"context"
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
)

// Browser wraps a headless Chrome instance used to render JS-heavy pages the
// static fetcher cannot read. Launching is expensive, so one instance is
// shared and pages are opened per fetch.
type Browser struct {
	launcher *launcher.Launcher
	browser  *rod.Browser
}

// NewBrowser launches a headless browser. Fails if no Chrome/Chromium can be
// found or downloaded.
func NewBrowser() (*Browser, error) {
	l := launcher.New().Headless(true)
	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("launch browser: %w", err)
	}

	b := rod.New().ControlURL(controlURL)
	if err := b.Connect(); err != nil {
		l.Cleanup()
		return nil, fmt.Errorf("connect browser: %w", err)
	}

	return &Browser{launcher: l, browser: b}, nil
}

// FetchHTML navigates to url, waits for the page to load, and returns the
// rendered HTML.
func (b *Browser) FetchHTML(ctx context.Context, url string, timeout time.Duration) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	page, err := b.browser.Context(ctx).Page(proto.TargetCreateTarget{URL: url})
	if err != nil {
		return "", fmt.Errorf("open page: %w", err)
	}
	defer page.Close()

	if err := page.WaitLoad(); err != nil {
		return "", fmt.Errorf("wait load: %w", err)
	}

	htmlContent, err := page.HTML()
	if err != nil {
		return "", fmt.Errorf("read html: %w", err)
	}
	return htmlContent, nil
}

// Close shuts down the browser and cleans up the launcher.
func (b *Browser) Close() {
	if b.browser != nil {
		_ = b.browser.Close()
	}
	if b.launcher != nil {
		b.launcher.Cleanup()
	}
}
