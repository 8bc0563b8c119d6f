package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/chromedp/chromedp"
)

// BrowserFetcher renders pages in headless Chrome before parsing them, for
// sites that build their chapter lists or readers with JavaScript.
type BrowserFetcher struct {
	profileDir string
	headless   bool
	userAgent  string
	logger     *slog.Logger
}

type BrowserConfig struct {
	ProfileDir string // Chrome user data directory; empty uses a throwaway profile
	Headless   bool
	UserAgent  string
	Logger     *slog.Logger
}

func NewBrowserFetcher(cfg BrowserConfig) *BrowserFetcher {
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	return &BrowserFetcher{
		profileDir: cfg.ProfileDir,
		headless:   cfg.Headless,
		userAgent:  cfg.UserAgent,
		logger:     cfg.Logger,
	}
}

// newContext creates a chromedp task context. The caller must call cancel.
func (b *BrowserFetcher) newContext(parent context.Context) (context.Context, context.CancelFunc) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.UserAgent(b.userAgent),
	)
	if b.profileDir != "" {
		if err := os.MkdirAll(b.profileDir, 0o755); err != nil {
			b.logger.Warn("cannot create chrome profile dir", "dir", b.profileDir, "err", err)
		}
		opts = append(opts, chromedp.UserDataDir(b.profileDir))
	}
	if b.headless {
		opts = append(opts, chromedp.Headless)
	} else {
		opts = append(opts, chromedp.Flag("headless", false))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(parent, opts...)
	taskCtx, taskCancel := chromedp.NewContext(allocCtx)

	return taskCtx, func() {
		taskCancel()
		allocCancel()
	}
}

func (b *BrowserFetcher) Fetch(ctx context.Context, pageURL string) (*goquery.Document, error) {
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}

	taskCtx, cancel := b.newContext(ctx)
	defer cancel()

	var html string
	err = chromedp.Run(taskCtx,
		chromedp.Navigate(pageURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		return nil, fmt.Errorf("render %s: %w", pageURL, err)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", pageURL, err)
	}
	doc.Url = base
	return doc, nil
}
