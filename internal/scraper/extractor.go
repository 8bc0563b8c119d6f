// Package scraper extracts title, chapter list and chapter images from
// manga listing sites.
package scraper

import (
	"context"
	"log/slog"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/samber/lo"

	"mangabot/internal/domain"
	"mangabot/internal/metrics"
)

const (
	DefaultListingTimeout = 10 * time.Second
	DefaultChapterTimeout = 15 * time.Second
)

// Selectors locate the parts of a listing and a chapter page.
type Selectors struct {
	Title        string `json:"title" yaml:"title"`
	Cover        string `json:"cover" yaml:"cover"`
	ChapterLinks string `json:"chapterLinks" yaml:"chapterLinks"`
	Images       string `json:"images" yaml:"images"`
}

// DefaultSelectors match the WordPress manga theme used by the default site.
func DefaultSelectors() Selectors {
	return Selectors{
		Title:        ".post-title h1",
		Cover:        ".summary_image img",
		ChapterLinks: ".wp-manga-chapter a",
		Images:       ".reading-content img",
	}
}

// Site implements domain.Extractor for one listing site.
type Site struct {
	baseURL        string
	fetcher        Fetcher
	selectors      Selectors
	listingTimeout time.Duration
	chapterTimeout time.Duration
	logger         *slog.Logger
}

type SiteConfig struct {
	BaseURL        string // e.g. https://lekmanga.net
	Fetcher        Fetcher
	Selectors      Selectors
	ListingTimeout time.Duration
	ChapterTimeout time.Duration
	Logger         *slog.Logger
}

func NewSite(cfg SiteConfig) *Site {
	if cfg.Fetcher == nil {
		cfg.Fetcher = NewHTTPFetcher(nil, "")
	}
	if cfg.ListingTimeout <= 0 {
		cfg.ListingTimeout = DefaultListingTimeout
	}
	if cfg.ChapterTimeout <= 0 {
		cfg.ChapterTimeout = DefaultChapterTimeout
	}
	def := DefaultSelectors()
	cfg.Selectors.Title = lo.CoalesceOrEmpty(cfg.Selectors.Title, def.Title)
	cfg.Selectors.Cover = lo.CoalesceOrEmpty(cfg.Selectors.Cover, def.Cover)
	cfg.Selectors.ChapterLinks = lo.CoalesceOrEmpty(cfg.Selectors.ChapterLinks, def.ChapterLinks)
	cfg.Selectors.Images = lo.CoalesceOrEmpty(cfg.Selectors.Images, def.Images)

	return &Site{
		baseURL:        strings.TrimRight(cfg.BaseURL, "/"),
		fetcher:        cfg.Fetcher,
		selectors:      cfg.Selectors,
		listingTimeout: cfg.ListingTimeout,
		chapterTimeout: cfg.ChapterTimeout,
		logger:         cfg.Logger,
	}
}

// Slug lower-cases the query and replaces spaces with hyphens.
func Slug(query string) string {
	return strings.ReplaceAll(strings.ToLower(query), " ", "-")
}

// ListingURL builds <base>/manga/<slug>/ for a raw search query.
func (s *Site) ListingURL(query string) string {
	return s.baseURL + "/manga/" + url.PathEscape(Slug(query)) + "/"
}

// FetchListing returns ok=false when the page cannot be fetched or parsed,
// or carries neither a title nor a chapter link.
func (s *Site) FetchListing(ctx context.Context, pageURL string) (*domain.MangaInfo, bool) {
	ctx, cancel := context.WithTimeout(ctx, s.listingTimeout)
	defer cancel()

	start := time.Now()
	doc, err := s.fetcher.Fetch(ctx, pageURL)
	metrics.ListingLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		s.logger.Warn("listing fetch failed", "url", pageURL, "err", err)
		return nil, false
	}

	info := &domain.MangaInfo{
		Title:      strings.TrimSpace(doc.Find(s.selectors.Title).Text()),
		CoverImage: s.coverImage(doc),
		Chapters:   s.chapters(doc),
	}
	if info.Title == "" && len(info.Chapters) == 0 {
		s.logger.Info("listing page has no title or chapters", "url", pageURL)
		return nil, false
	}

	s.logger.Debug("listing extracted",
		"url", pageURL,
		"title", info.Title,
		"chapters", len(info.Chapters),
		"cover", info.HasCover(),
	)
	return info, true
}

// FetchChapterImages returns the reader's image URLs in page order, or an
// empty slice on any failure.
func (s *Site) FetchChapterImages(ctx context.Context, pageURL string) []string {
	ctx, cancel := context.WithTimeout(ctx, s.chapterTimeout)
	defer cancel()

	start := time.Now()
	doc, err := s.fetcher.Fetch(ctx, pageURL)
	metrics.ChapterLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		s.logger.Warn("chapter fetch failed", "url", pageURL, "err", err)
		return []string{}
	}

	srcs := doc.Find(s.selectors.Images).Map(func(_ int, img *goquery.Selection) string {
		src, _ := img.Attr("src")
		return resolve(doc.Url, strings.TrimSpace(src))
	})
	images := lo.Compact(srcs)

	s.logger.Debug("chapter extracted", "url", pageURL, "images", len(images))
	return images
}

func (s *Site) coverImage(doc *goquery.Document) string {
	src, _ := doc.Find(s.selectors.Cover).First().Attr("src")
	return resolve(doc.Url, strings.TrimSpace(src))
}

// chapters collects links in document order and reverses the whole list, so
// number 1 is the link that appears last on the page.
func (s *Site) chapters(doc *goquery.Document) []domain.Chapter {
	hrefs := doc.Find(s.selectors.ChapterLinks).Map(func(_ int, a *goquery.Selection) string {
		href, _ := a.Attr("href")
		return resolve(doc.Url, strings.TrimSpace(href))
	})
	slices.Reverse(hrefs)

	return lo.Map(hrefs, func(href string, i int) domain.Chapter {
		return domain.Chapter{Number: i + 1, URL: href}
	})
}

// resolve makes ref absolute against base. Empty refs stay empty.
func resolve(base *url.URL, ref string) string {
	if ref == "" || base == nil {
		return ref
	}
	u, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return base.ResolveReference(u).String()
}
