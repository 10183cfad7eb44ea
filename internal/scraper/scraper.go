// Package scraper implements the news scraping workflows: one per source
// (fetch the homepage, then parse its articles) and a parent workflow that
// runs both sources as child runs and combines their results.
package scraper

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

const (
	// DefaultTechCrunchURL is the TechCrunch AI category page.
	DefaultTechCrunchURL = "https://techcrunch.com/category/artificial-intelligence/"

	// DefaultGoogleNewsURL is the Google News top stories page.
	DefaultGoogleNewsURL = "https://news.google.com/topstories"

	// DefaultTimeout bounds a single homepage fetch.
	DefaultTimeout = 30 * time.Second

	userAgent = "scrapeflow/1.0 (+https://github.com/petrijr/scrapeflow)"
)

// Article is one scraped article.
type Article struct {
	Title         string `json:"title"`
	Author        string `json:"author"`
	Link          string `json:"link"`
	Excerpt       string `json:"excerpt"`
	PublishedTime string `json:"published_time"`
	ImageURL      string `json:"image_url"`
}

// FetchResult is the output of a fetch_homepage step. A failed fetch is
// reported with Status "error" and an empty ArticlesData rather than as a
// step failure.
type FetchResult struct {
	Status       string    `json:"status,omitempty"`
	Message      string    `json:"message,omitempty"`
	ArticlesData []Article `json:"articles_data"`
}

// ParseResult is the output of a parse_articles step.
type ParseResult struct {
	Status   string    `json:"status"`
	Message  string    `json:"message,omitempty"`
	Articles []Article `json:"articles"`
}

// Config configures the scrapers.
type Config struct {
	TechCrunchURL string
	GoogleNewsURL string

	// Timeout bounds each fetch. Zero means DefaultTimeout.
	Timeout time.Duration

	// Client is used for fetches. Defaults to a client with Timeout.
	Client *http.Client

	Logger *slog.Logger
}

func (c Config) withDefaults() Config {
	if c.TechCrunchURL == "" {
		c.TechCrunchURL = DefaultTechCrunchURL
	}
	if c.GoogleNewsURL == "" {
		c.GoogleNewsURL = DefaultGoogleNewsURL
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.Client == nil {
		c.Client = &http.Client{Timeout: c.Timeout}
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

// fetchDocument downloads url and parses it as HTML. Non-2xx responses are
// errors.
func fetchDocument(ctx context.Context, client *http.Client, url string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return nil, fmt.Errorf("%d %s for url: %s", resp.StatusCode, http.StatusText(resp.StatusCode), url)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return doc, nil
}

// softError is the fetch output used when the homepage cannot be loaded.
func softError(err error) FetchResult {
	return FetchResult{
		Status:       "error",
		Message:      err.Error(),
		ArticlesData: []Article{},
	}
}

// text returns the trimmed text of the first match, or "".
func text(sel *goquery.Selection) string {
	if sel.Length() == 0 {
		return ""
	}
	return strings.TrimSpace(sel.First().Text())
}

// attr returns the attribute of the first match, or "".
func attr(sel *goquery.Selection, name string) string {
	v, _ := sel.First().Attr(name)
	return v
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
