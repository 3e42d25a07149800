// Package connector polls web sources and turns newly seen links into raw
// pipeline events. Dedup against the processed-items ledger happens here,
// before anything reaches the broker, so a page scraped twice emits each
// headline once.
package connector

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// minTitleLen filters out navigation links; real headlines are longer.
const minTitleLen = 25

// Item is one candidate headline found on a page.
type Item struct {
	URL   string
	Title string
}

// Scraper fetches a page and extracts headline candidates.
type Scraper interface {
	Scrape(ctx context.Context, url string) ([]Item, error)
}

// WebScraper scrapes static HTML pages over plain HTTP.
type WebScraper struct {
	client *http.Client
}

func NewWebScraper() *WebScraper {
	return &WebScraper{client: &http.Client{Timeout: 15 * time.Second}}
}

func (s *WebScraper) Scrape(ctx context.Context, url string) ([]Item, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request for %s: %w", url, err)
	}
	req.Header.Set("User-Agent", "sentinel-connector/1.0")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s: status %d", url, resp.StatusCode)
	}
	return extractItems(resp.Body)
}

// extractItems pulls anchor tags that look like headlines: absolute links
// with a title long enough to not be navigation. Duplicate links keep only
// their first title.
func extractItems(r io.Reader) ([]Item, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	seen := make(map[string]struct{})
	var items []Item
	doc.Find("a").Each(func(_ int, sel *goquery.Selection) {
		href, ok := sel.Attr("href")
		if !ok || !strings.HasPrefix(href, "http") {
			return
		}
		title := strings.Join(strings.Fields(sel.Text()), " ")
		if len([]rune(title)) <= minTitleLen {
			return
		}
		if _, dup := seen[href]; dup {
			return
		}
		seen[href] = struct{}{}
		items = append(items, Item{URL: href, Title: title})
	})
	return items, nil
}
