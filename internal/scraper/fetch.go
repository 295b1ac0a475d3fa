package scraper

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const browserUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/121.0.0.0 Safari/537.36"

// pageFetcher issues browser-like GET requests, paced by a rate limiter
type pageFetcher struct {
	client    *http.Client
	userAgent string
	limiter   *rate.Limiter
}

func newPageFetcher(timeout time.Duration, rps float64) *pageFetcher {
	return &pageFetcher{
		client: &http.Client{
			Timeout: timeout,
		},
		userAgent: browserUserAgent,
		limiter:   newLimiter(rps),
	}
}

// newLimiter paces requests to rps; zero or less means unlimited
func newLimiter(rps float64) *rate.Limiter {
	limit := rate.Inf
	if rps > 0 {
		limit = rate.Limit(rps)
	}
	return rate.NewLimiter(limit, 1)
}

// fetch returns the response body. A 404 maps to ErrNotFound and a 403 or
// 429 to ErrBlocked.
func (f *pageFetcher) fetch(ctx context.Context, url string, header http.Header) (string, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return "", err
	}

	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-AU,en;q=0.9")
	req.Header.Set("Accept-Encoding", "gzip")
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("Sec-Ch-Ua", `"Not_A Brand";v="8", "Chromium";v="121", "Google Chrome";v="121"`)
	req.Header.Set("Sec-Ch-Ua-Mobile", "?0")
	req.Header.Set("Sec-Ch-Ua-Platform", `"macOS"`)
	req.Header.Set("Sec-Fetch-Dest", "document")
	req.Header.Set("Sec-Fetch-Mode", "navigate")
	req.Header.Set("Sec-Fetch-Site", "none")
	req.Header.Set("Upgrade-Insecure-Requests", "1")
	for k, vs := range header {
		req.Header[k] = vs
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return "", ErrNotFound
	case resp.StatusCode == http.StatusForbidden, resp.StatusCode == http.StatusTooManyRequests:
		return "", fmt.Errorf("HTTP %d: %w", resp.StatusCode, ErrBlocked)
	case resp.StatusCode != http.StatusOK:
		return "", fmt.Errorf("HTTP %d: %s", resp.StatusCode, resp.Status)
	}

	// Handle gzip encoding
	var reader io.Reader = resp.Body
	if resp.Header.Get("Content-Encoding") == "gzip" {
		gr, err := gzip.NewReader(resp.Body)
		if err != nil {
			return "", fmt.Errorf("failed to create gzip reader: %w", err)
		}
		defer gr.Close()
		reader = gr
	}

	body, err := io.ReadAll(reader)
	if err != nil {
		return "", err
	}

	html := string(body)
	if len(html) < 5000 && strings.Contains(html, "KPSDK") {
		return "", ErrBlocked
	}
	return html, nil
}

// fetchJSON fetches an API document and decodes it into v when v is not nil.
// The undecoded body is returned for caching.
func (f *pageFetcher) fetchJSON(ctx context.Context, url string, header http.Header, v interface{}) (json.RawMessage, error) {
	h := header.Clone()
	if h == nil {
		h = http.Header{}
	}
	h.Set("Accept", "application/json")
	h.Set("Sec-Fetch-Dest", "empty")
	h.Set("Sec-Fetch-Mode", "cors")

	body, err := f.fetch(ctx, url, h)
	if err != nil {
		return nil, err
	}
	raw := json.RawMessage(body)
	if !json.Valid(raw) {
		return nil, fmt.Errorf("invalid JSON response from %s", url)
	}
	if v != nil {
		if err := json.Unmarshal(raw, v); err != nil {
			return nil, fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return raw, nil
}
