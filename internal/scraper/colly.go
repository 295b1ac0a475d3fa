package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"
	"github.com/gocolly/colly/v2/extensions"
	"golang.org/x/time/rate"
)

// pageCollector fetches single pages with a fresh colly collector per visit.
// Visits share one rate limiter.
type pageCollector struct {
	limiter *rate.Limiter
	timeout time.Duration
	logger  *slog.Logger
}

func newPageCollector(cfg Config, logger *slog.Logger) *pageCollector {
	return &pageCollector{
		limiter: newLimiter(cfg.RequestsPerSecond),
		timeout: cfg.Timeout,
		logger:  logger,
	}
}

// visit returns the body of pageURL
func (p *pageCollector) visit(ctx context.Context, pageURL string) (string, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return "", err
	}

	c := colly.NewCollector(colly.AllowURLRevisit())
	extensions.RandomUserAgent(c)
	extensions.Referer(c)

	timeout := p.timeout
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
	}
	if timeout > 0 {
		c.SetRequestTimeout(timeout)
	}

	var body string
	var fetchErr error

	c.OnRequest(func(r *colly.Request) {
		if ctx.Err() != nil {
			r.Abort()
			return
		}
		r.Headers.Set("Accept-Language", "en-AU,en;q=0.9")
		p.logger.Debug("Making request", "url", r.URL.String())
	})

	c.OnResponse(func(r *colly.Response) {
		body = string(r.Body)
	})

	c.OnError(func(r *colly.Response, err error) {
		switch r.StatusCode {
		case http.StatusNotFound:
			fetchErr = ErrNotFound
		case http.StatusForbidden, http.StatusTooManyRequests:
			fetchErr = fmt.Errorf("HTTP %d: %w", r.StatusCode, ErrBlocked)
		default:
			fetchErr = fmt.Errorf("request to %s failed: status=%d: %w", r.Request.URL, r.StatusCode, err)
		}
	})

	if err := c.Visit(pageURL); err != nil && fetchErr == nil {
		fetchErr = err
	}
	if ctx.Err() != nil {
		return "", ctx.Err()
	}
	if fetchErr != nil {
		return "", fetchErr
	}
	return body, nil
}
