package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/PuerkitoBio/goquery"

	"property-hub/internal/models"
)

// PropertyComAdapter fetches property.com.au property profiles
type PropertyComAdapter struct {
	fetcher *pageFetcher
	baseURL string
	timeout time.Duration
	logger  *slog.Logger
}

// NewPropertyComAdapter creates a property.com.au adapter
func NewPropertyComAdapter(cfg Config, logger *slog.Logger) *PropertyComAdapter {
	return &PropertyComAdapter{
		fetcher: newPageFetcher(cfg.Timeout, cfg.RequestsPerSecond),
		baseURL: "https://www.property.com.au",
		timeout: cfg.Timeout,
		logger:  logger.With("source", models.SourcePropertyCom),
	}
}

func (a *PropertyComAdapter) Source() models.SourceID { return models.SourcePropertyCom }

func (a *PropertyComAdapter) Fetch(ctx context.Context, addr models.Address) models.ScraperResult {
	return withTimeout(ctx, a.timeout, a.Source(), func(ctx context.Context) (models.RawResult, error) {
		pageURL := a.baseURL + "/property/" + addr.Slug()

		html, err := a.fetcher.fetch(ctx, pageURL, nil)
		if err != nil {
			return models.RawResult{}, err
		}
		return models.RawResult{Kind: models.RawHTML, URL: pageURL, HTML: html}, nil
	})
}

func (a *PropertyComAdapter) Parse(raw models.RawResult) (models.PropertyInfo, error) {
	var info models.PropertyInfo
	if raw.Kind != models.RawHTML {
		return info, fmt.Errorf("%s: expected HTML result, got %q", a.Source(), raw.Kind)
	}

	doc, err := parseDocument(raw.HTML)
	if err != nil {
		return info, fmt.Errorf("%s: %w", a.Source(), err)
	}

	// Attributes are a definition list of dt/dd pairs
	doc.Find("dl.property-attributes dt").Each(func(_ int, dt *goquery.Selection) {
		setLabelled(&info, dt.Text(), dt.NextFiltered("dd").Text())
	})

	if council := cleanText(doc.Find(".council-name").First().Text()); council != "" && info.Council == nil {
		info.Council = &council
	}

	applyJSONLD(&info, raw.HTML)

	if len(info.Populated()) == 0 {
		return info, errNoData(a.Source())
	}
	return info, nil
}
