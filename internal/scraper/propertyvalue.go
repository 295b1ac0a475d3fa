package scraper

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/PuerkitoBio/goquery"

	"property-hub/internal/models"
)

// PropertyValueAdapter fetches the propertyvalue.com.au estimate page
type PropertyValueAdapter struct {
	collector *pageCollector
	baseURL   string
	cfg       Config
}

// NewPropertyValueAdapter creates a propertyvalue.com.au adapter
func NewPropertyValueAdapter(cfg Config, logger *slog.Logger) *PropertyValueAdapter {
	return &PropertyValueAdapter{
		collector: newPageCollector(cfg, logger.With("source", models.SourcePropertyValue)),
		baseURL:   "https://www.propertyvalue.com.au",
		cfg:       cfg,
	}
}

func (a *PropertyValueAdapter) Source() models.SourceID { return models.SourcePropertyValue }

func (a *PropertyValueAdapter) Fetch(ctx context.Context, addr models.Address) models.ScraperResult {
	return withTimeout(ctx, a.cfg.Timeout, a.Source(), func(ctx context.Context) (models.RawResult, error) {
		pageURL := a.baseURL + "/property/" + addr.Slug()

		html, err := a.collector.visit(ctx, pageURL)
		if err != nil {
			return models.RawResult{}, err
		}
		return models.RawResult{Kind: models.RawHTML, URL: pageURL, HTML: html}, nil
	})
}

func (a *PropertyValueAdapter) Parse(raw models.RawResult) (models.PropertyInfo, error) {
	var info models.PropertyInfo
	if raw.Kind != models.RawHTML {
		return info, fmt.Errorf("%s: expected HTML result, got %q", a.Source(), raw.Kind)
	}

	doc, err := parseDocument(raw.HTML)
	if err != nil {
		return info, fmt.Errorf("%s: %w", a.Source(), err)
	}

	doc.Find(".property-attributes li").Each(func(_ int, s *goquery.Selection) {
		setLabelled(&info, s.Find(".attr-label").Text(), s.Find(".attr-value").Text())
	})

	if v := parseMoney(doc.Find(`[data-testid="estimate-value"]`).Text()); v != nil {
		info.EstimatedValue = v
	}
	low, high := parseMoneyRange(doc.Find(`[data-testid="estimate-range"]`).Text())
	if low != nil && high != nil {
		info.EstimatedValueLow, info.EstimatedValueHigh = low, high
	}

	applyJSONLD(&info, raw.HTML)

	if len(info.Populated()) == 0 {
		return info, errNoData(a.Source())
	}
	return info, nil
}
