package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"property-hub/internal/models"
)

// MicroburbsAdapter fetches the Microburbs property report page. It is
// the main source of nearby school data.
type MicroburbsAdapter struct {
	collector *pageCollector
	baseURL   string
	cfg       Config
}

// NewMicroburbsAdapter creates a microburbs.com.au adapter
func NewMicroburbsAdapter(cfg Config, logger *slog.Logger) *MicroburbsAdapter {
	return &MicroburbsAdapter{
		collector: newPageCollector(cfg, logger.With("source", models.SourceMicroburbs)),
		baseURL:   "https://www.microburbs.com.au",
		cfg:       cfg,
	}
}

func (a *MicroburbsAdapter) Source() models.SourceID { return models.SourceMicroburbs }

func (a *MicroburbsAdapter) Fetch(ctx context.Context, addr models.Address) models.ScraperResult {
	return withTimeout(ctx, a.cfg.Timeout, a.Source(), func(ctx context.Context) (models.RawResult, error) {
		params := url.Values{}
		params.Set("address", addr.String())
		pageURL := a.baseURL + "/report?" + params.Encode()

		html, err := a.collector.visit(ctx, pageURL)
		if err != nil {
			return models.RawResult{}, err
		}
		return models.RawResult{Kind: models.RawHTML, URL: pageURL, HTML: html}, nil
	})
}

func (a *MicroburbsAdapter) Parse(raw models.RawResult) (models.PropertyInfo, error) {
	var info models.PropertyInfo
	if raw.Kind != models.RawHTML {
		return info, fmt.Errorf("%s: expected HTML result, got %q", a.Source(), raw.Kind)
	}

	doc, err := parseDocument(raw.HTML)
	if err != nil {
		return info, fmt.Errorf("%s: %w", a.Source(), err)
	}

	doc.Find(".property-summary tr").Each(func(_ int, row *goquery.Selection) {
		setLabelled(&info, row.Find("th").Text(), row.Find("td").Text())
	})

	doc.Find(".school-list .school").Each(func(_ int, s *goquery.Selection) {
		name := cleanText(s.Find(".school-name").Text())
		if name == "" {
			return
		}
		school := models.School{
			Name:   name,
			Type:   cleanText(s.Find(".school-type").Text()),
			Sector: cleanText(s.Find(".school-sector").Text()),
		}
		if d := strings.TrimSpace(s.Find(".school-distance").Text()); d != "" {
			km := asFloat(d)
			if km != nil && strings.HasSuffix(strings.ToLower(d), "m") && !strings.HasSuffix(strings.ToLower(d), "km") {
				*km /= 1000
			}
			school.DistanceKm = km
		}
		info.NearbySchools = append(info.NearbySchools, school)
	})

	applyJSONLD(&info, raw.HTML)

	if len(info.Populated()) == 0 {
		return info, errNoData(a.Source())
	}
	return info, nil
}
