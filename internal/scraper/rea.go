package scraper

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"property-hub/internal/models"
)

var argonautPattern = regexp.MustCompile(`(?s)window\.ArgonautExchange\s*=\s*(\{.+?\});?\s*</script>`)

// renderer returns the fully rendered HTML of a page
type renderer interface {
	render(ctx context.Context, pageURL string) (string, error)
}

type scrapingBeeRenderer struct {
	client *ScrapingBeeClient
}

func (r scrapingBeeRenderer) render(ctx context.Context, pageURL string) (string, error) {
	return r.client.FetchHTML(ctx, pageURL, PropertyPageOptions())
}

// REAAdapter fetches realestate.com.au property pages. REA sits behind
// Kasada bot protection, so pages are rendered in headless Chrome or, when
// an API key is configured, through ScrapingBee.
type REAAdapter struct {
	renderer renderer
	browser  *browser
	baseURL  string
	timeout  time.Duration
	logger   *slog.Logger
}

// NewREAAdapter creates a realestate.com.au adapter
func NewREAAdapter(cfg Config, logger *slog.Logger) *REAAdapter {
	logger = logger.With("source", models.SourceREA)
	a := &REAAdapter{
		baseURL: "https://www.realestate.com.au",
		timeout: cfg.Timeout,
		logger:  logger,
	}

	if cfg.ScrapingBeeAPIKey != "" {
		logger.Info("Using ScrapingBee for realestate.com.au")
		a.renderer = scrapingBeeRenderer{client: NewScrapingBeeClient(cfg.ScrapingBeeAPIKey, logger)}
	} else {
		a.browser = newBrowser(cfg.Headless, logger)
		a.renderer = a.browser
	}
	return a
}

func (a *REAAdapter) Source() models.SourceID { return models.SourceREA }

// Close stops the browser, if one was started
func (a *REAAdapter) Close() {
	if a.browser != nil {
		a.browser.close()
	}
}

func (a *REAAdapter) Fetch(ctx context.Context, addr models.Address) models.ScraperResult {
	return withTimeout(ctx, a.timeout, a.Source(), func(ctx context.Context) (models.RawResult, error) {
		pageURL := a.baseURL + "/property/" + addr.Slug()

		html, err := a.renderer.render(ctx, pageURL)
		if err != nil {
			return models.RawResult{}, err
		}

		// Check if we're still on a challenge page
		if strings.Contains(html, "KPSDK") && len(html) < 5000 {
			return models.RawResult{}, ErrBlocked
		}
		if strings.Contains(html, "Sorry, we couldn't find that property") {
			return models.RawResult{}, ErrNotFound
		}

		return models.RawResult{Kind: models.RawHTML, URL: pageURL, HTML: html}, nil
	})
}

var reaKeys = jsonKeys{
	models.FieldBedrooms:           {"bedrooms"},
	models.FieldBathrooms:          {"bathrooms"},
	models.FieldCarSpaces:          {"parkingSpaces", "carSpaces"},
	models.FieldLandArea:           {"landArea", "landSize"},
	models.FieldFloorArea:          {"floorArea", "buildingSize"},
	models.FieldYearBuilt:          {"yearBuilt"},
	models.FieldPropertyType:       {"propertyType"},
	models.FieldEstimatedValue:     {"midPrice", "estimate"},
	models.FieldEstimatedValueLow:  {"lowerPrice", "lowEstimate"},
	models.FieldEstimatedValueHigh: {"upperPrice", "highEstimate"},
	models.FieldEstimatedRent:      {"rentEstimate", "weeklyRent"},
	models.FieldLastSalePrice:      {"lastSoldPrice"},
	models.FieldLastSaleDate:       {"lastSoldDate"},
	models.FieldLatitude:           {"latitude"},
	models.FieldLongitude:          {"longitude"},
}

func (a *REAAdapter) Parse(raw models.RawResult) (models.PropertyInfo, error) {
	if raw.Kind != models.RawHTML {
		return models.PropertyInfo{}, fmt.Errorf("%s: expected HTML result, got %q", a.Source(), raw.Kind)
	}

	var info models.PropertyInfo

	// First try to extract from embedded JSON (ArgonautExchange)
	if m := argonautPattern.FindStringSubmatch(raw.HTML); len(m) >= 2 {
		var data map[string]interface{}
		if err := json.Unmarshal([]byte(m[1]), &data); err == nil {
			info = extractFromJSON(decodeNested(data, 0), reaKeys)
		}
	}

	applyJSONLD(&info, raw.HTML)

	// Fall back to the rendered attribute list
	doc, err := parseDocument(raw.HTML)
	if err != nil {
		return info, fmt.Errorf("%s: %w", a.Source(), err)
	}
	doc.Find(`[data-testid="property-attribute"]`).Each(func(_ int, s *goquery.Selection) {
		setLabelled(&info, s.Find(`[data-testid="attribute-label"]`).Text(), s.Find(`[data-testid="attribute-value"]`).Text())
	})
	if info.EstimatedValueLow == nil && info.EstimatedValueHigh == nil {
		low, high := parseMoneyRange(doc.Find(`[data-testid="valuation-range"]`).Text())
		info.EstimatedValueLow, info.EstimatedValueHigh = low, high
	}

	if len(info.Populated()) == 0 {
		return info, errNoData(a.Source())
	}
	return info, nil
}
