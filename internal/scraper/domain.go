package scraper

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"property-hub/internal/models"
)

// DomainAdapter fetches property profiles from Domain.com.au. With an API
// key it uses the official API, otherwise it reads the public property
// profile page.
type DomainAdapter struct {
	fetcher *pageFetcher
	apiKey  string
	apiURL  string
	webURL  string
	timeout time.Duration
	logger  *slog.Logger
}

// NewDomainAdapter creates a Domain adapter
func NewDomainAdapter(cfg Config, logger *slog.Logger) *DomainAdapter {
	return &DomainAdapter{
		fetcher: newPageFetcher(cfg.Timeout, cfg.RequestsPerSecond),
		apiKey:  cfg.DomainAPIKey,
		apiURL:  "https://api.domain.com.au",
		webURL:  "https://www.domain.com.au",
		timeout: cfg.Timeout,
		logger:  logger.With("source", models.SourceDomain),
	}
}

func (a *DomainAdapter) Source() models.SourceID { return models.SourceDomain }

func (a *DomainAdapter) Fetch(ctx context.Context, addr models.Address) models.ScraperResult {
	return withTimeout(ctx, a.timeout, a.Source(), func(ctx context.Context) (models.RawResult, error) {
		if a.apiKey != "" {
			return a.fetchAPI(ctx, addr)
		}
		return a.fetchProfilePage(ctx, addr)
	})
}

// domainSuggestion is one result of the property suggest endpoint
type domainSuggestion struct {
	ID      string `json:"id"`
	Address string `json:"address"`
}

// domainAPIDocument is the combined response cached for one property
type domainAPIDocument struct {
	Property      json.RawMessage `json:"property"`
	PriceEstimate json.RawMessage `json:"priceEstimate,omitempty"`
}

func (a *DomainAdapter) fetchAPI(ctx context.Context, addr models.Address) (models.RawResult, error) {
	header := http.Header{}
	header.Set("X-API-Key", a.apiKey)

	params := url.Values{}
	params.Set("terms", addr.String())
	params.Set("pageSize", "1")
	params.Set("channel", "All")

	var suggestions []domainSuggestion
	if _, err := a.fetcher.fetchJSON(ctx, a.apiURL+"/v1/properties/_suggest?"+params.Encode(), header, &suggestions); err != nil {
		return models.RawResult{}, fmt.Errorf("property suggest failed: %w", err)
	}
	if len(suggestions) == 0 || suggestions[0].ID == "" {
		return models.RawResult{}, ErrNotFound
	}
	id := url.PathEscape(suggestions[0].ID)

	var doc domainAPIDocument
	var err error
	doc.Property, err = a.fetcher.fetchJSON(ctx, a.apiURL+"/v1/properties/"+id, header, nil)
	if err != nil {
		return models.RawResult{}, fmt.Errorf("property details failed: %w", err)
	}

	doc.PriceEstimate, err = a.fetcher.fetchJSON(ctx, a.apiURL+"/v1/properties/"+id+"/priceEstimate", header, nil)
	if err != nil {
		if ctx.Err() != nil {
			return models.RawResult{}, ctx.Err()
		}
		a.logger.Debug("Domain price estimate unavailable", "property_id", suggestions[0].ID, "error", err)
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return models.RawResult{}, err
	}
	return models.RawResult{
		Kind: models.RawJSON,
		URL:  a.apiURL + "/v1/properties/" + id,
		Data: data,
	}, nil
}

func (a *DomainAdapter) fetchProfilePage(ctx context.Context, addr models.Address) (models.RawResult, error) {
	pageURL := a.webURL + "/property-profile/" + addr.Slug()

	html, err := a.fetcher.fetch(ctx, pageURL, nil)
	if err != nil {
		return models.RawResult{}, err
	}
	return models.RawResult{Kind: models.RawHTML, URL: pageURL, HTML: html}, nil
}

var domainAPIKeys = jsonKeys{
	models.FieldBedrooms:           {"bedrooms"},
	models.FieldBathrooms:          {"bathrooms"},
	models.FieldCarSpaces:          {"carSpaces"},
	models.FieldLandArea:           {"areaSize", "landArea"},
	models.FieldFloorArea:          {"internalArea", "buildingArea"},
	models.FieldYearBuilt:          {"yearBuilt"},
	models.FieldPropertyType:       {"propertyCategory", "propertyType"},
	models.FieldZoning:             {"zone"},
	models.FieldCouncil:            {"lgaName", "localGovernmentArea"},
	models.FieldEstimatedValue:     {"midPrice"},
	models.FieldEstimatedValueLow:  {"lowerPrice"},
	models.FieldEstimatedValueHigh: {"upperPrice"},
	models.FieldLatitude:           {"lat", "latitude"},
	models.FieldLongitude:          {"lon", "longitude"},
}

var domainWebKeys = jsonKeys{
	models.FieldBedrooms:           {"bedrooms", "beds"},
	models.FieldBathrooms:          {"bathrooms", "baths"},
	models.FieldCarSpaces:          {"parkingSpaces", "carSpaces"},
	models.FieldLandArea:           {"landArea", "landSize"},
	models.FieldFloorArea:          {"internalArea", "buildingSize"},
	models.FieldYearBuilt:          {"yearBuilt"},
	models.FieldPropertyType:       {"propertyType", "propertyTypeFormatted"},
	models.FieldEstimatedValue:     {"midPrice"},
	models.FieldEstimatedValueLow:  {"lowerPrice"},
	models.FieldEstimatedValueHigh: {"upperPrice"},
	models.FieldEstimatedRent:      {"weeklyRentEstimate", "rentEstimate"},
	models.FieldRentalYield:        {"rentalYield"},
	models.FieldLastSalePrice:      {"lastSoldPrice", "soldPrice"},
	models.FieldLastSaleDate:       {"lastSoldDate", "soldDate"},
	models.FieldLatitude:           {"lat", "latitude"},
	models.FieldLongitude:          {"lng", "longitude"},
}

func (a *DomainAdapter) Parse(raw models.RawResult) (models.PropertyInfo, error) {
	switch raw.Kind {
	case models.RawJSON:
		return a.parseAPI(raw)
	case models.RawHTML:
		return a.parseProfilePage(raw)
	}
	return models.PropertyInfo{}, fmt.Errorf("%s: unsupported result kind %q", a.Source(), raw.Kind)
}

func (a *DomainAdapter) parseAPI(raw models.RawResult) (models.PropertyInfo, error) {
	var doc domainAPIDocument
	if err := json.Unmarshal(raw.Data, &doc); err != nil {
		return models.PropertyInfo{}, fmt.Errorf("%s: failed to decode document: %w", a.Source(), err)
	}

	var property map[string]interface{}
	if err := decodeSection(doc.Property, &property); err != nil {
		return models.PropertyInfo{}, fmt.Errorf("%s: property: %w", a.Source(), err)
	}
	info := extractFromJSON(property, domainAPIKeys)

	// Most recent sale is the first entry of the sale history
	if sales, ok := findKey(property, "sales"); ok {
		if list, ok := sales.([]interface{}); ok && len(list) > 0 {
			if sale, ok := list[0].(map[string]interface{}); ok {
				info.LastSalePrice = asMoney(sale["price"])
				info.LastSaleDate = asString(sale["date"])
			}
		}
	}

	var estimate map[string]interface{}
	if err := decodeSection(doc.PriceEstimate, &estimate); err == nil {
		est := extractFromJSON(estimate, domainAPIKeys)
		info.EstimatedValue = est.EstimatedValue
		info.EstimatedValueLow = est.EstimatedValueLow
		info.EstimatedValueHigh = est.EstimatedValueHigh
	}

	return info, nil
}

func (a *DomainAdapter) parseProfilePage(raw models.RawResult) (models.PropertyInfo, error) {
	data, ok := extractNextData(raw.HTML)
	if !ok {
		return models.PropertyInfo{}, fmt.Errorf("%s: page has no __NEXT_DATA__ block", a.Source())
	}

	// Page state lives under props.pageProps; fall back to the whole blob
	var root interface{} = data
	if props, ok := data["props"].(map[string]interface{}); ok {
		if pageProps, ok := props["pageProps"].(map[string]interface{}); ok {
			root = pageProps
		}
	}

	info := extractFromJSON(root, domainWebKeys)
	applyJSONLD(&info, raw.HTML)
	if len(info.Populated()) == 0 {
		return info, errNoData(a.Source())
	}
	return info, nil
}
