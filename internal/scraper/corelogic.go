package scraper

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"property-hub/internal/models"
)

// CoreLogicAdapter fetches property attributes and valuations from the
// CoreLogic property data API
type CoreLogicAdapter struct {
	fetcher *pageFetcher
	apiKey  string
	baseURL string
	cfg     Config
	logger  *slog.Logger
}

// NewCoreLogicAdapter creates a CoreLogic API adapter
func NewCoreLogicAdapter(cfg Config, logger *slog.Logger) *CoreLogicAdapter {
	return &CoreLogicAdapter{
		fetcher: newPageFetcher(cfg.Timeout, cfg.RequestsPerSecond),
		apiKey:  cfg.CoreLogicAPIKey,
		baseURL: strings.TrimRight(cfg.CoreLogicBaseURL, "/"),
		cfg:     cfg,
		logger:  logger.With("source", models.SourceCoreLogic),
	}
}

func (a *CoreLogicAdapter) Source() models.SourceID { return models.SourceCoreLogic }

type coreLogicSuggestResponse struct {
	Suggest []struct {
		PropertyID int64  `json:"propertyId"`
		Suggestion string `json:"suggestion"`
	} `json:"suggest"`
}

// coreLogicDocument is the combined response cached for one property
type coreLogicDocument struct {
	PropertyID int64           `json:"propertyId"`
	Core       json.RawMessage `json:"core"`
	Additional json.RawMessage `json:"additional,omitempty"`
	Location   json.RawMessage `json:"location,omitempty"`
	AVM        json.RawMessage `json:"avm,omitempty"`
	RentalAVM  json.RawMessage `json:"rentalAvm,omitempty"`
	LastSale   json.RawMessage `json:"lastSale,omitempty"`
}

func (a *CoreLogicAdapter) Fetch(ctx context.Context, addr models.Address) models.ScraperResult {
	return withTimeout(ctx, a.cfg.Timeout, a.Source(), func(ctx context.Context) (models.RawResult, error) {
		header := http.Header{}
		header.Set("Authorization", "Bearer "+a.apiKey)

		params := url.Values{}
		params.Set("q", addr.String())
		params.Set("suggestionTypes", "address")
		params.Set("limit", "1")

		var suggest coreLogicSuggestResponse
		if _, err := a.fetcher.fetchJSON(ctx, a.baseURL+"/property/au/v2/suggest.json?"+params.Encode(), header, &suggest); err != nil {
			return models.RawResult{}, fmt.Errorf("address suggest failed: %w", err)
		}
		if len(suggest.Suggest) == 0 || suggest.Suggest[0].PropertyID == 0 {
			return models.RawResult{}, ErrNotFound
		}
		id := suggest.Suggest[0].PropertyID

		doc := coreLogicDocument{PropertyID: id}
		var err error
		doc.Core, err = a.fetcher.fetchJSON(ctx, fmt.Sprintf("%s/property-details/au/properties/%d/attributes/core", a.baseURL, id), header, nil)
		if err != nil {
			return models.RawResult{}, fmt.Errorf("core attributes failed: %w", err)
		}

		// The remaining endpoints add detail; a missing one is not a failure
		optional := []struct {
			name string
			path string
			dst  *json.RawMessage
		}{
			{"additional attributes", "/property-details/au/properties/%d/attributes/additional", &doc.Additional},
			{"location", "/property-details/au/properties/%d/location", &doc.Location},
			{"valuation", "/avm/au/properties/%d/avm/intellival/consumer/current", &doc.AVM},
			{"rental valuation", "/avm/au/properties/%d/avm/intellival/rental/current", &doc.RentalAVM},
			{"last sale", "/property-details/au/properties/%d/sales/last", &doc.LastSale},
		}
		for _, o := range optional {
			raw, err := a.fetcher.fetchJSON(ctx, a.baseURL+fmt.Sprintf(o.path, id), header, nil)
			if err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					return models.RawResult{}, ctxErr
				}
				if !errors.Is(err, ErrNotFound) {
					a.logger.Debug("CoreLogic endpoint failed", "endpoint", o.name, "property_id", id, "error", err)
				}
				continue
			}
			*o.dst = raw
		}

		data, err := json.Marshal(doc)
		if err != nil {
			return models.RawResult{}, err
		}
		return models.RawResult{
			Kind: models.RawJSON,
			URL:  fmt.Sprintf("%s/property-details/au/properties/%d", a.baseURL, id),
			Data: data,
		}, nil
	})
}

type coreLogicCore struct {
	Beds            *int     `json:"beds"`
	Baths           *int     `json:"baths"`
	CarSpaces       *int     `json:"carSpaces"`
	LandArea        *float64 `json:"landArea"`
	PropertyType    string   `json:"propertyType"`
	PropertySubType string   `json:"propertySubType"`
}

type coreLogicAdditional struct {
	YearBuilt            *int     `json:"yearBuilt"`
	FloorArea            *float64 `json:"floorArea"`
	ZoneDescriptionLocal string   `json:"zoneDescriptionLocal"`
}

type coreLogicLocation struct {
	Latitude    *float64 `json:"latitude"`
	Longitude   *float64 `json:"longitude"`
	CouncilArea string   `json:"councilArea"`
}

type coreLogicAVM struct {
	Estimate     *int64   `json:"estimate"`
	LowEstimate  *int64   `json:"lowEstimate"`
	HighEstimate *int64   `json:"highEstimate"`
	Yield        *float64 `json:"yield"`
}

type coreLogicSale struct {
	Price        *int64 `json:"price"`
	ContractDate string `json:"contractDate"`
}

func (a *CoreLogicAdapter) Parse(raw models.RawResult) (models.PropertyInfo, error) {
	var info models.PropertyInfo
	if raw.Kind != models.RawJSON {
		return info, fmt.Errorf("%s: expected JSON result, got %q", a.Source(), raw.Kind)
	}

	var doc coreLogicDocument
	if err := json.Unmarshal(raw.Data, &doc); err != nil {
		return info, fmt.Errorf("%s: failed to decode document: %w", a.Source(), err)
	}

	var core coreLogicCore
	if err := decodeSection(doc.Core, &core); err != nil {
		return info, fmt.Errorf("%s: core attributes: %w", a.Source(), err)
	}
	info.Bedrooms = core.Beds
	info.Bathrooms = core.Baths
	info.CarSpaces = core.CarSpaces
	info.LandArea = positive(core.LandArea)
	info.PropertyType = optString(toTitleCase(firstNonEmpty(core.PropertySubType, core.PropertyType)))

	var additional coreLogicAdditional
	if err := decodeSection(doc.Additional, &additional); err == nil {
		info.YearBuilt = additional.YearBuilt
		info.FloorArea = positive(additional.FloorArea)
		info.Zoning = optString(additional.ZoneDescriptionLocal)
	}

	var location coreLogicLocation
	if err := decodeSection(doc.Location, &location); err == nil {
		info.Latitude = location.Latitude
		info.Longitude = location.Longitude
		info.Council = optString(location.CouncilArea)
	}

	var avm coreLogicAVM
	if err := decodeSection(doc.AVM, &avm); err == nil {
		info.EstimatedValue = avm.Estimate
		info.EstimatedValueLow = avm.LowEstimate
		info.EstimatedValueHigh = avm.HighEstimate
	}

	var rental coreLogicAVM
	if err := decodeSection(doc.RentalAVM, &rental); err == nil {
		info.EstimatedRent = rental.Estimate
		info.RentalYield = rental.Yield
	}

	var sale struct {
		LastSale coreLogicSale `json:"lastSale"`
	}
	if err := decodeSection(doc.LastSale, &sale); err == nil {
		info.LastSalePrice = sale.LastSale.Price
		info.LastSaleDate = optString(sale.LastSale.ContractDate)
	}

	return info, nil
}

// decodeSection decodes an optional part of a combined document
func decodeSection(raw json.RawMessage, v interface{}) error {
	if len(raw) == 0 || string(raw) == "null" {
		return errors.New("section missing")
	}
	return json.Unmarshal(raw, v)
}

func optString(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

func positive(f *float64) *float64 {
	if f == nil || *f <= 0 {
		return nil
	}
	return f
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
