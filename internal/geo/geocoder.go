package geo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"
)

// ErrNoResults means the geocoder found no match for the address
var ErrNoResults = errors.New("no geocoding results")

// Geocoder handles address geocoding using Nominatim
type Geocoder struct {
	client    *http.Client
	userAgent string
	baseURL   string
	limiter   *rate.Limiter
}

// NominatimResult represents a geocoding result from Nominatim
type NominatimResult struct {
	Lat         string  `json:"lat"`
	Lon         string  `json:"lon"`
	DisplayName string  `json:"display_name"`
	Type        string  `json:"type"`
	Importance  float64 `json:"importance"`
}

// NewGeocoder creates a new Nominatim geocoder. Nominatim's usage policy
// allows one request per second.
func NewGeocoder(baseURL string) *Geocoder {
	if baseURL == "" {
		baseURL = "https://nominatim.openstreetmap.org"
	}
	return &Geocoder{
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		userAgent: "PropertyHub/1.0 (property data aggregation)",
		baseURL:   baseURL,
		limiter:   rate.NewLimiter(rate.Every(time.Second), 1),
	}
}

// Geocode converts an address to coordinates
func (g *Geocoder) Geocode(ctx context.Context, address string) (lat, lng float64, err error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return 0, 0, err
	}

	params := url.Values{}
	params.Set("q", address)
	params.Set("format", "json")
	params.Set("limit", "1")
	params.Set("countrycodes", "au")

	reqURL := fmt.Sprintf("%s/search?%s", g.baseURL, params.Encode())

	req, err := http.NewRequestWithContext(ctx, "GET", reqURL, nil)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to create request: %w", err)
	}

	// Nominatim requires a valid User-Agent
	req.Header.Set("User-Agent", g.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return 0, 0, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, 0, fmt.Errorf("HTTP %d: %s", resp.StatusCode, resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to read response: %w", err)
	}

	var results []NominatimResult
	if err := json.Unmarshal(body, &results); err != nil {
		return 0, 0, fmt.Errorf("failed to parse response: %w", err)
	}

	if len(results) == 0 {
		return 0, 0, fmt.Errorf("%w for address: %s", ErrNoResults, address)
	}

	result := results[0]
	if lat, err = strconv.ParseFloat(result.Lat, 64); err != nil {
		return 0, 0, fmt.Errorf("failed to parse latitude: %w", err)
	}
	if lng, err = strconv.ParseFloat(result.Lon, 64); err != nil {
		return 0, 0, fmt.Errorf("failed to parse longitude: %w", err)
	}

	return lat, lng, nil
}
