package hub

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"property-hub/internal/cache"
	"property-hub/internal/geo"
	"property-hub/internal/models"
)

const (
	// Derived marks fields computed locally rather than supplied by a source
	Derived models.SourceID = "derived"
	// GeocodeSource keys cached geocoder results next to the source entries
	GeocodeSource models.SourceID = "geocoder"
)

// Geocoder resolves an address to coordinates. *geo.Geocoder satisfies it.
type Geocoder interface {
	Geocode(ctx context.Context, address string) (lat, lng float64, err error)
}

// SchoolFinder lists schools near a point. *geo.SchoolIndex satisfies it.
type SchoolFinder interface {
	Nearby(lat, lng, radiusKm float64, limit int) []models.School
}

// Enricher fills fields that can be derived from what the sources returned.
// It never replaces a value a source supplied.
type Enricher struct {
	geocoder Geocoder
	schools  SchoolFinder
	logger   *slog.Logger

	SchoolRadiusKm float64
	SchoolLimit    int
}

// NewEnricher creates an enricher. geocoder and schools may be nil.
func NewEnricher(geocoder Geocoder, schools SchoolFinder, logger *slog.Logger) *Enricher {
	return &Enricher{
		geocoder:       geocoder,
		schools:        schools,
		logger:         logger.With("component", "enricher"),
		SchoolRadiusKm: 3,
		SchoolLimit:    5,
	}
}

type coordinates struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// geocodeAdapter lets geocoder results go through FetchOrRetrieve
type geocodeAdapter struct {
	geocoder Geocoder
}

func (g geocodeAdapter) Source() models.SourceID { return GeocodeSource }

func (g geocodeAdapter) Fetch(ctx context.Context, addr models.Address) models.ScraperResult {
	lat, lng, err := g.geocoder.Geocode(ctx, addr.String())
	if err != nil {
		return models.Failure(err)
	}
	data, err := json.Marshal(coordinates{Lat: lat, Lng: lng})
	if err != nil {
		return models.Failure(err)
	}
	return models.Success(models.RawResult{Kind: models.RawJSON, Data: data, FetchedAt: time.Now()})
}

// geocode resolves addr through store, so a repeat lookup within the TTL
// never reaches the geocoder. A nil store always geocodes.
func (e *Enricher) geocode(ctx context.Context, store cache.Store, addr models.Address, opts FetchOptions) (float64, float64, error) {
	adapter := geocodeAdapter{geocoder: e.geocoder}

	var raw models.RawResult
	if store == nil {
		res := adapter.Fetch(ctx, addr)
		if !res.OK() {
			return 0, 0, res.Err
		}
		raw = *res.Data
	} else {
		ret, err := FetchOrRetrieve(ctx, store, addr, adapter, opts)
		if err != nil {
			return 0, 0, err
		}
		raw = ret.Data
	}

	var c coordinates
	if err := json.Unmarshal(raw.Data, &c); err != nil {
		return 0, 0, fmt.Errorf("corrupt geocoder result: %w", err)
	}
	return c.Lat, c.Lng, nil
}

// Enrich fills coordinates, distance to the state CBD and nearby schools
// where they are still null. Geocoder results are cached in store under
// GeocodeSource. It returns the fields it filled.
func (e *Enricher) Enrich(ctx context.Context, store cache.Store, addr models.Address, info *models.PropertyInfo, opts FetchOptions) []models.Field {
	var filled []models.Field

	if (info.Latitude == nil || info.Longitude == nil) && e.geocoder != nil {
		lat, lng, err := e.geocode(ctx, store, addr, opts)
		if err != nil {
			e.logger.Info("Geocoding failed", "address", addr.Key(), "error", err)
		} else {
			if info.Latitude == nil {
				info.Latitude = &lat
				filled = append(filled, models.FieldLatitude)
			}
			if info.Longitude == nil {
				info.Longitude = &lng
				filled = append(filled, models.FieldLongitude)
			}
		}
	}

	if info.Latitude == nil || info.Longitude == nil {
		return filled
	}
	lat, lng := *info.Latitude, *info.Longitude

	if info.DistanceFromCBD == nil {
		if d, ok := geo.DistanceToCBD(addr.State, lat, lng); ok {
			// Round to 100 m
			d = float64(int(d*10+0.5)) / 10
			info.DistanceFromCBD = &d
			filled = append(filled, models.FieldDistanceFromCBD)
		}
	}

	if len(info.NearbySchools) == 0 && e.schools != nil {
		if schools := e.schools.Nearby(lat, lng, e.SchoolRadiusKm, e.SchoolLimit); len(schools) > 0 {
			info.NearbySchools = schools
			filled = append(filled, models.FieldNearbySchools)
		}
	}

	return filled
}
