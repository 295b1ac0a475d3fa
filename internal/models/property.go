package models

import (
	"encoding/json"
	"reflect"
	"strings"
	"sync"
	"time"
)

// Field names a PropertyInfo field by its JSON name
type Field string

const (
	FieldYearBuilt          Field = "yearBuilt"
	FieldLandArea           Field = "landArea"
	FieldFloorArea          Field = "floorArea"
	FieldPropertyType       Field = "propertyType"
	FieldBedrooms           Field = "bedrooms"
	FieldBathrooms          Field = "bathrooms"
	FieldCarSpaces          Field = "carSpaces"
	FieldCouncil            Field = "council"
	FieldZoning             Field = "zoning"
	FieldNearbySchools      Field = "nearbySchools"
	FieldEstimatedValue     Field = "estimatedValue"
	FieldEstimatedValueLow  Field = "estimatedValueLow"
	FieldEstimatedValueHigh Field = "estimatedValueHigh"
	FieldEstimatedRent      Field = "estimatedRent"
	FieldRentalYield        Field = "rentalYield"
	FieldLastSalePrice      Field = "lastSalePrice"
	FieldLastSaleDate       Field = "lastSaleDate"
	FieldLatitude           Field = "latitude"
	FieldLongitude          Field = "longitude"
	FieldDistanceFromCBD    Field = "distanceFromCBD"
)

// PropertyInfo is the merged, field-level view of a property. Every field is
// independently nullable; nil means "not available".
type PropertyInfo struct {
	YearBuilt          *int     `json:"yearBuilt"`
	LandArea           *float64 `json:"landArea"`  // square meters
	FloorArea          *float64 `json:"floorArea"` // square meters
	PropertyType       *string  `json:"propertyType"`
	Bedrooms           *int     `json:"bedrooms"`
	Bathrooms          *int     `json:"bathrooms"`
	CarSpaces          *int     `json:"carSpaces"`
	Council            *string  `json:"council"`
	Zoning             *string  `json:"zoning"`
	NearbySchools      []School `json:"nearbySchools"`
	EstimatedValue     *int64   `json:"estimatedValue"`
	EstimatedValueLow  *int64   `json:"estimatedValueLow"`
	EstimatedValueHigh *int64   `json:"estimatedValueHigh"`
	EstimatedRent      *int64   `json:"estimatedRent"` // per week
	RentalYield        *float64 `json:"rentalYield"`   // percent
	LastSalePrice      *int64   `json:"lastSalePrice"`
	LastSaleDate       *string  `json:"lastSaleDate"`
	Latitude           *float64 `json:"latitude"`
	Longitude          *float64 `json:"longitude"`
	DistanceFromCBD    *float64 `json:"distanceFromCBD"` // kilometers
}

// School is a school near the property
type School struct {
	Name       string   `json:"name"`
	Type       string   `json:"type,omitempty"`   // Primary, Secondary, Combined
	Sector     string   `json:"sector,omitempty"` // Government, Catholic, Independent
	DistanceKm *float64 `json:"distanceKm,omitempty"`
}

var (
	fieldIndexOnce sync.Once
	fieldIndex     map[Field]int
	fieldOrder     []Field
)

func buildFieldIndex() {
	t := reflect.TypeOf(PropertyInfo{})
	fieldIndex = make(map[Field]int, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		name, _, _ := strings.Cut(t.Field(i).Tag.Get("json"), ",")
		fieldIndex[Field(name)] = i
		fieldOrder = append(fieldOrder, Field(name))
	}
}

// Fields returns every PropertyInfo field in declaration order
func Fields() []Field {
	fieldIndexOnce.Do(buildFieldIndex)
	out := make([]Field, len(fieldOrder))
	copy(out, fieldOrder)
	return out
}

// ParseField validates a field name
func ParseField(s string) (Field, bool) {
	fieldIndexOnce.Do(buildFieldIndex)
	_, ok := fieldIndex[Field(s)]
	return Field(s), ok
}

// Has reports whether the field holds a value. Empty slices count as unset.
func (p PropertyInfo) Has(f Field) bool {
	fieldIndexOnce.Do(buildFieldIndex)
	i, ok := fieldIndex[f]
	if !ok {
		return false
	}
	v := reflect.ValueOf(p).Field(i)
	switch v.Kind() {
	case reflect.Slice:
		return v.Len() > 0
	default:
		return !v.IsNil()
	}
}

// Populated returns the fields that hold a value, in declaration order
func (p PropertyInfo) Populated() []Field {
	var out []Field
	for _, f := range Fields() {
		if p.Has(f) {
			out = append(out, f)
		}
	}
	return out
}

// Adopt copies field f from other into p. It reports whether p changed.
func (p *PropertyInfo) Adopt(other PropertyInfo, f Field) bool {
	fieldIndexOnce.Do(buildFieldIndex)
	i, ok := fieldIndex[f]
	if !ok || !other.Has(f) {
		return false
	}
	reflect.ValueOf(p).Elem().Field(i).Set(reflect.ValueOf(other).Field(i))
	return true
}

// Ptr returns a pointer to v
func Ptr[T any](v T) *T { return &v }

// RawKind tells parsers how to read a RawResult
type RawKind string

const (
	RawHTML RawKind = "html"
	RawJSON RawKind = "json"
)

// RawResult is what an adapter fetched for one address: either page markup
// or structured data.
type RawResult struct {
	Kind      RawKind         `json:"kind"`
	URL       string          `json:"url,omitempty"`
	HTML      string          `json:"html,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	FetchedAt time.Time       `json:"fetched_at"`
}

// ScraperResult is either a success carrying Data or a failure carrying Err
type ScraperResult struct {
	Data *RawResult
	Err  error
}

// Success wraps fetched data
func Success(raw RawResult) ScraperResult {
	return ScraperResult{Data: &raw}
}

// Failure wraps a fetch error
func Failure(err error) ScraperResult {
	return ScraperResult{Err: err}
}

// OK reports whether the result carries data
func (r ScraperResult) OK() bool {
	return r.Err == nil && r.Data != nil
}

// CacheEntry is a persisted raw result for one (address, source) pair
type CacheEntry struct {
	Data      RawResult `json:"data"`
	Timestamp time.Time `json:"timestamp"`
	Address   Address   `json:"address"`
	Source    SourceID  `json:"source"`
}

// Expired reports whether the entry is older than ttl. A ttl of zero or less
// never expires.
func (e CacheEntry) Expired(now time.Time, ttl time.Duration) bool {
	if ttl <= 0 {
		return false
	}
	return now.Sub(e.Timestamp) > ttl
}
