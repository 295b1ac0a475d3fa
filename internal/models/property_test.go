package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPropertyInfoHas(t *testing.T) {
	p := PropertyInfo{
		YearBuilt:     Ptr(1995),
		NearbySchools: []School{},
	}

	assert.True(t, p.Has(FieldYearBuilt))
	assert.False(t, p.Has(FieldLandArea))
	assert.False(t, p.Has(FieldNearbySchools), "empty slice counts as unset")
	assert.False(t, p.Has(Field("nope")))

	p.NearbySchools = []School{{Name: "Richmond Primary"}}
	assert.True(t, p.Has(FieldNearbySchools))
	assert.Equal(t, []Field{FieldYearBuilt, FieldNearbySchools}, p.Populated())
}

func TestPropertyInfoAdopt(t *testing.T) {
	var p PropertyInfo
	other := PropertyInfo{Council: Ptr("City of Yarra")}

	assert.False(t, p.Adopt(other, FieldLandArea))
	assert.True(t, p.Adopt(other, FieldCouncil))
	assert.Equal(t, "City of Yarra", *p.Council)
}

func TestFieldsMatchJSONNames(t *testing.T) {
	fields := Fields()
	assert.Len(t, fields, 20)
	assert.Equal(t, FieldYearBuilt, fields[0])
	assert.Equal(t, FieldDistanceFromCBD, fields[len(fields)-1])

	_, ok := ParseField("estimatedRent")
	assert.True(t, ok)
	_, ok = ParseField("EstimatedRent")
	assert.False(t, ok)
}

func TestCacheEntryExpired(t *testing.T) {
	now := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	e := CacheEntry{Timestamp: now.Add(-2 * time.Hour)}

	assert.True(t, e.Expired(now, time.Hour))
	assert.False(t, e.Expired(now, 3*time.Hour))
	assert.False(t, e.Expired(now, 0), "zero ttl never expires")
}

func TestParseSourceID(t *testing.T) {
	id, err := ParseSourceID(" Domain.com ")
	assert.NoError(t, err)
	assert.Equal(t, SourceDomain, id)
	assert.Equal(t, 1, id.Rank())

	_, err = ParseSourceID("zillow")
	assert.Error(t, err)
}
