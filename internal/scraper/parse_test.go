package scraper

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"property-hub/internal/models"
)

func TestParseLandSize(t *testing.T) {
	tests := []struct {
		in   string
		want float64
	}{
		{"650m²", 650},
		{"1,012 sqm", 1012},
		{"2.5 ha", 25000},
		{"10 hectares", 100000},
		{"1 acre", 4046.86},
		{"", 0},
		{"unknown", 0},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.InDelta(t, tt.want, parseLandSize(tt.in), 0.001)
		})
	}
}

func TestParseMoney(t *testing.T) {
	tests := []struct {
		in   string
		want int64
	}{
		{"$1,250,000", 1250000},
		{"$1.2m", 1200000},
		{"$850k", 850000},
		{"Estimate: $ 960,000 (medium confidence)", 960000},
		{"$1.35 million", 1350000},
		{"$850,000 max", 850000},
		{"725000", 725000},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got := parseMoney(tt.in)
			require.NotNil(t, got)
			assert.Equal(t, tt.want, *got)
		})
	}

	assert.Nil(t, parseMoney("Contact agent"))
}

func TestParseMoneyRange(t *testing.T) {
	low, high := parseMoneyRange("$1.1m - $1.4m")
	require.NotNil(t, low)
	require.NotNil(t, high)
	assert.Equal(t, int64(1100000), *low)
	assert.Equal(t, int64(1400000), *high)

	low, high = parseMoneyRange("$900,000")
	assert.Nil(t, low)
	assert.Nil(t, high)
}

func TestExtractNextData(t *testing.T) {
	html := `<html><body><script id="__NEXT_DATA__" type="application/json">{"props":{"pageProps":{"x":1}}}</script></body></html>`
	data, ok := extractNextData(html)
	require.True(t, ok)
	v, ok := findKey(data, "x")
	require.True(t, ok)
	assert.Equal(t, float64(1), v)

	_, ok = extractNextData("<html></html>")
	assert.False(t, ok)
	_, ok = extractNextData(`<script id="__NEXT_DATA__" type="application/json">{broken</script>`)
	assert.False(t, ok)
}

func TestFindKeySkipsNulls(t *testing.T) {
	data := map[string]interface{}{
		"bedrooms": nil,
		"nested": []interface{}{
			map[string]interface{}{"beds": float64(4)},
		},
	}
	v, ok := findKey(data, "bedrooms", "beds")
	require.True(t, ok)
	assert.Equal(t, float64(4), v)

	_, ok = findKey(data, "bathrooms")
	assert.False(t, ok)
}

func TestDecodeNested(t *testing.T) {
	data := map[string]interface{}{
		"cache": `{"property":{"bedrooms":3}}`,
		"plain": "hello",
	}
	decoded := decodeNested(data, 0)
	v, ok := findKey(decoded, "bedrooms")
	require.True(t, ok)
	assert.Equal(t, float64(3), v)
	assert.Equal(t, "hello", data["plain"])
}

func TestSetLabelled(t *testing.T) {
	var info models.PropertyInfo
	setLabelled(&info, " Year Built: ", "Built in 1925")
	setLabelled(&info, "Land size", "650 m²")
	setLabelled(&info, "Estimated value", "$1.25m")
	setLabelled(&info, "Land area", "999 m²")
	setLabelled(&info, "Favourite colour", "blue")

	require.NotNil(t, info.YearBuilt)
	assert.Equal(t, 1925, *info.YearBuilt)
	require.NotNil(t, info.LandArea)
	assert.Equal(t, 650.0, *info.LandArea, "first label wins")
	require.NotNil(t, info.EstimatedValue)
	assert.Equal(t, int64(1250000), *info.EstimatedValue)
	assert.Len(t, info.Populated(), 3)
}

func TestExtractFromJSONConvertsUnits(t *testing.T) {
	data := map[string]interface{}{
		"landArea":     map[string]interface{}{"value": float64(2), "unit": "ha"},
		"yearBuilt":    "c. 1950",
		"propertyType": map[string]interface{}{"display": "Townhouse"},
		"midPrice":     "$1,100,000",
	}
	info := extractFromJSON(data, domainWebKeys)

	require.NotNil(t, info.LandArea)
	assert.Equal(t, 20000.0, *info.LandArea)
	require.NotNil(t, info.YearBuilt)
	assert.Equal(t, 1950, *info.YearBuilt)
	require.NotNil(t, info.PropertyType)
	assert.Equal(t, "Townhouse", *info.PropertyType)
	require.NotNil(t, info.EstimatedValue)
	assert.Equal(t, int64(1100000), *info.EstimatedValue)
}
