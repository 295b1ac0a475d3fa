package scraper

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"property-hub/internal/models"
)

var (
	numberPattern   = regexp.MustCompile(`[\d.]+`)
	moneyPattern    = regexp.MustCompile(`(?i)\$\s*([\d,]+(?:\.\d+)?)\s*(million|mil|k|m)?\b`)
	yearPattern     = regexp.MustCompile(`\b(18[5-9]\d|19\d{2}|20\d{2})\b`)
	jsonLDPattern   = regexp.MustCompile(`(?s)<script[^>]*type="application/ld\+json"[^>]*>(.+?)</script>`)
	nextDataStart   = `<script id="__NEXT_DATA__" type="application/json">`
	scriptEndMarker = `</script>`
)

// extractNextData returns the decoded __NEXT_DATA__ blob of a Next.js page
func extractNextData(html string) (map[string]interface{}, bool) {
	startIdx := strings.Index(html, nextDataStart)
	if startIdx == -1 {
		return nil, false
	}
	remaining := html[startIdx+len(nextDataStart):]
	endIdx := strings.Index(remaining, scriptEndMarker)
	if endIdx == -1 {
		return nil, false
	}

	var data map[string]interface{}
	if err := json.Unmarshal([]byte(remaining[:endIdx]), &data); err != nil {
		return nil, false
	}
	return data, true
}

// extractJSONLD returns every decodable ld+json object on the page
func extractJSONLD(html string) []map[string]interface{} {
	var out []map[string]interface{}
	for _, match := range jsonLDPattern.FindAllStringSubmatch(html, -1) {
		var data map[string]interface{}
		if err := json.Unmarshal([]byte(strings.TrimSpace(match[1])), &data); err != nil {
			continue
		}
		out = append(out, data)
	}
	return out
}

// findKey walks data depth first and returns the first value stored under
// any of keys that is not null
func findKey(data interface{}, keys ...string) (interface{}, bool) {
	return findKeyDepth(data, keys, 0)
}

func findKeyDepth(data interface{}, keys []string, depth int) (interface{}, bool) {
	if depth > 12 {
		return nil, false
	}

	switch v := data.(type) {
	case map[string]interface{}:
		for _, k := range keys {
			if val, ok := v[k]; ok && val != nil {
				return val, true
			}
		}
		for _, child := range v {
			if val, ok := findKeyDepth(child, keys, depth+1); ok {
				return val, true
			}
		}
	case []interface{}:
		for _, child := range v {
			if val, ok := findKeyDepth(child, keys, depth+1); ok {
				return val, true
			}
		}
	}
	return nil, false
}

// jsonKeys lists the keys each source family uses for a field
type jsonKeys map[models.Field][]string

// extractFromJSON fills every field it can find under the given keys
func extractFromJSON(data interface{}, keys jsonKeys) models.PropertyInfo {
	var info models.PropertyInfo
	for field, names := range keys {
		if val, ok := findKey(data, names...); ok {
			setField(&info, field, val)
		}
	}
	return info
}

// setField converts val to the field's type and stores it. Values that do
// not convert are dropped.
func setField(info *models.PropertyInfo, field models.Field, val interface{}) {
	switch field {
	case models.FieldYearBuilt:
		if y, ok := asYear(val); ok {
			info.YearBuilt = &y
		}
	case models.FieldLandArea:
		if a, ok := asArea(val); ok {
			info.LandArea = &a
		}
	case models.FieldFloorArea:
		if a, ok := asArea(val); ok {
			info.FloorArea = &a
		}
	case models.FieldPropertyType:
		info.PropertyType = asString(val)
	case models.FieldBedrooms:
		info.Bedrooms = asInt(val)
	case models.FieldBathrooms:
		info.Bathrooms = asInt(val)
	case models.FieldCarSpaces:
		info.CarSpaces = asInt(val)
	case models.FieldCouncil:
		info.Council = asString(val)
	case models.FieldZoning:
		info.Zoning = asString(val)
	case models.FieldEstimatedValue:
		info.EstimatedValue = asMoney(val)
	case models.FieldEstimatedValueLow:
		info.EstimatedValueLow = asMoney(val)
	case models.FieldEstimatedValueHigh:
		info.EstimatedValueHigh = asMoney(val)
	case models.FieldEstimatedRent:
		info.EstimatedRent = asMoney(val)
	case models.FieldRentalYield:
		info.RentalYield = asFloat(val)
	case models.FieldLastSalePrice:
		info.LastSalePrice = asMoney(val)
	case models.FieldLastSaleDate:
		info.LastSaleDate = asString(val)
	case models.FieldLatitude:
		info.Latitude = asFloat(val)
	case models.FieldLongitude:
		info.Longitude = asFloat(val)
	}
}

// labelFields maps the attribute labels listing sites print next to values
var labelFields = map[string]models.Field{
	"year built":         models.FieldYearBuilt,
	"built":              models.FieldYearBuilt,
	"land size":          models.FieldLandArea,
	"land area":          models.FieldLandArea,
	"floor area":         models.FieldFloorArea,
	"floor size":         models.FieldFloorArea,
	"building size":      models.FieldFloorArea,
	"internal area":      models.FieldFloorArea,
	"property type":      models.FieldPropertyType,
	"type":               models.FieldPropertyType,
	"bedrooms":           models.FieldBedrooms,
	"beds":               models.FieldBedrooms,
	"bathrooms":          models.FieldBathrooms,
	"baths":              models.FieldBathrooms,
	"car spaces":         models.FieldCarSpaces,
	"parking":            models.FieldCarSpaces,
	"council":            models.FieldCouncil,
	"local government":   models.FieldCouncil,
	"lga":                models.FieldCouncil,
	"zoning":             models.FieldZoning,
	"zone":               models.FieldZoning,
	"estimated value":    models.FieldEstimatedValue,
	"estimate":           models.FieldEstimatedValue,
	"estimated rent":     models.FieldEstimatedRent,
	"rental estimate":    models.FieldEstimatedRent,
	"rental yield":       models.FieldRentalYield,
	"gross rental yield": models.FieldRentalYield,
	"last sold":          models.FieldLastSalePrice,
	"last sale price":    models.FieldLastSalePrice,
	"last sold price":    models.FieldLastSalePrice,
	"last sale date":     models.FieldLastSaleDate,
	"last sold date":     models.FieldLastSaleDate,
}

// setLabelled stores a "label: value" pair if the label is known and the
// field is still empty
func setLabelled(info *models.PropertyInfo, label, value string) {
	label = strings.TrimSuffix(strings.ToLower(cleanText(label)), ":")
	field, ok := labelFields[label]
	if !ok || info.Has(field) {
		return
	}
	setField(info, field, cleanText(value))
}

func asString(v interface{}) *string {
	switch t := v.(type) {
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return nil
		}
		return &s
	case map[string]interface{}:
		// {"name": "..."} or {"display": "..."}
		for _, k := range []string{"name", "display", "value", "label"} {
			if s, ok := t[k].(string); ok {
				return asString(s)
			}
		}
	}
	return nil
}

func asFloat(v interface{}) *float64 {
	switch t := v.(type) {
	case float64:
		return &t
	case int:
		f := float64(t)
		return &f
	case string:
		s := strings.ReplaceAll(t, ",", "")
		m := numberPattern.FindString(s)
		if m == "" {
			return nil
		}
		f, err := strconv.ParseFloat(m, 64)
		if err != nil {
			return nil
		}
		return &f
	case map[string]interface{}:
		for _, k := range []string{"value", "amount"} {
			if inner, ok := t[k]; ok {
				return asFloat(inner)
			}
		}
	}
	return nil
}

func asInt(v interface{}) *int {
	f := asFloat(v)
	if f == nil {
		return nil
	}
	i := int(*f)
	return &i
}

func asYear(v interface{}) (int, bool) {
	switch t := v.(type) {
	case string:
		m := yearPattern.FindString(t)
		if m == "" {
			return 0, false
		}
		y, _ := strconv.Atoi(m)
		return y, true
	default:
		i := asInt(v)
		if i == nil || *i < 1850 || *i > 2100 {
			return 0, false
		}
		return *i, true
	}
}

// asArea accepts numbers (square meters) or strings with a unit
func asArea(v interface{}) (float64, bool) {
	switch t := v.(type) {
	case string:
		a := parseLandSize(t)
		return a, a > 0
	case map[string]interface{}:
		if val, ok := t["value"]; ok {
			a, ok := asArea(val)
			if !ok {
				return 0, false
			}
			if unit, ok := t["unit"].(string); ok {
				a = parseLandSize(strconv.FormatFloat(a, 'f', -1, 64) + " " + unit)
			}
			return a, a > 0
		}
		if s, ok := t["displayValue"].(string); ok {
			return asArea(s)
		}
	default:
		f := asFloat(v)
		if f != nil && *f > 0 {
			return *f, true
		}
	}
	return 0, false
}

func asMoney(v interface{}) *int64 {
	if s, ok := v.(string); ok {
		return parseMoney(s)
	}
	f := asFloat(v)
	if f == nil || *f <= 0 {
		return nil
	}
	i := int64(*f)
	return &i
}

// parseMoney reads the first dollar amount in s: "$1.2m", "$850k", "$1,250,000"
func parseMoney(s string) *int64 {
	m := moneyPattern.FindStringSubmatch(s)
	if m == nil {
		f := asFloat(s)
		if f == nil || *f <= 0 {
			return nil
		}
		i := int64(*f)
		return &i
	}

	value, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", ""), 64)
	if err != nil {
		return nil
	}
	switch strings.ToLower(m[2]) {
	case "k":
		value *= 1000
	case "m", "mil", "million":
		value *= 1000000
	}
	i := int64(value)
	return &i
}

// parseMoneyRange reads "$800,000 - $880,000" style ranges
func parseMoneyRange(s string) (low, high *int64) {
	matches := moneyPattern.FindAllString(s, 2)
	if len(matches) != 2 {
		return nil, nil
	}
	return parseMoney(matches[0]), parseMoney(matches[1])
}

// parseLandSize converts land size strings to square meters
func parseLandSize(sizeStr string) float64 {
	sizeStr = strings.ToLower(strings.TrimSpace(sizeStr))
	sizeStr = strings.ReplaceAll(sizeStr, ",", "")

	m := numberPattern.FindString(sizeStr)
	if m == "" {
		return 0
	}

	value, err := strconv.ParseFloat(m, 64)
	if err != nil {
		return 0
	}

	// Convert to square meters based on unit
	switch {
	case strings.Contains(sizeStr, "ha") || strings.Contains(sizeStr, "hectare"):
		return value * 10000
	case strings.Contains(sizeStr, "acre"):
		return value * 4046.86
	default:
		return value
	}
}

// cleanText collapses whitespace in scraped text
func cleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// parseDocument loads page markup for selector based extraction
func parseDocument(html string) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}
	return doc, nil
}

// applyJSONLD copies coordinates and floor size from schema.org blocks
func applyJSONLD(info *models.PropertyInfo, html string) {
	for _, data := range extractJSONLD(html) {
		if geo, ok := data["geo"].(map[string]interface{}); ok {
			if info.Latitude == nil {
				info.Latitude = asFloat(geo["latitude"])
			}
			if info.Longitude == nil {
				info.Longitude = asFloat(geo["longitude"])
			}
		}
		if size, ok := findKey(data, "floorSize"); ok && info.FloorArea == nil {
			if a, ok := asArea(size); ok {
				info.FloorArea = &a
			}
		}
	}
}

// decodeNested replaces string values that hold JSON documents with their
// decoded form. Some sites embed page state as JSON inside JSON.
func decodeNested(data interface{}, depth int) interface{} {
	if depth > 6 {
		return data
	}
	switch v := data.(type) {
	case map[string]interface{}:
		for k, child := range v {
			v[k] = decodeNested(child, depth+1)
		}
	case []interface{}:
		for i, child := range v {
			v[i] = decodeNested(child, depth+1)
		}
	case string:
		t := strings.TrimSpace(v)
		if strings.HasPrefix(t, "{") || strings.HasPrefix(t, "[") {
			var inner interface{}
			if err := json.Unmarshal([]byte(t), &inner); err == nil {
				return decodeNested(inner, depth+1)
			}
		}
	}
	return data
}

// errNoData is returned by parsers that found nothing usable on a page
func errNoData(source models.SourceID) error {
	return fmt.Errorf("%s: no property data found in response", source)
}

// toTitleCase converts a string to title case
func toTitleCase(s string) string {
	words := strings.Fields(s)
	for i, word := range words {
		if len(word) > 0 {
			words[i] = strings.ToUpper(string(word[0])) + strings.ToLower(word[1:])
		}
	}
	return strings.Join(words, " ")
}
