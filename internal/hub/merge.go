package hub

import "property-hub/internal/models"

// Merge returns existing with every null field filled from incoming. A field
// already set in existing is never replaced, so merging results in priority
// order gives each field to the highest priority source that supplied it.
func Merge(existing, incoming models.PropertyInfo) models.PropertyInfo {
	merged := existing
	for _, f := range models.Fields() {
		if !merged.Has(f) {
			merged.Adopt(incoming, f)
		}
	}
	return merged
}

// MissingFields lists the required fields that info leaves null
func MissingFields(info models.PropertyInfo, required []models.Field) []models.Field {
	var missing []models.Field
	for _, f := range required {
		if !info.Has(f) {
			missing = append(missing, f)
		}
	}
	return missing
}

// mergeInto merges incoming into acc and records source as the provider of
// every field it filled. It returns the filled fields.
func mergeInto(acc *models.PropertyInfo, incoming models.PropertyInfo, source models.SourceID, provenance map[models.Field]models.SourceID) []models.Field {
	var filled []models.Field
	for _, f := range models.Fields() {
		if acc.Has(f) {
			continue
		}
		if acc.Adopt(incoming, f) {
			provenance[f] = source
			filled = append(filled, f)
		}
	}
	return filled
}
