package geo

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"property-hub/internal/models"
)

// School is a school with a known location
type School struct {
	Name      string
	Type      string // Primary, Secondary, Combined
	Sector    string // Government, Catholic, Independent
	Suburb    string
	Latitude  float64
	Longitude float64
}

// SchoolIndex answers nearest-school queries from a school location dataset
type SchoolIndex struct {
	Schools []School
}

// LoadSchoolsFile reads a school location CSV from disk
func LoadSchoolsFile(path string) (*SchoolIndex, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open schools file: %w", err)
	}
	defer f.Close()
	return LoadSchools(f)
}

// LoadSchools reads a school location CSV. Columns are matched by header
// name, so state education department exports load without conversion.
func LoadSchools(r io.Reader) (*SchoolIndex, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	// Find column indices
	nameIdx, typeIdx, sectorIdx, suburbIdx, latIdx, lngIdx := -1, -1, -1, -1, -1, -1
	for i, col := range header {
		col = strings.ToLower(strings.TrimSpace(col))
		switch {
		case strings.Contains(col, "school_name") || col == "school name" || col == "name":
			nameIdx = i
		case strings.Contains(col, "school_type") || col == "level of schooling" || col == "type":
			typeIdx = i
		case strings.Contains(col, "sector") || col == "school_sector":
			sectorIdx = i
		case strings.Contains(col, "suburb") || col == "town_suburb":
			suburbIdx = i
		case col == "latitude" || col == "lat":
			latIdx = i
		case col == "longitude" || col == "long" || col == "lng":
			lngIdx = i
		}
	}
	if nameIdx == -1 || latIdx == -1 || lngIdx == -1 {
		return nil, fmt.Errorf("schools file needs name, latitude and longitude columns")
	}

	idx := &SchoolIndex{}
	field := func(record []string, i int) string {
		if i < 0 || i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			continue
		}

		lat, err := strconv.ParseFloat(field(record, latIdx), 64)
		if err != nil {
			continue
		}
		lng, err := strconv.ParseFloat(field(record, lngIdx), 64)
		if err != nil {
			continue
		}

		idx.Schools = append(idx.Schools, School{
			Name:      field(record, nameIdx),
			Type:      field(record, typeIdx),
			Sector:    field(record, sectorIdx),
			Suburb:    field(record, suburbIdx),
			Latitude:  lat,
			Longitude: lng,
		})
	}

	return idx, nil
}

// Nearby returns up to limit schools within radiusKm, closest first
func (si *SchoolIndex) Nearby(lat, lng, radiusKm float64, limit int) []models.School {
	type hit struct {
		school School
		dist   float64
	}
	var hits []hit
	for _, s := range si.Schools {
		if d := Haversine(lat, lng, s.Latitude, s.Longitude); d <= radiusKm {
			hits = append(hits, hit{s, d})
		}
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].dist < hits[j].dist })
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}

	out := make([]models.School, 0, len(hits))
	for _, h := range hits {
		d := float64(int(h.dist*100)) / 100
		out = append(out, models.School{
			Name:       h.school.Name,
			Type:       h.school.Type,
			Sector:     h.school.Sector,
			DistanceKm: &d,
		})
	}
	return out
}

// String returns school info as a string
func (s School) String() string {
	return fmt.Sprintf("%s (%s)", s.Name, s.Suburb)
}
