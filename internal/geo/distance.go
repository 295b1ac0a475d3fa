package geo

import (
	"math"
	"strings"
)

const (
	// Earth radius in kilometers
	EarthRadiusKm = 6371.0
)

// Haversine calculates the great-circle distance between two points
// Returns distance in kilometers
func Haversine(lat1, lng1, lat2, lng2 float64) float64 {
	// Convert to radians
	lat1Rad := lat1 * math.Pi / 180
	lat2Rad := lat2 * math.Pi / 180
	deltaLat := (lat2 - lat1) * math.Pi / 180
	deltaLng := (lng2 - lng1) * math.Pi / 180

	// Haversine formula
	a := math.Sin(deltaLat/2)*math.Sin(deltaLat/2) +
		math.Cos(lat1Rad)*math.Cos(lat2Rad)*
			math.Sin(deltaLng/2)*math.Sin(deltaLng/2)

	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return EarthRadiusKm * c
}

// Location represents a geographic point
type Location struct {
	Name      string
	Latitude  float64
	Longitude float64
}

// Capitals holds the CBD of each state and territory capital, keyed by
// state code
var Capitals = map[string]Location{
	"NSW": {Name: "Sydney", Latitude: -33.8688, Longitude: 151.2093},
	"VIC": {Name: "Melbourne", Latitude: -37.8136, Longitude: 144.9631},
	"QLD": {Name: "Brisbane", Latitude: -27.4698, Longitude: 153.0251},
	"WA":  {Name: "Perth", Latitude: -31.9523, Longitude: 115.8613},
	"SA":  {Name: "Adelaide", Latitude: -34.9285, Longitude: 138.6007},
	"TAS": {Name: "Hobart", Latitude: -42.8821, Longitude: 147.3272},
	"ACT": {Name: "Canberra", Latitude: -35.2809, Longitude: 149.1300},
	"NT":  {Name: "Darwin", Latitude: -12.4634, Longitude: 130.8456},
}

// DistanceToCBD calculates the distance from a point to the CBD of the
// state's capital. It reports false for an unknown state.
func DistanceToCBD(state string, lat, lng float64) (float64, bool) {
	capital, ok := Capitals[strings.ToUpper(strings.TrimSpace(state))]
	if !ok {
		return 0, false
	}
	return Haversine(lat, lng, capital.Latitude, capital.Longitude), true
}
