package domain

import "context"

// GeocodingResult holds the locality fields returned by a reverse-geocoding
// provider, finest-grained first. Any field may be empty.
type GeocodingResult struct {
	Locality             string
	City                 string
	PrincipalSubdivision string
}

// Empty reports whether the provider returned no usable locality field.
func (r GeocodingResult) Empty() bool {
	return r.Locality == "" && r.City == "" && r.PrincipalSubdivision == ""
}

// ReverseGeocoder converts coordinates to locality names.
type ReverseGeocoder interface {
	// ReverseGeocode resolves coordinates using language as the locality-language hint.
	ReverseGeocode(ctx context.Context, lat, lon float64, language string) (GeocodingResult, error)
}

// CityValidator decides whether a free-form name is a known city.
type CityValidator interface {
	IsCity(ctx context.Context, name, language string) (bool, error)
}
