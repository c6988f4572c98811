package domain

import (
	"context"
	"fmt"
	"strings"
)

// UnknownLocation is displayed when no locality could be resolved.
const UnknownLocation = "Unknown"

// Location is the resolved place of an event. Candidates are normalized
// names at every granularity the provider returned and drive subscriber
// matching; Display is for humans only.
type Location struct {
	Display    string
	Candidates []string
}

// ResolveLocation reverse-geocodes an event position. On failure it returns
// an "Unknown" location with no candidates together with an error wrapping
// ErrGeoLookupFailed; callers still deliver the event in that case.
func ResolveLocation(ctx context.Context, geocoder ReverseGeocoder, lat, lon float64, language string) (Location, error) {
	unknown := Location{Display: UnknownLocation}
	if geocoder == nil {
		return unknown, fmt.Errorf("%w: no geocoder configured", ErrGeoLookupFailed)
	}

	result, err := geocoder.ReverseGeocode(ctx, lat, lon, language)
	if err != nil {
		return unknown, fmt.Errorf("%w: %w", ErrGeoLookupFailed, err)
	}

	fields := []string{
		strings.TrimSpace(result.Locality),
		strings.TrimSpace(result.City),
		strings.TrimSpace(result.PrincipalSubdivision),
	}

	loc := Location{Display: UnknownLocation, Candidates: NormalizeAll(fields...)}
	for _, f := range fields {
		if f != "" {
			loc.Display = f
			break
		}
	}
	return loc, nil
}
