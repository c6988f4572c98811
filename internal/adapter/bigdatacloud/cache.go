package bigdatacloud

import (
	"context"
	"fmt"

	"github.com/couchcryptid/seismic-alert-service/internal/cache"
	"github.com/couchcryptid/seismic-alert-service/internal/domain"
	"github.com/couchcryptid/seismic-alert-service/internal/observability"
)

// CachedGeocoder wraps a ReverseGeocoder with an in-memory LRU cache.
type CachedGeocoder struct {
	inner   domain.ReverseGeocoder
	cache   *cache.LRU[string, domain.GeocodingResult]
	metrics *observability.Metrics
}

// NewCachedGeocoder creates a cache decorator around a geocoder.
func NewCachedGeocoder(inner domain.ReverseGeocoder, maxEntries int, metrics *observability.Metrics) *CachedGeocoder {
	return &CachedGeocoder{
		inner:   inner,
		cache:   cache.NewLRU[string, domain.GeocodingResult](maxEntries),
		metrics: metrics,
	}
}

func (c *CachedGeocoder) ReverseGeocode(ctx context.Context, lat, lon float64, language string) (domain.GeocodingResult, error) {
	// Four decimals is ~11m; aftershocks reported at the same spot share an entry.
	key := fmt.Sprintf("%.4f,%.4f|%s", lat, lon, language)
	if result, ok := c.cache.Get(key); ok {
		c.metrics.GeocodeCache.WithLabelValues("hit").Inc()
		return result, nil
	}
	c.metrics.GeocodeCache.WithLabelValues("miss").Inc()

	result, err := c.inner.ReverseGeocode(ctx, lat, lon, language)
	if err != nil {
		return result, err
	}
	// Only cache non-empty results so "nothing here" answers can be retried.
	if !result.Empty() {
		c.cache.Put(key, result)
	}
	return result, nil
}
