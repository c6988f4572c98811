package mapbox

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"time"

	"github.com/couchcryptid/seismic-alert-service/internal/cache"
	"github.com/couchcryptid/seismic-alert-service/internal/domain"
)

// Client implements domain.CityValidator using the Mapbox Geocoding API.
type Client struct {
	token      string
	httpClient *http.Client
	baseURL    string
	verdicts   *cache.LRU[string, bool]
	logger     *slog.Logger
}

// NewClient creates a Mapbox geocoding client.
func NewClient(token string, timeout time.Duration, logger *slog.Logger) *Client {
	return &Client{
		token: token,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		baseURL:  "https://api.mapbox.com/geocoding/v5/mapbox.places",
		verdicts: cache.NewLRU[string, bool](512),
		logger:   logger,
	}
}

// IsCity reports whether name forward-geocodes to a Mapbox "place" feature
// (cities, towns and villages) whose name matches after normalization.
func (c *Client) IsCity(ctx context.Context, name, language string) (bool, error) {
	want := domain.NormalizeText(name)
	if want == "" {
		return false, nil
	}
	key := want + "|" + language
	if ok, hit := c.verdicts.Get(key); hit {
		return ok, nil
	}

	f, err := c.forwardGeocode(ctx, name, language)
	if err != nil {
		return false, err
	}

	isCity := f != nil &&
		slices.Contains(f.PlaceType, "place") &&
		domain.NormalizeText(f.Text) == want
	c.verdicts.Put(key, isCity)
	if !isCity {
		c.logger.Debug("city validation rejected", "name", name, "language", language)
	}
	return isCity, nil
}

// forwardGeocode returns the best place match for name, or nil when none.
func (c *Client) forwardGeocode(ctx context.Context, name, language string) (*feature, error) {
	u := fmt.Sprintf("%s/%s.json", c.baseURL, url.PathEscape(name))
	params := url.Values{
		"access_token": {c.token},
		"limit":        {"1"},
		"types":        {"place"},
	}
	if language != "" {
		params.Set("language", language)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("forward geocode request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("mapbox API error: status %d: %s", resp.StatusCode, body)
	}

	var mapboxResp response
	if err := json.NewDecoder(resp.Body).Decode(&mapboxResp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	if len(mapboxResp.Features) == 0 {
		return nil, nil
	}
	return &mapboxResp.Features[0], nil
}

// Mapbox API response types.

type response struct {
	Features []feature `json:"features"`
}

type feature struct {
	PlaceType []string `json:"place_type"`
	PlaceName string   `json:"place_name"`
	Text      string   `json:"text"`
	Relevance float64  `json:"relevance"`
}
