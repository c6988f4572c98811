package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/couchcryptid/seismic-alert-service/internal/domain"
)

// Client fetches seismic events from an EMSC-style FDSN JSON feed.
// It implements pipeline.FeedFetcher.
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a feed client with the given request timeout.
func NewClient(timeout time.Duration, logger *slog.Logger) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// Fetch retrieves and parses the event list at url. Every failure wraps
// domain.ErrFeedUnavailable. Features without an id are dropped.
func (c *Client) Fetch(ctx context.Context, url string) ([]domain.SeismicEvent, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: create request: %w", domain.ErrFeedUnavailable, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrFeedUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: status %d: %s", domain.ErrFeedUnavailable, resp.StatusCode, body)
	}

	var fc featureCollection
	if err := json.NewDecoder(resp.Body).Decode(&fc); err != nil {
		return nil, fmt.Errorf("%w: decode response: %w", domain.ErrFeedUnavailable, err)
	}

	events := make([]domain.SeismicEvent, 0, len(fc.Features))
	for _, f := range fc.Features {
		id := strings.TrimSpace(f.ID)
		if id == "" {
			c.logger.Debug("feed feature without id, skipping")
			continue
		}
		events = append(events, domain.SeismicEvent{
			SourceID:  id,
			Time:      parseEventTime(f.Properties.Time),
			Magnitude: f.Properties.Mag,
			Lat:       f.Properties.Lat,
			Lon:       f.Properties.Lon,
			Authority: f.Properties.Auth,
		})
	}
	return events, nil
}

// parseEventTime accepts RFC3339 with or without a zone suffix. An
// unparseable time yields the zero value; the event is still delivered.
func parseEventTime(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC()
	}
	if t, err := time.Parse("2006-01-02T15:04:05.999999999", s); err == nil {
		return t
	}
	return time.Time{}
}

// FDSN event feed response types.

type featureCollection struct {
	Features []feature `json:"features"`
}

type feature struct {
	ID         string     `json:"id"`
	Properties properties `json:"properties"`
}

type properties struct {
	Time string  `json:"time"`
	Mag  float64 `json:"mag"`
	Lat  float64 `json:"lat"`
	Lon  float64 `json:"lon"`
	Auth string  `json:"auth"`
}
