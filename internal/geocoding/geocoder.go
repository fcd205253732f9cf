package geocoding

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"homeradius/server/internal/ratequeue"
)

const defaultBaseURL = "https://api.geoapify.com"

// Coordinates is one geocoding result.
type Coordinates struct {
	Lat       float64
	Lon       float64
	Formatted string
}

// GeocodeError means the provider returned zero results for an address.
// This aborts polygon resolution; there is nothing sensible to fall
// back to.
type GeocodeError struct {
	Address string
}

func (e *GeocodeError) Error() string {
	return fmt.Sprintf("no geocoding results for address: %s", e.Address)
}

// Client talks to the geocoding/isochrone provider.
type Client struct {
	apiKey  string
	baseURL string
	client  *http.Client
	logger  *logrus.Logger
}

func NewClient(apiKey string, logger *logrus.Logger) *Client {
	if logger == nil {
		logger = logrus.New()
	}
	return &Client{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		client:  &http.Client{Timeout: 10 * time.Second},
		logger:  logger,
	}
}

type geocodeResponse struct {
	Results []struct {
		Lat       float64 `json:"lat"`
		Lon       float64 `json:"lon"`
		Formatted string  `json:"formatted"`
	} `json:"results"`
}

// Geocode resolves an address to coordinates. Zero results is a
// *GeocodeError.
func (c *Client) Geocode(ctx context.Context, address string) (Coordinates, error) {
	params := url.Values{
		"text":   []string{address},
		"limit":  []string{"1"},
		"format": []string{"json"},
		"apiKey": []string{c.apiKey},
	}

	body, err := c.get(ctx, "/v1/geocode/search", params)
	if err != nil {
		return Coordinates{}, fmt.Errorf("geocoding request failed: %w", err)
	}

	var result geocodeResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return Coordinates{}, fmt.Errorf("failed to parse geocoding response: %w", err)
	}
	if len(result.Results) == 0 {
		c.logger.WithField("address", address).Warn("No geocoding results found")
		return Coordinates{}, &GeocodeError{Address: address}
	}

	hit := result.Results[0]
	c.logger.WithFields(logrus.Fields{
		"address":   address,
		"latitude":  hit.Lat,
		"longitude": hit.Lon,
	}).Info("Successfully geocoded address")

	return Coordinates{Lat: hit.Lat, Lon: hit.Lon, Formatted: hit.Formatted}, nil
}

// Isochrone fetches the drive-time polygon around a point. The raw
// GeoJSON is returned untouched because the provider's shape varies;
// callers normalize it.
func (c *Client) Isochrone(ctx context.Context, lat, lon float64, minutes int) (json.RawMessage, error) {
	params := url.Values{
		"lat":    []string{strconv.FormatFloat(lat, 'f', -1, 64)},
		"lon":    []string{strconv.FormatFloat(lon, 'f', -1, 64)},
		"type":   []string{"time"},
		"mode":   []string{"drive"},
		"range":  []string{strconv.Itoa(minutes * 60)},
		"apiKey": []string{c.apiKey},
	}

	body, err := c.get(ctx, "/v1/isoline", params)
	if err != nil {
		return nil, fmt.Errorf("isochrone request failed: %w", err)
	}
	return json.RawMessage(body), nil
}

func (c *Client) get(ctx context.Context, path string, params url.Values) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", "HomeRadius/1.0")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, &ratequeue.RateLimitError{
			StatusCode: resp.StatusCode,
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
		}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("provider returned status %d: %s", resp.StatusCode, string(body))
	}
	return body, nil
}

// parseRetryAfter converts a Retry-After header in seconds to a
// duration, zero when absent or unparseable.
func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}
	seconds, err := strconv.Atoi(header)
	if err != nil || seconds < 0 {
		return 0
	}
	return time.Duration(seconds) * time.Second
}
