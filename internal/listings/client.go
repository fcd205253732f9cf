package listings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"homeradius/server/internal/ratequeue"
)

// ErrMissingCredentials means no provider API key was configured.
// Fetch operations short-circuit on it instead of hitting the network.
var ErrMissingCredentials = errors.New("listings provider API key is not configured")

const defaultListingsBaseURL = "https://realty-in-us.p.rapidapi.com"

// ClientConfig pins the upstream search filter. Every page request
// uses the same geography, type, and price ceiling; only the page
// number varies.
type ClientConfig struct {
	APIKey      string
	APIHost     string
	City        string
	StateCode   string
	MaxPrice    int
	NoForeclose bool
}

// RawListing is one record exactly as the provider returns it.
type RawListing struct {
	PropertyID string  `json:"property_id"`
	Price      int     `json:"price"`
	Beds       int     `json:"beds"`
	Baths      float64 `json:"baths"`
	Address    struct {
		Line      string  `json:"line"`
		City      string  `json:"city"`
		StateCode string  `json:"state_code"`
		Lat       float64 `json:"lat"`
		Lon       float64 `json:"lon"`
	} `json:"address"`
	BuildingSize struct {
		Size int `json:"size"`
	} `json:"building_size"`
	Photo        string `json:"photo"`
	Permalink    string `json:"permalink"`
	IsComingSoon bool   `json:"is_coming_soon"`
	IsPending    bool   `json:"is_pending"`
}

// ProviderPage is one decoded page of upstream results.
type ProviderPage struct {
	Listings   []RawListing
	TotalCount int
}

// SearchClient is the upstream listings collaborator.
type SearchClient interface {
	Configured() bool
	SearchPage(ctx context.Context, page, pageSize int) (*ProviderPage, error)
}

// Client implements SearchClient against the provider's REST API.
type Client struct {
	config  ClientConfig
	baseURL string
	client  *http.Client
	logger  *logrus.Logger
}

func NewClient(config ClientConfig, logger *logrus.Logger) *Client {
	if logger == nil {
		logger = logrus.New()
	}
	return &Client{
		config:  config,
		baseURL: defaultListingsBaseURL,
		client:  &http.Client{Timeout: 30 * time.Second},
		logger:  logger,
	}
}

func (c *Client) Configured() bool {
	return c.config.APIKey != ""
}

// providerResponse tolerates the provider's two spellings of the
// total-result count.
type providerResponse struct {
	Properties   []RawListing `json:"properties"`
	MatchingRows *int         `json:"matching_rows"`
	Total        *int         `json:"total"`
}

// SearchPage requests one page with the fixed upstream filter. Pages
// are 1-based.
func (c *Client) SearchPage(ctx context.Context, page, pageSize int) (*ProviderPage, error) {
	if !c.Configured() {
		return nil, ErrMissingCredentials
	}

	params := url.Values{
		"city":       []string{c.config.City},
		"state_code": []string{c.config.StateCode},
		"limit":      []string{strconv.Itoa(pageSize)},
		"offset":     []string{strconv.Itoa((page - 1) * pageSize)},
		"sort":       []string{"relevance"},
		"prop_type":  []string{"single_family"},
	}
	if c.config.MaxPrice > 0 {
		params.Set("price_max", strconv.Itoa(c.config.MaxPrice))
	}
	if c.config.NoForeclose {
		params.Set("foreclosure", "false")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/properties/v2/list-for-sale?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("X-RapidAPI-Key", c.config.APIKey)
	req.Header.Set("X-RapidAPI-Host", c.config.APIHost)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("listings request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read listings response: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, &ratequeue.RateLimitError{
			StatusCode: resp.StatusCode,
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
		}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("listings provider returned status %d: %s", resp.StatusCode, string(body))
	}

	var decoded providerResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, fmt.Errorf("failed to parse listings response: %w", err)
	}
	// Shape check: a well-formed response carries at least one of the
	// total-count fields.
	if decoded.MatchingRows == nil && decoded.Total == nil {
		return nil, fmt.Errorf("malformed listings response: missing total count")
	}

	total := 0
	if decoded.MatchingRows != nil {
		total = *decoded.MatchingRows
	} else {
		total = *decoded.Total
	}

	c.logger.WithFields(logrus.Fields{
		"page":  page,
		"count": len(decoded.Properties),
		"total": total,
	}).Debug("Fetched listings page")

	return &ProviderPage{Listings: decoded.Properties, TotalCount: total}, nil
}

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
