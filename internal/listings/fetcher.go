package listings

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"homeradius/server/internal/cache"
	"homeradius/server/internal/models"
	"homeradius/server/internal/ratequeue"
)

const (
	// DefaultPageSize matches the provider's maximum page size.
	DefaultPageSize = 200

	placeholderImageURL = "https://placehold.co/600x400?text=No+Photo"
	placeholderListing  = "#"
	permalinkBaseURL    = "https://www.realtor.com/realestateandhomes-detail/"
)

// Page is one fetched, normalized page of listings. Degraded is set
// when the page is empty because of a failure rather than a genuine
// lack of data; Reason says which.
type Page struct {
	Properties []models.Property `json:"properties"`
	TotalCount int               `json:"total_count"`
	TotalPages int               `json:"total_pages"`
	Degraded   bool              `json:"degraded,omitempty"`
	Reason     string            `json:"reason,omitempty"`
}

// Fetcher pages through the upstream provider via the shared
// rate-limited queue and caches each page.
type Fetcher struct {
	client   SearchClient
	queue    *ratequeue.Queue
	cache    *cache.Cache
	pageSize int
	logger   *logrus.Logger
}

func NewFetcher(client SearchClient, queue *ratequeue.Queue, c *cache.Cache, logger *logrus.Logger) *Fetcher {
	if logger == nil {
		logger = logrus.New()
	}
	return &Fetcher{
		client:   client,
		queue:    queue,
		cache:    c,
		pageSize: DefaultPageSize,
		logger:   logger,
	}
}

// PageSize returns the fixed upstream page size.
func (f *Fetcher) PageSize() int {
	return f.pageSize
}

// FetchPage returns one page, from cache when possible. Rate-limit
// exhaustion is the only error surfaced; any other failure comes back
// as an empty Degraded page so one bad page never kills a whole run.
func (f *Fetcher) FetchPage(ctx context.Context, page int) (Page, error) {
	key := cache.ListingsPageKey(page)

	var cached Page
	if f.cache.Get(key, cache.TTLListingsPage, &cached) {
		f.logger.WithField("page", page).Debug("Listings page served from cache")
		return cached, nil
	}

	if !f.client.Configured() {
		f.logger.Warn("Listings provider credentials missing, returning empty page")
		return Page{Degraded: true, Reason: ErrMissingCredentials.Error()}, nil
	}

	value, err := f.queue.Do(ctx, func(ctx context.Context) (interface{}, error) {
		return f.client.SearchPage(ctx, page, f.pageSize)
	})
	if err != nil {
		if ratequeue.IsRateLimit(err) {
			// The queue already retried; let the orchestrator decide.
			return Page{}, err
		}
		f.logger.WithError(err).WithField("page", page).Error("Failed to fetch listings page")
		return Page{Degraded: true, Reason: err.Error()}, nil
	}

	provider := value.(*ProviderPage)
	result := Page{
		Properties: make([]models.Property, 0, len(provider.Listings)),
		TotalCount: provider.TotalCount,
		TotalPages: totalPages(provider.TotalCount, f.pageSize),
	}
	for _, raw := range provider.Listings {
		result.Properties = append(result.Properties, Normalize(raw))
	}

	if err := f.cache.Put(key, result); err != nil {
		f.logger.WithError(err).WithField("page", page).Warn("Failed to cache listings page")
	}
	return result, nil
}

// ClearCache drops every cached listings page.
func (f *Fetcher) ClearCache() error {
	return f.cache.Clear(cache.ListingsPrefix)
}

// Normalize converts one raw provider record into the domain shape.
// Missing numerics stay zero; the image and listing URLs fall back to
// placeholders. MonthlyPayment is left at zero here because it depends
// on a down payment percentage not known until search time.
func Normalize(raw RawListing) models.Property {
	address := strings.TrimSpace(fmt.Sprintf("%s, %s, %s",
		raw.Address.Line, raw.Address.City, raw.Address.StateCode))
	address = strings.Trim(address, ", ")

	imageURL := raw.Photo
	if imageURL == "" {
		imageURL = placeholderImageURL
	}
	listingURL := placeholderListing
	if raw.Permalink != "" {
		listingURL = permalinkBaseURL + raw.Permalink
	}

	return models.Property{
		ID:         raw.PropertyID,
		Address:    address,
		Price:      raw.Price,
		Bedrooms:   raw.Beds,
		Bathrooms:  raw.Baths,
		SquareFeet: raw.BuildingSize.Size,
		Latitude:   raw.Address.Lat,
		Longitude:  raw.Address.Lon,
		ImageURL:   imageURL,
		ListingURL: listingURL,
		ComingSoon: raw.IsComingSoon,
		Pending:    raw.IsPending,
	}
}

func totalPages(totalCount, pageSize int) int {
	if totalCount <= 0 || pageSize <= 0 {
		return 0
	}
	return (totalCount + pageSize - 1) / pageSize
}
