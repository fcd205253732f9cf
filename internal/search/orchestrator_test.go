package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"homeradius/server/internal/cache"
	"homeradius/server/internal/geocoding"
	"homeradius/server/internal/isochrone"
	"homeradius/server/internal/listings"
	"homeradius/server/internal/models"
	"homeradius/server/internal/mortgage"
	"homeradius/server/internal/ratequeue"
)

// squares in lon/lat: A covers 0..10, B covers 5..15
const (
	polygonA = `{"type":"Polygon","coordinates":[[[0,0],[10,0],[10,10],[0,10],[0,0]]]}`
	polygonB = `{"type":"Polygon","coordinates":[[[5,5],[15,5],[15,15],[5,15],[5,5]]]}`
)

type stubProvider struct {
	polygons map[string]string
}

func (s *stubProvider) Geocode(ctx context.Context, address string) (geocoding.Coordinates, error) {
	if _, ok := s.polygons[address]; !ok {
		return geocoding.Coordinates{}, &geocoding.GeocodeError{Address: address}
	}
	return geocoding.Coordinates{Lat: 1, Lon: 1, Formatted: address}, nil
}

func (s *stubProvider) Isochrone(ctx context.Context, lat, lon float64, minutes int) (json.RawMessage, error) {
	for _, polygon := range s.polygons {
		return json.RawMessage(polygon), nil
	}
	return nil, errors.New("no polygon configured")
}

// anchorProvider maps each anchor address to a fixed polygon.
type anchorProvider struct {
	byAddress map[string]string
}

func (p *anchorProvider) Geocode(ctx context.Context, address string) (geocoding.Coordinates, error) {
	polygon, ok := p.byAddress[address]
	if !ok {
		return geocoding.Coordinates{}, &geocoding.GeocodeError{Address: address}
	}
	// Encode which polygon to serve in the coordinates.
	if polygon == polygonA {
		return geocoding.Coordinates{Lat: 100, Lon: 100}, nil
	}
	return geocoding.Coordinates{Lat: 200, Lon: 200}, nil
}

func (p *anchorProvider) Isochrone(ctx context.Context, lat, lon float64, minutes int) (json.RawMessage, error) {
	if lat == 100 {
		return json.RawMessage(polygonA), nil
	}
	return json.RawMessage(polygonB), nil
}

type stubSearchClient struct {
	pages      map[int]*listings.ProviderPage
	errs       map[int]error
	configured bool
}

func (s *stubSearchClient) Configured() bool {
	return s.configured
}

func (s *stubSearchClient) SearchPage(ctx context.Context, page, pageSize int) (*listings.ProviderPage, error) {
	if err, ok := s.errs[page]; ok {
		return nil, err
	}
	if p, ok := s.pages[page]; ok {
		return p, nil
	}
	return &listings.ProviderPage{}, nil
}

func rawAt(id string, price int, lat, lon float64) listings.RawListing {
	raw := listings.RawListing{PropertyID: id, Price: price, Beds: 3, Baths: 2}
	raw.Address.Line = id + " Test St"
	raw.Address.City = "Fort Worth"
	raw.Address.StateCode = "TX"
	raw.Address.Lat = lat
	raw.Address.Lon = lon
	raw.BuildingSize.Size = 1500
	return raw
}

func newTestOrchestrator(t *testing.T, provider isochrone.Provider, client listings.SearchClient) *Orchestrator {
	logger := logrus.New()
	queue := ratequeue.NewWithRetry(1000, 0, time.Millisecond, logger)
	queue.Start()
	t.Cleanup(queue.Close)

	store := cache.New(cache.NewMemoryStore(), logger)
	resolver := isochrone.NewResolver(provider, store, logger)
	fetcher := listings.NewFetcher(client, queue, store, logger)
	return NewOrchestrator(resolver, fetcher, mortgage.DefaultTerms, logger)
}

func TestSearch_FiltersByPriceAndLocation(t *testing.T) {
	client := &stubSearchClient{
		configured: true,
		pages: map[int]*listings.ProviderPage{
			1: {
				Listings: []listings.RawListing{
					rawAt("in-budget-in-area", 250000, 5, 5),
					rawAt("too-expensive", 500000, 5, 5),
					rawAt("in-budget-out-of-area", 250000, 40, 40),
				},
				TotalCount: 3,
			},
		},
	}
	provider := &stubProvider{polygons: map[string]string{"A": polygonA}}
	o := newTestOrchestrator(t, provider, client)

	params := models.SearchParams{MaxMonthlyPayment: 3000, DownPaymentPercent: 3.5}
	result, err := o.Search(context.Background(), []models.Anchor{{Address: "A", DriveTime: "15 minutes"}}, params, 1)
	require.NoError(t, err)

	require.Len(t, result.Properties, 1)
	assert.Equal(t, "in-budget-in-area", result.Properties[0].ID)
	assert.Greater(t, result.Properties[0].MonthlyPayment, 0.0)
	assert.LessOrEqual(t, float64(result.Properties[0].Price), result.FilterStats.MaxPrice)

	stats := result.FilterStats
	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, 1, stats.FilteredByPrice)
	assert.Equal(t, 1, stats.FilteredByLocation)
	assert.Equal(t, 0, stats.Unlocatable)
	assert.Equal(t, 1, stats.Remaining)
	assert.InDelta(t, mortgage.MaxPrice(3000, 3.5, mortgage.DefaultTerms), stats.MaxPrice, 0.01)
	require.Len(t, result.DriveTimePolygons, 1)
}

func TestSearch_ANDSemanticsAcrossPolygons(t *testing.T) {
	client := &stubSearchClient{
		configured: true,
		pages: map[int]*listings.ProviderPage{
			1: {
				Listings: []listings.RawListing{
					rawAt("in-both", 250000, 7, 7),
					rawAt("only-in-a", 250000, 2, 2),
					rawAt("only-in-b", 250000, 12, 12),
				},
				TotalCount: 3,
			},
		},
	}
	provider := &anchorProvider{byAddress: map[string]string{"A": polygonA, "B": polygonB}}
	o := newTestOrchestrator(t, provider, client)
	anchors := []models.Anchor{
		{Address: "A", DriveTime: "15 minutes"},
		{Address: "B", DriveTime: "30 minutes"},
	}
	params := models.SearchParams{MaxMonthlyPayment: 3000, DownPaymentPercent: 20}

	result, err := o.Search(context.Background(), anchors, params, 1)
	require.NoError(t, err)
	require.Len(t, result.Properties, 1)
	assert.Equal(t, "in-both", result.Properties[0].ID)
	assert.Equal(t, 2, result.FilterStats.FilteredByLocation)
}

func TestSearch_EnabledIndicesSelectPolygons(t *testing.T) {
	client := &stubSearchClient{
		configured: true,
		pages: map[int]*listings.ProviderPage{
			1: {
				Listings: []listings.RawListing{
					rawAt("only-in-a", 250000, 2, 2),
					rawAt("only-in-b", 250000, 12, 12),
				},
				TotalCount: 2,
			},
		},
	}
	provider := &anchorProvider{byAddress: map[string]string{"A": polygonA, "B": polygonB}}
	o := newTestOrchestrator(t, provider, client)
	anchors := []models.Anchor{
		{Address: "A", DriveTime: "15 minutes"},
		{Address: "B", DriveTime: "30 minutes"},
	}
	params := models.SearchParams{
		MaxMonthlyPayment:     3000,
		DownPaymentPercent:    20,
		EnabledPolygonIndices: []int{0},
	}

	result, err := o.Search(context.Background(), anchors, params, 1)
	require.NoError(t, err)
	require.Len(t, result.Properties, 1)
	// Only polygon 0 matters; a property inside polygon 1 only is out.
	assert.Equal(t, "only-in-a", result.Properties[0].ID)
}

func TestSearch_UnlocatablePropertiesCountedSeparately(t *testing.T) {
	client := &stubSearchClient{
		configured: true,
		pages: map[int]*listings.ProviderPage{
			1: {
				Listings: []listings.RawListing{
					rawAt("no-coords", 250000, 0, 0),
					rawAt("located", 250000, 5, 5),
				},
				TotalCount: 2,
			},
		},
	}
	provider := &stubProvider{polygons: map[string]string{"A": polygonA}}
	o := newTestOrchestrator(t, provider, client)
	params := models.SearchParams{MaxMonthlyPayment: 3000, DownPaymentPercent: 20}

	result, err := o.Search(context.Background(), []models.Anchor{{Address: "A", DriveTime: "15 minutes"}}, params, 1)
	require.NoError(t, err)
	require.Len(t, result.Properties, 1)
	assert.Equal(t, "located", result.Properties[0].ID)
	assert.Equal(t, 1, result.FilterStats.Unlocatable)
	assert.Equal(t, 0, result.FilterStats.FilteredByLocation)
}

func TestSearch_MinimumFilters(t *testing.T) {
	small := rawAt("small", 200000, 5, 5)
	small.Beds = 2
	small.Baths = 1
	small.BuildingSize.Size = 800
	big := rawAt("big", 200000, 5, 5)
	big.Beds = 4
	big.Baths = 2.5
	big.BuildingSize.Size = 2200

	client := &stubSearchClient{
		configured: true,
		pages: map[int]*listings.ProviderPage{
			1: {Listings: []listings.RawListing{small, big}, TotalCount: 2},
		},
	}
	provider := &stubProvider{polygons: map[string]string{"A": polygonA}}
	o := newTestOrchestrator(t, provider, client)
	params := models.SearchParams{
		MaxMonthlyPayment:  4000,
		DownPaymentPercent: 20,
		MinBedrooms:        3,
		MinBathrooms:       2,
		MinSquareFeet:      1000,
	}

	result, err := o.Search(context.Background(), []models.Anchor{{Address: "A", DriveTime: "15 minutes"}}, params, 1)
	require.NoError(t, err)
	require.Len(t, result.Properties, 1)
	assert.Equal(t, "big", result.Properties[0].ID)
}

func TestSearch_GeocodeFailureAborts(t *testing.T) {
	client := &stubSearchClient{configured: true}
	provider := &stubProvider{polygons: map[string]string{}}
	o := newTestOrchestrator(t, provider, client)
	params := models.SearchParams{MaxMonthlyPayment: 3000, DownPaymentPercent: 20}

	_, err := o.Search(context.Background(), []models.Anchor{{Address: "nowhere", DriveTime: "15 minutes"}}, params, 1)
	var geoErr *geocoding.GeocodeError
	require.True(t, errors.As(err, &geoErr))
}

func TestSearch_DegradedPageSurfacesWarning(t *testing.T) {
	client := &stubSearchClient{
		configured: true,
		errs:       map[int]error{1: errors.New("upstream exploded")},
	}
	provider := &stubProvider{polygons: map[string]string{"A": polygonA}}
	o := newTestOrchestrator(t, provider, client)
	params := models.SearchParams{MaxMonthlyPayment: 3000, DownPaymentPercent: 20}

	result, err := o.Search(context.Background(), []models.Anchor{{Address: "A", DriveTime: "15 minutes"}}, params, 1)
	require.NoError(t, err)
	assert.Empty(t, result.Properties)
	require.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0], "upstream exploded")
}

func TestSearch_NoAnchorsSkipsLocationFilter(t *testing.T) {
	client := &stubSearchClient{
		configured: true,
		pages: map[int]*listings.ProviderPage{
			1: {Listings: []listings.RawListing{rawAt("anywhere", 250000, 40, 40)}, TotalCount: 1},
		},
	}
	provider := &stubProvider{polygons: map[string]string{}}
	o := newTestOrchestrator(t, provider, client)
	params := models.SearchParams{MaxMonthlyPayment: 3000, DownPaymentPercent: 20}

	result, err := o.Search(context.Background(), nil, params, 1)
	require.NoError(t, err)
	require.Len(t, result.Properties, 1)
}

func pageOf(ids []string, totalCount int) *listings.ProviderPage {
	page := &listings.ProviderPage{TotalCount: totalCount}
	for _, id := range ids {
		page.Listings = append(page.Listings, rawAt(id, 200000, 5, 5))
	}
	return page
}

func TestPrefetchAll_SkipsFailingPage(t *testing.T) {
	client := &stubSearchClient{
		configured: true,
		pages: map[int]*listings.ProviderPage{
			1: pageOf([]string{"p1a", "p1b"}, 450),
			3: pageOf([]string{"p3a"}, 450),
		},
		errs: map[int]error{2: errors.New("page 2 always fails")},
	}
	provider := &stubProvider{polygons: map[string]string{}}
	o := newTestOrchestrator(t, provider, client)

	var progress []string
	result, err := o.PrefetchAll(context.Background(), func(current, total int) {
		progress = append(progress, fmt.Sprintf("%d/%d", current, total))
	})

	require.NoError(t, err)
	assert.Equal(t, []int{1, 3}, result.LoadedPages)
	assert.Equal(t, 450, result.TotalCount)
	assert.Equal(t, 3, result.TotalPages)
	require.Len(t, result.Properties, 3)
	for _, p := range result.Properties {
		assert.NotContains(t, p.ID, "p2")
	}
	assert.Equal(t, []string{"1/3", "2/3", "3/3"}, progress)
}

func TestPrefetchAll_FirstPageDegraded(t *testing.T) {
	client := &stubSearchClient{
		configured: true,
		errs:       map[int]error{1: errors.New("dead upstream")},
	}
	provider := &stubProvider{polygons: map[string]string{}}
	o := newTestOrchestrator(t, provider, client)

	result, err := o.PrefetchAll(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, result.LoadedPages)
	assert.Empty(t, result.Properties)
}

func TestJobTracker_PrefetchLifecycle(t *testing.T) {
	client := &stubSearchClient{
		configured: true,
		pages: map[int]*listings.ProviderPage{
			1: pageOf([]string{"p1"}, 1),
		},
	}
	provider := &stubProvider{polygons: map[string]string{}}
	o := newTestOrchestrator(t, provider, client)
	tracker := NewJobTracker(o, logrus.New())

	id := tracker.StartPrefetch()
	require.NotEmpty(t, id)

	deadline := time.After(2 * time.Second)
	for {
		job, ok := tracker.Get(id)
		require.True(t, ok)
		if job.Done {
			assert.Empty(t, job.Error)
			require.NotNil(t, job.Result)
			assert.Equal(t, []int{1}, job.Result.LoadedPages)
			break
		}
		select {
		case <-deadline:
			t.Fatal("prefetch job never finished")
		case <-time.After(10 * time.Millisecond):
		}
	}

	_, ok := tracker.Get("missing")
	assert.False(t, ok)
}

func TestClearCaches(t *testing.T) {
	client := &stubSearchClient{
		configured: true,
		pages:      map[int]*listings.ProviderPage{1: pageOf([]string{"p1"}, 1)},
	}
	provider := &stubProvider{polygons: map[string]string{"A": polygonA}}
	o := newTestOrchestrator(t, provider, client)

	params := models.SearchParams{MaxMonthlyPayment: 3000, DownPaymentPercent: 20}
	_, err := o.Search(context.Background(), []models.Anchor{{Address: "A", DriveTime: "15 minutes"}}, params, 1)
	require.NoError(t, err)

	assert.NoError(t, o.ClearListingsCache())
	assert.NoError(t, o.ClearIsochroneCache())
}
