// Package search composes polygon resolution, listings fetching, and
// affordability into the two top-level operations the application
// exposes: a filtered page search and a full prefetch.
package search

import (
	"context"
	"fmt"

	"github.com/paulmach/orb/geojson"
	"github.com/sirupsen/logrus"

	"homeradius/server/internal/geometry"
	"homeradius/server/internal/isochrone"
	"homeradius/server/internal/listings"
	"homeradius/server/internal/models"
	"homeradius/server/internal/mortgage"
)

// Orchestrator wires the pipeline together. One instance serves all
// requests; per-request state lives in the arguments.
type Orchestrator struct {
	resolver *isochrone.Resolver
	fetcher  *listings.Fetcher
	terms    mortgage.Terms
	logger   *logrus.Logger
}

func NewOrchestrator(resolver *isochrone.Resolver, fetcher *listings.Fetcher, terms mortgage.Terms, logger *logrus.Logger) *Orchestrator {
	if logger == nil {
		logger = logrus.New()
	}
	return &Orchestrator{
		resolver: resolver,
		fetcher:  fetcher,
		terms:    terms,
		logger:   logger,
	}
}

// Search runs one filtered page query: resolve polygons for the
// anchors, fetch the requested listings page, drop everything the
// caller cannot afford or cannot reach, and attach the computed
// monthly payment to what survives. Upstream ordering is preserved.
func (o *Orchestrator) Search(ctx context.Context, anchors []models.Anchor, params models.SearchParams, page int) (models.SearchResult, error) {
	maxPrice := mortgage.MaxPrice(params.MaxMonthlyPayment, params.DownPaymentPercent, o.terms)

	resolved, err := o.resolver.Resolve(ctx, anchors, false)
	if err != nil {
		return models.SearchResult{}, fmt.Errorf("failed to resolve drive-time polygons: %w", err)
	}

	fetched, err := o.fetcher.FetchPage(ctx, page)
	if err != nil {
		return models.SearchResult{}, fmt.Errorf("failed to fetch listings page %d: %w", page, err)
	}

	warnings := resolved.Warnings
	if fetched.Degraded {
		warnings = append(warnings, fmt.Sprintf("listings page %d unavailable: %s", page, fetched.Reason))
	}

	required := requiredPolygons(resolved.Polygons, params.EnabledPolygonIndices)

	stats := models.FilterStats{
		Total:    len(fetched.Properties),
		MaxPrice: maxPrice,
	}
	var kept []models.Property
	for _, property := range fetched.Properties {
		if float64(property.Price) > maxPrice {
			stats.FilteredByPrice++
			continue
		}
		if len(required) > 0 {
			if !property.HasCoordinates() {
				stats.Unlocatable++
				continue
			}
			if !containedInAll(required, property.Latitude, property.Longitude) {
				stats.FilteredByLocation++
				continue
			}
		}
		property.MonthlyPayment = mortgage.MonthlyPayment(float64(property.Price), params.DownPaymentPercent, o.terms)
		kept = append(kept, property)
	}

	kept = applyMinimums(kept, params)
	stats.Remaining = len(kept)
	if stats.Total > 0 {
		stats.PercentByPrice = float64(stats.FilteredByPrice) / float64(stats.Total) * 100
		stats.PercentByLocation = float64(stats.FilteredByLocation) / float64(stats.Total) * 100
	}

	o.logger.WithFields(logrus.Fields{
		"page":        page,
		"total":       stats.Total,
		"by_price":    stats.FilteredByPrice,
		"by_location": stats.FilteredByLocation,
		"unlocatable": stats.Unlocatable,
		"remaining":   stats.Remaining,
	}).Info("Search page filtered")

	return models.SearchResult{
		Properties:        kept,
		DriveTimePolygons: resolved.Polygons,
		Pagination: models.Pagination{
			Page:       page,
			PageSize:   o.fetcher.PageSize(),
			TotalCount: fetched.TotalCount,
			TotalPages: fetched.TotalPages,
		},
		FilterStats: stats,
		Warnings:    warnings,
	}, nil
}

// RefreshPolygons re-resolves the anchor polygons, bypassing the cache.
func (o *Orchestrator) RefreshPolygons(ctx context.Context, anchors []models.Anchor) (isochrone.Result, error) {
	return o.resolver.Resolve(ctx, anchors, true)
}

// ClearListingsCache drops all cached listings pages.
func (o *Orchestrator) ClearListingsCache() error {
	return o.fetcher.ClearCache()
}

// ClearIsochroneCache drops the cached polygon set.
func (o *Orchestrator) ClearIsochroneCache() error {
	return o.resolver.ClearCache()
}

// requiredPolygons normalizes the polygons the filter must test
// against. With no explicit selection every polygon applies; a polygon
// that fails to normalize stays in the required set as an empty shape,
// which can contain nothing.
func requiredPolygons(polygons []models.DriveTimePolygon, enabledIndices []int) [][]*geojson.Feature {
	var selected []models.DriveTimePolygon
	if len(enabledIndices) == 0 {
		selected = polygons
	} else {
		for _, idx := range enabledIndices {
			if idx >= 0 && idx < len(polygons) {
				selected = append(selected, polygons[idx])
			}
		}
	}

	required := make([][]*geojson.Feature, 0, len(selected))
	for _, polygon := range selected {
		features, err := geometry.Normalize(polygon.GeoJSON)
		if err != nil {
			features = nil
		}
		required = append(required, features)
	}
	return required
}

// containedInAll applies the AND semantics: the point must fall inside
// every required polygon, each one treated independently.
func containedInAll(required [][]*geojson.Feature, lat, lon float64) bool {
	for _, features := range required {
		if !geometry.Contains(features, lat, lon) {
			return false
		}
	}
	return true
}

// applyMinimums drops properties under the caller's size thresholds,
// bedrooms then bathrooms then square feet.
func applyMinimums(properties []models.Property, params models.SearchParams) []models.Property {
	if params.MinBedrooms == 0 && params.MinBathrooms == 0 && params.MinSquareFeet == 0 {
		return properties
	}
	kept := properties[:0]
	for _, p := range properties {
		if params.MinBedrooms > 0 && p.Bedrooms < params.MinBedrooms {
			continue
		}
		if params.MinBathrooms > 0 && p.Bathrooms < params.MinBathrooms {
			continue
		}
		if params.MinSquareFeet > 0 && p.SquareFeet < params.MinSquareFeet {
			continue
		}
		kept = append(kept, p)
	}
	return kept
}
