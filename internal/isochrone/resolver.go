package isochrone

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/paulmach/orb/geojson"
	"github.com/sirupsen/logrus"

	"homeradius/server/internal/cache"
	"homeradius/server/internal/geocoding"
	"homeradius/server/internal/geometry"
	"homeradius/server/internal/models"
)

// defaultDriveMinutes is used when an anchor's drive-time label has no
// parseable minute count. The substitution is reported back to the
// caller as a warning instead of being silent.
const defaultDriveMinutes = 15

// Provider is the geocoding/isochrone collaborator.
type Provider interface {
	Geocode(ctx context.Context, address string) (geocoding.Coordinates, error)
	Isochrone(ctx context.Context, lat, lon float64, minutes int) (json.RawMessage, error)
}

// Result carries the resolved polygons plus any degraded-path warnings
// accumulated while producing them.
type Result struct {
	Polygons []models.DriveTimePolygon
	Warnings []string
}

// Resolver turns anchor addresses into cached drive-time polygons.
type Resolver struct {
	provider Provider
	cache    *cache.Cache
	logger   *logrus.Logger
}

func NewResolver(provider Provider, c *cache.Cache, logger *logrus.Logger) *Resolver {
	if logger == nil {
		logger = logrus.New()
	}
	return &Resolver{provider: provider, cache: c, logger: logger}
}

// Resolve returns one polygon per anchor. Unless forceRefresh is set,
// a cached set that still matches the requested anchors is returned
// without touching the provider. Anchors resolve concurrently; the
// first failure aborts the whole call.
func (r *Resolver) Resolve(ctx context.Context, anchors []models.Anchor, forceRefresh bool) (Result, error) {
	if len(anchors) == 0 {
		return Result{}, nil
	}

	if !forceRefresh {
		var cached []models.DriveTimePolygon
		if r.cache.Get(cache.IsochroneSetKey, cache.TTLIsochrones, &cached) && matchesAnchors(cached, anchors) {
			r.logger.WithField("count", len(cached)).Debug("Using cached isochrone set")
			return Result{Polygons: cached}, nil
		}
	}

	type anchorResult struct {
		index   int
		polygon models.DriveTimePolygon
		warning string
		err     error
	}

	results := make(chan anchorResult, len(anchors))
	for i, anchor := range anchors {
		go func(i int, anchor models.Anchor) {
			polygon, warning, err := r.resolveAnchor(ctx, anchor)
			results <- anchorResult{index: i, polygon: polygon, warning: warning, err: err}
		}(i, anchor)
	}

	out := Result{Polygons: make([]models.DriveTimePolygon, len(anchors))}
	var firstErr error
	for range anchors {
		res := <-results
		if res.err != nil {
			if firstErr == nil {
				firstErr = res.err
			}
			continue
		}
		out.Polygons[res.index] = res.polygon
		if res.warning != "" {
			out.Warnings = append(out.Warnings, res.warning)
		}
	}
	if firstErr != nil {
		return Result{}, firstErr
	}

	if err := r.cache.Put(cache.IsochroneSetKey, out.Polygons); err != nil {
		r.logger.WithError(err).Warn("Failed to cache isochrone set")
	}
	return out, nil
}

func (r *Resolver) resolveAnchor(ctx context.Context, anchor models.Anchor) (models.DriveTimePolygon, string, error) {
	coords, err := r.provider.Geocode(ctx, anchor.Address)
	if err != nil {
		return models.DriveTimePolygon{}, "", fmt.Errorf("failed to geocode anchor %q: %w", anchor.Address, err)
	}

	minutes, ok := ParseDriveTimeMinutes(anchor.DriveTime)
	var warning string
	if !ok {
		warning = fmt.Sprintf("could not parse drive time %q for %q; assuming %d minutes",
			anchor.DriveTime, anchor.Address, defaultDriveMinutes)
		r.logger.WithFields(logrus.Fields{
			"address":    anchor.Address,
			"drive_time": anchor.DriveTime,
		}).Warn("Unparseable drive time label, using default")
	}

	raw, err := r.provider.Isochrone(ctx, coords.Lat, coords.Lon, minutes)
	if err != nil {
		return models.DriveTimePolygon{}, "", fmt.Errorf("failed to fetch isochrone for %q: %w", anchor.Address, err)
	}

	return models.DriveTimePolygon{
		Address:   anchor.Address,
		DriveTime: anchor.DriveTime,
		GeoJSON:   raw,
	}, warning, nil
}

// ClearCache drops the cached isochrone set.
func (r *Resolver) ClearCache() error {
	return r.cache.Clear(cache.IsochronePrefix)
}

// ParseDriveTimeMinutes extracts the first run of digits from a label
// like "15 minutes". The second return is false when the label has no
// digits and the default applies.
func ParseDriveTimeMinutes(label string) (int, bool) {
	minutes := 0
	seen := false
	for _, r := range label {
		if r >= '0' && r <= '9' {
			minutes = minutes*10 + int(r-'0')
			seen = true
			continue
		}
		if seen {
			break
		}
	}
	if !seen || minutes == 0 {
		return defaultDriveMinutes, false
	}
	return minutes, true
}

// matchesAnchors reports whether a cached polygon set was produced for
// exactly these anchors, in order. A mismatch is treated as a miss so
// edited anchors never serve stale shapes.
func matchesAnchors(polygons []models.DriveTimePolygon, anchors []models.Anchor) bool {
	if len(polygons) != len(anchors) {
		return false
	}
	for i, anchor := range anchors {
		if polygons[i].Address != anchor.Address || polygons[i].DriveTime != anchor.DriveTime {
			return false
		}
	}
	return true
}

// MergeForDisplay flattens every feature from every polygon into one
// FeatureCollection for map rendering, stamping each feature with its
// source anchor. Display only; filtering never uses the merged shape.
func MergeForDisplay(polygons []models.DriveTimePolygon) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, polygon := range polygons {
		features, err := geometry.Normalize(polygon.GeoJSON)
		if err != nil {
			continue
		}
		for _, f := range features {
			if f == nil {
				continue
			}
			if f.Properties == nil {
				f.Properties = geojson.Properties{}
			}
			f.Properties["address"] = polygon.Address
			f.Properties["drive_time"] = polygon.DriveTime
			fc.Append(f)
		}
	}
	return fc
}
