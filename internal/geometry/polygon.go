// Package geometry normalizes the heterogeneous GeoJSON shapes returned
// by isochrone providers and runs read-only containment tests against
// them. Providers variously return a Feature, a FeatureCollection, or a
// bare geometry for the same request; everything is converted to a flat
// feature list once, at ingestion, so no downstream code type-sniffs.
package geometry

import (
	"encoding/json"
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/planar"
)

// Normalize parses raw GeoJSON into the canonical flat feature list.
// It accepts a Feature, a FeatureCollection, or a bare geometry; a bare
// geometry is wrapped in a property-less Feature.
func Normalize(raw json.RawMessage) ([]*geojson.Feature, error) {
	var probe struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return nil, fmt.Errorf("failed to parse GeoJSON: %w", err)
	}

	switch probe.Type {
	case "FeatureCollection":
		fc, err := geojson.UnmarshalFeatureCollection(raw)
		if err != nil {
			return nil, fmt.Errorf("failed to parse FeatureCollection: %w", err)
		}
		return fc.Features, nil
	case "Feature":
		f, err := geojson.UnmarshalFeature(raw)
		if err != nil {
			return nil, fmt.Errorf("failed to parse Feature: %w", err)
		}
		return []*geojson.Feature{f}, nil
	case "":
		return nil, fmt.Errorf("GeoJSON has no type field")
	default:
		g, err := geojson.UnmarshalGeometry(raw)
		if err != nil {
			return nil, fmt.Errorf("failed to parse geometry of type %q: %w", probe.Type, err)
		}
		return []*geojson.Feature{geojson.NewFeature(g.Geometry())}, nil
	}
}

// Contains reports whether the point lies inside any feature of the
// normalized shape, first match wins. Features whose geometry is
// missing or not areal count as non-containment rather than failing
// the whole pass.
func Contains(features []*geojson.Feature, lat, lon float64) bool {
	point := orb.Point{lon, lat}
	for _, f := range features {
		if f == nil || f.Geometry == nil {
			continue
		}
		if geometryContains(f.Geometry, point) {
			return true
		}
	}
	return false
}

func geometryContains(g orb.Geometry, point orb.Point) bool {
	switch geom := g.(type) {
	case orb.Polygon:
		return planar.PolygonContains(geom, point)
	case orb.MultiPolygon:
		return planar.MultiPolygonContains(geom, point)
	case orb.Collection:
		for _, member := range geom {
			if geometryContains(member, point) {
				return true
			}
		}
		return false
	default:
		return false
	}
}
