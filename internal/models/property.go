package models

import "encoding/json"

// Property is one normalized listing from the upstream provider.
// MonthlyPayment is derived per search from the caller's down payment
// percentage; it is never persisted as ground truth.
type Property struct {
	ID             string  `json:"id"`
	Address        string  `json:"address"`
	Price          int     `json:"price"`
	Bedrooms       int     `json:"bedrooms"`
	Bathrooms      float64 `json:"bathrooms"`
	SquareFeet     int     `json:"square_feet"`
	Latitude       float64 `json:"lat"`
	Longitude      float64 `json:"lng"`
	ImageURL       string  `json:"image_url"`
	ListingURL     string  `json:"listing_url"`
	MonthlyPayment float64 `json:"monthly_payment"`
	ComingSoon     bool    `json:"coming_soon,omitempty"`
	Pending        bool    `json:"pending,omitempty"`
}

// HasCoordinates reports whether the property can take part in
// location-based filtering. Zero coordinates mean the upstream record
// had no usable location.
func (p *Property) HasCoordinates() bool {
	return p.Latitude != 0 && p.Longitude != 0
}

// Anchor is a user-supplied address with a drive-time label,
// e.g. {"123 Main St", "15 minutes"}.
type Anchor struct {
	Address   string `json:"address"`
	DriveTime string `json:"drive_time"`
}

// DriveTimePolygon pairs an anchor with the isochrone the provider
// returned for it. GeoJSON may be a Feature, a FeatureCollection, or a
// bare geometry; consumers normalize it before use.
type DriveTimePolygon struct {
	Address   string          `json:"address"`
	DriveTime string          `json:"drive_time"`
	GeoJSON   json.RawMessage `json:"geo_json"`
}

// SearchParams holds the per-request affordability and size filters.
// EnabledPolygonIndices selects the subset of anchors a property must
// fall inside; every selected polygon must contain it (AND semantics).
// Empty or nil means all anchors apply.
type SearchParams struct {
	MaxMonthlyPayment     float64 `json:"max_monthly_payment"`
	DownPaymentPercent    float64 `json:"down_payment_percent"`
	MinBedrooms           int     `json:"min_bedrooms,omitempty"`
	MinBathrooms          float64 `json:"min_bathrooms,omitempty"`
	MinSquareFeet         int     `json:"min_square_feet,omitempty"`
	EnabledPolygonIndices []int   `json:"enabled_polygon_indices,omitempty"`
}

// FilterStats describes what one search pass kept and dropped.
// FilteredByLocation counts properties that passed the price check but
// fell outside a required polygon; Unlocatable counts those with no
// coordinates at all, kept as a separate bucket.
type FilterStats struct {
	Total              int     `json:"total"`
	FilteredByPrice    int     `json:"filtered_by_price"`
	FilteredByLocation int     `json:"filtered_by_location"`
	Unlocatable        int     `json:"unlocatable"`
	Remaining          int     `json:"remaining"`
	MaxPrice           float64 `json:"max_price"`
	PercentByPrice     float64 `json:"percent_by_price"`
	PercentByLocation  float64 `json:"percent_by_location"`
}

// Pagination echoes the upstream paging state back to the caller.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
	TotalPages int `json:"total_pages"`
}

// SearchResult is the full response of one search call.
type SearchResult struct {
	Properties        []Property         `json:"properties"`
	DriveTimePolygons []DriveTimePolygon `json:"drive_time_polygons"`
	Pagination        Pagination         `json:"pagination"`
	FilterStats       FilterStats        `json:"filter_stats"`
	Warnings          []string           `json:"warnings,omitempty"`
}

// PrefetchResult is the outcome of draining every upstream page.
// LoadedPages lists exactly which pages succeeded so callers can
// detect and re-request gaps.
type PrefetchResult struct {
	Properties  []Property `json:"properties"`
	TotalCount  int        `json:"total_count"`
	TotalPages  int        `json:"total_pages"`
	LoadedPages []int      `json:"loaded_pages"`
}
