package models

import "time"

// ValuationState is the position of a single interaction in the
// address -> geocode -> predict flow
type ValuationState string

const (
	StateAwaitingAddress ValuationState = "AWAITING_ADDRESS"
	StateGeocoding       ValuationState = "GEOCODING"
	StateGeocoded        ValuationState = "GEOCODED"
	StateGeocodeFailed   ValuationState = "GEOCODE_FAILED"
	StatePredicted       ValuationState = "PREDICTED"
)

// Terminal reports whether the interaction can make no further progress
func (s ValuationState) Terminal() bool {
	switch s {
	case StateAwaitingAddress, StateGeocodeFailed, StatePredicted:
		return true
	default:
		return false
	}
}

// Valuation is the outcome of one valuation interaction
type Valuation struct {
	State          ValuationState  `json:"state"`
	Property       *PropertyRecord `json:"property,omitempty"`
	Location       *GeocodeResult  `json:"location,omitempty"`
	PredictedPrice *float64        `json:"predicted_price,omitempty"`
	FormattedPrice string          `json:"formatted_price,omitempty"`
	Warning        string          `json:"warning,omitempty"`
	Map            *MapView        `json:"map,omitempty"`
}

// MapView is everything needed to show the subject property on a map
type MapView struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	EmbedURL  string  `json:"embed_url,omitempty"`
	Zoom      int     `json:"zoom"`
}

// ModelSummary describes the model currently serving predictions
type ModelSummary struct {
	MAE           float64   `json:"mae"`
	FormattedMAE  string    `json:"formatted_mae"`
	Rows          int       `json:"rows"`
	TrainRows     int       `json:"train_rows"`
	TestRows      int       `json:"test_rows"`
	Trees         int       `json:"trees"`
	Seed          int64     `json:"seed"`
	ReferenceYear int       `json:"reference_year"`
	Features      []string  `json:"features"`
	HasMap        bool      `json:"has_map"`
	Coverage      *Coverage `json:"coverage,omitempty"`
	TrainedAt     time.Time `json:"trained_at"`
}

// Coverage is the bounding box of the training coordinates
type Coverage struct {
	MinLatitude  float64 `json:"min_latitude"`
	MinLongitude float64 `json:"min_longitude"`
	MaxLatitude  float64 `json:"max_latitude"`
	MaxLongitude float64 `json:"max_longitude"`
}
