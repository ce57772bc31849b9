package inference

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"avmboard/server/internal/features"
	"avmboard/server/internal/geocoding"
	"avmboard/server/internal/geometry"
	"avmboard/server/internal/metrics"
	"avmboard/server/internal/models"
)

const (
	warnNoAddress     = "Enter a valid address to generate prediction and map."
	warnNotFound      = "Address not found. Please check the input."
	warnGeocodeFailed = "Geocoding error: the address could not be resolved right now."
	warnOutOfCoverage = "The property lies outside the area covered by the training data; the estimate may be unreliable."
)

// Predictor is a fitted model that scores one feature vector
type Predictor interface {
	PredictOne(x []float64) (float64, error)
}

// InputError rejects a form value before any external call is made
type InputError struct {
	Field  string
	Reason string
}

func (e *InputError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Adapter runs one valuation interaction: geocode the address, assemble
// the feature vector in fit-time order and score it. It holds no
// per-interaction state and is safe for concurrent use.
type Adapter struct {
	builder  *features.Builder
	model    Predictor
	geocoder geocoding.Geocoder
	maps     *geometry.MapManager
	form     models.FormConfig
	metrics  *metrics.Collector
	logger   *logrus.Logger
}

func NewAdapter(
	builder *features.Builder,
	model Predictor,
	geocoder geocoding.Geocoder,
	maps *geometry.MapManager,
	form models.FormConfig,
	collector *metrics.Collector,
	logger *logrus.Logger,
) *Adapter {
	if logger == nil {
		logger = logrus.New()
	}
	return &Adapter{
		builder:  builder,
		model:    model,
		geocoder: geocoder,
		maps:     maps,
		form:     form,
		metrics:  collector,
		logger:   logger,
	}
}

// Validate checks the input against the form bounds and the zipcode vocabulary
func (a *Adapter) Validate(in models.PropertyInput) error {
	checks := []struct {
		field string
		value int
		r     models.SliderRange
	}{
		{"bedrooms", in.Bedrooms, a.form.Bedrooms},
		{"bathrooms", in.Bathrooms, a.form.Bathrooms},
		{"sqft_living", in.SqftLiving, a.form.SqftLiving},
		{"sqft_lot", in.SqftLot, a.form.SqftLot},
		{"floors", in.Floors, a.form.Floors},
		{"year_built", in.YearBuilt, a.form.YearBuilt},
	}
	for _, c := range checks {
		if !c.r.Contains(c.value) {
			return &InputError{Field: c.field, Reason: fmt.Sprintf("%d is outside [%d, %d]", c.value, c.r.Min, c.r.Max)}
		}
	}
	if in.YearBuilt > a.builder.ReferenceYear() {
		return &InputError{Field: "year_built", Reason: fmt.Sprintf("%d is after the reference year %d", in.YearBuilt, a.builder.ReferenceYear())}
	}
	if !a.builder.HasZipcode(in.Zipcode) {
		return &InputError{Field: "zipcode", Reason: features.ErrUnknownZipcode.Error()}
	}
	return nil
}

// Value runs the interaction to a terminal state. The returned error is
// non-nil only for invalid input or an internal model failure; geocoding
// problems end in GEOCODE_FAILED with a warning instead.
func (a *Adapter) Value(ctx context.Context, in models.PropertyInput) (models.Valuation, error) {
	if err := a.Validate(in); err != nil {
		return models.Valuation{}, err
	}

	v := models.Valuation{State: models.StateAwaitingAddress}
	address := strings.TrimSpace(in.Address)
	if address == "" {
		v.Warning = warnNoAddress
		a.finish(v)
		return v, nil
	}

	a.transition(&v, models.StateGeocoding)
	start := time.Now()
	loc, err := a.geocoder.Geocode(ctx, address)
	a.metrics.ObserveGeocode(time.Since(start))
	if err != nil {
		a.transition(&v, models.StateGeocodeFailed)
		if errors.Is(err, geocoding.ErrNoResults) {
			v.Warning = warnNotFound
			a.metrics.ObserveGeocodeFailure("not_found")
		} else {
			v.Warning = warnGeocodeFailed
			a.metrics.ObserveGeocodeFailure("error")
		}
		a.logger.WithError(err).WithField("address", address).Warn("Valuation stopped, address could not be geocoded")
		a.finish(v)
		return v, nil
	}

	a.transition(&v, models.StateGeocoded)
	v.Location = &loc

	rec := a.builder.Record(in, loc)
	vec, err := a.builder.Vector(rec)
	if err != nil {
		return models.Valuation{}, fmt.Errorf("failed to build feature vector: %w", err)
	}

	start = time.Now()
	price, err := a.model.PredictOne(vec)
	a.metrics.ObservePrediction(time.Since(start))
	if err != nil {
		return models.Valuation{}, fmt.Errorf("failed to predict: %w", err)
	}

	a.transition(&v, models.StatePredicted)
	v.Property = &rec
	v.PredictedPrice = &price
	v.FormattedPrice = FormatCurrency(price)
	v.Map = a.maps.View(loc)
	if !a.maps.Covers(loc.Latitude, loc.Longitude) {
		v.Warning = warnOutOfCoverage
		a.logger.WithFields(logrus.Fields{
			"latitude":        loc.Latitude,
			"longitude":       loc.Longitude,
			"distance_meters": a.maps.DistanceToCoverage(loc.Latitude, loc.Longitude),
		}).Warn("Valuation requested outside dataset coverage")
	}

	a.logger.WithFields(logrus.Fields{
		"address":   address,
		"zipcode":   rec.Zipcode,
		"latitude":  loc.Latitude,
		"longitude": loc.Longitude,
		"price":     price,
	}).Info("Predicted property price")

	a.finish(v)
	return v, nil
}

func (a *Adapter) transition(v *models.Valuation, next models.ValuationState) {
	a.logger.WithFields(logrus.Fields{
		"from": v.State,
		"to":   next,
	}).Debug("Valuation state transition")
	v.State = next
}

func (a *Adapter) finish(v models.Valuation) {
	a.metrics.ObserveValuation(string(v.State))
}
