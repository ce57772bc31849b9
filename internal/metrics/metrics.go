package metrics

import (
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector exposes valuation service metrics
type Collector struct {
	gatherer prometheus.Gatherer

	Valuations        *prometheus.CounterVec
	GeocodeFailures   *prometheus.CounterVec
	PredictionSeconds prometheus.Histogram
	GeocodeSeconds    prometheus.Histogram
	ModelMAE          prometheus.Gauge
	TrainingRows      prometheus.Gauge
	Registrations     *prometheus.CounterVec
}

// NewCollector registers the service metrics against reg, or the default
// registerer when reg is nil. Registering twice returns the existing collectors.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	c := &Collector{gatherer: gatherer}
	var err error

	if c.Valuations, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "avm_valuations_total",
		Help: "Valuation interactions by final state.",
	}, []string{"state"})); err != nil {
		return nil, err
	}
	if c.GeocodeFailures, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "avm_geocode_failures_total",
		Help: "Geocoding failures by reason (error or not_found).",
	}, []string{"reason"})); err != nil {
		return nil, err
	}
	if c.PredictionSeconds, err = register(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "avm_prediction_duration_seconds",
		Help:    "Duration of single-row model predictions.",
		Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
	})); err != nil {
		return nil, err
	}
	if c.GeocodeSeconds, err = register(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "avm_geocode_duration_seconds",
		Help:    "Duration of geocoding calls.",
		Buckets: prometheus.DefBuckets,
	})); err != nil {
		return nil, err
	}
	if c.ModelMAE, err = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "avm_model_mae",
		Help: "Mean absolute error of the serving model on the hold-out split.",
	})); err != nil {
		return nil, err
	}
	if c.TrainingRows, err = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "avm_training_rows",
		Help: "Number of rows the serving model was trained on.",
	})); err != nil {
		return nil, err
	}
	if c.Registrations, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "avm_registrations_total",
		Help: "Visitor registrations by upload outcome.",
	}, []string{"upload"})); err != nil {
		return nil, err
	}

	return c, nil
}

// Gatherer returns the gatherer backing the collector's registry
func (c *Collector) Gatherer() prometheus.Gatherer {
	if c == nil {
		return nil
	}
	return c.gatherer
}

func (c *Collector) ObserveValuation(state string) {
	if c == nil {
		return
	}
	c.Valuations.WithLabelValues(state).Inc()
}

func (c *Collector) ObserveGeocodeFailure(reason string) {
	if c == nil {
		return
	}
	c.GeocodeFailures.WithLabelValues(reason).Inc()
}

func (c *Collector) ObservePrediction(d time.Duration) {
	if c == nil {
		return
	}
	c.PredictionSeconds.Observe(d.Seconds())
}

func (c *Collector) ObserveGeocode(d time.Duration) {
	if c == nil {
		return
	}
	c.GeocodeSeconds.Observe(d.Seconds())
}

// SetModel records the serving model's quality signal
func (c *Collector) SetModel(mae float64, rows int) {
	if c == nil {
		return
	}
	c.ModelMAE.Set(mae)
	c.TrainingRows.Set(float64(rows))
}

func (c *Collector) ObserveRegistration(uploaded bool) {
	if c == nil {
		return
	}
	outcome := "ok"
	if !uploaded {
		outcome = "failed"
	}
	c.Registrations.WithLabelValues(outcome).Inc()
}

func register[T prometheus.Collector](reg prometheus.Registerer, collector T) (T, error) {
	if err := reg.Register(collector); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing, nil
			}
			var zero T
			return zero, fmt.Errorf("collector already registered with incompatible type: %w", err)
		}
		var zero T
		return zero, err
	}
	return collector, nil
}
