package geocoding

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"

	"avmboard/server/internal/models"
)

const nominatimProvider = "nominatim"

type nominatimResponse []struct {
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	DisplayName string `json:"display_name"`
}

// NominatimGeocoder queries an OpenStreetMap Nominatim instance
type NominatimGeocoder struct {
	client *resty.Client
	logger *logrus.Logger

	// Nominatim's usage policy allows one request per second
	interval time.Duration
	mu       sync.Mutex
	last     time.Time
}

func NewNominatimGeocoder(opts Options, logger *logrus.Logger) *NominatimGeocoder {
	client := resty.New().
		SetBaseURL(strings.TrimRight(opts.BaseURL, "/")).
		SetTimeout(opts.Timeout).
		SetHeader("User-Agent", opts.UserAgent).
		SetHeader("Accept-Language", "en-US,en;q=0.9")

	return &NominatimGeocoder{
		client:   client,
		logger:   logger,
		interval: time.Second,
	}
}

func (g *NominatimGeocoder) Name() string { return nominatimProvider }

func (g *NominatimGeocoder) wait(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if delay := g.interval - time.Since(g.last); delay > 0 {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}
	g.last = time.Now()
	return nil
}

func (g *NominatimGeocoder) Geocode(ctx context.Context, address string) (models.GeocodeResult, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return models.GeocodeResult{}, ErrNoResults
	}

	g.logger.WithField("address", address).Info("Geocoding address with Nominatim")

	if err := g.wait(ctx); err != nil {
		return models.GeocodeResult{}, &GeocodeError{Provider: nominatimProvider, Address: address, Err: err}
	}

	var result nominatimResponse
	resp, err := g.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"q":      address,
			"format": "json",
			"limit":  "1",
		}).
		SetResult(&result).
		Get("/search")
	if err != nil {
		g.logger.WithError(err).WithField("address", address).Error("Geocoding request failed")
		return models.GeocodeResult{}, &GeocodeError{Provider: nominatimProvider, Address: address, Err: err}
	}
	if resp.IsError() {
		g.logger.WithFields(logrus.Fields{
			"address":     address,
			"status_code": resp.StatusCode(),
		}).Error("Geocoding API returned an error status")
		return models.GeocodeResult{}, &GeocodeError{
			Provider: nominatimProvider,
			Address:  address,
			Err:      fmt.Errorf("unexpected status %d", resp.StatusCode()),
		}
	}

	if len(result) == 0 {
		g.logger.WithField("address", address).Warn("No results found")
		return models.GeocodeResult{}, ErrNoResults
	}

	lat, latErr := strconv.ParseFloat(result[0].Lat, 64)
	lon, lonErr := strconv.ParseFloat(result[0].Lon, 64)
	if latErr != nil || lonErr != nil || !validCoordinate(lat, lon) {
		g.logger.WithField("address", address).Error("Failed to parse coordinates")
		return models.GeocodeResult{}, &GeocodeError{
			Provider: nominatimProvider,
			Address:  address,
			Err:      fmt.Errorf("invalid coordinates %q, %q", result[0].Lat, result[0].Lon),
		}
	}

	g.logger.WithFields(logrus.Fields{
		"address":   address,
		"latitude":  lat,
		"longitude": lon,
		"source":    nominatimProvider,
	}).Info("Successfully geocoded address")

	return models.GeocodeResult{
		Latitude:         lat,
		Longitude:        lon,
		FormattedAddress: result[0].DisplayName,
		Provider:         nominatimProvider,
	}, nil
}
