package geocoding

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"

	"avmboard/server/internal/models"
)

const googleProvider = "google"

type googleResponse struct {
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message"`
	Results      []struct {
		FormattedAddress string `json:"formatted_address"`
		Geometry         struct {
			Location struct {
				Lat float64 `json:"lat"`
				Lng float64 `json:"lng"`
			} `json:"location"`
		} `json:"geometry"`
	} `json:"results"`
}

// GoogleGeocoder calls the Google Maps Geocoding API
type GoogleGeocoder struct {
	client *resty.Client
	apiKey string
	logger *logrus.Logger
}

func NewGoogleGeocoder(opts Options, logger *logrus.Logger) *GoogleGeocoder {
	client := resty.New().
		SetBaseURL(strings.TrimRight(opts.BaseURL, "/")).
		SetTimeout(opts.Timeout).
		SetHeader("Accept", "application/json")

	return &GoogleGeocoder{
		client: client,
		apiKey: opts.APIKey,
		logger: logger,
	}
}

func (g *GoogleGeocoder) Name() string { return googleProvider }

// Geocode returns the first result's location
func (g *GoogleGeocoder) Geocode(ctx context.Context, address string) (models.GeocodeResult, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return models.GeocodeResult{}, ErrNoResults
	}

	g.logger.WithField("address", address).Info("Geocoding address with Google")

	var result googleResponse
	resp, err := g.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"address": address,
			"key":     g.apiKey,
		}).
		SetResult(&result).
		Get("/maps/api/geocode/json")
	if err != nil {
		err = redact(err, g.apiKey)
		g.logger.WithError(err).WithField("address", address).Error("Geocoding request failed")
		return models.GeocodeResult{}, &GeocodeError{Provider: googleProvider, Address: address, Err: err}
	}
	if resp.IsError() {
		g.logger.WithFields(logrus.Fields{
			"address":     address,
			"status_code": resp.StatusCode(),
		}).Error("Geocoding API returned an error status")
		return models.GeocodeResult{}, &GeocodeError{
			Provider: googleProvider,
			Address:  address,
			Err:      fmt.Errorf("unexpected status %d", resp.StatusCode()),
		}
	}

	switch result.Status {
	case "OK":
	case "ZERO_RESULTS":
		g.logger.WithField("address", address).Warn("No results found")
		return models.GeocodeResult{}, ErrNoResults
	default:
		g.logger.WithFields(logrus.Fields{
			"address": address,
			"status":  result.Status,
			"message": result.ErrorMessage,
		}).Error("Geocoding API rejected the request")
		return models.GeocodeResult{}, &GeocodeError{
			Provider: googleProvider,
			Address:  address,
			Err:      fmt.Errorf("api status %s: %s", result.Status, result.ErrorMessage),
		}
	}

	if len(result.Results) == 0 {
		g.logger.WithField("address", address).Warn("No results found")
		return models.GeocodeResult{}, ErrNoResults
	}

	loc := result.Results[0].Geometry.Location
	if !validCoordinate(loc.Lat, loc.Lng) {
		return models.GeocodeResult{}, &GeocodeError{
			Provider: googleProvider,
			Address:  address,
			Err:      fmt.Errorf("coordinate out of range: %f, %f", loc.Lat, loc.Lng),
		}
	}

	g.logger.WithFields(logrus.Fields{
		"address":   address,
		"latitude":  loc.Lat,
		"longitude": loc.Lng,
		"source":    googleProvider,
	}).Info("Successfully geocoded address")

	return models.GeocodeResult{
		Latitude:         loc.Lat,
		Longitude:        loc.Lng,
		FormattedAddress: result.Results[0].FormattedAddress,
		Provider:         googleProvider,
	}, nil
}
