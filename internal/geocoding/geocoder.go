package geocoding

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"avmboard/server/internal/models"
)

// ErrNoResults means the provider answered but knows no such address
var ErrNoResults = errors.New("address not found")

// GeocodeError is a network or provider failure. It is recoverable: the
// caller reports it and abandons the current interaction only.
type GeocodeError struct {
	Provider string
	Address  string
	Err      error
}

func (e *GeocodeError) Error() string {
	return fmt.Sprintf("%s geocoding failed for %q: %v", e.Provider, e.Address, e.Err)
}

func (e *GeocodeError) Unwrap() error { return e.Err }

// Geocoder resolves a free-text address to a coordinate
type Geocoder interface {
	Geocode(ctx context.Context, address string) (models.GeocodeResult, error)
	Name() string
}

// Options shared by the HTTP providers
type Options struct {
	BaseURL   string
	APIKey    string
	Timeout   time.Duration
	UserAgent string
}

// New builds the provider named by provider
func New(provider string, opts Options, logger *logrus.Logger) (Geocoder, error) {
	if logger == nil {
		logger = logrus.New()
	}
	switch strings.ToLower(provider) {
	case "google":
		if opts.APIKey == "" {
			return nil, errors.New("google geocoder requires an API key")
		}
		return NewGoogleGeocoder(opts, logger), nil
	case "nominatim":
		return NewNominatimGeocoder(opts, logger), nil
	default:
		return nil, fmt.Errorf("unknown geocoder provider: %s", provider)
	}
}

// validCoordinate rejects values outside the WGS84 range
func validCoordinate(lat, lon float64) bool {
	return lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180
}

// redact strips a secret from an error message; transport errors embed
// the request URL, which carries the API key.
func redact(err error, secret string) error {
	if err == nil || secret == "" {
		return err
	}
	msg := err.Error()
	if !strings.Contains(msg, secret) {
		return err
	}
	return errors.New(strings.ReplaceAll(msg, secret, "REDACTED"))
}
