package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
)

type Config struct {
	Server struct {
		Port string `env:"PORT" envDefault:"5250"`

		// Comma separated list of origins allowed by the CORS middleware
		AllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:"," envDefault:"*"`

		LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
	}

	Database struct {
		Path string `env:"DATABASE_PATH" envDefault:"database/avmboard.db"`
	}

	Model struct {
		DatasetPath string `env:"AVM_DATASET_PATH" envDefault:"data/house_data_with_location.csv"`

		// Year used to derive age from year_built. 0 means the calendar year at startup.
		ReferenceYear int `env:"AVM_REFERENCE_YEAR" envDefault:"2025"`

		Trees          int     `env:"AVM_TREES" envDefault:"100"`
		Seed           int64   `env:"AVM_SEED" envDefault:"42"`
		TestFraction   float64 `env:"AVM_TEST_FRACTION" envDefault:"0.2"`
		MinSamplesLeaf int     `env:"AVM_MIN_SAMPLES_LEAF" envDefault:"1"`

		// 0 grows trees until leaves are pure or MinSamplesLeaf stops them
		MaxDepth int `env:"AVM_MAX_DEPTH" envDefault:"0"`

		// Number of trees fit concurrently at startup
		FitWorkers int `env:"AVM_FIT_WORKERS" envDefault:"4"`

		// Refit on the whole dataset after the hold-out evaluation
		RefitFull bool `env:"AVM_REFIT_FULL" envDefault:"true"`

		FormConfigPath string `env:"AVM_FORM_CONFIG" envDefault:"config/form.json"`
	}

	Geocoder struct {
		// google or nominatim
		Provider string        `env:"GEOCODER_PROVIDER" envDefault:"google"`
		Timeout  time.Duration `env:"GEOCODER_TIMEOUT" envDefault:"10s"`

		GoogleAPIKey  string `env:"GOOGLE_MAPS_API_KEY"`
		GoogleBaseURL string `env:"GOOGLE_GEOCODE_URL" envDefault:"https://maps.googleapis.com"`

		NominatimBaseURL string `env:"NOMINATIM_URL" envDefault:"https://nominatim.openstreetmap.org"`
		UserAgent        string `env:"GEOCODER_USER_AGENT" envDefault:"AVMBoard Valuation Service/1.0"`
	}

	Map struct {
		// Browser-visible key for the Maps Embed API. Never the geocoding key.
		// Without it maps are rendered with OpenStreetMap.
		EmbedAPIKey string `env:"GOOGLE_MAPS_EMBED_KEY"`
		ZoomLevel   int    `env:"MAP_ZOOM_LEVEL" envDefault:"15"`
	}

	Registration struct {
		Enabled bool   `env:"REGISTRATION_ENABLED" envDefault:"false"`
		CSVPath string `env:"REGISTRATION_CSV_PATH" envDefault:"data/registrations.csv"`

		// gcs, local or none
		Uploader    string `env:"REGISTRATION_UPLOADER" envDefault:"none"`
		Destination string `env:"REGISTRATION_DESTINATION" envDefault:"registrations/registrations.csv"`

		GCSBucket      string `env:"GCS_BUCKET"`
		GCSAccessToken string `env:"GCS_ACCESS_TOKEN"`
		GCSBaseURL     string `env:"GCS_UPLOAD_URL" envDefault:"https://storage.googleapis.com"`

		LocalDir string `env:"REGISTRATION_LOCAL_DIR" envDefault:"uploads"`
	}
}

// LoadConfig reads an optional .env file and then the process environment.
// Variables already set in the environment take precedence over the file.
func LoadConfig(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", f, err)
		}
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks settings that env tags alone cannot express.
func (c *Config) Validate() error {
	if c.Model.Trees <= 0 {
		return fmt.Errorf("AVM_TREES must be positive, got %d", c.Model.Trees)
	}
	if c.Model.TestFraction <= 0 || c.Model.TestFraction >= 1 {
		return fmt.Errorf("AVM_TEST_FRACTION must be in (0, 1), got %v", c.Model.TestFraction)
	}
	if c.Model.MinSamplesLeaf < 1 {
		return fmt.Errorf("AVM_MIN_SAMPLES_LEAF must be at least 1, got %d", c.Model.MinSamplesLeaf)
	}

	switch c.Geocoder.Provider {
	case "google":
		if c.Geocoder.GoogleAPIKey == "" {
			return errors.New("GOOGLE_MAPS_API_KEY is required for the google geocoder")
		}
	case "nominatim":
	default:
		return fmt.Errorf("unknown geocoder provider: %s", c.Geocoder.Provider)
	}

	switch c.Registration.Uploader {
	case "none", "local":
	case "gcs":
		if c.Registration.GCSBucket == "" || c.Registration.GCSAccessToken == "" {
			return errors.New("GCS_BUCKET and GCS_ACCESS_TOKEN are required for the gcs uploader")
		}
	default:
		return fmt.Errorf("unknown registration uploader: %s", c.Registration.Uploader)
	}
	return nil
}

// EffectiveReferenceYear resolves the configured reference year against now.
func (c *Config) EffectiveReferenceYear(now time.Time) int {
	if c.Model.ReferenceYear > 0 {
		return c.Model.ReferenceYear
	}
	return now.Year()
}
