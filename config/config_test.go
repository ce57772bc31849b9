package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noEnvFile(t *testing.T) string {
	return filepath.Join(t.TempDir(), "missing.env")
}

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("GOOGLE_MAPS_API_KEY", "test-key")

	cfg, err := LoadConfig(noEnvFile(t))
	require.NoError(t, err)

	assert.Equal(t, "5250", cfg.Server.Port)
	assert.Equal(t, 2025, cfg.Model.ReferenceYear)
	assert.Equal(t, 100, cfg.Model.Trees)
	assert.Equal(t, int64(42), cfg.Model.Seed)
	assert.Equal(t, 0.2, cfg.Model.TestFraction)
	assert.True(t, cfg.Model.RefitFull)
	assert.Equal(t, "google", cfg.Geocoder.Provider)
	assert.Equal(t, 10*time.Second, cfg.Geocoder.Timeout)
	assert.False(t, cfg.Registration.Enabled)
	assert.Equal(t, []string{"*"}, cfg.Server.AllowedOrigins)
}

func TestLoadConfig_EnvFile(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("GEOCODER_PROVIDER=nominatim\nAVM_TREES=25\n"), 0644))
	t.Cleanup(func() {
		os.Unsetenv("GEOCODER_PROVIDER")
		os.Unsetenv("AVM_TREES")
	})

	cfg, err := LoadConfig(envFile)
	require.NoError(t, err)

	assert.Equal(t, "nominatim", cfg.Geocoder.Provider)
	assert.Equal(t, 25, cfg.Model.Trees)
}

func TestLoadConfig_EnvironmentWinsOverFile(t *testing.T) {
	envFile := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("GEOCODER_PROVIDER=nominatim\nAVM_SEED=7\n"), 0644))
	t.Setenv("GEOCODER_PROVIDER", "nominatim")
	t.Setenv("AVM_SEED", "99")

	cfg, err := LoadConfig(envFile)
	require.NoError(t, err)
	assert.Equal(t, int64(99), cfg.Model.Seed)
}

func TestLoadConfig_Validation(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{
			name: "google without key",
			env:  map[string]string{"GEOCODER_PROVIDER": "google", "GOOGLE_MAPS_API_KEY": ""},
		},
		{
			name: "unknown provider",
			env:  map[string]string{"GEOCODER_PROVIDER": "bing"},
		},
		{
			name: "zero trees",
			env:  map[string]string{"GEOCODER_PROVIDER": "nominatim", "AVM_TREES": "0"},
		},
		{
			name: "test fraction out of range",
			env:  map[string]string{"GEOCODER_PROVIDER": "nominatim", "AVM_TEST_FRACTION": "1.5"},
		},
		{
			name: "gcs without bucket",
			env:  map[string]string{"GEOCODER_PROVIDER": "nominatim", "REGISTRATION_UPLOADER": "gcs"},
		},
		{
			name: "unknown uploader",
			env:  map[string]string{"GEOCODER_PROVIDER": "nominatim", "REGISTRATION_UPLOADER": "ftp"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := LoadConfig(noEnvFile(t))
			assert.Error(t, err)
		})
	}
}

func TestEffectiveReferenceYear(t *testing.T) {
	cfg := &Config{}
	now := time.Date(2031, 6, 1, 0, 0, 0, 0, time.UTC)

	cfg.Model.ReferenceYear = 2025
	assert.Equal(t, 2025, cfg.EffectiveReferenceYear(now))

	cfg.Model.ReferenceYear = 0
	assert.Equal(t, 2031, cfg.EffectiveReferenceYear(now))
}
