package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"avmboard/server/internal/models"
)

func TestLoadFormConfig(t *testing.T) {
	tests := []struct {
		name        string
		content     *string
		expected    func() models.FormConfig
		expectError bool
	}{
		{
			name:     "Missing file keeps defaults",
			content:  nil,
			expected: DefaultFormConfig,
		},
		{
			name:    "Partial override",
			content: strPtr(`{"bedrooms": {"min": 0, "max": 6, "default": 2}}`),
			expected: func() models.FormConfig {
				cfg := DefaultFormConfig()
				cfg.Bedrooms = models.SliderRange{Min: 0, Max: 6, Default: 2}
				return cfg
			},
		},
		{
			name:    "Custom default address",
			content: strPtr(`{"default_address": "1 Main St, Springfield"}`),
			expected: func() models.FormConfig {
				cfg := DefaultFormConfig()
				cfg.DefaultAddress = "1 Main St, Springfield"
				return cfg
			},
		},
		{
			name:        "Inverted range",
			content:     strPtr(`{"floors": {"min": 3, "max": 1, "default": 2}}`),
			expectError: true,
		},
		{
			name:        "Default outside range",
			content:     strPtr(`{"year_built": {"min": 1900, "max": 2025, "default": 1800}}`),
			expectError: true,
		},
		{
			name:        "Malformed JSON",
			content:     strPtr(`{"bedrooms":`),
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "form.json")
			if tt.content != nil {
				require.NoError(t, os.WriteFile(path, []byte(*tt.content), 0644))
			}

			err := LoadFormConfig(path)
			if tt.expectError {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected(), GetFormConfig())
		})
	}
}

func TestSaveFormConfig_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "form.json")
	require.NoError(t, os.WriteFile(src, []byte(`{"sqft_lot":{"min":1000,"max":50000,"default":7500}}`), 0644))
	require.NoError(t, LoadFormConfig(src))

	expected := DefaultFormConfig()
	expected.SqftLot = models.SliderRange{Min: 1000, Max: 50000, Default: 7500}
	require.Equal(t, expected, GetFormConfig())

	saved := filepath.Join(dir, "nested", "form.json")
	require.NoError(t, SaveFormConfig(saved))

	// Reset to defaults, then read back what was written
	require.NoError(t, LoadFormConfig(filepath.Join(dir, "missing.json")))
	require.Equal(t, DefaultFormConfig(), GetFormConfig())
	require.NoError(t, LoadFormConfig(saved))
	assert.Equal(t, expected, GetFormConfig())
}

func TestValidateForm(t *testing.T) {
	assert.NoError(t, validateForm(DefaultFormConfig()))

	cfg := DefaultFormConfig()
	cfg.Bathrooms.Default = 9
	assert.Error(t, validateForm(cfg))

	cfg = DefaultFormConfig()
	cfg.Bedrooms = models.SliderRange{Min: 0, Max: 10, Default: 0}
	assert.NoError(t, validateForm(cfg), "a zero lower bound is a valid slider range")
}

func TestDefaultFormConfig(t *testing.T) {
	cfg := DefaultFormConfig()

	assert.Equal(t, models.SliderRange{Min: 1, Max: 10, Default: 3}, cfg.Bedrooms)
	assert.Equal(t, models.SliderRange{Min: 1900, Max: 2025, Default: 2000}, cfg.YearBuilt)
	assert.Equal(t, "1600 Amphitheatre Parkway, Mountain View, CA", cfg.DefaultAddress)
	assert.NoError(t, validateForm(cfg))
}

func strPtr(s string) *string {
	return &s
}
