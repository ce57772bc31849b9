package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"avmboard/server/internal/models"
)

var (
	formConfig *models.FormConfig
	formLock   sync.RWMutex
)

// DefaultFormConfig returns the slider bounds used when no form file is present
func DefaultFormConfig() models.FormConfig {
	return models.FormConfig{
		Bedrooms:       models.SliderRange{Min: 1, Max: 10, Default: 3},
		Bathrooms:      models.SliderRange{Min: 1, Max: 5, Default: 2},
		SqftLiving:     models.SliderRange{Min: 300, Max: 10000, Default: 1800},
		SqftLot:        models.SliderRange{Min: 500, Max: 20000, Default: 5000},
		Floors:         models.SliderRange{Min: 1, Max: 3, Default: 1},
		YearBuilt:      models.SliderRange{Min: 1900, Max: 2025, Default: 2000},
		DefaultAddress: "1600 Amphitheatre Parkway, Mountain View, CA",
	}
}

// LoadFormConfig loads the form bounds from path. A missing file keeps the defaults.
func LoadFormConfig(path string) error {
	formLock.Lock()
	defer formLock.Unlock()

	cfg := DefaultFormConfig()

	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to get absolute path: %v", err)
	}

	data, err := os.ReadFile(absPath)
	if errors.Is(err, os.ErrNotExist) {
		formConfig = &cfg
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read form config: %v", err)
	}

	// Fields absent from the file keep their defaults
	if err := json.Unmarshal(data, &cfg); err != nil {
		return fmt.Errorf("failed to parse form config: %v", err)
	}
	if err := validateForm(cfg); err != nil {
		return err
	}

	formConfig = &cfg
	return nil
}

// SaveFormConfig writes the current form bounds to path
func SaveFormConfig(path string) error {
	formLock.RLock()
	defer formLock.RUnlock()

	if formConfig == nil {
		return fmt.Errorf("no form configuration loaded")
	}

	data, err := json.MarshalIndent(formConfig, "", "    ")
	if err != nil {
		return fmt.Errorf("failed to marshal form config: %v", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %v", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write form config: %v", err)
	}
	return nil
}

// GetFormConfig returns a copy of the loaded form bounds, or the defaults
func GetFormConfig() models.FormConfig {
	formLock.RLock()
	defer formLock.RUnlock()

	if formConfig == nil {
		return DefaultFormConfig()
	}
	return *formConfig
}

func validateForm(cfg models.FormConfig) error {
	ranges := map[string]models.SliderRange{
		"bedrooms":    cfg.Bedrooms,
		"bathrooms":   cfg.Bathrooms,
		"sqft_living": cfg.SqftLiving,
		"sqft_lot":    cfg.SqftLot,
		"floors":      cfg.Floors,
		"year_built":  cfg.YearBuilt,
	}
	for name, r := range ranges {
		if r.Min > r.Max {
			return fmt.Errorf("invalid range for %s: min %d > max %d", name, r.Min, r.Max)
		}
		if !r.Contains(r.Default) {
			return fmt.Errorf("default %d for %s is outside [%d, %d]", r.Default, name, r.Min, r.Max)
		}
	}
	return nil
}
