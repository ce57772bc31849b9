package models

// SliderRange describes a bounded numeric input on the valuation form
type SliderRange struct {
	Min     int `json:"min"`
	Max     int `json:"max"`
	Default int `json:"default"`
}

// Contains reports whether v lies within the inclusive range
func (r SliderRange) Contains(v int) bool {
	return v >= r.Min && v <= r.Max
}

// FormConfig holds the bounds of every numeric form input
type FormConfig struct {
	Bedrooms       SliderRange `json:"bedrooms"`
	Bathrooms      SliderRange `json:"bathrooms"`
	SqftLiving     SliderRange `json:"sqft_living"`
	SqftLot        SliderRange `json:"sqft_lot"`
	Floors         SliderRange `json:"floors"`
	YearBuilt      SliderRange `json:"year_built"`
	DefaultAddress string      `json:"default_address"`
}

// FormSchema is what the presentation layer renders: bounds plus the
// zipcode options observed in the training data
type FormSchema struct {
	FormConfig
	Zipcodes []string `json:"zipcodes"`
}
