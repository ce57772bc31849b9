package models

// PropertyRecord is a property in the shape the valuation model consumes.
// Age is derived from year built and the service's reference year.
type PropertyRecord struct {
	Bedrooms   int     `json:"bedrooms"`
	Bathrooms  int     `json:"bathrooms"`
	SqftLiving int     `json:"sqft_living"`
	SqftLot    int     `json:"sqft_lot"`
	Floors     int     `json:"floors"`
	Zipcode    string  `json:"zipcode"`
	Latitude   float64 `json:"latitude"`
	Longitude  float64 `json:"longitude"`
	Age        int     `json:"age"`
}

// PropertyInput is what a user enters on the valuation form. Numeric
// bounds come from the form configuration, where zero can be valid, so
// they are checked by the valuer rather than by binding.
type PropertyInput struct {
	Bedrooms   int    `json:"bedrooms" form:"bedrooms"`
	Bathrooms  int    `json:"bathrooms" form:"bathrooms"`
	SqftLiving int    `json:"sqft_living" form:"sqft_living"`
	SqftLot    int    `json:"sqft_lot" form:"sqft_lot"`
	Floors     int    `json:"floors" form:"floors"`
	Zipcode    string `json:"zipcode" form:"zipcode" binding:"required"`
	YearBuilt  int    `json:"year_built" form:"year_built"`
	Address    string `json:"address" form:"address"`
}

// TrainingRow is one dataset row after column normalization. Values are
// kept as raw cell text so that malformed cells can be reported with
// their row and column instead of being silently coerced.
type TrainingRow struct {
	Line  int
	Cells map[string]string
}

// GeocodeResult is a resolved coordinate for a free-text address
type GeocodeResult struct {
	Latitude         float64 `json:"latitude"`
	Longitude        float64 `json:"longitude"`
	FormattedAddress string  `json:"formatted_address,omitempty"`
	Provider         string  `json:"provider"`
}
