package features

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"avmboard/server/internal/dataset"
	"avmboard/server/internal/models"
)

// Feature column names, in model order
const (
	Bedrooms   = "bedrooms"
	Bathrooms  = "bathrooms"
	SqftLiving = "sqft_living"
	SqftLot    = "sqft_lot"
	Floors     = "floors"
	Zipcode    = "zipcode"
	Latitude   = "latitude"
	Longitude  = "longitude"
	Age        = "age"
)

// FullSchema is the feature order when the dataset carries coordinates
var FullSchema = []string{Bedrooms, Bathrooms, SqftLiving, SqftLot, Floors, Zipcode, Latitude, Longitude, Age}

// ErrUnknownZipcode is returned for a zipcode absent from the training data
var ErrUnknownZipcode = errors.New("zipcode not present in training data")

// ComputeAge derives a property's age from its construction year
func ComputeAge(referenceYear, yearBuilt int) int {
	return referenceYear - yearBuilt
}

// Builder turns raw rows and user input into fixed-order feature vectors.
// A Builder is immutable once created and safe for concurrent use.
type Builder struct {
	referenceYear int
	schema        []string
	vocabulary    []string
	zipIndex      map[string]int
}

// NewBuilder derives the zipcode vocabulary and schema from ds
func NewBuilder(ds *dataset.Dataset, referenceYear int) (*Builder, error) {
	if ds == nil || len(ds.Rows) == 0 {
		return nil, &dataset.DataQualityError{Reason: "dataset has no data rows"}
	}

	seen := make(map[string]struct{})
	for _, row := range ds.Rows {
		zip, err := NormalizeZipcode(row.Cells[dataset.ColZipcode])
		if err != nil {
			return nil, &dataset.DataQualityError{Row: row.Line, Column: dataset.ColZipcode, Reason: err.Error()}
		}
		seen[zip] = struct{}{}
	}

	vocab := make([]string, 0, len(seen))
	for zip := range seen {
		vocab = append(vocab, zip)
	}
	sortZipcodes(vocab)

	return newBuilder(vocab, ds.HasCoordinates, referenceYear), nil
}

func newBuilder(vocab []string, withCoordinates bool, referenceYear int) *Builder {
	schema := FullSchema
	if !withCoordinates {
		schema = []string{Bedrooms, Bathrooms, SqftLiving, SqftLot, Floors, Zipcode, Age}
	}
	index := make(map[string]int, len(vocab))
	for i, zip := range vocab {
		index[zip] = i
	}
	return &Builder{
		referenceYear: referenceYear,
		schema:        schema,
		vocabulary:    vocab,
		zipIndex:      index,
	}
}

// ReferenceYear is the year ages are computed against
func (b *Builder) ReferenceYear() int { return b.referenceYear }

// Schema returns the feature order used at fit time
func (b *Builder) Schema() []string {
	return append([]string(nil), b.schema...)
}

// Zipcodes returns the sorted training vocabulary
func (b *Builder) Zipcodes() []string {
	return append([]string(nil), b.vocabulary...)
}

// HasZipcode reports whether zip was observed in the training data
func (b *Builder) HasZipcode(zip string) bool {
	norm, err := NormalizeZipcode(zip)
	if err != nil {
		return false
	}
	_, ok := b.zipIndex[norm]
	return ok
}

// Age computes the age of a property built in yearBuilt
func (b *Builder) Age(yearBuilt int) int {
	return ComputeAge(b.referenceYear, yearBuilt)
}

// Record assembles a PropertyRecord from user input and coordinates
func (b *Builder) Record(in models.PropertyInput, loc models.GeocodeResult) models.PropertyRecord {
	zip, _ := NormalizeZipcode(in.Zipcode)
	return models.PropertyRecord{
		Bedrooms:   in.Bedrooms,
		Bathrooms:  in.Bathrooms,
		SqftLiving: in.SqftLiving,
		SqftLot:    in.SqftLot,
		Floors:     in.Floors,
		Zipcode:    zip,
		Latitude:   loc.Latitude,
		Longitude:  loc.Longitude,
		Age:        b.Age(in.YearBuilt),
	}
}

// Vector encodes a record in schema order
func (b *Builder) Vector(rec models.PropertyRecord) ([]float64, error) {
	zip, err := NormalizeZipcode(rec.Zipcode)
	if err != nil {
		return nil, err
	}
	code, ok := b.zipIndex[zip]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownZipcode, rec.Zipcode)
	}

	vec := make([]float64, 0, len(b.schema))
	for _, col := range b.schema {
		switch col {
		case Bedrooms:
			vec = append(vec, float64(rec.Bedrooms))
		case Bathrooms:
			vec = append(vec, float64(rec.Bathrooms))
		case SqftLiving:
			vec = append(vec, float64(rec.SqftLiving))
		case SqftLot:
			vec = append(vec, float64(rec.SqftLot))
		case Floors:
			vec = append(vec, float64(rec.Floors))
		case Zipcode:
			vec = append(vec, float64(code))
		case Latitude:
			vec = append(vec, rec.Latitude)
		case Longitude:
			vec = append(vec, rec.Longitude)
		case Age:
			vec = append(vec, float64(rec.Age))
		}
	}
	return vec, nil
}

// Build converts every dataset row into a feature vector and its price.
// The first malformed cell aborts the build.
func (b *Builder) Build(ds *dataset.Dataset) ([][]float64, []float64, error) {
	X := make([][]float64, 0, len(ds.Rows))
	y := make([]float64, 0, len(ds.Rows))

	for _, row := range ds.Rows {
		rec, price, err := b.rowRecord(row)
		if err != nil {
			return nil, nil, err
		}
		vec, err := b.Vector(rec)
		if err != nil {
			return nil, nil, &dataset.DataQualityError{Row: row.Line, Column: dataset.ColZipcode, Reason: err.Error()}
		}
		X = append(X, vec)
		y = append(y, price)
	}
	return X, y, nil
}

func (b *Builder) rowRecord(row models.TrainingRow) (models.PropertyRecord, float64, error) {
	var rec models.PropertyRecord
	p := rowParser{row: row}

	rec.Bedrooms = p.int(dataset.ColBedrooms)
	rec.Bathrooms = p.int(dataset.ColBathrooms)
	rec.SqftLiving = p.int(dataset.ColSqftLiving)
	rec.SqftLot = p.int(dataset.ColSqftLot)
	rec.Floors = p.int(dataset.ColFloors)
	rec.Age = b.Age(p.int(dataset.ColYearBuilt))
	if b.hasCoordinates() {
		rec.Latitude = p.float(dataset.ColLatitude)
		rec.Longitude = p.float(dataset.ColLongitude)
	}
	price := p.float(dataset.ColPrice)
	if p.err != nil {
		return rec, 0, p.err
	}

	zip, err := NormalizeZipcode(row.Cells[dataset.ColZipcode])
	if err != nil {
		return rec, 0, &dataset.DataQualityError{Row: row.Line, Column: dataset.ColZipcode, Reason: err.Error()}
	}
	rec.Zipcode = zip
	return rec, price, nil
}

func (b *Builder) hasCoordinates() bool {
	return len(b.schema) == len(FullSchema)
}

// rowParser records the first failure and ignores later reads
type rowParser struct {
	row models.TrainingRow
	err error
}

func (p *rowParser) float(col string) float64 {
	if p.err != nil {
		return 0
	}
	raw, ok := p.row.Cells[col]
	if !ok || raw == "" {
		p.err = &dataset.DataQualityError{Row: p.row.Line, Column: col, Reason: "missing value"}
		return 0
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		p.err = &dataset.DataQualityError{Row: p.row.Line, Column: col, Reason: fmt.Sprintf("non-numeric value %q", raw)}
		return 0
	}
	return v
}

// int accepts whole numbers written as floats ("3.0") and rounds
// fractional counts such as 2.25 bathrooms to the nearest integer.
func (p *rowParser) int(col string) int {
	return int(math.Round(p.float(col)))
}

// NormalizeZipcode canonicalizes a zipcode cell. Numeric codes written as
// floats ("98178.0") collapse to their integer spelling.
func NormalizeZipcode(raw string) (string, error) {
	zip := strings.TrimSpace(raw)
	if zip == "" {
		return "", errors.New("missing value")
	}
	if f, err := strconv.ParseFloat(zip, 64); err == nil {
		if f != math.Trunc(f) || math.IsInf(f, 0) {
			return "", fmt.Errorf("non-integer zipcode %q", raw)
		}
		return strconv.FormatInt(int64(f), 10), nil
	}
	return zip, nil
}

// sortZipcodes orders numerically when every code is numeric, otherwise
// lexically, so that the encoded index preserves geographic ordering.
func sortZipcodes(zips []string) {
	numeric := true
	values := make(map[string]int64, len(zips))
	for _, z := range zips {
		v, err := strconv.ParseInt(z, 10, 64)
		if err != nil {
			numeric = false
			break
		}
		values[z] = v
	}
	if numeric {
		sort.Slice(zips, func(i, j int) bool { return values[zips[i]] < values[zips[j]] })
		return
	}
	sort.Strings(zips)
}
