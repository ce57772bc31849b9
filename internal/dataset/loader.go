package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/xuri/excelize/v2"

	"avmboard/server/internal/models"
)

// Canonical column names
const (
	ColBedrooms   = "bedrooms"
	ColBathrooms  = "bathrooms"
	ColSqftLiving = "sqft_living"
	ColSqftLot    = "sqft_lot"
	ColFloors     = "floors"
	ColZipcode    = "zipcode"
	ColYearBuilt  = "year_built"
	ColPrice      = "price"
	ColLatitude   = "latitude"
	ColLongitude  = "longitude"
)

// columnAliases maps lower-cased header spellings to canonical names.
// It is the only place header spellings are interpreted.
var columnAliases = map[string]string{
	"bedrooms":    ColBedrooms,
	"bathrooms":   ColBathrooms,
	"sqft_living": ColSqftLiving,
	"sqft_lot":    ColSqftLot,
	"floors":      ColFloors,
	"zipcode":     ColZipcode,
	"zip_code":    ColZipcode,
	"zip":         ColZipcode,
	"year_built":  ColYearBuilt,
	"yr_built":    ColYearBuilt,
	"price":       ColPrice,
	"lat":         ColLatitude,
	"latitude":    ColLatitude,
	"lng":         ColLongitude,
	"lon":         ColLongitude,
	"long":        ColLongitude,
	"longitude":   ColLongitude,
}

// RequiredColumns must be present in every dataset
var RequiredColumns = []string{
	ColBedrooms, ColBathrooms, ColSqftLiving, ColSqftLot, ColFloors,
	ColZipcode, ColYearBuilt, ColPrice,
}

// DataQualityError reports a missing or malformed training column. Row is
// the 1-based data line (header excluded) or 0 for header-level problems.
type DataQualityError struct {
	Row    int
	Column string
	Reason string
}

func (e *DataQualityError) Error() string {
	if e.Row == 0 {
		return fmt.Sprintf("data quality: column %q: %s", e.Column, e.Reason)
	}
	return fmt.Sprintf("data quality: row %d, column %q: %s", e.Row, e.Column, e.Reason)
}

// Dataset is a normalized training table
type Dataset struct {
	Source         string
	Columns        []string
	Rows           []models.TrainingRow
	HasCoordinates bool
}

// NormalizeColumn maps a raw header to its canonical name. Unknown headers
// are returned lower-cased and trimmed, with ok set to false.
func NormalizeColumn(raw string) (string, bool) {
	key := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(raw, "\ufeff")))
	canonical, ok := columnAliases[key]
	if !ok {
		return key, false
	}
	return canonical, true
}

// Load reads a dataset from a .csv or .xlsx file
func Load(path string, logger *logrus.Logger) (*Dataset, error) {
	if logger == nil {
		logger = logrus.New()
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open dataset: %w", err)
	}
	defer f.Close()

	var ds *Dataset
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		ds, err = ReadXLSX(f)
	case ".csv", "":
		ds, err = ReadCSV(f)
	default:
		return nil, fmt.Errorf("unsupported dataset format: %s", filepath.Ext(path))
	}
	if err != nil {
		return nil, err
	}
	ds.Source = path

	logger.WithFields(logrus.Fields{
		"path":            path,
		"rows":            len(ds.Rows),
		"columns":         ds.Columns,
		"has_coordinates": ds.HasCoordinates,
	}).Info("Loaded training dataset")
	if !ds.HasCoordinates {
		logger.Warn("Dataset has no latitude/longitude pair, map rendering is disabled")
	}
	return ds, nil
}

// ReadCSV parses a CSV table with a header row
func ReadCSV(r io.Reader) (*Dataset, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	records, err := reader.ReadAll()
	if err != nil {
		var perr *csv.ParseError
		if errors.As(err, &perr) {
			return nil, &DataQualityError{Row: perr.Line - 1, Column: "", Reason: perr.Err.Error()}
		}
		return nil, fmt.Errorf("failed to read csv: %w", err)
	}
	return fromRecords(records)
}

// ReadXLSX parses the first sheet of a workbook with a header row
func ReadXLSX(r io.Reader) (*Dataset, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, &DataQualityError{Reason: "workbook has no sheets"}
	}
	records, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %s: %w", sheets[0], err)
	}
	return fromRecords(records)
}

func fromRecords(records [][]string) (*Dataset, error) {
	if len(records) == 0 {
		return nil, &DataQualityError{Reason: "dataset is empty"}
	}

	header := records[0]
	index := make(map[string]int)
	var columns []string
	for i, raw := range header {
		name, ok := NormalizeColumn(raw)
		if !ok {
			continue
		}
		if _, dup := index[name]; dup {
			return nil, &DataQualityError{Column: name, Reason: fmt.Sprintf("ambiguous header %q duplicates an earlier column", raw)}
		}
		index[name] = i
		columns = append(columns, name)
	}

	for _, col := range RequiredColumns {
		if _, ok := index[col]; !ok {
			return nil, &DataQualityError{Column: col, Reason: "missing column"}
		}
	}

	_, hasLat := index[ColLatitude]
	_, hasLon := index[ColLongitude]
	ds := &Dataset{
		Columns:        columns,
		HasCoordinates: hasLat && hasLon,
	}
	if !ds.HasCoordinates {
		// A lone coordinate column is useless without its partner
		delete(index, ColLatitude)
		delete(index, ColLongitude)
		ds.Columns = withoutCoordinates(columns)
	}

	for i, record := range records[1:] {
		if isBlank(record) {
			continue
		}
		cells := make(map[string]string, len(index))
		for name, col := range index {
			if col < len(record) {
				cells[name] = strings.TrimSpace(record[col])
			} else {
				cells[name] = ""
			}
		}
		ds.Rows = append(ds.Rows, models.TrainingRow{Line: i + 1, Cells: cells})
	}

	if len(ds.Rows) == 0 {
		return nil, &DataQualityError{Reason: "dataset has no data rows"}
	}
	return ds, nil
}

func withoutCoordinates(columns []string) []string {
	out := columns[:0:0]
	for _, c := range columns {
		if c != ColLatitude && c != ColLongitude {
			out = append(out, c)
		}
	}
	return out
}

func isBlank(record []string) bool {
	for _, v := range record {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
