package geometry

import (
	"fmt"
	"net/url"
	"strconv"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"github.com/paulmach/orb/geojson"
	"github.com/sirupsen/logrus"

	"avmboard/server/internal/dataset"
	"avmboard/server/internal/models"
)

const googleEmbedURL = "https://www.google.com/maps/embed/v1/place"
const osmEmbedURL = "https://www.openstreetmap.org/export/embed.html"

// coveragePadding is how far (in degrees) outside the dataset's bounding
// box a subject may lie before its estimate is flagged
const coveragePadding = 0.05

// MapManager renders map views for geocoded properties and exposes the
// training dataset as GeoJSON. It is nil-safe for datasets without
// coordinates: every method then reports that maps are unavailable.
type MapManager struct {
	embedKey string
	zoom     int
	points   *geojson.FeatureCollection
	bound    orb.Bound
	logger   *logrus.Logger
}

// NewMapManager indexes the dataset's coordinates. It returns nil when
// the dataset has no coordinate columns.
func NewMapManager(ds *dataset.Dataset, embedKey string, zoom int, logger *logrus.Logger) (*MapManager, error) {
	if logger == nil {
		logger = logrus.New()
	}
	if ds == nil || !ds.HasCoordinates {
		logger.Info("Skipping map setup, dataset has no coordinates")
		return nil, nil
	}

	fc := geojson.NewFeatureCollection()
	var bound orb.Bound
	for i, row := range ds.Rows {
		lat, err := strconv.ParseFloat(row.Cells[dataset.ColLatitude], 64)
		if err != nil {
			return nil, &dataset.DataQualityError{Row: row.Line, Column: dataset.ColLatitude, Reason: "non-numeric value"}
		}
		lon, err := strconv.ParseFloat(row.Cells[dataset.ColLongitude], 64)
		if err != nil {
			return nil, &dataset.DataQualityError{Row: row.Line, Column: dataset.ColLongitude, Reason: "non-numeric value"}
		}

		p := orb.Point{lon, lat}
		if i == 0 {
			bound = p.Bound()
		} else {
			bound = bound.Extend(p)
		}

		feature := geojson.NewFeature(p)
		feature.Properties = geojson.Properties{
			"zipcode": row.Cells[dataset.ColZipcode],
		}
		if price, err := strconv.ParseFloat(row.Cells[dataset.ColPrice], 64); err == nil {
			feature.Properties["price"] = price
		}
		fc.Append(feature)
	}

	logger.WithFields(logrus.Fields{
		"points": len(fc.Features),
		"min":    bound.Min,
		"max":    bound.Max,
	}).Info("Indexed dataset coordinates for map rendering")

	return &MapManager{
		embedKey: embedKey,
		zoom:     zoom,
		points:   fc,
		bound:    bound,
		logger:   logger,
	}, nil
}

// Available reports whether map rendering is enabled
func (m *MapManager) Available() bool {
	return m != nil
}

// Points returns the dataset as a GeoJSON feature collection
func (m *MapManager) Points() *geojson.FeatureCollection {
	if m == nil {
		return nil
	}
	return m.points
}

// Bound returns the bounding box of the dataset
func (m *MapManager) Bound() orb.Bound {
	if m == nil {
		return orb.Bound{}
	}
	return m.bound
}

// View builds the map for a geocoded property
func (m *MapManager) View(loc models.GeocodeResult) *models.MapView {
	if m == nil {
		return nil
	}
	return &models.MapView{
		Latitude:  loc.Latitude,
		Longitude: loc.Longitude,
		EmbedURL:  EmbedURL(loc.Latitude, loc.Longitude, m.embedKey, m.zoom),
		Zoom:      m.zoom,
	}
}

// Covers reports whether the point lies within the padded dataset bounds
func (m *MapManager) Covers(lat, lon float64) bool {
	if m == nil {
		return true
	}
	return m.bound.Pad(coveragePadding).Contains(orb.Point{lon, lat})
}

// DistanceToCoverage returns the great-circle distance in meters from the
// point to the center of the dataset bounds
func (m *MapManager) DistanceToCoverage(lat, lon float64) float64 {
	if m == nil {
		return 0
	}
	return geo.DistanceHaversine(orb.Point{lon, lat}, m.bound.Center())
}

// EmbedURL builds an embeddable map URL for the point. A Google Maps Embed
// URL is used when a key is configured, otherwise an OpenStreetMap one.
func EmbedURL(lat, lon float64, key string, zoom int) string {
	if key != "" {
		params := url.Values{
			"key":  []string{key},
			"q":    []string{fmt.Sprintf("%f,%f", lat, lon)},
			"zoom": []string{strconv.Itoa(zoom)},
		}
		return googleEmbedURL + "?" + params.Encode()
	}

	box := orb.Point{lon, lat}.Bound().Pad(0.005)
	params := url.Values{
		"bbox":   []string{fmt.Sprintf("%f,%f,%f,%f", box.Min[0], box.Min[1], box.Max[0], box.Max[1])},
		"layer":  []string{"mapnik"},
		"marker": []string{fmt.Sprintf("%f,%f", lat, lon)},
	}
	return osmEmbedURL + "?" + params.Encode()
}
