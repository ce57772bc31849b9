package geometry

import (
	"net/url"
	"strings"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"avmboard/server/internal/dataset"
	"avmboard/server/internal/models"
)

const seattleCSV = `price,bedrooms,bathrooms,sqft_living,sqft_lot,floors,zipcode,year_built,lat,long
221900,3,1,1180,5650,1,98178,1955,47.5112,-122.257
538000,3,2,2570,7242,2,98125,1951,47.721,-122.319
180000,2,1,770,10000,1,98028,1933,47.7379,-122.233
`

func seattle(t *testing.T) *MapManager {
	t.Helper()
	ds, err := dataset.ReadCSV(strings.NewReader(seattleCSV))
	require.NoError(t, err)
	m, err := NewMapManager(ds, "", 14, nil)
	require.NoError(t, err)
	require.NotNil(t, m)
	return m
}

func TestNewMapManager(t *testing.T) {
	m := seattle(t)

	assert.True(t, m.Available())
	assert.Len(t, m.Points().Features, 3)
	assert.Equal(t, orb.Bound{Min: orb.Point{-122.319, 47.5112}, Max: orb.Point{-122.233, 47.7379}}, m.Bound())

	first := m.Points().Features[0]
	assert.Equal(t, orb.Point{-122.257, 47.5112}, first.Geometry)
	assert.Equal(t, "98178", first.Properties["zipcode"])
	assert.Equal(t, 221900.0, first.Properties["price"])
}

func TestNewMapManager_WithoutCoordinates(t *testing.T) {
	ds, err := dataset.ReadCSV(strings.NewReader("price,bedrooms,bathrooms,sqft_living,sqft_lot,floors,zipcode,year_built\n1,1,1,1,1,1,98001,2000\n"))
	require.NoError(t, err)

	m, err := NewMapManager(ds, "key", 14, nil)
	require.NoError(t, err)
	assert.Nil(t, m)

	// A nil manager disables maps without failing callers
	assert.False(t, m.Available())
	assert.Nil(t, m.Points())
	assert.Nil(t, m.View(models.GeocodeResult{Latitude: 1, Longitude: 2}))
	assert.True(t, m.Covers(0, 0))
	assert.Equal(t, 0.0, m.DistanceToCoverage(0, 0))
}

func TestNewMapManager_BadCoordinate(t *testing.T) {
	ds, err := dataset.ReadCSV(strings.NewReader("price,bedrooms,bathrooms,sqft_living,sqft_lot,floors,zipcode,year_built,lat,lon\n1,1,1,1,1,1,98001,2000,x,1\n"))
	require.NoError(t, err)

	_, err = NewMapManager(ds, "", 14, nil)
	var dqe *dataset.DataQualityError
	assert.ErrorAs(t, err, &dqe)
}

func TestMapManager_Coverage(t *testing.T) {
	m := seattle(t)

	assert.True(t, m.Covers(47.6, -122.3))
	assert.True(t, m.Covers(47.77, -122.25), "padding extends the bounds")
	assert.False(t, m.Covers(37.4224764, -122.0842499))

	near := m.DistanceToCoverage(47.62, -122.28)
	far := m.DistanceToCoverage(37.42, -122.08)
	assert.Less(t, near, 10_000.0)
	assert.Greater(t, far, 1_000_000.0)
}

func TestMapManager_View(t *testing.T) {
	m := seattle(t)
	view := m.View(models.GeocodeResult{Latitude: 47.6, Longitude: -122.3})
	require.NotNil(t, view)
	assert.Equal(t, 47.6, view.Latitude)
	assert.Equal(t, 14, view.Zoom)
	assert.True(t, strings.HasPrefix(view.EmbedURL, osmEmbedURL))
}

func TestEmbedURL(t *testing.T) {
	google := EmbedURL(37.422, -122.084, "embed-key", 15)
	u, err := url.Parse(google)
	require.NoError(t, err)
	assert.Equal(t, "www.google.com", u.Host)
	assert.Equal(t, "embed-key", u.Query().Get("key"))
	assert.Equal(t, "37.422000,-122.084000", u.Query().Get("q"))
	assert.Equal(t, "15", u.Query().Get("zoom"))

	osm := EmbedURL(37.422, -122.084, "", 15)
	u, err = url.Parse(osm)
	require.NoError(t, err)
	assert.Equal(t, "www.openstreetmap.org", u.Host)
	assert.Equal(t, "37.422000,-122.084000", u.Query().Get("marker"))
	assert.Empty(t, u.Query().Get("key"))
}
