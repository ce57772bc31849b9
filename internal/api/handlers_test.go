package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"avmboard/server/config"
	"avmboard/server/internal/dataset"
	"avmboard/server/internal/features"
	"avmboard/server/internal/geometry"
	"avmboard/server/internal/inference"
	"avmboard/server/internal/metrics"
	"avmboard/server/internal/models"
	"avmboard/server/internal/registration"
)

type MockValuer struct {
	mock.Mock
}

func (m *MockValuer) Value(ctx context.Context, in models.PropertyInput) (models.Valuation, error) {
	args := m.Called(ctx, in)
	return args.Get(0).(models.Valuation), args.Error(1)
}

const handlerCSV = `price,bedrooms,bathrooms,sqft_living,sqft_lot,floors,zipcode,year_built,lat,long
221900,3,1,1180,5650,1,98178,1955,47.5112,-122.257
538000,3,2,2570,7242,2,98125,1951,47.721,-122.319
`

type testServer struct {
	router *gin.Engine
	valuer *MockValuer
	csv    string
}

func newTestServer(t *testing.T, csv string, withSink bool) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	ds, err := dataset.ReadCSV(strings.NewReader(csv))
	require.NoError(t, err)
	builder, err := features.NewBuilder(ds, 2025)
	require.NoError(t, err)

	logger, _ := test.NewNullLogger()
	maps, err := geometry.NewMapManager(ds, "", 15, logger)
	require.NoError(t, err)
	collector, err := metrics.NewCollector(prometheus.NewRegistry())
	require.NoError(t, err)

	ts := &testServer{valuer: new(MockValuer)}
	var sink *registration.Sink
	if withSink {
		ts.csv = filepath.Join(t.TempDir(), "registrations.csv")
		sink = registration.NewSink(nil, ts.csv, nil, "", collector, logger)
	}

	handler := NewHandler(Dependencies{
		Valuer:  ts.valuer,
		Builder: builder,
		Summary: models.ModelSummary{MAE: 123456.789, FormattedMAE: "$123,456.79", Features: builder.Schema(), HasMap: maps.Available()},
		Form:    config.DefaultFormConfig(),
		Maps:    maps,
		Sink:    sink,
		Logger:  logger,
	})

	ts.router = gin.New()
	SetupRoutes(ts.router, handler, collector, nil)
	return ts
}

func (ts *testServer) do(method, path string, body []byte, contentType string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	return w
}

func validPayload() models.PropertyInput {
	return models.PropertyInput{
		Bedrooms:   3,
		Bathrooms:  2,
		SqftLiving: 1800,
		SqftLot:    5000,
		Floors:     1,
		Zipcode:    "98125",
		YearBuilt:  2000,
		Address:    "1600 Amphitheatre Parkway, Mountain View, CA",
	}
}

func TestGetFormSchema(t *testing.T) {
	ts := newTestServer(t, handlerCSV, false)

	w := ts.do(http.MethodGet, "/api/form", nil, "")
	require.Equal(t, http.StatusOK, w.Code)

	var schema models.FormSchema
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &schema))
	assert.Equal(t, []string{"98125", "98178"}, schema.Zipcodes)
	assert.Equal(t, 10, schema.Bedrooms.Max)
	assert.Equal(t, "1600 Amphitheatre Parkway, Mountain View, CA", schema.DefaultAddress)
}

func TestGetModelSummary(t *testing.T) {
	ts := newTestServer(t, handlerCSV, false)

	w := ts.do(http.MethodGet, "/api/model", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"formatted_mae":"$123,456.79"`)
	assert.Contains(t, w.Body.String(), `"has_map":true`)

	var summary models.ModelSummary
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &summary))
	require.NotNil(t, summary.Coverage)
	assert.Equal(t, models.Coverage{MinLatitude: 47.5112, MinLongitude: -122.319, MaxLatitude: 47.721, MaxLongitude: -122.257}, *summary.Coverage)
}

func TestGetModelSummary_NoCoordinates(t *testing.T) {
	csv := "price,bedrooms,bathrooms,sqft_living,sqft_lot,floors,zipcode,year_built\n" +
		"221900,3,1,1180,5650,1,98178,1955\n"
	ts := newTestServer(t, csv, false)

	w := ts.do(http.MethodGet, "/api/model", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"has_map":false`)
	assert.NotContains(t, w.Body.String(), "coverage")
}

func TestCreateValuation(t *testing.T) {
	ts := newTestServer(t, handlerCSV, false)
	price := 640000.0
	ts.valuer.On("Value", mock.Anything, validPayload()).Return(models.Valuation{
		State:          models.StatePredicted,
		PredictedPrice: &price,
		FormattedPrice: "$640,000.00",
	}, nil)

	body, _ := json.Marshal(validPayload())
	w := ts.do(http.MethodPost, "/api/valuations", body, "application/json")
	require.Equal(t, http.StatusOK, w.Code)

	var got models.Valuation
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, models.StatePredicted, got.State)
	assert.Equal(t, "$640,000.00", got.FormattedPrice)
	ts.valuer.AssertExpectations(t)
}

func TestCreateValuation_ZeroCountsReachValuer(t *testing.T) {
	ts := newTestServer(t, handlerCSV, false)
	in := validPayload()
	in.Bedrooms = 0
	in.Floors = 0
	ts.valuer.On("Value", mock.Anything, in).Return(models.Valuation{State: models.StatePredicted}, nil)

	body, _ := json.Marshal(in)
	w := ts.do(http.MethodPost, "/api/valuations", body, "application/json")
	assert.Equal(t, http.StatusOK, w.Code)
	ts.valuer.AssertExpectations(t)
}

func TestCreateValuation_Errors(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		err    error
		status int
	}{
		{
			name:   "malformed json",
			body:   `{"bedrooms":`,
			status: http.StatusBadRequest,
		},
		{
			name:   "input error",
			err:    &inference.InputError{Field: "zipcode", Reason: "zipcode not present in training data"},
			status: http.StatusBadRequest,
		},
		{
			name:   "internal error",
			err:    errors.New("model exploded"),
			status: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t, handlerCSV, false)
			body := []byte(tt.body)
			if tt.err != nil {
				ts.valuer.On("Value", mock.Anything, mock.Anything).Return(models.Valuation{}, tt.err)
				body, _ = json.Marshal(validPayload())
			}

			w := ts.do(http.MethodPost, "/api/valuations", body, "application/json")
			assert.Equal(t, tt.status, w.Code)
			assert.NotContains(t, w.Body.String(), "model exploded")
		})
	}
}

func TestCreateValuation_GeocodeFailureIsNotAnError(t *testing.T) {
	ts := newTestServer(t, handlerCSV, false)
	ts.valuer.On("Value", mock.Anything, mock.Anything).Return(models.Valuation{
		State:   models.StateGeocodeFailed,
		Warning: "Address not found. Please check the input.",
	}, nil)

	body, _ := json.Marshal(validPayload())
	w := ts.do(http.MethodPost, "/api/valuations", body, "application/json")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "GEOCODE_FAILED")
	assert.NotContains(t, w.Body.String(), "predicted_price")
}

func TestGetMapPoints(t *testing.T) {
	ts := newTestServer(t, handlerCSV, false)
	w := ts.do(http.MethodGet, "/api/map/points", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"FeatureCollection"`)

	noCoords := "price,bedrooms,bathrooms,sqft_living,sqft_lot,floors,zipcode,year_built\n1,1,1,1,1,1,98001,2000\n"
	ts = newTestServer(t, noCoords, false)
	w = ts.do(http.MethodGet, "/api/map/points", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCreateRegistration(t *testing.T) {
	ts := newTestServer(t, handlerCSV, true)

	body := []byte(`{"name":"Ada Lovelace","email":"ada@example.com","city":"London"}`)
	w := ts.do(http.MethodPost, "/api/registrations", body, "application/json")
	require.Equal(t, http.StatusCreated, w.Code)

	var resp struct {
		Registration models.Registration `json:"registration"`
		Uploaded     bool                `json:"uploaded"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.Registration.ID)
	assert.Equal(t, "Ada Lovelace", resp.Registration.Name)

	records, err := registration.ReadAll(ts.csv)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, resp.Registration.ID, records[0].ID)

	w = ts.do(http.MethodPost, "/api/registrations", []byte(`{"name":"Ada","email":"not-an-email"}`), "application/json")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRegistrationRouteDisabled(t *testing.T) {
	ts := newTestServer(t, handlerCSV, false)
	w := ts.do(http.MethodPost, "/api/registrations", []byte(`{}`), "application/json")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDashboard(t *testing.T) {
	ts := newTestServer(t, handlerCSV, false)

	w := ts.do(http.MethodGet, "/", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Automated Real Estate Valuation Tool")
	assert.Contains(t, w.Body.String(), "$123,456.79")
	assert.Contains(t, w.Body.String(), `<option value="98125" selected>`)

	ts.valuer.On("Value", mock.Anything, mock.Anything).Return(models.Valuation{
		State:          models.StatePredicted,
		FormattedPrice: "$512,000.00",
		Map:            &models.MapView{Latitude: 47.6, Longitude: -122.3, EmbedURL: geometry.EmbedURL(47.6, -122.3, "", 15)},
	}, nil)

	form := url.Values{
		"bedrooms":    {"3"},
		"bathrooms":   {"2"},
		"sqft_living": {"1800"},
		"sqft_lot":    {"5000"},
		"floors":      {"1"},
		"zipcode":     {"98178"},
		"year_built":  {"2000"},
		"address":     {"123 Main St"},
	}
	w = ts.do(http.MethodPost, "/", []byte(form.Encode()), "application/x-www-form-urlencoded")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "$512,000.00")
	assert.Contains(t, w.Body.String(), "<iframe")
}

func TestHealthAndMetrics(t *testing.T) {
	ts := newTestServer(t, handlerCSV, false)

	w := ts.do(http.MethodGet, "/healthz", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = ts.do(http.MethodGet, "/metrics", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "avm_model_mae")
}
