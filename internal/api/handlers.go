package api

import (
	"context"
	"errors"
	"net/http"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"avmboard/server/internal/features"
	"avmboard/server/internal/geometry"
	"avmboard/server/internal/inference"
	"avmboard/server/internal/models"
	"avmboard/server/internal/registration"
)

// Valuer runs a single valuation interaction
type Valuer interface {
	Value(ctx context.Context, in models.PropertyInput) (models.Valuation, error)
}

type Handler struct {
	valuer  Valuer
	builder *features.Builder
	summary models.ModelSummary
	form    models.FormConfig
	maps    *geometry.MapManager
	sink    *registration.Sink
	logger  *logrus.Logger
}

// Dependencies groups everything the handlers read from
type Dependencies struct {
	Valuer  Valuer
	Builder *features.Builder
	Summary models.ModelSummary
	Form    models.FormConfig
	Maps    *geometry.MapManager
	// Sink is nil when registrations are disabled
	Sink   *registration.Sink
	Logger *logrus.Logger
}

func NewHandler(deps Dependencies) *Handler {
	logger := deps.Logger
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.JSONFormatter{})
		logger.SetOutput(os.Stdout)
	}

	return &Handler{
		valuer:  deps.Valuer,
		builder: deps.Builder,
		summary: deps.Summary,
		form:    deps.Form,
		maps:    deps.Maps,
		sink:    deps.Sink,
		logger:  logger,
	}
}

// RegistrationEnabled reports whether the registration routes are served
func (h *Handler) RegistrationEnabled() bool {
	return h.sink != nil
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// GetFormSchema returns slider bounds and the zipcode options. Zipcodes
// are exactly the training vocabulary.
func (h *Handler) GetFormSchema(c *gin.Context) {
	c.JSON(http.StatusOK, h.formSchema())
}

func (h *Handler) formSchema() models.FormSchema {
	return models.FormSchema{
		FormConfig: h.form,
		Zipcodes:   h.builder.Zipcodes(),
	}
}

func (h *Handler) GetModelSummary(c *gin.Context) {
	summary := h.summary
	if h.maps.Available() {
		b := h.maps.Bound()
		summary.Coverage = &models.Coverage{
			MinLatitude:  b.Min.Lat(),
			MinLongitude: b.Min.Lon(),
			MaxLatitude:  b.Max.Lat(),
			MaxLongitude: b.Max.Lon(),
		}
	}
	c.JSON(http.StatusOK, summary)
}

func (h *Handler) CreateValuation(c *gin.Context) {
	var input models.PropertyInput
	if err := c.ShouldBindJSON(&input); err != nil {
		h.logger.WithError(err).Error("Failed to parse valuation request")
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request parameters"})
		return
	}

	valuation, err := h.valuer.Value(c.Request.Context(), input)
	if err != nil {
		var ierr *inference.InputError
		if errors.As(err, &ierr) {
			c.JSON(http.StatusBadRequest, gin.H{"error": ierr.Error(), "field": ierr.Field})
			return
		}
		h.logger.WithError(err).Error("Failed to value property")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to value property"})
		return
	}

	c.JSON(http.StatusOK, valuation)
}

func (h *Handler) GetMapPoints(c *gin.Context) {
	if !h.maps.Available() {
		c.JSON(http.StatusNotFound, gin.H{"error": "Dataset has no coordinates, map is unavailable"})
		return
	}
	c.JSON(http.StatusOK, h.maps.Points())
}

func (h *Handler) CreateRegistration(c *gin.Context) {
	var req models.RegistrationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.WithError(err).Error("Invalid registration request")
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid registration: name and a valid email are required"})
		return
	}

	receipt, err := h.sink.Register(c.Request.Context(), req)
	if err != nil {
		h.logger.WithError(err).Error("Failed to store registration")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to store registration"})
		return
	}

	resp := gin.H{
		"registration": receipt.Record,
		"uploaded":     receipt.Uploaded,
	}
	if receipt.UploadErr != nil {
		resp["warning"] = "Registration saved locally but could not be uploaded"
	}
	c.JSON(http.StatusCreated, resp)
}
