package api

import (
	"embed"
	"errors"
	"html/template"
	"net/http"

	"github.com/gin-gonic/gin"

	"avmboard/server/internal/inference"
	"avmboard/server/internal/models"
)

//go:embed templates/*.html
var templateFS embed.FS

// Templates parses the embedded dashboard templates
func Templates() *template.Template {
	return template.Must(template.New("").ParseFS(templateFS, "templates/*.html"))
}

type dashboardPage struct {
	Schema    models.FormSchema
	Summary   models.ModelSummary
	Input     models.PropertyInput
	Valuation *models.Valuation
	Error     string
}

func (h *Handler) defaultInput() models.PropertyInput {
	in := models.PropertyInput{
		Bedrooms:   h.form.Bedrooms.Default,
		Bathrooms:  h.form.Bathrooms.Default,
		SqftLiving: h.form.SqftLiving.Default,
		SqftLot:    h.form.SqftLot.Default,
		Floors:     h.form.Floors.Default,
		YearBuilt:  h.form.YearBuilt.Default,
		Address:    h.form.DefaultAddress,
	}
	if zips := h.builder.Zipcodes(); len(zips) > 0 {
		in.Zipcode = zips[0]
	}
	return in
}

func (h *Handler) ShowDashboard(c *gin.Context) {
	c.HTML(http.StatusOK, "dashboard.html", dashboardPage{
		Schema:  h.formSchema(),
		Summary: h.summary,
		Input:   h.defaultInput(),
	})
}

func (h *Handler) SubmitDashboard(c *gin.Context) {
	page := dashboardPage{
		Schema:  h.formSchema(),
		Summary: h.summary,
		Input:   h.defaultInput(),
	}

	var input models.PropertyInput
	if err := c.ShouldBind(&input); err != nil {
		h.logger.WithError(err).Error("Failed to parse dashboard form")
		page.Error = "Please fill in every property field."
		c.HTML(http.StatusBadRequest, "dashboard.html", page)
		return
	}
	page.Input = input

	valuation, err := h.valuer.Value(c.Request.Context(), input)
	if err != nil {
		var ierr *inference.InputError
		if errors.As(err, &ierr) {
			page.Error = ierr.Error()
			c.HTML(http.StatusBadRequest, "dashboard.html", page)
			return
		}
		h.logger.WithError(err).Error("Failed to value property")
		page.Error = "Failed to value property."
		c.HTML(http.StatusInternalServerError, "dashboard.html", page)
		return
	}

	page.Valuation = &valuation
	c.HTML(http.StatusOK, "dashboard.html", page)
}
