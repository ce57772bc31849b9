package api

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"avmboard/server/internal/metrics"
)

// SetupRoutes registers the dashboard, the JSON API and the metrics endpoint
func SetupRoutes(router *gin.Engine, handler *Handler, collector *metrics.Collector, allowedOrigins []string) {
	router.Use(corsMiddleware(allowedOrigins))
	router.SetHTMLTemplate(Templates())

	router.GET("/", handler.ShowDashboard)
	router.POST("/", handler.SubmitDashboard)
	router.GET("/healthz", handler.Health)
	if collector != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(collector.Gatherer(), promhttp.HandlerOpts{})))
	}

	api := router.Group("/api")
	{
		api.GET("/form", handler.GetFormSchema)
		api.GET("/model", handler.GetModelSummary)
		api.POST("/valuations", handler.CreateValuation)
		api.GET("/map/points", handler.GetMapPoints)
		if handler.RegistrationEnabled() {
			api.POST("/registrations", handler.CreateRegistration)
		}
	}
}

func corsMiddleware(origins []string) gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept"},
	}
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
	}
	return cors.New(cfg)
}
