package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"

	"avmboard/server/config"
	"avmboard/server/internal/api"
	"avmboard/server/internal/database"
	"avmboard/server/internal/dataset"
	"avmboard/server/internal/features"
	"avmboard/server/internal/geocoding"
	"avmboard/server/internal/geometry"
	"avmboard/server/internal/inference"
	"avmboard/server/internal/metrics"
	"avmboard/server/internal/models"
	"avmboard/server/internal/registration"
	"avmboard/server/internal/valuation"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(os.Stdout)

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.WithError(err).Fatal("Failed to load configuration")
	}
	if level, err := logrus.ParseLevel(cfg.Server.LogLevel); err == nil {
		logger.SetLevel(level)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := config.LoadFormConfig(cfg.Model.FormConfigPath); err != nil {
		logger.WithError(err).Fatal("Failed to load form configuration")
	}
	if _, err := os.Stat(cfg.Model.FormConfigPath); errors.Is(err, os.ErrNotExist) {
		// Write the defaults out so operators have a file to edit
		if err := config.SaveFormConfig(cfg.Model.FormConfigPath); err != nil {
			logger.WithError(err).Warn("Failed to write default form configuration")
		}
	}

	logger.Infof("Using database at: %s", cfg.Database.Path)
	db, err := database.NewDatabase(cfg.Database.Path)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize database")
	}
	defer db.Close()

	logger.Info("Running database migrations...")
	if err := db.RunMigrations(); err != nil {
		logger.WithError(err).Fatal("Failed to run database migrations")
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector, err := metrics.NewCollector(registry)
	if err != nil {
		logger.WithError(err).Fatal("Failed to register metrics")
	}

	// Data quality problems are fatal: the service never serves a model
	// trained on a partial dataset.
	ds, err := dataset.Load(cfg.Model.DatasetPath, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to load training dataset")
	}
	builder, err := features.NewBuilder(ds, cfg.EffectiveReferenceYear(time.Now()))
	if err != nil {
		logger.WithError(err).Fatal("Failed to prepare features")
	}
	trained, err := trainModel(ctx, cfg, ds, builder, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to train valuation model")
	}
	collector.SetModel(trained.MAE, trained.Rows)

	if previous, err := db.LatestModelRun(); err != nil {
		logger.WithError(err).Warn("Failed to read previous model run")
	} else if previous != nil {
		logger.WithFields(logrus.Fields{
			"previous_mae":  previous.MAE,
			"previous_rows": previous.Rows,
			"mae":           trained.MAE,
			"rows":          trained.Rows,
		}).Info("Compared with previous model run")
	}

	run := &models.ModelRun{
		TrainedAt:     trained.TrainedAt,
		DatasetPath:   cfg.Model.DatasetPath,
		Rows:          trained.Rows,
		TrainRows:     trained.TrainRows,
		TestRows:      trained.TestRows,
		Trees:         trained.Model.NumTrees(),
		Seed:          trained.Model.Seed(),
		ReferenceYear: builder.ReferenceYear(),
		Features:      strings.Join(trained.Model.Features(), ","),
		MAE:           trained.MAE,
	}
	if err := db.RecordModelRun(run); err != nil {
		logger.WithError(err).Error("Failed to record model run")
	}

	maps, err := geometry.NewMapManager(ds, cfg.Map.EmbedAPIKey, cfg.Map.ZoomLevel, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to index dataset coordinates")
	}

	geocoder, err := geocoding.New(cfg.Geocoder.Provider, geocodingOptions(cfg), logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize geocoder")
	}

	form := config.GetFormConfig()
	adapter := inference.NewAdapter(builder, trained.Model, geocoder, maps, form, collector, logger)

	var sink *registration.Sink
	if cfg.Registration.Enabled {
		sink = registration.NewSink(db, cfg.Registration.CSVPath, newUploader(cfg), cfg.Registration.Destination, collector, logger)
		count, err := db.CountRegistrations()
		if err != nil {
			logger.WithError(err).Warn("Failed to count stored registrations")
		}
		logger.WithFields(logrus.Fields{
			"uploader": cfg.Registration.Uploader,
			"stored":   count,
		}).Info("Visitor registration enabled")
	}

	handler := api.NewHandler(api.Dependencies{
		Valuer:  adapter,
		Builder: builder,
		Summary: models.ModelSummary{
			MAE:           trained.MAE,
			FormattedMAE:  inference.FormatCurrency(trained.MAE),
			Rows:          trained.Rows,
			TrainRows:     trained.TrainRows,
			TestRows:      trained.TestRows,
			Trees:         trained.Model.NumTrees(),
			Seed:          trained.Model.Seed(),
			ReferenceYear: builder.ReferenceYear(),
			Features:      trained.Model.Features(),
			HasMap:        maps.Available(),
			TrainedAt:     trained.TrainedAt,
		},
		Form:   form,
		Maps:   maps,
		Sink:   sink,
		Logger: logger,
	})

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), api.RequestLogger(logger))
	api.SetupRoutes(router, handler, collector, cfg.Server.AllowedOrigins)

	server := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Error("Server shutdown failed")
		}
	}()

	logger.Infof("Starting server on port %s", cfg.Server.Port)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Fatal("Server failed to start")
	}
	logger.Info("Server stopped")
}

func trainModel(ctx context.Context, cfg *config.Config, ds *dataset.Dataset, builder *features.Builder, logger *logrus.Logger) (*valuation.Trained, error) {
	X, y, err := builder.Build(ds)
	if err != nil {
		return nil, err
	}

	opts := valuation.TrainOptions{
		Params: valuation.Params{
			Trees:          cfg.Model.Trees,
			Seed:           cfg.Model.Seed,
			MinSamplesLeaf: cfg.Model.MinSamplesLeaf,
			MaxDepth:       cfg.Model.MaxDepth,
			Workers:        cfg.Model.FitWorkers,
			Features:       builder.Schema(),
		},
		TestFraction: cfg.Model.TestFraction,
		RefitFull:    cfg.Model.RefitFull,
	}
	return valuation.Train(ctx, X, y, opts, logger)
}

func geocodingOptions(cfg *config.Config) geocoding.Options {
	opts := geocoding.Options{
		Timeout:   cfg.Geocoder.Timeout,
		UserAgent: cfg.Geocoder.UserAgent,
	}
	switch cfg.Geocoder.Provider {
	case "google":
		opts.BaseURL = cfg.Geocoder.GoogleBaseURL
		opts.APIKey = cfg.Geocoder.GoogleAPIKey
	case "nominatim":
		opts.BaseURL = cfg.Geocoder.NominatimBaseURL
	}
	return opts
}

func newUploader(cfg *config.Config) registration.Uploader {
	switch cfg.Registration.Uploader {
	case "gcs":
		return registration.NewGCSUploader(cfg.Registration.GCSBaseURL, cfg.Registration.GCSBucket, cfg.Registration.GCSAccessToken, 30*time.Second)
	case "local":
		return registration.NewLocalUploader(cfg.Registration.LocalDir)
	default:
		return nil
	}
}
