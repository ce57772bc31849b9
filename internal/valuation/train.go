package valuation

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// TrainOptions configure the startup training run
type TrainOptions struct {
	Params       Params
	TestFraction float64
	// RefitFull refits on every row after evaluation. When false the
	// served model is the one fit on the training split.
	RefitFull bool
}

// Trained is the serving model plus its hold-out quality signal
type Trained struct {
	Model     *Model
	MAE       float64
	Rows      int
	TrainRows int
	TestRows  int
	TrainedAt time.Time
}

// Train evaluates the forest on a deterministic hold-out split and
// returns the model that will serve predictions. MAE is informational.
func Train(ctx context.Context, X [][]float64, y []float64, opts TrainOptions, logger *logrus.Logger) (*Trained, error) {
	if logger == nil {
		logger = logrus.New()
	}

	trainIdx, testIdx, err := TrainTestSplit(len(X), opts.TestFraction, opts.Params.Seed)
	if err != nil {
		return nil, fmt.Errorf("failed to split dataset: %w", err)
	}
	trainX, trainY := subset(X, y, trainIdx)
	testX, testY := subset(X, y, testIdx)

	start := time.Now()
	model, err := Fit(ctx, trainX, trainY, opts.Params)
	if err != nil {
		return nil, err
	}

	predictions, err := model.Predict(testX)
	if err != nil {
		return nil, fmt.Errorf("failed to predict hold-out set: %w", err)
	}
	mae, err := MeanAbsoluteError(testY, predictions)
	if err != nil {
		return nil, err
	}

	logger.WithFields(logrus.Fields{
		"train_rows": len(trainIdx),
		"test_rows":  len(testIdx),
		"trees":      opts.Params.Trees,
		"seed":       opts.Params.Seed,
		"mae":        mae,
		"duration":   time.Since(start).String(),
	}).Info("Evaluated valuation model on hold-out split")

	if opts.RefitFull {
		start = time.Now()
		model, err = Fit(ctx, X, y, opts.Params)
		if err != nil {
			return nil, err
		}
		logger.WithFields(logrus.Fields{
			"rows":     len(X),
			"duration": time.Since(start).String(),
		}).Info("Refit valuation model on full dataset")
	}

	return &Trained{
		Model:     model,
		MAE:       mae,
		Rows:      len(X),
		TrainRows: len(trainIdx),
		TestRows:  len(testIdx),
		TrainedAt: time.Now().UTC(),
	}, nil
}
