package ml

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"penguinoracle/penguin"
)

// Predictor produces body mass predictions from a loaded model.
type Predictor struct {
	model  Model
	logger *zap.Logger
}

func NewPredictor(model Model, logger *zap.Logger) *Predictor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Predictor{model: model, logger: logger}
}

// PredictBodyMass predicts the body mass in grams for one penguin.
func PredictBodyMass(ctx context.Context, fv penguin.FeatureVector, model Model) (float64, error) {
	return NewPredictor(model, nil).BodyMass(ctx, fv)
}

// BodyMass builds the one-row record, runs the model and returns the
// sole prediction. Model errors are returned unchanged apart from
// wrapping.
func (p *Predictor) BodyMass(ctx context.Context, fv penguin.FeatureVector) (float64, error) {
	if p.model == nil {
		return 0, ErrNoModel
	}

	row := Row(fv.Row())
	p.logger.Info("predict input",
		zap.Float64(penguin.FieldFlipperLength, fv.FlipperLengthMM),
		zap.String(penguin.FieldSpecies, fv.Species),
		zap.String(penguin.FieldSex, fv.Sex))
	if !penguin.InAdvisoryRange(fv.FlipperLengthMM) {
		p.logger.Warn("flipper length outside realistic range",
			zap.Float64(penguin.FieldFlipperLength, fv.FlipperLengthMM),
			zap.Float64("min", penguin.MinAdvisoryFlipperLength),
			zap.Float64("max", penguin.MaxAdvisoryFlipperLength))
	}

	predictions, err := p.model.Predict(ctx, []Row{row})
	if err != nil {
		return 0, fmt.Errorf("predict body mass: %w", err)
	}
	if len(predictions) != 1 {
		return 0, fmt.Errorf("%w: expected 1 prediction, got %d", ErrPredictionShape, len(predictions))
	}

	p.logger.Info("predict output", zap.Float64("body_mass_g", predictions[0]))
	return predictions[0], nil
}
