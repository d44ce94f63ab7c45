package ml

import (
	"context"
	"errors"
	"fmt"
)

// Row is one record of named feature values. Values are float64 for
// numeric columns and string for categorical ones.
type Row map[string]interface{}

// Model is a trained estimator treated as a black box. Predict returns
// one value per input row. Implementations must be safe for concurrent
// use.
type Model interface {
	Predict(ctx context.Context, rows []Row) ([]float64, error)
	Close() error
}

var (
	ErrArtifactLoad     = errors.New("model artifact load failed")
	ErrUnsupportedModel = errors.New("unsupported model type")
	ErrNoModel          = errors.New("no model loaded")
	ErrPredictionShape  = errors.New("unexpected prediction shape")

	// ErrSchemaMismatch is the parent of every error caused by a row that
	// does not match what the model was fit with.
	ErrSchemaMismatch    = errors.New("feature schema mismatch")
	ErrMissingFeature    = fmt.Errorf("%w: missing feature", ErrSchemaMismatch)
	ErrUnexpectedFeature = fmt.Errorf("%w: unexpected feature", ErrSchemaMismatch)
	ErrUnknownCategory   = fmt.Errorf("%w: unknown category", ErrSchemaMismatch)
	ErrFeatureType       = fmt.Errorf("%w: invalid feature value", ErrSchemaMismatch)
)
