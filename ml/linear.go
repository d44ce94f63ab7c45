package ml

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

const linearKind = "linear_regression"

// LinearArtifact is the JSON export of a fitted one-hot + linear
// regression pipeline.
type LinearArtifact struct {
	Kind      string        `json:"kind"`
	Target    string        `json:"target"`
	Intercept float64       `json:"intercept"`
	Features  []FeatureSpec `json:"features"`
}

// LinearModel evaluates a LinearArtifact. It is immutable after load.
type LinearModel struct {
	artifact LinearArtifact
	weights  []float64
}

func LoadLinearModel(path string) (*LinearModel, error) {
	payload, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrArtifactLoad, err)
	}
	model, err := ParseLinearModel(payload)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return model, nil
}

func ParseLinearModel(payload []byte) (*LinearModel, error) {
	var artifact LinearArtifact
	if err := json.Unmarshal(payload, &artifact); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrArtifactLoad, err)
	}
	if artifact.Kind != "" && artifact.Kind != linearKind {
		return nil, fmt.Errorf("%w: artifact kind %q is not %q", ErrArtifactLoad, artifact.Kind, linearKind)
	}
	if err := validateSpecs(artifact.Features); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrArtifactLoad, err)
	}

	weights := make([]float64, 0, encodedWidth(artifact.Features))
	for _, spec := range artifact.Features {
		switch spec.Type {
		case FeatureNumeric:
			weights = append(weights, spec.Coefficient)
		case FeatureCategorical:
			if len(spec.Coefficients) != len(spec.Categories) {
				return nil, fmt.Errorf("%w: feature %q has %d categories but %d coefficients",
					ErrArtifactLoad, spec.Name, len(spec.Categories), len(spec.Coefficients))
			}
			weights = append(weights, spec.Coefficients...)
		}
	}

	return &LinearModel{artifact: artifact, weights: weights}, nil
}

func (m *LinearModel) Predict(ctx context.Context, rows []Row) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, errors.New("no rows to predict")
	}

	predictions := make([]float64, len(rows))
	for i, row := range rows {
		vector, err := encodeRow(m.artifact.Features, row)
		if err != nil {
			return nil, err
		}
		y := m.artifact.Intercept
		for j, x := range vector {
			y += m.weights[j] * x
		}
		predictions[i] = y
	}
	return predictions, nil
}

// Features returns the column names the model was fit with.
func (m *LinearModel) Features() []string {
	return featureNames(m.artifact.Features)
}

func (m *LinearModel) Target() string {
	return m.artifact.Target
}

func (m *LinearModel) Close() error {
	return nil
}
