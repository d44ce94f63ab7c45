package ml

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
)

const (
	FeatureNumeric     = "numeric"
	FeatureCategorical = "categorical"
)

// FeatureSpec describes how one input column was encoded at training
// time. Numeric columns are standard-scaled when Scale is set.
// Categorical columns are one-hot encoded over Categories.
type FeatureSpec struct {
	Name         string    `json:"name"`
	Type         string    `json:"type"`
	Coefficient  float64   `json:"coefficient,omitempty"`
	Mean         float64   `json:"mean,omitempty"`
	Scale        float64   `json:"scale,omitempty"`
	Categories   []string  `json:"categories,omitempty"`
	Coefficients []float64 `json:"coefficients,omitempty"`
}

func (s FeatureSpec) width() int {
	if s.Type == FeatureCategorical {
		return len(s.Categories)
	}
	return 1
}

func validateSpecs(specs []FeatureSpec) error {
	if len(specs) == 0 {
		return fmt.Errorf("no features declared")
	}
	seen := make(map[string]bool, len(specs))
	for _, spec := range specs {
		if spec.Name == "" {
			return fmt.Errorf("feature with empty name")
		}
		if seen[spec.Name] {
			return fmt.Errorf("duplicate feature %q", spec.Name)
		}
		seen[spec.Name] = true

		switch spec.Type {
		case FeatureNumeric:
		case FeatureCategorical:
			if len(spec.Categories) == 0 {
				return fmt.Errorf("categorical feature %q has no categories", spec.Name)
			}
		default:
			return fmt.Errorf("feature %q has unknown type %q", spec.Name, spec.Type)
		}
	}
	return nil
}

func encodedWidth(specs []FeatureSpec) int {
	width := 0
	for _, spec := range specs {
		width += spec.width()
	}
	return width
}

func featureNames(specs []FeatureSpec) []string {
	names := make([]string, len(specs))
	for i, spec := range specs {
		names[i] = spec.Name
	}
	return names
}

// checkColumns requires the row to carry exactly the fitted columns.
func checkColumns(specs []FeatureSpec, row Row) error {
	for _, spec := range specs {
		if _, ok := row[spec.Name]; !ok {
			return fmt.Errorf("%w: %s", ErrMissingFeature, spec.Name)
		}
	}
	if len(row) == len(specs) {
		return nil
	}

	known := make(map[string]bool, len(specs))
	for _, spec := range specs {
		known[spec.Name] = true
	}
	extra := make([]string, 0)
	for name := range row {
		if !known[name] {
			extra = append(extra, name)
		}
	}
	sort.Strings(extra)
	return fmt.Errorf("%w: %v", ErrUnexpectedFeature, extra)
}

// encodeRow turns a row into the dense vector the model was fit on.
func encodeRow(specs []FeatureSpec, row Row) ([]float64, error) {
	if err := checkColumns(specs, row); err != nil {
		return nil, err
	}

	vector := make([]float64, 0, encodedWidth(specs))
	for _, spec := range specs {
		value := row[spec.Name]
		switch spec.Type {
		case FeatureNumeric:
			v, err := numericValue(spec.Name, value)
			if err != nil {
				return nil, err
			}
			scale := spec.Scale
			if scale == 0 {
				scale = 1
			}
			vector = append(vector, (v-spec.Mean)/scale)
		case FeatureCategorical:
			idx, err := categoryIndex(spec, value)
			if err != nil {
				return nil, err
			}
			for i := range spec.Categories {
				if i == idx {
					vector = append(vector, 1)
				} else {
					vector = append(vector, 0)
				}
			}
		}
	}
	return vector, nil
}

func numericValue(name string, value interface{}) (float64, error) {
	var v float64
	switch n := value.(type) {
	case float64:
		v = n
	case float32:
		v = float64(n)
	case int:
		v = float64(n)
	case int64:
		v = float64(n)
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return 0, fmt.Errorf("%w: %s=%v", ErrFeatureType, name, value)
		}
		v = f
	default:
		return 0, fmt.Errorf("%w: %s must be numeric, got %T", ErrFeatureType, name, value)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%w: %s is not finite", ErrFeatureType, name)
	}
	return v, nil
}

func categoryIndex(spec FeatureSpec, value interface{}) (int, error) {
	s, ok := value.(string)
	if !ok {
		return -1, fmt.Errorf("%w: %s must be a string, got %T", ErrFeatureType, spec.Name, value)
	}
	for i, category := range spec.Categories {
		if category == s {
			return i, nil
		}
	}
	return -1, fmt.Errorf("%w: %s=%q (known: %v)", ErrUnknownCategory, spec.Name, s, spec.Categories)
}
