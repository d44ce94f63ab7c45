// Package penguin defines the feature vector fed to the body mass model.
package penguin

import (
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Column names the trained model was fit with.
const (
	FieldFlipperLength = "flipper_length_mm"
	FieldSpecies       = "species"
	FieldSex           = "sex"
)

const (
	Adelie    = "Adelie"
	Chinstrap = "Chinstrap"
	Gentoo    = "Gentoo"

	Female = "Female"
	Male   = "Male"
)

// Realistic flipper lengths for the Palmer dataset. Advisory only.
const (
	MinAdvisoryFlipperLength = 160.0
	MaxAdvisoryFlipperLength = 240.0
)

// KnownSpecies lists the species present in the Palmer dataset.
var KnownSpecies = []string{Adelie, Chinstrap, Gentoo}

// KnownSexes lists the sex values present in the Palmer dataset.
var KnownSexes = []string{Female, Male}

// FeatureVector is one observation handed to the model.
type FeatureVector struct {
	FlipperLengthMM float64 `json:"flipper_length_mm" yaml:"flipper_length_mm"`
	Species         string  `json:"species" yaml:"species"`
	Sex             string  `json:"sex" yaml:"sex"`
}

// Row returns the single-row record keyed by the model's column names.
func (fv FeatureVector) Row() map[string]interface{} {
	return map[string]interface{}{
		FieldFlipperLength: fv.FlipperLengthMM,
		FieldSpecies:       fv.Species,
		FieldSex:           fv.Sex,
	}
}

func (fv FeatureVector) String() string {
	return fmt.Sprintf("{%s: %s, %s: %q, %s: %q}",
		FieldFlipperLength, strconv.FormatFloat(fv.FlipperLengthMM, 'g', -1, 64),
		FieldSpecies, fv.Species,
		FieldSex, fv.Sex)
}

// Normalized returns a copy with species and sex title-cased.
func (fv FeatureVector) Normalized() FeatureVector {
	fv.Species = NormalizeCategory(fv.Species)
	fv.Sex = NormalizeCategory(fv.Sex)
	return fv
}

// NormalizeCategory trims and title-cases user input, so "chinstrap"
// becomes "Chinstrap". Unknown values stay unknown.
func NormalizeCategory(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return value
	}
	return cases.Title(language.English).String(value)
}

// InAdvisoryRange reports whether mm is a realistic flipper length.
func InAdvisoryRange(mm float64) bool {
	return mm >= MinAdvisoryFlipperLength && mm <= MaxAdvisoryFlipperLength
}
