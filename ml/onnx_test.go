package ml

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestEncodeRowOneHot(t *testing.T) {
	specs := []FeatureSpec{
		{Name: "flipper_length_mm", Type: FeatureNumeric},
		{Name: "species", Type: FeatureCategorical, Categories: []string{"Adelie", "Chinstrap", "Gentoo"}},
		{Name: "sex", Type: FeatureCategorical, Categories: []string{"Female", "Male"}},
	}

	got, err := encodeRow(specs, Row{"flipper_length_mm": 200.0, "species": "Chinstrap", "sex": "Female"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []float64{200, 0, 1, 0, 1, 0}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
	if encodedWidth(specs) != len(want) {
		t.Fatalf("expected width %d, got %d", len(want), encodedWidth(specs))
	}
}

func TestLoadOnnxMetadata(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "model_metadata.json")
	payload := `{
		"target": "body_mass_g",
		"features": [
			{"name": "flipper_length_mm", "type": "numeric", "mean": 200.9, "scale": 14.0},
			{"name": "species", "type": "categorical", "categories": ["Adelie", "Chinstrap", "Gentoo"]},
			{"name": "sex", "type": "categorical", "categories": ["Female", "Male"]}
		]
	}`
	if err := os.WriteFile(path, []byte(payload), 0o600); err != nil {
		t.Fatal(err)
	}

	metadata, err := LoadOnnxMetadata(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if metadata.InputName != "input" || metadata.OutputName != "variable" {
		t.Fatalf("expected default tensor names, got %q/%q", metadata.InputName, metadata.OutputName)
	}
	if encodedWidth(metadata.Features) != 6 {
		t.Fatalf("expected width 6, got %d", encodedWidth(metadata.Features))
	}
}

func TestLoadOnnxMetadataMissing(t *testing.T) {
	_, err := LoadOnnxMetadata(filepath.Join(t.TempDir(), "missing.json"))
	if !errors.Is(err, ErrArtifactLoad) {
		t.Fatalf("expected ErrArtifactLoad, got %v", err)
	}
}

func TestNewOnnxModelMissingGraph(t *testing.T) {
	dir := t.TempDir()
	metadataPath := filepath.Join(dir, "model_metadata.json")
	if err := os.WriteFile(metadataPath, []byte(`{"features": [{"name": "a", "type": "numeric"}]}`), 0o600); err != nil {
		t.Fatal(err)
	}
	_, err := NewOnnxModel(filepath.Join(dir, "missing.onnx"), metadataPath, "")
	if !errors.Is(err, ErrArtifactLoad) {
		t.Fatalf("expected ErrArtifactLoad, got %v", err)
	}
}

// Needs a real onnxruntime shared library and an exported graph.
func TestOnnxModelPredict(t *testing.T) {
	library := os.Getenv("ONNXRUNTIME_SHARED_LIBRARY_PATH")
	modelPath := os.Getenv("PENGUINS_ONNX_MODEL")
	if library == "" || modelPath == "" {
		t.Skip("ONNXRUNTIME_SHARED_LIBRARY_PATH and PENGUINS_ONNX_MODEL not set")
	}
	metadataPath := os.Getenv("PENGUINS_ONNX_METADATA")
	if metadataPath == "" {
		metadataPath = filepath.Join(filepath.Dir(modelPath), "model_metadata.json")
	}

	model, err := LoadModel(context.Background(), ModelConfig{
		Type:         ModelTypeONNX,
		Path:         modelPath,
		MetadataPath: metadataPath,
		OnnxLibrary:  library,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer model.Close()

	a, err := PredictBodyMass(context.Background(), chinstrapFemale200, model)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, err := PredictBodyMass(context.Background(), chinstrapFemale200, model)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a != b {
		t.Fatalf("expected deterministic predictions, got %v and %v", a, b)
	}

	_, err = model.Predict(context.Background(), []Row{{"flipper_length_mm": 200.0, "species": "Unknown", "sex": "Female"}})
	if !errors.Is(err, ErrUnknownCategory) {
		t.Fatalf("expected ErrUnknownCategory, got %v", err)
	}
}
