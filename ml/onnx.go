package ml

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

// OnnxMetadata sits next to the .onnx graph and records how rows are
// encoded into its input tensor.
type OnnxMetadata struct {
	InputName  string        `json:"input_name"`
	OutputName string        `json:"output_name"`
	Target     string        `json:"target"`
	Features   []FeatureSpec `json:"features"`
}

// The onnxruntime environment is process-global. Reloads load a new
// model before closing the old one, so it is reference counted.
var (
	ortEnvMu   sync.Mutex
	ortEnvRefs int
)

func acquireOrtEnvironment(libraryPath string) error {
	ortEnvMu.Lock()
	defer ortEnvMu.Unlock()

	if ortEnvRefs == 0 && !ort.IsInitialized() {
		if libraryPath != "" {
			ort.SetSharedLibraryPath(libraryPath)
		}
		if err := ort.InitializeEnvironment(); err != nil {
			return fmt.Errorf("failed to initialize ONNX environment: %w", err)
		}
	}
	ortEnvRefs++
	return nil
}

func releaseOrtEnvironment() {
	ortEnvMu.Lock()
	defer ortEnvMu.Unlock()

	if ortEnvRefs == 0 {
		return
	}
	ortEnvRefs--
	if ortEnvRefs == 0 {
		ort.DestroyEnvironment()
	}
}

// OnnxModel runs a single-row regression graph. Runs share one pair of
// tensors and are serialised.
type OnnxModel struct {
	mu           sync.Mutex
	session      *ort.AdvancedSession
	metadata     OnnxMetadata
	inputTensor  *ort.Tensor[float32]
	outputTensor *ort.Tensor[float32]
	width        int
	closed       bool
}

func LoadOnnxMetadata(path string) (OnnxMetadata, error) {
	var metadata OnnxMetadata
	payload, err := os.ReadFile(path)
	if err != nil {
		return metadata, fmt.Errorf("%w: failed to read metadata: %v", ErrArtifactLoad, err)
	}
	if err := json.Unmarshal(payload, &metadata); err != nil {
		return metadata, fmt.Errorf("%w: failed to parse metadata: %v", ErrArtifactLoad, err)
	}
	if metadata.InputName == "" {
		metadata.InputName = "input"
	}
	if metadata.OutputName == "" {
		metadata.OutputName = "variable"
	}
	if err := validateSpecs(metadata.Features); err != nil {
		return metadata, fmt.Errorf("%w: %v", ErrArtifactLoad, err)
	}
	return metadata, nil
}

func NewOnnxModel(modelPath, metadataPath, libraryPath string) (*OnnxModel, error) {
	metadata, err := LoadOnnxMetadata(metadataPath)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(modelPath); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrArtifactLoad, err)
	}

	if err := acquireOrtEnvironment(libraryPath); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrArtifactLoad, err)
	}

	width := encodedWidth(metadata.Features)
	inputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(1, int64(width)))
	if err != nil {
		releaseOrtEnvironment()
		return nil, fmt.Errorf("%w: failed to create input tensor: %v", ErrArtifactLoad, err)
	}

	outputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 1))
	if err != nil {
		inputTensor.Destroy()
		releaseOrtEnvironment()
		return nil, fmt.Errorf("%w: failed to create output tensor: %v", ErrArtifactLoad, err)
	}

	session, err := ort.NewAdvancedSession(modelPath,
		[]string{metadata.InputName}, []string{metadata.OutputName},
		[]ort.ArbitraryTensor{inputTensor}, []ort.ArbitraryTensor{outputTensor},
		nil)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		releaseOrtEnvironment()
		return nil, fmt.Errorf("%w: failed to create ONNX session: %v", ErrArtifactLoad, err)
	}

	return &OnnxModel{
		session:      session,
		metadata:     metadata,
		inputTensor:  inputTensor,
		outputTensor: outputTensor,
		width:        width,
	}, nil
}

func (m *OnnxModel) Predict(ctx context.Context, rows []Row) ([]float64, error) {
	if len(rows) == 0 {
		return nil, errors.New("no rows to predict")
	}

	encoded := make([][]float32, len(rows))
	for i, row := range rows {
		vector, err := encodeRow(m.metadata.Features, row)
		if err != nil {
			return nil, err
		}
		encoded[i] = toFloat32(vector)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrNoModel
	}

	predictions := make([]float64, len(rows))
	for i, vector := range encoded {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		copy(m.inputTensor.GetData(), vector)
		if err := m.session.Run(); err != nil {
			return nil, fmt.Errorf("inference failed: %w", err)
		}
		predictions[i] = float64(m.outputTensor.GetData()[0])
	}
	return predictions, nil
}

func (m *OnnxModel) Features() []string {
	return featureNames(m.metadata.Features)
}

func (m *OnnxModel) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true

	if m.inputTensor != nil {
		m.inputTensor.Destroy()
	}
	if m.outputTensor != nil {
		m.outputTensor.Destroy()
	}
	if m.session != nil {
		m.session.Destroy()
	}
	releaseOrtEnvironment()
	return nil
}

func toFloat32(vector []float64) []float32 {
	out := make([]float32, len(vector))
	for i, v := range vector {
		out[i] = float32(v)
	}
	return out
}
