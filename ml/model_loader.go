package ml

import (
	"context"
	"fmt"
	"time"
)

const (
	ModelTypeLinear = "linear"
	ModelTypeONNX   = "onnx"
	ModelTypeRemote = "remote"
)

// ModelConfig selects and locates a model artifact.
type ModelConfig struct {
	Type         string
	Path         string
	MetadataPath string
	Endpoint     string
	Timeout      time.Duration
	OnnxLibrary  string
}

// ArtifactPaths lists the files a model is loaded from.
func (c ModelConfig) ArtifactPaths() []string {
	switch c.Type {
	case ModelTypeLinear:
		return []string{c.Path}
	case ModelTypeONNX:
		return []string{c.Path, c.MetadataPath}
	default:
		return nil
	}
}

func LoadModel(ctx context.Context, cfg ModelConfig) (Model, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	switch cfg.Type {
	case ModelTypeLinear:
		return LoadLinearModel(cfg.Path)
	case ModelTypeONNX:
		return NewOnnxModel(cfg.Path, cfg.MetadataPath, cfg.OnnxLibrary)
	case ModelTypeRemote:
		return NewRemoteModel(cfg.Endpoint, cfg.Timeout)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedModel, cfg.Type)
	}
}
