package ml

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// RemoteModel calls an inference sidecar that hosts an estimator this
// process cannot load natively, such as a pickled scikit-learn pipeline.
type RemoteModel struct {
	endpoint string
	client   *http.Client
}

type remoteRequest struct {
	Rows []Row `json:"rows"`
}

type remoteResponse struct {
	Predictions []float64 `json:"predictions"`
	Error       string    `json:"error,omitempty"`
}

func NewRemoteModel(endpoint string, timeout time.Duration) (*RemoteModel, error) {
	if endpoint == "" {
		return nil, errors.New("remote model endpoint is required")
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &RemoteModel{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
	}, nil
}

func (m *RemoteModel) Predict(ctx context.Context, rows []Row) ([]float64, error) {
	if len(rows) == 0 {
		return nil, errors.New("no rows to predict")
	}

	body, err := json.Marshal(remoteRequest{Rows: rows})
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("inference request failed: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read inference response: %w", err)
	}

	var decoded remoteResponse
	decodeErr := json.Unmarshal(payload, &decoded)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := decoded.Error
		if decodeErr != nil || msg == "" {
			msg = strings.TrimSpace(string(payload))
		}
		if resp.StatusCode == http.StatusUnprocessableEntity {
			return nil, fmt.Errorf("%w: %s", ErrSchemaMismatch, msg)
		}
		return nil, fmt.Errorf("inference service returned %d: %s", resp.StatusCode, msg)
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("decode inference response: %w", decodeErr)
	}
	if len(decoded.Predictions) != len(rows) {
		return nil, fmt.Errorf("%w: sent %d rows, got %d predictions",
			ErrPredictionShape, len(rows), len(decoded.Predictions))
	}
	return decoded.Predictions, nil
}

func (m *RemoteModel) Close() error {
	m.client.CloseIdleConnections()
	return nil
}
