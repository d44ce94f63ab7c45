package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"

	"penguinoracle/db"
	"penguinoracle/ml"
	"penguinoracle/monitoring"
)

const referenceModelPath = "../ml/testdata/model_penguins.json"

type fakeModel struct {
	prediction float64
	err        error
}

func (f *fakeModel) Predict(ctx context.Context, rows []ml.Row) ([]float64, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([]float64, len(rows))
	for i := range rows {
		out[i] = f.prediction
	}
	return out, nil
}

func (f *fakeModel) Close() error { return nil }

func newTestService(t *testing.T, model ml.Model, store *db.Store) (*Service, *http.ServeMux) {
	t.Helper()
	svc := NewService(ServiceConfig{
		Model:     model,
		ModelType: ml.ModelTypeLinear,
		Store:     store,
		Metrics:   monitoring.NewMetrics(),
	})
	mux := http.NewServeMux()
	svc.RegisterHandlers(mux)
	return svc, mux
}

func referenceModel(t *testing.T) ml.Model {
	t.Helper()
	model, err := ml.LoadLinearModel(referenceModelPath)
	if err != nil {
		t.Fatalf("failed to load reference model: %v", err)
	}
	return model
}

func postJSON(mux http.Handler, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/predict", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	return w
}

func TestHandlePredictJSON(t *testing.T) {
	_, mux := newTestService(t, referenceModel(t), nil)

	w := postJSON(mux, `{"flipper_length_mm": 200, "species": "Chinstrap", "sex": "Female"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var payload predictResponse
	if err := json.Unmarshal(w.Body.Bytes(), &payload); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if payload.BodyMassG != 3555 {
		t.Fatalf("unexpected body mass: %v", payload.BodyMassG)
	}
	if payload.Species != "Chinstrap" || payload.Sex != "Female" || payload.FlipperLengthMM != 200 {
		t.Fatalf("unexpected echo: %+v", payload)
	}
}

func TestHandlePredictForm(t *testing.T) {
	_, mux := newTestService(t, referenceModel(t), nil)

	form := url.Values{}
	form.Set("flipper_length_mm", "160")
	form.Set("species", "adelie")
	form.Set("sex", "male")
	req := httptest.NewRequest(http.MethodPost, "/api/predict", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var payload predictResponse
	if err := json.Unmarshal(w.Body.Bytes(), &payload); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if payload.BodyMassG != 3365 || payload.Species != "Adelie" {
		t.Fatalf("unexpected response: %+v", payload)
	}
}

func TestHandlePredictErrors(t *testing.T) {
	tests := []struct {
		name   string
		model  ml.Model
		body   string
		status int
	}{
		{"unknown species", referenceModel(t), `{"flipper_length_mm": 200, "species": "Unknown", "sex": "Female"}`, http.StatusUnprocessableEntity},
		{"unknown sex", referenceModel(t), `{"flipper_length_mm": 200, "species": "Gentoo", "sex": "X"}`, http.StatusUnprocessableEntity},
		{"missing sex", referenceModel(t), `{"flipper_length_mm": 200, "species": "Gentoo"}`, http.StatusBadRequest},
		{"unknown field", referenceModel(t), `{"flipper_length_mm": 200, "species": "Gentoo", "sex": "Male", "island": "Biscoe"}`, http.StatusBadRequest},
		{"malformed", referenceModel(t), `{"flipper_length_mm":`, http.StatusBadRequest},
		{"string length", referenceModel(t), `{"flipper_length_mm": "long", "species": "Gentoo", "sex": "Male"}`, http.StatusBadRequest},
		{"model failure", &fakeModel{err: errors.New("boom")}, `{"flipper_length_mm": 200, "species": "Gentoo", "sex": "Male"}`, http.StatusInternalServerError},
		{"no model", &fakeModel{err: ml.ErrNoModel}, `{"flipper_length_mm": 200, "species": "Gentoo", "sex": "Male"}`, http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, mux := newTestService(t, tt.model, nil)
			w := postJSON(mux, tt.body)
			if w.Code != tt.status {
				t.Fatalf("expected %d, got %d: %s", tt.status, w.Code, w.Body.String())
			}
			var payload map[string]string
			if err := json.Unmarshal(w.Body.Bytes(), &payload); err != nil {
				t.Fatalf("invalid json: %v", err)
			}
			if payload["error"] == "" {
				t.Fatal("expected error message")
			}
		})
	}
}

func TestHandlePredictLogsPredictions(t *testing.T) {
	store, err := db.Open(filepath.Join(t.TempDir(), "predictions.db"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	defer store.Close()

	_, mux := newTestService(t, &fakeModel{prediction: 4100}, store)

	for i := 0; i < 3; i++ {
		if w := postJSON(mux, `{"flipper_length_mm": 210, "species": "Gentoo", "sex": "Female"}`); w.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", w.Code)
		}
	}
	postJSON(mux, `{"flipper_length_mm": 210, "species": "Gentoo"}`)

	req := httptest.NewRequest(http.MethodGet, "/api/predictions?limit=2", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var payload struct {
		Count int             `json:"count"`
		Data  []db.Prediction `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &payload); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if payload.Count != 2 || len(payload.Data) != 2 {
		t.Fatalf("expected 2 predictions, got %d", payload.Count)
	}
	if payload.Data[0].BodyMassG != 4100 || payload.Data[0].Model != ml.ModelTypeLinear {
		t.Fatalf("unexpected record: %+v", payload.Data[0])
	}

	n, err := store.CountPredictions(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if n != 3 {
		t.Fatalf("expected failed requests not to be logged, got %d rows", n)
	}
}

func TestHandlePredictionsWithoutStore(t *testing.T) {
	_, mux := newTestService(t, &fakeModel{}, nil)

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/predictions", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}
}

func TestHandlePredictionsBadLimit(t *testing.T) {
	store, err := db.Open(filepath.Join(t.TempDir(), "predictions.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	_, mux := newTestService(t, &fakeModel{}, store)

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/predictions?limit=many", nil))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}
