package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"penguinoracle/db"
	"penguinoracle/ml"
	"penguinoracle/monitoring"
	"penguinoracle/penguin"
)

// Service wires the prediction endpoints to a model and its side
// channels. Store, Hub and Metrics are optional.
type Service struct {
	predictor *ml.Predictor
	model     ml.Model
	modelType string
	store     *db.Store
	hub       *monitoring.Hub
	metrics   *monitoring.Metrics
	logger    *zap.Logger
}

type ServiceConfig struct {
	Model     ml.Model
	ModelType string
	Store     *db.Store
	Hub       *monitoring.Hub
	Metrics   *monitoring.Metrics
	Logger    *zap.Logger
}

func NewService(cfg ServiceConfig) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		predictor: ml.NewPredictor(cfg.Model, logger),
		model:     cfg.Model,
		modelType: cfg.ModelType,
		store:     cfg.Store,
		hub:       cfg.Hub,
		metrics:   cfg.Metrics,
		logger:    logger,
	}
}

func (s *Service) RegisterHandlers(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("POST /api/predict", s.handlePredict)
	mux.HandleFunc("GET /api/predictions", s.handlePredictions)
	if s.hub != nil {
		mux.HandleFunc("GET /api/ws/predictions", s.hub.HandleWebSocket)
	}
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics.Handler())
	}
}

type predictRequest struct {
	FlipperLengthMM *float64 `json:"flipper_length_mm"`
	Species         *string  `json:"species"`
	Sex             *string  `json:"sex"`
}

type predictResponse struct {
	FlipperLengthMM float64 `json:"flipper_length_mm"`
	Species         string  `json:"species"`
	Sex             string  `json:"sex"`
	BodyMassG       float64 `json:"body_mass_g"`
	ID              int64   `json:"id,omitempty"`
}

func (s *Service) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.model == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "model": s.modelType})
}

func (s *Service) handlePredict(w http.ResponseWriter, r *http.Request) {
	fv, err := parseFeatureVector(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	fv = fv.Normalized()

	start := time.Now()
	bodyMass, err := s.predictor.BodyMass(r.Context(), fv)
	elapsed := time.Since(start)
	if err != nil {
		status, outcome := classifyError(err)
		s.observe(outcome, elapsed)
		s.logger.Warn("prediction failed",
			zap.String("request_id", GetRequestID(r.Context())),
			zap.Stringer("input", fv),
			zap.Error(err))
		writeError(w, status, err.Error())
		return
	}
	s.observe(monitoring.OutcomeOK, elapsed)

	resp := predictResponse{
		FlipperLengthMM: fv.FlipperLengthMM,
		Species:         fv.Species,
		Sex:             fv.Sex,
		BodyMassG:       bodyMass,
	}

	if s.store != nil {
		id, err := s.store.SavePrediction(r.Context(), db.NewPrediction(fv, bodyMass, s.modelType))
		if err != nil {
			s.logger.Warn("failed to log prediction", zap.Error(err))
		} else {
			resp.ID = id
		}
	}
	if s.hub != nil {
		if err := s.hub.Publish(monitoring.PredictionEvent, resp); err != nil {
			s.logger.Warn("failed to publish prediction", zap.Error(err))
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Service) handlePredictions(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, http.StatusServiceUnavailable, "prediction log is disabled")
		return
	}

	limit := db.DefaultLimit
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		l, err := strconv.Atoi(limitStr)
		if err != nil {
			writeError(w, http.StatusBadRequest, "limit must be an integer")
			return
		}
		limit = l
	}

	predictions, err := s.store.RecentPredictions(r.Context(), limit)
	if err != nil {
		s.logger.Error("failed to query predictions", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to query predictions")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"count": len(predictions),
		"data":  predictions,
	})
}

func (s *Service) observe(outcome string, elapsed time.Duration) {
	if s.metrics != nil {
		s.metrics.ObservePrediction(outcome, elapsed)
	}
}

func classifyError(err error) (int, string) {
	switch {
	case errors.Is(err, ml.ErrNoModel):
		return http.StatusServiceUnavailable, monitoring.OutcomeError
	case errors.Is(err, ml.ErrSchemaMismatch):
		return http.StatusUnprocessableEntity, monitoring.OutcomeSchemaMismatch
	default:
		return http.StatusInternalServerError, monitoring.OutcomeError
	}
}

// parseFeatureVector accepts a JSON body or form fields.
func parseFeatureVector(r *http.Request) (penguin.FeatureVector, error) {
	var fv penguin.FeatureVector

	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		var req predictRequest
		decoder := json.NewDecoder(r.Body)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&req); err != nil {
			return fv, fmt.Errorf("invalid JSON: %v", err)
		}
		switch {
		case req.FlipperLengthMM == nil:
			return fv, fmt.Errorf("%s is required", penguin.FieldFlipperLength)
		case req.Species == nil:
			return fv, fmt.Errorf("%s is required", penguin.FieldSpecies)
		case req.Sex == nil:
			return fv, fmt.Errorf("%s is required", penguin.FieldSex)
		}
		fv.FlipperLengthMM = *req.FlipperLengthMM
		fv.Species = *req.Species
		fv.Sex = *req.Sex
		return fv, nil
	}

	if err := r.ParseForm(); err != nil {
		return fv, fmt.Errorf("invalid form: %v", err)
	}
	for _, field := range []string{penguin.FieldFlipperLength, penguin.FieldSpecies, penguin.FieldSex} {
		if r.PostForm.Get(field) == "" {
			return fv, fmt.Errorf("%s is required", field)
		}
	}
	length, err := strconv.ParseFloat(r.PostForm.Get(penguin.FieldFlipperLength), 64)
	if err != nil {
		return fv, fmt.Errorf("%s must be a number", penguin.FieldFlipperLength)
	}
	fv.FlipperLengthMM = length
	fv.Species = r.PostForm.Get(penguin.FieldSpecies)
	fv.Sex = r.PostForm.Get(penguin.FieldSex)
	return fv, nil
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
