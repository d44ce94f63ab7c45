// Package db stores the prediction log in SQLite.
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"penguinoracle/penguin"
)

const (
	DefaultLimit = 20
	MaxLimit     = 500
)

// Prediction is one logged prediction.
type Prediction struct {
	ID              int64     `json:"id"`
	FlipperLengthMM float64   `json:"flipper_length_mm"`
	Species         string    `json:"species"`
	Sex             string    `json:"sex"`
	BodyMassG       float64   `json:"body_mass_g"`
	Model           string    `json:"model"`
	CreatedAt       time.Time `json:"created_at"`
}

// NewPrediction builds a log record stamped with the current time.
func NewPrediction(fv penguin.FeatureVector, bodyMass float64, model string) Prediction {
	return Prediction{
		FlipperLengthMM: fv.FlipperLengthMM,
		Species:         fv.Species,
		Sex:             fv.Sex,
		BodyMassG:       bodyMass,
		Model:           model,
		CreatedAt:       time.Now().UTC(),
	}
}

// ModelEvent records a model load or reload attempt.
type ModelEvent struct {
	ModelType string    `json:"model_type"`
	Path      string    `json:"path"`
	OK        bool      `json:"ok"`
	Error     string    `json:"error,omitempty"`
	LoadedAt  time.Time `json:"loaded_at"`
}

type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and ensures the schema.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("database path is required")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create database dir: %w", err)
		}
	}

	database, err := sql.Open("sqlite3", path+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database failed: %w", err)
	}
	// One connection keeps :memory: databases shared and avoids
	// SQLITE_BUSY on concurrent writes.
	database.SetMaxOpenConns(1)

	query := `
    CREATE TABLE IF NOT EXISTS predictions (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        flipper_length_mm REAL NOT NULL,
        species TEXT NOT NULL,
        sex TEXT NOT NULL,
        body_mass_g REAL NOT NULL,
        model TEXT NOT NULL,
        created_at DATETIME NOT NULL
    );
    CREATE INDEX IF NOT EXISTS idx_predictions_created_at ON predictions(created_at);
    CREATE TABLE IF NOT EXISTS model_events (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        model_type TEXT NOT NULL,
        path TEXT,
        ok INTEGER NOT NULL,
        error TEXT,
        loaded_at DATETIME NOT NULL
    );
    `
	if _, err := database.Exec(query); err != nil {
		database.Close()
		return nil, fmt.Errorf("create tables failed: %w", err)
	}

	return &Store{db: database}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// SavePrediction inserts rec and returns its id.
func (s *Store) SavePrediction(ctx context.Context, rec Prediction) (int64, error) {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	res, err := s.db.ExecContext(ctx, `
        INSERT INTO predictions (flipper_length_mm, species, sex, body_mass_g, model, created_at)
        VALUES (?, ?, ?, ?, ?, ?)`,
		rec.FlipperLengthMM, rec.Species, rec.Sex, rec.BodyMassG, rec.Model, rec.CreatedAt)
	if err != nil {
		return 0, fmt.Errorf("save prediction: %w", err)
	}
	return res.LastInsertId()
}

// RecentPredictions returns up to limit predictions, newest first.
func (s *Store) RecentPredictions(ctx context.Context, limit int) ([]Prediction, error) {
	limit = clampLimit(limit)

	rows, err := s.db.QueryContext(ctx, `
        SELECT id, flipper_length_mm, species, sex, body_mass_g, model, created_at
        FROM predictions
        ORDER BY created_at DESC, id DESC
        LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query predictions: %w", err)
	}
	defer rows.Close()

	predictions := make([]Prediction, 0)
	for rows.Next() {
		var p Prediction
		if err := rows.Scan(&p.ID, &p.FlipperLengthMM, &p.Species, &p.Sex, &p.BodyMassG, &p.Model, &p.CreatedAt); err != nil {
			return nil, err
		}
		predictions = append(predictions, p)
	}
	return predictions, rows.Err()
}

func (s *Store) CountPredictions(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM predictions`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count predictions: %w", err)
	}
	return n, nil
}

func (s *Store) SaveModelEvent(ctx context.Context, ev ModelEvent) error {
	if ev.LoadedAt.IsZero() {
		ev.LoadedAt = time.Now().UTC()
	}
	var errText sql.NullString
	if ev.Error != "" {
		errText = sql.NullString{String: ev.Error, Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `
        INSERT INTO model_events (model_type, path, ok, error, loaded_at)
        VALUES (?, ?, ?, ?, ?)`,
		ev.ModelType, ev.Path, ev.OK, errText, ev.LoadedAt)
	if err != nil {
		return fmt.Errorf("save model event: %w", err)
	}
	return nil
}

func (s *Store) ModelEvents(ctx context.Context, limit int) ([]ModelEvent, error) {
	limit = clampLimit(limit)

	rows, err := s.db.QueryContext(ctx, `
        SELECT model_type, path, ok, error, loaded_at
        FROM model_events
        ORDER BY loaded_at DESC, id DESC
        LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query model events: %w", err)
	}
	defer rows.Close()

	events := make([]ModelEvent, 0)
	for rows.Next() {
		var ev ModelEvent
		var path, errText sql.NullString
		if err := rows.Scan(&ev.ModelType, &path, &ev.OK, &errText, &ev.LoadedAt); err != nil {
			return nil, err
		}
		ev.Path = path.String
		ev.Error = errText.String
		events = append(events, ev)
	}
	return events, rows.Err()
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	if limit > MaxLimit {
		return MaxLimit
	}
	return limit
}
