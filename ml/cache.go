package ml

import (
	"context"
	"encoding/json"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

// CacheObserver is notified of cache lookups.
type CacheObserver interface {
	CacheHit()
	CacheMiss()
}

// CachedModel memoises per-row predictions. The wrapped model must be
// deterministic.
type CachedModel struct {
	inner    Model
	cache    *lru.Cache[string, float64]
	observer CacheObserver
}

func NewCachedModel(inner Model, size int) (*CachedModel, error) {
	if inner == nil {
		return nil, ErrNoModel
	}
	cache, err := lru.New[string, float64](size)
	if err != nil {
		return nil, fmt.Errorf("create prediction cache: %w", err)
	}
	return &CachedModel{inner: inner, cache: cache}, nil
}

func (m *CachedModel) SetObserver(observer CacheObserver) {
	m.observer = observer
}

func (m *CachedModel) Predict(ctx context.Context, rows []Row) ([]float64, error) {
	predictions := make([]float64, len(rows))
	keys := make([]string, len(rows))
	missing := make([]int, 0, len(rows))

	for i, row := range rows {
		key, err := cacheKey(row)
		if err != nil {
			return nil, err
		}
		keys[i] = key
		if value, ok := m.cache.Get(key); ok {
			predictions[i] = value
			m.hit()
			continue
		}
		missing = append(missing, i)
		m.miss()
	}
	if len(missing) == 0 {
		return predictions, nil
	}

	missRows := make([]Row, len(missing))
	for i, idx := range missing {
		missRows[i] = rows[idx]
	}
	values, err := m.inner.Predict(ctx, missRows)
	if err != nil {
		return nil, err
	}
	if len(values) != len(missRows) {
		return nil, fmt.Errorf("%w: sent %d rows, got %d predictions",
			ErrPredictionShape, len(missRows), len(values))
	}
	for i, idx := range missing {
		predictions[idx] = values[i]
		m.cache.Add(keys[idx], values[i])
	}
	return predictions, nil
}

// Purge drops every cached prediction.
func (m *CachedModel) Purge() {
	m.cache.Purge()
}

func (m *CachedModel) Len() int {
	return m.cache.Len()
}

func (m *CachedModel) Close() error {
	m.cache.Purge()
	return m.inner.Close()
}

func (m *CachedModel) hit() {
	if m.observer != nil {
		m.observer.CacheHit()
	}
}

func (m *CachedModel) miss() {
	if m.observer != nil {
		m.observer.CacheMiss()
	}
}

// cacheKey relies on encoding/json emitting map keys in sorted order.
func cacheKey(row Row) (string, error) {
	key, err := json.Marshal(row)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrFeatureType, err)
	}
	return string(key), nil
}
