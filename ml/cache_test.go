package ml

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingModel struct {
	inner Model
	calls int
	rows  int
}

func (c *countingModel) Predict(ctx context.Context, rows []Row) ([]float64, error) {
	c.calls++
	c.rows += len(rows)
	return c.inner.Predict(ctx, rows)
}

func (c *countingModel) Close() error { return c.inner.Close() }

type observerCounts struct {
	hits, misses int
}

func (o *observerCounts) CacheHit()  { o.hits++ }
func (o *observerCounts) CacheMiss() { o.misses++ }

func TestCachedModelServesRepeatsFromCache(t *testing.T) {
	inner := &countingModel{inner: loadReferenceModel(t)}
	cached, err := NewCachedModel(inner, 16)
	require.NoError(t, err)
	observer := &observerCounts{}
	cached.SetObserver(observer)

	row := Row{"flipper_length_mm": 200.0, "species": "Chinstrap", "sex": "Female"}
	for i := 0; i < 3; i++ {
		got, err := cached.Predict(context.Background(), []Row{row})
		require.NoError(t, err)
		assert.Equal(t, []float64{goldenChinstrapFemale200}, got)
	}

	assert.Equal(t, 1, inner.calls)
	assert.Equal(t, 2, observer.hits)
	assert.Equal(t, 1, observer.misses)
	assert.Equal(t, 1, cached.Len())
}

func TestCachedModelOnlyForwardsMisses(t *testing.T) {
	inner := &countingModel{inner: loadReferenceModel(t)}
	cached, err := NewCachedModel(inner, 16)
	require.NoError(t, err)

	warm := Row{"flipper_length_mm": 200.0, "species": "Chinstrap", "sex": "Female"}
	cold := Row{"flipper_length_mm": 160.0, "species": "Adelie", "sex": "Male"}

	_, err = cached.Predict(context.Background(), []Row{warm})
	require.NoError(t, err)

	got, err := cached.Predict(context.Background(), []Row{cold, warm})
	require.NoError(t, err)
	assert.Equal(t, []float64{goldenAdelieMale160, goldenChinstrapFemale200}, got)
	assert.Equal(t, 2, inner.rows)
}

func TestCachedModelDoesNotCacheErrors(t *testing.T) {
	inner := &countingModel{inner: loadReferenceModel(t)}
	cached, err := NewCachedModel(inner, 16)
	require.NoError(t, err)

	bad := Row{"flipper_length_mm": 200.0, "species": "Unknown", "sex": "Female"}
	for i := 0; i < 2; i++ {
		_, err := cached.Predict(context.Background(), []Row{bad})
		assert.True(t, errors.Is(err, ErrUnknownCategory))
	}
	assert.Equal(t, 2, inner.calls)
	assert.Equal(t, 0, cached.Len())
}

func TestCachedModelPurge(t *testing.T) {
	cached, err := NewCachedModel(loadReferenceModel(t), 4)
	require.NoError(t, err)

	_, err = cached.Predict(context.Background(), []Row{{"flipper_length_mm": 200.0, "species": "Gentoo", "sex": "Male"}})
	require.NoError(t, err)
	require.Equal(t, 1, cached.Len())

	cached.Purge()
	assert.Equal(t, 0, cached.Len())
}

func TestNewCachedModelRejectsBadInput(t *testing.T) {
	_, err := NewCachedModel(nil, 4)
	assert.ErrorIs(t, err, ErrNoModel)

	_, err = NewCachedModel(&fakeModel{}, 0)
	assert.Error(t, err)
}

func TestCacheKeyIgnoresInsertionOrder(t *testing.T) {
	a := Row{}
	a["sex"] = "Male"
	a["species"] = "Adelie"
	a["flipper_length_mm"] = 181.0

	b := Row{"flipper_length_mm": 181.0, "species": "Adelie", "sex": "Male"}

	ka, err := cacheKey(a)
	require.NoError(t, err)
	kb, err := cacheKey(b)
	require.NoError(t, err)
	assert.Equal(t, ka, kb)
}
