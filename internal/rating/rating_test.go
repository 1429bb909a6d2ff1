package rating

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keagan/emotionplayer/internal/results"
	"github.com/keagan/emotionplayer/internal/tensor"
)

func TestLabel(t *testing.T) {
	tests := []struct {
		score float64
		want  string
	}{
		{0.0, G},
		{0.05, G},
		{0.0796, PG},
		{0.15, PG},
		{0.216, PG13},
		{0.3, PG13},
		{0.464, R},
		{0.9, R},
		{1.99, R},
		{2.0, Unsafe},
		{2.5, R},
	}
	for _, tt := range tests {
		got, ok := Label(tt.score)
		assert.True(t, ok)
		assert.Equal(t, tt.want, got, "score=%v", tt.score)
	}

	got, ok := Label(math.NaN())
	assert.False(t, ok)
	assert.Empty(t, got)
}

func newStore(t *testing.T) *results.Store {
	t.Helper()
	return results.NewStore(t.TempDir(), 2, 3)
}

func saveBoth(t *testing.T, s *results.Store, name string, filter *tensor.Predictions) {
	t.Helper()
	require.NoError(t, s.SavePositiveness(name, tensor.NewPredictions(filter.Count, 2), 1))
	require.NoError(t, s.SaveFilter(name, filter, 1))
}

func TestClassifyMissingSkipsScorer(t *testing.T) {
	s := newStore(t)
	called := false
	scorer := ScorerFunc(func(context.Context, string, string) (float64, error) {
		called = true
		return 0, nil
	})
	c := New(zerolog.Nop(), s, scorer, PolicySAMP)

	assert.Equal(t, Missing, c.Classify(context.Background(), "movie").Status)

	// only the positiveness file
	require.NoError(t, s.SavePositiveness("movie", tensor.NewPredictions(1, 2), 1))
	assert.Equal(t, Missing, c.Classify(context.Background(), "movie").Status)
	assert.False(t, called)
}

func TestClassifyRated(t *testing.T) {
	s := newStore(t)
	saveBoth(t, s, "movie", tensor.NewPredictions(3, 3))

	var gotEpp, gotEfp string
	scorer := ScorerFunc(func(_ context.Context, epp, efp string) (float64, error) {
		gotEpp, gotEfp = epp, efp
		return 0.3, nil
	})

	out := New(zerolog.Nop(), s, scorer, PolicySAMP).Classify(context.Background(), "movie")
	assert.Equal(t, Rated, out.Status)
	assert.Equal(t, PG13, out.Rating)
	assert.Equal(t, 0.3, out.Score)
	assert.Equal(t, s.PositivenessPath("movie"), gotEpp)
	assert.Equal(t, s.FilterPath("movie"), gotEfp)
}

func TestClassifyFailures(t *testing.T) {
	s := newStore(t)
	saveBoth(t, s, "movie", tensor.NewPredictions(3, 3))

	nan := ScorerFunc(func(context.Context, string, string) (float64, error) { return math.NaN(), nil })
	out := New(zerolog.Nop(), s, nan, PolicySAMP).Classify(context.Background(), "movie")
	assert.Equal(t, Failed, out.Status)
	assert.Empty(t, out.Rating)

	broken := ScorerFunc(func(context.Context, string, string) (float64, error) { return 0, errors.New("boom") })
	out = New(zerolog.Nop(), s, broken, PolicySAMP).Classify(context.Background(), "movie")
	assert.Equal(t, Failed, out.Status)
	assert.Error(t, out.Err)

	out = New(zerolog.Nop(), s, nil, PolicySAMP).Classify(context.Background(), "movie")
	assert.Equal(t, Failed, out.Status)
}

func TestClassifyAggregatePolicy(t *testing.T) {
	s := newStore(t)
	filter := tensor.NewPredictions(4, 3)
	for i := 0; i < 4; i++ {
		filter.Set(i, 0, 1)
	}
	saveBoth(t, s, "clean", filter)

	out := New(zerolog.Nop(), s, nil, PolicyAggregate).Classify(context.Background(), "clean")
	assert.Equal(t, Rated, out.Status)
	assert.Equal(t, G, out.Rating)
}

func rows(vals ...[3]float32) *tensor.Predictions {
	p := tensor.NewPredictions(len(vals), 3)
	for i, v := range vals {
		copy(p.Row(i), v[:])
	}
	return p
}

func TestAggregateLabel(t *testing.T) {
	dark := [3]float32{-1, -1, -1}

	tests := []struct {
		name  string
		preds *tensor.Predictions
		want  string
	}{
		{"clean", rows([3]float32{1, 0, 0}, [3]float32{1, 0, 0}), G},
		{"mild", rows([3]float32{0.95, 0.03, 0.02}, [3]float32{0.95, 0.03, 0.02}), PG},
		{"moderate", rows([3]float32{0.85, 0.1, 0.05}, [3]float32{0.85, 0.1, 0.05}), PG13},
		{"heavy", rows([3]float32{0.7, 0.2, 0.1}, [3]float32{0.7, 0.2, 0.1}), R},
		{"explicit", rows([3]float32{0.4, 0.6, 0}, [3]float32{0.5, 0.5, 0}), Porn},
		{"gore", rows([3]float32{0.5, 0, 0.5}), Gore},
		{"mixed", rows([3]float32{0.4, 0.3, 0.3}), NC17},
		{"dark frames ignored", rows(dark, [3]float32{1, 0, 0}, dark), G},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := AggregateLabel(tt.preds)
			require.True(t, ok)
			assert.Equal(t, tt.want, got)
		})
	}

	_, ok := AggregateLabel(rows(dark, dark))
	assert.False(t, ok)
	_, ok = AggregateLabel(tensor.NewPredictions(2, 2))
	assert.False(t, ok)
}

func TestFeatures(t *testing.T) {
	pos := tensor.NewPredictions(2, 2)
	pos.Set(0, 0, 1)
	pos.Set(1, 0, 0)
	pos.Set(0, 1, 0.5)
	pos.Set(1, 1, 0.5)

	filter := rows([3]float32{-1, -1, -1}, [3]float32{0.2, 0.4, 0.6})

	f := Features(pos, filter)
	require.Len(t, f, 11)
	assert.InDelta(t, 0.5, f[0], 1e-6)  // positiveness class 0 mean
	assert.InDelta(t, 0.5, f[1], 1e-6)  // and stddev
	assert.InDelta(t, 0.5, f[2], 1e-6)  // class 1 mean
	assert.InDelta(t, 0.0, f[3], 1e-6)  // class 1 stddev
	assert.InDelta(t, 0.2, f[4], 1e-6)  // dark row excluded
	assert.InDelta(t, 0.6, f[8], 1e-6)  // gore mean
	assert.InDelta(t, 0.5, f[10], 1e-6) // dark fraction
}
