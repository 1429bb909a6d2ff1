package main

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keagan/emotionplayer/internal/config"
	"github.com/keagan/emotionplayer/internal/pipeline"
	"github.com/keagan/emotionplayer/internal/rating"
	"github.com/keagan/emotionplayer/internal/sampler"
	"github.com/keagan/emotionplayer/internal/tensor"
)

func testCommand() (*cobra.Command, *bytes.Buffer) {
	var buf bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetOut(&buf)
	return cmd, &buf
}

func TestPassOptions(t *testing.T) {
	cfg := config.Default()

	opts, err := passOptions(cfg.Positiveness)
	require.NoError(t, err)
	assert.Equal(t, sampler.Options{Width: 227, Height: 227, Order: sampler.BGR, Normalization: sampler.ImageNetMean}, opts)

	opts, err = passOptions(cfg.Filter.PassConfig)
	require.NoError(t, err)
	assert.Equal(t, sampler.RGB, opts.Order)
	assert.Equal(t, sampler.MinMax, opts.Normalization)

	bad := cfg.Filter.PassConfig
	bad.ChannelOrder = "yuv"
	_, err = passOptions(bad)
	assert.Error(t, err)
}

func TestInspectFile(t *testing.T) {
	cfg := config.Default()
	cfg.OutputDir = t.TempDir()
	store := newStore(cfg)

	filter := tensor.NewPredictions(3, 3)
	copy(filter.Row(0), []float32{-1, -1, -1})
	copy(filter.Row(1), []float32{0.8, 0.1, 0.1})
	copy(filter.Row(2), []float32{0.6, 0.3, 0.1})
	require.NoError(t, store.SaveFilter("movie", filter, 2))

	cmd, out := testCommand()
	require.NoError(t, inspectFile(cmd, cfg, store.FilterPath("movie")))

	text := out.String()
	assert.Contains(t, text, "frames:   3")
	assert.Contains(t, text, "interval: 2s")
	assert.Contains(t, text, "dark:     1")
	assert.Contains(t, text, "class 0 mean: 0.7000")

	err := inspectFile(cmd, cfg, filepath.Join(cfg.OutputDir, "movie.txt"))
	assert.Error(t, err)
}

func TestLoadResult(t *testing.T) {
	cfg := config.Default()
	cfg.OutputDir = t.TempDir()
	store := newStore(cfg)

	pos := tensor.NewPredictions(2, 2)
	pos.Set(0, 0, 0.9)
	require.NoError(t, store.SavePositiveness("movie", pos, 1))

	res, err := loadResult(context.Background(), store, nil, "movie")
	require.NoError(t, err)
	assert.Equal(t, "movie", res.Name)
	assert.Equal(t, pipeline.Done, res.State)
	assert.Equal(t, rating.Missing, res.Outcome.Status)
	assert.Nil(t, res.Filter)
	assert.Empty(t, res.Errors)

	require.NoError(t, store.SaveFilter("movie", tensor.NewPredictions(2, 3), 1))
	classifier := rating.New(zerolog.Nop(), store, nil, rating.PolicyAggregate)
	res, err = loadResult(context.Background(), store, classifier, "movie")
	require.NoError(t, err)
	assert.NotNil(t, res.Filter)
	assert.Equal(t, rating.Rated, res.Outcome.Status)
}

func TestLoadStored(t *testing.T) {
	cfg := config.Default()
	cfg.OutputDir = t.TempDir()
	cfg.Rating.Policy = config.PolicyAggregate
	store := newStore(cfg)

	require.NoError(t, store.SavePositiveness("a", tensor.NewPredictions(1, 2), 1))
	require.NoError(t, store.SavePositiveness("b", tensor.NewPredictions(1, 2), 1))

	session := pipeline.NewSession(zerolog.Nop(), nil)
	require.NoError(t, loadStored(context.Background(), cfg, session))
	assert.Len(t, session.Results(), 2)
}

func TestPrintSummary(t *testing.T) {
	pos := tensor.NewPredictions(2, 2)
	pos.Set(0, 0, 0.9)

	cmd, out := testCommand()
	printSummary(cmd, []*pipeline.Result{
		{Name: "movie", Positiveness: pos, Outcome: rating.Outcome{Status: rating.Rated, Rating: rating.PG}},
		{Name: "broken", Outcome: rating.Outcome{Status: rating.Missing}},
	})

	text := out.String()
	assert.Contains(t, text, "VIDEO")
	assert.Contains(t, text, "movie")
	assert.Contains(t, text, "PG")
	assert.Contains(t, text, "missing")
}

// blockingProcessor holds every video until its context is cancelled.
type blockingProcessor struct {
	started  chan struct{}
	returned atomic.Bool
}

func (p *blockingProcessor) ProcessVideo(ctx context.Context, path string, _ pipeline.Callbacks) (*pipeline.Result, error) {
	close(p.started)
	<-ctx.Done()
	// still touching engines for a moment after cancellation
	time.Sleep(20 * time.Millisecond)
	p.returned.Store(true)
	return nil, ctx.Err()
}

func TestServeWhileProcessingWaitsBeforeCleanup(t *testing.T) {
	proc := &blockingProcessor{started: make(chan struct{})}
	session := pipeline.NewSession(zerolog.Nop(), proc)

	listenErr := errors.New("address already in use")
	var cleanedAfterReturn, cleaned bool

	err := serveWhileProcessing(context.Background(), session, []string{"movie.mp4"},
		func(context.Context) error {
			<-proc.started
			return listenErr
		},
		func() {
			cleaned = true
			cleanedAfterReturn = proc.returned.Load()
		})

	assert.ErrorIs(t, err, listenErr)
	assert.True(t, cleaned)
	assert.True(t, cleanedAfterReturn, "pipeline released while a video was still processing")
}

func TestServeWhileProcessingStopsOnCancel(t *testing.T) {
	proc := &blockingProcessor{started: make(chan struct{})}
	session := pipeline.NewSession(zerolog.Nop(), proc)
	ctx, cancel := context.WithCancel(context.Background())

	var cleanedAfterReturn bool
	err := serveWhileProcessing(ctx, session, []string{"movie.mp4"},
		func(ctx context.Context) error {
			<-proc.started
			cancel()
			<-ctx.Done()
			return nil
		},
		func() { cleanedAfterReturn = proc.returned.Load() })

	require.NoError(t, err)
	assert.True(t, cleanedAfterReturn)
}
