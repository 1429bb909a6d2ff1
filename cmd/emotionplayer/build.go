package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/keagan/emotionplayer/internal/ai"
	"github.com/keagan/emotionplayer/internal/config"
	"github.com/keagan/emotionplayer/internal/ffmpeg"
	"github.com/keagan/emotionplayer/internal/pipeline"
	"github.com/keagan/emotionplayer/internal/rating"
	"github.com/keagan/emotionplayer/internal/results"
	"github.com/keagan/emotionplayer/internal/sampler"
)

func newStore(cfg *config.Config) *results.Store {
	return results.NewStore(cfg.OutputDir, cfg.Positiveness.Classes, cfg.Filter.Classes)
}

func newOpener(cfg *config.Config) (sampler.Opener, error) {
	if cfg.Decoder == "gocv" {
		return gocvOpener()
	}

	exec, err := ffmpeg.New(log.Logger, ffmpeg.Options{
		FFmpegPath:  cfg.FFmpeg.BinaryPath,
		FFprobePath: cfg.FFmpeg.ProbePath,
		Threads:     cfg.FFmpeg.Threads,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize ffmpeg: %w", err)
	}

	return sampler.OpenerFunc(func(ctx context.Context, path string) (sampler.Capture, error) {
		c, err := exec.OpenCapture(ctx, path)
		if err != nil {
			return nil, err
		}
		return c, nil
	}), nil
}

func passOptions(p config.PassConfig) (sampler.Options, error) {
	order, err := sampler.ParseChannelOrder(p.ChannelOrder)
	if err != nil {
		return sampler.Options{}, err
	}
	norm, err := sampler.ParseNormalization(p.Normalization)
	if err != nil {
		return sampler.Options{}, err
	}
	return sampler.Options{
		Width:         p.Width,
		Height:        p.Height,
		Order:         order,
		Normalization: norm,
	}, nil
}

func newPass(cfg *config.Config, name string, p config.PassConfig) (pipeline.Pass, error) {
	opts, err := passOptions(p)
	if err != nil {
		return pipeline.Pass{}, fmt.Errorf("%s: %w", name, err)
	}

	engine, err := ai.NewONNXEngine(log.Logger, ai.ONNXConfig{
		ModelPath:   p.ModelPath,
		LibraryPath: cfg.ONNXLibrary,
		InputName:   p.InputName,
		OutputName:  p.OutputName,
		Width:       p.Width,
		Height:      p.Height,
		Classes:     p.Classes,
	})
	if err != nil {
		return pipeline.Pass{}, fmt.Errorf("%s: %w", name, err)
	}

	return pipeline.Pass{Name: name, Options: opts, Engine: engine}, nil
}

// buildClassifier returns the classifier for the configured policy and a
// function releasing the rating model, if one was loaded.
func buildClassifier(cfg *config.Config, store *results.Store) (*rating.Classifier, func() error, error) {
	noop := func() error { return nil }
	if cfg.Rating.Policy == config.PolicyAggregate {
		return rating.New(log.Logger, store, nil, rating.PolicyAggregate), noop, nil
	}

	scorer, err := rating.NewONNXScorer(log.Logger, rating.ONNXConfig{
		ModelPath:           cfg.Rating.ModelPath,
		LibraryPath:         cfg.ONNXLibrary,
		InputName:           cfg.Rating.InputName,
		OutputName:          cfg.Rating.OutputName,
		PositivenessClasses: cfg.Positiveness.Classes,
		FilterClasses:       cfg.Filter.Classes,
	})
	if err != nil {
		return nil, noop, fmt.Errorf("rating model: %w", err)
	}
	return rating.New(log.Logger, store, scorer, rating.PolicySAMP), scorer.Close, nil
}

// buildPipeline wires a pipeline from configuration. The returned cleanup
// releases every model.
func buildPipeline(cfg *config.Config) (*pipeline.Pipeline, func(), error) {
	opener, err := newOpener(cfg)
	if err != nil {
		return nil, nil, err
	}

	var closers []func() error
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](); err != nil {
				log.Warn().Err(err).Msg("cleanup failed")
			}
		}
	}

	pos, err := newPass(cfg, "Positiveness", cfg.Positiveness)
	if err != nil {
		return nil, nil, err
	}
	closers = append(closers, pos.Engine.Close)

	filter, err := newPass(cfg, "Filter", cfg.Filter.PassConfig)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	closers = append(closers, filter.Engine.Close)

	store := newStore(cfg)
	classifier, closeScorer, err := buildClassifier(cfg, store)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	closers = append(closers, closeScorer)

	pipe, err := pipeline.New(log.Logger, pipeline.Deps{
		Sampler:       sampler.New(log.Logger, opener),
		Dispatcher:    ai.NewDispatcher(log.Logger, cfg.CoreUsage, cfg.PollInterval),
		Store:         store,
		Classifier:    classifier,
		Positiveness:  pos,
		Filter:        filter,
		DarkThreshold: cfg.Filter.DarkThreshold,
	})
	if err != nil {
		cleanup()
		return nil, nil, err
	}

	return pipe, cleanup, nil
}

// loadStored fills session with every video that has a positiveness file
// in the output directory.
func loadStored(ctx context.Context, cfg *config.Config, session *pipeline.Session) error {
	store := newStore(cfg)
	matches, err := filepath.Glob(filepath.Join(store.Dir, "*"+results.PositivenessExt))
	if err != nil {
		return err
	}

	classifier, closeScorer, err := buildClassifier(cfg, store)
	if err != nil {
		log.Warn().Err(err).Msg("ratings unavailable")
		classifier = nil
	}
	defer closeScorer()

	for _, path := range matches {
		name := strings.TrimSuffix(filepath.Base(path), results.PositivenessExt)
		res, err := loadResult(ctx, store, classifier, name)
		if err != nil {
			log.Warn().Err(err).Str("video", name).Msg("skipping stored result")
			continue
		}
		session.Add(res)
	}

	log.Info().Int("videos", len(session.Results())).Str("dir", store.Dir).Msg("loaded stored results")
	return nil
}

func loadResult(ctx context.Context, store *results.Store, classifier *rating.Classifier, name string) (*pipeline.Result, error) {
	pos, interval, err := store.LoadPositiveness(name)
	if err != nil {
		return nil, err
	}
	res := &pipeline.Result{
		Name:                 name,
		Positiveness:         pos,
		PositivenessInterval: interval,
		State:                pipeline.Done,
		Outcome:              rating.Outcome{Status: rating.Missing},
	}

	filter, filterInterval, err := store.LoadFilter(name)
	switch {
	case err == nil:
		res.Filter, res.FilterInterval = filter, filterInterval
	case errors.Is(err, os.ErrNotExist):
	default:
		res.Errors = append(res.Errors, err)
	}

	if classifier != nil {
		res.Outcome = classifier.Classify(ctx, name)
	}
	return res, nil
}

// serveWhileProcessing runs the playlist in the background while serve
// runs. Once serve returns the session is cancelled and awaited, and only
// then is cleanup called, so engines are never closed under a live pass.
func serveWhileProcessing(ctx context.Context, session *pipeline.Session, paths []string, serve func(context.Context) error, cleanup func()) error {
	defer cleanup()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var g errgroup.Group
	g.Go(func() error {
		if err := session.Run(ctx, paths, pipeline.Callbacks{}); err != nil && ctx.Err() == nil {
			log.Warn().Err(err).Msg("session stopped")
		}
		return nil
	})

	err := serve(ctx)
	cancel()
	_ = g.Wait()
	return err
}
