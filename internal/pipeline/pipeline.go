package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/keagan/emotionplayer/internal/ai"
	"github.com/keagan/emotionplayer/internal/darkframe"
	"github.com/keagan/emotionplayer/internal/metrics"
	"github.com/keagan/emotionplayer/internal/rating"
	"github.com/keagan/emotionplayer/internal/results"
	"github.com/keagan/emotionplayer/internal/sampler"
	"github.com/keagan/emotionplayer/internal/tensor"
	"github.com/keagan/emotionplayer/pkg/util"
)

// Deps are the collaborators a Pipeline drives.
type Deps struct {
	Sampler      *sampler.Sampler
	Dispatcher   *ai.Dispatcher
	Store        *results.Store
	Classifier   *rating.Classifier
	Positiveness Pass
	Filter       Pass
	// DarkThreshold is the brightness below which filter frames are
	// masked. Zero turns masking off.
	DarkThreshold float64
}

// Pipeline runs the positiveness and filter passes over a video, stores
// both prediction files and classifies the result.
type Pipeline struct {
	logger zerolog.Logger
	deps   Deps
}

// New creates a new pipeline instance
func New(logger zerolog.Logger, deps Deps) (*Pipeline, error) {
	if deps.Sampler == nil || deps.Dispatcher == nil || deps.Store == nil || deps.Classifier == nil {
		return nil, fmt.Errorf("pipeline: sampler, dispatcher, store and classifier are required")
	}
	if deps.Positiveness.Engine == nil || deps.Filter.Engine == nil {
		return nil, fmt.Errorf("pipeline: both passes need an engine")
	}
	if deps.Positiveness.Name == "" {
		deps.Positiveness.Name = "Positiveness"
	}
	if deps.Filter.Name == "" {
		deps.Filter.Name = "Filter"
	}
	if deps.DarkThreshold < 0 {
		return nil, fmt.Errorf("pipeline: dark threshold must not be negative, got %v", deps.DarkThreshold)
	}
	if deps.DarkThreshold > 0 && deps.Filter.Options.Normalization != sampler.MinMax {
		return nil, fmt.Errorf("pipeline: dark frame masking needs minmax filter frames, got %s", deps.Filter.Options.Normalization)
	}
	deps.Positiveness.Options.Label = deps.Positiveness.Name
	deps.Filter.Options.Label = deps.Filter.Name

	return &Pipeline{
		logger: logger.With().Str("component", "pipeline").Logger(),
		deps:   deps,
	}, nil
}

// Close releases both engines.
func (p *Pipeline) Close() error {
	return errors.Join(p.deps.Positiveness.Engine.Close(), p.deps.Filter.Engine.Close())
}

// run tracks one ProcessVideo call.
type run struct {
	p   *Pipeline
	cb  Callbacks
	res *Result
}

func (r *run) setState(s State) {
	r.res.State = s
	r.res.StateTimes[s] = time.Now()
	r.p.logger.Debug().Str("video", r.res.Name).Stringer("state", s).Msg("state changed")
	if r.cb.StateChanged != nil {
		r.cb.StateChanged(r.res.Name, s)
	}
}

func (r *run) progress(stage string) func(int) {
	return func(percent int) {
		if r.cb.Progress != nil {
			r.cb.Progress(percent, stage, r.res.Name)
		}
	}
}

func (r *run) fail(pass Pass, ext string, err error) {
	r.res.Errors = append(r.res.Errors, fmt.Errorf("%s pass: %w", pass.Name, err))
	r.p.logger.Warn().Err(err).Str("video", r.res.Name).Str("pass", pass.Name).Msg("pass skipped")
	if err := r.p.deps.Store.Remove(r.res.Name, ext); err != nil {
		r.p.logger.Warn().Err(err).Str("video", r.res.Name).Msg("failed to remove stale predictions")
	}
}

func observe(pass, stage string, start time.Time) {
	metrics.StageDuration.WithLabelValues(pass, stage).Observe(time.Since(start).Seconds())
}

// ProcessVideo runs both passes and the classifier over path. Per-pass
// failures are recorded on the Result and do not stop the video; only
// cancellation is returned as an error.
func (p *Pipeline) ProcessVideo(ctx context.Context, path string, cb Callbacks) (*Result, error) {
	if path == "" {
		return nil, fmt.Errorf("input path cannot be empty")
	}

	r := &run{p: p, cb: cb, res: &Result{
		Name:       util.BaseName(path),
		Path:       path,
		StateTimes: make(map[State]time.Time),
		StartedAt:  time.Now(),
	}}
	res := r.res

	p.logger.Info().Str("video", path).Msg("processing video")
	r.setState(Idle)

	if err := p.positivenessPass(ctx, r); err != nil {
		return p.cancelled(res, err)
	}
	if err := p.filterPass(ctx, r); err != nil {
		return p.cancelled(res, err)
	}

	if err := ctx.Err(); err != nil {
		return p.cancelled(res, err)
	}
	r.setState(Classifying)
	start := time.Now()
	res.Outcome = p.deps.Classifier.Classify(ctx, res.Name)
	observe("rating", "classify", start)
	if res.Outcome.Status == rating.Rated && cb.InterpretedResult != nil {
		cb.InterpretedResult(res.Outcome.Rating)
	}

	r.setState(Done)
	res.FinishedAt = time.Now()
	metrics.VideosProcessedTotal.WithLabelValues(res.Outcome.Status.String()).Inc()

	p.logger.Info().
		Str("video", path).
		Str("rating", res.Outcome.Rating).
		Stringer("status", res.Outcome.Status).
		Int("errors", len(res.Errors)).
		Dur("took", res.FinishedAt.Sub(res.StartedAt)).
		Msg("video processed")

	return res, nil
}

func (p *Pipeline) cancelled(res *Result, err error) (*Result, error) {
	res.FinishedAt = time.Now()
	metrics.VideosProcessedTotal.WithLabelValues("cancelled").Inc()
	p.logger.Warn().Str("video", res.Path).Stringer("state", res.State).Msg("processing cancelled")
	return res, err
}

// sampleAndInfer returns nil predictions when the pass was skipped. The
// returned error is non-nil only on cancellation. frames are handed to keep
// when it is non-nil and released otherwise.
func (p *Pipeline) sampleAndInfer(ctx context.Context, r *run, pass Pass, ext string, sampling, inferring State, keep func(*tensor.Frames, *tensor.Predictions)) (*tensor.Predictions, int, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}

	r.setState(sampling)
	start := time.Now()
	frames, interval, err := p.deps.Sampler.Sample(ctx, r.res.Path, pass.Options)
	observe(pass.Name, "sample", start)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, 0, ctxErr
		}
		r.fail(pass, ext, err)
		return nil, 0, nil
	}
	defer frames.Release()

	r.setState(inferring)
	start = time.Now()
	p.logger.Info().Str("video", r.res.Name).Str("pass", pass.Name).Int("frames", frames.Count).Msg("inference started")
	preds, err := p.deps.Dispatcher.Run(ctx, frames, pass.Engine, r.progress(pass.Name))
	observe(pass.Name, "infer", start)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, 0, ctxErr
		}
		r.fail(pass, ext, err)
		return nil, 0, nil
	}
	p.logger.Info().Str("video", r.res.Name).Str("pass", pass.Name).Dur("took", time.Since(start)).Msg("inference finished")

	if keep != nil {
		keep(frames, preds)
	}
	return preds, interval, nil
}

func (p *Pipeline) positivenessPass(ctx context.Context, r *run) error {
	pass := p.deps.Positiveness
	preds, interval, err := p.sampleAndInfer(ctx, r, pass, results.PositivenessExt, SamplingPositiveness, InferringPositiveness, nil)
	if err != nil || preds == nil {
		return err
	}

	r.setState(SerializingPositiveness)
	if err := p.deps.Store.SavePositiveness(r.res.Name, preds, interval); err != nil {
		r.fail(pass, results.PositivenessExt, err)
		return nil
	}

	r.res.Positiveness = preds
	r.res.PositivenessInterval = interval
	if r.cb.PositivenessResult != nil {
		r.cb.PositivenessResult(preds, interval)
	}
	return nil
}

func (p *Pipeline) filterPass(ctx context.Context, r *run) error {
	pass := p.deps.Filter
	var mask func(*tensor.Frames, *tensor.Predictions)
	if p.deps.DarkThreshold > 0 {
		mask = func(frames *tensor.Frames, preds *tensor.Predictions) {
			r.setState(MaskingDark)
			r.res.DarkFrames = darkframe.Mask(frames, preds, p.deps.DarkThreshold)
			metrics.DarkFramesTotal.Add(float64(r.res.DarkFrames))
			p.logger.Debug().Str("video", r.res.Name).Int("dark", r.res.DarkFrames).Msg("dark frames masked")
		}
	}

	preds, interval, err := p.sampleAndInfer(ctx, r, pass, results.FilterExt, SamplingFilter, InferringFilter, mask)
	if err != nil || preds == nil {
		return err
	}

	r.setState(SerializingFilter)
	if err := p.deps.Store.SaveFilter(r.res.Name, preds, interval); err != nil {
		r.fail(pass, results.FilterExt, err)
		return nil
	}

	r.res.Filter = preds
	r.res.FilterInterval = interval
	return nil
}
