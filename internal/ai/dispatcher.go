package ai

import (
	"context"
	"fmt"
	"math"
	"runtime"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/keagan/emotionplayer/internal/metrics"
	"github.com/keagan/emotionplayer/internal/tensor"
)

const (
	DefaultCoreUsage    = 0.8
	DefaultPollInterval = 100 * time.Millisecond
)

// ThreadCount returns how many chunks a run of frames is split into.
func ThreadCount(cores int, fraction float64, frames int) int {
	n := int(math.Floor(float64(cores) * fraction))
	if n < 1 {
		n = 1
	}
	if n > frames {
		n = frames
	}
	return n
}

// ChunkBounds returns the frame range [start, end) of chunk t.
func ChunkBounds(t, frames, threads int) (int, int) {
	return (t * frames) / threads, ((t + 1) * frames) / threads
}

// Dispatcher splits a frame tensor into chunks and runs an engine over
// them in parallel, reporting progress while it waits.
type Dispatcher struct {
	Cores        int
	CoreUsage    float64
	PollInterval time.Duration

	logger zerolog.Logger
}

func NewDispatcher(logger zerolog.Logger, coreUsage float64, pollInterval time.Duration) *Dispatcher {
	return &Dispatcher{
		Cores:        runtime.NumCPU(),
		CoreUsage:    coreUsage,
		PollInterval: pollInterval,
		logger:       logger.With().Str("component", "dispatcher").Logger(),
	}
}

// Run infers every frame and returns the predictions. report receives
// percentages in [0, 100]; 100 is reported exactly once, last, unless the
// run is cancelled. A chunk whose engine call fails leaves its rows zero.
func (d *Dispatcher) Run(ctx context.Context, frames *tensor.Frames, engine Engine, report func(percent int)) (*tensor.Predictions, error) {
	if report == nil {
		report = func(int) {}
	}

	classes := engine.Classes()
	if classes <= 0 {
		return nil, fmt.Errorf("engine reports %d classes", classes)
	}

	n := frames.Count
	preds := tensor.NewPredictions(n, classes)
	if n == 0 {
		report(100)
		return preds, nil
	}

	threads := ThreadCount(d.cores(), d.coreUsage(), n)
	d.logger.Debug().Int("frames", n).Int("threads", threads).Msg("dispatching inference")

	var progress Progress
	var g errgroup.Group
	for t := 0; t < threads; t++ {
		start, end := ChunkBounds(t, n, threads)
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			d.runChunk(ctx, engine, frames, preds, start, end, &progress)
			return nil
		})
	}

	done := make(chan error, 1)
	go func() { done <- g.Wait() }()

	ticker := time.NewTicker(d.pollInterval())
	defer ticker.Stop()

	for {
		select {
		case err := <-done:
			if err == nil {
				err = ctx.Err()
			}
			if err != nil {
				return nil, err
			}
			report(100)
			return preds, nil
		case <-ticker.C:
			// 100 is reserved for completion
			report(min(percent(progress.Load(), n), 99))
		}
	}
}

func (d *Dispatcher) runChunk(ctx context.Context, engine Engine, frames *tensor.Frames, preds *tensor.Predictions, start, end int, progress *Progress) {
	metrics.ActiveChunks.Inc()
	defer metrics.ActiveChunks.Dec()

	defer func() {
		if r := recover(); r != nil {
			metrics.ChunkFailuresTotal.Inc()
			d.logger.Error().
				Interface("panic", r).
				Int("start", start).
				Int("end", end).
				Msg("inference chunk panicked")
		}
	}()

	in := make([]float32, (end-start)*frames.FrameSize())
	copy(in, frames.Range(start, end))
	out := make([]float32, (end-start)*preds.Classes)

	if err := engine.Infer(ctx, in, end-start, out, progress); err != nil {
		metrics.ChunkFailuresTotal.Inc()
		d.logger.Error().
			Err(err).
			Int("start", start).
			Int("end", end).
			Msg("inference chunk failed")
		return
	}

	copy(preds.Range(start, end), out)
}

func percent(done, total int) int {
	f := float64(done) / float64(total)
	f = math.Max(0, math.Min(1, f))
	return int(math.Round(f * 100))
}

func (d *Dispatcher) cores() int {
	if d.Cores <= 0 {
		return runtime.NumCPU()
	}
	return d.Cores
}

func (d *Dispatcher) coreUsage() float64 {
	if d.CoreUsage <= 0 {
		return DefaultCoreUsage
	}
	return d.CoreUsage
}

func (d *Dispatcher) pollInterval() time.Duration {
	if d.PollInterval <= 0 {
		return DefaultPollInterval
	}
	return d.PollInterval
}
