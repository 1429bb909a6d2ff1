package ai

import (
	"context"
	"sync/atomic"
)

// Engine runs a classification model over a batch of frames.
//
// frames holds numFrames contiguous CHW frames. out has room for
// numFrames*Classes() scores and is written frame-major. Implementations
// add to progress as frames finish and must be safe for concurrent calls
// on disjoint buffers.
type Engine interface {
	Infer(ctx context.Context, frames []float32, numFrames int, out []float32, progress *Progress) error
	Classes() int
	Close() error
}

// EngineFunc adapts a plain function to Engine.
type EngineFunc struct {
	N  int
	Fn func(ctx context.Context, frames []float32, numFrames int, out []float32, progress *Progress) error
}

func (e EngineFunc) Infer(ctx context.Context, frames []float32, numFrames int, out []float32, progress *Progress) error {
	return e.Fn(ctx, frames, numFrames, out, progress)
}

func (e EngineFunc) Classes() int { return e.N }

func (e EngineFunc) Close() error { return nil }

// Progress counts finished frames across all chunks of one run.
type Progress struct {
	done atomic.Int64
}

// Add records delta more finished frames. Safe on a nil receiver.
func (p *Progress) Add(delta int) {
	if p == nil {
		return
	}
	p.done.Add(int64(delta))
}

// Load returns the number of finished frames.
func (p *Progress) Load() int {
	if p == nil {
		return 0
	}
	return int(p.done.Load())
}
