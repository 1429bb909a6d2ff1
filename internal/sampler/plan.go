package sampler

import "math"

// FallbackFPS replaces a frame rate the container reports as zero,
// negative, NaN or infinite.
const FallbackFPS = 30.0

const (
	secPerMinute = 60
	secPerHour   = 60 * secPerMinute
)

// FrameSecInterval returns the number of seconds between sampled frames
// for a video of the given length. Longer videos are sampled more sparsely.
func FrameSecInterval(totalSeconds float64) int {
	switch {
	case totalSeconds <= 20*secPerMinute:
		return 1
	case totalSeconds <= 1*secPerHour:
		return 2
	case totalSeconds <= 1.8*secPerHour:
		return 3
	case totalSeconds <= 2.1*secPerHour:
		return 4
	case totalSeconds <= 3*secPerHour:
		return 5
	default:
		return 6
	}
}

// Plan says which source frames a pass samples.
type Plan struct {
	FrameCount   int
	FPS          float64
	TotalSeconds float64
	Interval     int
	NumFrames    int
	Step         int
}

// PlanFrames derives the sampling plan for a video with frameCount frames
// at fps. frameCount must be positive.
func PlanFrames(frameCount int, fps float64) Plan {
	if fps <= 0 || math.IsNaN(fps) || math.IsInf(fps, 0) {
		fps = FallbackFPS
	}

	total := float64(frameCount) / fps
	interval := FrameSecInterval(total)

	numFrames := int(math.Ceil(total / float64(interval)))
	if numFrames < 1 {
		numFrames = 1
	}

	step := int(math.Round(fps * float64(interval)))
	if step < 1 {
		step = 1
	}

	return Plan{
		FrameCount:   frameCount,
		FPS:          fps,
		TotalSeconds: total,
		Interval:     interval,
		NumFrames:    numFrames,
		Step:         step,
	}
}

// Index returns the source frame index of sample i, clamped to the last
// frame when rounding of fps*interval overshoots.
func (p Plan) Index(i int) int {
	idx := i * p.Step
	if idx > p.FrameCount-1 {
		idx = p.FrameCount - 1
	}
	return idx
}
