package pipeline

import (
	"fmt"
	"time"

	"github.com/keagan/emotionplayer/internal/ai"
	"github.com/keagan/emotionplayer/internal/rating"
	"github.com/keagan/emotionplayer/internal/sampler"
	"github.com/keagan/emotionplayer/internal/tensor"
)

// State is the stage a video is in.
type State int

const (
	Idle State = iota
	SamplingPositiveness
	InferringPositiveness
	SerializingPositiveness
	SamplingFilter
	InferringFilter
	MaskingDark
	SerializingFilter
	Classifying
	Done
)

var stateNames = [...]string{
	Idle:                    "idle",
	SamplingPositiveness:    "sampling_positiveness",
	InferringPositiveness:   "inferring_positiveness",
	SerializingPositiveness: "serializing_positiveness",
	SamplingFilter:          "sampling_filter",
	InferringFilter:         "inferring_filter",
	MaskingDark:             "masking_dark",
	SerializingFilter:       "serializing_filter",
	Classifying:             "classifying",
	Done:                    "done",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Callbacks receive pipeline events. Every field is optional. They are
// invoked from the goroutine running ProcessVideo, Progress also from the
// dispatcher's poller.
type Callbacks struct {
	Progress           func(percent int, stage, video string)
	PositivenessResult func(preds *tensor.Predictions, interval int)
	InterpretedResult  func(rating string)
	StateChanged       func(video string, state State)
}

// Pass is one sample-and-infer sweep over a video.
type Pass struct {
	// Name labels the pass in progress reports, logs and metrics.
	Name    string
	Options sampler.Options
	Engine  ai.Engine
}

// Result is everything learned about one video. It is not modified once
// ProcessVideo has returned.
type Result struct {
	Name string
	Path string

	Positiveness         *tensor.Predictions
	PositivenessInterval int
	Filter               *tensor.Predictions
	FilterInterval       int
	DarkFrames           int

	Outcome rating.Outcome
	State   State
	Errors  []error

	StateTimes map[State]time.Time
	StartedAt  time.Time
	FinishedAt time.Time
}

// Rated reports whether the video received a rating.
func (r *Result) Rated() bool {
	return r.Outcome.Status == rating.Rated
}
