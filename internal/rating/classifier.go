// Package rating turns stored prediction files into a film rating.
package rating

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/keagan/emotionplayer/internal/metrics"
	"github.com/keagan/emotionplayer/internal/results"
	"github.com/keagan/emotionplayer/pkg/util"
)

// Policies understood by Classifier.
const (
	PolicySAMP      = "samp"
	PolicyAggregate = "aggregate"
)

// Scorer produces a rating score from the two prediction files of a video.
type Scorer interface {
	Score(ctx context.Context, eppPath, efpPath string) (float64, error)
}

// ScorerFunc adapts a function to Scorer.
type ScorerFunc func(ctx context.Context, eppPath, efpPath string) (float64, error)

func (f ScorerFunc) Score(ctx context.Context, eppPath, efpPath string) (float64, error) {
	return f(ctx, eppPath, efpPath)
}

// Status is the kind of classification outcome.
type Status int

const (
	Rated Status = iota
	Missing
	Failed
)

func (s Status) String() string {
	switch s {
	case Rated:
		return "rated"
	case Missing:
		return "missing"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// Outcome is the result of classifying one video.
type Outcome struct {
	Status Status
	Rating string
	Score  float64
	Err    error
}

// Classifier rates videos whose prediction files are in a store.
type Classifier struct {
	logger zerolog.Logger
	store  *results.Store
	scorer Scorer
	policy string
}

// New returns a classifier. scorer may be nil with the aggregate policy.
func New(logger zerolog.Logger, store *results.Store, scorer Scorer, policy string) *Classifier {
	if policy == "" {
		policy = PolicySAMP
	}
	return &Classifier{
		logger: logger.With().Str("component", "classifier").Logger(),
		store:  store,
		scorer: scorer,
		policy: policy,
	}
}

// Classify rates the video stored under name. Missing prediction files
// give a Missing outcome without consulting the scorer.
func (c *Classifier) Classify(ctx context.Context, name string) Outcome {
	out := c.classify(ctx, name)

	label := out.Rating
	if out.Status != Rated {
		label = out.Status.String()
	}
	metrics.RatingsTotal.WithLabelValues(label).Inc()

	evt := c.logger.Info()
	if out.Status == Failed {
		evt = c.logger.Warn().Err(out.Err)
	}
	evt.Str("video", name).
		Str("status", out.Status.String()).
		Str("rating", out.Rating).
		Float64("score", out.Score).
		Msg("classification finished")

	return out
}

func (c *Classifier) classify(ctx context.Context, name string) Outcome {
	epp, efp := c.store.PositivenessPath(name), c.store.FilterPath(name)
	if !util.FileExists(epp) || !util.FileExists(efp) {
		return Outcome{Status: Missing}
	}

	if c.policy == PolicyAggregate {
		filter, _, err := c.store.LoadFilter(name)
		if err != nil {
			return Outcome{Status: Failed, Err: err}
		}
		label, ok := AggregateLabel(filter)
		if !ok {
			return Outcome{Status: Failed, Err: fmt.Errorf("no lit frames to rate")}
		}
		return Outcome{Status: Rated, Rating: label}
	}

	if c.scorer == nil {
		return Outcome{Status: Failed, Err: fmt.Errorf("no rating model configured")}
	}

	score, err := c.scorer.Score(ctx, epp, efp)
	if err != nil {
		return Outcome{Status: Failed, Err: fmt.Errorf("score %s: %w", name, err)}
	}

	label, ok := Label(score)
	if !ok {
		return Outcome{Status: Failed, Err: fmt.Errorf("rating model returned NaN")}
	}
	return Outcome{Status: Rated, Rating: label, Score: score}
}
