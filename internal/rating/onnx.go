package rating

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/rs/zerolog"
	ort "github.com/yalue/onnxruntime_go"

	"github.com/keagan/emotionplayer/internal/ai"
	"github.com/keagan/emotionplayer/internal/results"
)

// ONNXConfig describes the rating model.
type ONNXConfig struct {
	ModelPath           string
	LibraryPath         string
	InputName           string
	OutputName          string
	PositivenessClasses int
	FilterClasses       int
}

// ONNXScorer feeds summary statistics of both prediction files to a small
// regression model and returns its scalar output.
type ONNXScorer struct {
	logger   zerolog.Logger
	cfg      ONNXConfig
	features int

	mu      sync.Mutex
	session *ort.DynamicAdvancedSession
}

func NewONNXScorer(logger zerolog.Logger, cfg ONNXConfig) (*ONNXScorer, error) {
	if _, err := os.Stat(cfg.ModelPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("model file not found: %s", cfg.ModelPath)
	}
	if cfg.PositivenessClasses <= 0 || cfg.FilterClasses <= 0 {
		return nil, fmt.Errorf("class counts must be positive")
	}

	if err := ai.AcquireRuntime(cfg.LibraryPath); err != nil {
		return nil, err
	}

	sess, err := ort.NewDynamicAdvancedSession(cfg.ModelPath, []string{cfg.InputName}, []string{cfg.OutputName}, nil)
	if err != nil {
		ai.ReleaseRuntime()
		return nil, fmt.Errorf("failed to create rating session: %w", err)
	}

	features := 2*cfg.PositivenessClasses + 2*cfg.FilterClasses + 1
	logger.Info().
		Str("model", cfg.ModelPath).
		Int("features", features).
		Msg("rating model loaded")

	return &ONNXScorer{
		logger:   logger.With().Str("scorer", "onnx").Logger(),
		cfg:      cfg,
		features: features,
		session:  sess,
	}, nil
}

func (s *ONNXScorer) Score(ctx context.Context, eppPath, efpPath string) (float64, error) {
	positiveness, _, err := results.Read(eppPath, s.cfg.PositivenessClasses)
	if err != nil {
		return 0, err
	}
	filter, _, err := results.Read(efpPath, s.cfg.FilterClasses)
	if err != nil {
		return 0, err
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	vec := Features(positiveness, filter)
	if len(vec) != s.features {
		return 0, fmt.Errorf("built %d features, model expects %d", len(vec), s.features)
	}

	input, err := ort.NewTensor(ort.NewShape(1, int64(s.features)), vec)
	if err != nil {
		return 0, fmt.Errorf("failed to create feature tensor: %w", err)
	}
	defer input.Destroy()

	output, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 1))
	if err != nil {
		return 0, fmt.Errorf("failed to create score tensor: %w", err)
	}
	defer output.Destroy()

	s.mu.Lock()
	err = s.session.Run([]ort.Value{input}, []ort.Value{output})
	s.mu.Unlock()
	if err != nil {
		return 0, fmt.Errorf("rating inference failed: %w", err)
	}

	score := float64(output.GetData()[0])
	s.logger.Debug().Floats32("features", vec).Float64("score", score).Msg("rating scored")
	return score, nil
}

func (s *ONNXScorer) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session != nil {
		if err := s.session.Destroy(); err != nil {
			return err
		}
		s.session = nil
	}
	return ai.ReleaseRuntime()
}
