package ai

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/rs/zerolog"
	ort "github.com/yalue/onnxruntime_go"

	"github.com/keagan/emotionplayer/internal/tensor"
)

var (
	runtimeMu   sync.Mutex
	runtimeRefs int
)

// AcquireRuntime initializes the shared onnxruntime environment on first
// use. Every successful call must be paired with ReleaseRuntime.
func AcquireRuntime(libraryPath string) error {
	runtimeMu.Lock()
	defer runtimeMu.Unlock()

	if runtimeRefs == 0 {
		if libraryPath != "" {
			ort.SetSharedLibraryPath(libraryPath)
		}
		if err := ort.InitializeEnvironment(); err != nil {
			return fmt.Errorf("failed to initialize ONNX runtime: %w", err)
		}
	}
	runtimeRefs++
	return nil
}

// ReleaseRuntime drops one reference and tears the environment down when
// the last user is gone.
func ReleaseRuntime() error {
	runtimeMu.Lock()
	defer runtimeMu.Unlock()

	if runtimeRefs == 0 {
		return nil
	}
	runtimeRefs--
	if runtimeRefs == 0 {
		return ort.DestroyEnvironment()
	}
	return nil
}

// ONNXConfig describes one classification model.
type ONNXConfig struct {
	ModelPath   string
	LibraryPath string
	InputName   string
	OutputName  string
	Width       int
	Height      int
	Classes     int
}

// ONNXEngine runs an image classifier exported to ONNX, one frame per
// session call. Input is [1,3,H,W] float32, output [1,Classes].
type ONNXEngine struct {
	logger  zerolog.Logger
	cfg     ONNXConfig
	session *ort.DynamicAdvancedSession
}

// NewONNXEngine loads the model described by cfg.
func NewONNXEngine(logger zerolog.Logger, cfg ONNXConfig) (*ONNXEngine, error) {
	if _, err := os.Stat(cfg.ModelPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("model file not found: %s", cfg.ModelPath)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || cfg.Classes <= 0 {
		return nil, fmt.Errorf("invalid model shape %dx%d with %d classes", cfg.Width, cfg.Height, cfg.Classes)
	}

	if err := AcquireRuntime(cfg.LibraryPath); err != nil {
		return nil, err
	}

	sess, err := ort.NewDynamicAdvancedSession(
		cfg.ModelPath,
		[]string{cfg.InputName},
		[]string{cfg.OutputName},
		nil,
	)
	if err != nil {
		ReleaseRuntime()
		return nil, fmt.Errorf("failed to create session for %s: %w", cfg.ModelPath, err)
	}

	logger.Info().
		Str("model", cfg.ModelPath).
		Str("input", cfg.InputName).
		Str("output", cfg.OutputName).
		Int("classes", cfg.Classes).
		Msg("model loaded")

	return &ONNXEngine{
		logger:  logger.With().Str("engine", "onnx").Logger(),
		cfg:     cfg,
		session: sess,
	}, nil
}

func (e *ONNXEngine) Classes() int { return e.cfg.Classes }

// Infer runs the model over each frame in turn.
func (e *ONNXEngine) Infer(ctx context.Context, frames []float32, numFrames int, out []float32, progress *Progress) error {
	frameSize := tensor.Channels * e.cfg.Width * e.cfg.Height
	if len(frames) != numFrames*frameSize {
		return fmt.Errorf("got %d floats for %d frames of %d", len(frames), numFrames, frameSize)
	}
	if len(out) != numFrames*e.cfg.Classes {
		return fmt.Errorf("output buffer holds %d floats, need %d", len(out), numFrames*e.cfg.Classes)
	}

	input, err := ort.NewEmptyTensor[float32](ort.NewShape(1, tensor.Channels, int64(e.cfg.Height), int64(e.cfg.Width)))
	if err != nil {
		return fmt.Errorf("failed to create input tensor: %w", err)
	}
	defer input.Destroy()

	output, err := ort.NewEmptyTensor[float32](ort.NewShape(1, int64(e.cfg.Classes)))
	if err != nil {
		return fmt.Errorf("failed to create output tensor: %w", err)
	}
	defer output.Destroy()

	for i := 0; i < numFrames; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		copy(input.GetData(), frames[i*frameSize:(i+1)*frameSize])
		if err := e.session.Run([]ort.Value{input}, []ort.Value{output}); err != nil {
			return fmt.Errorf("inference failed on frame %d: %w", i, err)
		}
		copy(out[i*e.cfg.Classes:(i+1)*e.cfg.Classes], output.GetData())
		progress.Add(1)
	}

	return nil
}

// Close releases the session and this engine's runtime reference.
func (e *ONNXEngine) Close() error {
	e.logger.Info().Str("model", e.cfg.ModelPath).Msg("closing model session")
	if e.session != nil {
		if err := e.session.Destroy(); err != nil {
			return err
		}
		e.session = nil
	}
	return ReleaseRuntime()
}
