package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

type contextKey string

const configKey contextKey = "config"

// Rating policies understood by the classifier.
const (
	PolicySAMP      = "samp"
	PolicyAggregate = "aggregate"
)

// Config holds all application configuration
type Config struct {
	// Core settings
	OutputDir    string        `yaml:"output_dir" env:"EP_OUTPUT_DIR"`
	PollInterval time.Duration `yaml:"poll_interval" env:"EP_POLL_INTERVAL"`
	CoreUsage    float64       `yaml:"core_usage" env:"EP_CORE_USAGE"`
	Decoder      string        `yaml:"decoder" env:"EP_DECODER"`

	// Path to the onnxruntime shared library; empty uses the platform default
	ONNXLibrary string `yaml:"onnx_library" env:"EP_ONNX_LIBRARY"`

	// Model passes
	Positiveness PassConfig   `yaml:"positiveness" envPrefix:"EP_POSITIVENESS_"`
	Filter       FilterConfig `yaml:"filter" envPrefix:"EP_FILTER_"`

	// Final rating
	Rating RatingConfig `yaml:"rating" envPrefix:"EP_RATING_"`

	// FFmpeg settings
	FFmpeg FFmpegConfig `yaml:"ffmpeg" envPrefix:"EP_FFMPEG_"`

	// HTTP API settings
	Server ServerConfig `yaml:"server" envPrefix:"EP_SERVER_"`

	// Logging
	Log LogConfig `yaml:"log" envPrefix:"EP_LOG_"`
}

// PassConfig describes one inference pass: the model and how frames are
// prepared for it.
type PassConfig struct {
	ModelPath     string `yaml:"model_path" env:"MODEL_PATH"`
	InputName     string `yaml:"input_name" env:"INPUT_NAME"`
	OutputName    string `yaml:"output_name" env:"OUTPUT_NAME"`
	Width         int    `yaml:"width" env:"WIDTH"`
	Height        int    `yaml:"height" env:"HEIGHT"`
	ChannelOrder  string `yaml:"channel_order" env:"CHANNEL_ORDER"`
	Normalization string `yaml:"normalization" env:"NORMALIZATION"`
	Classes       int    `yaml:"classes" env:"CLASSES"`
}

// FilterConfig is the filter pass plus dark frame masking. Brightness is
// measured on the filter tensor, so masking needs minmax normalization.
// A zero DarkThreshold disables masking.
type FilterConfig struct {
	PassConfig    `yaml:",inline"`
	DarkThreshold float64 `yaml:"dark_threshold" env:"DARK_THRESHOLD"`
}

type RatingConfig struct {
	Policy     string `yaml:"policy" env:"POLICY"`
	ModelPath  string `yaml:"model_path" env:"MODEL_PATH"`
	InputName  string `yaml:"input_name" env:"INPUT_NAME"`
	OutputName string `yaml:"output_name" env:"OUTPUT_NAME"`
}

type FFmpegConfig struct {
	BinaryPath string `yaml:"binary_path" env:"BINARY_PATH"`
	ProbePath  string `yaml:"probe_path" env:"PROBE_PATH"`
	Threads    int    `yaml:"threads" env:"THREADS"`
}

type ServerConfig struct {
	Addr           string   `yaml:"addr" env:"ADDR"`
	AllowedOrigins []string `yaml:"allowed_origins" env:"ALLOWED_ORIGINS"`
}

type LogConfig struct {
	Level  string `yaml:"level" env:"LEVEL"`
	Format string `yaml:"format" env:"FORMAT"`
	// File additionally receives JSON lines when set
	File string `yaml:"file" env:"FILE"`
}

// Load reads configuration from file or returns defaults, then applies
// EP_* environment overrides.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	if path == "" {
		path = findConfigFile()
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, err
		}
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse %s: %w", path, err)
			}
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate rejects settings the pipeline cannot run with.
func (c *Config) Validate() error {
	if c.OutputDir == "" {
		return fmt.Errorf("output_dir must not be empty")
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll_interval must be positive, got %s", c.PollInterval)
	}
	if c.CoreUsage <= 0 || c.CoreUsage > 1 {
		return fmt.Errorf("core_usage must be in (0, 1], got %v", c.CoreUsage)
	}
	for name, p := range map[string]PassConfig{"positiveness": c.Positiveness, "filter": c.Filter.PassConfig} {
		if p.Width <= 0 || p.Height <= 0 {
			return fmt.Errorf("%s: width and height must be positive", name)
		}
		if p.Classes <= 0 {
			return fmt.Errorf("%s: classes must be positive", name)
		}
		switch strings.ToLower(p.ChannelOrder) {
		case "rgb", "bgr":
		default:
			return fmt.Errorf("%s: unknown channel_order %q", name, p.ChannelOrder)
		}
		switch strings.ToLower(p.Normalization) {
		case "minmax", "imagenet_mean":
		default:
			return fmt.Errorf("%s: unknown normalization %q", name, p.Normalization)
		}
	}
	if c.Filter.DarkThreshold > 0 && strings.ToLower(c.Filter.Normalization) != "minmax" {
		return fmt.Errorf("filter: dark frame masking needs minmax normalization, got %q", c.Filter.Normalization)
	}
	if c.Filter.DarkThreshold < 0 || c.Filter.DarkThreshold > 1 {
		return fmt.Errorf("filter: dark_threshold must be in [0, 1], got %v", c.Filter.DarkThreshold)
	}
	switch c.Rating.Policy {
	case PolicySAMP, PolicyAggregate:
	default:
		return fmt.Errorf("rating: unknown policy %q", c.Rating.Policy)
	}
	switch c.Decoder {
	case "ffmpeg", "gocv":
	default:
		return fmt.Errorf("unknown decoder %q", c.Decoder)
	}
	if _, err := zerolog.ParseLevel(strings.ToLower(c.Log.Level)); err != nil {
		return fmt.Errorf("log: %w", err)
	}
	switch c.Log.Format {
	case "console", "json":
	default:
		return fmt.Errorf("log: unknown format %q", c.Log.Format)
	}
	return nil
}

// Save writes configuration to file
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// Default returns the built-in configuration.
func Default() *Config {
	return defaultConfig()
}

func defaultConfig() *Config {
	return &Config{
		OutputDir:    "Output",
		PollInterval: 100 * time.Millisecond,
		CoreUsage:    0.8,
		Decoder:      "ffmpeg",
		Positiveness: PassConfig{
			ModelPath:     "./models/positiveness.onnx",
			InputName:     "input",
			OutputName:    "output",
			Width:         227,
			Height:        227,
			ChannelOrder:  "bgr",
			Normalization: "imagenet_mean",
			Classes:       2,
		},
		Filter: FilterConfig{
			PassConfig: PassConfig{
				ModelPath:     "./models/filter.onnx",
				InputName:     "input",
				OutputName:    "output",
				Width:         224,
				Height:        224,
				ChannelOrder:  "rgb",
				Normalization: "minmax",
				Classes:       3,
			},
			DarkThreshold: 0.02,
		},
		Rating: RatingConfig{
			Policy:     PolicySAMP,
			ModelPath:  "./models/samp.onnx",
			InputName:  "features",
			OutputName: "score",
		},
		FFmpeg: FFmpegConfig{
			BinaryPath: "ffmpeg",
			ProbePath:  "ffprobe",
			Threads:    0,
		},
		Server: ServerConfig{
			Addr:           ":8080",
			AllowedOrigins: []string{"http://localhost:*", "http://127.0.0.1:*"},
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

func findConfigFile() string {
	candidates := []string{
		"./config.yaml",
		"./config.yml",
		filepath.Join(os.Getenv("HOME"), ".emotionplayer", "config.yaml"),
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// WithConfig stores config in context
func WithConfig(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, configKey, cfg)
}

// FromContext retrieves config from context
func FromContext(ctx context.Context) *Config {
	if cfg, ok := ctx.Value(configKey).(*Config); ok {
		return cfg
	}
	return defaultConfig()
}
