package sampler

import (
	"context"
	"errors"
	"fmt"
	"image"
	"strings"
	"time"

	"github.com/nfnt/resize"
	"github.com/rs/zerolog"

	"github.com/keagan/emotionplayer/internal/metrics"
	"github.com/keagan/emotionplayer/internal/tensor"
)

// ErrEmptyVideo is returned when the container reports no frames.
var ErrEmptyVideo = errors.New("video has no frames")

// ChannelOrder is the order channels are written into a frame.
type ChannelOrder int

const (
	RGB ChannelOrder = iota
	BGR
)

func (o ChannelOrder) String() string {
	if o == BGR {
		return "bgr"
	}
	return "rgb"
}

// ParseChannelOrder maps a config value to a ChannelOrder.
func ParseChannelOrder(s string) (ChannelOrder, error) {
	switch strings.ToLower(s) {
	case "rgb":
		return RGB, nil
	case "bgr":
		return BGR, nil
	}
	return RGB, fmt.Errorf("unknown channel order %q", s)
}

// Normalization selects how 8-bit samples become floats.
type Normalization int

const (
	// MinMax stores channel/255.
	MinMax Normalization = iota
	// ImageNetMean stores channel minus the ImageNet channel mean.
	ImageNetMean
)

func (n Normalization) String() string {
	if n == ImageNetMean {
		return "imagenet_mean"
	}
	return "minmax"
}

// ParseNormalization maps a config value to a Normalization.
func ParseNormalization(s string) (Normalization, error) {
	switch strings.ToLower(s) {
	case "minmax":
		return MinMax, nil
	case "imagenet_mean":
		return ImageNetMean, nil
	}
	return MinMax, fmt.Errorf("unknown normalization %q", s)
}

// ImageNet channel means.
const (
	MeanB = 104.00698793
	MeanG = 116.66876762
	MeanR = 122.67891434
)

// Options describes the tensor layout one pass expects.
type Options struct {
	// Label names the pass in logs and metrics.
	Label         string
	Width         int
	Height        int
	Order         ChannelOrder
	Normalization Normalization
}

// Capture is a seekable source of decoded frames.
type Capture interface {
	Info() (frameCount int, fps float64)
	Frame(ctx context.Context, index int) (image.Image, error)
	Close() error
}

// Opener opens a Capture over a video file.
type Opener interface {
	Open(ctx context.Context, path string) (Capture, error)
}

// OpenerFunc adapts a function to Opener.
type OpenerFunc func(ctx context.Context, path string) (Capture, error)

func (f OpenerFunc) Open(ctx context.Context, path string) (Capture, error) {
	return f(ctx, path)
}

// Sampler turns a video into a normalized frame tensor.
type Sampler struct {
	logger zerolog.Logger
	opener Opener
}

func New(logger zerolog.Logger, opener Opener) *Sampler {
	return &Sampler{
		logger: logger.With().Str("component", "sampler").Logger(),
		opener: opener,
	}
}

// Sample decodes the planned frames of path and returns them with the
// sampling interval in seconds.
func (s *Sampler) Sample(ctx context.Context, path string, opts Options) (*tensor.Frames, int, error) {
	if opts.Width <= 0 || opts.Height <= 0 {
		return nil, 0, fmt.Errorf("invalid frame size %dx%d", opts.Width, opts.Height)
	}

	capture, err := s.opener.Open(ctx, path)
	if err != nil {
		return nil, 0, fmt.Errorf("open %s: %w", path, err)
	}
	defer capture.Close()

	frameCount, fps := capture.Info()
	if frameCount <= 0 {
		return nil, 0, fmt.Errorf("%s: %w", path, ErrEmptyVideo)
	}

	plan := PlanFrames(frameCount, fps)
	s.logger.Info().
		Str("video", path).
		Str("pass", opts.Label).
		Float64("seconds", plan.TotalSeconds).
		Int("interval", plan.Interval).
		Int("frames", plan.NumFrames).
		Msg("sampling video")

	start := time.Now()
	frames := tensor.NewFrames(plan.NumFrames, opts.Height, opts.Width)
	failed := 0

	for i := 0; i < plan.NumFrames; i++ {
		if err := ctx.Err(); err != nil {
			frames.Release()
			return nil, 0, err
		}

		img, err := capture.Frame(ctx, plan.Index(i))
		if err != nil {
			if ctx.Err() != nil {
				frames.Release()
				return nil, 0, ctx.Err()
			}
			failed++
			metrics.FrameDecodeFailuresTotal.WithLabelValues(opts.Label).Inc()
			s.logger.Debug().Err(err).Int("sample", i).Int("frame", plan.Index(i)).Msg("frame decode failed, leaving zeros")
			continue
		}

		Fill(frames.Frame(i), img, opts)
		metrics.FramesSampledTotal.WithLabelValues(opts.Label).Inc()
	}

	s.logger.Info().
		Str("video", path).
		Str("pass", opts.Label).
		Int("failed", failed).
		Dur("took", time.Since(start)).
		Msg("sampling finished")

	return frames, plan.Interval, nil
}

// Fill resizes img to the configured size and writes it into dst in CHW
// layout. dst must hold 3*Width*Height floats.
func Fill(dst []float32, img image.Image, opts Options) {
	w, h := opts.Width, opts.Height
	b := img.Bounds()
	if b.Dx() != w || b.Dy() != h {
		img = resize.Resize(uint(w), uint(h), img, resize.Bilinear)
		b = img.Bounds()
	}

	plane := w * h
	first, third := 0, 2*plane // R and B plane offsets
	if opts.Order == BGR {
		first, third = 2*plane, 0
	}
	green := plane

	rgba, fast := img.(*image.RGBA)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var r, g, bl float64
			if fast {
				off := rgba.PixOffset(b.Min.X+x, b.Min.Y+y)
				r = float64(rgba.Pix[off])
				g = float64(rgba.Pix[off+1])
				bl = float64(rgba.Pix[off+2])
			} else {
				cr, cg, cb, _ := img.At(b.Min.X+x, b.Min.Y+y).RGBA()
				r, g, bl = float64(cr>>8), float64(cg>>8), float64(cb>>8)
			}

			switch opts.Normalization {
			case ImageNetMean:
				r -= MeanR
				g -= MeanG
				bl -= MeanB
			default:
				r /= 255
				g /= 255
				bl /= 255
			}

			p := y*w + x
			dst[first+p] = float32(r)
			dst[green+p] = float32(g)
			dst[third+p] = float32(bl)
		}
	}
}
