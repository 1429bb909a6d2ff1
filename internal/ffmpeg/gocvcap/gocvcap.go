//go:build gocv

// Package gocvcap decodes frames through OpenCV instead of spawning ffmpeg
// per frame. It needs OpenCV 4 and is only built with -tags gocv.
package gocvcap

import (
	"context"
	"fmt"
	"image"
	"sync"

	"gocv.io/x/gocv"
)

// Capture wraps an OpenCV VideoCapture. Seeking and reading share decoder
// state, so frames are read under a lock.
type Capture struct {
	mu     sync.Mutex
	stream *gocv.VideoCapture
	img    gocv.Mat
	frames int
	fps    float64
}

// Open opens a video file for random-access frame reads.
func Open(_ context.Context, path string) (*Capture, error) {
	stream, err := gocv.VideoCaptureFile(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	if !stream.IsOpened() {
		stream.Close()
		return nil, fmt.Errorf("open %s: capture not opened", path)
	}

	return &Capture{
		stream: stream,
		img:    gocv.NewMat(),
		frames: int(stream.Get(gocv.VideoCaptureFrameCount)),
		fps:    stream.Get(gocv.VideoCaptureFPS),
	}, nil
}

// Info returns the frame count and frame rate reported by OpenCV.
func (c *Capture) Info() (int, float64) {
	return c.frames, c.fps
}

// Frame seeks to index and decodes one frame.
func (c *Capture) Frame(ctx context.Context, index int) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.stream.Set(gocv.VideoCapturePosFrames, float64(index))
	if ok := c.stream.Read(&c.img); !ok || c.img.Empty() {
		return nil, fmt.Errorf("frame %d: read failed", index)
	}

	return c.img.ToImage()
}

// Close releases the OpenCV capture and frame buffer.
func (c *Capture) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.img.Close(); err != nil {
		return err
	}
	return c.stream.Close()
}
