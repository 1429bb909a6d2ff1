package ffmpeg

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"math"
	"strconv"
	"time"

	"github.com/keagan/emotionplayer/pkg/util"
	ffmpeggo "github.com/u2takey/ffmpeg-go"
)

// fallbackFPS is used to turn a frame index into a timestamp when the
// container reports a useless frame rate.
const fallbackFPS = 30.0

// Capture is a seekable view over one video file backed by ffmpeg.
// Every Frame call spawns one ffmpeg process that decodes a single frame.
type Capture struct {
	exec *Executor
	info *VideoInfo
}

// OpenCapture probes a video and returns a capture over it.
func (e *Executor) OpenCapture(ctx context.Context, path string) (*Capture, error) {
	info, err := e.ProbeVideo(ctx, path)
	if err != nil {
		return nil, err
	}
	if !info.HasVideo {
		return nil, fmt.Errorf("%s: no video stream", path)
	}

	e.logger.Debug().
		Str("video", path).
		Int("frames", info.FrameCount).
		Float64("fps", info.FPS).
		Dur("duration", info.Duration).
		Msg("capture opened")

	return &Capture{exec: e, info: info}, nil
}

// Info returns the frame count and frame rate reported by the container.
func (c *Capture) Info() (int, float64) {
	return c.info.FrameCount, c.info.FPS
}

// Frame decodes the frame at index.
func (c *Capture) Frame(ctx context.Context, index int) (image.Image, error) {
	if index < 0 {
		return nil, fmt.Errorf("frame index %d out of range", index)
	}
	return c.exec.GrabFrame(ctx, c.info.FilePath, frameTimestamp(index, c.info.FPS))
}

// Close releases the capture. ffmpeg keeps no state between frames.
func (c *Capture) Close() error {
	return nil
}

func frameTimestamp(index int, fps float64) time.Duration {
	if fps <= 0 || math.IsNaN(fps) || math.IsInf(fps, 0) {
		fps = fallbackFPS
	}
	return time.Duration(float64(index) / fps * float64(time.Second))
}

// GrabFrame decodes a single frame at timestamp and returns it as an image.
func (e *Executor) GrabFrame(ctx context.Context, input string, timestamp time.Duration) (image.Image, error) {
	out, err := e.output(ctx, e.ffmpegPath, e.grabArgs(input, timestamp))
	if err != nil {
		return nil, fmt.Errorf("grab frame at %s: %w", util.FormatDuration(timestamp), err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("grab frame at %s: no frame decoded", util.FormatDuration(timestamp))
	}

	img, err := png.Decode(bytes.NewReader(out))
	if err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}
	return img, nil
}

// grabArgs builds the argument list for a single-frame PNG grab written to
// stdout. -ss goes before -i so ffmpeg seeks in the demuxer.
func (e *Executor) grabArgs(input string, timestamp time.Duration) []string {
	outKw := ffmpeggo.KwArgs{
		"vframes": 1,
		"format":  "image2",
		"vcodec":  "png",
	}
	if e.threads > 0 {
		outKw["threads"] = strconv.Itoa(e.threads)
	}

	args := ffmpeggo.
		Input(input, ffmpeggo.KwArgs{"ss": util.FormatDuration(timestamp)}).
		Output("pipe:", outKw).
		GetArgs()

	return append([]string{"-hide_banner", "-nostdin", "-loglevel", "error"}, args...)
}
