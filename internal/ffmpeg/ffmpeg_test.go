package ffmpeg

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

// skipIfNoFFmpeg skips the test if ffmpeg is not available
func skipIfNoFFmpeg(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		t.Skip("ffmpeg not found in PATH - install with: brew install ffmpeg")
	}
	if _, err := exec.LookPath("ffprobe"); err != nil {
		t.Skip("ffprobe not found in PATH - install with: brew install ffmpeg")
	}
}

// generateTestVideo renders a 2 second 320x240 30fps clip into a temp dir
func generateTestVideo(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.mp4")
	cmd := exec.Command("ffmpeg", "-f", "lavfi", "-i", "testsrc=duration=2:size=320x240:rate=30",
		"-pix_fmt", "yuv420p", "-y", path)
	if err := cmd.Run(); err != nil {
		t.Skipf("could not generate test video: %v", err)
	}
	return path
}

func TestExecutorCreation(t *testing.T) {
	skipIfNoFFmpeg(t)

	logger := zerolog.New(os.Stderr)
	exec, err := New(logger, Options{Threads: 2})
	if err != nil {
		t.Fatalf("failed to create executor: %v", err)
	}
	if exec.ffmpegPath == "" {
		t.Error("ffmpeg path is empty")
	}
	if exec.ffprobePath == "" {
		t.Error("ffprobe path is empty")
	}
}

func TestExecutorMissingBinary(t *testing.T) {
	_, err := New(zerolog.Nop(), Options{FFmpegPath: "definitely-not-ffmpeg-binary"})
	if err == nil {
		t.Fatal("expected error for missing ffmpeg binary")
	}
}

func TestProbeVideo(t *testing.T) {
	skipIfNoFFmpeg(t)
	path := generateTestVideo(t)

	exec, err := New(zerolog.New(os.Stderr), Options{})
	if err != nil {
		t.Fatalf("failed to create executor: %v", err)
	}

	info, err := exec.ProbeVideo(context.Background(), path)
	if err != nil {
		t.Fatalf("ProbeVideo failed: %v", err)
	}

	if !info.HasVideo {
		t.Fatal("expected a video stream")
	}
	if info.Width != 320 {
		t.Errorf("expected width 320, got %d", info.Width)
	}
	if info.Height != 240 {
		t.Errorf("expected height 240, got %d", info.Height)
	}
	if info.FPS != 30 {
		t.Errorf("expected 30 fps, got %v", info.FPS)
	}
	if info.FrameCount != 60 {
		t.Errorf("expected 60 frames, got %d", info.FrameCount)
	}
	if info.Duration == 0 {
		t.Error("duration is zero")
	}
}

func TestCaptureFrame(t *testing.T) {
	skipIfNoFFmpeg(t)
	path := generateTestVideo(t)

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})
	exec, err := New(logger, Options{})
	if err != nil {
		t.Fatalf("failed to create executor: %v", err)
	}

	ctx := context.Background()
	capture, err := exec.OpenCapture(ctx, path)
	if err != nil {
		t.Fatalf("OpenCapture failed: %v", err)
	}
	defer capture.Close()

	frames, fps := capture.Info()
	if frames != 60 || fps != 30 {
		t.Fatalf("unexpected capture info: %d frames at %v fps", frames, fps)
	}

	img, err := capture.Frame(ctx, 30)
	if err != nil {
		t.Fatalf("Frame failed: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 320 || b.Dy() != 240 {
		t.Errorf("expected 320x240 frame, got %dx%d", b.Dx(), b.Dy())
	}
}

func TestOpenCaptureMissingFile(t *testing.T) {
	skipIfNoFFmpeg(t)

	exec, err := New(zerolog.Nop(), Options{})
	if err != nil {
		t.Fatalf("failed to create executor: %v", err)
	}
	if _, err := exec.OpenCapture(context.Background(), filepath.Join(t.TempDir(), "missing.mp4")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestGrabArgs(t *testing.T) {
	e := &Executor{logger: zerolog.Nop(), ffmpegPath: "ffmpeg", threads: 2}
	args := e.grabArgs("in.mp4", 1500*time.Millisecond)

	index := func(s string) int {
		for i, a := range args {
			if a == s {
				return i
			}
		}
		return -1
	}

	ss, in := index("-ss"), index("-i")
	if ss < 0 || in < 0 || ss > in {
		t.Fatalf("expected -ss before -i, got %v", args)
	}
	if args[ss+1] != "00:00:01.500" {
		t.Errorf("expected seek 00:00:01.500, got %s", args[ss+1])
	}
	if args[len(args)-1] != "pipe:" {
		t.Errorf("expected pipe output last, got %v", args)
	}
	if index("png") < 0 {
		t.Errorf("expected png codec in %v", args)
	}
}

func TestFrameTimestamp(t *testing.T) {
	if got := frameTimestamp(60, 30); got != 2*time.Second {
		t.Errorf("expected 2s, got %v", got)
	}
	if got := frameTimestamp(60, 0); got != 2*time.Second {
		t.Errorf("expected fallback to 30fps, got %v", got)
	}
}

func TestParseProbe(t *testing.T) {
	raw := []byte(`{
		"format": {"duration": "600.0"},
		"streams": [
			{"codec_type": "audio", "codec_name": "aac"},
			{"codec_type": "video", "codec_name": "h264", "width": 640, "height": 360,
			 "r_frame_rate": "25/1", "avg_frame_rate": "25/1"}
		]
	}`)

	info, err := parseProbe("movie.mkv", raw)
	if err != nil {
		t.Fatalf("parseProbe failed: %v", err)
	}
	if info.FPS != 25 {
		t.Errorf("expected 25 fps, got %v", info.FPS)
	}
	// no nb_frames: derived from duration * fps
	if info.FrameCount != 15000 {
		t.Errorf("expected 15000 frames, got %d", info.FrameCount)
	}
	if info.VideoCodec != "h264" {
		t.Errorf("expected h264, got %s", info.VideoCodec)
	}
}

func TestParseProbeWithoutFrameRate(t *testing.T) {
	raw := []byte(`{
		"format": {"duration": "10.0"},
		"streams": [
			{"codec_type": "video", "codec_name": "vp9", "width": 320, "height": 240,
			 "r_frame_rate": "0/0", "avg_frame_rate": "0/0"}
		]
	}`)

	info, err := parseProbe("clip.webm", raw)
	if err != nil {
		t.Fatalf("parseProbe failed: %v", err)
	}
	// neither nb_frames nor a frame rate: duration at the fallback rate
	if info.FrameCount != 300 {
		t.Errorf("expected 300 frames, got %d", info.FrameCount)
	}
}
