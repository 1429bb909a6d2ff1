package ffmpeg

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/keagan/emotionplayer/pkg/util"
)

// ProbeVideo extracts metadata from a video file
func (e *Executor) ProbeVideo(ctx context.Context, filePath string) (*VideoInfo, error) {
	if filePath == "" {
		return nil, fmt.Errorf("file path is required")
	}

	args := []string{
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		filePath,
	}

	output, err := e.output(ctx, e.ffprobePath, args)
	if err != nil {
		return nil, fmt.Errorf("ffprobe failed: %w", err)
	}

	return parseProbe(filePath, output)
}

func parseProbe(filePath string, output []byte) (*VideoInfo, error) {
	var probe probeResult
	if err := json.Unmarshal(output, &probe); err != nil {
		return nil, fmt.Errorf("failed to parse ffprobe output: %w", err)
	}

	info := &VideoInfo{
		FilePath: filePath,
	}

	// Parse duration
	if dur, err := strconv.ParseFloat(probe.Format.Duration, 64); err == nil {
		info.Duration = time.Duration(dur * float64(time.Second))
	}

	// Extract video stream info; the first video stream wins
	for _, stream := range probe.Streams {
		if stream.CodecType != "video" || info.HasVideo {
			continue
		}
		info.HasVideo = true
		info.Width = stream.Width
		info.Height = stream.Height
		info.VideoCodec = stream.CodecName

		// r_frame_rate is e.g. "30000/1001"; avg_frame_rate covers VFR files
		info.FPS = util.ParseFrameRate(stream.RFrameRate)
		if info.FPS <= 0 {
			info.FPS = util.ParseFrameRate(stream.AvgFrameRate)
		}
		if n, err := strconv.Atoi(stream.NbFrames); err == nil {
			info.FrameCount = n
		}
		if info.Duration == 0 {
			if dur, err := strconv.ParseFloat(stream.Duration, 64); err == nil {
				info.Duration = time.Duration(dur * float64(time.Second))
			}
		}
	}

	// Containers like mkv do not report nb_frames. A missing frame rate
	// falls back to the rate Capture seeks with.
	if info.FrameCount == 0 && info.Duration > 0 {
		fps := info.FPS
		if fps <= 0 || math.IsNaN(fps) || math.IsInf(fps, 0) {
			fps = fallbackFPS
		}
		info.FrameCount = int(math.Round(info.Duration.Seconds() * fps))
	}

	return info, nil
}

// probeResult matches ffprobe JSON output structure
type probeResult struct {
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
	Streams []struct {
		CodecType    string `json:"codec_type"`
		CodecName    string `json:"codec_name"`
		Width        int    `json:"width"`
		Height       int    `json:"height"`
		RFrameRate   string `json:"r_frame_rate"`
		AvgFrameRate string `json:"avg_frame_rate"`
		NbFrames     string `json:"nb_frames"`
		Duration     string `json:"duration"`
	} `json:"streams"`
}
