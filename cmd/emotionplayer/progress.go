package main

import (
	"fmt"
	"io"
	"sync"

	"github.com/rs/zerolog"
	"github.com/schollz/progressbar/v3"

	"github.com/keagan/emotionplayer/internal/logging"
	"github.com/keagan/emotionplayer/internal/pipeline"
	"github.com/keagan/emotionplayer/internal/results"
	"github.com/keagan/emotionplayer/internal/tensor"
)

// progressDisplay renders one bar per video and pass.
type progressDisplay struct {
	out    io.Writer
	logger zerolog.Logger

	mu    sync.Mutex
	bar   *progressbar.ProgressBar
	key   string
	video string
}

func newProgressDisplay(out io.Writer) *progressDisplay {
	return &progressDisplay{out: out, logger: logging.WithComponent("cli")}
}

func (d *progressDisplay) newBar(description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(100,
		progressbar.OptionSetWriter(d.out),
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "█",
			SaucerHead:    "█",
			SaucerPadding: "░",
			BarStart:      "▐",
			BarEnd:        "▌",
		}),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowCount(),
		progressbar.OptionSetPredictTime(false),
		progressbar.OptionSetRenderBlankState(true),
		progressbar.OptionOnCompletion(func() { fmt.Fprintln(d.out) }),
	)
}

func (d *progressDisplay) callbacks() pipeline.Callbacks {
	return pipeline.Callbacks{
		Progress: func(percent int, stage, video string) {
			d.mu.Lock()
			defer d.mu.Unlock()

			key := video + "/" + stage
			if d.key != key {
				if d.bar != nil {
					_ = d.bar.Finish()
				}
				d.bar = d.newBar(fmt.Sprintf("%s · %s", video, stage))
				d.key = key
			}
			_ = d.bar.Set(percent)
		},
		StateChanged: func(video string, state pipeline.State) {
			d.mu.Lock()
			d.video = video
			d.mu.Unlock()
			d.logger.Debug().Str("video", video).Stringer("state", state).Msg("stage")
		},
		PositivenessResult: func(preds *tensor.Predictions, interval int) {
			pos, neg := results.CountSentiment(preds)
			d.logger.Info().Int("positive", pos).Int("negative", neg).Int("interval", interval).Msg("positiveness scored")
		},
		InterpretedResult: func(rating string) {
			d.mu.Lock()
			video := d.video
			d.mu.Unlock()
			d.logger.Info().Str("video", video).Str("rating", rating).Msg("video rated")
		},
	}
}

func (d *progressDisplay) finish() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.bar != nil {
		_ = d.bar.Finish()
		d.bar = nil
	}
}
