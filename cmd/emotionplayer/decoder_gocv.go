//go:build gocv

package main

import (
	"context"

	"github.com/keagan/emotionplayer/internal/ffmpeg/gocvcap"
	"github.com/keagan/emotionplayer/internal/sampler"
)

func gocvOpener() (sampler.Opener, error) {
	return sampler.OpenerFunc(func(ctx context.Context, path string) (sampler.Capture, error) {
		c, err := gocvcap.Open(ctx, path)
		if err != nil {
			return nil, err
		}
		return c, nil
	}), nil
}
