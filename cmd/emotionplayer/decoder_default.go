//go:build !gocv

package main

import (
	"errors"

	"github.com/keagan/emotionplayer/internal/sampler"
)

func gocvOpener() (sampler.Opener, error) {
	return nil, errors.New(`decoder "gocv" needs a build with -tags gocv`)
}
