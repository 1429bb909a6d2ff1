package darkframe

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/keagan/emotionplayer/internal/tensor"
)

func fill(f *tensor.Frames, i int, v float32) {
	for j := range f.Frame(i) {
		f.Frame(i)[j] = v
	}
}

func TestBrightness(t *testing.T) {
	f := tensor.NewFrames(2, 2, 2)
	fill(f, 1, 0.5)

	assert.Equal(t, 0.0, Brightness(f, 0))
	assert.InDelta(t, 0.5, Brightness(f, 1), 1e-9)
}

func TestIsDark(t *testing.T) {
	f := tensor.NewFrames(3, 1, 1)
	fill(f, 0, 0.01)
	fill(f, 1, 0.02)
	fill(f, 2, 0.03)

	assert.True(t, IsDark(f, 0, DefaultThreshold))
	assert.False(t, IsDark(f, 1, DefaultThreshold))
	assert.False(t, IsDark(f, 2, DefaultThreshold))
}

func TestThresholdBoundaryIsNotDark(t *testing.T) {
	f := tensor.NewFrames(1, 2, 2)
	fill(f, 0, 0.5)
	assert.False(t, IsDark(f, 0, 0.5))
	assert.True(t, IsDark(f, 0, 0.51))

	edge := tensor.NewFrames(1, 2, 2)
	fill(edge, 0, DefaultThreshold)
	preds := tensor.NewPredictions(1, 3)
	copy(preds.Row(0), []float32{0.7, 0.2, 0.1})

	assert.Equal(t, 0, Mask(edge, preds, DefaultThreshold))
	assert.Equal(t, []float32{0.7, 0.2, 0.1}, preds.Row(0))
}

func TestMask(t *testing.T) {
	f := tensor.NewFrames(4, 1, 1)
	fill(f, 1, 0.8)
	fill(f, 3, 0.4)

	preds := tensor.NewPredictions(4, 3)
	for i := range preds.Data {
		preds.Data[i] = 0.3
	}

	masked := Mask(f, preds, DefaultThreshold)
	assert.Equal(t, 2, masked)

	assert.Equal(t, []float32{-1, -1, -1}, preds.Row(0))
	assert.Equal(t, []float32{0.3, 0.3, 0.3}, preds.Row(1))
	assert.Equal(t, []float32{-1, -1, -1}, preds.Row(2))
	assert.True(t, IsMasked(preds, 2))
	assert.False(t, IsMasked(preds, 3))
}

func TestMaskEmpty(t *testing.T) {
	assert.Equal(t, 0, Mask(tensor.NewFrames(0, 1, 1), tensor.NewPredictions(0, 3), DefaultThreshold))
}
