// Package darkframe masks predictions for frames too dark to classify.
package darkframe

import "github.com/keagan/emotionplayer/internal/tensor"

const (
	// DefaultThreshold is the mean normalized brightness below which a
	// frame counts as dark.
	DefaultThreshold = 0.02

	// Sentinel replaces every class score of a dark frame.
	Sentinel float32 = -1
)

// Brightness returns the mean of all channel values of frame i.
func Brightness(frames *tensor.Frames, i int) float64 {
	data := frames.Frame(i)
	if len(data) == 0 {
		return 0
	}
	var sum float64
	for _, v := range data {
		sum += float64(v)
	}
	return sum / float64(len(data))
}

// IsDark reports whether frame i is strictly below threshold. The
// comparison is made at the tensor's float32 precision, so a frame filled
// with exactly the threshold value is not dark.
func IsDark(frames *tensor.Frames, i int, threshold float64) bool {
	return float32(Brightness(frames, i)) < float32(threshold)
}

// Mask overwrites the row of every dark frame with Sentinel and returns
// how many rows were masked. frames and preds must describe the same
// number of frames.
func Mask(frames *tensor.Frames, preds *tensor.Predictions, threshold float64) int {
	masked := 0
	for i := 0; i < preds.Count && i < frames.Count; i++ {
		if !IsDark(frames, i, threshold) {
			continue
		}
		row := preds.Row(i)
		for c := range row {
			row[c] = Sentinel
		}
		masked++
	}
	return masked
}

// IsMasked reports whether row i of preds was masked.
func IsMasked(preds *tensor.Predictions, i int) bool {
	for _, v := range preds.Row(i) {
		if v != Sentinel {
			return false
		}
	}
	return preds.Classes > 0
}
