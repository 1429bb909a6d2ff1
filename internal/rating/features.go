package rating

import (
	"math"

	"github.com/keagan/emotionplayer/internal/darkframe"
	"github.com/keagan/emotionplayer/internal/tensor"
)

// Filter class columns.
const (
	classExplicit = 1
	classGore     = 2
)

// classStats returns the per-class mean and population standard deviation
// of preds. With skipMasked, dark-frame rows are left out. used is the
// number of rows that contributed.
func classStats(preds *tensor.Predictions, skipMasked bool) (means, stds []float64, used int) {
	if preds.Empty() {
		return nil, nil, 0
	}
	means = make([]float64, preds.Classes)
	stds = make([]float64, preds.Classes)

	for i := 0; i < preds.Count; i++ {
		if skipMasked && darkframe.IsMasked(preds, i) {
			continue
		}
		used++
		for c, v := range preds.Row(i) {
			means[c] += float64(v)
		}
	}
	if used == 0 {
		return means, stds, 0
	}
	for c := range means {
		means[c] /= float64(used)
	}

	for i := 0; i < preds.Count; i++ {
		if skipMasked && darkframe.IsMasked(preds, i) {
			continue
		}
		for c, v := range preds.Row(i) {
			d := float64(v) - means[c]
			stds[c] += d * d
		}
	}
	for c := range stds {
		stds[c] = math.Sqrt(stds[c] / float64(used))
	}
	return means, stds, used
}

// Features builds the rating model input: positiveness mean and stddev per
// class, filter mean and stddev per class over lit frames, then the
// fraction of dark frames.
func Features(positiveness, filter *tensor.Predictions) []float32 {
	pm, ps, _ := classStats(positiveness, false)
	fm, fs, used := classStats(filter, true)

	out := make([]float32, 0, 2*len(pm)+2*len(fm)+1)
	for c := range pm {
		out = append(out, float32(pm[c]), float32(ps[c]))
	}
	for c := range fm {
		out = append(out, float32(fm[c]), float32(fs[c]))
	}

	dark := 0.0
	if !filter.Empty() {
		dark = float64(filter.Count-used) / float64(filter.Count)
	}
	return append(out, float32(dark))
}

// AggregateLabel rates a video from filter predictions alone. It returns
// false when there are no lit frames or too few classes.
func AggregateLabel(filter *tensor.Predictions) (string, bool) {
	if filter.Empty() || filter.Classes <= classGore {
		return unrated, false
	}

	means, stds, used := classStats(filter, true)
	if used == 0 {
		return unrated, false
	}

	switch {
	case means[classExplicit] > 0.4:
		return Porn, true
	case means[classGore] > 0.4:
		return Gore, true
	case means[classExplicit]+means[classGore] > 0.5:
		return NC17, true
	}

	// peak-ish level of combined explicit and gore content
	level := means[classExplicit] + 2*stds[classExplicit] + means[classGore] + 2*stds[classGore]
	switch {
	case level < 0.02:
		return G, true
	case level < 0.1:
		return PG, true
	case level < 0.25:
		return PG13, true
	default:
		return R, true
	}
}
