package results

import "github.com/keagan/emotionplayer/internal/tensor"

// Emotion is the overlay state shown at a playback position.
type Emotion int

const (
	Neutral Emotion = iota
	Happy
	Sad
)

func (e Emotion) String() string {
	switch e {
	case Happy:
		return "happy"
	case Sad:
		return "sad"
	default:
		return "neutral"
	}
}

// SentimentAt returns the emotion for playback second given positiveness
// predictions sampled every interval seconds.
func SentimentAt(preds *tensor.Predictions, interval, second int) Emotion {
	if preds.Empty() || preds.Classes < 2 || interval <= 0 || second < 0 {
		return Neutral
	}

	index := second / interval
	if index > preds.Count-1 {
		index = preds.Count - 1
	}

	if preds.At(index, 1) > 0.5 {
		return Happy
	}
	return Sad
}

// CountSentiment splits frames into positive and negative by class 0.
func CountSentiment(preds *tensor.Predictions) (pos, neg int) {
	if preds.Empty() {
		return 0, 0
	}
	for i := 0; i < preds.Count; i++ {
		if preds.At(i, 0) >= 0.5 {
			pos++
		} else {
			neg++
		}
	}
	return pos, neg
}
