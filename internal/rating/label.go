package rating

import "math"

// Film ratings produced by the classifier.
const (
	G       = "G"
	PG      = "PG"
	PG13    = "PG-13"
	R       = "R"
	NC17    = "NC-17"
	Unsafe  = "Unsafe"
	Porn    = "Porn"
	Gore    = "Gore"
	unrated = ""
)

// unsafeScore is the score the rating model emits for content it refuses
// to place on the scale.
const unsafeScore = 2.0

// Label maps a rating model score to a film rating. It returns false for NaN.
func Label(score float64) (string, bool) {
	switch {
	case math.IsNaN(score):
		return unrated, false
	case score == unsafeScore:
		return Unsafe, true
	case score < 0.0796:
		return G, true
	case score < 0.216:
		return PG, true
	case score < 0.464:
		return PG13, true
	default:
		return R, true
	}
}
