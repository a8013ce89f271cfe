package app

import "math"

const (
	// BasePoints is awarded per correct answer before the combo multiplier.
	BasePoints = 100
	// MaxCombo caps the consecutive-correct multiplier.
	MaxCombo = 5
)

// ScoreForCorrectAnswer returns the points for a correct answer at the given combo.
func ScoreForCorrectAnswer(combo int) int {
	return BasePoints * combo
}

// NextCombo advances the multiplier after an answer; misses and timeouts reset it.
func NextCombo(current int, wasCorrect bool) int {
	if !wasCorrect {
		return 1
	}
	if current+1 > MaxCombo {
		return MaxCombo
	}
	return current + 1
}

// Accuracy is the rounded percentage of correct answers, 0 when nothing was answered.
func Accuracy(correct, answered int) int {
	if answered == 0 {
		return 0
	}
	return int(math.Round(100 * float64(correct) / float64(answered)))
}
