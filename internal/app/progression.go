package app

import (
	"fmt"
	"log"
	"math"

	"pfp-quiz-service/internal/domain"
)

// PrestigeCycle is the score span of one full trip through the level table.
const PrestigeCycle = 9000

// Levels is the ordered progression table. Lookups use the score within the
// current prestige cycle, so the terminal band is never selected by LevelFor.
var Levels = []domain.Level{
	{Name: "Wanderer", Min: 0, Max: 999, Color: "#8B7355"},
	{Name: "Seeker", Min: 1000, Max: 1999, Color: "#6B8E23"},
	{Name: "Mystic", Min: 2000, Max: 2999, Color: "#4B0082"},
	{Name: "Oracle", Min: 3000, Max: 3999, Color: "#9370DB"},
	{Name: "Champion", Min: 4000, Max: 4999, Color: "#FFD700"},
	{Name: "Sage", Min: 5000, Max: 5999, Color: "#00CED1"},
	{Name: "Archmage", Min: 6000, Max: 6999, Color: "#FF1493"},
	{Name: "Titan", Min: 7000, Max: 7999, Color: "#FF4500"},
	{Name: "Demigod", Min: 8000, Max: 8999, Color: "#DC143C"},
	{Name: "Eternal", Min: 9000, Max: math.MaxInt, Color: "#9400D3"},
}

// LevelFor returns the band containing totalScore within its prestige cycle.
func LevelFor(totalScore int) domain.Level {
	inCycle := scoreInCycle(totalScore)
	for _, level := range Levels {
		if level.Contains(inCycle) {
			return level
		}
	}
	log.Printf("level table has no band for %d, falling back to %s", inCycle, Levels[0].Name)
	return Levels[0]
}

// PrestigeFor counts completed cycles.
func PrestigeFor(totalScore int) int {
	if totalScore < 0 {
		return 0
	}
	return totalScore / PrestigeCycle
}

// LevelProgress is the percentage of the way from the current band to the next.
func LevelProgress(totalScore int) int {
	inCycle := scoreInCycle(totalScore)
	level := LevelFor(totalScore)
	span := level.Max + 1 - level.Min
	if level.Max == math.MaxInt || span <= 0 {
		return 100
	}
	return (inCycle - level.Min) * 100 / span
}

// CheckLevelTable verifies the bands cover [0, PrestigeCycle) contiguously.
func CheckLevelTable(levels []domain.Level) error {
	next := 0
	for _, level := range levels {
		if next >= PrestigeCycle {
			break
		}
		if level.Min != next || level.Max < level.Min {
			return fmt.Errorf("%w: band %s starts at %d, want %d", domain.ErrInvariantViolation, level.Name, level.Min, next)
		}
		next = level.Max + 1
	}
	if next < PrestigeCycle {
		return fmt.Errorf("%w: bands end at %d", domain.ErrInvariantViolation, next)
	}
	return nil
}

func scoreInCycle(totalScore int) int {
	if totalScore < 0 {
		return 0
	}
	return totalScore % PrestigeCycle
}
