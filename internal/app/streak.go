package app

import "time"

// DayLayout is the calendar-day format used in records and keys.
const DayLayout = "2006-01-02"

// DayKey formats t as a calendar day in loc.
func DayKey(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format(DayLayout)
}

// DiffDays counts calendar days from earlier to later in loc, ignoring time of day.
func DiffDays(later, earlier time.Time, loc *time.Location) int {
	if loc == nil {
		loc = time.UTC
	}
	a := truncateDay(later.In(loc))
	b := truncateDay(earlier.In(loc))
	// Dates are pinned to UTC midnight so DST shifts cannot skew the hour count.
	return int(a.Sub(b).Hours() / 24)
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// UpdateStreak computes today's streak from the last played day.
// An empty or unparseable lastPlayed counts as a first play.
func UpdateStreak(lastPlayed string, previous int, today time.Time, loc *time.Location) int {
	if loc == nil {
		loc = time.UTC
	}
	if lastPlayed == "" {
		return 1
	}
	last, err := time.ParseInLocation(DayLayout, lastPlayed, loc)
	if err != nil {
		return 1
	}
	switch DiffDays(today, last, loc) {
	case 0:
		return max(previous, 1)
	case 1:
		return max(previous, 1) + 1
	default:
		return 1
	}
}
