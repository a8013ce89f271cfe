package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ChoicesPerQuestion is the number of profiles offered for each picture.
const ChoicesPerQuestion = 4

// Profile is a player identity as returned by the identity provider or profile directory.
type Profile struct {
	FID         int64  `json:"fid"`
	Username    string `json:"username"`
	AvatarURL   string `json:"avatarUrl"`
	DisplayName string `json:"displayName"`
	Bio         string `json:"bio,omitempty"`
}

// ExternalURL links to the profile on the social client.
func (p Profile) ExternalURL() string {
	return "https://warpcast.com/" + p.Username
}

// Question pairs the pictured profile with its shuffled choices.
type Question struct {
	Correct Profile   `json:"correct"`
	Choices []Profile `json:"choices"`
}

// Choice returns the offered profile with the given username.
func (q Question) Choice(username string) (Profile, bool) {
	for _, c := range q.Choices {
		if c.Username == username {
			return c, true
		}
	}
	return Profile{}, false
}

// Validate checks that the question has four distinct choices containing the correct profile exactly once.
func (q Question) Validate() error {
	if len(q.Choices) != ChoicesPerQuestion {
		return fmt.Errorf("%w: question has %d choices", ErrInvariantViolation, len(q.Choices))
	}
	seen := make(map[string]struct{}, len(q.Choices))
	correct := 0
	for _, c := range q.Choices {
		if c.Username == "" {
			return fmt.Errorf("%w: choice without username", ErrInvariantViolation)
		}
		if _, ok := seen[c.Username]; ok {
			return fmt.Errorf("%w: duplicate username %q", ErrInvariantViolation, c.Username)
		}
		seen[c.Username] = struct{}{}
		if c.Username == q.Correct.Username {
			correct++
		}
	}
	if correct != 1 {
		return fmt.Errorf("%w: correct profile offered %d times", ErrInvariantViolation, correct)
	}
	return nil
}

// AnswerRecord is the immutable outcome of one resolved question.
type AnswerRecord struct {
	Question  Question  `json:"question"`
	Chosen    *Profile  `json:"chosen,omitempty"`
	IsCorrect bool      `json:"isCorrect"`
	TimedOut  bool      `json:"timedOut"`
	Timestamp time.Time `json:"timestamp"`
}

// Mode selects which part of the social graph questions are drawn from.
type Mode string

const (
	ModeFollowers    Mode = "followers"
	ModeFollowing    Mode = "following"
	ModeInteractions Mode = "interactions"
)

// Modes lists every playable mode in menu order.
var Modes = []Mode{ModeFollowers, ModeFollowing, ModeInteractions}

// ParseMode validates a mode name.
func ParseMode(raw string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(raw))); m {
	case ModeFollowers, ModeFollowing, ModeInteractions:
		return m, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidMode, raw)
}

// QuestionLimit bounds a session; the zero value means endless.
type QuestionLimit int

// Endless is the unbounded question limit.
const Endless QuestionLimit = 0

// ParseQuestionLimit accepts "endless" or a positive integer.
func ParseQuestionLimit(raw string) (QuestionLimit, error) {
	raw = strings.TrimSpace(raw)
	if strings.EqualFold(raw, "endless") {
		return Endless, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidQuestionLimit, raw)
	}
	return QuestionLimit(n), nil
}

// IsEndless reports whether the session only ends on quit.
func (l QuestionLimit) IsEndless() bool { return l == Endless }

// Reached reports whether answered questions exhaust a bounded limit.
func (l QuestionLimit) Reached(answered int) bool {
	return !l.IsEndless() && answered >= int(l)
}

func (l QuestionLimit) String() string {
	if l.IsEndless() {
		return "endless"
	}
	return strconv.Itoa(int(l))
}

// MarshalText renders the limit as "endless" or its count.
func (l QuestionLimit) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

// UnmarshalText is the inverse of MarshalText.
func (l *QuestionLimit) UnmarshalText(b []byte) error {
	parsed, err := ParseQuestionLimit(string(b))
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

// UserRecord is the persisted per-player progression.
type UserRecord struct {
	FID            int64  `json:"fid"`
	TotalScore     int    `json:"totalScore"`
	Streak         int    `json:"streak"`
	LastPlayedDate string `json:"lastPlayedDate,omitempty"`
	Username       string `json:"username"`
	AvatarURL      string `json:"avatarUrl"`
}

// DailyEntry accumulates a player's score for one calendar day.
type DailyEntry struct {
	FID        int64     `json:"fid"`
	Username   string    `json:"username"`
	AvatarURL  string    `json:"avatarUrl"`
	DailyScore int       `json:"dailyScore"`
	Streak     int       `json:"streak"`
	Date       string    `json:"date"`
	Timestamp  time.Time `json:"timestamp"`
	Rank       int       `json:"rank,omitempty"`
}

// AllTimeEntry mirrors the authoritative UserRecord for the all-time board.
type AllTimeEntry struct {
	FID        int64     `json:"fid"`
	Username   string    `json:"username"`
	AvatarURL  string    `json:"avatarUrl"`
	TotalScore int       `json:"totalScore"`
	Prestige   int       `json:"prestige"`
	LevelName  string    `json:"level"`
	Streak     int       `json:"streak"`
	Timestamp  time.Time `json:"timestamp"`
	Rank       int       `json:"rank,omitempty"`
}

// Level is one band of the progression table.
type Level struct {
	Name  string `json:"name"`
	Min   int    `json:"min"`
	Max   int    `json:"max"`
	Color string `json:"color"`
}

// Contains reports whether score falls inside the band (inclusive).
func (l Level) Contains(score int) bool {
	return score >= l.Min && score <= l.Max
}

// Theme names accepted in Settings.
const (
	ThemeCosmic  = "cosmic"
	ThemeBase    = "base"
	ThemeRainbow = "rainbow"
)

// Settings are the player's persisted preferences.
type Settings struct {
	TimerDuration int    `json:"timerDuration"` // seconds per question
	DarkMode      bool   `json:"darkMode"`
	Theme         string `json:"theme"`
}

// DefaultSettings matches a first-time player.
func DefaultSettings() Settings {
	return Settings{TimerDuration: 5, DarkMode: false, Theme: ThemeCosmic}
}
