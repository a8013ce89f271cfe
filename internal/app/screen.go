package app

// Screen is the controller's current step in the game flow.
type Screen int

const (
	ScreenWelcome Screen = iota
	ScreenModeSelect
	ScreenQuestionSelect
	ScreenPlaying
	ScreenFeedback
	ScreenProfile
	ScreenResult
	ScreenSummary
	ScreenLeaderboard
)

var screenNames = [...]string{
	ScreenWelcome:        "welcome",
	ScreenModeSelect:     "modeSelect",
	ScreenQuestionSelect: "questionSelect",
	ScreenPlaying:        "playing",
	ScreenFeedback:       "feedback",
	ScreenProfile:        "profile",
	ScreenResult:         "result",
	ScreenSummary:        "summary",
	ScreenLeaderboard:    "leaderboard",
}

func (s Screen) String() string {
	if s < 0 || int(s) >= len(screenNames) {
		return "unknown"
	}
	return screenNames[s]
}

func (s Screen) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// in reports whether s is one of the given screens.
func (s Screen) in(screens ...Screen) bool {
	for _, candidate := range screens {
		if s == candidate {
			return true
		}
	}
	return false
}
