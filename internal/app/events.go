package app

import "pfp-quiz-service/internal/domain"

// EventType names a controller notification.
type EventType string

const (
	EventWelcome     EventType = "welcome"
	EventQuestion    EventType = "question"
	EventTick        EventType = "tick"
	EventFeedback    EventType = "feedback"
	EventProfile     EventType = "profile"
	EventResumed     EventType = "resumed"
	EventResult      EventType = "result"
	EventSummary     EventType = "summary"
	EventLeaderboard EventType = "leaderboard"
	EventSettings    EventType = "settings"
	EventModeSelect  EventType = "modeSelect"
)

// Event is delivered to a Listener whenever the controller changes state.
type Event struct {
	Type    EventType `json:"type"`
	Payload any       `json:"payload"`
}

// Listener receives controller events. It is called while the controller is
// locked, so it must not block or call back into the controller.
type Listener interface {
	OnEvent(Event)
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc func(Event)

// OnEvent implements Listener.
func (f ListenerFunc) OnEvent(e Event) {
	if f != nil {
		f(e)
	}
}

type noopListener struct{}

func (noopListener) OnEvent(Event) {}

// ProgressView summarizes the signed-in player's long-term progression.
type ProgressView struct {
	Profile       domain.Profile  `json:"profile"`
	TotalScore    int             `json:"totalScore"`
	Streak        int             `json:"streak"`
	Level         domain.Level    `json:"level"`
	Prestige      int             `json:"prestige"`
	LevelProgress int             `json:"levelProgress"`
	Settings      domain.Settings `json:"settings"`
}

// ChoiceView is one answer button. Avatars are withheld so the picture cannot be matched.
type ChoiceView struct {
	Username    string `json:"username"`
	DisplayName string `json:"displayName"`
}

// QuestionView is what the player sees for a new question.
type QuestionView struct {
	Number       int                  `json:"number"`
	Limit        domain.QuestionLimit `json:"limit"`
	Picture      string               `json:"picture"`
	Choices      []ChoiceView         `json:"choices"`
	TimeLeft     int                  `json:"timeLeft"`
	SessionScore int                  `json:"sessionScore"`
	Combo        int                  `json:"combo"`
}

// TickView reports the countdown.
type TickView struct {
	TimeLeft int `json:"timeLeft"`
}

// FeedbackView describes how the last question resolved.
type FeedbackView struct {
	Record       domain.AnswerRecord `json:"record"`
	Awarded      int                 `json:"awarded"`
	SessionScore int                 `json:"sessionScore"`
	Combo        int                 `json:"combo"`
	LastQuestion bool                `json:"lastQuestion"`
	// AdvanceInMs is the auto-advance delay in milliseconds.
	AdvanceInMs  int                 `json:"advanceInMs"`
}

// ResultView is shown once a session ends.
type ResultView struct {
	SessionID         string               `json:"sessionId"`
	Mode              domain.Mode          `json:"mode"`
	Limit             domain.QuestionLimit `json:"limit"`
	SessionScore      int                  `json:"sessionScore"`
	QuestionsAnswered int                  `json:"questionsAnswered"`
	CorrectAnswers    int                  `json:"correctAnswers"`
	Accuracy          int                  `json:"accuracy"`
	Progress          ProgressView         `json:"progress"`
	DailyRank         int                  `json:"dailyRank"`
	AllTimeRank       int                  `json:"allTimeRank"`
	Boards            Boards               `json:"boards"`
}

// SummaryView lists every resolved question of the finished session.
type SummaryView struct {
	History []domain.AnswerRecord `json:"history"`
}
