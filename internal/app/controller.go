package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"pfp-quiz-service/internal/clock"
	"pfp-quiz-service/internal/domain"
)

// SessionState is the mutable state of one play run, owned by a Controller.
type SessionState struct {
	SessionID         string                `json:"sessionId"`
	Mode              domain.Mode           `json:"mode"`
	QuestionLimit     domain.QuestionLimit  `json:"questionLimit"`
	SessionScore      int                   `json:"sessionScore"`
	Combo             int                   `json:"combo"`
	QuestionsAnswered int                   `json:"questionsAnswered"`
	CorrectAnswers    int                   `json:"correctAnswers"`
	History           []domain.AnswerRecord `json:"history"`
	Paused            bool                  `json:"paused"`
}

func newSessionState(mode domain.Mode, limit domain.QuestionLimit) SessionState {
	return SessionState{
		SessionID:     uuid.NewString(),
		Mode:          mode,
		QuestionLimit: limit,
		Combo:         1,
		History:       []domain.AnswerRecord{},
	}
}

// ControllerConfig holds timing and board parameters.
type ControllerConfig struct {
	Tick              time.Duration // countdown resolution, one second unit
	FeedbackDelay     time.Duration // auto-advance delay after a resolution
	LeaderboardLimit  int
	Location          *time.Location // reference zone for calendar days
	UserRecordsShared bool
	TimerChoices      []int
}

// DefaultControllerConfig mirrors the production timings.
func DefaultControllerConfig() ControllerConfig {
	return ControllerConfig{
		Tick:             time.Second,
		FeedbackDelay:    2500 * time.Millisecond,
		LeaderboardLimit: DefaultLeaderboardLimit,
		Location:         time.UTC,
		TimerChoices:     []int{5, 10},
	}
}

// ControllerDeps are the collaborators of a Controller.
type ControllerDeps struct {
	Store     KVStore
	Questions QuestionSource
	Scheduler clock.Scheduler
	Listener  Listener
	// Context is used for work triggered by timers, where no caller context exists.
	Context context.Context
}

// Controller is the per-player game state machine. Every entry point, including
// timer callbacks, runs under mu; callbacks carry the question sequence and
// timer generation they were armed with and do nothing once either is stale.
type Controller struct {
	mu sync.Mutex

	cfg       ControllerConfig
	profile   domain.Profile
	users     *UserRecords
	settings  *SettingsStore
	board     *LeaderboardAggregator
	questions QuestionSource
	sched     clock.Scheduler
	listener  Listener
	ctx       context.Context

	authenticated bool
	screen        Screen
	profileFrom   Screen
	boardFrom     Screen
	viewing       *domain.Profile

	state       SessionState
	question    domain.Question
	questionSeq int
	resolved    bool
	timeLeft    int
	feedback    *FeedbackView

	timer    clock.Handle
	timerGen int
	closed   bool

	record    domain.UserRecord
	hasRecord bool
	streak    int
	prefs     domain.Settings
	result    *ResultView
	boards    Boards

	// recordUnknown is set while the stored record could not be read; the
	// persisted total is not overwritten until a later load succeeds.
	recordUnknown bool
}

// NewController builds a controller for an authenticated profile. The player
// is not signed in until SignIn loads their records.
func NewController(profile domain.Profile, deps ControllerDeps, cfg ControllerConfig) *Controller {
	defaults := DefaultControllerConfig()
	if cfg.Tick <= 0 {
		cfg.Tick = defaults.Tick
	}
	if cfg.FeedbackDelay <= 0 {
		cfg.FeedbackDelay = defaults.FeedbackDelay
	}
	if cfg.LeaderboardLimit <= 0 {
		cfg.LeaderboardLimit = defaults.LeaderboardLimit
	}
	if cfg.Location == nil {
		cfg.Location = defaults.Location
	}
	if deps.Scheduler == nil {
		deps.Scheduler = clock.NewReal()
	}
	if deps.Listener == nil {
		deps.Listener = noopListener{}
	}
	if deps.Context == nil {
		deps.Context = context.Background()
	}

	return &Controller{
		cfg:       cfg,
		profile:   profile,
		users:     NewUserRecords(deps.Store, cfg.UserRecordsShared),
		settings:  NewSettingsStore(deps.Store, cfg.TimerChoices),
		board:     NewLeaderboardAggregator(deps.Store, deps.Scheduler.Now),
		questions: deps.Questions,
		sched:     deps.Scheduler,
		listener:  deps.Listener,
		ctx:       deps.Context,
		screen:    ScreenWelcome,
		timer:     clock.Noop,
		prefs:     domain.DefaultSettings(),
		streak:    1,
		state:     SessionState{Combo: 1, History: []domain.AnswerRecord{}},
	}
}

// Profile returns the signed-in player's identity.
func (c *Controller) Profile() domain.Profile {
	return c.profile
}

// Screen returns the current screen.
func (c *Controller) Screen() Screen {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.screen
}

// State returns a copy of the session state.
func (c *Controller) State() SessionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := c.state
	st.History = append([]domain.AnswerRecord(nil), c.state.History...)
	return st
}

// Progress returns the player's long-term progression view.
func (c *Controller) Progress() ProgressView {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.progressLocked()
}

// Result returns the last finished session's result, if any.
func (c *Controller) Result() (ResultView, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.result == nil {
		return ResultView{}, false
	}
	return *c.result, true
}

// SignIn loads the player's record and settings and computes today's streak.
// Storage failures degrade to a fresh record and default settings.
func (c *Controller) SignIn(ctx context.Context) (ProgressView, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.screen != ScreenWelcome {
		return ProgressView{}, c.invalid("sign in")
	}

	rec, ok, err := c.users.Load(ctx, c.profile.FID)
	if err != nil {
		log.Printf("load user %d: %v", c.profile.FID, err)
	}
	c.record, c.hasRecord = rec, ok
	c.recordUnknown = err != nil && !errors.Is(err, domain.ErrMalformedRecord)
	c.streak = c.streakForToday()

	prefs, err := c.settings.Load(ctx)
	if err != nil {
		log.Printf("load settings for %d: %v", c.profile.FID, err)
	}
	c.prefs = prefs

	c.authenticated = true
	c.screen = ScreenModeSelect
	view := c.progressLocked()
	c.emit(EventWelcome, view)
	return view, nil
}

// SelectMode records the chosen mode and moves on to picking a question count.
func (c *Controller) SelectMode(mode domain.Mode) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.screen != ScreenModeSelect {
		return c.invalid("select mode")
	}
	parsed, err := domain.ParseMode(string(mode))
	if err != nil {
		return err
	}
	c.state.Mode = parsed
	c.screen = ScreenQuestionSelect
	return nil
}

// StartSession resets the session, fetches the first question and starts the countdown.
func (c *Controller) StartSession(ctx context.Context, mode domain.Mode, limit domain.QuestionLimit) (QuestionView, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.authenticated {
		return QuestionView{}, domain.ErrNotAuthenticated
	}
	if !c.screen.in(ScreenModeSelect, ScreenQuestionSelect, ScreenResult, ScreenSummary, ScreenLeaderboard) {
		return QuestionView{}, c.invalid("start session")
	}
	mode, err := domain.ParseMode(string(mode))
	if err != nil {
		return QuestionView{}, err
	}
	if limit < 0 {
		return QuestionView{}, fmt.Errorf("%w: %d", domain.ErrInvalidQuestionLimit, limit)
	}

	q, err := nextValidQuestion(ctx, c.questions, mode)
	if err != nil {
		return QuestionView{}, err
	}

	c.stopTimerLocked()
	c.state = newSessionState(mode, limit)
	c.feedback = nil
	c.result = nil
	c.viewing = nil
	c.screen = ScreenPlaying
	return c.beginQuestionLocked(q), nil
}

// SubmitAnswer resolves the current question with the choice whose username matches.
func (c *Controller) SubmitAnswer(username string) (FeedbackView, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.resolved && c.answerPendingLocked() {
		return FeedbackView{}, domain.ErrAlreadyResolved
	}
	if c.screen != ScreenPlaying {
		return FeedbackView{}, c.invalid("submit answer")
	}
	choice, ok := c.question.Choice(username)
	if !ok {
		return FeedbackView{}, fmt.Errorf("%w: %q", domain.ErrUnknownChoice, username)
	}
	return c.resolveLocked(&choice, false), nil
}

// PauseForProfileView stops the auto-advance and shows the pictured profile.
func (c *Controller) PauseForProfileView() (domain.Profile, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.screen != ScreenFeedback {
		return domain.Profile{}, c.invalid("view profile")
	}
	c.stopTimerLocked()
	c.state.Paused = true
	profile := c.question.Correct
	c.viewing = &profile
	c.profileFrom = ScreenFeedback
	c.screen = ScreenProfile
	c.emit(EventProfile, profile)
	return profile, nil
}

// ViewHistoryProfile shows the pictured profile of a past question from the summary.
func (c *Controller) ViewHistoryProfile(index int) (domain.Profile, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.screen != ScreenSummary {
		return domain.Profile{}, c.invalid("view history profile")
	}
	if index < 0 || index >= len(c.state.History) {
		return domain.Profile{}, fmt.Errorf("history entry %d out of range [0,%d)", index, len(c.state.History))
	}
	profile := c.state.History[index].Question.Correct
	c.viewing = &profile
	c.profileFrom = ScreenSummary
	c.screen = ScreenProfile
	c.emit(EventProfile, profile)
	return profile, nil
}

// ResumeFromProfile leaves the profile view. A session whose limit was reached
// while paused ends instead of continuing.
func (c *Controller) ResumeFromProfile(ctx context.Context) (Screen, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.screen != ScreenProfile {
		return c.screen, c.invalid("resume")
	}
	c.viewing = nil

	if c.profileFrom == ScreenSummary {
		c.screen = ScreenSummary
		c.emit(EventSummary, c.summaryLocked())
		return c.screen, nil
	}

	c.state.Paused = false
	if c.state.QuestionLimit.Reached(c.state.QuestionsAnswered) {
		c.endSessionLocked(ctx)
		return c.screen, nil
	}

	c.screen = ScreenFeedback
	c.emit(EventResumed, c.screen)
	c.armAutoAdvanceLocked()
	return c.screen, nil
}

// Quit ends the running session immediately with the current score.
func (c *Controller) Quit(ctx context.Context) (ResultView, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.screen.in(ScreenPlaying, ScreenFeedback) {
		return ResultView{}, c.invalid("quit")
	}
	c.stopTimerLocked()
	c.endSessionLocked(ctx)
	return *c.result, nil
}

// ShowSummary lists the finished session's answers.
func (c *Controller) ShowSummary() (SummaryView, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.screen != ScreenResult {
		return SummaryView{}, c.invalid("show summary")
	}
	c.screen = ScreenSummary
	view := c.summaryLocked()
	c.emit(EventSummary, view)
	return view, nil
}

// ShowLeaderboard reloads both boards. Failures degrade to empty boards.
func (c *Controller) ShowLeaderboard(ctx context.Context) (Boards, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.screen.in(ScreenModeSelect, ScreenResult, ScreenSummary) {
		return Boards{}, c.invalid("show leaderboard")
	}
	c.boardFrom = c.screen
	c.boards = c.loadBoardsLocked(ctx)
	c.screen = ScreenLeaderboard
	c.emit(EventLeaderboard, c.boards)
	return c.boards, nil
}

// Back returns from the summary to the result, or from the leaderboard to where it was opened.
func (c *Controller) Back() (Screen, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.screen {
	case ScreenSummary:
		c.screen = ScreenResult
		c.emit(EventResult, *c.result)
	case ScreenLeaderboard:
		c.screen = c.boardFrom
		switch c.screen {
		case ScreenModeSelect:
			c.emit(EventModeSelect, c.progressLocked())
		case ScreenSummary:
			c.emit(EventSummary, c.summaryLocked())
		default:
			c.emit(EventResult, *c.result)
		}
	default:
		return c.screen, c.invalid("back")
	}
	return c.screen, nil
}

// PlayAgain returns to mode selection with a fresh session state.
func (c *Controller) PlayAgain() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.screen.in(ScreenResult, ScreenSummary, ScreenLeaderboard) {
		return c.invalid("play again")
	}
	c.stopTimerLocked()
	c.state = SessionState{Combo: 1, History: []domain.AnswerRecord{}}
	c.feedback = nil
	c.viewing = nil
	c.screen = ScreenModeSelect
	c.emit(EventModeSelect, c.progressLocked())
	return nil
}

// UpdateSettings validates and persists new settings. The timer applies from the next question.
func (c *Controller) UpdateSettings(ctx context.Context, settings domain.Settings) (domain.Settings, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.settings.Validate(settings); err != nil {
		return c.prefs, err
	}
	if err := c.settings.Save(ctx, settings); err != nil {
		log.Printf("save settings for %d: %v", c.profile.FID, err)
	}
	c.prefs = settings
	c.emit(EventSettings, settings)
	return settings, nil
}

// Close cancels all timers; pending callbacks become no-ops.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.stopTimerLocked()
}

func (c *Controller) beginQuestionLocked(q domain.Question) QuestionView {
	c.question = q
	c.questionSeq++
	c.resolved = false
	c.timeLeft = c.prefs.TimerDuration
	choices := make([]ChoiceView, len(q.Choices))
	for i, p := range q.Choices {
		choices[i] = ChoiceView{Username: p.Username, DisplayName: p.DisplayName}
	}
	view := QuestionView{
		Number:       c.state.QuestionsAnswered + 1,
		Limit:        c.state.QuestionLimit,
		Picture:      q.Correct.AvatarURL,
		Choices:      choices,
		TimeLeft:     c.timeLeft,
		SessionScore: c.state.SessionScore,
		Combo:        c.state.Combo,
	}
	c.emit(EventQuestion, view)
	c.armCountdownLocked()
	return view
}

// resolveLocked applies exactly one resolution to the current question.
func (c *Controller) resolveLocked(chosen *domain.Profile, timedOut bool) FeedbackView {
	c.resolved = true
	c.stopTimerLocked()

	correct := chosen != nil && chosen.Username == c.question.Correct.Username
	awarded := 0
	if correct {
		awarded = ScoreForCorrectAnswer(c.state.Combo)
		c.state.SessionScore += awarded
		c.state.CorrectAnswers++
	}
	c.state.Combo = NextCombo(c.state.Combo, correct)
	c.state.QuestionsAnswered++

	record := domain.AnswerRecord{
		Question:  c.question,
		Chosen:    chosen,
		IsCorrect: correct,
		TimedOut:  timedOut,
		Timestamp: c.sched.Now(),
	}
	c.state.History = append(c.state.History, record)

	view := FeedbackView{
		Record:       record,
		Awarded:      awarded,
		SessionScore: c.state.SessionScore,
		Combo:        c.state.Combo,
		LastQuestion: c.state.QuestionLimit.Reached(c.state.QuestionsAnswered),
		AdvanceInMs:  int(c.cfg.FeedbackDelay / time.Millisecond),
	}
	c.feedback = &view
	c.screen = ScreenFeedback
	c.emit(EventFeedback, view)
	c.armAutoAdvanceLocked()
	return view
}

// answerPendingLocked reports whether the screen still belongs to the question
// that was just resolved: its feedback, or the profile view paused over it.
func (c *Controller) answerPendingLocked() bool {
	return c.screen == ScreenFeedback || (c.screen == ScreenProfile && c.profileFrom == ScreenFeedback)
}

func (c *Controller) armCountdownLocked() {
	c.stopTimerLocked()
	seq, gen := c.questionSeq, c.timerGen
	c.timer = c.sched.Every(c.cfg.Tick, func() { c.onTick(seq, gen) })
}

func (c *Controller) armAutoAdvanceLocked() {
	c.stopTimerLocked()
	seq, gen := c.questionSeq, c.timerGen
	c.timer = c.sched.AfterFunc(c.cfg.FeedbackDelay, func() { c.onAutoAdvance(seq, gen) })
}

// stopTimerLocked cancels the owned timer and invalidates callbacks already in flight.
func (c *Controller) stopTimerLocked() {
	c.timer.Stop()
	c.timer = clock.Noop
	c.timerGen++
}

func (c *Controller) stale(seq, gen int) bool {
	return c.closed || seq != c.questionSeq || gen != c.timerGen
}

func (c *Controller) onTick(seq, gen int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stale(seq, gen) || c.screen != ScreenPlaying || c.resolved {
		return
	}
	c.timeLeft--
	c.emit(EventTick, TickView{TimeLeft: c.timeLeft})
	if c.timeLeft <= 0 {
		c.onTimeoutLocked()
	}
}

// onTimeoutLocked resolves the question as unanswered.
func (c *Controller) onTimeoutLocked() {
	c.resolveLocked(nil, true)
}

func (c *Controller) onAutoAdvance(seq, gen int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stale(seq, gen) || c.screen != ScreenFeedback {
		return
	}
	c.timer = clock.Noop
	c.advanceLocked(c.ctx)
}

// advanceLocked starts the next question or ends a session whose limit is reached.
func (c *Controller) advanceLocked(ctx context.Context) {
	if c.state.QuestionLimit.Reached(c.state.QuestionsAnswered) {
		c.endSessionLocked(ctx)
		return
	}
	q, err := nextValidQuestion(ctx, c.questions, c.state.Mode)
	if err != nil {
		log.Printf("next question for %d: %v; ending session", c.profile.FID, err)
		c.endSessionLocked(ctx)
		return
	}
	c.feedback = nil
	c.screen = ScreenPlaying
	c.beginQuestionLocked(q)
}

// endSessionLocked persists the player's totals, posts to both leaderboards and
// shows the result. Storage failures are logged; the in-memory totals still advance.
func (c *Controller) endSessionLocked(ctx context.Context) {
	c.stopTimerLocked()
	now := c.sched.Now()
	today := DayKey(now, c.cfg.Location)
	if c.recordUnknown {
		c.reloadRecordLocked(ctx)
	}
	c.streak = c.streakForToday()

	total := c.record.TotalScore + c.state.SessionScore
	rec := domain.UserRecord{
		FID:            c.profile.FID,
		TotalScore:     total,
		Streak:         c.streak,
		LastPlayedDate: today,
		Username:       c.profile.Username,
		AvatarURL:      c.profile.AvatarURL,
	}
	if c.recordUnknown {
		log.Printf("user %d: stored record unreadable, keeping session total in memory", c.profile.FID)
	} else if err := c.users.Save(ctx, rec); err != nil {
		log.Printf("save user %d: %v", c.profile.FID, err)
	}
	c.record, c.hasRecord = rec, true

	level := LevelFor(total)
	if _, err := c.board.RecordDaily(ctx, c.profile.FID, today, c.state.SessionScore, c.profile, c.streak); err != nil {
		log.Printf("record daily score for %d: %v", c.profile.FID, err)
	}
	if !c.recordUnknown {
		if _, err := c.board.RecordAllTime(ctx, c.profile.FID, c.profile, total, PrestigeFor(total), level.Name, c.streak); err != nil {
			log.Printf("record all-time score for %d: %v", c.profile.FID, err)
		}
	}
	c.boards = c.loadBoardsLocked(ctx)

	c.state.Paused = false
	c.feedback = nil
	c.result = &ResultView{
		SessionID:         c.state.SessionID,
		Mode:              c.state.Mode,
		Limit:             c.state.QuestionLimit,
		SessionScore:      c.state.SessionScore,
		QuestionsAnswered: c.state.QuestionsAnswered,
		CorrectAnswers:    c.state.CorrectAnswers,
		Accuracy:          Accuracy(c.state.CorrectAnswers, c.state.QuestionsAnswered),
		Progress:          c.progressLocked(),
		DailyRank:         DailyStanding(c.boards.Daily, c.profile.FID),
		AllTimeRank:       AllTimeStanding(c.boards.AllTime, c.profile.FID),
		Boards:            c.boards,
	}
	c.screen = ScreenResult
	c.emit(EventResult, *c.result)
}

// reloadRecordLocked retries a record load that failed at sign-in. Points
// earned since then are carried onto the stored total.
func (c *Controller) reloadRecordLocked(ctx context.Context) {
	stored, ok, err := c.users.Load(ctx, c.profile.FID)
	if err != nil && !errors.Is(err, domain.ErrMalformedRecord) {
		log.Printf("reload user %d: %v", c.profile.FID, err)
		return
	}
	unsaved := c.record.TotalScore
	c.record, c.hasRecord, c.recordUnknown = stored, ok, false
	c.record.TotalScore += unsaved
}

func (c *Controller) loadBoardsLocked(ctx context.Context) Boards {
	today := DayKey(c.sched.Now(), c.cfg.Location)
	boards, err := c.board.Load(ctx, today, c.cfg.LeaderboardLimit)
	if err != nil {
		log.Printf("load leaderboards: %v", err)
	}
	return boards
}

// streakForToday derives the streak from the last persisted record.
func (c *Controller) streakForToday() int {
	if !c.hasRecord {
		return 1
	}
	return UpdateStreak(c.record.LastPlayedDate, c.record.Streak, c.sched.Now(), c.cfg.Location)
}

func (c *Controller) progressLocked() ProgressView {
	total := c.record.TotalScore
	return ProgressView{
		Profile:       c.profile,
		TotalScore:    total,
		Streak:        c.streak,
		Level:         LevelFor(total),
		Prestige:      PrestigeFor(total),
		LevelProgress: LevelProgress(total),
		Settings:      c.prefs,
	}
}

func (c *Controller) summaryLocked() SummaryView {
	return SummaryView{History: append([]domain.AnswerRecord(nil), c.state.History...)}
}

func (c *Controller) emit(t EventType, payload any) {
	c.listener.OnEvent(Event{Type: t, Payload: payload})
}

func (c *Controller) invalid(op string) error {
	return fmt.Errorf("%w: cannot %s on %s screen", domain.ErrInvalidTransition, op, c.screen)
}
