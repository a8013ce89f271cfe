package app_test

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"pfp-quiz-service/internal/app"
	"pfp-quiz-service/internal/clock"
	"pfp-quiz-service/internal/domain"
	"pfp-quiz-service/internal/infra/memory"
)

var (
	startTime = time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	player    = domain.Profile{FID: 42, Username: "player42", AvatarURL: "https://img/42.png"}
)

// fixedSource always serves the same question with alice as the answer.
type fixedSource struct{}

func (fixedSource) NextQuestion(context.Context, domain.Mode) (domain.Question, error) {
	return sampleQuestion(), nil
}

func sampleQuestion() domain.Question {
	alice := domain.Profile{FID: 1, Username: "alice", AvatarURL: "https://img/alice.png"}
	return domain.Question{
		Correct: alice,
		Choices: []domain.Profile{
			{FID: 2, Username: "bob"},
			alice,
			{FID: 3, Username: "carol"},
			{FID: 4, Username: "dave"},
		},
	}
}

// scriptedSource replays a list of results, then repeats the last one.
type scriptedSource struct {
	mu    sync.Mutex
	steps []func() (domain.Question, error)
	calls int
}

func (s *scriptedSource) NextQuestion(context.Context, domain.Mode) (domain.Question, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.calls
	if i >= len(s.steps) {
		i = len(s.steps) - 1
	}
	s.calls++
	return s.steps[i]()
}

func valid() (domain.Question, error) { return sampleQuestion(), nil }

func duplicated() (domain.Question, error) {
	q := sampleQuestion()
	q.Choices[0] = q.Choices[2]
	return q, nil
}

func unavailable() (domain.Question, error) {
	return domain.Question{}, errors.New("profile directory down")
}

// failingBackend fails every call, like an unreachable KV store.
type failingBackend struct{}

func (failingBackend) ForOwner(string) app.KVStore { return failingStore{} }

type failingStore struct{}

var errDown = errors.New("connection refused")

func (failingStore) Get(context.Context, string, bool) (string, bool, error) {
	return "", false, errDown
}

func (failingStore) Set(context.Context, string, string, bool) error { return errDown }

func (failingStore) List(context.Context, string, bool) ([]string, error) { return nil, errDown }

// unreadableUsers fails reads of user records while down is set; every other
// call reaches the wrapped store.
type unreadableUsers struct {
	app.KVStore
	down bool
}

func (s *unreadableUsers) Get(ctx context.Context, key string, shared bool) (string, bool, error) {
	if s.down && strings.HasPrefix(key, "user:") {
		return "", false, errDown
	}
	return s.KVStore.Get(ctx, key, shared)
}

type recorder struct {
	mu     sync.Mutex
	events []app.Event
}

func (r *recorder) OnEvent(e app.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) count(t app.EventType) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Type == t {
			n++
		}
	}
	return n
}

func (r *recorder) last() app.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.events) == 0 {
		return app.Event{}
	}
	return r.events[len(r.events)-1]
}

type harness struct {
	t      *testing.T
	c      *app.Controller
	sched  *clock.Manual
	kv     *memory.KVStore
	events *recorder
}

func newHarness(t *testing.T, src app.QuestionSource) *harness {
	t.Helper()
	return newHarnessWith(t, src, memory.NewKVStore(), clock.NewManual(startTime), player)
}

func newHarnessWith(t *testing.T, src app.QuestionSource, kv *memory.KVStore, sched *clock.Manual, profile domain.Profile) *harness {
	t.Helper()
	h := &harness{t: t, sched: sched, kv: kv, events: &recorder{}}
	var backend app.KVBackend = kv
	h.c = app.NewController(profile, app.ControllerDeps{
		Store:     backend.ForOwner(ownerOf(profile)),
		Questions: src,
		Scheduler: sched,
		Listener:  h.events,
	}, app.DefaultControllerConfig())
	return h
}

func ownerOf(p domain.Profile) string {
	return strconv.FormatInt(p.FID, 10)
}

func (h *harness) signIn() app.ProgressView {
	h.t.Helper()
	view, err := h.c.SignIn(context.Background())
	if err != nil {
		h.t.Fatalf("sign in: %v", err)
	}
	return view
}

func (h *harness) start(limit domain.QuestionLimit) app.QuestionView {
	h.t.Helper()
	q, err := h.c.StartSession(context.Background(), domain.ModeFollowers, limit)
	if err != nil {
		h.t.Fatalf("start session: %v", err)
	}
	return q
}

func (h *harness) answer(username string) app.FeedbackView {
	h.t.Helper()
	fb, err := h.c.SubmitAnswer(username)
	if err != nil {
		h.t.Fatalf("submit %s: %v", username, err)
	}
	return fb
}

// next lets the feedback delay elapse.
func (h *harness) next() {
	h.sched.Advance(2500 * time.Millisecond)
}
