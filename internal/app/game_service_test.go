package app_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"pfp-quiz-service/internal/app"
	"pfp-quiz-service/internal/clock"
	"pfp-quiz-service/internal/domain"
	"pfp-quiz-service/internal/infra/memory"
)

func newService(sched *clock.Manual) (*app.GameService, *memory.KVStore) {
	kv := memory.NewKVStore()
	service := app.NewGameService(
		memory.NewMockIdentityProvider(player),
		kv,
		fixedSource{},
		memory.NewSessionStore(),
		app.GameServiceOptions{Scheduler: sched, StoreTimeout: time.Second},
	)
	return service, kv
}

func TestGameServiceSignInReplacesController(t *testing.T) {
	sched := clock.NewManual(startTime)
	service, _ := newService(sched)
	ctx := context.Background()

	first, view, err := service.SignIn(ctx, "42", nil)
	if err != nil {
		t.Fatalf("sign in: %v", err)
	}
	if view.Profile.Username != "player42" || first.Screen() != app.ScreenModeSelect {
		t.Fatalf("unexpected sign in %+v on %s", view, first.Screen())
	}
	if _, err := first.StartSession(ctx, domain.ModeFollowers, 3); err != nil {
		t.Fatalf("start: %v", err)
	}

	second, _, err := service.SignIn(ctx, "42", nil)
	if err != nil {
		t.Fatalf("second sign in: %v", err)
	}
	got, err := service.Controller(42)
	if err != nil || got != second {
		t.Fatalf("expected second controller registered, err=%v", err)
	}

	// The replaced controller is closed and no longer times out.
	sched.Advance(10 * time.Second)
	if first.Screen() != app.ScreenPlaying || len(first.State().History) != 0 {
		t.Fatalf("replaced controller kept running: %s", first.Screen())
	}

	// Signing out a stale controller leaves the live one registered.
	service.SignOut(42, first)
	if _, err := service.Controller(42); err != nil {
		t.Fatalf("stale sign out removed the live controller: %v", err)
	}
	service.SignOut(42, second)
	if _, err := service.Controller(42); !errors.Is(err, domain.ErrPlayerNotFound) {
		t.Fatalf("expected ErrPlayerNotFound, got %v", err)
	}
}

func TestGameServiceRejectsBadHandshake(t *testing.T) {
	service, _ := newService(clock.NewManual(startTime))
	for _, token := range []string{"", "abc", "0"} {
		if _, _, err := service.SignIn(context.Background(), token, nil); !errors.Is(err, domain.ErrAuthenticationFailed) {
			t.Fatalf("%q: expected ErrAuthenticationFailed, got %v", token, err)
		}
	}
}

func TestGameServiceLeaderboards(t *testing.T) {
	sched := clock.NewManual(startTime)
	service, _ := newService(sched)
	ctx := context.Background()

	c, _, err := service.SignIn(ctx, "42", nil)
	if err != nil {
		t.Fatalf("sign in: %v", err)
	}
	if _, err := c.StartSession(ctx, domain.ModeFollowers, 1); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := c.SubmitAnswer("alice"); err != nil {
		t.Fatalf("answer: %v", err)
	}
	sched.Advance(2500 * time.Millisecond)

	if service.Today() != "2024-03-10" {
		t.Fatalf("unexpected today %s", service.Today())
	}
	boards, err := service.Leaderboards(ctx, "", 0)
	if err != nil {
		t.Fatalf("leaderboards: %v", err)
	}
	if len(boards.Daily) != 1 || boards.Daily[0].Username != "player42" || boards.Daily[0].DailyScore != 100 {
		t.Fatalf("unexpected daily board %+v", boards.Daily)
	}
	if len(boards.AllTime) != 1 || boards.AllTime[0].TotalScore != 100 {
		t.Fatalf("unexpected all-time board %+v", boards.AllTime)
	}

	past, err := service.Leaderboards(ctx, "2024-03-09", 5)
	if err != nil || len(past.Daily) != 0 || past.Date != "2024-03-09" {
		t.Fatalf("expected empty past board, got %+v err=%v", past, err)
	}
	if _, err := service.Leaderboards(ctx, "10/03/2024", 5); err == nil {
		t.Fatalf("expected malformed date rejected")
	}
}

// trackedSessions adds shared presence to the in-memory registry.
type trackedSessions struct {
	*memory.SessionStore
	touched map[int64]int
	down    bool
}

func (s *trackedSessions) Touch(_ context.Context, fid int64) error {
	if s.down {
		return errDown
	}
	s.touched[fid]++
	return nil
}

func (s *trackedSessions) Online(_ context.Context, fid int64) (bool, error) {
	if s.down {
		return false, errDown
	}
	return s.touched[fid] > 0, nil
}

func TestGameServiceOnlineUsesLocalRegistry(t *testing.T) {
	service, _ := newService(clock.NewManual(startTime))
	ctx := context.Background()

	if online, err := service.Online(ctx, 42); err != nil || online {
		t.Fatalf("expected offline before sign in, online=%v err=%v", online, err)
	}
	c, _, err := service.SignIn(ctx, "42", nil)
	if err != nil {
		t.Fatalf("sign in: %v", err)
	}
	service.Touch(ctx, 42)
	if online, err := service.Online(ctx, 42); err != nil || !online {
		t.Fatalf("expected online, online=%v err=%v", online, err)
	}
	service.SignOut(42, c)
	if online, _ := service.Online(ctx, 42); online {
		t.Fatalf("expected offline after sign out")
	}
}

func TestGameServiceOnlineUsesPresenceTracker(t *testing.T) {
	players := &trackedSessions{SessionStore: memory.NewSessionStore(), touched: map[int64]int{}}
	service := app.NewGameService(
		memory.NewMockIdentityProvider(player),
		memory.NewKVStore(),
		fixedSource{},
		players,
		app.GameServiceOptions{Scheduler: clock.NewManual(startTime)},
	)
	ctx := context.Background()

	service.Touch(ctx, 7)
	service.Touch(ctx, 7)
	if players.touched[7] != 2 {
		t.Fatalf("expected two touches, got %d", players.touched[7])
	}
	if online, err := service.Online(ctx, 7); err != nil || !online {
		t.Fatalf("expected tracker answer, online=%v err=%v", online, err)
	}

	players.down = true
	service.Touch(ctx, 7)
	if _, err := service.Online(ctx, 7); !errors.Is(err, domain.ErrStorageUnavailable) {
		t.Fatalf("expected ErrStorageUnavailable, got %v", err)
	}
}
