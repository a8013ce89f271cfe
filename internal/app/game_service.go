package app

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"time"

	"pfp-quiz-service/internal/clock"
	"pfp-quiz-service/internal/domain"
)

// ControllerRepository tracks the live controller of each signed-in player (in-memory, Redis, etc).
type ControllerRepository interface {
	// Put registers c and returns the controller it replaced, if any.
	Put(fid int64, c *Controller) *Controller
	Get(fid int64) (*Controller, bool)
	// Delete removes the entry only if it still points at c.
	Delete(fid int64, c *Controller)
}

// PresenceTracker is implemented by repositories that publish who is online
// beyond this process. Markers expire unless touched.
type PresenceTracker interface {
	Touch(ctx context.Context, fid int64) error
	Online(ctx context.Context, fid int64) (bool, error)
}

// GameService wires authenticated players to their controllers.
type GameService struct {
	identity  IdentityProvider
	backend   KVBackend
	questions QuestionSource
	players   ControllerRepository
	sched     clock.Scheduler
	cfg       ControllerConfig
	timeout   time.Duration
}

// GameServiceOptions tunes a GameService.
type GameServiceOptions struct {
	Scheduler    clock.Scheduler
	Controller   ControllerConfig
	StoreTimeout time.Duration
}

func NewGameService(identity IdentityProvider, backend KVBackend, questions QuestionSource, players ControllerRepository, opts GameServiceOptions) *GameService {
	if opts.Scheduler == nil {
		opts.Scheduler = clock.NewReal()
	}
	defaults := DefaultControllerConfig()
	if opts.Controller.Location == nil {
		opts.Controller.Location = defaults.Location
	}
	if opts.Controller.LeaderboardLimit <= 0 {
		opts.Controller.LeaderboardLimit = defaults.LeaderboardLimit
	}
	return &GameService{
		identity:  identity,
		backend:   backend,
		questions: questions,
		players:   players,
		sched:     opts.Scheduler,
		cfg:       opts.Controller,
		timeout:   opts.StoreTimeout,
	}
}

// SignIn authenticates the handshake, loads the player's records and registers
// a controller. An earlier controller for the same player is closed.
func (s *GameService) SignIn(ctx context.Context, handshake string, listener Listener) (*Controller, ProgressView, error) {
	profile, err := s.identity.Authenticate(ctx, handshake)
	if err != nil {
		return nil, ProgressView{}, fmt.Errorf("%w: %v", domain.ErrAuthenticationFailed, err)
	}
	if profile.Username == "" {
		return nil, ProgressView{}, fmt.Errorf("%w: empty profile", domain.ErrAuthenticationFailed)
	}

	c := NewController(profile, ControllerDeps{
		Store:     WithTimeout(s.backend.ForOwner(strconv.FormatInt(profile.FID, 10)), s.timeout),
		Questions: s.questions,
		Scheduler: s.sched,
		Listener:  listener,
		Context:   context.WithoutCancel(ctx),
	}, s.cfg)

	view, err := c.SignIn(ctx)
	if err != nil {
		return nil, ProgressView{}, err
	}
	if prev := s.players.Put(profile.FID, c); prev != nil && prev != c {
		prev.Close()
	}
	return c, view, nil
}

// Controller returns the live controller for a player.
func (s *GameService) Controller(fid int64) (*Controller, error) {
	c, ok := s.players.Get(fid)
	if !ok {
		return nil, domain.ErrPlayerNotFound
	}
	return c, nil
}

// SignOut stops the controller's timers and forgets it.
func (s *GameService) SignOut(fid int64, c *Controller) {
	c.Close()
	s.players.Delete(fid, c)
}

// Touch refreshes the player's presence marker. Repositories without
// shared presence ignore it.
func (s *GameService) Touch(ctx context.Context, fid int64) {
	tracker, ok := s.players.(PresenceTracker)
	if !ok {
		return
	}
	if err := tracker.Touch(ctx, fid); err != nil {
		log.Printf("refresh presence of %d: %v", fid, err)
	}
}

// Online reports whether fid is signed in, on any instance when the
// repository shares presence and on this one otherwise.
func (s *GameService) Online(ctx context.Context, fid int64) (bool, error) {
	if tracker, ok := s.players.(PresenceTracker); ok {
		online, err := tracker.Online(ctx, fid)
		if err != nil {
			return false, fmt.Errorf("%w: presence: %w", domain.ErrStorageUnavailable, err)
		}
		return online, nil
	}
	_, ok := s.players.Get(fid)
	return ok, nil
}

// Leaderboards loads both boards for date (today when empty).
func (s *GameService) Leaderboards(ctx context.Context, date string, limit int) (Boards, error) {
	if date == "" {
		date = s.Today()
	} else if _, err := time.Parse(DayLayout, date); err != nil {
		return Boards{}, fmt.Errorf("invalid date %q: %w", date, err)
	}
	if limit <= 0 {
		limit = s.cfg.LeaderboardLimit
	}
	agg := NewLeaderboardAggregator(WithTimeout(s.backend.ForOwner(""), s.timeout), s.sched.Now)
	return agg.Load(ctx, date, limit)
}

// Today is the current calendar day in the configured zone.
func (s *GameService) Today() string {
	return DayKey(s.sched.Now(), s.cfg.Location)
}
