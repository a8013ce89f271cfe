package app

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"pfp-quiz-service/internal/domain"
)

// QuestionSource supplies the next picture and its choices for a mode.
type QuestionSource interface {
	NextQuestion(ctx context.Context, mode domain.Mode) (domain.Question, error)
}

// ProfileRepository returns the candidate profiles for a mode (cache/backing store).
type ProfileRepository interface {
	GetProfiles(ctx context.Context, mode domain.Mode) ([]domain.Profile, error)
}

// IdentityProvider authenticates a player from an opaque handshake.
type IdentityProvider interface {
	Authenticate(ctx context.Context, handshake string) (domain.Profile, error)
}

const questionAttempts = 3

// nextValidQuestion asks src for a question and rejects malformed ones before they reach scoring.
func nextValidQuestion(ctx context.Context, src QuestionSource, mode domain.Mode) (domain.Question, error) {
	var lastErr error
	for attempt := 0; attempt < questionAttempts; attempt++ {
		q, err := src.NextQuestion(ctx, mode)
		if err != nil {
			return domain.Question{}, err
		}
		if lastErr = q.Validate(); lastErr == nil {
			return q, nil
		}
	}
	return domain.Question{}, fmt.Errorf("question source: %w", lastErr)
}

// lockedRand serializes a math/rand source shared by concurrent sessions.
type lockedRand struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

func newLockedRand(seed int64) *lockedRand {
	return &lockedRand{rnd: rand.New(rand.NewSource(seed))}
}

func (r *lockedRand) Intn(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rnd.Intn(n)
}

func (r *lockedRand) Shuffle(n int, swap func(i, j int)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rnd.Shuffle(n, swap)
}

// RandomQuestionSource synthesizes profiles on the fly. It stands in for the
// social graph until a profile directory is configured.
type RandomQuestionSource struct {
	rnd *lockedRand
}

func NewRandomQuestionSource(seed int64) *RandomQuestionSource {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &RandomQuestionSource{rnd: newLockedRand(seed)}
}

func (s *RandomQuestionSource) NextQuestion(_ context.Context, _ domain.Mode) (domain.Question, error) {
	choices := make([]domain.Profile, 0, domain.ChoicesPerQuestion)
	seen := make(map[string]struct{}, domain.ChoicesPerQuestion)
	for len(choices) < domain.ChoicesPerQuestion {
		p := MockProfile(int64(s.rnd.Intn(100000)), s.rnd.Intn(10000))
		if _, dup := seen[p.Username]; dup {
			continue
		}
		seen[p.Username] = struct{}{}
		choices = append(choices, p)
	}
	correct := choices[0]
	s.rnd.Shuffle(len(choices), func(i, j int) { choices[i], choices[j] = choices[j], choices[i] })
	return domain.Question{Correct: correct, Choices: choices}, nil
}

// MockProfile builds a placeholder identity with a generated avatar.
func MockProfile(fid int64, handle int) domain.Profile {
	return domain.Profile{
		FID:         fid,
		Username:    fmt.Sprintf("user%d", handle),
		AvatarURL:   fmt.Sprintf("https://api.dicebear.com/7.x/avataaars/svg?seed=%d", fid),
		DisplayName: fmt.Sprintf("User %d", handle),
		Bio:         "Farcaster user exploring the network!",
	}
}

// PoolQuestionSource draws a correct profile and three distractors from a profile directory.
type PoolQuestionSource struct {
	profiles ProfileRepository
	rnd      *lockedRand
}

func NewPoolQuestionSource(profiles ProfileRepository, seed int64) *PoolQuestionSource {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &PoolQuestionSource{profiles: profiles, rnd: newLockedRand(seed)}
}

func (s *PoolQuestionSource) NextQuestion(ctx context.Context, mode domain.Mode) (domain.Question, error) {
	pool, err := s.profiles.GetProfiles(ctx, mode)
	if err != nil {
		return domain.Question{}, err
	}

	// Deduplicate by username before sampling so choices stay distinguishable.
	unique := make([]domain.Profile, 0, len(pool))
	seen := make(map[string]struct{}, len(pool))
	for _, p := range pool {
		if p.Username == "" {
			continue
		}
		if _, ok := seen[p.Username]; ok {
			continue
		}
		seen[p.Username] = struct{}{}
		unique = append(unique, p)
	}
	if len(unique) < domain.ChoicesPerQuestion {
		return domain.Question{}, fmt.Errorf("%w: mode %s has %d", domain.ErrNoProfiles, mode, len(unique))
	}

	picked := make([]domain.Profile, domain.ChoicesPerQuestion)
	idx := make([]int, len(unique))
	for i := range idx {
		idx[i] = i
	}
	s.rnd.Shuffle(len(idx), func(i, j int) { idx[i], idx[j] = idx[j], idx[i] })
	for i := range picked {
		picked[i] = unique[idx[i]]
	}
	correct := picked[s.rnd.Intn(len(picked))]
	return domain.Question{Correct: correct, Choices: picked}, nil
}
