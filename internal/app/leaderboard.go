package app

import (
	"context"
	"errors"
	"log"
	"sort"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"pfp-quiz-service/internal/domain"
)

const (
	dailyPrefix   = "daily:"
	allTimePrefix = "alltime:"

	// DefaultLeaderboardLimit is the board size shown to players.
	DefaultLeaderboardLimit = 50

	fetchConcurrency = 8
)

func dailyKey(date string, fid int64) string {
	return dailyPrefix + date + ":" + strconv.FormatInt(fid, 10)
}

func allTimeKey(fid int64) string {
	return allTimePrefix + strconv.FormatInt(fid, 10)
}

// LeaderboardAggregator merges session results into the shared daily and
// all-time boards. RecordDaily is a read-then-write without atomicity: two
// sessions finishing for the same player and day at once can lose an update.
type LeaderboardAggregator struct {
	store KVStore
	now   func() time.Time
}

func NewLeaderboardAggregator(store KVStore, now func() time.Time) *LeaderboardAggregator {
	if now == nil {
		now = time.Now
	}
	return &LeaderboardAggregator{store: store, now: now}
}

// RecordDaily adds sessionScore to the player's entry for today, creating it when missing.
// A malformed existing entry is replaced rather than summed.
func (a *LeaderboardAggregator) RecordDaily(ctx context.Context, fid int64, today string, sessionScore int, profile domain.Profile, streak int) (domain.DailyEntry, error) {
	key := dailyKey(today, fid)
	dailyScore := sessionScore

	var existing domain.DailyEntry
	ok, err := getJSON(ctx, a.store, key, true, &existing)
	switch {
	case errors.Is(err, domain.ErrMalformedRecord):
		log.Printf("replacing malformed daily entry %s: %v", key, err)
	case err != nil:
		return domain.DailyEntry{}, err
	case ok:
		dailyScore = existing.DailyScore + sessionScore
	}

	entry := domain.DailyEntry{
		FID:        fid,
		Username:   profile.Username,
		AvatarURL:  profile.AvatarURL,
		DailyScore: dailyScore,
		Streak:     streak,
		Date:       today,
		Timestamp:  a.now(),
	}
	if err := setJSON(ctx, a.store, key, true, entry); err != nil {
		return domain.DailyEntry{}, err
	}
	return entry, nil
}

// RecordAllTime overwrites the player's all-time snapshot.
func (a *LeaderboardAggregator) RecordAllTime(ctx context.Context, fid int64, profile domain.Profile, totalScore, prestige int, levelName string, streak int) (domain.AllTimeEntry, error) {
	entry := domain.AllTimeEntry{
		FID:        fid,
		Username:   profile.Username,
		AvatarURL:  profile.AvatarURL,
		TotalScore: totalScore,
		Prestige:   prestige,
		LevelName:  levelName,
		Streak:     streak,
		Timestamp:  a.now(),
	}
	if err := setJSON(ctx, a.store, allTimeKey(fid), true, entry); err != nil {
		return domain.AllTimeEntry{}, err
	}
	return entry, nil
}

// TopDaily returns the best daily scores for date, highest first. Tie order is unspecified.
func (a *LeaderboardAggregator) TopDaily(ctx context.Context, date string, limit int) ([]domain.DailyEntry, error) {
	entries, err := fetchAll[domain.DailyEntry](ctx, a.store, dailyPrefix+date+":")
	if err != nil {
		return nil, err
	}
	filtered := entries[:0]
	for _, e := range entries {
		if e.Date == date {
			filtered = append(filtered, e)
		}
	}
	sort.SliceStable(filtered, func(i, j int) bool {
		return filtered[i].DailyScore > filtered[j].DailyScore
	})
	filtered = truncate(filtered, limit)
	for i := range filtered {
		filtered[i].Rank = i + 1
	}
	return filtered, nil
}

// TopAllTime returns the highest cumulative totals. Tie order is unspecified.
func (a *LeaderboardAggregator) TopAllTime(ctx context.Context, limit int) ([]domain.AllTimeEntry, error) {
	entries, err := fetchAll[domain.AllTimeEntry](ctx, a.store, allTimePrefix)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].TotalScore > entries[j].TotalScore
	})
	entries = truncate(entries, limit)
	for i := range entries {
		entries[i].Rank = i + 1
	}
	return entries, nil
}

// Boards is a paired snapshot of both leaderboards.
type Boards struct {
	Date    string                `json:"date"`
	Daily   []domain.DailyEntry   `json:"daily"`
	AllTime []domain.AllTimeEntry `json:"alltime"`
}

// Load fetches both boards; a failing board degrades to empty and the first error is returned.
func (a *LeaderboardAggregator) Load(ctx context.Context, date string, limit int) (Boards, error) {
	boards := Boards{Date: date, Daily: []domain.DailyEntry{}, AllTime: []domain.AllTimeEntry{}}
	daily, dailyErr := a.TopDaily(ctx, date, limit)
	if dailyErr == nil {
		boards.Daily = daily
	}
	alltime, allErr := a.TopAllTime(ctx, limit)
	if allErr == nil {
		boards.AllTime = alltime
	}
	if dailyErr != nil {
		return boards, dailyErr
	}
	return boards, allErr
}

// DailyStanding returns the player's rank on a daily board, 0 when absent.
func DailyStanding(entries []domain.DailyEntry, fid int64) int {
	for _, e := range entries {
		if e.FID == fid {
			return e.Rank
		}
	}
	return 0
}

// AllTimeStanding returns the player's rank on the all-time board, 0 when absent.
func AllTimeStanding(entries []domain.AllTimeEntry, fid int64) int {
	for _, e := range entries {
		if e.FID == fid {
			return e.Rank
		}
	}
	return 0
}

// fetchAll lists prefix and loads every entry concurrently, skipping vanished or malformed values.
func fetchAll[T any](ctx context.Context, store KVStore, prefix string) ([]T, error) {
	keys, err := store.List(ctx, prefix, true)
	if err != nil {
		return nil, storageErr("list "+prefix, err)
	}

	results := make([]*T, len(keys))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(fetchConcurrency)
	for i, key := range keys {
		i, key := i, key
		g.Go(func() error {
			var entry T
			ok, err := getJSON(gctx, store, key, true, &entry)
			if errors.Is(err, domain.ErrMalformedRecord) {
				log.Printf("skipping leaderboard entry: %v", err)
				return nil
			}
			if err != nil {
				return err
			}
			if ok {
				results[i] = &entry
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	entries := make([]T, 0, len(results))
	for _, r := range results {
		if r != nil {
			entries = append(entries, *r)
		}
	}
	return entries, nil
}

func truncate[T any](entries []T, limit int) []T {
	if limit <= 0 {
		limit = DefaultLeaderboardLimit
	}
	if len(entries) > limit {
		return entries[:limit]
	}
	return entries
}
