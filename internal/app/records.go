package app

import (
	"context"
	"fmt"
	"strconv"

	"pfp-quiz-service/internal/domain"
)

const settingsKey = "settings"

func userKey(fid int64) string {
	return "user:" + strconv.FormatInt(fid, 10)
}

// UserRecords loads and saves UserRecord values. Shared selects whether the
// records live in the shared keyspace (deployment choice) or the private one.
type UserRecords struct {
	store  KVStore
	shared bool
}

func NewUserRecords(store KVStore, shared bool) *UserRecords {
	return &UserRecords{store: store, shared: shared}
}

// Load returns ok=false when the player has never finished a session.
func (r *UserRecords) Load(ctx context.Context, fid int64) (domain.UserRecord, bool, error) {
	var rec domain.UserRecord
	ok, err := getJSON(ctx, r.store, userKey(fid), r.shared, &rec)
	if err != nil || !ok {
		return domain.UserRecord{}, false, err
	}
	return rec, true, nil
}

func (r *UserRecords) Save(ctx context.Context, rec domain.UserRecord) error {
	return setJSON(ctx, r.store, userKey(rec.FID), r.shared, rec)
}

// SettingsStore persists the private settings record.
type SettingsStore struct {
	store        KVStore
	timerChoices []int
}

// NewSettingsStore accepts the allowed timer durations in seconds; empty means 5 or 10.
func NewSettingsStore(store KVStore, timerChoices []int) *SettingsStore {
	if len(timerChoices) == 0 {
		timerChoices = []int{5, 10}
	}
	return &SettingsStore{store: store, timerChoices: timerChoices}
}

// Load returns stored settings, or defaults when none are saved.
func (s *SettingsStore) Load(ctx context.Context) (domain.Settings, error) {
	settings := domain.DefaultSettings()
	ok, err := getJSON(ctx, s.store, settingsKey, false, &settings)
	if err != nil {
		return domain.DefaultSettings(), err
	}
	if !ok {
		return domain.DefaultSettings(), nil
	}
	if err := s.Validate(settings); err != nil {
		return domain.DefaultSettings(), fmt.Errorf("%w: %v", domain.ErrMalformedRecord, err)
	}
	return settings, nil
}

func (s *SettingsStore) Save(ctx context.Context, settings domain.Settings) error {
	if err := s.Validate(settings); err != nil {
		return err
	}
	return setJSON(ctx, s.store, settingsKey, false, settings)
}

// Validate checks the timer against the allowed choices and the theme name.
func (s *SettingsStore) Validate(settings domain.Settings) error {
	timerOK := false
	for _, choice := range s.timerChoices {
		if settings.TimerDuration == choice {
			timerOK = true
			break
		}
	}
	if !timerOK {
		return fmt.Errorf("%w: timer %ds not in %v", domain.ErrInvalidSettings, settings.TimerDuration, s.timerChoices)
	}
	switch settings.Theme {
	case domain.ThemeCosmic, domain.ThemeBase, domain.ThemeRainbow:
	default:
		return fmt.Errorf("%w: unknown theme %q", domain.ErrInvalidSettings, settings.Theme)
	}
	return nil
}
