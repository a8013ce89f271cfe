package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v4/pgxpool"

	"pfp-quiz-service/internal/domain"
)

// ProfileLoader loads the candidate profiles of a mode from Postgres.
type ProfileLoader struct {
	pool *pgxpool.Pool
}

func NewProfileLoader(pool *pgxpool.Pool) *ProfileLoader {
	return &ProfileLoader{pool: pool}
}

func (l *ProfileLoader) LoadProfiles(ctx context.Context, mode domain.Mode) ([]domain.Profile, error) {
	rows, err := l.pool.Query(ctx,
		`SELECT fid, username, display_name, avatar_url, bio FROM profiles WHERE mode=$1 ORDER BY fid`,
		string(mode),
	)
	if err != nil {
		return nil, fmt.Errorf("load profiles: %w", err)
	}
	defer rows.Close()

	profiles := make([]domain.Profile, 0)
	for rows.Next() {
		var p domain.Profile
		if err := rows.Scan(&p.FID, &p.Username, &p.DisplayName, &p.AvatarURL, &p.Bio); err != nil {
			return nil, fmt.Errorf("scan profile: %w", err)
		}
		profiles = append(profiles, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load profiles: %w", err)
	}
	if len(profiles) == 0 {
		return nil, fmt.Errorf("%w: mode %s", domain.ErrNoProfiles, mode)
	}
	return profiles, nil
}

// SaveProfiles upserts a pool for mode; used to seed the directory.
func (l *ProfileLoader) SaveProfiles(ctx context.Context, mode domain.Mode, profiles []domain.Profile) error {
	for _, p := range profiles {
		_, err := l.pool.Exec(ctx,
			`INSERT INTO profiles (fid, mode, username, display_name, avatar_url, bio)
			 VALUES ($1, $2, $3, $4, $5, $6)
			 ON CONFLICT (mode, fid) DO UPDATE SET
			   username = EXCLUDED.username,
			   display_name = EXCLUDED.display_name,
			   avatar_url = EXCLUDED.avatar_url,
			   bio = EXCLUDED.bio`,
			p.FID, string(mode), p.Username, p.DisplayName, p.AvatarURL, p.Bio,
		)
		if err != nil {
			return fmt.Errorf("save profile %s: %w", p.Username, err)
		}
	}
	return nil
}
