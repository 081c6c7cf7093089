package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/simon-b64/study-questions/internal/progress"
)

const dbTimeout = 5 * time.Second

// PostgresRemote is a PostgreSQL-backed Remote. Each (owner, course) pair
// owns one row; the progress document lives in a jsonb column with unset
// date fields omitted. The record's lastActivityAt is mirrored into a
// native timestamptz column for ad-hoc SQL inspection, but the document
// stays authoritative: timestamptz truncates to microseconds while the
// RFC 3339 strings in the document round-trip nanoseconds exactly, and
// the conflict comparison needs the untruncated value.
type PostgresRemote struct {
	pool *pgxpool.Pool
}

// NewPostgresRemote creates a PostgreSQL-backed remote store and ensures
// its schema exists.
func NewPostgresRemote(ctx context.Context, pool *pgxpool.Pool) (*PostgresRemote, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is nil")
	}

	_, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS course_progress (
			owner_id         text NOT NULL,
			course_id        text NOT NULL,
			data             jsonb NOT NULL,
			last_activity_at timestamptz,
			updated_at       timestamptz NOT NULL DEFAULT now(),
			PRIMARY KEY (owner_id, course_id)
		)`)
	if err != nil {
		return nil, fmt.Errorf("creating course_progress table: %w", err)
	}

	return &PostgresRemote{pool: pool}, nil
}

func (s *PostgresRemote) Available() bool {
	return s != nil && s.pool != nil
}

func (s *PostgresRemote) SaveProgress(ctx context.Context, ownerID string, p progress.CourseProgress) error {
	if ownerID == "" {
		return fmt.Errorf("owner id is required")
	}

	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("serializing progress: %w", err)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO course_progress (owner_id, course_id, data, last_activity_at, updated_at)
		 VALUES ($1, $2, $3, $4, now())
		 ON CONFLICT (owner_id, course_id)
		 DO UPDATE SET data = EXCLUDED.data,
		               last_activity_at = EXCLUDED.last_activity_at,
		               updated_at = now()`,
		ownerID,
		p.CourseID,
		data,
		nullIfNilTime(p.LastActivityAt),
	)
	if err != nil {
		return fmt.Errorf("saving progress: %w", err)
	}
	return nil
}

func (s *PostgresRemote) LoadProgress(ctx context.Context, ownerID, courseID string) (*progress.CourseProgress, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	var data []byte
	err := s.pool.QueryRow(ctx,
		`SELECT data
		 FROM course_progress
		 WHERE owner_id = $1 AND course_id = $2`,
		ownerID, courseID,
	).Scan(&data)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("loading progress: %w", err)
	}

	var p progress.CourseProgress
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("decoding stored progress: %w", err)
	}
	return &p, nil
}

func (s *PostgresRemote) ClearProgress(ctx context.Context, ownerID, courseID string) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	_, err := s.pool.Exec(ctx,
		`DELETE FROM course_progress WHERE owner_id = $1 AND course_id = $2`,
		ownerID, courseID,
	)
	if err != nil {
		return fmt.Errorf("clearing progress: %w", err)
	}
	return nil
}

func nullIfNilTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}
