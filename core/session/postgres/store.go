// Package postgres implements the session store backend on a single
// sessions table with a jsonb payload column.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/m3rciful/mbot/core/session"
)

// Store implements session.Store over postgres via sqlx.
type Store struct {
	db *sqlx.DB
}

// New creates a postgres-backed store. The sessions table is expected
// to exist; migrations live under the migrations directory.
func New(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// Get loads the session for id. A missing row yields an empty session.
func (s *Store) Get(ctx context.Context, id string) (*session.Session, error) {
	var data []byte
	err := s.db.GetContext(ctx, &data, `SELECT data FROM sessions WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return session.New(), nil
		}
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	sess := session.New()
	if err := json.Unmarshal(data, sess); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	return sess, nil
}

// Set upserts the full session snapshot for id.
func (s *Store) Set(ctx context.Context, id string, sess *session.Session) error {
	if sess == nil {
		sess = session.New()
	}
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, data, updated_at)
		VALUES ($1, $2::jsonb, now())
		ON CONFLICT (id) DO UPDATE
		SET data = EXCLUDED.data, updated_at = now()`,
		id, string(data),
	)
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

// Clear removes the session row for id. Removing an unknown id is a no-op.
func (s *Store) Clear(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}
