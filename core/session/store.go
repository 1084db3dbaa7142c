package session

import "context"

// Store persists sessions keyed by a page-scoped user id.
//
// Get returns a fresh empty session for an unknown id; absence is never
// an error. Set upserts the full snapshot. Clear removes the session;
// clearing an unknown id is a no-op.
type Store interface {
	Get(ctx context.Context, id string) (*Session, error)
	Set(ctx context.Context, id string, sess *Session) error
	Clear(ctx context.Context, id string) error
}
