package postgres_test

import (
	"os"
	"testing"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/require"

	"github.com/m3rciful/mbot/core/session/postgres"
	"github.com/m3rciful/mbot/core/session/sessiontest"
)

// The contract test needs a live database with the sessions table
// applied. Point MBOT_TEST_DATABASE_DSN at one to run it.
func TestPostgresStore_Contract(t *testing.T) {
	dsn := os.Getenv("MBOT_TEST_DATABASE_DSN")
	if dsn == "" {
		t.Skip("MBOT_TEST_DATABASE_DSN not set")
	}

	db, err := sqlx.Connect("postgres", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	sessiontest.RunStoreContract(t, postgres.New(db))
}
