package session_test

import (
	"testing"

	"github.com/m3rciful/mbot/core/session"
	"github.com/m3rciful/mbot/core/session/sessiontest"
)

func TestMemoryStore_Contract(t *testing.T) {
	sessiontest.RunStoreContract(t, session.NewMemoryStore())
}
