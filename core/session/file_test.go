package session_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m3rciful/mbot/core/session"
	"github.com/m3rciful/mbot/core/session/sessiontest"
)

func TestFileStore_Contract(t *testing.T) {
	store, err := session.NewFileStore(filepath.Join(t.TempDir(), "sessions.json"))
	require.NoError(t, err)
	sessiontest.RunStoreContract(t, store)
}

func TestFileStore_PersistsAcrossInstances(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessions.json")
	ctx := context.Background()

	store, err := session.NewFileStore(path)
	require.NoError(t, err)

	sess := session.New()
	sess.Set("__scene", "survey")
	sess.Set("step", 1)
	require.NoError(t, store.Set(ctx, "u1", sess))

	reopened, err := session.NewFileStore(path)
	require.NoError(t, err)

	loaded, err := reopened.Get(ctx, "u1")
	require.NoError(t, err)
	name, ok := loaded.GetString("__scene")
	require.True(t, ok)
	assert.Equal(t, "survey", name)
	step, ok := loaded.GetInt("step")
	require.True(t, ok)
	assert.Equal(t, 1, step)
}

func TestFileStore_WholeStoreInOneFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessions.json")
	ctx := context.Background()

	store, err := session.NewFileStore(path)
	require.NoError(t, err)

	a := session.New()
	a.Set("k", "va")
	b := session.New()
	b.Set("k", "vb")
	require.NoError(t, store.Set(ctx, "alice", a))
	require.NoError(t, store.Set(ctx, "bob", b))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var decoded map[string]map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Len(t, decoded, 2)
	assert.Contains(t, decoded, "alice")
	assert.Contains(t, decoded, "bob")
}

func TestFileStore_ClearRewritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessions.json")
	ctx := context.Background()

	store, err := session.NewFileStore(path)
	require.NoError(t, err)

	sess := session.New()
	sess.Set("k", "v")
	require.NoError(t, store.Set(ctx, "u1", sess))
	require.NoError(t, store.Clear(ctx, "u1"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var decoded map[string]map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.NotContains(t, decoded, "u1")
}

func TestFileStore_EmptyPathRejected(t *testing.T) {
	_, err := session.NewFileStore("")
	assert.Error(t, err)
}

func TestFileStore_CorruptFileRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessions.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	_, err := session.NewFileStore(path)
	assert.Error(t, err)
}
