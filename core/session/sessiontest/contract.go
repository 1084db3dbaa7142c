// Package sessiontest provides a reusable contract suite that every
// session store backend must satisfy.
package sessiontest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m3rciful/mbot/core/session"
)

// RunStoreContract runs a suite of tests verifying that a Store
// implementation adheres to the interface contract.
func RunStoreContract(t *testing.T, store session.Store) {
	ctx := context.Background()
	id := "contract-" + time.Now().Format("20060102150405")

	t.Run("Get unknown id yields empty session", func(t *testing.T) {
		sess, err := store.Get(ctx, "unknown-"+id)
		require.NoError(t, err, "Get for an unknown id must not error")
		require.NotNil(t, sess)
		assert.Equal(t, 0, sess.Len())
	})

	t.Run("Set and Get round trip", func(t *testing.T) {
		sess := session.New()
		sess.Set("__scene", "survey")
		sess.Set("step", 1)
		sess.Set("answers", map[string]any{"name": "Alice"})

		require.NoError(t, store.Set(ctx, id, sess))

		loaded, err := store.Get(ctx, id)
		require.NoError(t, err)

		name, ok := loaded.GetString("__scene")
		require.True(t, ok)
		assert.Equal(t, "survey", name)

		// JSON persistence turns numbers into float64; the typed getter
		// must absorb that.
		step, ok := loaded.GetInt("step")
		require.True(t, ok)
		assert.Equal(t, 1, step)

		answers, ok := loaded.Get("answers")
		require.True(t, ok)
		assert.NotNil(t, answers)
	})

	t.Run("Set overwrites previous snapshot", func(t *testing.T) {
		first := session.New()
		first.Set("step", 0)
		first.Set("stale", true)
		require.NoError(t, store.Set(ctx, id, first))

		second := session.New()
		second.Set("step", 2)
		require.NoError(t, store.Set(ctx, id, second))

		loaded, err := store.Get(ctx, id)
		require.NoError(t, err)
		step, ok := loaded.GetInt("step")
		require.True(t, ok)
		assert.Equal(t, 2, step)
		_, ok = loaded.Get("stale")
		assert.False(t, ok, "overwritten snapshot must not retain old keys")
	})

	t.Run("Mutations after Set do not leak into the store", func(t *testing.T) {
		sess := session.New()
		sess.Set("count", 1)
		require.NoError(t, store.Set(ctx, id, sess))

		sess.Set("count", 99)

		loaded, err := store.Get(ctx, id)
		require.NoError(t, err)
		count, ok := loaded.GetInt("count")
		require.True(t, ok)
		assert.Equal(t, 1, count)
	})

	t.Run("Clear removes the session", func(t *testing.T) {
		sess := session.New()
		sess.Set("k", "v")
		require.NoError(t, store.Set(ctx, id, sess))

		require.NoError(t, store.Clear(ctx, id))

		loaded, err := store.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, 0, loaded.Len(), "Get after Clear must yield an empty session")
	})

	t.Run("Clear unknown id is not an error", func(t *testing.T) {
		assert.NoError(t, store.Clear(ctx, "never-stored-"+id))
	})
}
