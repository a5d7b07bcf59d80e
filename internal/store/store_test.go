package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// storeUnderTest runs the CheckpointStore contract against one
// implementation.
func storeUnderTest(t *testing.T, cs CheckpointStore) {
	t.Helper()

	t.Run("load missing session", func(t *testing.T) {
		_, err := cs.Load("nope")
		assert.ErrorIs(t, err, ErrNoCheckpoint)
	})

	t.Run("save then load", func(t *testing.T) {
		require.NoError(t, cs.Save("s1", []byte(`{"current_step":"assemble_rules"}`)))
		got, err := cs.Load("s1")
		require.NoError(t, err)
		assert.JSONEq(t, `{"current_step":"assemble_rules"}`, string(got))
	})

	t.Run("save overwrites", func(t *testing.T) {
		require.NoError(t, cs.Save("s1", []byte(`{"current_step":"completed"}`)))
		got, err := cs.Load("s1")
		require.NoError(t, err)
		assert.JSONEq(t, `{"current_step":"completed"}`, string(got))
	})

	t.Run("list", func(t *testing.T) {
		require.NoError(t, cs.Save("s2", []byte(`{}`)))
		infos, err := cs.List()
		require.NoError(t, err)
		require.Len(t, infos, 2)
		ids := []string{infos[0].SessionID, infos[1].SessionID}
		assert.ElementsMatch(t, []string{"s1", "s2"}, ids)
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, cs.Delete("s1"))
		_, err := cs.Load("s1")
		assert.ErrorIs(t, err, ErrNoCheckpoint)
	})

	t.Run("delete missing is not an error", func(t *testing.T) {
		assert.NoError(t, cs.Delete("never-existed"))
	})
}

func TestMemoryStore(t *testing.T) {
	cs := NewMemoryStore()
	defer cs.Close()
	storeUnderTest(t, cs)
}

func TestMemoryStoreCopies(t *testing.T) {
	cs := NewMemoryStore()
	buf := []byte(`{"a":1}`)
	require.NoError(t, cs.Save("s", buf))
	buf[2] = 'X' // caller mutates its buffer after save

	got, err := cs.Load("s")
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, string(got))

	got[2] = 'Y' // and the loaded copy is independent too
	again, err := cs.Load("s")
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, string(again))
}

func TestSQLiteStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "sessions.db")
	cs, err := NewSQLiteStore(path)
	require.NoError(t, err, "creates parent directories")
	defer cs.Close()
	storeUnderTest(t, cs)
}

func TestSQLiteStoreReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessions.db")

	cs, err := NewSQLiteStore(path)
	require.NoError(t, err)
	require.NoError(t, cs.Save("persisted", []byte(`{"current_step":"multi_model_analyze"}`)))
	require.NoError(t, cs.Close())

	// A new process sees the checkpoint.
	cs2, err := NewSQLiteStore(path)
	require.NoError(t, err)
	defer cs2.Close()
	got, err := cs2.Load("persisted")
	require.NoError(t, err)
	assert.Contains(t, string(got), "multi_model_analyze")
}
