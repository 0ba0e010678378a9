package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreRoundTrip(t *testing.T) {
	s, err := Open(Options{InMemory: true})
	require.NoError(t, err)
	defer s.Close()

	key := Key("emb", "model", "Inception")
	var got []float32
	assert.ErrorIs(t, s.Get(key, &got), ErrMiss)

	require.NoError(t, s.Set(key, []float32{0.5, 0.25}))
	require.NoError(t, s.Get(key, &got))
	assert.Equal(t, []float32{0.5, 0.25}, got)

	require.NoError(t, s.Set(Key("judge", "x"), map[string]float64{"rel_0": 1}))
	assert.Equal(t, 1, s.Len("emb"))
	assert.Equal(t, 1, s.Len("judge"))
}

func TestStorePersistsOnDisk(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(Options{Dir: dir})
	require.NoError(t, err)
	require.NoError(t, s.Set(Key("ns", "a"), "value"))
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	assert.ErrorIs(t, s.Set(Key("ns", "b"), "x"), ErrClosed)

	s, err = Open(Options{Dir: dir})
	require.NoError(t, err)
	defer s.Close()
	var v string
	require.NoError(t, s.Get(Key("ns", "a"), &v))
	assert.Equal(t, "value", v)
}

func TestKeyIsUnambiguous(t *testing.T) {
	assert.NotEqual(t, Key("ns", "ab", "c"), Key("ns", "a", "bc"))
	assert.Equal(t, Key("ns", "a"), Key("ns", "a"))
	assert.NotEqual(t, Key("x", "a"), Key("y", "a"))
}
