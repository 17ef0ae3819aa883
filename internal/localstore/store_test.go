package localstore

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore_PutGetDelete(t *testing.T) {
	s := newStore(t)

	_, ok, err := s.Get("missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Put("k", []byte("v1")))
	v, ok, err := s.Get("k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("v1"), v)

	require.NoError(t, s.Put("k", []byte("v2")), "put replaces atomically")
	v, _, err = s.Get("k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v2"), v)

	require.NoError(t, s.Delete("k"))
	_, ok, err = s.Get("k")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Delete("k"), "delete of absent key is a no-op")
}

func TestStore_Markers(t *testing.T) {
	s := newStore(t)

	done, err := s.HasMarker("migration:v2")
	require.NoError(t, err)
	assert.False(t, done)

	require.NoError(t, s.PutMarker("migration:v2"))
	done, err = s.HasMarker("migration:v2")
	require.NoError(t, err)
	assert.True(t, done)

	// A key holding arbitrary data is not a completed marker.
	require.NoError(t, s.Put("legacy:commands", []byte(`[]`)))
	done, err = s.HasMarker("legacy:commands")
	require.NoError(t, err)
	assert.False(t, done)
}

func TestStore_QuotaExceeded(t *testing.T) {
	s := newStore(t, WithMaxValueBytes(8))

	require.NoError(t, s.Put("small", []byte("12345678")))

	err := s.Put("big", []byte("123456789"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrQuotaExceeded)

	// The failed write must not clobber an existing value.
	require.NoError(t, s.Put("big", []byte("ok")))
	err = s.Put("big", []byte("123456789"))
	assert.ErrorIs(t, err, ErrQuotaExceeded)
	v, ok, getErr := s.Get("big")
	require.NoError(t, getErr)
	require.True(t, ok)
	assert.Equal(t, []byte("ok"), v)
}

func TestStore_ReopenPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "persist.db")

	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Put("k", []byte("survives")))
	require.NoError(t, s.PutMarker("m"))
	require.NoError(t, s.Close())

	s2, err := Open(path)
	require.NoError(t, err)
	defer s2.Close()

	v, ok, err := s2.Get("k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("survives"), v)

	done, err := s2.HasMarker("m")
	require.NoError(t, err)
	assert.True(t, done)
}
