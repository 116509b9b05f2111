package boltstore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/leafline/internal/store"
	"github.com/roach88/leafline/internal/store/storetest"
)

func openAt(t *testing.T, dir string) store.Backend {
	t.Helper()
	s, err := Open(filepath.Join(dir, "leafline.bolt"))
	require.NoError(t, err)
	return s
}

func TestBackendContract(t *testing.T) {
	storetest.Run(t, openAt, true)
}

func TestOpen_RequiresPath(t *testing.T) {
	_, err := Open("   ")
	require.Error(t, err)
	assert.True(t, store.IsUnavailable(err))
}

func TestOpen_CreatesEveryBucket(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "b.bolt"))
	require.NoError(t, err)
	defer s.Close()

	for _, p := range store.Partitions() {
		_, err := s.GetAll(context.Background(), p)
		assert.NoError(t, err, p)
	}
}

func TestClear_KeepsSequence(t *testing.T) {
	s := openAt(t, t.TempDir())
	defer s.Close()
	ctx := context.Background()

	first, err := s.Append(ctx, store.PartitionDeadLetter, []byte("a"))
	require.NoError(t, err)
	require.NoError(t, s.Clear(ctx, store.PartitionDeadLetter))

	next, err := s.Append(ctx, store.PartitionDeadLetter, []byte("b"))
	require.NoError(t, err)
	assert.Greater(t, next, first)
}

func TestContextCanceled(t *testing.T) {
	s := openAt(t, t.TempDir())
	defer s.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := s.Put(ctx, store.PartitionScans, "s1", []byte("x"))
	assert.ErrorIs(t, err, context.Canceled)
}
