// Package storetest holds the behavioral contract every store.Backend must satisfy.
//
// Backend packages call Run from their own tests so the SQLite, BoltDB and
// in-memory implementations are held to identical semantics.
package storetest

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/leafline/internal/store"
)

// Opener opens (or reopens) a backend rooted in dir.
type Opener func(t *testing.T, dir string) store.Backend

// Run executes the contract. When durable is true the backend must also
// survive a close/reopen cycle on the same dir.
func Run(t *testing.T, open Opener, durable bool) {
	t.Run("GetAbsent", func(t *testing.T) { testGetAbsent(t, open) })
	t.Run("GetAllEmpty", func(t *testing.T) { testGetAllEmpty(t, open) })
	t.Run("PutIdempotent", func(t *testing.T) { testPutIdempotent(t, open) })
	t.Run("AppendFIFO", func(t *testing.T) { testAppendFIFO(t, open) })
	t.Run("SeqNeverReused", func(t *testing.T) { testSeqNeverReused(t, open) })
	t.Run("RemoveIdempotent", func(t *testing.T) { testRemoveIdempotent(t, open) })
	t.Run("ClearIsolated", func(t *testing.T) { testClearIsolated(t, open) })
	t.Run("Replace", func(t *testing.T) { testReplace(t, open) })
	t.Run("PartitionMode", func(t *testing.T) { testPartitionMode(t, open) })
	t.Run("UnknownPartition", func(t *testing.T) { testUnknownPartition(t, open) })
	t.Run("ClosedIsUnavailable", func(t *testing.T) { testClosedIsUnavailable(t, open) })
	t.Run("ConcurrentAppend", func(t *testing.T) { testConcurrentAppend(t, open) })
	if durable {
		t.Run("SurvivesReopen", func(t *testing.T) { testSurvivesReopen(t, open) })
	}
}

func openBackend(t *testing.T, open Opener) store.Backend {
	t.Helper()
	b := open(t, t.TempDir())
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func testGetAbsent(t *testing.T, open Opener) {
	b := openBackend(t, open)
	ctx := context.Background()

	_, ok, err := b.Get(ctx, store.PartitionScans, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = b.Get(ctx, store.PartitionQueue, "42")
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = b.Get(ctx, store.PartitionQueue, "not-a-seq")
	require.NoError(t, err)
	assert.False(t, ok)
}

func testGetAllEmpty(t *testing.T, open Opener) {
	b := openBackend(t, open)

	for _, p := range store.Partitions() {
		got, err := b.GetAll(context.Background(), p)
		require.NoError(t, err, p)
		assert.NotNil(t, got, p)
		assert.Empty(t, got, p)
	}
}

func testPutIdempotent(t *testing.T, open Opener) {
	b := openBackend(t, open)
	ctx := context.Background()

	require.NoError(t, b.Put(ctx, store.PartitionDirectory, "d1", []byte("first")))
	require.NoError(t, b.Put(ctx, store.PartitionDirectory, "d1", []byte("second")))

	rec, ok, err := b.Get(ctx, store.PartitionDirectory, "d1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "second", string(rec.Value))

	all, err := b.GetAll(ctx, store.PartitionDirectory)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "d1", all[0].Key)
}

func testAppendFIFO(t *testing.T, open Opener) {
	b := openBackend(t, open)
	ctx := context.Background()

	var seqs []int64
	for _, v := range []string{"A", "B", "C"} {
		seq, err := b.Append(ctx, store.PartitionQueue, []byte(v))
		require.NoError(t, err)
		seqs = append(seqs, seq)
	}
	assert.Less(t, seqs[0], seqs[1])
	assert.Less(t, seqs[1], seqs[2])

	all, err := b.GetAll(ctx, store.PartitionQueue)
	require.NoError(t, err)
	require.Len(t, all, 3)
	for i, want := range []string{"A", "B", "C"} {
		assert.Equal(t, want, string(all[i].Value))
		assert.Equal(t, seqs[i], all[i].Seq)
		assert.Equal(t, fmt.Sprint(seqs[i]), all[i].Key)
	}

	rec, ok, err := b.Get(ctx, store.PartitionQueue, fmt.Sprint(seqs[1]))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "B", string(rec.Value))
}

func testSeqNeverReused(t *testing.T, open Opener) {
	b := openBackend(t, open)
	ctx := context.Background()

	first, err := b.Append(ctx, store.PartitionQueue, []byte("A"))
	require.NoError(t, err)
	require.NoError(t, b.Remove(ctx, store.PartitionQueue, fmt.Sprint(first)))

	second, err := b.Append(ctx, store.PartitionQueue, []byte("B"))
	require.NoError(t, err)
	assert.Greater(t, second, first)
}

func testRemoveIdempotent(t *testing.T, open Opener) {
	b := openBackend(t, open)
	ctx := context.Background()

	require.NoError(t, b.Remove(ctx, store.PartitionPromos, "never-existed"))
	require.NoError(t, b.Remove(ctx, store.PartitionQueue, "999"))

	require.NoError(t, b.Put(ctx, store.PartitionPromos, "p1", []byte("x")))
	require.NoError(t, b.Remove(ctx, store.PartitionPromos, "p1"))
	require.NoError(t, b.Remove(ctx, store.PartitionPromos, "p1"))

	_, ok, err := b.Get(ctx, store.PartitionPromos, "p1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func testClearIsolated(t *testing.T, open Opener) {
	b := openBackend(t, open)
	ctx := context.Background()

	require.NoError(t, b.Put(ctx, store.PartitionScans, "s1", []byte("scan")))
	require.NoError(t, b.Put(ctx, store.PartitionPromos, "p1", []byte("promo")))
	_, err := b.Append(ctx, store.PartitionQueue, []byte("op"))
	require.NoError(t, err)

	require.NoError(t, b.Clear(ctx, store.PartitionQueue))

	queue, err := b.GetAll(ctx, store.PartitionQueue)
	require.NoError(t, err)
	assert.Empty(t, queue)

	scans, err := b.GetAll(ctx, store.PartitionScans)
	require.NoError(t, err)
	assert.Len(t, scans, 1)

	promos, err := b.GetAll(ctx, store.PartitionPromos)
	require.NoError(t, err)
	assert.Len(t, promos, 1)
}

func testReplace(t *testing.T, open Opener) {
	b := openBackend(t, open)
	ctx := context.Background()

	require.NoError(t, b.Put(ctx, store.PartitionScans, "old", []byte("stale")))
	require.NoError(t, b.Put(ctx, store.PartitionPromos, "p1", []byte("untouched")))

	err := b.Replace(ctx, store.PartitionScans, []store.Record{
		{Key: "b", Value: []byte("2")},
		{Key: "a", Value: []byte("1")},
	})
	require.NoError(t, err)

	all, err := b.GetAll(ctx, store.PartitionScans)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "a", all[0].Key)
	assert.Equal(t, "b", all[1].Key)

	promos, err := b.GetAll(ctx, store.PartitionPromos)
	require.NoError(t, err)
	assert.Len(t, promos, 1)

	require.NoError(t, b.Replace(ctx, store.PartitionScans, nil))
	all, err = b.GetAll(ctx, store.PartitionScans)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func testPartitionMode(t *testing.T, open Opener) {
	b := openBackend(t, open)
	ctx := context.Background()

	err := b.Put(ctx, store.PartitionQueue, "1", []byte("x"))
	assert.ErrorIs(t, err, store.ErrPartitionMode)

	_, err = b.Append(ctx, store.PartitionScans, []byte("x"))
	assert.ErrorIs(t, err, store.ErrPartitionMode)

	err = b.Replace(ctx, store.PartitionDeadLetter, nil)
	assert.ErrorIs(t, err, store.ErrPartitionMode)
}

func testUnknownPartition(t *testing.T, open Opener) {
	b := openBackend(t, open)

	_, err := b.GetAll(context.Background(), store.Partition("tractors"))
	assert.ErrorIs(t, err, store.ErrUnknownPartition)
	assert.False(t, store.IsUnavailable(err))
}

func testClosedIsUnavailable(t *testing.T, open Opener) {
	b := open(t, t.TempDir())
	require.NoError(t, b.Close())
	ctx := context.Background()

	_, _, err := b.Get(ctx, store.PartitionScans, "s1")
	assert.True(t, store.IsUnavailable(err), "get: %v", err)

	_, err = b.GetAll(ctx, store.PartitionScans)
	assert.True(t, store.IsUnavailable(err), "get all: %v", err)

	err = b.Put(ctx, store.PartitionScans, "s1", []byte("x"))
	assert.True(t, store.IsUnavailable(err), "put: %v", err)

	_, err = b.Append(ctx, store.PartitionQueue, []byte("x"))
	assert.True(t, store.IsUnavailable(err), "append: %v", err)

	// Close twice must not panic.
	_ = b.Close()
}

func testConcurrentAppend(t *testing.T, open Opener) {
	b := openBackend(t, open)
	ctx := context.Background()

	const n = 20
	var wg sync.WaitGroup
	seqs := make(chan int64, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			seq, err := b.Append(ctx, store.PartitionQueue, []byte(fmt.Sprint(i)))
			if assert.NoError(t, err) {
				seqs <- seq
			}
		}(i)
	}
	wg.Wait()
	close(seqs)

	seen := map[int64]bool{}
	for seq := range seqs {
		assert.False(t, seen[seq], "duplicate seq %d", seq)
		seen[seq] = true
	}
	assert.Len(t, seen, n)

	all, err := b.GetAll(ctx, store.PartitionQueue)
	require.NoError(t, err)
	require.Len(t, all, n)
	for i := 1; i < len(all); i++ {
		assert.Less(t, all[i-1].Seq, all[i].Seq)
	}
}

func testSurvivesReopen(t *testing.T, open Opener) {
	dir := t.TempDir()
	ctx := context.Background()

	b := open(t, dir)
	require.NoError(t, b.Put(ctx, store.PartitionUsage, "2024-01-01", []byte(`{"weighted_cost":99}`)))
	first, err := b.Append(ctx, store.PartitionQueue, []byte("A"))
	require.NoError(t, err)
	require.NoError(t, b.Close())

	b = open(t, dir)
	defer b.Close()

	rec, ok, err := b.Get(ctx, store.PartitionUsage, "2024-01-01")
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, `{"weighted_cost":99}`, string(rec.Value))

	queue, err := b.GetAll(ctx, store.PartitionQueue)
	require.NoError(t, err)
	require.Len(t, queue, 1)
	assert.Equal(t, first, queue[0].Seq)

	next, err := b.Append(ctx, store.PartitionQueue, []byte("B"))
	require.NoError(t, err)
	assert.Greater(t, next, first)
}
