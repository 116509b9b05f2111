package memstore

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/leafline/internal/store"
	"github.com/roach88/leafline/internal/store/storetest"
)

func TestBackendContract(t *testing.T) {
	storetest.Run(t, func(t *testing.T, _ string) store.Backend { return New() }, false)
}

func TestSetUnavailable(t *testing.T) {
	s := New()
	ctx := context.Background()
	require.NoError(t, s.Put(ctx, store.PartitionScans, "s1", []byte("x")))

	quota := errors.New("quota exceeded")
	s.SetUnavailable(quota)

	err := s.Put(ctx, store.PartitionScans, "s2", []byte("y"))
	assert.True(t, store.IsUnavailable(err))
	assert.ErrorIs(t, err, quota)

	_, err = s.GetAll(ctx, store.PartitionScans)
	assert.True(t, store.IsUnavailable(err))

	s.SetUnavailable(nil)
	all, err := s.GetAll(ctx, store.PartitionScans)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestValuesAreCopied(t *testing.T) {
	s := New()
	ctx := context.Background()

	value := []byte("abc")
	require.NoError(t, s.Put(ctx, store.PartitionPromos, "p1", value))
	value[0] = 'X'

	rec, ok, err := s.Get(ctx, store.PartitionPromos, "p1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "abc", string(rec.Value))

	rec.Value[0] = 'Y'
	again, _, err := s.Get(ctx, store.PartitionPromos, "p1")
	require.NoError(t, err)
	assert.Equal(t, "abc", string(again.Value))
}
