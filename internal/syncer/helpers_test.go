package syncer

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roach88/leafline/internal/entity"
	"github.com/roach88/leafline/internal/store"
	"github.com/roach88/leafline/internal/store/memstore"
	"github.com/roach88/leafline/internal/testutil"
)

var t0 = time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)

// tb is satisfied by both *testing.T and *rapid.T.
type tb interface {
	require.TestingT
	Helper()
}

type fixture struct {
	local   *store.Local
	backend *memstore.Store
	remote  *testutil.FakeRemote
	clock   *testutil.Clock
	logger  *slog.Logger
}

func newFixture(t tb) *fixture {
	t.Helper()
	backend := memstore.New()
	return &fixture{
		local:   store.NewLocal(backend),
		backend: backend,
		remote:  testutil.NewFakeRemote(),
		clock:   testutil.NewClock(t0),
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func (f *fixture) driver(opts ...Option) *Driver {
	base := []Option{WithLogger(f.logger), WithClock(f.clock.Now)}
	return New(f.local, f.remote, append(base, opts...)...)
}

// enqueue caches and queues each entity the way an offline write does.
// Operation ids are "op-<entity id>".
func (f *fixture) enqueue(t tb, items ...entity.Entity) []entity.PendingOperation {
	t.Helper()
	ctx := context.Background()
	out := make([]entity.PendingOperation, 0, len(items))
	for _, e := range items {
		require.NoError(t, f.local.PutEntity(ctx, e))
		op, err := entity.NewPendingOperation("op-"+e.EntityID(), e, f.clock.Now())
		require.NoError(t, err)
		op, err = f.local.Enqueue(ctx, op)
		require.NoError(t, err)
		out = append(out, op)
	}
	return out
}

func (f *fixture) pendingIDs(t tb) []string {
	t.Helper()
	ops, err := f.local.Pending(context.Background())
	require.NoError(t, err)
	ids := make([]string, 0, len(ops))
	for _, op := range ops {
		ids = append(ids, op.OpID)
	}
	return ids
}

func savedIDs(saves []entity.Entity) []string {
	ids := make([]string, 0, len(saves))
	for _, e := range saves {
		ids = append(ids, e.EntityID())
	}
	return ids
}

func scan(id string) entity.Entity {
	return entity.ScanRecord{ID: id, UserID: "u1", PlantName: "Maize", Confidence: 0.7, ScannedAt: t0}
}

func listing(id string) entity.Entity {
	return entity.DirectoryRecord{ID: id, Name: "Seed Bank", Category: "seeds", UpdatedAt: t0}
}

func promo(id string) entity.Entity {
	return entity.PromoMedia{ID: id, Title: "Rainy season", MediaURL: "https://cdn.example/r.mp4", MediaType: "video", ActiveFrom: t0}
}
