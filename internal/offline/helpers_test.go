package offline

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roach88/leafline/internal/connectivity"
	"github.com/roach88/leafline/internal/entity"
	"github.com/roach88/leafline/internal/store"
	"github.com/roach88/leafline/internal/store/memstore"
	"github.com/roach88/leafline/internal/testutil"
	"github.com/roach88/leafline/internal/usage"
)

var t0 = time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)

type fixture struct {
	svc     *Service
	local   *store.Local
	backend *memstore.Store
	remote  *testutil.FakeRemote
	gov     *usage.Governor
	monitor *connectivity.Monitor
	clock   *testutil.Clock
}

func newFixture(t *testing.T, online bool, opts ...Option) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	clock := testutil.NewClock(t0)
	backend := memstore.New()
	local := store.NewLocal(backend)
	gov := usage.NewGovernor(local, usage.Config{DailyLimit: 100},
		usage.WithClock(clock.Now),
		usage.WithLocation(time.UTC),
		usage.WithLogger(logger),
	)
	monitor := connectivity.NewMonitor(online, connectivity.WithLogger(logger))
	fake := testutil.NewFakeRemote()

	svc, err := New(Deps{
		Local:    local,
		Remote:   fake,
		Governor: gov,
		Monitor:  monitor,
		IDs:      testutil.NewSequentialIDs("gen"),
		Clock:    clock.Now,
		Logger:   logger,
	}, opts...)
	require.NoError(t, err)

	return &fixture{
		svc:     svc,
		local:   local,
		backend: backend,
		remote:  fake,
		gov:     gov,
		monitor: monitor,
		clock:   clock,
	}
}

func (f *fixture) opCount(t *testing.T) int64 {
	t.Helper()
	return f.gov.Stats(context.Background()).Today.OperationCount
}

func (f *fixture) pending(t *testing.T) []entity.PendingOperation {
	t.Helper()
	ops, err := f.local.Pending(context.Background())
	require.NoError(t, err)
	return ops
}

func (f *fixture) cache(t *testing.T, kind entity.Kind) []entity.Entity {
	t.Helper()
	items, err := f.local.Entities(context.Background(), kind)
	require.NoError(t, err)
	return items
}

// kindCase runs the same scenario against every entity kind through the
// public per-kind methods.
type kindCase struct {
	kind   entity.Kind
	sample func(id string) entity.Entity
	save   func(context.Context, *Service, entity.Entity) (entity.Entity, SaveStatus, int64, error)
	get    func(context.Context, *Service) ([]entity.Entity, error)
}

func kindCases() []kindCase {
	return []kindCase{
		{
			kind: entity.KindScan,
			sample: func(id string) entity.Entity {
				return entity.ScanRecord{ID: id, UserID: "u1", PlantName: "Tomato", Confidence: 0.9, ScannedAt: t0}
			},
			save: saver((*Service).SaveScan),
			get:  getter((*Service).GetScans),
		},
		{
			kind: entity.KindDirectory,
			sample: func(id string) entity.Entity {
				return entity.DirectoryRecord{ID: id, Name: "Green Co-op", Category: "seeds", Products: []string{"maize"}, UpdatedAt: t0}
			},
			save: saver((*Service).SaveDirectoryRecord),
			get:  getter((*Service).GetDirectory),
		},
		{
			kind: entity.KindPromo,
			sample: func(id string) entity.Entity {
				return entity.PromoMedia{ID: id, Title: "Harvest sale", MediaURL: "https://cdn.example/p.png", MediaType: "image", ActiveFrom: t0, ActiveUntil: t0.Add(72 * time.Hour)}
			},
			save: saver((*Service).SavePromo),
			get:  getter((*Service).GetPromos),
		},
	}
}

func saver[T entity.Entity](m func(*Service, context.Context, T) (Saved[T], error)) func(context.Context, *Service, entity.Entity) (entity.Entity, SaveStatus, int64, error) {
	return func(ctx context.Context, s *Service, e entity.Entity) (entity.Entity, SaveStatus, int64, error) {
		saved, err := m(s, ctx, e.(T))
		if err != nil {
			return nil, "", 0, err
		}
		return saved.Entity, saved.Status, saved.Seq, nil
	}
}

func getter[T entity.Entity](m func(*Service, context.Context) ([]T, error)) func(context.Context, *Service) ([]entity.Entity, error) {
	return func(ctx context.Context, s *Service) ([]entity.Entity, error) {
		items, err := m(s, ctx)
		if err != nil {
			return nil, err
		}
		out := make([]entity.Entity, 0, len(items))
		for _, it := range items {
			out = append(out, it)
		}
		return out, nil
	}
}
