package usage

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"pgregory.net/rapid"

	"github.com/roach88/leafline/internal/testutil"
)

// The alert returned for every recorded operation must match the ladder
// applied to the running weighted cost, and the counters must only grow.
func TestRecordOperation_LadderProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		limit := float64(rapid.IntRange(10, 500).Draw(t, "limit"))
		costs := rapid.SliceOfN(rapid.IntRange(1, 40), 1, 60).Draw(t, "costs")

		gov := NewGovernor(memstoreLocal(), Config{DailyLimit: limit, WarningRatio: 0.8, CriticalRatio: 0.95},
			WithClock(testutil.NewClock(day1).Now),
			WithLocation(time.UTC),
			WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		)
		ctx := context.Background()

		var weighted float64
		var lastCount int64
		for _, c := range costs {
			cost := float64(c)
			weighted += cost
			alert := gov.RecordOperation(ctx, "op", cost)

			ratio := weighted / limit
			var want Severity
			switch {
			case ratio >= 1:
				want = SeverityExhausted
			case ratio >= 0.95:
				want = SeverityCritical
			case ratio >= 0.8:
				want = SeverityWarning
			}

			if want == SeverityNone {
				if alert != nil {
					t.Fatalf("weighted %v/%v: unexpected %s alert", weighted, limit, alert.Severity)
				}
			} else {
				if alert == nil || alert.Severity != want {
					t.Fatalf("weighted %v/%v: want %s, got %+v", weighted, limit, want, alert)
				}
				if alert.RemainingOperations < 0 {
					t.Fatalf("negative remaining operations %d", alert.RemainingOperations)
				}
			}

			stats := gov.Stats(ctx)
			if stats.Today.OperationCount != lastCount+1 {
				t.Fatalf("operation count %d after %d", stats.Today.OperationCount, lastCount)
			}
			lastCount = stats.Today.OperationCount
			if stats.Today.WeightedCost != weighted {
				t.Fatalf("weighted cost %v, want %v", stats.Today.WeightedCost, weighted)
			}
		}
	})
}
