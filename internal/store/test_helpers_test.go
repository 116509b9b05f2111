package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/roach88/leafline/internal/entity"
)

// createTestStore opens a fresh SQLite store in a temp dir.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestLocal wraps a fresh SQLite store in the typed layer.
func createTestLocal(t *testing.T) *Local {
	t.Helper()
	return NewLocal(createTestStore(t))
}

var testTime = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

func testScan(id, plant string) entity.ScanRecord {
	return entity.ScanRecord{ID: id, UserID: "u1", PlantName: plant, Confidence: 0.9, ScannedAt: testTime}
}

func testOp(t *testing.T, opID string, e entity.Entity) entity.PendingOperation {
	t.Helper()
	op, err := entity.NewPendingOperation(opID, e, testTime)
	if err != nil {
		t.Fatalf("NewPendingOperation() failed: %v", err)
	}
	return op
}
