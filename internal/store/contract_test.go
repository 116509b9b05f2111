package store_test

import (
	"path/filepath"
	"testing"

	"github.com/roach88/leafline/internal/store"
	"github.com/roach88/leafline/internal/store/storetest"
)

func TestSQLiteBackendContract(t *testing.T) {
	storetest.Run(t, func(t *testing.T, dir string) store.Backend {
		s, err := store.Open(filepath.Join(dir, "leafline.db"))
		if err != nil {
			t.Fatalf("Open() failed: %v", err)
		}
		return s
	}, true)
}
