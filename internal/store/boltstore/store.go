// Package boltstore implements store.Backend on a BoltDB file.
//
// Each partition is a bucket. Keyed partitions use the entity key as the
// bucket key; queue partitions use the bucket sequence encoded big-endian so
// cursor order is FIFO order.
package boltstore

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.etcd.io/bbolt"

	"github.com/roach88/leafline/internal/store"
)

// Store provides a BoltDB-backed store.Backend.
type Store struct {
	mu sync.RWMutex
	db *bbolt.DB
}

var _ store.Backend = (*Store)(nil)

// Open opens a BoltDB-backed store at the provided path.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, store.Unavailable("open", "", fmt.Errorf("storage path is required"))
	}

	cleanPath := filepath.Clean(path)
	db, err := bbolt.Open(cleanPath, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, store.Unavailable("open", "", fmt.Errorf("open storage db: %w", err))
	}

	s := &Store{db: db}
	if err := s.ensureBuckets(); err != nil {
		_ = db.Close()
		return nil, store.Unavailable("open", "", err)
	}

	return s, nil
}

// Close closes the underlying BoltDB database.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *Store) handle(op string, p store.Partition) (*bbolt.DB, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil {
		return nil, store.Unavailable(op, p, store.ErrClosed)
	}
	return s.db, nil
}

// Get returns the record stored under key.
func (s *Store) Get(ctx context.Context, p store.Partition, key string) (store.Record, bool, error) {
	if err := store.CheckPartition("get", p); err != nil {
		return store.Record{}, false, err
	}
	db, err := s.handle("get", p)
	if err != nil {
		return store.Record{}, false, err
	}
	if err := ctx.Err(); err != nil {
		return store.Record{}, false, err
	}

	var seq int64
	bkey := []byte(key)
	if p.IsQueue() {
		seq, err = strconv.ParseInt(key, 10, 64)
		if err != nil || seq <= 0 {
			return store.Record{}, false, nil
		}
		bkey = seqKey(uint64(seq))
	}

	var value []byte
	err = db.View(func(tx *bbolt.Tx) error {
		b, err := bucket(tx, p)
		if err != nil {
			return err
		}
		if v := b.Get(bkey); v != nil {
			value = bytes.Clone(v)
		}
		return nil
	})
	if err != nil {
		return store.Record{}, false, store.Unavailable("get", p, err)
	}
	if value == nil {
		return store.Record{}, false, nil
	}
	return store.Record{Key: key, Seq: seq, Value: value}, true, nil
}

// GetAll returns every record in cursor order: key order for keyed
// partitions, seq order for queue partitions.
func (s *Store) GetAll(ctx context.Context, p store.Partition) ([]store.Record, error) {
	if err := store.CheckPartition("get all", p); err != nil {
		return nil, err
	}
	db, err := s.handle("get all", p)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	records := []store.Record{}
	err = db.View(func(tx *bbolt.Tx) error {
		b, err := bucket(tx, p)
		if err != nil {
			return err
		}
		return b.ForEach(func(k, v []byte) error {
			rec := store.Record{Value: bytes.Clone(v)}
			if p.IsQueue() {
				rec.Seq = int64(binary.BigEndian.Uint64(k))
				rec.Key = strconv.FormatInt(rec.Seq, 10)
			} else {
				rec.Key = string(k)
			}
			records = append(records, rec)
			return nil
		})
	})
	if err != nil {
		return nil, store.Unavailable("get all", p, err)
	}
	return records, nil
}

// Put upserts value under key.
func (s *Store) Put(ctx context.Context, p store.Partition, key string, value []byte) error {
	if err := store.CheckKeyed("put", p); err != nil {
		return err
	}
	db, err := s.handle("put", p)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		b, err := bucket(tx, p)
		if err != nil {
			return err
		}
		return b.Put([]byte(key), value)
	})
	return store.Unavailable("put", p, err)
}

// Append stores value under the bucket's next sequence.
// Bolt sequences are persisted per bucket and never handed out twice.
func (s *Store) Append(ctx context.Context, p store.Partition, value []byte) (int64, error) {
	if err := store.CheckQueue("append", p); err != nil {
		return 0, err
	}
	db, err := s.handle("append", p)
	if err != nil {
		return 0, err
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	var seq uint64
	err = db.Update(func(tx *bbolt.Tx) error {
		b, err := bucket(tx, p)
		if err != nil {
			return err
		}
		seq, err = b.NextSequence()
		if err != nil {
			return fmt.Errorf("next sequence: %w", err)
		}
		return b.Put(seqKey(seq), value)
	})
	if err != nil {
		return 0, store.Unavailable("append", p, err)
	}
	return int64(seq), nil
}

// Remove deletes key. Absent keys are not an error.
func (s *Store) Remove(ctx context.Context, p store.Partition, key string) error {
	if err := store.CheckPartition("remove", p); err != nil {
		return err
	}
	db, err := s.handle("remove", p)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	bkey := []byte(key)
	if p.IsQueue() {
		seq, err := strconv.ParseInt(key, 10, 64)
		if err != nil || seq <= 0 {
			return nil
		}
		bkey = seqKey(uint64(seq))
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		b, err := bucket(tx, p)
		if err != nil {
			return err
		}
		return b.Delete(bkey)
	})
	return store.Unavailable("remove", p, err)
}

// Clear deletes every key in the bucket. The bucket itself is kept so its
// sequence keeps counting up.
func (s *Store) Clear(ctx context.Context, p store.Partition) error {
	if err := store.CheckPartition("clear", p); err != nil {
		return err
	}
	db, err := s.handle("clear", p)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		b, err := bucket(tx, p)
		if err != nil {
			return err
		}
		return clearBucket(b)
	})
	return store.Unavailable("clear", p, err)
}

// Replace swaps the bucket contents inside one write transaction.
func (s *Store) Replace(ctx context.Context, p store.Partition, records []store.Record) error {
	if err := store.CheckKeyed("replace", p); err != nil {
		return err
	}
	db, err := s.handle("replace", p)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		b, err := bucket(tx, p)
		if err != nil {
			return err
		}
		if err := clearBucket(b); err != nil {
			return err
		}
		for _, rec := range records {
			if err := b.Put([]byte(rec.Key), rec.Value); err != nil {
				return fmt.Errorf("put %q: %w", rec.Key, err)
			}
		}
		return nil
	})
	return store.Unavailable("replace", p, err)
}

func (s *Store) ensureBuckets() error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		for _, p := range store.Partitions() {
			if _, err := tx.CreateBucketIfNotExists([]byte(p)); err != nil {
				return fmt.Errorf("create %s bucket: %w", p, err)
			}
		}
		return nil
	})
}

func bucket(tx *bbolt.Tx, p store.Partition) (*bbolt.Bucket, error) {
	b := tx.Bucket([]byte(p))
	if b == nil {
		return nil, fmt.Errorf("%s bucket is missing", p)
	}
	return b, nil
}

// clearBucket collects keys first; deleting under a live cursor skips entries.
func clearBucket(b *bbolt.Bucket) error {
	var keys [][]byte
	if err := b.ForEach(func(k, _ []byte) error {
		keys = append(keys, bytes.Clone(k))
		return nil
	}); err != nil {
		return err
	}
	for _, k := range keys {
		if err := b.Delete(k); err != nil {
			return err
		}
	}
	return nil
}

func seqKey(seq uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, seq)
	return key
}
