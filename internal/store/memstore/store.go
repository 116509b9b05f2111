// Package memstore implements store.Backend in process memory.
//
// It is the fallback backend when no durable store can be opened and the
// backend used by unit tests. SetUnavailable makes every operation fail the
// way a full or locked disk would.
package memstore

import (
	"bytes"
	"context"
	"sort"
	"strconv"
	"sync"

	"github.com/roach88/leafline/internal/store"
)

// Store is an in-memory store.Backend. The zero value is not usable; call New.
type Store struct {
	mu      sync.RWMutex
	keyed   map[store.Partition]map[string][]byte
	queues  map[store.Partition][]store.Record
	seqs    map[store.Partition]int64
	failure error
	closed  bool
}

var _ store.Backend = (*Store)(nil)

// New returns an empty store.
func New() *Store {
	s := &Store{
		keyed:  make(map[store.Partition]map[string][]byte),
		queues: make(map[store.Partition][]store.Record),
		seqs:   make(map[store.Partition]int64),
	}
	for _, p := range store.Partitions() {
		if !p.IsQueue() {
			s.keyed[p] = make(map[string][]byte)
		}
	}
	return s
}

// SetUnavailable makes subsequent operations fail with a StorageError wrapping
// err. Passing nil restores normal operation.
func (s *Store) SetUnavailable(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failure = err
}

// Close marks the store closed. Data is dropped.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.keyed = nil
	s.queues = nil
	return nil
}

// check must be called with mu held.
func (s *Store) check(op string, p store.Partition) error {
	if s.closed {
		return store.Unavailable(op, p, store.ErrClosed)
	}
	if s.failure != nil {
		return store.Unavailable(op, p, s.failure)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, p store.Partition, key string) (store.Record, bool, error) {
	if err := store.CheckPartition("get", p); err != nil {
		return store.Record{}, false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check("get", p); err != nil {
		return store.Record{}, false, err
	}

	if p.IsQueue() {
		seq, err := strconv.ParseInt(key, 10, 64)
		if err != nil {
			return store.Record{}, false, nil
		}
		q := s.queues[p]
		i := sort.Search(len(q), func(i int) bool { return q[i].Seq >= seq })
		if i < len(q) && q[i].Seq == seq {
			return cloneRecord(q[i]), true, nil
		}
		return store.Record{}, false, nil
	}

	v, ok := s.keyed[p][key]
	if !ok {
		return store.Record{}, false, nil
	}
	return store.Record{Key: key, Value: bytes.Clone(v)}, true, nil
}

func (s *Store) GetAll(ctx context.Context, p store.Partition) ([]store.Record, error) {
	if err := store.CheckPartition("get all", p); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check("get all", p); err != nil {
		return nil, err
	}

	if p.IsQueue() {
		out := make([]store.Record, 0, len(s.queues[p]))
		for _, rec := range s.queues[p] {
			out = append(out, cloneRecord(rec))
		}
		return out, nil
	}

	m := s.keyed[p]
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]store.Record, 0, len(keys))
	for _, k := range keys {
		out = append(out, store.Record{Key: k, Value: bytes.Clone(m[k])})
	}
	return out, nil
}

func (s *Store) Put(ctx context.Context, p store.Partition, key string, value []byte) error {
	if err := store.CheckKeyed("put", p); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check("put", p); err != nil {
		return err
	}

	s.keyed[p][key] = bytes.Clone(value)
	return nil
}

func (s *Store) Append(ctx context.Context, p store.Partition, value []byte) (int64, error) {
	if err := store.CheckQueue("append", p); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check("append", p); err != nil {
		return 0, err
	}

	s.seqs[p]++
	seq := s.seqs[p]
	s.queues[p] = append(s.queues[p], store.Record{
		Key:   strconv.FormatInt(seq, 10),
		Seq:   seq,
		Value: bytes.Clone(value),
	})
	return seq, nil
}

func (s *Store) Remove(ctx context.Context, p store.Partition, key string) error {
	if err := store.CheckPartition("remove", p); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check("remove", p); err != nil {
		return err
	}

	if !p.IsQueue() {
		delete(s.keyed[p], key)
		return nil
	}

	q := s.queues[p]
	for i, rec := range q {
		if rec.Key == key {
			s.queues[p] = append(q[:i:i], q[i+1:]...)
			break
		}
	}
	return nil
}

// Clear empties p. Queue sequences keep counting.
func (s *Store) Clear(ctx context.Context, p store.Partition) error {
	if err := store.CheckPartition("clear", p); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check("clear", p); err != nil {
		return err
	}

	if p.IsQueue() {
		s.queues[p] = nil
	} else {
		s.keyed[p] = make(map[string][]byte)
	}
	return nil
}

func (s *Store) Replace(ctx context.Context, p store.Partition, records []store.Record) error {
	if err := store.CheckKeyed("replace", p); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check("replace", p); err != nil {
		return err
	}

	m := make(map[string][]byte, len(records))
	for _, rec := range records {
		m[rec.Key] = bytes.Clone(rec.Value)
	}
	s.keyed[p] = m
	return nil
}

func cloneRecord(rec store.Record) store.Record {
	rec.Value = bytes.Clone(rec.Value)
	return rec
}
