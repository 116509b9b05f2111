package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
)

// Get returns the record stored under key.
// Returns (Record{}, false, nil) if the key is absent.
//
// For queue partitions key is the decimal seq.
func (s *Store) Get(ctx context.Context, p Partition, key string) (Record, bool, error) {
	if err := CheckPartition("get", p); err != nil {
		return Record{}, false, err
	}
	db, err := s.handle("get", p)
	if err != nil {
		return Record{}, false, err
	}

	if p.IsQueue() {
		seq, err := strconv.ParseInt(key, 10, 64)
		if err != nil {
			// Not a seq, so it cannot be present.
			return Record{}, false, nil
		}
		var value []byte
		err = db.QueryRowContext(ctx, `
			SELECT value FROM queue WHERE partition = ? AND seq = ?
		`, string(p), seq).Scan(&value)
		if errors.Is(err, sql.ErrNoRows) {
			return Record{}, false, nil
		}
		if err != nil {
			return Record{}, false, Unavailable("get", p, err)
		}
		return Record{Key: key, Seq: seq, Value: value}, true, nil
	}

	var value []byte
	err = db.QueryRowContext(ctx, `
		SELECT value FROM kv WHERE partition = ? AND key = ?
	`, string(p), key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, Unavailable("get", p, err)
	}
	return Record{Key: key, Value: value}, true, nil
}

// GetAll returns every record in the partition.
// Queue partitions: ORDER BY seq ASC (FIFO). Keyed partitions: ORDER BY key ASC COLLATE BINARY.
//
// Returns an empty slice (not nil) if the partition is empty.
func (s *Store) GetAll(ctx context.Context, p Partition) ([]Record, error) {
	if err := CheckPartition("get all", p); err != nil {
		return nil, err
	}
	db, err := s.handle("get all", p)
	if err != nil {
		return nil, err
	}

	if p.IsQueue() {
		return s.readQueue(ctx, db, p)
	}

	rows, err := db.QueryContext(ctx, `
		SELECT key, value FROM kv
		WHERE partition = ?
		ORDER BY key COLLATE BINARY ASC
	`, string(p))
	if err != nil {
		return nil, Unavailable("get all", p, err)
	}
	defer rows.Close()

	records := []Record{}
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.Key, &rec.Value); err != nil {
			return nil, Unavailable("get all", p, fmt.Errorf("scan: %w", err))
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, Unavailable("get all", p, fmt.Errorf("iterate: %w", err))
	}

	return records, nil
}

// readQueue returns queue rows in FIFO order.
func (s *Store) readQueue(ctx context.Context, db *sql.DB, p Partition) ([]Record, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT seq, value FROM queue
		WHERE partition = ?
		ORDER BY seq ASC
	`, string(p))
	if err != nil {
		return nil, Unavailable("get all", p, err)
	}
	defer rows.Close()

	records := []Record{}
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.Seq, &rec.Value); err != nil {
			return nil, Unavailable("get all", p, fmt.Errorf("scan: %w", err))
		}
		rec.Key = strconv.FormatInt(rec.Seq, 10)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, Unavailable("get all", p, fmt.Errorf("iterate: %w", err))
	}

	return records, nil
}
