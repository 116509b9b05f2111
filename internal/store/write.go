package store

import (
	"context"
	"fmt"
	"strconv"
	"time"
)

// Put upserts value under key.
// Uses ON CONFLICT(partition, key) DO UPDATE so the second write wins and
// exactly one row exists per key.
func (s *Store) Put(ctx context.Context, p Partition, key string, value []byte) error {
	if err := CheckKeyed("put", p); err != nil {
		return err
	}
	db, err := s.handle("put", p)
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO kv (partition, key, value, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(partition, key) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at
	`, string(p), key, value, time.Now().UnixMilli())
	if err != nil {
		return Unavailable("put", p, err)
	}
	return nil
}

// Append adds value to a queue partition and returns its seq.
// AUTOINCREMENT keeps seq strictly increasing even after removals.
func (s *Store) Append(ctx context.Context, p Partition, value []byte) (int64, error) {
	if err := CheckQueue("append", p); err != nil {
		return 0, err
	}
	db, err := s.handle("append", p)
	if err != nil {
		return 0, err
	}

	result, err := db.ExecContext(ctx, `
		INSERT INTO queue (partition, value) VALUES (?, ?)
	`, string(p), value)
	if err != nil {
		return 0, Unavailable("append", p, err)
	}

	seq, err := result.LastInsertId()
	if err != nil {
		return 0, Unavailable("append", p, fmt.Errorf("last insert id: %w", err))
	}
	return seq, nil
}

// Remove deletes key from the partition. Absent keys are not an error.
func (s *Store) Remove(ctx context.Context, p Partition, key string) error {
	if err := CheckPartition("remove", p); err != nil {
		return err
	}
	db, err := s.handle("remove", p)
	if err != nil {
		return err
	}

	if p.IsQueue() {
		seq, err := strconv.ParseInt(key, 10, 64)
		if err != nil {
			return nil
		}
		if _, err := db.ExecContext(ctx, `
			DELETE FROM queue WHERE partition = ? AND seq = ?
		`, string(p), seq); err != nil {
			return Unavailable("remove", p, err)
		}
		return nil
	}

	if _, err := db.ExecContext(ctx, `
		DELETE FROM kv WHERE partition = ? AND key = ?
	`, string(p), key); err != nil {
		return Unavailable("remove", p, err)
	}
	return nil
}

// Clear empties one partition.
func (s *Store) Clear(ctx context.Context, p Partition) error {
	if err := CheckPartition("clear", p); err != nil {
		return err
	}
	db, err := s.handle("clear", p)
	if err != nil {
		return err
	}

	table := "kv"
	if p.IsQueue() {
		table = "queue"
	}
	if _, err := db.ExecContext(ctx, "DELETE FROM "+table+" WHERE partition = ?", string(p)); err != nil {
		return Unavailable("clear", p, err)
	}
	return nil
}

// Replace swaps the contents of a keyed partition in one transaction.
// Readers never observe a half-replaced partition.
func (s *Store) Replace(ctx context.Context, p Partition, records []Record) error {
	if err := CheckKeyed("replace", p); err != nil {
		return err
	}
	db, err := s.handle("replace", p)
	if err != nil {
		return err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return Unavailable("replace", p, fmt.Errorf("begin tx: %w", err))
	}
	defer tx.Rollback() // No-op if committed

	if _, err := tx.ExecContext(ctx, `DELETE FROM kv WHERE partition = ?`, string(p)); err != nil {
		return Unavailable("replace", p, fmt.Errorf("delete: %w", err))
	}

	now := time.Now().UnixMilli()
	for _, rec := range records {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO kv (partition, key, value, updated_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(partition, key) DO UPDATE SET
				value = excluded.value,
				updated_at = excluded.updated_at
		`, string(p), rec.Key, rec.Value, now); err != nil {
			return Unavailable("replace", p, fmt.Errorf("insert %q: %w", rec.Key, err))
		}
	}

	if err := tx.Commit(); err != nil {
		return Unavailable("replace", p, fmt.Errorf("commit: %w", err))
	}
	return nil
}
