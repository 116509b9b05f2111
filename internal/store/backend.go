package store

import (
	"context"
	"fmt"

	"github.com/roach88/leafline/internal/entity"
)

// Partition names an independent collection inside the store.
type Partition string

const (
	PartitionScans      Partition = "scans"
	PartitionDirectory  Partition = "directory"
	PartitionPromos     Partition = "promos"
	PartitionQueue      Partition = "queue"
	PartitionUsage      Partition = "usage"
	PartitionDeadLetter Partition = "deadletter"
)

// Partitions lists every partition a backend must provision.
func Partitions() []Partition {
	return []Partition{
		PartitionScans,
		PartitionDirectory,
		PartitionPromos,
		PartitionQueue,
		PartitionUsage,
		PartitionDeadLetter,
	}
}

// PartitionFor returns the entity partition for kind k.
func PartitionFor(k entity.Kind) Partition {
	switch k {
	case entity.KindScan:
		return PartitionScans
	case entity.KindDirectory:
		return PartitionDirectory
	case entity.KindPromo:
		return PartitionPromos
	}
	panic(fmt.Sprintf("store: no partition for kind %q", string(k)))
}

// IsQueue reports whether p is append-only with store-assigned keys.
func (p Partition) IsQueue() bool {
	return p == PartitionQueue || p == PartitionDeadLetter
}

// Valid reports whether p is a known partition.
func (p Partition) Valid() bool {
	for _, known := range Partitions() {
		if p == known {
			return true
		}
	}
	return false
}

// Record is one stored value.
// For queue partitions Seq is the append sequence and Key is its decimal form.
type Record struct {
	Key   string
	Seq   int64
	Value []byte
}

// Backend is the partition-generic persistence contract.
//
// Implementations must be safe for concurrent use. Operations on different
// partitions are independent.
type Backend interface {
	// Get returns the record stored under key. A missing key is (Record{}, false, nil).
	Get(ctx context.Context, p Partition, key string) (Record, bool, error)

	// GetAll returns every record in p, never nil. Queue partitions are
	// ordered by ascending seq, keyed partitions by ascending key.
	GetAll(ctx context.Context, p Partition) ([]Record, error)

	// Put upserts value under key in a keyed partition.
	Put(ctx context.Context, p Partition, key string, value []byte) error

	// Append adds value to a queue partition and returns its new seq.
	Append(ctx context.Context, p Partition, value []byte) (int64, error)

	// Remove deletes key from p. Removing an absent key succeeds.
	Remove(ctx context.Context, p Partition, key string) error

	// Clear empties p without touching other partitions.
	Clear(ctx context.Context, p Partition) error

	// Replace atomically swaps the contents of a keyed partition.
	Replace(ctx context.Context, p Partition, records []Record) error

	Close() error
}

// CheckPartition rejects unknown partitions.
func CheckPartition(op string, p Partition) error {
	if !p.Valid() {
		return fmt.Errorf("%s %q: %w", op, string(p), ErrUnknownPartition)
	}
	return nil
}

// CheckKeyed validates p for keyed operations (Put, Replace).
func CheckKeyed(op string, p Partition) error {
	if err := CheckPartition(op, p); err != nil {
		return err
	}
	if p.IsQueue() {
		return fmt.Errorf("%s %s: %w", op, p, ErrPartitionMode)
	}
	return nil
}

// CheckQueue validates p for Append.
func CheckQueue(op string, p Partition) error {
	if err := CheckPartition(op, p); err != nil {
		return err
	}
	if !p.IsQueue() {
		return fmt.Errorf("%s %s: %w", op, p, ErrPartitionMode)
	}
	return nil
}
