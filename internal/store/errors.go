package store

import (
	"errors"
	"fmt"
)

// ErrStorageUnavailable marks a persistence failure: closed or uninitialized
// store, I/O error, disk quota exceeded, lock timeout.
//
// Callers match it with errors.Is (or IsUnavailable) and degrade to an
// in-memory default rather than failing their own caller.
var ErrStorageUnavailable = errors.New("storage unavailable")

// ErrUnknownPartition is returned for a partition name the store does not provision.
var ErrUnknownPartition = errors.New("unknown partition")

// ErrPartitionMode is returned when a keyed operation targets a queue
// partition or Append targets a keyed partition.
var ErrPartitionMode = errors.New("operation not supported for partition")

// StorageError describes a failed backend operation.
type StorageError struct {
	Op        string    // "get", "put", "append", ...
	Partition Partition // Affected partition (may be empty for open/close)
	Err       error     // Underlying driver error
}

// Error implements the error interface.
func (e *StorageError) Error() string {
	if e.Partition != "" {
		return fmt.Sprintf("storage unavailable: %s %s: %v", e.Op, e.Partition, e.Err)
	}
	return fmt.Sprintf("storage unavailable: %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying driver error.
func (e *StorageError) Unwrap() error { return e.Err }

// Is makes every StorageError match ErrStorageUnavailable.
func (e *StorageError) Is(target error) bool {
	return target == ErrStorageUnavailable
}

// Unavailable wraps err as a StorageError. A nil err stays nil.
func Unavailable(op string, p Partition, err error) error {
	if err == nil {
		return nil
	}
	return &StorageError{Op: op, Partition: p, Err: err}
}

// IsUnavailable reports whether err is a storage availability failure.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrStorageUnavailable)
}

// ErrClosed is the cause reported by every backend once it has been closed.
var ErrClosed = errors.New("store is closed")
