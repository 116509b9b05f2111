package entity

import (
	"fmt"
	"time"
)

// OpKind names a replayable write operation.
type OpKind string

const (
	OpSaveScan      OpKind = "save_scan"
	OpSaveDirectory OpKind = "save_directory"
	OpSavePromo     OpKind = "save_promo"
)

// OpFor returns the write operation used to persist entities of kind k.
func OpFor(k Kind) OpKind {
	switch k {
	case KindScan:
		return OpSaveScan
	case KindDirectory:
		return OpSaveDirectory
	case KindPromo:
		return OpSavePromo
	}
	mustKnow(k)
	return ""
}

// Kind returns the entity kind written by the operation.
func (o OpKind) Kind() (Kind, error) {
	switch o {
	case OpSaveScan:
		return KindScan, nil
	case OpSaveDirectory:
		return KindDirectory, nil
	case OpSavePromo:
		return KindPromo, nil
	}
	return "", fmt.Errorf("unknown operation %q", string(o))
}

// PendingOperation is a write accepted locally and waiting for replay.
//
// Seq is assigned by the store on append and is strictly increasing; replay
// order is ascending Seq. An operation is removed only after the remote
// service confirms it and is never rewritten in place.
type PendingOperation struct {
	Seq        int64     `json:"seq"`
	OpID       string    `json:"op_id"` // Idempotency key (UUIDv7)
	Kind       OpKind    `json:"kind"`
	Payload    Envelope  `json:"payload"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// NewPendingOperation snapshots e into a pending write.
func NewPendingOperation(opID string, e Entity, at time.Time) (PendingOperation, error) {
	env, err := Wrap(e)
	if err != nil {
		return PendingOperation{}, err
	}
	return PendingOperation{
		OpID:       opID,
		Kind:       OpFor(e.Kind()),
		Payload:    env,
		EnqueuedAt: at,
	}, nil
}

// DeadLetter is a pending operation the remote service refused during replay.
type DeadLetter struct {
	Operation PendingOperation `json:"operation"`
	Reason    string           `json:"reason"`
	FailedAt  time.Time        `json:"failed_at"`
}
