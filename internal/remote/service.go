// Package remote is the boundary to the hosted backend.
//
// Service is what the offline layer and sync driver depend on. Client is the
// production implementation: a thin PostgREST-style REST client with one
// table per entity kind.
package remote

import (
	"context"

	"github.com/roach88/leafline/internal/entity"
)

// Service is the remote read/write contract.
//
// Failures are classified so callers can pick a recovery path:
// errors matching ErrUnreachable are connectivity problems and may be retried;
// *RejectedError means the service refused the call and a retry will not help.
type Service interface {
	// FetchAll returns the authoritative collection for kind.
	FetchAll(ctx context.Context, kind entity.Kind) ([]entity.Entity, error)

	// Save writes e and returns the confirmed entity, which may differ from
	// the input (for example a server-assigned id).
	Save(ctx context.Context, e entity.Entity) (entity.Entity, error)
}

type idempotencyKey struct{}

// WithIdempotencyKey attaches a key the Client sends with Save so the
// service can discard a duplicated replay.
func WithIdempotencyKey(ctx context.Context, key string) context.Context {
	return context.WithValue(ctx, idempotencyKey{}, key)
}

// IdempotencyKey returns the key attached by WithIdempotencyKey.
func IdempotencyKey(ctx context.Context) (string, bool) {
	key, ok := ctx.Value(idempotencyKey{}).(string)
	return key, ok && key != ""
}
