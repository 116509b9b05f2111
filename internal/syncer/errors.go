package syncer

import (
	"errors"
	"fmt"

	"github.com/roach88/leafline/internal/entity"
)

// ReplayError describes one pending operation that failed to replay.
// The operation stays queued unless it was dead-lettered.
type ReplayError struct {
	Seq  int64
	OpID string
	Kind entity.OpKind
	Err  error
}

func (e *ReplayError) Error() string {
	return fmt.Sprintf("replay %s seq=%d op=%s: %v", e.Kind, e.Seq, e.OpID, e.Err)
}

func (e *ReplayError) Unwrap() error { return e.Err }

// IsReplayError reports whether err is or wraps a *ReplayError.
func IsReplayError(err error) bool {
	var re *ReplayError
	return errors.As(err, &re)
}
