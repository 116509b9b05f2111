package entity

import (
	"encoding/json"
	"fmt"
)

// Envelope is the tagged wire form of an Entity.
//
// It is what the local store persists and what a PendingOperation carries,
// so a snapshot can be decoded without knowing its concrete type up front.
type Envelope struct {
	Kind    Kind            `json:"kind"`
	Payload json.RawMessage `json:"payload"`
}

// Wrap snapshots e into an Envelope.
func Wrap(e Entity) (Envelope, error) {
	if e == nil {
		return Envelope{}, fmt.Errorf("wrap: nil entity")
	}
	payload, err := json.Marshal(e)
	if err != nil {
		return Envelope{}, fmt.Errorf("wrap %s: %w", e.Kind(), err)
	}
	return Envelope{Kind: e.Kind(), Payload: payload}, nil
}

// Unwrap decodes the snapshot back into its concrete Entity.
func (env Envelope) Unwrap() (Entity, error) {
	switch env.Kind {
	case KindScan:
		return decode[ScanRecord](env)
	case KindDirectory:
		return decode[DirectoryRecord](env)
	case KindPromo:
		return decode[PromoMedia](env)
	}
	return nil, fmt.Errorf("unwrap: unknown entity kind %q", string(env.Kind))
}

func decode[T Entity](env Envelope) (Entity, error) {
	var v T
	if err := json.Unmarshal(env.Payload, &v); err != nil {
		return nil, fmt.Errorf("unwrap %s: %w", env.Kind, err)
	}
	return v, nil
}

// As narrows an Entity to a concrete type.
func As[T Entity](e Entity) (T, bool) {
	v, ok := e.(T)
	return v, ok
}
