package store

import (
	"encoding/json"
	"fmt"

	"github.com/roach88/leafline/internal/entity"
)

// marshalEntity stores entities as tagged envelopes so decoding is exhaustive by kind.
func marshalEntity(e entity.Entity) ([]byte, error) {
	env, err := entity.Wrap(e)
	if err != nil {
		return nil, fmt.Errorf("marshal entity: %w", err)
	}
	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("marshal entity: %w", err)
	}
	return data, nil
}

// unmarshalEntity decodes a stored envelope and checks it belongs to want.
func unmarshalEntity(data []byte, want entity.Kind) (entity.Entity, error) {
	var env entity.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("unmarshal entity: %w", err)
	}
	if env.Kind != want {
		return nil, fmt.Errorf("unmarshal entity: kind %q stored in %s partition", env.Kind, want)
	}
	return env.Unwrap()
}

func marshalJSON(v any, what string) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", what, err)
	}
	return data, nil
}

func unmarshalJSON(data []byte, v any, what string) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("unmarshal %s: %w", what, err)
	}
	return nil
}
