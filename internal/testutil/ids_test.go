package testutil

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/leafline/internal/entity"
)

var _ entity.IDGenerator = (*SequentialIDs)(nil)

func TestSequentialIDs(t *testing.T) {
	gen := NewSequentialIDs("op")

	assert.Equal(t, "op-1", gen.Generate())
	assert.Equal(t, "op-2", gen.Generate())
	assert.Equal(t, "op-3", gen.Generate())
}

func TestSequentialIDs_EmptyPrefixDefault(t *testing.T) {
	gen := NewSequentialIDs("")
	assert.Equal(t, "id-1", gen.Generate())
}
