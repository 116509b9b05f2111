package entity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrapUnwrap_AllKinds(t *testing.T) {
	at := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	cases := []Entity{
		ScanRecord{ID: "s1", UserID: "u1", PlantName: "Tomato", Confidence: 0.91, ScannedAt: at},
		DirectoryRecord{ID: "d1", Name: "Green Co-op", Category: "seeds", Products: []string{"maize"}, UpdatedAt: at},
		PromoMedia{ID: "p1", Title: "Harvest sale", MediaURL: "https://cdn/x.png", MediaType: "image", ActiveFrom: at, ActiveUntil: at.Add(24 * time.Hour)},
	}

	for _, e := range cases {
		t.Run(string(e.Kind()), func(t *testing.T) {
			env, err := Wrap(e)
			require.NoError(t, err)
			assert.Equal(t, e.Kind(), env.Kind)

			got, err := env.Unwrap()
			require.NoError(t, err)
			assert.Equal(t, e, got)
		})
	}
}

func TestWrap_Nil(t *testing.T) {
	_, err := Wrap(nil)
	assert.Error(t, err)
}

func TestUnwrap_UnknownKind(t *testing.T) {
	_, err := Envelope{Kind: "tractor", Payload: []byte(`{}`)}.Unwrap()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tractor")
}

func TestUnwrap_BadPayload(t *testing.T) {
	_, err := Envelope{Kind: KindScan, Payload: []byte(`{"confidence":"high"}`)}.Unwrap()
	assert.Error(t, err)
}

// Every kind must have an operation and round-trip through OpKind.Kind;
// this fails when a kind is added without updating the exhaustive switches.
func TestOpFor_CoversEveryKind(t *testing.T) {
	for _, k := range Kinds() {
		op := OpFor(k)
		assert.NotEmpty(t, op)

		back, err := op.Kind()
		require.NoError(t, err)
		assert.Equal(t, k, back)
	}
}

func TestOpKind_Unknown(t *testing.T) {
	_, err := OpKind("delete_everything").Kind()
	assert.Error(t, err)
}

func TestWithID(t *testing.T) {
	got := WithID(DirectoryRecord{ID: "tmp", Name: "Farm"}, "srv-9")
	rec, ok := As[DirectoryRecord](got)
	require.True(t, ok)
	assert.Equal(t, "srv-9", rec.ID)
	assert.Equal(t, "Farm", rec.Name)
}

func TestNewPendingOperation_Snapshots(t *testing.T) {
	rec := DirectoryRecord{ID: "d1", Products: []string{"a"}}
	op, err := NewPendingOperation("op-1", rec, time.Unix(10, 0))
	require.NoError(t, err)

	// Mutating the original after enqueue must not change the snapshot.
	rec.Products[0] = "changed"

	got, err := op.Payload.Unwrap()
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, got.(DirectoryRecord).Products)
	assert.Equal(t, OpSaveDirectory, op.Kind)
	assert.Equal(t, "op-1", op.OpID)
}

func TestParseKind(t *testing.T) {
	k, err := ParseKind("promo")
	require.NoError(t, err)
	assert.Equal(t, KindPromo, k)

	_, err = ParseKind("Promo")
	assert.Error(t, err)
}

func TestUsageRatio(t *testing.T) {
	assert.Equal(t, 0.5, DailyUsageRecord{WeightedCost: 50, DailyLimit: 100}.UsageRatio())
	assert.Equal(t, 0.0, DailyUsageRecord{WeightedCost: 50}.UsageRatio())
}
