package resources

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestParseKind(t *testing.T) {
	for _, s := range []string{"apiary", "hive", "inspection", "treatment", "flowering", "payment", "equipment"} {
		kind, err := ParseKind(s)
		require.NoError(t, err)
		require.Equal(t, Kind(s), kind)
	}

	_, err := ParseKind("beehive")
	require.ErrorIs(t, err, ErrUnknownKind)
	_, err = ParseKind("")
	require.ErrorIs(t, err, ErrUnknownKind)
}

func TestOwnershipContext_IsZero(t *testing.T) {
	require.True(t, OwnershipContext{}.IsZero())
	require.True(t, OwnershipContext{Shared: true}.IsZero())

	withOwner := OwnershipContext{OwnerID: uuid.NullUUID{UUID: uuid.New(), Valid: true}}
	require.False(t, withOwner.IsZero())

	withGroup := OwnershipContext{GroupID: uuid.NullUUID{UUID: uuid.New(), Valid: true}}
	require.False(t, withGroup.IsZero())
}
