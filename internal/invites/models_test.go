package invites

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestInvite_IsValid(t *testing.T) {
	now := time.Now().UTC()

	open := &Invite{Status: StatusInvited, ExpiresAt: now.Add(time.Hour)}
	require.True(t, open.IsValid(now))

	overdue := &Invite{Status: StatusInvited, ExpiresAt: now.Add(-time.Minute)}
	require.False(t, overdue.IsValid(now))

	for _, status := range []Status{StatusAccepted, StatusDeclined, StatusExpired} {
		settled := &Invite{Status: status, ExpiresAt: now.Add(time.Hour)}
		require.False(t, settled.IsValid(now), "status %s", status)
	}
}

func TestInvite_IsValid_AtExactExpiry(t *testing.T) {
	now := time.Now().UTC()
	inv := &Invite{Status: StatusInvited, ExpiresAt: now}
	require.True(t, inv.IsValid(now))
}
