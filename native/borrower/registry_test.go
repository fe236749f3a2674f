package borrower

import (
	"testing"

	"github.com/stretchr/testify/require"

	"cdpledger/core/events"
	"cdpledger/crypto"
)

func TestSetApprovalIsIdempotent(t *testing.T) {
	reg := NewRegistry()
	rec := &events.Recorder{}
	reg.SetEmitter(rec)
	owner, delegate := crypto.ModuleAddress("owner"), crypto.ModuleAddress("delegate")

	require.NoError(t, reg.SetApproval(owner, delegate, true))
	require.NoError(t, reg.SetApproval(owner, delegate, true))
	require.True(t, reg.IsApproved(owner, delegate))
	require.False(t, reg.IsApproved(delegate, owner))
	require.Equal(t, []crypto.Address{delegate}, reg.Delegates(owner))

	require.NoError(t, reg.SetApproval(owner, delegate, false))
	require.False(t, reg.IsApproved(owner, delegate))
	require.NoError(t, reg.SetApproval(owner, delegate, false))
	require.False(t, reg.IsApproved(owner, delegate))
	require.Empty(t, reg.Delegates(owner))
	require.Len(t, rec.OfType(events.TypeDelegateApprovalSet), 4)
}

func TestSetApprovalRejectsInvalidPairs(t *testing.T) {
	reg := NewRegistry()
	owner := crypto.ModuleAddress("owner")
	require.ErrorIs(t, reg.SetApproval(owner, crypto.ZeroAddress, true), ErrZeroAddress)
	require.ErrorIs(t, reg.SetApproval(crypto.ZeroAddress, owner, true), ErrZeroAddress)
	require.ErrorIs(t, reg.SetApproval(owner, owner, true), ErrSelfDelegation)
}

func TestRegistryExportImport(t *testing.T) {
	reg := NewRegistry()
	owner := crypto.ModuleAddress("owner")
	for _, label := range []string{"a", "b", "c"} {
		require.NoError(t, reg.SetApproval(owner, crypto.ModuleAddress(label), true))
	}
	require.NoError(t, reg.SetApproval(crypto.ModuleAddress("a"), owner, true))

	restored := NewRegistry()
	restored.Import(reg.Export())
	require.Equal(t, reg.Export(), restored.Export())
	require.Len(t, restored.Delegates(owner), 3)
	require.True(t, restored.IsApproved(crypto.ModuleAddress("a"), owner))
}
