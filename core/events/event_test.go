package events

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"cdpledger/crypto"
)

func TestRedemptionEventAttributes(t *testing.T) {
	redeemer := crypto.ModuleAddress("redeemer")
	evt := Render(Redemption{
		Redeemer:  redeemer,
		Attempted: uint256.NewInt(100),
		Actual:    uint256.NewInt(80),
		CollSent:  uint256.NewInt(7),
		Fee:       nil,
	})
	require.Equal(t, TypeRedemption, evt.Type)
	require.Equal(t, redeemer.String(), evt.Attribute("redeemer"))
	require.Equal(t, "80", evt.Attribute("actual"))
	require.Equal(t, "0", evt.Attribute("fee"))
}

func TestMultiFansOutAndRecorderFilters(t *testing.T) {
	first, second := &Recorder{}, &Recorder{}
	emitter := Multi{first, nil, second}
	emitter.Emit(Staked{Amount: uint256.NewInt(1)})
	emitter.Emit(DelegateApprovalSet{Approved: true})

	require.Len(t, first.Events(), 2)
	require.Len(t, second.OfType(TypeDelegateApprovalSet), 1)
	require.Equal(t, "true", Render(second.OfType(TypeDelegateApprovalSet)[0]).Attribute("approved"))

	first.Reset()
	require.Empty(t, first.Events())
}
