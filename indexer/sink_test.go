package indexer

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"cdpledger/core/events"
	"cdpledger/crypto"
)

func newSink(t *testing.T) (*Sink, string) {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := Open(dsn)
	require.NoError(t, err)
	sink, err := NewSink(db, nil)
	require.NoError(t, err)
	sink.SetClock(func() time.Time { return time.Unix(1_700_000_000, 0).UTC() })
	return sink, dsn
}

func TestSinkStoresEventsInOrder(t *testing.T) {
	sink, _ := newSink(t)
	owner := crypto.ModuleAddress("owner")
	redeemer := crypto.ModuleAddress("redeemer")

	sink.Emit(events.TroveUpdated{Owner: owner, Coll: uint256.NewInt(5), Debt: uint256.NewInt(7), Stake: uint256.NewInt(5), Status: "active", Operation: events.TroveOperationOpen})
	sink.Emit(events.Redemption{Redeemer: redeemer, Attempted: uint256.NewInt(3), Actual: uint256.NewInt(3), CollSent: uint256.NewInt(1), Fee: uint256.NewInt(0)})
	sink.Emit(events.TroveUpdated{Owner: owner, Coll: uint256.NewInt(4), Debt: uint256.NewInt(4), Stake: uint256.NewInt(4), Status: "active", Operation: events.TroveOperationRedeem})
	require.Zero(t, sink.Failures())

	ctx := context.Background()
	all, err := sink.Events(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	for i, evt := range all {
		require.Equal(t, uint64(i+1), evt.Sequence)
	}
	require.Equal(t, events.TypeRedemption, all[1].Type)
	require.Equal(t, "3", all[1].Attributes["actual"])

	mine, err := sink.Events(ctx, Filter{Subject: owner.String()})
	require.NoError(t, err)
	require.Len(t, mine, 2)

	after, err := sink.Events(ctx, Filter{Type: events.TypeTroveUpdated, After: 1})
	require.NoError(t, err)
	require.Len(t, after, 1)
	require.Equal(t, uint64(3), after[0].Sequence)

	trove, err := sink.Trove(ctx, owner.String())
	require.NoError(t, err)
	require.Equal(t, "4", trove.Coll)
	require.Equal(t, events.TroveOperationRedeem, trove.Operation)

	_, err = sink.Trove(ctx, redeemer.String())
	require.ErrorIs(t, err, ErrNotFound)
}

func TestSinkResumesSequence(t *testing.T) {
	sink, dsn := newSink(t)
	sink.Emit(events.BaseRateUpdated{BaseRate: uint256.NewInt(1), LastFeeOperationTime: 60})
	sink.Emit(events.BaseRateUpdated{BaseRate: uint256.NewInt(2), LastFeeOperationTime: 120})

	db, err := Open(dsn)
	require.NoError(t, err)
	resumed, err := NewSink(db, nil)
	require.NoError(t, err)
	resumed.Emit(events.BaseRateUpdated{BaseRate: uint256.NewInt(3), LastFeeOperationTime: 180})

	all, err := resumed.Events(context.Background(), Filter{Limit: 10})
	require.NoError(t, err)
	require.Len(t, all, 3)
	require.Equal(t, uint64(3), all[2].Sequence)
	require.Equal(t, "3", all[2].Attributes["baseRate"])
}

func TestOpenSelectsDriver(t *testing.T) {
	require.True(t, isPostgres("postgres://user@localhost/db"))
	require.True(t, isPostgres("host=localhost user=cdp dbname=cdp"))
	require.False(t, isPostgres("file::memory:"))
	_, err := Open("  ")
	require.Error(t, err)
}
