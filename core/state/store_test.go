package state

import (
	"testing"
	"time"

	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"cdpledger/core/ledger"
	"cdpledger/crypto"
	"cdpledger/native/bank"
	"cdpledger/native/borrower"
	nativecommon "cdpledger/native/common"
	"cdpledger/native/pricefeed"
	"cdpledger/native/troves"
	"cdpledger/storage"
)

func whole(n uint64) *uint256.Int {
	return new(uint256.Int).Mul(uint256.NewInt(n), troves.DecimalPrecision)
}

func newSystem(t *testing.T) *ledger.System {
	t.Helper()
	clock := nativecommon.NewManualClock(time.Unix(1_700_000_000, 0))
	cfg := ledger.DefaultConfig()
	cfg.DeployedAt = 1_600_000_000
	sys, err := ledger.New(cfg, pricefeed.NewStatic(whole(200)), clock, nil)
	require.NoError(t, err)
	return sys
}

func openTrove(t *testing.T, sys *ledger.System, label string, coll uint64) crypto.Address {
	t.Helper()
	owner := crypto.ModuleAddress(label)
	require.NoError(t, sys.Fund([]bank.Balance{{Symbol: bank.SymbolCollateral, Address: owner, Amount: whole(coll)}}))
	_, err := sys.OpenTrove(borrower.OpenTroveRequest{
		Actor: owner, Principal: owner, Coll: whole(coll), DebtAmount: whole(2_000), MaxFeePercentage: troves.DecimalPrecision,
	})
	require.NoError(t, err)
	return owner
}

func encode(t *testing.T, snap ledger.Snapshot) []byte {
	t.Helper()
	out, err := rlp.EncodeToBytes(&snap)
	require.NoError(t, err)
	return out
}

func TestRecordsRoundTripAndRollback(t *testing.T) {
	db := storage.NewMemDB()
	defer db.Close()
	tr, err := openTrie(db.TrieDB(), gethtypes.EmptyRootHash)
	require.NoError(t, err)

	require.NoError(t, writeRecord(tr, []byte("n"), uint64(42)))
	var n uint64
	ok, err := readRecord(tr, []byte("n"), &n)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(42), n)

	missing, err := readList[string](tr, []byte("missing"))
	require.NoError(t, err)
	require.Empty(t, missing)

	root, err := tr.commit(1)
	require.NoError(t, err)
	require.NoError(t, writeRecord(tr, []byte("n"), uint64(7)))
	require.NotEqual(t, root, tr.pending())
	require.NoError(t, tr.rollback())
	require.Equal(t, root, tr.pending())
	_, err = readRecord(tr, []byte("n"), &n)
	require.NoError(t, err)
	require.Equal(t, uint64(42), n)

	require.NoError(t, tr.remove([]byte("n")))
	ok, err = readRecord(tr, []byte("n"), &n)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestOpenRejectsForeignSchema(t *testing.T) {
	db := storage.NewMemDB()
	defer db.Close()
	tr, err := openTrie(db.TrieDB(), gethtypes.EmptyRootHash)
	require.NoError(t, err)
	require.NoError(t, checkSchema(tr, false))

	require.NoError(t, writeRecord(tr, schemaKey, uint64(SchemaVersion+1)))
	root, err := tr.commit(1)
	require.NoError(t, err)
	head, err := rlp.EncodeToBytes(&Head{Root: root, Version: 1})
	require.NoError(t, err)
	require.NoError(t, db.Put(headKey, head))

	_, err = Open(db, false)
	require.ErrorIs(t, err, ErrSchemaMismatch)
	store, err := Open(db, true)
	require.NoError(t, err)
	require.Equal(t, root, store.Head().Root)
}

func TestSaveLedgerSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	db, err := storage.NewLevelDB(dir)
	require.NoError(t, err)

	store, err := Open(db, false)
	require.NoError(t, err)
	require.Equal(t, gethtypes.EmptyRootHash, store.Head().Root)
	_, ok, err := store.LoadLedger()
	require.NoError(t, err)
	require.False(t, ok)

	sys := newSystem(t)
	alice := openTrove(t, sys, "alice", 20)
	first, err := store.SaveLedger(sys.Export())
	require.NoError(t, err)
	require.Equal(t, uint64(1), first.Version)

	bob := openTrove(t, sys, "bob", 30)
	sys.SetPaused(ledger.ModuleTroves, true)
	want := sys.Export()
	second, err := store.SaveLedger(want)
	require.NoError(t, err)
	require.Equal(t, uint64(2), second.Version)
	require.NotEqual(t, first.Root, second.Root)
	db.Close()

	db, err = storage.NewLevelDB(dir)
	require.NoError(t, err)
	defer db.Close()
	reopened, err := Open(db, false)
	require.NoError(t, err)
	require.Equal(t, second, reopened.Head())

	got, ok, err := reopened.LoadLedger()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, encode(t, want), encode(t, got))

	restored := newSystem(t)
	require.NoError(t, restored.Restore(got))
	require.Equal(t, []crypto.Address{bob, alice}, restored.SortedTroves())
	require.Equal(t, []string{ledger.ModuleTroves}, restored.Paused())
}
