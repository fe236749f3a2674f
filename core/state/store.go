package state

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rlp"

	"cdpledger/core/ledger"
	"cdpledger/native/bank"
	"cdpledger/native/borrower"
	"cdpledger/native/surplus"
	"cdpledger/storage"
)

// Head is the last committed state root and its commit height.
type Head struct {
	Root    common.Hash
	Version uint64
}

// Store persists ledger snapshots into a Merkle trie and tracks the committed
// head in the backing database. Each SaveLedger is one trie commit, so the
// head root fingerprints the whole ledger.
type Store struct {
	db   storage.Database
	trie *snapshotTrie
	head Head
}

// Open loads the committed head from db, or starts from the empty trie.
func Open(db storage.Database, allowMigrate bool) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("state: database required")
	}
	head := Head{Root: gethtypes.EmptyRootHash}
	raw, err := db.Get(headKey)
	switch {
	case errors.Is(err, storage.ErrNotFound):
	case err != nil:
		return nil, fmt.Errorf("state: read head: %w", err)
	default:
		if err := rlp.DecodeBytes(raw, &head); err != nil {
			return nil, fmt.Errorf("state: decode head: %w", err)
		}
	}
	tr, err := openTrie(db.TrieDB(), head.Root)
	if err != nil {
		return nil, fmt.Errorf("state: open trie at %s: %w", head.Root, err)
	}
	if err := checkSchema(tr, allowMigrate); err != nil {
		return nil, err
	}
	return &Store{db: db, trie: tr, head: head}, nil
}

// Head returns the last committed head.
func (s *Store) Head() Head { return s.head }

// SaveLedger writes snap, commits the trie and advances the head. On failure
// the working trie is rolled back and the previous head is returned.
func (s *Store) SaveLedger(snap ledger.Snapshot) (Head, error) {
	records := []struct {
		key   []byte
		value interface{}
	}{
		{schemaKey, uint64(SchemaVersion)},
		{balancesKey, snap.Balances},
		{trovesKey, &snap.Troves},
		{surplusKey, snap.Surplus},
		{rewardsKey, &snap.Rewards},
		{approvalsKey, snap.Approvals},
		{pausedKey, snap.Paused},
	}
	for _, rec := range records {
		if err := writeRecord(s.trie, rec.key, rec.value); err != nil {
			_ = s.trie.rollback()
			return s.head, err
		}
	}
	next := s.head.Version + 1
	root, err := s.trie.commit(next)
	if err != nil {
		_ = s.trie.rollback()
		return s.head, fmt.Errorf("state: commit: %w", err)
	}
	head := Head{Root: root, Version: next}
	encoded, err := rlp.EncodeToBytes(&head)
	if err != nil {
		return s.head, err
	}
	if err := s.db.Put(headKey, encoded); err != nil {
		return s.head, fmt.Errorf("state: write head: %w", err)
	}
	s.head = head
	return head, nil
}

// LoadLedger reads the snapshot at the committed head. The boolean reports
// whether a snapshot has ever been saved.
func (s *Store) LoadLedger() (ledger.Snapshot, bool, error) {
	var snap ledger.Snapshot
	ok, err := readRecord(s.trie, trovesKey, &snap.Troves)
	if err != nil || !ok {
		return snap, false, err
	}
	if _, err := readRecord(s.trie, rewardsKey, &snap.Rewards); err != nil {
		return snap, false, err
	}
	if snap.Balances, err = readList[bank.Balance](s.trie, balancesKey); err != nil {
		return snap, false, err
	}
	if snap.Surplus, err = readList[surplus.Entry](s.trie, surplusKey); err != nil {
		return snap, false, err
	}
	if snap.Approvals, err = readList[borrower.Approval](s.trie, approvalsKey); err != nil {
		return snap, false, err
	}
	if snap.Paused, err = readList[string](s.trie, pausedKey); err != nil {
		return snap, false, err
	}
	return snap, true, nil
}
