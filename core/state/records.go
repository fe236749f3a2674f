package state

import (
	"errors"
	"fmt"
	"math"

	"github.com/ethereum/go-ethereum/rlp"
)

// SchemaVersion is the layout of the ledger records this binary reads and
// writes. Bump it on any incompatible change to ledger.Snapshot.
const SchemaVersion uint32 = 1

// ErrSchemaMismatch is returned by Open when the stored records were written
// under a different SchemaVersion.
var ErrSchemaMismatch = errors.New("state: ledger schema mismatch")

var (
	headKey = []byte("cdpledger/head")

	schemaKey    = []byte("ledger/schema")
	balancesKey  = []byte("ledger/balances")
	trovesKey    = []byte("ledger/troves")
	surplusKey   = []byte("ledger/surplus")
	rewardsKey   = []byte("ledger/rewards")
	approvalsKey = []byte("ledger/approvals")
	pausedKey    = []byte("ledger/paused")
)

// writeRecord RLP-encodes value under name.
func writeRecord(t *snapshotTrie, name []byte, value interface{}) error {
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return fmt.Errorf("state: encode %s: %w", name, err)
	}
	if err := t.put(name, encoded); err != nil {
		return fmt.Errorf("state: write %s: %w", name, err)
	}
	return nil
}

// readRecord decodes name into out and reports whether it was present.
func readRecord(t *snapshotTrie, name []byte, out interface{}) (bool, error) {
	data, err := t.get(name)
	if err != nil {
		return false, fmt.Errorf("state: read %s: %w", name, err)
	}
	if len(data) == 0 {
		return false, nil
	}
	if err := rlp.DecodeBytes(data, out); err != nil {
		return false, fmt.Errorf("state: decode %s: %w", name, err)
	}
	return true, nil
}

// readList decodes a list record; a missing record is an empty list.
func readList[T any](t *snapshotTrie, name []byte) ([]T, error) {
	var out []T
	if _, err := readRecord(t, name, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func storedSchema(t *snapshotTrie) (uint32, bool, error) {
	var stored uint64
	ok, err := readRecord(t, schemaKey, &stored)
	if err != nil || !ok {
		return 0, ok, err
	}
	if stored > math.MaxUint32 {
		return 0, false, fmt.Errorf("state: schema version overflow: %d", stored)
	}
	return uint32(stored), true, nil
}

// checkSchema accepts a fresh trie or one written under SchemaVersion. With
// allowMigrate any stored version is accepted so operators can migrate by hand.
func checkSchema(t *snapshotTrie, allowMigrate bool) error {
	version, ok, err := storedSchema(t)
	if err != nil {
		return err
	}
	if !ok || version == SchemaVersion || allowMigrate {
		return nil
	}
	return fmt.Errorf("%w: on-disk=%d expected=%d", ErrSchemaMismatch, version, SchemaVersion)
}
