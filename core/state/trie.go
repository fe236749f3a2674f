package state

import (
	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	gethtrie "github.com/ethereum/go-ethereum/trie"
	"github.com/ethereum/go-ethereum/trie/trienode"
	"github.com/ethereum/go-ethereum/triedb"
)

// snapshotTrie is the working copy of the ledger trie. Record keys are
// keccak256-hashed on the way in. Uncommitted writes live in memory until
// commit and are dropped by rollback. Not safe for concurrent use.
type snapshotTrie struct {
	nodes     *triedb.Database
	committed common.Hash
	working   *gethtrie.Trie
}

func openTrie(nodes *triedb.Database, root common.Hash) (*snapshotTrie, error) {
	working, err := gethtrie.New(gethtrie.TrieID(root), nodes)
	if err != nil {
		return nil, err
	}
	return &snapshotTrie{nodes: nodes, committed: root, working: working}, nil
}

func recordKey(name []byte) []byte {
	return ethcrypto.Keccak256(name)
}

func (t *snapshotTrie) get(name []byte) ([]byte, error) {
	return t.working.Get(recordKey(name))
}

func (t *snapshotTrie) put(name, value []byte) error {
	return t.working.Update(recordKey(name), value)
}

func (t *snapshotTrie) remove(name []byte) error {
	return t.working.Delete(recordKey(name))
}

// pending is the root the trie would commit to right now.
func (t *snapshotTrie) pending() common.Hash {
	return t.working.Hash()
}

// commit flushes the working nodes as layer version on top of the last
// committed root and reopens the trie at the new root.
func (t *snapshotTrie) commit(version uint64) (common.Hash, error) {
	root, nodes := t.working.Commit(false)
	if nodes != nil {
		merged := trienode.NewMergedNodeSet()
		if err := merged.Merge(nodes); err != nil {
			return common.Hash{}, err
		}
		if err := t.nodes.Update(root, t.committed, version, merged, nil); err != nil {
			return common.Hash{}, err
		}
		if err := t.nodes.Commit(root, false); err != nil {
			return common.Hash{}, err
		}
	}
	working, err := gethtrie.New(gethtrie.TrieID(root), t.nodes)
	if err != nil {
		return common.Hash{}, err
	}
	t.working = working
	t.committed = root
	return root, nil
}

// rollback discards uncommitted writes.
func (t *snapshotTrie) rollback() error {
	working, err := gethtrie.New(gethtrie.TrieID(t.committed), t.nodes)
	if err != nil {
		return err
	}
	t.working = working
	return nil
}
