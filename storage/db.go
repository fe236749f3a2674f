package storage

import (
	"errors"
	"sync"

	"github.com/ethereum/go-ethereum/core/rawdb"
	"github.com/ethereum/go-ethereum/ethdb"
	ethleveldb "github.com/ethereum/go-ethereum/ethdb/leveldb"
	"github.com/ethereum/go-ethereum/ethdb/memorydb"
	"github.com/ethereum/go-ethereum/triedb"
	"github.com/syndtr/goleveldb/leveldb/opt"
)

// ErrNotFound is returned by Get for missing keys.
var ErrNotFound = errors.New("storage: key not found")

// Database is a generic interface for a key-value store.
// This allows the ledger to use any database backend (in-memory or persistent).
type Database interface {
	Put(key []byte, value []byte) error
	Get(key []byte) ([]byte, error)
	Delete(key []byte) error
	// TrieDB returns the trie node database sharing this store.
	TrieDB() *triedb.Database
	Close() // A way to gracefully shut down the database connection.
}

// kvDatabase adapts a go-ethereum key-value store to Database.
type kvDatabase struct {
	db     ethdb.Database
	trieDB *triedb.Database
	once   sync.Once
}

func newKVDatabase(kv ethdb.KeyValueStore) *kvDatabase {
	db := rawdb.NewDatabase(kv)
	return &kvDatabase{db: db, trieDB: triedb.NewDatabase(db, triedb.HashDefaults)}
}

func (d *kvDatabase) Put(key []byte, value []byte) error {
	return d.db.Put(key, value)
}

func (d *kvDatabase) Get(key []byte) ([]byte, error) {
	ok, err := d.db.Has(key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotFound
	}
	return d.db.Get(key)
}

func (d *kvDatabase) Delete(key []byte) error {
	return d.db.Delete(key)
}

func (d *kvDatabase) TrieDB() *triedb.Database { return d.trieDB }

func (d *kvDatabase) Close() {
	d.once.Do(func() {
		_ = d.trieDB.Close()
		_ = d.db.Close()
	})
}

// --- In-Memory DB (for testing) ---

type MemDB struct {
	*kvDatabase
}

func NewMemDB() *MemDB {
	return &MemDB{kvDatabase: newKVDatabase(memorydb.New())}
}

// --- Persistent DB ---

// LevelDB is a persistent key-value store using LevelDB.
type LevelDB struct {
	*kvDatabase
}

// NewLevelDB creates or opens a LevelDB database at the specified path.
func NewLevelDB(path string) (*LevelDB, error) {
	kv, err := ethleveldb.NewCustom(path, "cdpledger/db/", func(options *opt.Options) {
		options.OpenFilesCacheCapacity = 64
		options.BlockCacheCapacity = 16 * opt.MiB
		options.WriteBuffer = 8 * opt.MiB
	})
	if err != nil {
		return nil, err
	}
	return &LevelDB{kvDatabase: newKVDatabase(kv)}, nil
}
