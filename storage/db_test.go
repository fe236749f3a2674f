package storage

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDatabasesRoundTrip(t *testing.T) {
	level, err := NewLevelDB(t.TempDir())
	require.NoError(t, err)
	for name, db := range map[string]Database{"memory": NewMemDB(), "leveldb": level} {
		t.Run(name, func(t *testing.T) {
			_, err := db.Get([]byte("missing"))
			require.ErrorIs(t, err, ErrNotFound)

			require.NoError(t, db.Put([]byte("k"), []byte("v")))
			got, err := db.Get([]byte("k"))
			require.NoError(t, err)
			require.Equal(t, []byte("v"), got)

			require.NoError(t, db.Delete([]byte("k")))
			_, err = db.Get([]byte("k"))
			require.ErrorIs(t, err, ErrNotFound)
			require.NotNil(t, db.TrieDB())
			db.Close()
			db.Close()
		})
	}
}
