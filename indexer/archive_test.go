package indexer

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"
	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/reader"
	"github.com/xitongsys/parquet-go/schema"
	"lukechampine.com/blake3"

	"cdpledger/core/events"
	"cdpledger/crypto"
)

func TestArchiveRowSchemaParses(t *testing.T) {
	sh, err := schema.NewSchemaHandlerFromStruct(new(archiveRow))
	require.NoError(t, err)
	// root plus one leaf per column
	require.Len(t, sh.SchemaElements, 7)
}

func TestExportParquetWritesMatchingEvents(t *testing.T) {
	sink, _ := newSink(t)
	owner := crypto.ModuleAddress("owner")
	for i := uint64(1); i <= 3; i++ {
		sink.Emit(events.TroveUpdated{Owner: owner, Coll: uint256.NewInt(i), Debt: uint256.NewInt(i), Stake: uint256.NewInt(i), Status: "active", Operation: events.TroveOperationAdjust})
	}
	sink.Emit(events.Redemption{Redeemer: crypto.ModuleAddress("redeemer"), Attempted: uint256.NewInt(1), Actual: uint256.NewInt(1), CollSent: uint256.NewInt(1), Fee: uint256.NewInt(0)})

	dir := filepath.Join(t.TempDir(), "archive")
	archive, err := sink.ExportParquet(context.Background(), dir, Filter{Type: events.TypeTroveUpdated, Limit: 1})
	require.NoError(t, err)
	require.Equal(t, 3, archive.Rows)
	require.Equal(t, uint64(1), archive.FirstSequence)
	require.Equal(t, uint64(3), archive.LastSequence)
	require.Equal(t, filepath.Join(dir, "events-0000000001-0000000003.parquet"), archive.Path)

	raw, err := os.ReadFile(archive.Path)
	require.NoError(t, err)
	sum := blake3.Sum256(raw)
	require.Equal(t, hex.EncodeToString(sum[:]), archive.Digest)

	fr, err := local.NewLocalFileReader(archive.Path)
	require.NoError(t, err)
	defer fr.Close()
	pr, err := reader.NewParquetReader(fr, new(archiveRow), 1)
	require.NoError(t, err)
	defer pr.ReadStop()
	require.Equal(t, int64(3), pr.GetNumRows())

	rows := make([]archiveRow, 3)
	require.NoError(t, pr.Read(&rows))
	require.Equal(t, int64(2), rows[1].Sequence)
	require.Equal(t, events.TypeTroveUpdated, rows[1].Type)
	require.Equal(t, owner.String(), rows[1].Subject)
	var attrs map[string]string
	require.NoError(t, json.Unmarshal([]byte(rows[1].Attributes), &attrs))
	require.Equal(t, "2", attrs["coll"])
}

func TestExportParquetRejectsEmptySelection(t *testing.T) {
	sink, _ := newSink(t)
	_, err := sink.ExportParquet(context.Background(), t.TempDir(), Filter{})
	require.ErrorIs(t, err, ErrNotFound)
}
