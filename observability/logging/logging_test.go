package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"cdpledger/config"
)

func TestHandlerRenamesKeysAndFiltersLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewHandler(&buf, ParseLevel("warn")))
	logger.Info("dropped")
	logger.Warn("kept", slog.String("token", "secret"), slog.String("actor", "cdp1xyz"), slog.String("password", ""))

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	require.Equal(t, "kept", line["message"])
	require.Equal(t, "WARN", line["severity"])
	require.Contains(t, line, "timestamp")
	require.Equal(t, RedactedValue, line["token"])
	require.Equal(t, "cdp1xyz", line["actor"])
	require.Equal(t, "", line["password"])
}

func TestParseLevel(t *testing.T) {
	require.Equal(t, slog.LevelDebug, ParseLevel(" DEBUG "))
	require.Equal(t, slog.LevelError, ParseLevel("error"))
	require.Equal(t, slog.LevelInfo, ParseLevel("loud"))
}

func TestSetupWritesRotatingFile(t *testing.T) {
	defer slog.SetDefault(slog.Default())
	path := filepath.Join(t.TempDir(), "cdpd.log")
	logger, closer := Setup("cdpd", "test", config.Log{File: path, MaxSizeMB: 1})
	logger.Info("started")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var line map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(data), &line))
	require.Equal(t, "cdpd", line["service"])
	require.Equal(t, "test", line["env"])
	require.Equal(t, "started", line["message"])
}

func TestMaskAuthorization(t *testing.T) {
	require.Equal(t, "Bearer "+RedactedValue, MaskAuthorization("Bearer abc.def"))
	require.Equal(t, RedactedValue, MaskAuthorization("opaque"))
	require.Equal(t, "", MaskAuthorization(""))
}

func TestMaskDSN(t *testing.T) {
	require.Equal(t, "postgres://cdp:xxxxx@db:5432/ledger", MaskDSN("postgres://cdp:hunter2@db:5432/ledger"))
	require.Equal(t, "host=db user=cdp password="+RedactedValue+" dbname=ledger", MaskDSN("host=db user=cdp password=hunter2 dbname=ledger"))
	require.Equal(t, "file:cdp.db", MaskDSN("file:cdp.db"))
}
