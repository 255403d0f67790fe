package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHandlerRenamesCoreKeys(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(newHandler(&buf, slog.LevelInfo))
	logger.Debug("hidden")
	logger.Info("hello", MaskField("token", "abc"), MaskField("empty", ""))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1, "debug line must be filtered at info level")

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	require.Equal(t, "hello", entry["message"])
	require.Equal(t, "INFO", entry["severity"])
	require.Contains(t, entry, "timestamp")
	require.Equal(t, RedactedValue, entry["token"])
	require.Equal(t, "", entry["empty"])
}

func TestSetupWritesRotatedFile(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	path := filepath.Join(t.TempDir(), "node.log")
	logger := Setup("bountyd", "test", Options{Level: "debug", File: path})
	logger.Debug("written")

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(raw), `"message":"written"`)
	require.Contains(t, string(raw), `"service":"bountyd"`)
	require.Contains(t, string(raw), `"env":"test"`)
}
