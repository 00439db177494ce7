package logger

import (
	"bufio"
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_Production(t *testing.T) {
	var buf bytes.Buffer
	log, closer := New(Production, WithOutput(&buf))
	defer closer.Close()

	log.Info("exported", "model", "test_net", "nodes", 9)
	log.Debug("hidden")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "exported", rec["msg"])
	assert.Equal(t, "test_net", rec["model"])
	assert.InDelta(t, 9, rec["nodes"], 0)
	assert.NotContains(t, buf.String(), "hidden")
}

func TestNew_Development(t *testing.T) {
	var buf bytes.Buffer
	log, _ := New(Development, WithOutput(&buf), WithNoColor(), WithLevel(slog.LevelDebug))

	log.Debug("operator done", "operator", "conv1")
	out := buf.String()
	assert.Contains(t, out, "operator done")
	assert.Contains(t, out, "operator=conv1")
	assert.NotContains(t, out, "\x1b[")
}

func TestNew_EnvVar(t *testing.T) {
	t.Setenv(EnvVar, "production")
	assert.Equal(t, Production, FromEnv())

	var buf bytes.Buffer
	log, _ := New("", WithOutput(&buf))
	log.Info("hello")
	assert.True(t, json.Valid(bytes.TrimSpace(buf.Bytes())))

	t.Setenv(EnvVar, "staging")
	assert.Equal(t, Development, FromEnv())
}

func TestNew_LogFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "pnnxgen.log")
	var console bytes.Buffer
	log, closer := New(Development, WithOutput(&console), WithNoColor(), WithLogFile(path))

	log.With("model", "conv_relu").WithGroup("load").Warn("slow entry", "key", "conv1.weight")
	require.NoError(t, closer.Close())

	assert.Contains(t, console.String(), "slow entry")

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	sc := bufio.NewScanner(f)
	require.True(t, sc.Scan())

	var rec map[string]any
	require.NoError(t, json.Unmarshal(sc.Bytes(), &rec))
	assert.Equal(t, "slow entry", rec["msg"])
	assert.Equal(t, "conv_relu", rec["model"])
	assert.Equal(t, map[string]any{"key": "conv1.weight"}, rec["load"])
}

func TestNew_LogToFileDisabledByEmptyPath(t *testing.T) {
	var buf bytes.Buffer
	log, closer := New(Production, WithOutput(&buf), WithLogFile(""))
	log.Info("console only")
	assert.NoError(t, closer.Close())
	assert.Contains(t, buf.String(), "console only")
}
