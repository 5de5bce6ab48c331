package logger

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRejectsUnknownSettings(t *testing.T) {
	_, err := New(Config{Level: "loud", Format: "json"})
	require.Error(t, err)

	_, err = New(Config{Level: "info", Format: "xml"})
	require.Error(t, err)
}

func TestJSONOutputCarriesNameAndFields(t *testing.T) {
	var buf bytes.Buffer
	log, err := New(Config{Level: "info", Format: "json", Output: &buf})
	require.NoError(t, err)

	log.Named("pipeline").WithSession("abc", "RCTP").Info("stage finished", String("stage", "capturing"))
	require.NoError(t, log.Sync())

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "pipeline", entry["logger"])
	assert.Equal(t, "stage finished", entry["msg"])
	assert.Equal(t, "abc", entry["session_id"])
	assert.Equal(t, "RCTP", entry["airport"])
	assert.Equal(t, "capturing", entry["stage"])
	assert.NotContains(t, entry, "caller")
}

func TestDebugLevelFiltersBelowThreshold(t *testing.T) {
	var buf bytes.Buffer
	log, err := New(Config{Level: "WARNING", Format: "json", Output: &buf})
	require.NoError(t, err)

	log.Info("hidden")
	log.Warn("shown")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "shown")
}

func TestFitName(t *testing.T) {
	assert.Equal(t, "capture"+strings.Repeat(" ", 8), fitName("co-atis.capture"))
	assert.Equal(t, "illustration-re", fitName("illustration-registry"))
}

func TestNewNop(t *testing.T) {
	log := NewNop()
	log.Named("x").Error("ignored")
}

func TestDomainFields(t *testing.T) {
	var buf bytes.Buffer
	log, err := New(Config{Level: "info", Format: "json", Output: &buf})
	require.NoError(t, err)

	log.Info("captured", Airport("RCSS"), Stage("capturing"), Size("size", 1500000), Size("negative", -1))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "RCSS", entry["airport"])
	assert.Equal(t, "capturing", entry["stage"])
	assert.Equal(t, "1.5 MB", entry["size"])
	assert.Equal(t, "0 B", entry["negative"])
}

func TestDebugLevelAddsCaller(t *testing.T) {
	var buf bytes.Buffer
	log, err := New(Config{Level: "debug", Format: "json", Output: &buf})
	require.NoError(t, err)

	log.Debug("visible")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Contains(t, entry["caller"], "logger_test.go")
}
