package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yegors/co-atis/internal/api"
)

func writeTestConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("CO_ATIS_TEMP_DIR", "")
	t.Setenv("CO_ATIS_IMAGES_DIR", "")

	content := `
[logging]
level = "error"
format = "json"

[openai]
api_key_file = ""

[capture]
temp_dir = "` + filepath.ToSlash(filepath.Join(dir, "temp")) + `"

[illustration]
images_dir = "` + filepath.ToSlash(filepath.Join(dir, "images")) + `"

[storage]
sqlite_path = "` + filepath.ToSlash(filepath.Join(dir, "co-atis.db")) + `"

[[airports]]
code = "RCTP"
name = "Taoyuan International Airport"
stream_url = "https://example.com/rctp"

[[airports]]
code = "RCKH"
name = "Kaohsiung International Airport"
stream_url = "https://example.com/rckh"
`
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func runCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCommand()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestAirportsCommand(t *testing.T) {
	path := writeTestConfig(t)

	out, err := runCommand(t, "airports", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "CODE")
	assert.Contains(t, out, "RCTP  Taoyuan International Airport")
	assert.Contains(t, out, "RCKH  Kaohsiung International Airport")
	assert.NotContains(t, out, "RCSS")
	assert.NotContains(t, out, "https://")

	out, err = runCommand(t, "airports", "--config", path, "--urls")
	require.NoError(t, err)
	assert.Contains(t, out, "https://example.com/rctp")
}

func TestProcessCommandUnknownAirport(t *testing.T) {
	path := writeTestConfig(t)

	out, err := runCommand(t, "process", "zzzz", "--config", path)
	require.Error(t, err)

	var runErr *runFailedError
	assert.True(t, errors.As(err, &runErr))

	var body api.ErrorResponse
	require.NoError(t, json.Unmarshal([]byte(out), &body))
	assert.Equal(t, "error", body.Status)
	assert.Equal(t, "Unsupported airport code: ZZZZ", body.Message)
}

func TestProcessCommandRequiresCode(t *testing.T) {
	_, err := runCommand(t, "process")
	assert.Error(t, err)
}

func TestServeRejectsBadAddr(t *testing.T) {
	path := writeTestConfig(t)

	_, err := runCommand(t, "serve", "--config", path, "--addr", "localhost")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid --addr")
}

func TestMissingConfigFile(t *testing.T) {
	_, err := runCommand(t, "airports", "--config", filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}
