package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/acorg/go3seq/internal/config"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	t.Setenv("GO3SEQ_DATA_DIR", t.TempDir())
	t.Setenv("GO3SEQ_PVALUE_TABLE", "/env/table")
	t.Setenv("GO3SEQ_BINARY", "3seq-env")

	cfg, err := config.New()
	require.NoError(t, err)
	require.NoError(t, cfg.EnsureDataDir())

	require.NoError(t, os.WriteFile(filepath.Join(cfg.UserProfileDir, "hiv.yaml"), []byte(`
pvalue_table: /profile/table
t: 0.05
binary: /opt/3seq
output_prefix: hiv
`), 0644))
	return cfg
}

func TestBuildRequestFromEnvironment(t *testing.T) {
	cfg := testConfig(t)
	cmd := newRunCommand()
	require.NoError(t, cmd.ParseFlags(nil))

	req, err := buildRequest(cmd, cfg)
	require.NoError(t, err)
	assert.Equal(t, "/env/table", req.PValueTable)
	assert.Equal(t, "3seq-env", req.Binary)
	assert.Nil(t, req.Threshold)
}

func TestBuildRequestProfile(t *testing.T) {
	cfg := testConfig(t)
	cmd := newRunCommand()
	require.NoError(t, cmd.ParseFlags([]string{"--profile", "hiv"}))

	req, err := buildRequest(cmd, cfg)
	require.NoError(t, err)
	assert.Equal(t, "/profile/table", req.PValueTable)
	assert.Equal(t, 0.05, req.Threshold)
	assert.Equal(t, "/opt/3seq", req.Binary)
	assert.Equal(t, "hiv", req.OutputPrefix)
}

func TestBuildRequestFlagsWin(t *testing.T) {
	cfg := testConfig(t)
	cmd := newRunCommand()
	require.NoError(t, cmd.ParseFlags([]string{
		"--profile", "hiv", "--ptable", "/flag/table", "-t", "0.050", "--keep-output", "--dry-run",
	}))

	req, err := buildRequest(cmd, cfg)
	require.NoError(t, err)
	assert.Equal(t, "/flag/table", req.PValueTable)
	assert.Equal(t, "0.050", req.Threshold)
	assert.True(t, req.KeepOutput)
	assert.True(t, req.DryRun)
}

func TestBuildRequestUnknownProfile(t *testing.T) {
	cfg := testConfig(t)
	cmd := newRunCommand()
	require.NoError(t, cmd.ParseFlags([]string{"--profile", "nope"}))

	_, err := buildRequest(cmd, cfg)
	assert.ErrorContains(t, err, `profile "nope" not found`)
}

func TestBuildRequestNeedsTable(t *testing.T) {
	cfg := testConfig(t)
	cfg.PValueTable = ""
	cmd := newRunCommand()
	require.NoError(t, cmd.ParseFlags(nil))

	_, err := buildRequest(cmd, cfg)
	assert.ErrorContains(t, err, "no p-value table")
}
