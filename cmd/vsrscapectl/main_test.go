package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vsrscape/internal/config"
	"vsrscape/internal/stats"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	err := run(context.Background(), args, &stdout, &stderr)
	return stdout.String(), err
}

func landscapeArgs(outDir string, extra ...string) []string {
	args := []string{
		"landscape",
		"--out-dir", outDir,
		"--store", "sqlite",
		"--db-path", filepath.Join(outDir, "vsrscape.db"),
		"--log-format", "json",
		"--log-level", "warn",
		"--topology", "worm",
		"--counts", "0,2",
		"--points", "1",
		"--trials", "1",
		"--fragmentations", "2",
		"--duration", "0.2",
		"--workers", "2",
		"--seed", "3",
		"--genotype",
		"--encoding", "text",
	}
	return append(args, extra...)
}

func TestLandscapeCommandWritesRun(t *testing.T) {
	outDir := t.TempDir()

	stdout, err := execute(t, landscapeArgs(outDir, "--run-id", "cli-run")...)
	require.NoError(t, err)
	assert.Contains(t, stdout, "config=worm:0 dim=20 samples=3 failures=0")
	assert.Contains(t, stdout, "config=worm:2 dim=20 samples=3 failures=0")
	assert.Contains(t, stdout, "run_id=cli-run samples=6 failures=0")

	entries, err := stats.ListRunIndex(outDir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "cli-run", entries[0].RunID)

	rows, err := stats.ReadLandscapeFile(filepath.Join(outDir, "cli-run", "landscape.csv"), "text", "NaN")
	require.NoError(t, err)
	assert.Len(t, rows, 6)

	stdout, err = execute(t, "runs", "--out-dir", outDir, "--json")
	require.NoError(t, err)
	var listed []map[string]any
	require.NoError(t, json.Unmarshal([]byte(stdout), &listed))
	require.Len(t, listed, 1)
	assert.Equal(t, "cli-run", listed[0]["run_id"])

	stdout, err = execute(t, "runs", "--out-dir", outDir, "--store", "sqlite", "--db-path", filepath.Join(outDir, "vsrscape.db"), "--key", "worm:2")
	require.NoError(t, err)
	assert.Contains(t, stdout, "config=worm:2 runs=1")

	stdout, err = execute(t, "runs", "--out-dir", outDir, "--store", "sqlite", "--db-path", filepath.Join(outDir, "vsrscape.db"), "--run-id", "cli-run")
	require.NoError(t, err)
	assert.Contains(t, stdout, `"run_id": "cli-run"`)

	stdout, err = execute(t, "reevaluate", "--out-dir", outDir, "--log-level", "warn", "--run-id", "cli-run",
		"--in", filepath.Join(outDir, "cli-run", "landscape.csv"))
	require.NoError(t, err)
	assert.Contains(t, stdout, "reevaluated rows=6 failures=0")
	_, err = os.Stat(filepath.Join(outDir, "cli-run", "landscape-reevaluated.csv"))
	assert.NoError(t, err)

	exportDir := filepath.Join(t.TempDir(), "exports")
	stdout, err = execute(t, "export", "--out-dir", outDir, "--latest", "--out", exportDir)
	require.NoError(t, err)
	assert.Contains(t, stdout, "exported run_id=cli-run")
	_, err = os.Stat(filepath.Join(exportDir, "cli-run", "summary.json"))
	assert.NoError(t, err)
}

func TestLandscapeCommandUsesConfigFile(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "run.yaml")
	raw := `
sweep:
  kind: body
  topologies: [t]
  counts: [1]
sampling:
  points: 1
  trials: 0
task:
  name: jumping
  duration: 0.2
output:
  dir: ` + filepath.Join(dir, "out") + `
  layout: per-configuration
logging:
  level: error
  format: json
`
	require.NoError(t, os.WriteFile(cfgPath, []byte(raw), 0o644))

	stdout, err := execute(t, "landscape", "--config", cfgPath, "--run-id", "from-file")
	require.NoError(t, err)
	assert.Contains(t, stdout, "config=t:1")
	assert.Contains(t, stdout, "samples=1")
	_, err = os.Stat(filepath.Join(dir, "out", "from-file", "landscape-t-1.csv"))
	assert.NoError(t, err)

	recorded, ok, err := stats.ReadRunConfig(filepath.Join(dir, "out"), "from-file")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "body", recorded.Sweep)
	assert.Equal(t, "max-height", recorded.Extractor)
}

func TestShapeCommand(t *testing.T) {
	stdout, err := execute(t, "shape", "--out-dir", t.TempDir(), "--topology", "worm", "--counts", "0,7", "--json")
	require.NoError(t, err)
	var items []struct {
		Topology   string `json:"topology"`
		Rigid      int    `json:"rigid"`
		Descriptor string `json:"descriptor"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &items))
	require.Len(t, items, 2)
	assert.Equal(t, "sssss-sssss", items[0].Descriptor)
	assert.Equal(t, 7, items[1].Rigid)

	stdout, err = execute(t, "shape", "--out-dir", t.TempDir(), "--topology", "plus", "--counts", "0")
	require.NoError(t, err)
	assert.Equal(t, "topology=plus rigid=0 voxels=20 shape=..ss..-..ss..-ssssss-ssssss-..ss..-..ss..\n", stdout)
}

func TestInitConfigWritesLoadableFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vsrscape.yaml")
	stdout, err := execute(t, "init-config", "--path", path, "--out-dir", "elsewhere")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(stdout, "wrote config"))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "elsewhere", cfg.Output.Dir)
}

func TestCommandErrors(t *testing.T) {
	_, err := execute(t, "bogus")
	assert.Error(t, err)

	_, err = execute(t, "runs", "--log-level", "loud")
	assert.ErrorIs(t, err, config.ErrInvalid)

	_, err = execute(t, landscapeArgs(t.TempDir(), "--topology", "hexapod")...)
	assert.ErrorIs(t, err, config.ErrInvalid)

	_, err = execute(t, "export", "--out-dir", t.TempDir())
	assert.Error(t, err)

	_, err = execute(t, "reevaluate", "--out-dir", t.TempDir())
	assert.Error(t, err)

	stdout, err := execute(t, "runs", "--out-dir", t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, "no runs found\n", stdout)
}
