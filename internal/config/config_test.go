package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 20, cfg.Sampling.Points)
	assert.Equal(t, 20, cfg.Sampling.Trials)
	assert.Equal(t, 500, cfg.Sampling.Fragmentations)
	assert.InDelta(t, 0.5, cfg.Sampling.SegmentLength, 1e-12)
	assert.Equal(t, []string{"biped", "worm", "t", "plus"}, cfg.Sweep.Topologies)
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)

	cfg, err = Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.yaml")
	raw := `
sweep:
  kind: body
  topologies: [worm, plus]
  counts: [1, 2, 3]
sampling:
  points: 3
  trials: 2
  fragmentations: 10
  deadline: 90s
task:
  name: jumping
output:
  layout: per-configuration
  encoding: text
store:
  kind: sqlite
  path: runs.db
`
	require.NoError(t, os.WriteFile(path, []byte(raw), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "body", cfg.Sweep.Kind)
	assert.Equal(t, []string{"worm", "plus"}, cfg.Sweep.Topologies)
	assert.Equal(t, []int{1, 2, 3}, cfg.Sweep.Counts)
	assert.Equal(t, 3, cfg.Sampling.Points)
	assert.Equal(t, Duration(90*time.Second), cfg.Sampling.Deadline)
	assert.Equal(t, "jumping", cfg.Task.Name)
	assert.Equal(t, "per-configuration", cfg.Output.Layout)
	assert.Equal(t, "sqlite", cfg.Store.Kind)
	// untouched fields keep defaults
	assert.InDelta(t, 0.5, cfg.Sampling.SegmentLength, 1e-12)
	assert.Equal(t, "NaN", cfg.Output.Missing)
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := map[string]func(*Config){
		"unknown topology": func(c *Config) { c.Sweep.Topologies = []string{"hexapod"} },
		"no topologies":    func(c *Config) { c.Sweep.Topologies = nil },
		"negative count":   func(c *Config) { c.Sweep.Counts = []int{1, -2} },
		"zero points":      func(c *Config) { c.Sampling.Points = 0 },
		"bad range":        func(c *Config) { c.Sampling.RangeMax = c.Sampling.RangeMin },
		"unknown task":     func(c *Config) { c.Task.Name = "swimming" },
		"sqlite no path":   func(c *Config) { c.Store.Kind = "sqlite" },
		"bad layout":       func(c *Config) { c.Output.Layout = "sharded" },
		"bad level":        func(c *Config) { c.Logging.Level = "loud" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			mutate(&cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalid)
		})
	}
}

func TestLoadRejectsInvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("sampling:\n  points: -1\n"), 0o644))
	_, err := Load(path)
	assert.ErrorIs(t, err, ErrInvalid)

	require.NoError(t, os.WriteFile(path, []byte("sampling: [\n"), 0o644))
	_, err = Load(path)
	assert.Error(t, err)
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "run.yaml")
	cfg := Default()
	cfg.Sweep.Counts = []int{0, 4}
	cfg.Sampling.Deadline = Duration(5 * time.Minute)
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}
