package stats

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const (
	runIndexFile   = "run_index.json"
	runConfigFile  = "run_config.json"
	runSummaryFile = "summary.json"
)

// RunConfig records the parameters a landscape run was started with.
type RunConfig struct {
	RunID          string   `json:"run_id"`
	Sweep          string   `json:"sweep"`
	Topologies     []string `json:"topologies"`
	Counts         []int    `json:"counts"`
	Sensorizing    string   `json:"sensorizing"`
	Activation     string   `json:"activation,omitempty"`
	StepT          float64  `json:"step_t,omitempty"`
	Task           string   `json:"task"`
	Extractor      string   `json:"extractor"`
	Duration       float64  `json:"duration"`
	DT             float64  `json:"dt,omitempty"`
	Points         int      `json:"points"`
	Trials         int      `json:"trials"`
	Fragmentations int      `json:"fragmentations"`
	SegmentLength  float64  `json:"segment_length"`
	Seed           int64    `json:"seed"`
	Workers        int      `json:"workers"`
	Name           string   `json:"name"`
	Layout         string   `json:"layout"`
	WriteGenotype  bool     `json:"write_genotype"`
	Encoding       string   `json:"encoding"`
	Missing        string   `json:"missing"`
	DeadlineMS     int64    `json:"deadline_ms,omitempty"`
}

// ConfigurationSummary aggregates the samples of one configuration. Fitness
// statistics cover successful evaluations only.
type ConfigurationSummary struct {
	Key       string  `json:"key"`
	Dimension int     `json:"dimension"`
	Samples   int     `json:"samples"`
	Failures  int     `json:"failures"`
	Cancelled int     `json:"cancelled,omitempty"`
	Min       float64 `json:"min"`
	Mean      float64 `json:"mean"`
	Max       float64 `json:"max"`
	Std       float64 `json:"std"`
	Path      string  `json:"path,omitempty"`
	Error     string  `json:"error,omitempty"`
}

type RunSummary struct {
	RunID          string                 `json:"run_id"`
	StartedAtUTC   string                 `json:"started_at_utc"`
	CompletedAtUTC string                 `json:"completed_at_utc"`
	Samples        int                    `json:"samples"`
	Failures       int                    `json:"failures"`
	Configurations []ConfigurationSummary `json:"configurations"`
}

type RunIndexEntry struct {
	RunID          string `json:"run_id"`
	Sweep          string `json:"sweep"`
	Task           string `json:"task"`
	Configurations int    `json:"configurations"`
	Samples        int    `json:"samples"`
	Failures       int    `json:"failures"`
	Seed           int64  `json:"seed"`
	Workers        int    `json:"workers"`
	RunDir         string `json:"run_dir"`
	CreatedAtUTC   string `json:"created_at_utc"`
}

// RunDir is where the files of runID live under baseDir.
func RunDir(baseDir, runID string) string {
	return filepath.Join(baseDir, runID)
}

func AppendRunIndex(baseDir string, entry RunIndexEntry) error {
	if entry.RunID == "" {
		return fmt.Errorf("run id is required")
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return err
	}

	index, err := ListRunIndex(baseDir)
	if err != nil {
		return err
	}

	for i := range index {
		if index[i].RunID == entry.RunID {
			index[i] = entry
			return writeJSON(filepath.Join(baseDir, runIndexFile), index)
		}
	}

	index = append(index, entry)
	return writeJSON(filepath.Join(baseDir, runIndexFile), index)
}

// ListRunIndex returns the index newest first.
func ListRunIndex(baseDir string) ([]RunIndexEntry, error) {
	path := filepath.Join(baseDir, runIndexFile)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return []RunIndexEntry{}, nil
		}
		return nil, err
	}

	var entries []RunIndexEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, err
	}

	type indexedEntry struct {
		entry RunIndexEntry
		idx   int
	}
	indexed := make([]indexedEntry, len(entries))
	for i := range entries {
		indexed[i] = indexedEntry{entry: entries[i], idx: i}
	}
	sort.Slice(indexed, func(i, j int) bool {
		if indexed[i].entry.CreatedAtUTC == indexed[j].entry.CreatedAtUTC {
			// Prefer later appended entries for equal timestamps.
			return indexed[i].idx > indexed[j].idx
		}
		return indexed[i].entry.CreatedAtUTC > indexed[j].entry.CreatedAtUTC
	})

	sorted := make([]RunIndexEntry, 0, len(indexed))
	for _, item := range indexed {
		sorted = append(sorted, item.entry)
	}
	return sorted, nil
}

func WriteRunConfig(baseDir, runID string, cfg RunConfig) error {
	if strings.TrimSpace(runID) == "" {
		return fmt.Errorf("run id is required")
	}
	if strings.TrimSpace(cfg.RunID) == "" {
		cfg.RunID = strings.TrimSpace(runID)
	}
	if cfg.RunID != strings.TrimSpace(runID) {
		return fmt.Errorf("run config run id mismatch: got=%s want=%s", cfg.RunID, strings.TrimSpace(runID))
	}
	runDir := RunDir(baseDir, runID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return err
	}
	return writeJSON(filepath.Join(runDir, runConfigFile), cfg)
}

func ReadRunConfig(baseDir, runID string) (RunConfig, bool, error) {
	var cfg RunConfig
	ok, err := readJSON(filepath.Join(RunDir(baseDir, runID), runConfigFile), &cfg)
	return cfg, ok, err
}

func WriteRunSummary(baseDir string, summary RunSummary) error {
	if strings.TrimSpace(summary.RunID) == "" {
		return fmt.Errorf("run id is required")
	}
	runDir := RunDir(baseDir, summary.RunID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return err
	}
	return writeJSON(filepath.Join(runDir, runSummaryFile), summary)
}

func ReadRunSummary(baseDir, runID string) (RunSummary, bool, error) {
	var summary RunSummary
	ok, err := readJSON(filepath.Join(RunDir(baseDir, runID), runSummaryFile), &summary)
	return summary, ok, err
}

// ExportRun copies every regular file of a run directory into outDir/runID.
func ExportRun(baseDir, runID, outDir string) (string, error) {
	if runID == "" {
		return "", fmt.Errorf("run id is required")
	}

	src := RunDir(baseDir, runID)
	entries, err := os.ReadDir(src)
	if err != nil {
		return "", err
	}

	dst := filepath.Join(outDir, runID)
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return "", err
	}
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		if err := copyFile(filepath.Join(src, entry.Name()), filepath.Join(dst, entry.Name())); err != nil {
			return "", err
		}
	}
	return dst, nil
}

func readJSON(path string, value any) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal(data, value); err != nil {
		return false, err
	}
	return true, nil
}

func writeJSON(path string, value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return os.WriteFile(path, data, 0o644)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}
