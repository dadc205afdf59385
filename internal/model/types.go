package model

// VersionedRecord captures schema and codec evolution for persistent data.
type VersionedRecord struct {
	SchemaVersion int `json:"schema_version"`
	CodecVersion  int `json:"codec_version"`
}

// RunRecord is the persisted summary of one landscape run.
type RunRecord struct {
	VersionedRecord
	RunID          string                `json:"run_id"`
	Sweep          string                `json:"sweep"`
	Task           string                `json:"task"`
	Seed           int64                 `json:"seed"`
	Workers        int                   `json:"workers"`
	OutputDir      string                `json:"output_dir"`
	StartedAtUTC   string                `json:"started_at_utc"`
	CompletedAtUTC string                `json:"completed_at_utc"`
	Samples        int                   `json:"samples"`
	Failures       int                   `json:"failures"`
	Configurations []ConfigurationRecord `json:"configurations"`
}

// ConfigurationRecord holds the sample counts and fitness statistics of one
// configuration of a run.
type ConfigurationRecord struct {
	Key       string  `json:"key"`
	Dimension int     `json:"dimension"`
	Samples   int     `json:"samples"`
	Failures  int     `json:"failures"`
	Cancelled int     `json:"cancelled"`
	Min       float64 `json:"min"`
	Mean      float64 `json:"mean"`
	Max       float64 `json:"max"`
	Std       float64 `json:"std"`
	Path      string  `json:"path,omitempty"`
	Error     string  `json:"error,omitempty"`
}

// Configuration returns the record of key, if the run walked it.
func (r RunRecord) Configuration(key string) (ConfigurationRecord, bool) {
	for _, c := range r.Configurations {
		if c.Key == key {
			return c, true
		}
	}
	return ConfigurationRecord{}, false
}
