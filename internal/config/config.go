package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

var ErrInvalid = errors.New("invalid configuration")

// Config is the YAML run configuration of a landscape sweep.
type Config struct {
	Sweep    SweepConfig    `yaml:"sweep"`
	Sampling SamplingConfig `yaml:"sampling"`
	Task     TaskConfig     `yaml:"task"`
	Output   OutputConfig   `yaml:"output"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Store    StoreConfig    `yaml:"store"`
}

// SweepConfig selects the configurations to walk. Empty Counts selects every
// rigid count of each topology for a controller sweep and 1..10 for a body
// sweep.
type SweepConfig struct {
	Kind        string   `yaml:"kind" validate:"oneof=controller body"`
	Topologies  []string `yaml:"topologies" validate:"required,min=1,dive,oneof=biped worm t plus"`
	Counts      []int    `yaml:"counts" validate:"omitempty,dive,gte=0"`
	Sensorizing string   `yaml:"sensorizing" validate:"oneof=standard none empty"`
	Activation  string   `yaml:"activation" validate:"required"`
	StepT       float64  `yaml:"step_t" validate:"gt=0"`
}

type SamplingConfig struct {
	Points         int      `yaml:"points" validate:"gt=0"`
	Trials         int      `yaml:"trials" validate:"gte=0"`
	Fragmentations int      `yaml:"fragmentations" validate:"gt=0"`
	SegmentLength  float64  `yaml:"segment_length" validate:"gt=0"`
	Seed           int64    `yaml:"seed"`
	RangeMin       float64  `yaml:"range_min"`
	RangeMax       float64  `yaml:"range_max" validate:"gtfield=RangeMin"`
	Workers        int      `yaml:"workers" validate:"gte=0"`
	Deadline       Duration `yaml:"deadline" validate:"gte=0"`
}

type TaskConfig struct {
	Name      string  `yaml:"name" validate:"oneof=locomotion jumping"`
	Extractor string  `yaml:"extractor" validate:"omitempty,oneof=x-velocity max-height"`
	Duration  float64 `yaml:"duration" validate:"gt=0"`
	DT        float64 `yaml:"dt" validate:"gte=0"`
}

type OutputConfig struct {
	Dir           string `yaml:"dir" validate:"required"`
	Name          string `yaml:"name" validate:"required"`
	Layout        string `yaml:"layout" validate:"oneof=single per-configuration"`
	WriteGenotype bool   `yaml:"write_genotype"`
	Encoding      string `yaml:"encoding" validate:"oneof=text base64"`
	Missing       string `yaml:"missing" validate:"required"`
}

type LoggingConfig struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" validate:"oneof=auto console json"`
}

type MetricsConfig struct {
	// Textfile is written in the prometheus text format after the run when set.
	Textfile string `yaml:"textfile"`
}

type StoreConfig struct {
	Kind string `yaml:"kind" validate:"oneof=memory sqlite"`
	Path string `yaml:"path" validate:"required_if=Kind sqlite"`
}

// Default returns the configuration of the reference landscape experiments:
// a locomotion controller sweep over every topology, 20 points, 20 trials,
// 500 fragmentation steps on segments of length 0.5.
func Default() Config {
	return Config{
		Sweep: SweepConfig{
			Kind:        "controller",
			Topologies:  []string{"biped", "worm", "t", "plus"},
			Sensorizing: "standard",
			Activation:  "tanh",
			StepT:       0.2,
		},
		Sampling: SamplingConfig{
			Points:         20,
			Trials:         20,
			Fragmentations: 500,
			SegmentLength:  0.5,
			Seed:           1,
			RangeMin:       -1,
			RangeMax:       1,
		},
		Task: TaskConfig{
			Name:     "locomotion",
			Duration: 10,
		},
		Output: OutputConfig{
			Dir:           "landscapes",
			Name:          "landscape",
			Layout:        "single",
			WriteGenotype: true,
			Encoding:      "base64",
			Missing:       "NaN",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "auto",
		},
		Store: StoreConfig{
			Kind: "memory",
		},
	}
}

// Load reads path over the defaults. A missing file yields the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if strings.TrimSpace(path) == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Save writes cfg as YAML, creating parent directories.
func (c Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// Duration is a time.Duration read and written as a Go duration string.
type Duration time.Duration

func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	parsed, err := time.ParseDuration(strings.TrimSpace(node.Value))
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	*d = Duration(parsed)
	return nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field constraints and reports every violation at once.
func (c Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %q (value %v)", fe.Namespace(), fe.Tag(), fe.Value()))
	}
	return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(msgs, "; "))
}
