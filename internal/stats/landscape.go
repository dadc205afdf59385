package stats

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"vsrscape/internal/genotype"
)

const (
	Separator      = ';'
	DefaultMissing = "NaN"
	DefaultName    = "landscape"
	fileExtension  = ".csv"

	BaseSegment = -1
)

var (
	ErrUnknownLayout     = errors.New("unknown output layout")
	ErrMalformedRow      = errors.New("malformed landscape row")
	ErrConfigurationOpen = errors.New("configuration already open")
)

type Layout string

const (
	// LayoutSingle writes every configuration of a run to one file.
	LayoutSingle Layout = "single"
	// LayoutPerConfiguration writes one file per configuration.
	LayoutPerConfiguration Layout = "per-configuration"
)

func ParseLayout(name string) (Layout, error) {
	switch Layout(strings.TrimSpace(strings.ToLower(name))) {
	case "", LayoutSingle:
		return LayoutSingle, nil
	case LayoutPerConfiguration:
		return LayoutPerConfiguration, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownLayout, name)
	}
}

// Row is one sample of a landscape walk. Segment is BaseSegment for the base
// point of a walk and the trial index otherwise.
type Row struct {
	Key      string
	Point    int
	Segment  int
	Genotype []float64
	Fitness  float64
}

// Failed reports whether the row carries the missing-value marker.
func (r Row) Failed() bool {
	return math.IsNaN(r.Fitness)
}

// Format describes the columns of a landscape file.
type Format struct {
	WriteGenotype bool
	Encoding      genotype.Encoding
	Missing       string
}

func (f Format) missing() string {
	if f.Missing == "" {
		return DefaultMissing
	}
	return f.Missing
}

func (f Format) Header() []string {
	if f.WriteGenotype {
		return []string{"topologyKey", "pointIndex", "segmentIndex", "genotype", "fitness"}
	}
	return []string{"topologyKey", "pointIndex", "segmentIndex", "fitness"}
}

func (f Format) Record(r Row) ([]string, error) {
	record := make([]string, 0, 5)
	record = append(record, r.Key, strconv.Itoa(r.Point), strconv.Itoa(r.Segment))
	if f.WriteGenotype {
		encoded, err := genotype.Encode(r.Genotype, f.Encoding)
		if err != nil {
			return nil, err
		}
		record = append(record, encoded)
	}
	if r.Failed() {
		record = append(record, f.missing())
	} else {
		record = append(record, strconv.FormatFloat(r.Fitness, 'g', -1, 64))
	}
	return record, nil
}

type WriterOptions struct {
	Dir    string
	Name   string
	Layout Layout
	Format Format
}

// LandscapeWriter streams rows to disk. Rows of the open configuration are
// buffered and flushed by EndConfiguration.
type LandscapeWriter struct {
	opts WriterOptions

	file   *os.File
	csv    *csv.Writer
	key    string
	open   bool
	paths  []string
	header map[string]bool
	// start is the file size before the open configuration's first row.
	start int64
}

func NewLandscapeWriter(opts WriterOptions) (*LandscapeWriter, error) {
	if strings.TrimSpace(opts.Dir) == "" {
		return nil, fmt.Errorf("output directory is required")
	}
	layout, err := ParseLayout(string(opts.Layout))
	if err != nil {
		return nil, err
	}
	opts.Layout = layout
	if opts.Name == "" {
		opts.Name = DefaultName
	}
	if opts.Format.WriteGenotype {
		if _, err := genotype.ParseEncoding(string(opts.Format.Encoding)); err != nil {
			return nil, err
		}
	}
	return &LandscapeWriter{opts: opts, header: make(map[string]bool)}, nil
}

// PathFor is the file that rows of configuration key are written to.
func (w *LandscapeWriter) PathFor(key string) string {
	name := w.opts.Name
	if w.opts.Layout == LayoutPerConfiguration {
		name = w.opts.Name + "-" + strings.NewReplacer(":", "-", "/", "-").Replace(key)
	}
	return filepath.Join(w.opts.Dir, name+fileExtension)
}

// BeginConfiguration opens the destination of key, writing the header when the
// file is new.
func (w *LandscapeWriter) BeginConfiguration(key string) error {
	if w.open {
		return fmt.Errorf("%w: %s", ErrConfigurationOpen, w.key)
	}
	path := w.PathFor(key)
	if w.file == nil || w.file.Name() != path {
		if err := w.closeFile(); err != nil {
			return err
		}
		if err := os.MkdirAll(w.opts.Dir, 0o755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
		flags := os.O_CREATE | os.O_WRONLY | os.O_APPEND
		if !w.header[path] {
			flags = os.O_CREATE | os.O_WRONLY | os.O_TRUNC
		}
		file, err := os.OpenFile(path, flags, 0o644)
		if err != nil {
			return fmt.Errorf("open landscape file: %w", err)
		}
		w.file = file
		w.start = 0
		w.csv = csv.NewWriter(file)
		w.csv.Comma = Separator
		if !w.header[path] {
			if err := w.csv.Write(w.opts.Format.Header()); err != nil {
				return fmt.Errorf("write header: %w", err)
			}
			w.csv.Flush()
			if err := w.csv.Error(); err != nil {
				return fmt.Errorf("write header: %w", err)
			}
			w.header[path] = true
			w.paths = append(w.paths, path)
		}
	}
	start, err := w.file.Seek(0, io.SeekEnd)
	if err != nil {
		return fmt.Errorf("locate configuration start: %w", err)
	}
	w.start = start
	w.key = key
	w.open = true
	return nil
}

func (w *LandscapeWriter) Write(r Row) error {
	if !w.open {
		return fmt.Errorf("no open configuration")
	}
	if r.Key == "" {
		r.Key = w.key
	}
	record, err := w.opts.Format.Record(r)
	if err != nil {
		return err
	}
	return w.csv.Write(record)
}

// EndConfiguration flushes the rows of the open configuration.
func (w *LandscapeWriter) EndConfiguration() error {
	if !w.open {
		return nil
	}
	w.open = false
	w.csv.Flush()
	if err := w.csv.Error(); err != nil {
		return fmt.Errorf("flush %s: %w", w.key, err)
	}
	if w.opts.Layout == LayoutPerConfiguration {
		return w.closeFile()
	}
	return nil
}

// Abort drops every row of the open configuration, including rows the buffer
// already spilled to disk, and closes its file. Rows of earlier
// configurations in the same file are kept.
func (w *LandscapeWriter) Abort() error {
	w.open = false
	if w.file == nil {
		return nil
	}
	truncErr := w.file.Truncate(w.start)
	closeErr := w.file.Close()
	w.file = nil
	w.csv = nil
	if truncErr != nil {
		return fmt.Errorf("discard rows of %s: %w", w.key, truncErr)
	}
	return closeErr
}

// Paths lists the files written so far, in creation order.
func (w *LandscapeWriter) Paths() []string {
	return append([]string(nil), w.paths...)
}

func (w *LandscapeWriter) Close() error {
	if err := w.EndConfiguration(); err != nil {
		_ = w.closeFile()
		return err
	}
	return w.closeFile()
}

func (w *LandscapeWriter) closeFile() error {
	if w.file == nil {
		return nil
	}
	w.csv.Flush()
	flushErr := w.csv.Error()
	closeErr := w.file.Close()
	w.file = nil
	w.csv = nil
	if flushErr != nil {
		return flushErr
	}
	return closeErr
}

// ReadLandscape parses a landscape file. The genotype column is detected from
// the header and decoded with enc; fields equal to missing become NaN.
func ReadLandscape(r io.Reader, enc genotype.Encoding, missing string) ([]Row, error) {
	if missing == "" {
		missing = DefaultMissing
	}
	reader := csv.NewReader(r)
	reader.Comma = Separator
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		if err == io.EOF {
			return []Row{}, nil
		}
		return nil, err
	}
	withGenotype := len(header) == 5
	if len(header) != 4 && len(header) != 5 {
		return nil, fmt.Errorf("%w: header has %d columns", ErrMalformedRow, len(header))
	}

	rows := make([]Row, 0, 128)
	for line := 2; ; line++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if len(record) != len(header) {
			return nil, fmt.Errorf("%w: line %d has %d columns, expected %d", ErrMalformedRow, line, len(record), len(header))
		}
		row := Row{Key: record[0]}
		if row.Point, err = strconv.Atoi(record[1]); err != nil {
			return nil, fmt.Errorf("%w: line %d point: %v", ErrMalformedRow, line, err)
		}
		if row.Segment, err = strconv.Atoi(record[2]); err != nil {
			return nil, fmt.Errorf("%w: line %d segment: %v", ErrMalformedRow, line, err)
		}
		fitnessField := record[3]
		if withGenotype {
			if row.Genotype, err = genotype.Decode(record[3], enc); err != nil {
				return nil, fmt.Errorf("%w: line %d: %v", ErrMalformedRow, line, err)
			}
			fitnessField = record[4]
		}
		if fitnessField == missing {
			row.Fitness = math.NaN()
		} else if row.Fitness, err = strconv.ParseFloat(fitnessField, 64); err != nil {
			return nil, fmt.Errorf("%w: line %d fitness: %v", ErrMalformedRow, line, err)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func ReadLandscapeFile(path string, enc genotype.Encoding, missing string) ([]Row, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return ReadLandscape(file, enc, missing)
}
