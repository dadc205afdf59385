package shape

import (
	"errors"
	"fmt"
	"strings"
)

const (
	Rigid  = 'r'
	Soft   = 's'
	Filler = '.'

	RowSeparator = "-"
)

var (
	ErrUnknownTopology  = errors.New("unknown topology")
	ErrNegativeRigidity = errors.New("rigid count must be >= 0")
)

type Topology string

const (
	Biped Topology = "biped"
	Worm  Topology = "worm"
	T     Topology = "t"
	Plus  Topology = "plus"
)

// Cell addresses a voxel slot by row (top row first) and column.
type Cell struct {
	Row int
	Col int
}

type layout struct {
	baseline []string
	order    []Cell
}

// layouts holds the baseline grid and rigid placement order of every topology.
// The orders reproduce the reference encoder output for every rigid count.
var layouts = map[Topology]layout{
	Biped: {
		baseline: []string{"ssss", "ssss", "s..s"},
		order: []Cell{
			{2, 0}, {2, 3}, {1, 0}, {1, 3}, {0, 0}, {0, 3},
			{0, 1}, {0, 2}, {1, 1}, {1, 2},
		},
	},
	Worm: {
		baseline: []string{"sssss", "sssss"},
		order: []Cell{
			{0, 0}, {1, 1}, {0, 2}, {1, 3}, {0, 4},
			{0, 1}, {1, 2},
		},
	},
	T: {
		baseline: []string{".ss.", ".ss.", ".ss.", ".ss.", "ssss"},
		order: []Cell{
			{0, 1}, {1, 2}, {2, 1}, {3, 2}, {4, 1},
			{0, 2}, {1, 1}, {2, 2}, {3, 1}, {4, 2},
			{4, 0},
		},
	},
	Plus: {
		baseline: []string{"..ss..", "..ss..", "ssssss", "ssssss", "..ss..", "..ss.."},
		order: []Cell{
			{0, 2}, {1, 3}, {2, 2}, {3, 3}, {4, 2}, {5, 3},
			{2, 0}, {3, 1},
			{2, 5}, {3, 4},
			{0, 3}, {1, 2},
			{3, 0}, {2, 1},
			{3, 5}, {2, 4},
			{5, 2}, {4, 3},
		},
	},
}

// Topologies lists the supported body families in a stable order.
func Topologies() []Topology {
	return []Topology{Biped, Worm, T, Plus}
}

func ParseTopology(name string) (Topology, error) {
	t := Topology(strings.TrimSpace(strings.ToLower(name)))
	if _, ok := layouts[t]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownTopology, name)
	}
	return t, nil
}

func (t Topology) String() string {
	return string(t)
}

// MaxRigid returns how many cells of t can be made rigid.
func MaxRigid(t Topology) (int, error) {
	l, ok := layouts[t]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownTopology, string(t))
	}
	return len(l.order), nil
}

// Order returns a copy of the rigid placement order of t.
func Order(t Topology) ([]Cell, error) {
	l, ok := layouts[t]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTopology, string(t))
	}
	return append([]Cell(nil), l.order...), nil
}

// Encode builds the shape descriptor of t with the first rigidCount cells of
// its placement order marked rigid. Counts past the order length saturate.
func Encode(t Topology, rigidCount int) (string, error) {
	l, ok := layouts[t]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownTopology, string(t))
	}
	if rigidCount < 0 {
		return "", fmt.Errorf("%w: got %d", ErrNegativeRigidity, rigidCount)
	}

	grid := make([][]byte, len(l.baseline))
	for i, row := range l.baseline {
		grid[i] = []byte(row)
	}
	for i := 0; i < rigidCount && i < len(l.order); i++ {
		c := l.order[i]
		grid[c.Row][c.Col] = Rigid
	}

	rows := make([]string, len(grid))
	for i := range grid {
		rows[i] = string(grid[i])
	}
	return strings.Join(rows, RowSeparator), nil
}

// MustEncode is Encode for statically known topologies.
func MustEncode(t Topology, rigidCount int) string {
	s, err := Encode(t, rigidCount)
	if err != nil {
		panic(err)
	}
	return s
}

// Rows splits a descriptor into its rows.
func Rows(descriptor string) []string {
	if descriptor == "" {
		return nil
	}
	return strings.Split(descriptor, RowSeparator)
}

// CountRigid returns the number of rigid cells in a descriptor.
func CountRigid(descriptor string) int {
	return strings.Count(descriptor, string(Rigid))
}

// CountBody returns the number of non-filler cells in a descriptor.
func CountBody(descriptor string) int {
	return strings.Count(descriptor, string(Rigid)) + strings.Count(descriptor, string(Soft))
}
