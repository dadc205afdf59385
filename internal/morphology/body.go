package morphology

import (
	"errors"
	"fmt"
	"strings"

	"vsrscape/internal/shape"
)

var ErrInvalidDescriptor = errors.New("invalid shape descriptor")

type VoxelType uint8

const (
	None VoxelType = iota
	Soft
	Rigid
)

func (t VoxelType) String() string {
	switch t {
	case Soft:
		return "soft"
	case Rigid:
		return "rigid"
	default:
		return "none"
	}
}

// Voxel is one body cell together with the sensors attached to it.
type Voxel struct {
	Row     int
	Col     int
	Type    VoxelType
	Sensors []Sensor
}

// Body is a rectangular voxel grid built from a shape descriptor. Voxels are
// stored in row-major order and exclude filler cells.
type Body struct {
	Descriptor string
	Rows       int
	Cols       int
	Voxels     []Voxel

	index map[[2]int]int
}

// Parse builds a body from descriptor and attaches sensors per sensorizing.
func Parse(descriptor string, sensorizing Sensorizing) (Body, error) {
	rows := shape.Rows(descriptor)
	if len(rows) == 0 {
		return Body{}, fmt.Errorf("%w: empty descriptor", ErrInvalidDescriptor)
	}
	cols := len(rows[0])
	body := Body{
		Descriptor: descriptor,
		Rows:       len(rows),
		Cols:       cols,
		index:      make(map[[2]int]int),
	}
	for r, row := range rows {
		if len(row) != cols {
			return Body{}, fmt.Errorf("%w: row %d has length %d, expected %d", ErrInvalidDescriptor, r, len(row), cols)
		}
		for c := 0; c < len(row); c++ {
			var vt VoxelType
			switch row[c] {
			case shape.Soft:
				vt = Soft
			case shape.Rigid:
				vt = Rigid
			case shape.Filler:
				continue
			default:
				return Body{}, fmt.Errorf("%w: unexpected symbol %q at (%d,%d)", ErrInvalidDescriptor, row[c], r, c)
			}
			body.index[[2]int{r, c}] = len(body.Voxels)
			body.Voxels = append(body.Voxels, Voxel{Row: r, Col: c, Type: vt})
		}
	}
	if len(body.Voxels) == 0 {
		return Body{}, fmt.Errorf("%w: no body cells in %q", ErrInvalidDescriptor, descriptor)
	}

	for i := range body.Voxels {
		v := &body.Voxels[i]
		for _, side := range Sides() {
			if body.Has(v.Row+side.dRow(), v.Col+side.dCol()) {
				continue
			}
			for _, kind := range sensorizing.sensorsFor(side) {
				v.Sensors = append(v.Sensors, Sensor{Side: side, Kind: kind})
			}
		}
	}
	return body, nil
}

// Has reports whether (row, col) is a body cell.
func (b Body) Has(row, col int) bool {
	_, ok := b.index[[2]int{row, col}]
	return ok
}

func (b Body) At(row, col int) VoxelType {
	i, ok := b.index[[2]int{row, col}]
	if !ok {
		return None
	}
	return b.Voxels[i].Type
}

// NumInputs is the size of the observation vector of a centralized controller.
func (b Body) NumInputs() int {
	n := 0
	for _, v := range b.Voxels {
		n += len(v.Sensors)
	}
	return n
}

// NumOutputs is one actuation value per voxel.
func (b Body) NumOutputs() int {
	return len(b.Voxels)
}

func (b Body) Count(t VoxelType) int {
	n := 0
	for _, v := range b.Voxels {
		if v.Type == t {
			n++
		}
	}
	return n
}

// Feet returns the indices of the voxels in the lowest grid row, ordered by
// column. These are the cells that touch flat ground.
func (b Body) Feet() []int {
	var out []int
	for i, v := range b.Voxels {
		if v.Row == b.Rows-1 {
			out = append(out, i)
		}
	}
	return out
}

func (b Body) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%dx%d[%s] soft=%d rigid=%d inputs=%d",
		b.Rows, b.Cols, b.Descriptor, b.Count(Soft), b.Count(Rigid), b.NumInputs())
	return sb.String()
}
