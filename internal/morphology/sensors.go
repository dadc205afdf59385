package morphology

import (
	"errors"
	"fmt"
	"strings"
)

var ErrUnknownSensorizing = errors.New("unknown sensorizing function")

type Side uint8

const (
	North Side = iota
	East
	South
	West
)

func Sides() []Side {
	return []Side{North, East, South, West}
}

func (s Side) String() string {
	return [...]string{"N", "E", "S", "W"}[s]
}

func (s Side) dRow() int {
	switch s {
	case North:
		return -1
	case South:
		return 1
	default:
		return 0
	}
}

func (s Side) dCol() int {
	switch s {
	case East:
		return 1
	case West:
		return -1
	default:
		return 0
	}
}

type SensorKind string

const (
	// AreaRatio senses the current area of the voxel relative to its rest area.
	AreaRatio SensorKind = "ar"
	// VelocityX and VelocityY sense the voxel velocity along the two axes.
	VelocityX SensorKind = "rv0"
	VelocityY SensorKind = "rv90"
	// Contact senses whether the side touches the ground.
	Contact SensorKind = "c"
)

type Sensor struct {
	Side Side
	Kind SensorKind
}

// Sensorizing assigns sensor kinds to exposed voxel sides. A side is exposed
// when no body cell is adjacent to it.
type Sensorizing struct {
	Name  string
	sides map[Side][]SensorKind
}

func (s Sensorizing) sensorsFor(side Side) []SensorKind {
	return s.sides[side]
}

var (
	NoSensors = Sensorizing{Name: "none"}

	StandardSensors = Sensorizing{
		Name: "standard",
		sides: map[Side][]SensorKind{
			North: {AreaRatio, VelocityX, VelocityY},
			East:  {AreaRatio, VelocityX, VelocityY},
			South: {AreaRatio, VelocityX, VelocityY, Contact},
			West:  {AreaRatio, VelocityX, VelocityY},
		},
	}
)

func SensorizingByName(name string) (Sensorizing, error) {
	switch strings.TrimSpace(strings.ToLower(name)) {
	case "", StandardSensors.Name:
		return StandardSensors, nil
	case NoSensors.Name, "empty":
		return NoSensors, nil
	default:
		return Sensorizing{}, fmt.Errorf("%w: %q", ErrUnknownSensorizing, name)
	}
}
