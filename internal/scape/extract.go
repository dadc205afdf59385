package scape

import (
	"fmt"
	"math"
	"strings"
)

const (
	XVelocityExtractor = "x-velocity"
	MaxHeightExtractor = "max-height"
)

// XVelocity is the average horizontal velocity over the whole outcome.
func XVelocity(o Outcome) float64 {
	d := o.Duration()
	if d <= 0 {
		return math.NaN()
	}
	first, last := o.Snapshots[0], o.Snapshots[len(o.Snapshots)-1]
	return (last.X - first.X) / d
}

// MaxHeight is the highest the body's lowest point ever got above the ground.
func MaxHeight(o Outcome) float64 {
	if len(o.Snapshots) == 0 {
		return math.NaN()
	}
	best := o.Snapshots[0].Y
	for _, s := range o.Snapshots[1:] {
		if s.Y > best {
			best = s.Y
		}
	}
	return best
}

func ExtractorByName(name string) (Extractor, error) {
	switch strings.TrimSpace(strings.ToLower(name)) {
	case XVelocityExtractor, "velocity":
		return XVelocity, nil
	case MaxHeightExtractor, "height":
		return MaxHeight, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownExtractor, name)
	}
}
