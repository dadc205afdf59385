package scape

import (
	"fmt"

	"vsrscape/internal/morphology"
)

const DefaultDT = 1.0 / 60.0

// SurrogateConfig tunes the surrogate engine. Zero fields take the defaults of
// DefaultSurrogateConfig.
type SurrogateConfig struct {
	DT             float64
	Gravity        float64
	SoftMass       float64
	RigidMass      float64
	Contraction    float64
	AreaRate       float64
	Thrust         float64
	Lift           float64
	GroundFriction float64
	AirDrag        float64
}

func DefaultSurrogateConfig() SurrogateConfig {
	return SurrogateConfig{
		DT:             DefaultDT,
		Gravity:        9.81,
		SoftMass:       1,
		RigidMass:      2,
		Contraction:    0.3,
		AreaRate:       12,
		Thrust:         3,
		Lift:           4,
		GroundFriction: 2,
		AirDrag:        0.1,
	}
}

func (c SurrogateConfig) withDefaults() SurrogateConfig {
	d := DefaultSurrogateConfig()
	if c.DT <= 0 {
		c.DT = d.DT
	}
	if c.Gravity <= 0 {
		c.Gravity = d.Gravity
	}
	if c.SoftMass <= 0 {
		c.SoftMass = d.SoftMass
	}
	if c.RigidMass <= 0 {
		c.RigidMass = d.RigidMass
	}
	if c.Contraction <= 0 {
		c.Contraction = d.Contraction
	}
	if c.AreaRate <= 0 {
		c.AreaRate = d.AreaRate
	}
	if c.Thrust <= 0 {
		c.Thrust = d.Thrust
	}
	if c.Lift <= 0 {
		c.Lift = d.Lift
	}
	if c.GroundFriction <= 0 {
		c.GroundFriction = d.GroundFriction
	}
	if c.AirDrag < 0 {
		c.AirDrag = d.AirDrag
	}
	return c
}

// Surrogate is a deterministic point-mass approximation of a voxel body on
// flat ground. Soft voxels change area towards the commanded contraction,
// rigid voxels keep their rest area and weigh more. A phase lag between
// neighboring feet pushes the body along x; synchronous expansion lifts it.
type Surrogate struct {
	cfg SurrogateConfig

	body  morphology.Body
	feet  []int
	foot  []bool
	mass  float64
	soft  int
	areas []float64
	rates []float64

	x, y   float64
	vx, vy float64
	steps  int
}

func NewSurrogate(cfg SurrogateConfig) *Surrogate {
	return &Surrogate{cfg: cfg.withDefaults()}
}

// SurrogateFactory returns a factory building a fresh engine per call.
func SurrogateFactory(cfg SurrogateConfig) EngineFactory {
	cfg = cfg.withDefaults()
	return func() Engine {
		return NewSurrogate(cfg)
	}
}

func (s *Surrogate) Reset(body morphology.Body) (Snapshot, error) {
	if len(body.Voxels) == 0 {
		return Snapshot{}, fmt.Errorf("body has no voxels")
	}
	s.body = body
	s.feet = body.Feet()
	s.foot = make([]bool, len(body.Voxels))
	for _, idx := range s.feet {
		s.foot[idx] = true
	}
	s.mass = 0
	s.soft = 0
	for _, v := range body.Voxels {
		if v.Type == morphology.Rigid {
			s.mass += s.cfg.RigidMass
			continue
		}
		s.mass += s.cfg.SoftMass
		s.soft++
	}
	s.areas = make([]float64, len(body.Voxels))
	for i := range s.areas {
		s.areas[i] = 1
	}
	s.rates = make([]float64, len(body.Voxels))
	s.x = float64(body.Cols) / 2
	s.y = 0
	s.vx, s.vy = 0, 0
	s.steps = 0
	return s.Snapshot(), nil
}

func (s *Surrogate) Time() float64 {
	return float64(s.steps) * s.cfg.DT
}

func (s *Surrogate) Snapshot() Snapshot {
	return Snapshot{T: s.Time(), X: s.x, Y: s.y}
}

func (s *Surrogate) onGround() bool {
	return s.y <= 1e-9
}

func (s *Surrogate) Observe() []float64 {
	out := make([]float64, 0, s.body.NumInputs())
	ground := s.onGround()
	for i, v := range s.body.Voxels {
		for _, sensor := range v.Sensors {
			switch sensor.Kind {
			case morphology.AreaRatio:
				out = append(out, s.areas[i])
			case morphology.VelocityX:
				out = append(out, s.vx)
			case morphology.VelocityY:
				out = append(out, s.vy)
			case morphology.Contact:
				if ground && s.foot[i] {
					out = append(out, 1)
				} else {
					out = append(out, 0)
				}
			default:
				out = append(out, 0)
			}
		}
	}
	return out
}

// Step applies one actuation value in [-1, 1] per voxel and advances the
// state by DT. Out-of-range values are clipped.
func (s *Surrogate) Step(actuation []float64) (Snapshot, error) {
	if s.areas == nil {
		return Snapshot{}, fmt.Errorf("engine not reset")
	}
	if len(actuation) != len(s.body.Voxels) {
		return Snapshot{}, fmt.Errorf("actuation has %d values, body has %d voxels", len(actuation), len(s.body.Voxels))
	}
	dt := s.cfg.DT
	follow := s.cfg.AreaRate * dt
	if follow > 1 {
		follow = 1
	}
	lift := 0.0
	for i, v := range s.body.Voxels {
		target := 1.0
		if v.Type != morphology.Rigid {
			target = 1 - s.cfg.Contraction*clamp(actuation[i], -1, 1)
		}
		next := s.areas[i] + (target-s.areas[i])*follow
		s.rates[i] = (next - s.areas[i]) / dt
		s.areas[i] = next
		if s.rates[i] > 0 {
			lift += s.rates[i]
		}
	}

	ax, ay := 0.0, -s.cfg.Gravity
	if s.onGround() {
		ax = s.cfg.Thrust*s.wave()*s.softShare() - s.cfg.GroundFriction*s.vx
		ay += s.cfg.Lift * lift / s.mass
	} else {
		ax = -s.cfg.AirDrag * s.vx
	}
	s.vx += ax * dt
	s.vy += ay * dt
	s.x += s.vx * dt
	s.y += s.vy * dt
	if s.y < 0 {
		s.y = 0
		if s.vy < 0 {
			s.vy = 0
		}
	}
	s.steps++

	if !finite(s.x, s.y, s.vx, s.vy) {
		return Snapshot{}, fmt.Errorf("%w at t=%.4f", ErrUnstable, s.Time())
	}
	return s.Snapshot(), nil
}

// wave is the mean over consecutive feet of d_i*r_j - d_j*r_i, with d the
// area deviation from rest and r its rate. Its time average is non-zero only
// when neighboring feet oscillate out of phase.
func (s *Surrogate) wave() float64 {
	if len(s.feet) < 2 {
		return 0
	}
	sum := 0.0
	for k := 0; k+1 < len(s.feet); k++ {
		i, j := s.feet[k], s.feet[k+1]
		sum += (s.areas[i]-1)*s.rates[j] - (s.areas[j]-1)*s.rates[i]
	}
	return sum / float64(len(s.feet)-1)
}

func (s *Surrogate) softShare() float64 {
	return float64(s.soft) * s.cfg.SoftMass / s.mass
}
