package synthetic

import (
	"math"
	"math/rand"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/sensormap/internal/geometry"
)

// Source is an oscillating dipole-like blob seen by every sensor with a
// Gaussian falloff in distance.
type Source struct {
	Center    r3.Vector
	Width     float64 // metres
	Amplitude float64
	Freq      float64 // Hz
	Phase     float64 // radians
}

// SignalGenerator produces sensor-space data for a fixed sensor layout.
type SignalGenerator struct {
	Sensors geometry.SensorSet
	Sources []Source
	SFreq   float64 // Hz
	Noise   float64 // standard deviation of additive noise

	sample int
	rng    *rand.Rand
}

// NewSignalGenerator creates a generator with nSources random sources placed
// near the sensors. seed makes the output reproducible.
func NewSignalGenerator(sensors geometry.SensorSet, nSources int, sfreq float64, seed int64) *SignalGenerator {
	rng := rand.New(rand.NewSource(seed))
	g := &SignalGenerator{
		Sensors: sensors,
		SFreq:   sfreq,
		Noise:   0.2,
		rng:     rng,
	}
	for i := 0; i < nSources && len(sensors) > 0; i++ {
		anchor := sensors[rng.Intn(len(sensors))].Position
		g.Sources = append(g.Sources, Source{
			Center:    anchor,
			Width:     0.02 + 0.02*rng.Float64(),
			Amplitude: 5 + 10*rng.Float64(),
			Freq:      1 + 9*rng.Float64(),
			Phase:     2 * math.Pi * rng.Float64(),
		})
	}
	return g
}

// Next returns the next n samples as a channels x samples matrix.
func (g *SignalGenerator) Next(n int) *mat.Dense {
	out := mat.NewDense(len(g.Sensors), n, nil)
	for j := 0; j < n; j++ {
		t := float64(g.sample) / g.SFreq
		for i, s := range g.Sensors {
			v := 0.0
			for _, src := range g.Sources {
				d := s.Position.Distance(src.Center)
				v += src.Amplitude * math.Exp(-d*d/(2*src.Width*src.Width)) * math.Sin(2*math.Pi*src.Freq*t+src.Phase)
			}
			if g.Noise > 0 {
				v += g.rng.NormFloat64() * g.Noise
			}
			out.Set(i, j, v)
		}
		g.sample++
	}
	return out
}
