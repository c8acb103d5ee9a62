package interp

import (
	"context"
	"fmt"
	"time"

	"github.com/banshee-data/sensormap/internal/geometry"
	"github.com/banshee-data/sensormap/internal/monitoring"
)

var logf = monitoring.Component("Interp")

// Params is everything needed to build an operator from scratch.
type Params struct {
	Surface        *geometry.Surface
	Sensors        geometry.SensorSet
	Kind           geometry.ChannelKind
	CancelDistance float64
	Kernel         Kernel
	// BadChannels are matched by channel name against the sensors of Kind.
	BadChannels []string
}

// Result bundles the operator with the intermediate products used to build it.
type Result struct {
	Operator   *Operator
	Field      *DistanceField
	Sensors    geometry.SensorSet
	Projection []int
	Elapsed    time.Duration
}

// Build filters sensors by kind, projects them onto the surface, computes the
// distance field and converts it into an operator. Cancelling ctx abandons the
// build.
func Build(ctx context.Context, p Params) (*Result, error) {
	start := time.Now()
	if err := p.Surface.Validate(); err != nil {
		return nil, fmt.Errorf("invalid surface: %w", err)
	}

	sensors := p.Sensors.OfKind(p.Kind)
	projection, err := geometry.ProjectSensors(p.Surface, sensors.Positions())
	if err != nil {
		return nil, fmt.Errorf("failed to project sensors: %w", err)
	}

	field, err := BuildDistanceField(ctx, p.Surface, projection, p.CancelDistance)
	if err != nil {
		return nil, fmt.Errorf("failed to build distance field: %w", err)
	}

	bad, badNames := BadChannelMask(sensors, p.BadChannels)
	op, err := BuildOperator(field, p.Kernel, bad)
	if err != nil {
		return nil, fmt.Errorf("failed to build operator: %w", err)
	}
	op.BadChannels = badNames

	elapsed := time.Since(start)
	logf("operator %s: %d vertices, %d %s sensors (%d bad), %d reached, nnz=%d, kernel=%s, cancel=%.4f, took %v",
		op.ID, field.NumVertices(), len(sensors), p.Kind, len(badNames), field.Assigned(), op.NNZ(), p.Kernel, p.CancelDistance, elapsed)

	return &Result{
		Operator:   op,
		Field:      field,
		Sensors:    sensors,
		Projection: projection,
		Elapsed:    elapsed,
	}, nil
}

// BadChannelMask marks the sensors whose names appear in bads. It returns the
// mask and the names that matched, in sensor order. Names that match nothing
// are logged and ignored.
func BadChannelMask(sensors geometry.SensorSet, bads []string) ([]bool, []string) {
	mask := make([]bool, len(sensors))
	for _, name := range bads {
		i := sensors.IndexOf(name)
		if i < 0 {
			logf("bad channel %q is not among the targeted sensors, ignoring", name)
			continue
		}
		mask[i] = true
	}
	var matched []string
	for i, bad := range mask {
		if bad {
			matched = append(matched, sensors[i].Name)
		}
	}
	return mask, matched
}
