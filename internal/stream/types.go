// Package stream runs the real-time sensor-to-surface pipeline: a worker that
// rebuilds the interpolation operator, a worker that turns queued data frames
// into per-vertex values and colors at a fixed tick, and a controller that
// owns both.
package stream

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/sensormap/internal/colormap"
	"github.com/banshee-data/sensormap/internal/geometry"
	"github.com/banshee-data/sensormap/internal/interp"
)

var (
	// ErrUninitialized is reported when data is applied before the geometry
	// has been configured or before an operator is available.
	ErrUninitialized = errors.New("interpolation not initialized")
	// ErrDimensionMismatch is reported when a frame or operator disagrees with
	// the configured geometry.
	ErrDimensionMismatch = interp.ErrDimensionMismatch
	// ErrClosed is returned by calls made after Close.
	ErrClosed = errors.New("controller closed")
)

// DiagnosticKind classifies asynchronous problems.
type DiagnosticKind int

const (
	DiagUninitialized DiagnosticKind = iota
	DiagDimensionMismatch
	DiagRebuildFailed
	DiagInvalidParameter
)

func (k DiagnosticKind) String() string {
	switch k {
	case DiagUninitialized:
		return "uninitialized"
	case DiagDimensionMismatch:
		return "dimension_mismatch"
	case DiagRebuildFailed:
		return "rebuild_failed"
	case DiagInvalidParameter:
		return "invalid_parameter"
	default:
		return fmt.Sprintf("DiagnosticKind(%d)", int(k))
	}
}

// Diagnostic is a non-fatal problem surfaced on the side channel.
type Diagnostic struct {
	Kind DiagnosticKind
	Err  error
	Time time.Time
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("%s: %v", d.Kind, d.Err)
}

// RawFrame is the vertex-space (or sensor-space in passthrough mode) vector
// produced by one tick.
type RawFrame struct {
	Seq        uint64
	Time       time.Time
	OperatorID uuid.UUID
	Values     []float64
	// NoData lists vertices that no good sensor reaches. Their value is 0 by
	// construction and should not be read as a measurement.
	NoData []int
}

// ColorFrame is the per-vertex color matrix produced by one tick.
type ColorFrame struct {
	Seq    uint64
	Time   time.Time
	Colors []colormap.RGB
	NoData []int
}

// OperatorUpdate is published whenever a rebuild completes.
type OperatorUpdate struct {
	Generation uint64
	Operator   *interp.Operator
	Sensors    geometry.SensorSet
	Elapsed    time.Duration
}

// Sink receives everything the pipeline produces. Calls arrive from worker
// goroutines and must not block for long.
type Sink interface {
	OnRawData(RawFrame)
	OnColorData(ColorFrame)
	OnOperator(OperatorUpdate)
	OnDiagnostic(Diagnostic)
}

// SinkFuncs adapts plain functions to Sink. Nil fields are ignored.
type SinkFuncs struct {
	RawData    func(RawFrame)
	ColorData  func(ColorFrame)
	Operator   func(OperatorUpdate)
	Diagnostic func(Diagnostic)
}

func (s SinkFuncs) OnRawData(f RawFrame) {
	if s.RawData != nil {
		s.RawData(f)
	}
}

func (s SinkFuncs) OnColorData(f ColorFrame) {
	if s.ColorData != nil {
		s.ColorData(f)
	}
}

func (s SinkFuncs) OnOperator(u OperatorUpdate) {
	if s.Operator != nil {
		s.Operator(u)
	}
}

func (s SinkFuncs) OnDiagnostic(d Diagnostic) {
	if s.Diagnostic != nil {
		s.Diagnostic(d)
	}
}

// MultiSink fans every call out to each sink in order.
type MultiSink []Sink

func (m MultiSink) OnRawData(f RawFrame) {
	for _, s := range m {
		s.OnRawData(f)
	}
}

func (m MultiSink) OnColorData(f ColorFrame) {
	for _, s := range m {
		s.OnColorData(f)
	}
}

func (m MultiSink) OnOperator(u OperatorUpdate) {
	for _, s := range m {
		s.OnOperator(u)
	}
}

func (m MultiSink) OnDiagnostic(d Diagnostic) {
	for _, s := range m {
		s.OnDiagnostic(d)
	}
}
