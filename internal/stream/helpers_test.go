package stream

import (
	"context"
	"os"
	"sync"
	"testing"

	"github.com/golang/geo/r3"

	"github.com/banshee-data/sensormap/internal/geometry"
	"github.com/banshee-data/sensormap/internal/interp"
	"github.com/banshee-data/sensormap/internal/testutil"
)

func TestMain(m *testing.M) {
	testutil.MuteLogs()
	os.Exit(m.Run())
}

// lineSurface returns four collinear vertices 1 m apart joined by two
// triangles.
func lineSurface() *geometry.Surface {
	return &geometry.Surface{
		Vertices: []r3.Vector{{X: 0}, {X: 1}, {X: 2}, {X: 3}},
		Faces:    []geometry.Face{{0, 1, 2}, {1, 2, 3}},
	}
}

// lineSensors places one EEG sensor on each end of lineSurface and an MEG
// sensor in the middle.
func lineSensors() geometry.SensorSet {
	return geometry.SensorSet{
		{Name: "EEG 001", Kind: geometry.KindEEG, Position: r3.Vector{X: 0}},
		{Name: "MEG 0111", Kind: geometry.KindMEG, Position: r3.Vector{X: 1.5}},
		{Name: "EEG 002", Kind: geometry.KindEEG, Position: r3.Vector{X: 3}},
	}
}

// lineOperator maps [a, b] to [a, a, b, b].
func lineOperator(t *testing.T) *interp.Operator {
	t.Helper()
	res, err := interp.Build(context.Background(), interp.Params{
		Surface:        lineSurface(),
		Sensors:        lineSensors(),
		Kind:           geometry.KindEEG,
		CancelDistance: 1.5,
		Kernel:         interp.KernelLinear,
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return res.Operator
}

// recordingSink keeps everything it receives and signals each call on the
// matching channel without blocking.
type recordingSink struct {
	mu        sync.Mutex
	raw       []RawFrame
	colors    []ColorFrame
	operators []OperatorUpdate
	diags     []Diagnostic

	rawCh  chan RawFrame
	opCh   chan OperatorUpdate
	diagCh chan Diagnostic
}

func newRecordingSink() *recordingSink {
	return &recordingSink{
		rawCh:  make(chan RawFrame, 256),
		opCh:   make(chan OperatorUpdate, 64),
		diagCh: make(chan Diagnostic, 64),
	}
}

func (s *recordingSink) OnRawData(f RawFrame) {
	s.mu.Lock()
	s.raw = append(s.raw, f)
	s.mu.Unlock()
	select {
	case s.rawCh <- f:
	default:
	}
}

func (s *recordingSink) OnColorData(f ColorFrame) {
	s.mu.Lock()
	s.colors = append(s.colors, f)
	s.mu.Unlock()
}

func (s *recordingSink) OnOperator(u OperatorUpdate) {
	s.mu.Lock()
	s.operators = append(s.operators, u)
	s.mu.Unlock()
	select {
	case s.opCh <- u:
	default:
	}
}

func (s *recordingSink) OnDiagnostic(d Diagnostic) {
	s.mu.Lock()
	s.diags = append(s.diags, d)
	s.mu.Unlock()
	select {
	case s.diagCh <- d:
	default:
	}
}

func (s *recordingSink) rawValues() [][]float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]float64, len(s.raw))
	for i, f := range s.raw {
		out[i] = f.Values
	}
	return out
}

func (s *recordingSink) diagKinds() []DiagnosticKind {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]DiagnosticKind, len(s.diags))
	for i, d := range s.diags {
		out[i] = d.Kind
	}
	return out
}

func (s *recordingSink) colorFrames() []ColorFrame {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ColorFrame(nil), s.colors...)
}
