package stream

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/banshee-data/sensormap/internal/colormap"
	"github.com/banshee-data/sensormap/internal/geometry"
	"github.com/banshee-data/sensormap/internal/interp"
)

func fixedNow() time.Time { return time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC) }

func newTestPlayback(sink Sink, mutate func(*Options)) *playbackState {
	opts := DefaultOptions()
	mutate(&opts)
	return newPlaybackState(sink, fixedNow, opts)
}

func scalarFrames(vs ...float64) [][]float64 {
	out := make([][]float64, len(vs))
	for i, v := range vs {
		out[i] = []float64{v}
	}
	return out
}

func TestPlaybackLoopWrapsToFirstFrame(t *testing.T) {
	sink := newRecordingSink()
	s := newTestPlayback(sink, func(o *Options) { o.Passthrough = true })
	s.addFrames(scalarFrames(1, 2, 3))

	for i := 0; i < 5; i++ {
		if !s.tick() {
			t.Fatalf("tick %d emitted nothing", i)
		}
	}
	want := [][]float64{{1}, {2}, {3}, {1}, {2}}
	if diff := cmp.Diff(want, sink.rawValues()); diff != "" {
		t.Errorf("raw frames mismatch (-want +got):\n%s", diff)
	}
}

func TestPlaybackWithoutLoopStopsUntilMoreData(t *testing.T) {
	sink := newRecordingSink()
	s := newTestPlayback(sink, func(o *Options) {
		o.Passthrough = true
		o.Loop = false
	})
	s.addFrames(scalarFrames(1, 2, 3))

	for i := 0; i < 3; i++ {
		if !s.tick() {
			t.Fatalf("tick %d emitted nothing", i)
		}
	}
	if s.tick() {
		t.Fatal("tick after the last frame should be idle")
	}
	if !s.snapshot().Idle {
		t.Error("expected idle status")
	}
	if got := s.snapshot().QueuedFrames; got != 0 {
		t.Errorf("consumed frames should be released, %d still queued", got)
	}

	s.addFrames(scalarFrames(4))
	if !s.tick() {
		t.Fatal("expected emission after new data")
	}
	want := [][]float64{{1}, {2}, {3}, {4}}
	if diff := cmp.Diff(want, sink.rawValues()); diff != "" {
		t.Errorf("raw frames mismatch (-want +got):\n%s", diff)
	}
}

func TestPlaybackAveraging(t *testing.T) {
	tests := []struct {
		name  string
		loop  bool
		ticks int
		want  [][]float64
	}{
		{name: "loop wraps window", loop: true, ticks: 3, want: [][]float64{{2}, {3}, {4}}},
		{name: "no loop partial tail", loop: false, ticks: 3, want: [][]float64{{2}, {5}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sink := newRecordingSink()
			s := newTestPlayback(sink, func(o *Options) {
				o.Passthrough = true
				o.Loop = tt.loop
				o.Averages = 2
			})
			s.addFrames(scalarFrames(1, 3, 5))
			for i := 0; i < tt.ticks; i++ {
				s.tick()
			}
			if diff := cmp.Diff(tt.want, sink.rawValues()); diff != "" {
				t.Errorf("averaged frames mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestPlaybackAveragesElementWise(t *testing.T) {
	sink := newRecordingSink()
	s := newTestPlayback(sink, func(o *Options) {
		o.Passthrough = true
		o.Averages = 3
	})
	s.addFrames([][]float64{{1, 10}, {2, 20}, {6, 60}})
	s.tick()
	if diff := cmp.Diff([][]float64{{3, 30}}, sink.rawValues()); diff != "" {
		t.Errorf("mean mismatch (-want +got):\n%s", diff)
	}
}

func TestPlaybackAppliesOperatorAndColormap(t *testing.T) {
	sink := newRecordingSink()
	s := newTestPlayback(sink, func(*Options) {})
	op := lineOperator(t)
	s.setNumberVertices(4)
	s.setOperator(op)
	s.addFrames([][]float64{{2, -15}})

	if !s.tick() {
		t.Fatal("expected emission")
	}
	raw := sink.raw[0]
	if diff := cmp.Diff([]float64{2, 2, -15, -15}, raw.Values); diff != "" {
		t.Errorf("interpolated values mismatch (-want +got):\n%s", diff)
	}
	if raw.OperatorID != op.ID {
		t.Errorf("OperatorID = %v, want %v", raw.OperatorID, op.ID)
	}
	if len(raw.NoData) != 0 {
		t.Errorf("NoData = %v, want none", raw.NoData)
	}

	colors := sink.colorFrames()
	if len(colors) != 1 {
		t.Fatalf("got %d color frames, want 1", len(colors))
	}
	th := colormap.DefaultThresholds()
	for i, v := range raw.Values {
		want := colormap.Hot.Color(th.Normalize(v))
		if colors[0].Colors[i] != want {
			t.Errorf("vertex %d color = %v, want %v", i, colors[0].Colors[i], want)
		}
	}
	if colors[0].Colors[3] != colormap.Hot.Color(1) {
		t.Errorf("|-15| should saturate at the high threshold")
	}
}

func TestPlaybackParameterChangesApplyOnNextTick(t *testing.T) {
	sink := newRecordingSink()
	s := newTestPlayback(sink, func(o *Options) { o.Passthrough = true })
	s.addFrames(scalarFrames(5.5))

	s.tick()
	s.cmap = colormap.Grey
	s.thresholds = colormap.Thresholds{Low: 0, Mid: 1, High: 2}
	s.tick()

	colors := sink.colorFrames()
	if got, want := colors[0].Colors[0], colormap.Hot.Color(0.5); got != want {
		t.Errorf("first tick color = %v, want %v", got, want)
	}
	if got, want := colors[1].Colors[0], colormap.Grey.Color(1); got != want {
		t.Errorf("second tick color = %v, want %v", got, want)
	}
}

func TestPlaybackSmoothedStreamingOff(t *testing.T) {
	sink := newRecordingSink()
	s := newTestPlayback(sink, func(o *Options) {
		o.Passthrough = true
		o.StreamSmoothed = false
	})
	s.addFrames(scalarFrames(1))
	s.tick()
	if len(sink.rawValues()) != 1 {
		t.Fatal("raw data should always be emitted")
	}
	if len(sink.colorFrames()) != 0 {
		t.Error("no color frames expected with smoothed streaming off")
	}
}

func TestPlaybackUninitializedReportsOnce(t *testing.T) {
	sink := newRecordingSink()
	s := newTestPlayback(sink, func(*Options) {})
	s.addFrames(scalarFrames(1, 2))

	for i := 0; i < 3; i++ {
		if s.tick() {
			t.Fatal("nothing should be emitted without an operator")
		}
	}
	if diff := cmp.Diff([]DiagnosticKind{DiagUninitialized}, sink.diagKinds()); diff != "" {
		t.Errorf("diagnostics mismatch (-want +got):\n%s", diff)
	}
	if !errors.Is(sink.diags[0].Err, ErrUninitialized) {
		t.Errorf("diagnostic error = %v, want ErrUninitialized", sink.diags[0].Err)
	}
	if s.cursor != 0 {
		t.Errorf("cursor moved to %d without an operator", s.cursor)
	}
}

func TestPlaybackDropsMismatchedFrame(t *testing.T) {
	sink := newRecordingSink()
	s := newTestPlayback(sink, func(*Options) {})
	s.setNumberVertices(4)
	s.setOperator(lineOperator(t))
	s.addFrames([][]float64{{1, 2, 3}, {1, 2}})

	if s.tick() {
		t.Fatal("mismatched frame should not be emitted")
	}
	if !errors.Is(sink.diags[0].Err, ErrDimensionMismatch) {
		t.Errorf("diagnostic error = %v, want ErrDimensionMismatch", sink.diags[0].Err)
	}
	if !s.tick() {
		t.Fatal("cursor should have advanced past the bad frame")
	}
	if diff := cmp.Diff([][]float64{{1, 1, 2, 2}}, sink.rawValues()); diff != "" {
		t.Errorf("raw frames mismatch (-want +got):\n%s", diff)
	}
	if got := s.snapshot().Dropped; got != 1 {
		t.Errorf("Dropped = %d, want 1", got)
	}
}

func TestPlaybackRejectsOperatorWithWrongRowCount(t *testing.T) {
	sink := newRecordingSink()
	s := newTestPlayback(sink, func(*Options) {})
	s.setNumberVertices(5)
	s.setOperator(lineOperator(t))

	if s.operator != nil {
		t.Fatal("operator with 4 rows accepted for 5 vertices")
	}
	if diff := cmp.Diff([]DiagnosticKind{DiagDimensionMismatch}, sink.diagKinds()); diff != "" {
		t.Errorf("diagnostics mismatch (-want +got):\n%s", diff)
	}
}

func TestPlaybackVertexCountChangeDropsOperator(t *testing.T) {
	s := newTestPlayback(newRecordingSink(), func(*Options) {})
	s.setNumberVertices(4)
	s.setOperator(lineOperator(t))
	s.setNumberVertices(6)
	if s.operator != nil {
		t.Error("stale operator kept after the surface changed")
	}
}

func TestPlaybackBaseColorForUnreachedVertices(t *testing.T) {
	res, err := interp.Build(context.Background(), interp.Params{
		Surface:        lineSurface(),
		Sensors:        lineSensors(),
		Kind:           geometry.KindEEG,
		CancelDistance: 0.5,
	})
	if err != nil {
		t.Fatal(err)
	}

	sink := newRecordingSink()
	s := newTestPlayback(sink, func(*Options) {})
	s.setNumberVertices(4)
	s.setOperator(res.Operator)
	base := []colormap.RGB{{0.1, 0.1, 0.1}, {0.2, 0.2, 0.2}, {0.3, 0.3, 0.3}, {0.4, 0.4, 0.4}}
	s.setBaseColors(base)
	s.addFrames([][]float64{{15, 15}})
	s.tick()

	raw := sink.raw[0]
	if diff := cmp.Diff([]int{1, 2}, raw.NoData); diff != "" {
		t.Errorf("NoData mismatch (-want +got):\n%s", diff)
	}
	colors := sink.colorFrames()[0].Colors
	want := []colormap.RGB{colormap.Hot.Color(1), base[1], base[2], colormap.Hot.Color(1)}
	if diff := cmp.Diff(want, colors); diff != "" {
		t.Errorf("colors mismatch (-want +got):\n%s", diff)
	}
}

func TestPlaybackBaseColorLengthChecked(t *testing.T) {
	sink := newRecordingSink()
	s := newTestPlayback(sink, func(*Options) {})
	s.setNumberVertices(4)
	s.setBaseColors(make([]colormap.RGB, 3))
	if s.baseColors != nil {
		t.Error("base colors of the wrong length accepted")
	}
	if diff := cmp.Diff([]DiagnosticKind{DiagDimensionMismatch}, sink.diagKinds()); diff != "" {
		t.Errorf("diagnostics mismatch (-want +got):\n%s", diff)
	}
}
