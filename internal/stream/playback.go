package stream

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/floats"

	"github.com/banshee-data/sensormap/internal/colormap"
	"github.com/banshee-data/sensormap/internal/interp"
)

// playbackState is the data worker's private state. Only the worker goroutine
// touches it; everything else reaches it through mailbox messages.
type playbackState struct {
	sink Sink
	now  func() time.Time

	frames   [][]float64
	cursor   int
	loop     bool
	averages int
	sFreq    float64

	numVertices int
	passthrough bool
	operator    *interp.Operator
	noData      []int

	thresholds     colormap.Thresholds
	cmap           colormap.Map
	streamSmoothed bool
	baseColors     []colormap.RGB

	seq          uint64
	dropped      uint64
	idle         bool
	warnedUninit bool
}

func newPlaybackState(sink Sink, now func() time.Time, opts Options) *playbackState {
	return &playbackState{
		sink:           sink,
		now:            now,
		loop:           opts.Loop,
		averages:       max(opts.Averages, 1),
		sFreq:          opts.SFreq,
		passthrough:    opts.Passthrough,
		thresholds:     opts.Thresholds,
		cmap:           opts.Colormap,
		streamSmoothed: opts.StreamSmoothed,
	}
}

func (s *playbackState) report(kind DiagnosticKind, err error) {
	logf("%s: %v", kind, err)
	s.sink.OnDiagnostic(Diagnostic{Kind: kind, Err: err, Time: s.now()})
}

func (s *playbackState) addFrames(frames [][]float64) {
	s.frames = append(s.frames, frames...)
}

func (s *playbackState) setNumberVertices(n int) {
	s.numVertices = n
	if s.operator != nil {
		if r, _ := s.operator.Dims(); r != n {
			logf("operator %s has %d rows, surface now has %d vertices; waiting for rebuild", s.operator.ID, r, n)
			s.operator, s.noData = nil, nil
		}
	}
	if len(s.baseColors) > 0 && len(s.baseColors) != n {
		s.baseColors = nil
	}
}

func (s *playbackState) setOperator(op *interp.Operator) {
	if op == nil {
		s.operator, s.noData = nil, nil
		return
	}
	rows, _ := op.Dims()
	if s.numVertices > 0 && rows != s.numVertices {
		s.report(DiagDimensionMismatch, fmt.Errorf("%w: operator %s has %d rows, surface has %d vertices", ErrDimensionMismatch, op.ID, rows, s.numVertices))
		return
	}
	// Emitted frames share noData, so it is rebuilt rather than reused.
	var noData []int
	for i := 0; i < rows; i++ {
		if op.EmptyRow(i) {
			noData = append(noData, i)
		}
	}
	s.operator, s.noData = op, noData
	s.warnedUninit = false
}

func (s *playbackState) setBaseColors(colors []colormap.RGB) {
	if len(colors) > 0 && s.numVertices > 0 && len(colors) != s.numVertices {
		s.report(DiagDimensionMismatch, fmt.Errorf("%w: %d surface colors for %d vertices", ErrDimensionMismatch, len(colors), s.numVertices))
		return
	}
	s.baseColors = colors
}

// nextWindow returns up to averages consecutive frames starting at the cursor
// and advances past them. It returns nil when there is nothing to play.
func (s *playbackState) nextWindow() [][]float64 {
	n := len(s.frames)
	if n == 0 {
		return nil
	}
	if s.cursor >= n {
		if !s.loop {
			return nil
		}
		s.cursor = 0
	}

	k := min(s.averages, n)
	window := make([][]float64, 0, k)
	for len(window) < k {
		if s.cursor >= n {
			if !s.loop {
				break
			}
			s.cursor = 0
		}
		window = append(window, s.frames[s.cursor])
		s.cursor++
	}

	if !s.loop {
		// Nothing will replay consumed frames, so release them.
		s.frames = s.frames[s.cursor:]
		s.cursor = 0
	}
	return window
}

// average returns the element-wise mean of the frames in window that have the
// expected channel count. Frames that do not match are dropped and reported.
func (s *playbackState) average(window [][]float64, expected int) ([]float64, bool) {
	var sum []float64
	count := 0
	for _, f := range window {
		if expected < 0 {
			expected = len(f)
		}
		if len(f) != expected {
			s.dropped++
			s.report(DiagDimensionMismatch, fmt.Errorf("%w: frame has %d channels, expected %d", ErrDimensionMismatch, len(f), expected))
			continue
		}
		if sum == nil {
			sum = append([]float64(nil), f...)
		} else {
			floats.Add(sum, f)
		}
		count++
	}
	if count == 0 {
		return nil, false
	}
	if count > 1 {
		floats.Scale(1/float64(count), sum)
	}
	return sum, true
}

// tick runs one step of the pipeline. It reports whether anything was emitted.
func (s *playbackState) tick() bool {
	if !s.passthrough && s.operator == nil {
		if !s.warnedUninit {
			s.warnedUninit = true
			s.report(DiagUninitialized, fmt.Errorf("%w: no interpolation operator yet", ErrUninitialized))
		}
		return false
	}

	window := s.nextWindow()
	if window == nil {
		s.idle = true
		return false
	}
	s.idle = false

	expected := -1
	if !s.passthrough {
		_, expected = s.operator.Dims()
	}
	frame, ok := s.average(window, expected)
	if !ok {
		return false
	}

	values := frame
	var opID uuid.UUID
	var noData []int
	if !s.passthrough {
		rows, _ := s.operator.Dims()
		values = make([]float64, rows)
		if err := s.operator.MulVecTo(values, frame); err != nil {
			s.dropped++
			s.report(DiagDimensionMismatch, err)
			return false
		}
		opID, noData = s.operator.ID, s.noData
	}

	s.seq++
	now := s.now()
	s.sink.OnRawData(RawFrame{Seq: s.seq, Time: now, OperatorID: opID, Values: values, NoData: noData})

	if s.streamSmoothed {
		colors := make([]colormap.RGB, len(values))
		for i, v := range values {
			colors[i] = s.cmap.Color(s.thresholds.Normalize(v))
		}
		if len(s.baseColors) == len(colors) {
			for _, v := range noData {
				colors[v] = s.baseColors[v]
			}
		}
		s.sink.OnColorData(ColorFrame{Seq: s.seq, Time: now, Colors: colors, NoData: noData})
	}
	return true
}

func (s *playbackState) snapshot() PlaybackStatus {
	st := PlaybackStatus{
		QueuedFrames:   len(s.frames),
		Cursor:         s.cursor,
		Loop:           s.loop,
		Averages:       s.averages,
		SFreq:          s.sFreq,
		NumVertices:    s.numVertices,
		Passthrough:    s.passthrough,
		StreamSmoothed: s.streamSmoothed,
		Colormap:       s.cmap.String(),
		Thresholds:     s.thresholds,
		Emitted:        s.seq,
		Dropped:        s.dropped,
		Idle:           s.idle,
	}
	if s.operator != nil {
		st.OperatorID = s.operator.ID.String()
	}
	return st
}

// PlaybackStatus is a read-only snapshot of the data worker.
type PlaybackStatus struct {
	QueuedFrames   int                 `json:"queued_frames"`
	Cursor         int                 `json:"cursor"`
	Loop           bool                `json:"loop"`
	Averages       int                 `json:"averages"`
	SFreq          float64             `json:"sfreq"`
	NumVertices    int                 `json:"num_vertices"`
	Passthrough    bool                `json:"passthrough"`
	StreamSmoothed bool                `json:"stream_smoothed"`
	Colormap       string              `json:"colormap"`
	Thresholds     colormap.Thresholds `json:"thresholds"`
	OperatorID     string              `json:"operator_id,omitempty"`
	Emitted        uint64              `json:"emitted"`
	Dropped        uint64              `json:"dropped"`
	Idle           bool                `json:"idle"`
}
