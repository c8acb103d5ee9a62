// Package monitor serves the HTTP debug surface for the streaming pipeline:
// status JSON, echarts pages of the latest frame and active colormap, a PNG
// snapshot and a websocket feed of raw frames.
package monitor

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/banshee-data/sensormap/internal/colormap"
	"github.com/banshee-data/sensormap/internal/monitoring"
	"github.com/banshee-data/sensormap/internal/stream"
)

var logf = monitoring.Component("Monitor")

// maxDiagnostics bounds the diagnostic history kept for /api/diagnostics.
const maxDiagnostics = 64

// Pipeline is the read side of the streaming controller.
type Pipeline interface {
	Status() stream.Status
}

// DiagnosticEntry is a diagnostic as served over HTTP.
type DiagnosticEntry struct {
	Kind  string    `json:"kind"`
	Error string    `json:"error"`
	Time  time.Time `json:"time"`
}

// OperatorSummary describes the live operator.
type OperatorSummary struct {
	ID             string   `json:"id"`
	Generation     uint64   `json:"generation"`
	Vertices       int      `json:"vertices"`
	Sensors        []string `json:"sensors"`
	Kernel         string   `json:"kernel"`
	CancelDistance float64  `json:"cancel_distance"`
	BadChannels    []string `json:"bad_channels,omitempty"`
	NNZ            int      `json:"nnz"`
}

// Monitor records the most recent pipeline output. It implements stream.Sink
// and is safe for concurrent use.
type Monitor struct {
	mu          sync.RWMutex
	lastRaw     *stream.RawFrame
	lastColors  *stream.ColorFrame
	operator    *OperatorSummary
	diagnostics []DiagnosticEntry

	rawFrames   atomic.Uint64
	colorFrames atomic.Uint64

	hub *hub
}

var _ stream.Sink = (*Monitor)(nil)

// New creates an empty Monitor.
func New() *Monitor {
	return &Monitor{hub: newHub()}
}

func (m *Monitor) OnRawData(f stream.RawFrame) {
	m.rawFrames.Add(1)
	m.mu.Lock()
	m.lastRaw = &f
	m.mu.Unlock()
	m.hub.broadcast(frameMessage{Seq: f.Seq, Time: f.Time, Values: f.Values, NoData: f.NoData})
}

func (m *Monitor) OnColorData(f stream.ColorFrame) {
	m.colorFrames.Add(1)
	m.mu.Lock()
	m.lastColors = &f
	m.mu.Unlock()
}

func (m *Monitor) OnOperator(u stream.OperatorUpdate) {
	if u.Operator == nil {
		return
	}
	rows, _ := u.Operator.Dims()
	s := &OperatorSummary{
		ID:             u.Operator.ID.String(),
		Generation:     u.Generation,
		Vertices:       rows,
		Sensors:        u.Sensors.Names(),
		Kernel:         u.Operator.Kernel.String(),
		CancelDistance: u.Operator.CancelDistance,
		BadChannels:    u.Operator.BadChannels,
		NNZ:            u.Operator.NNZ(),
	}
	m.mu.Lock()
	m.operator = s
	m.mu.Unlock()
}

func (m *Monitor) OnDiagnostic(d stream.Diagnostic) {
	e := DiagnosticEntry{Kind: d.Kind.String(), Time: d.Time}
	if d.Err != nil {
		e.Error = d.Err.Error()
	}
	m.mu.Lock()
	m.diagnostics = append(m.diagnostics, e)
	if n := len(m.diagnostics); n > maxDiagnostics {
		m.diagnostics = append([]DiagnosticEntry(nil), m.diagnostics[n-maxDiagnostics:]...)
	}
	m.mu.Unlock()
}

// LatestRaw returns the most recent raw frame.
func (m *Monitor) LatestRaw() (stream.RawFrame, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.lastRaw == nil {
		return stream.RawFrame{}, false
	}
	return *m.lastRaw, true
}

// LatestColors returns the most recent color frame.
func (m *Monitor) LatestColors() (stream.ColorFrame, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.lastColors == nil {
		return stream.ColorFrame{}, false
	}
	return *m.lastColors, true
}

// Operator returns the live operator summary, or nil.
func (m *Monitor) Operator() *OperatorSummary {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.operator
}

// Diagnostics returns the retained diagnostics, oldest first.
func (m *Monitor) Diagnostics() []DiagnosticEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]DiagnosticEntry(nil), m.diagnostics...)
}

// Counters reports how many frames have been observed.
func (m *Monitor) Counters() (raw, colors uint64) {
	return m.rawFrames.Load(), m.colorFrames.Load()
}

// Close disconnects every websocket client.
func (m *Monitor) Close() {
	m.hub.close()
}

// colorStrip samples cmap at n evenly spaced points.
func colorStrip(cmap colormap.Map, n int) []colormap.RGB {
	xs := make([]float64, n)
	for i := range xs {
		if n > 1 {
			xs[i] = float64(i) / float64(n-1)
		}
	}
	out := make([]colormap.RGB, n)
	cmap.Fill(out, xs)
	return out
}
