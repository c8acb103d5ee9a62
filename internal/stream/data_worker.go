package stream

import (
	"sync"
	"sync/atomic"

	"github.com/banshee-data/sensormap/internal/colormap"
	"github.com/banshee-data/sensormap/internal/interp"
	"github.com/banshee-data/sensormap/internal/monitoring"
	"github.com/banshee-data/sensormap/internal/timeutil"
)

var logf = monitoring.Component("SensorData")

type dataMsg func(*playbackState)

// DataWorker owns the frame queue and playback state on its own goroutine.
// Every method only enqueues a message, so none of them block on a tick in
// progress.
type DataWorker struct {
	inbox       *mailbox[dataMsg]
	state       *playbackState
	tickPending atomic.Bool
	deferred    atomic.Uint64
	status      atomic.Pointer[PlaybackStatus]

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// NewDataWorker starts a data worker. Results go to sink.
func NewDataWorker(sink Sink, clock timeutil.Clock, opts Options) *DataWorker {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	w := &DataWorker{
		inbox:  newMailbox[dataMsg](),
		state:  newPlaybackState(sink, clock.Now, opts),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
	w.publishStatus()
	go w.run()
	return w
}

func (w *DataWorker) run() {
	defer close(w.doneCh)
	for {
		select {
		case <-w.stopCh:
			return
		case <-w.inbox.notify:
			for _, msg := range w.inbox.drain() {
				select {
				case <-w.stopCh:
					return
				default:
				}
				msg(w.state)
			}
			w.publishStatus()
		}
	}
}

func (w *DataWorker) publishStatus() {
	st := w.state.snapshot()
	w.status.Store(&st)
}

func (w *DataWorker) send(msg dataMsg) bool {
	if !w.inbox.put(msg) {
		logf("worker stopped, message dropped")
		return false
	}
	return true
}

// Tick asks the worker to run one pipeline step. If the previous tick has not
// started yet the request is folded into it, so ticks never pile up or
// overlap. It reports whether a new tick was queued.
func (w *DataWorker) Tick() bool {
	if !w.tickPending.CompareAndSwap(false, true) {
		w.deferred.Add(1)
		return false
	}
	queued := w.send(func(s *playbackState) {
		w.tickPending.Store(false)
		s.tick()
	})
	if !queued {
		w.tickPending.Store(false)
	}
	return queued
}

// DeferredTicks returns how many ticks were folded into a pending one.
func (w *DataWorker) DeferredTicks() uint64 { return w.deferred.Load() }

// AddData appends frames to the queue. Frames must not be modified afterwards.
func (w *DataWorker) AddData(frames [][]float64) {
	w.send(func(s *playbackState) { s.addFrames(frames) })
}

// SetNumberVertices sets the expected operator row count.
func (w *DataWorker) SetNumberVertices(n int) {
	w.send(func(s *playbackState) { s.setNumberVertices(n) })
}

// SetInterpolationOperator swaps in op for the next tick. op must not be
// modified after this call.
func (w *DataWorker) SetInterpolationOperator(op *interp.Operator) {
	w.send(func(s *playbackState) { s.setOperator(op) })
}

// SetPassthrough toggles raw sensor-space output.
func (w *DataWorker) SetPassthrough(on bool) {
	w.send(func(s *playbackState) {
		s.passthrough = on
		s.warnedUninit = false
	})
}

// SetThresholds sets the normalization triple.
func (w *DataWorker) SetThresholds(t colormap.Thresholds) {
	w.send(func(s *playbackState) { s.thresholds = t })
}

// SetColormap selects the colormap.
func (w *DataWorker) SetColormap(m colormap.Map) {
	w.send(func(s *playbackState) { s.cmap = m })
}

// SetLoopState enables or disables looping.
func (w *DataWorker) SetLoopState(loop bool) {
	w.send(func(s *playbackState) { s.loop = loop })
}

// SetNumberAverages sets the averaging window; values below 1 become 1.
func (w *DataWorker) SetNumberAverages(n int) {
	w.send(func(s *playbackState) { s.averages = max(n, 1) })
}

// SetSFreq records the sampling frequency.
func (w *DataWorker) SetSFreq(hz float64) {
	w.send(func(s *playbackState) { s.sFreq = hz })
}

// SetStreamSmoothedData toggles color output.
func (w *DataWorker) SetStreamSmoothedData(on bool) {
	w.send(func(s *playbackState) { s.streamSmoothed = on })
}

// SetSurfaceColor sets the colors used for vertices without data.
func (w *DataWorker) SetSurfaceColor(colors []colormap.RGB) {
	w.send(func(s *playbackState) { s.setBaseColors(colors) })
}

// ClearData drops every queued frame and rewinds the cursor.
func (w *DataWorker) ClearData() {
	w.send(func(s *playbackState) {
		s.frames = nil
		s.cursor = 0
	})
}

// Status returns the most recent snapshot. It is refreshed after each batch
// of messages.
func (w *DataWorker) Status() PlaybackStatus {
	return *w.status.Load()
}

// Stop signals the worker and waits for any tick in progress to finish.
// Messages still queued are discarded.
func (w *DataWorker) Stop() {
	w.stopOnce.Do(func() {
		w.inbox.close()
		close(w.stopCh)
	})
	<-w.doneCh
}
