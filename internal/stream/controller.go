package stream

import (
	"context"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/sensormap/internal/colormap"
	"github.com/banshee-data/sensormap/internal/geometry"
	"github.com/banshee-data/sensormap/internal/interp"
	"github.com/banshee-data/sensormap/internal/monitoring"
	"github.com/banshee-data/sensormap/internal/timeutil"
)

var ctrlLogf = monitoring.Component("Controller")

type timerCmdKind int

const (
	timerStart timerCmdKind = iota
	timerStop
	timerInterval
)

type timerCmd struct {
	kind     timerCmdKind
	interval time.Duration
}

// Status combines the controller's own state with the worker snapshots.
type Status struct {
	Streaming   bool           `json:"streaming"`
	Interval    time.Duration  `json:"interval_ns"`
	GeometrySet bool           `json:"geometry_set"`
	Deferred    uint64         `json:"deferred_ticks"`
	Playback    PlaybackStatus `json:"playback"`
	Rebuild     RebuildStatus  `json:"rebuild"`
}

// Controller is the single entry point for the pipeline. It owns the
// interpolation worker, the data worker and the tick timer. Setters only
// enqueue work and never wait for a worker; names and ranges are validated
// before anything is enqueued.
type Controller struct {
	clock timeutil.Clock
	sink  Sink

	interp *InterpolationWorker
	data   *DataWorker

	timerCmds   *mailbox[timerCmd]
	streaming   atomic.Bool
	interval    atomic.Int64
	geometrySet atomic.Bool
	passthrough atomic.Bool
	closed      atomic.Bool

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
	doneCh    chan struct{}
}

// NewController validates opts and starts both workers and the timer loop.
// The stream itself stays stopped until SetStreamingState(true).
func NewController(opts Options) (*Controller, error) {
	if err := opts.validate(); err != nil {
		return nil, fmt.Errorf("invalid controller options: %w", err)
	}
	if opts.Clock == nil {
		opts.Clock = timeutil.RealClock{}
	}
	sink := opts.Sink
	if sink == nil {
		sink = SinkFuncs{}
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		clock:     opts.Clock,
		sink:      sink,
		timerCmds: newMailbox[timerCmd](),
		ctx:       ctx,
		cancel:    cancel,
		doneCh:    make(chan struct{}),
	}
	c.interval.Store(int64(opts.Interval))
	c.passthrough.Store(opts.Passthrough)

	c.data = NewDataWorker(sink, opts.Clock, opts)
	c.interp = NewInterpolationWorker(opts.Kernel, opts.CancelDistance, opts.Build, c.onOperator, sink.OnDiagnostic)
	if len(opts.BadChannels) > 0 {
		c.interp.SetBadChannels(opts.BadChannels)
	}

	go c.run(opts.Interval)
	ctrlLogf("started: interval=%v loop=%v averages=%d colormap=%s kernel=%s cancel=%.4f",
		opts.Interval, opts.Loop, opts.Averages, opts.Colormap, opts.Kernel, opts.CancelDistance)
	return c, nil
}

// onOperator runs on the interpolation worker goroutine.
func (c *Controller) onOperator(u OperatorUpdate) {
	c.data.SetInterpolationOperator(u.Operator)
	c.sink.OnOperator(u)
}

// run owns the ticker. Ticks are handed to the data worker, which folds a
// tick into one that is still pending.
func (c *Controller) run(interval time.Duration) {
	defer close(c.doneCh)
	var ticker timeutil.Ticker
	var tickC <-chan time.Time
	defer func() {
		if ticker != nil {
			ticker.Stop()
		}
	}()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-c.timerCmds.notify:
			for _, cmd := range c.timerCmds.drain() {
				switch cmd.kind {
				case timerStart:
					if ticker == nil {
						ticker = c.clock.NewTicker(interval)
					} else if tickC == nil {
						ticker.Reset(interval)
					}
					tickC = ticker.C()
				case timerStop:
					if ticker != nil {
						ticker.Stop()
					}
					tickC = nil
				case timerInterval:
					interval = cmd.interval
					if tickC != nil {
						ticker.Reset(interval)
					}
				}
			}
		case <-tickC:
			c.data.Tick()
		}
	}
}

func (c *Controller) checkOpen() error {
	if c.closed.Load() {
		return ErrClosed
	}
	return nil
}

// SetStreamingState starts or stops the tick timer. Queued frames and the
// workers are left untouched.
func (c *Controller) SetStreamingState(on bool) {
	if c.checkOpen() != nil {
		return
	}
	c.streaming.Store(on)
	if on {
		c.timerCmds.put(timerCmd{kind: timerStart})
	} else {
		c.timerCmds.put(timerCmd{kind: timerStop})
	}
}

// SetTimeInterval changes the tick interval.
func (c *Controller) SetTimeInterval(d time.Duration) error {
	if err := c.checkOpen(); err != nil {
		return err
	}
	if d <= 0 {
		return fmt.Errorf("interval must be positive, got %v", d)
	}
	c.interval.Store(int64(d))
	c.timerCmds.put(timerCmd{kind: timerInterval, interval: d})
	return nil
}

// SetLoopState enables or disables looping over the queued frames.
func (c *Controller) SetLoopState(loop bool) {
	if c.checkOpen() == nil {
		c.data.SetLoopState(loop)
	}
}

// SetNumberAverages sets how many consecutive frames are averaged per tick.
func (c *Controller) SetNumberAverages(n int) error {
	if err := c.checkOpen(); err != nil {
		return err
	}
	if n < 1 {
		return fmt.Errorf("averages must be at least 1, got %d", n)
	}
	c.data.SetNumberAverages(n)
	return nil
}

// SetColormapType selects a colormap by name.
func (c *Controller) SetColormapType(name string) error {
	if err := c.checkOpen(); err != nil {
		return err
	}
	m, err := colormap.Parse(name)
	if err != nil {
		return err
	}
	c.data.SetColormap(m)
	return nil
}

// SetThresholds sets the normalization triple.
func (c *Controller) SetThresholds(t colormap.Thresholds) error {
	if err := c.checkOpen(); err != nil {
		return err
	}
	if err := t.Validate(); err != nil {
		return err
	}
	c.data.SetThresholds(t)
	return nil
}

// SetStreamSmoothedData toggles the color output.
func (c *Controller) SetStreamSmoothedData(on bool) {
	if c.checkOpen() == nil {
		c.data.SetStreamSmoothedData(on)
	}
}

// SetSFreq records the sampling frequency of incoming data.
func (c *Controller) SetSFreq(hz float64) error {
	if err := c.checkOpen(); err != nil {
		return err
	}
	if !(hz > 0) || math.IsInf(hz, 0) {
		return fmt.Errorf("sampling frequency must be positive, got %v", hz)
	}
	c.data.SetSFreq(hz)
	return nil
}

// SetInterpolationEnabled switches between interpolated output and raw
// sensor-space passthrough.
func (c *Controller) SetInterpolationEnabled(on bool) {
	if c.checkOpen() != nil {
		return
	}
	c.passthrough.Store(!on)
	c.data.SetPassthrough(!on)
}

// SetInterpolationFunction selects the kernel by name and triggers a rebuild.
func (c *Controller) SetInterpolationFunction(name string) error {
	if err := c.checkOpen(); err != nil {
		return err
	}
	k, err := interp.ParseKernel(name)
	if err != nil {
		return err
	}
	c.interp.SetInterpolationFunction(k)
	return nil
}

// SetCancelDistance changes the cutoff radius in metres and triggers a rebuild.
func (c *Controller) SetCancelDistance(d float64) error {
	if err := c.checkOpen(); err != nil {
		return err
	}
	if err := validateCancelDistance(d); err != nil {
		return err
	}
	c.interp.SetCancelDistance(d)
	return nil
}

func validateCancelDistance(d float64) error {
	if math.IsNaN(d) || math.IsInf(d, 0) || d < 0 {
		return fmt.Errorf("%w: %v", interp.ErrInvalidCancelDistance, d)
	}
	return nil
}

// SetInterpolationInfo sets the surface and sensor layout. Only sensors of
// kind are used. The surface is validated here; the rebuild itself happens
// on the interpolation worker.
func (c *Controller) SetInterpolationInfo(surface *geometry.Surface, sensors geometry.SensorSet, kind geometry.ChannelKind) error {
	if err := c.checkOpen(); err != nil {
		return err
	}
	if err := surface.Validate(); err != nil {
		return fmt.Errorf("invalid surface: %w", err)
	}
	// The data worker must know the vertex count before the operator arrives.
	c.data.SetNumberVertices(surface.NumVertices())
	c.interp.SetInterpolationInfo(surface, sensors, kind)
	c.geometrySet.Store(true)
	return nil
}

// SetBadChannels replaces the excluded channel names and triggers a rebuild.
func (c *Controller) SetBadChannels(names []string) {
	if c.checkOpen() == nil {
		c.interp.SetBadChannels(names)
	}
}

// SetSurfaceColor sets the colors shown for vertices without data.
func (c *Controller) SetSurfaceColor(colors []colormap.RGB) {
	if c.checkOpen() == nil {
		c.data.SetSurfaceColor(append([]colormap.RGB(nil), colors...))
	}
}

// AddData queues every column of m (channels x samples) as one frame.
func (c *Controller) AddData(m mat.Matrix) error {
	if err := c.checkReady(); err != nil {
		return err
	}
	rows, cols := m.Dims()
	frames := make([][]float64, cols)
	for j := range frames {
		f := make([]float64, rows)
		mat.Col(f, j, m)
		frames[j] = f
	}
	c.data.AddData(frames)
	return nil
}

// AddFrame queues a single frame. The slice is copied.
func (c *Controller) AddFrame(values []float64) error {
	if err := c.checkReady(); err != nil {
		return err
	}
	c.data.AddData([][]float64{append([]float64(nil), values...)})
	return nil
}

// ClearData drops all queued frames.
func (c *Controller) ClearData() {
	if c.checkOpen() == nil {
		c.data.ClearData()
	}
}

func (c *Controller) checkReady() error {
	if err := c.checkOpen(); err != nil {
		return err
	}
	if !c.passthrough.Load() && !c.geometrySet.Load() {
		err := fmt.Errorf("%w: data received before SetInterpolationInfo", ErrUninitialized)
		ctrlLogf("%v", err)
		c.sink.OnDiagnostic(Diagnostic{Kind: DiagUninitialized, Err: err, Time: c.clock.Now()})
		return err
	}
	return nil
}

// Status returns a snapshot of the controller and both workers.
func (c *Controller) Status() Status {
	return Status{
		Streaming:   c.streaming.Load(),
		Interval:    time.Duration(c.interval.Load()),
		GeometrySet: c.geometrySet.Load(),
		Deferred:    c.data.DeferredTicks(),
		Playback:    c.data.Status(),
		Rebuild:     c.interp.Status(),
	}
}

// Close stops the timer, abandons any rebuild in progress, waits for the tick
// in progress and then returns. No sink method is called after Close returns.
func (c *Controller) Close() {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		c.streaming.Store(false)
		c.cancel()
		<-c.doneCh
		c.timerCmds.close()
		c.interp.Stop()
		c.data.Stop()
		ctrlLogf("closed")
	})
}
