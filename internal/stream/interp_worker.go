package stream

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/banshee-data/sensormap/internal/geometry"
	"github.com/banshee-data/sensormap/internal/interp"
	"github.com/banshee-data/sensormap/internal/monitoring"
)

var interpLogf = monitoring.Component("Interpolation")

// BuildFunc builds an operator. It is interp.Build outside of tests.
type BuildFunc func(ctx context.Context, p interp.Params) (*interp.Result, error)

type rebuildParams struct {
	interp.Params
	geometrySet bool
}

type interpMsg func(*rebuildParams)

func (p rebuildParams) apply(msgs []interpMsg) rebuildParams {
	for _, msg := range msgs {
		msg(&p)
	}
	return p
}

// equal compares by identity for the surface and sensor layout, which callers
// replace rather than mutate.
func (p rebuildParams) equal(q rebuildParams) bool {
	return p.geometrySet == q.geometrySet &&
		p.Surface == q.Surface &&
		sameSensors(p.Sensors, q.Sensors) &&
		p.Kind == q.Kind &&
		p.CancelDistance == q.CancelDistance &&
		p.Kernel == q.Kernel &&
		slices.Equal(p.BadChannels, q.BadChannels)
}

func sameSensors(a, b geometry.SensorSet) bool {
	return len(a) == len(b) && (len(a) == 0 || &a[0] == &b[0])
}

// RebuildStatus is a read-only snapshot of the interpolation worker.
type RebuildStatus struct {
	Generation     uint64        `json:"generation"`
	Building       bool          `json:"building"`
	Kernel         string        `json:"kernel"`
	CancelDistance float64       `json:"cancel_distance"`
	BadChannels    []string      `json:"bad_channels,omitempty"`
	Sensors        int           `json:"sensors"`
	LastElapsed    time.Duration `json:"last_elapsed_ns"`
	LastError      string        `json:"last_error,omitempty"`
}

// InterpolationWorker rebuilds the operator on its own goroutine whenever an
// input changes. Changes that arrive during a rebuild are merged and applied
// in a single follow-up rebuild, so results are published strictly in order
// and a superseded result is never published after a newer one. A finished
// build is dropped only if the merged changes alter its parameters; a caller
// that keeps changing them faster than a build completes delays publication
// until it pauses.
type InterpolationWorker struct {
	build    BuildFunc
	onResult func(OperatorUpdate)
	onDiag   func(Diagnostic)

	inbox      *mailbox[interpMsg]
	generation uint64
	status     atomic.Pointer[RebuildStatus]

	ctx      context.Context
	cancel   context.CancelFunc
	stopOnce sync.Once
	doneCh   chan struct{}
}

// NewInterpolationWorker starts a worker with the given initial kernel and
// cancel distance. build may be nil to use interp.Build.
func NewInterpolationWorker(kernel interp.Kernel, cancelDistance float64, build BuildFunc, onResult func(OperatorUpdate), onDiag func(Diagnostic)) *InterpolationWorker {
	if build == nil {
		build = interp.Build
	}
	ctx, cancel := context.WithCancel(context.Background())
	w := &InterpolationWorker{
		build:    build,
		onResult: onResult,
		onDiag:   onDiag,
		inbox:    newMailbox[interpMsg](),
		ctx:      ctx,
		cancel:   cancel,
		doneCh:   make(chan struct{}),
	}
	params := rebuildParams{Params: interp.Params{Kernel: kernel, CancelDistance: cancelDistance}}
	w.publishStatus(params, RebuildStatus{})
	go w.run(params)
	return w
}

func (w *InterpolationWorker) run(params rebuildParams) {
	defer close(w.doneCh)
	var last RebuildStatus
	for {
		select {
		case <-w.ctx.Done():
			return
		case <-w.inbox.notify:
			msgs := w.inbox.drain()
			if len(msgs) == 0 {
				continue
			}
			params = params.apply(msgs)
			if !params.geometrySet {
				interpLogf("parameters updated, waiting for geometry before building")
				w.publishStatus(params, last)
				continue
			}
			for {
				last.Building = true
				w.publishStatus(params, last)
				var superseded bool
				last, params, superseded = w.rebuild(params, last)
				w.publishStatus(params, last)
				if !superseded {
					break
				}
			}
		}
	}
}

// rebuild builds an operator for params and publishes it unless messages
// that arrived meanwhile changed the parameters. It returns the parameters
// with those messages applied and whether another build is needed.
func (w *InterpolationWorker) rebuild(params rebuildParams, last RebuildStatus) (RebuildStatus, rebuildParams, bool) {
	last.Building = false
	res, err := w.build(w.ctx, params.Params)
	if err != nil {
		if w.ctx.Err() != nil {
			interpLogf("rebuild abandoned: %v", err)
			return last, params, false
		}
		last.LastError = err.Error()
		w.diag(Diagnostic{Kind: DiagRebuildFailed, Err: fmt.Errorf("operator rebuild: %w", err), Time: time.Now()})
		return last, params, false
	}
	last.LastError = ""
	last.LastElapsed = res.Elapsed
	last.Sensors = len(res.Sensors)

	if msgs := w.inbox.drain(); len(msgs) > 0 {
		next := params.apply(msgs)
		if !next.equal(params) {
			interpLogf("operator %s superseded before publication", res.Operator.ID)
			return last, next, true
		}
	}

	w.generation++
	last.Generation = w.generation
	if w.onResult != nil {
		w.onResult(OperatorUpdate{
			Generation: w.generation,
			Operator:   res.Operator,
			Sensors:    res.Sensors,
			Elapsed:    res.Elapsed,
		})
	}
	return last, params, false
}

func (w *InterpolationWorker) diag(d Diagnostic) {
	interpLogf("%s", d)
	if w.onDiag != nil {
		w.onDiag(d)
	}
}

func (w *InterpolationWorker) publishStatus(params rebuildParams, last RebuildStatus) {
	st := last
	st.Kernel = params.Kernel.String()
	st.CancelDistance = params.CancelDistance
	st.BadChannels = append([]string(nil), params.BadChannels...)
	w.status.Store(&st)
}

func (w *InterpolationWorker) send(msg interpMsg) {
	if !w.inbox.put(msg) {
		interpLogf("worker stopped, parameter change dropped")
	}
}

// SetInterpolationInfo replaces the surface and sensor layout. Only sensors of
// kind take part.
func (w *InterpolationWorker) SetInterpolationInfo(surface *geometry.Surface, sensors geometry.SensorSet, kind geometry.ChannelKind) {
	w.send(func(p *rebuildParams) {
		p.Surface = surface
		p.Sensors = sensors
		p.Kind = kind
		p.geometrySet = true
	})
}

// SetCancelDistance changes the cutoff radius.
func (w *InterpolationWorker) SetCancelDistance(d float64) {
	w.send(func(p *rebuildParams) { p.CancelDistance = d })
}

// SetInterpolationFunction changes the kernel.
func (w *InterpolationWorker) SetInterpolationFunction(k interp.Kernel) {
	w.send(func(p *rebuildParams) { p.Kernel = k })
}

// SetBadChannels replaces the set of excluded channel names.
func (w *InterpolationWorker) SetBadChannels(names []string) {
	names = append([]string(nil), names...)
	w.send(func(p *rebuildParams) { p.BadChannels = names })
}

// Status returns the latest snapshot.
func (w *InterpolationWorker) Status() RebuildStatus {
	return *w.status.Load()
}

// Stop cancels any rebuild in progress and waits for the worker to exit.
func (w *InterpolationWorker) Stop() {
	w.stopOnce.Do(func() {
		w.inbox.close()
		w.cancel()
	})
	<-w.doneCh
}
