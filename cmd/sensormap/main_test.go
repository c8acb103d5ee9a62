package main

import (
	"context"
	"reflect"
	"testing"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/sensormap/internal/geometry"
	"github.com/banshee-data/sensormap/internal/monitor"
	"github.com/banshee-data/sensormap/internal/stream"
	"github.com/banshee-data/sensormap/internal/synthetic"
	"github.com/banshee-data/sensormap/internal/testutil"
	"github.com/banshee-data/sensormap/internal/timeutil"
	"github.com/banshee-data/sensormap/internal/visualiser"
)

func TestSplitList(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"", nil},
		{"EEG 053", []string{"EEG 053"}},
		{" EEG 053 , MEG 2443,,", []string{"EEG 053", "MEG 2443"}},
	}
	for _, tt := range tests {
		if got := splitList(tt.in); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("splitList(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestOverride(t *testing.T) {
	if got := override("", ":8090"); got != ":8090" {
		t.Errorf("override with empty flag = %q", got)
	}
	if got := override(":9000", ":8090"); got != ":9000" {
		t.Errorf("override with flag = %q", got)
	}
}

func TestLiveAverages(t *testing.T) {
	tests := []struct {
		sfreq    float64
		interval time.Duration
		want     int
	}{
		{1000, 50 * time.Millisecond, 50},
		{1000, 17 * time.Millisecond, 17},
		{250, 17 * time.Millisecond, 4},
		{10, 17 * time.Millisecond, 1},
	}
	for _, tt := range tests {
		if got := liveAverages(tt.sfreq, tt.interval); got != tt.want {
			t.Errorf("liveAverages(%v, %v) = %d, want %d", tt.sfreq, tt.interval, got, tt.want)
		}
	}
}

// countingQueue records queued columns without playing anything back.
type countingQueue struct{ queued int }

func (q *countingQueue) AddData(m mat.Matrix) error {
	_, c := m.Dims()
	q.queued += c
	return nil
}

func (q *countingQueue) Status() stream.Status {
	return stream.Status{Playback: stream.PlaybackStatus{QueuedFrames: q.queued}}
}

func TestLiveFeedSkipsBlocksWhenBehind(t *testing.T) {
	sensors := synthetic.SensorCap(headRadius, sensorOffset, 8, geometry.KindEEG)
	gen := synthetic.NewSignalGenerator(sensors, 2, 1000, 1)
	q := &countingQueue{}
	f := newLiveFeed(q, gen, 200*time.Millisecond)

	for i := 0; i < backlogBlocks; i++ {
		if !f.push() {
			t.Fatalf("push %d rejected with %d queued", i, q.queued)
		}
	}
	if f.push() {
		t.Fatal("push accepted past the backlog limit")
	}
	if q.queued != backlogBlocks*200 || f.skipped != 1 {
		t.Errorf("queued=%d skipped=%d", q.queued, f.skipped)
	}
}

func TestLiveFeedKeepsQueueBounded(t *testing.T) {
	testutil.MuteLogs()
	const (
		sfreq    = 1000
		interval = 50 * time.Millisecond
		every    = 200 * time.Millisecond
	)
	clock := timeutil.NewMockClock(time.Unix(1700000000, 0))
	opts := stream.DefaultOptions()
	opts.Clock = clock
	opts.Interval = interval
	opts.SFreq = sfreq
	opts.Passthrough = true
	opts.Loop = false
	opts.Averages = liveAverages(sfreq, interval)
	ctrl, err := stream.NewController(opts)
	if err != nil {
		t.Fatal(err)
	}
	defer ctrl.Close()

	sensors := synthetic.SensorCap(headRadius, sensorOffset, 8, geometry.KindEEG)
	f := newLiveFeed(ctrl, synthetic.NewSignalGenerator(sensors, 2, sfreq, 1), every)
	ctrl.SetStreamingState(true)
	testutil.Eventually(t, "ticker", func() bool { return clock.ActiveTickers() == 1 })

	// Ten seconds of live feed, four ticks per block.
	var emitted uint64
	for period := 0; period < 50; period++ {
		if !f.push() {
			t.Fatalf("period %d: block skipped with %d queued", period, ctrl.Status().Playback.QueuedFrames)
		}
		testutil.Eventually(t, "block queued", func() bool { return ctrl.Status().Playback.QueuedFrames == f.block })
		for tick := 0; tick < int(every/interval); tick++ {
			clock.Advance(interval)
			emitted++
			testutil.Eventually(t, "tick", func() bool { return ctrl.Status().Playback.Emitted == emitted })
		}
		if q := ctrl.Status().Playback.QueuedFrames; q != 0 {
			t.Fatalf("period %d: %d frames still queued", period, q)
		}
	}
}

func TestEmptyListenAddressesDisableServices(t *testing.T) {
	testutil.MuteLogs()
	pub := visualiser.NewPublisher(visualiser.DefaultConfig())
	stop, err := startPublisher(pub, visualiser.NewServer(pub, nil), "")
	if err != nil {
		t.Fatal(err)
	}
	stop()
	if st := pub.Stats(); st.Running {
		t.Error("publisher started with an empty address")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errCh := startMonitor(ctx, cancel, monitor.WebServerConfig{Monitor: monitor.New()})
	if err := testutil.Receive(t, errCh, "monitor exit"); err != nil {
		t.Errorf("disabled monitor returned %v", err)
	}
	if ctx.Err() != nil {
		t.Error("disabled monitor cancelled the daemon context")
	}
}
