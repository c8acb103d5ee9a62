// Command sensormap runs the surface streaming pipeline on a synthetic head
// model and serves the output over gRPC and HTTP.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math"
	"strings"
	"time"

	"github.com/maruel/interrupt"
	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/sensormap/internal/config"
	"github.com/banshee-data/sensormap/internal/monitor"
	"github.com/banshee-data/sensormap/internal/stream"
	"github.com/banshee-data/sensormap/internal/synthetic"
	"github.com/banshee-data/sensormap/internal/version"
	"github.com/banshee-data/sensormap/internal/visualiser"
)

var (
	configPath  = flag.String("config", "", "Path to a stream config JSON file (defaults apply when empty)")
	grpcListen  = flag.String("grpc", "", "gRPC listen address (overrides config)")
	httpListen  = flag.String("http", "", "HTTP monitor listen address (overrides config)")
	badChannels = flag.String("bads", "", "Comma-separated bad channel names (overrides config)")
	level       = flag.Int("level", 3, "Icosphere subdivision level of the synthetic surface")
	numSensors  = flag.Int("sensors", 64, "Number of synthetic sensors")
	numSources  = flag.Int("sources", 3, "Number of synthetic signal sources")
	feedEvery   = flag.Duration("feed", 200*time.Millisecond, "How often to push a block of synthetic samples")
	seed        = flag.Int64("seed", 1, "Random seed for the synthetic data")
	snapshotDir = flag.String("snapshot-dir", "", "Directory to write a PNG of the last frame on shutdown (disabled when empty)")
	showVersion = flag.Bool("version", false, "Print the version and exit")
)

const (
	headRadius   = 0.09  // metres
	sensorOffset = 0.005 // metres above the surface
)

func main() {
	flag.Parse()
	if *showVersion {
		fmt.Println("sensormap", version.String())
		return
	}
	log.Printf("sensormap %s", version.String())
	if err := run(); err != nil {
		log.Fatalf("sensormap: %v", err)
	}
}

func run() error {
	if len(flag.Args()) != 0 {
		return fmt.Errorf("unexpected argument: %s", flag.Args())
	}

	cfg := config.EmptyStreamConfig()
	if *configPath != "" {
		var err error
		if cfg, err = config.LoadStreamConfig(*configPath); err != nil {
			return err
		}
	}
	if *badChannels != "" {
		cfg.BadChannels = splitList(*badChannels)
	}

	interrupt.HandleCtrlC()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-interrupt.Channel
		log.Printf("interrupt received, shutting down")
		cancel()
	}()

	opts, err := stream.OptionsFromConfig(cfg)
	if err != nil {
		return err
	}

	pubCfg := visualiser.DefaultConfig()
	pubCfg.ListenAddr = override(*grpcListen, cfg.GetGRPCListen())
	pub := visualiser.NewPublisher(pubCfg)
	mon := monitor.New()
	opts.Sink = stream.MultiSink{pub, mon, stream.SinkFuncs{Diagnostic: func(d stream.Diagnostic) {
		log.Printf("[Diagnostic] %s", d)
	}}}

	ctrl, err := stream.NewController(opts)
	if err != nil {
		return err
	}
	defer ctrl.Close()

	stopPub, err := startPublisher(pub, visualiser.NewServer(pub, ctrl), pubCfg.ListenAddr)
	if err != nil {
		return err
	}
	defer stopPub()

	webErr := startMonitor(ctx, cancel, monitor.WebServerConfig{
		Address:  override(*httpListen, cfg.GetHTTPListen()),
		Monitor:  mon,
		Pipeline: ctrl,
		Extra:    func() any { return pub.Stats() },
	})

	kind := cfg.GetModality()
	surface := synthetic.Icosphere(headRadius, *level)
	sensors := synthetic.SensorCap(headRadius, sensorOffset, *numSensors, kind)
	log.Printf("synthetic head: %d vertices, %d faces, %d %s sensors", surface.NumVertices(), len(surface.Faces), len(sensors), kind)
	if err := ctrl.SetInterpolationInfo(surface, sensors, kind); err != nil {
		return err
	}

	gen := synthetic.NewSignalGenerator(sensors, *numSources, opts.SFreq, *seed)
	// Live data is consumed, not replayed, and each tick must take as many
	// samples as arrive in one interval or the queue grows without bound.
	ctrl.SetLoopState(false)
	if err := ctrl.SetNumberAverages(liveAverages(opts.SFreq, opts.Interval)); err != nil {
		return err
	}
	ctrl.SetStreamingState(true)

	feed(ctx, newLiveFeed(ctrl, gen, *feedEvery))

	if *snapshotDir != "" {
		name := "sensormap-" + time.Now().UTC().Format("20060102T150405Z")
		if _, err := mon.SaveSnapshot(*snapshotDir, name); err != nil {
			log.Printf("failed to save final snapshot: %v", err)
		}
	}

	if err := <-webErr; err != nil {
		return fmt.Errorf("http monitor: %w", err)
	}
	return nil
}

// startPublisher serves gRPC on addr. An empty addr leaves the publisher
// stopped, so published frames are dropped.
func startPublisher(pub *visualiser.Publisher, srv *visualiser.Server, addr string) (stop func(), err error) {
	if addr == "" {
		log.Printf("gRPC listen address empty, frame service disabled")
		return func() {}, nil
	}
	if err := pub.Start(srv); err != nil {
		return nil, err
	}
	return pub.Stop, nil
}

// startMonitor runs the HTTP monitor until ctx is done and delivers its exit
// error on the returned channel. An empty address disables the monitor.
func startMonitor(ctx context.Context, cancel context.CancelFunc, cfg monitor.WebServerConfig) <-chan error {
	errCh := make(chan error, 1)
	if cfg.Address == "" {
		log.Printf("HTTP listen address empty, monitor disabled")
		errCh <- nil
		return errCh
	}
	web := monitor.NewWebServer(cfg)
	go func() {
		err := web.Start(ctx)
		if err != nil {
			cancel()
		}
		errCh <- err
	}()
	return errCh
}

// liveAverages is the number of samples one tick must consume to keep pace
// with a source sampled at sfreq.
func liveAverages(sfreq float64, interval time.Duration) int {
	return max(int(math.Round(sfreq*interval.Seconds())), 1)
}

// backlogBlocks bounds the live queue, in feed blocks.
const backlogBlocks = 4

type frameQueue interface {
	AddData(m mat.Matrix) error
	Status() stream.Status
}

// liveFeed pushes synthetic sample blocks into the pipeline, skipping blocks
// while the queue already holds more than backlogBlocks of them.
type liveFeed struct {
	ctrl    frameQueue
	gen     *synthetic.SignalGenerator
	every   time.Duration
	block   int
	skipped uint64
}

func newLiveFeed(ctrl frameQueue, gen *synthetic.SignalGenerator, every time.Duration) *liveFeed {
	return &liveFeed{
		ctrl:  ctrl,
		gen:   gen,
		every: every,
		block: max(int(gen.SFreq*every.Seconds()), 1),
	}
}

// push queues one block and reports whether it was accepted.
func (f *liveFeed) push() bool {
	if queued := f.ctrl.Status().Playback.QueuedFrames; queued >= backlogBlocks*f.block {
		f.skipped++
		if f.skipped == 1 || f.skipped%100 == 0 {
			log.Printf("playback is %d frames behind, skipped %d blocks", queued, f.skipped)
		}
		return false
	}
	if err := f.ctrl.AddData(f.gen.Next(f.block)); err != nil {
		log.Printf("failed to queue %d samples for %d channels: %v", f.block, len(f.gen.Sensors), err)
		return false
	}
	return true
}

// feed pushes one block per period until ctx is done.
func feed(ctx context.Context, f *liveFeed) {
	ticker := time.NewTicker(f.every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			f.push()
		}
	}
}

func override(flagValue, configValue string) string {
	if flagValue != "" {
		return flagValue
	}
	return configValue
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
