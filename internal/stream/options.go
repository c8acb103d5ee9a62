package stream

import (
	"fmt"
	"time"

	"github.com/banshee-data/sensormap/internal/colormap"
	"github.com/banshee-data/sensormap/internal/config"
	"github.com/banshee-data/sensormap/internal/interp"
	"github.com/banshee-data/sensormap/internal/timeutil"
)

// DefaultInterval is the tick interval used when none is configured.
const DefaultInterval = 17 * time.Millisecond

// Options configures a Controller.
type Options struct {
	Clock timeutil.Clock
	Sink  Sink
	// Build overrides the operator builder; nil uses interp.Build.
	Build BuildFunc

	Interval       time.Duration
	Loop           bool
	Averages       int
	SFreq          float64
	StreamSmoothed bool
	Passthrough    bool

	Colormap   colormap.Map
	Thresholds colormap.Thresholds

	CancelDistance float64
	Kernel         interp.Kernel
	BadChannels    []string
}

// DefaultOptions returns the startup defaults.
func DefaultOptions() Options {
	return Options{
		Clock:          timeutil.RealClock{},
		Interval:       DefaultInterval,
		Loop:           true,
		Averages:       1,
		StreamSmoothed: true,
		Colormap:       colormap.DefaultMap,
		Thresholds:     colormap.DefaultThresholds(),
		CancelDistance: 0.05,
		Kernel:         interp.DefaultKernel,
	}
}

// OptionsFromConfig builds Options from a validated StreamConfig.
func OptionsFromConfig(cfg *config.StreamConfig) (Options, error) {
	if err := cfg.Validate(); err != nil {
		return Options{}, err
	}
	opts := DefaultOptions()
	opts.Interval = cfg.GetInterval()
	opts.Loop = cfg.GetLoop()
	opts.Averages = cfg.GetAverages()
	opts.SFreq = cfg.GetSFreq()
	opts.StreamSmoothed = cfg.GetStreamSmoothed()
	opts.Passthrough = cfg.GetPassthrough()
	opts.Colormap = cfg.GetColormap()
	opts.Thresholds = cfg.GetThresholds()
	opts.CancelDistance = cfg.GetCancelDistance()
	opts.Kernel = cfg.GetKernel()
	opts.BadChannels = append([]string(nil), cfg.BadChannels...)
	return opts, nil
}

func (o Options) validate() error {
	if o.Interval <= 0 {
		return fmt.Errorf("interval must be positive, got %v", o.Interval)
	}
	if o.Averages < 1 {
		return fmt.Errorf("averages must be at least 1, got %d", o.Averages)
	}
	if err := o.Thresholds.Validate(); err != nil {
		return err
	}
	if err := validateCancelDistance(o.CancelDistance); err != nil {
		return err
	}
	if _, err := colormap.Parse(o.Colormap.String()); err != nil {
		return err
	}
	if _, err := interp.ParseKernel(o.Kernel.String()); err != nil {
		return err
	}
	return nil
}
