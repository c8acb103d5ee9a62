package config

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/banshee-data/sensormap/internal/colormap"
	"github.com/banshee-data/sensormap/internal/geometry"
	"github.com/banshee-data/sensormap/internal/interp"
)

// DefaultConfigPath is the path to the canonical stream defaults file.
const DefaultConfigPath = "config/stream.defaults.json"

// StreamConfig is the startup configuration for the streaming pipeline. Every
// field is optional; the Get* methods supply defaults for missing values, so
// partial files are safe.
type StreamConfig struct {
	// Playback
	Interval       *string  `json:"interval,omitempty"` // duration string like "50ms"
	Loop           *bool    `json:"loop,omitempty"`
	Averages       *int     `json:"averages,omitempty"`
	SFreq          *float64 `json:"sfreq,omitempty"`
	StreamSmoothed *bool    `json:"stream_smoothed,omitempty"`
	Passthrough    *bool    `json:"passthrough,omitempty"`

	// Color mapping
	Colormap   *string              `json:"colormap,omitempty"`
	Thresholds *colormap.Thresholds `json:"thresholds,omitempty"`

	// Interpolation
	Modality       *string  `json:"modality,omitempty"`
	CancelDistance *float64 `json:"cancel_distance,omitempty"` // metres
	Kernel         *string  `json:"kernel,omitempty"`
	BadChannels    []string `json:"bad_channels,omitempty"`

	// Outbound surfaces
	GRPCListen *string `json:"grpc_listen,omitempty"`
	HTTPListen *string `json:"http_listen,omitempty"`
}

func ptrFloat64(v float64) *float64 { return &v }
func ptrBool(v bool) *bool          { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyStreamConfig returns a config with every field unset.
func EmptyStreamConfig() *StreamConfig {
	return &StreamConfig{}
}

// DefaultStreamConfig returns a config with every field set to its default.
func DefaultStreamConfig() *StreamConfig {
	th := colormap.DefaultThresholds()
	return &StreamConfig{
		Interval:       ptrString("50ms"),
		Loop:           ptrBool(true),
		Averages:       ptrInt(1),
		SFreq:          ptrFloat64(1000),
		StreamSmoothed: ptrBool(true),
		Passthrough:    ptrBool(false),
		Colormap:       ptrString(colormap.DefaultMap.String()),
		Thresholds:     &th,
		Modality:       ptrString("EEG"),
		CancelDistance: ptrFloat64(0.05),
		Kernel:         ptrString(interp.DefaultKernel.String()),
		GRPCListen:     ptrString("localhost:50061"),
		HTTPListen:     ptrString(":8090"),
	}
}

// LoadStreamConfig loads a StreamConfig from a JSON file. The path must have a
// .json extension and the file must be under 1MB.
func LoadStreamConfig(path string) (*StreamConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyStreamConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// MustLoadDefaultConfig loads DefaultConfigPath, searching a few parent
// directories. It panics if the file cannot be loaded and is meant for tests.
func MustLoadDefaultConfig() *StreamConfig {
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath,
		"../../../" + DefaultConfigPath,
	}
	for _, path := range candidates {
		if cfg, err := LoadStreamConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks the values that are set.
func (c *StreamConfig) Validate() error {
	if c.Interval != nil && *c.Interval != "" {
		d, err := time.ParseDuration(*c.Interval)
		if err != nil {
			return fmt.Errorf("invalid interval '%s': %w", *c.Interval, err)
		}
		if d <= 0 {
			return fmt.Errorf("interval must be positive, got %v", d)
		}
	}
	if c.Averages != nil && *c.Averages < 1 {
		return fmt.Errorf("averages must be at least 1, got %d", *c.Averages)
	}
	if c.SFreq != nil && !(*c.SFreq > 0) {
		return fmt.Errorf("sfreq must be positive, got %v", *c.SFreq)
	}
	if c.Colormap != nil {
		if _, err := colormap.Parse(*c.Colormap); err != nil {
			return err
		}
	}
	if c.Thresholds != nil {
		if err := c.Thresholds.Validate(); err != nil {
			return err
		}
	}
	if c.Modality != nil {
		if _, err := geometry.ParseChannelKind(*c.Modality); err != nil {
			return err
		}
	}
	if c.CancelDistance != nil {
		d := *c.CancelDistance
		if math.IsNaN(d) || math.IsInf(d, 0) || d < 0 {
			return fmt.Errorf("%w: %v", interp.ErrInvalidCancelDistance, d)
		}
	}
	if c.Kernel != nil {
		if _, err := interp.ParseKernel(*c.Kernel); err != nil {
			return err
		}
	}
	return nil
}

// GetInterval returns the tick interval or the 50ms default.
func (c *StreamConfig) GetInterval() time.Duration {
	if c.Interval == nil || *c.Interval == "" {
		return 50 * time.Millisecond
	}
	d, err := time.ParseDuration(*c.Interval)
	if err != nil || d <= 0 {
		return 50 * time.Millisecond
	}
	return d
}

// GetLoop returns the loop value or the default (on).
func (c *StreamConfig) GetLoop() bool {
	if c.Loop == nil {
		return true
	}
	return *c.Loop
}

// GetAverages returns the averaging window or the default.
func (c *StreamConfig) GetAverages() int {
	if c.Averages == nil || *c.Averages < 1 {
		return 1
	}
	return *c.Averages
}

// GetSFreq returns the sampling frequency in Hz or the default.
func (c *StreamConfig) GetSFreq() float64 {
	if c.SFreq == nil {
		return 1000
	}
	return *c.SFreq
}

// GetStreamSmoothed returns whether color frames are emitted.
func (c *StreamConfig) GetStreamSmoothed() bool {
	if c.StreamSmoothed == nil {
		return true
	}
	return *c.StreamSmoothed
}

// GetPassthrough returns whether frames skip interpolation.
func (c *StreamConfig) GetPassthrough() bool {
	if c.Passthrough == nil {
		return false
	}
	return *c.Passthrough
}

// GetColormap returns the configured colormap, falling back to Hot.
func (c *StreamConfig) GetColormap() colormap.Map {
	if c.Colormap == nil {
		return colormap.DefaultMap
	}
	m, err := colormap.Parse(*c.Colormap)
	if err != nil {
		return colormap.DefaultMap
	}
	return m
}

// GetThresholds returns the threshold triple or the default.
func (c *StreamConfig) GetThresholds() colormap.Thresholds {
	if c.Thresholds == nil {
		return colormap.DefaultThresholds()
	}
	return *c.Thresholds
}

// GetModality returns the targeted channel kind, EEG by default.
func (c *StreamConfig) GetModality() geometry.ChannelKind {
	if c.Modality == nil {
		return geometry.KindEEG
	}
	k, err := geometry.ParseChannelKind(*c.Modality)
	if err != nil {
		return geometry.KindEEG
	}
	return k
}

// GetCancelDistance returns the cancel distance in metres or the default.
func (c *StreamConfig) GetCancelDistance() float64 {
	if c.CancelDistance == nil {
		return 0.05
	}
	return *c.CancelDistance
}

// GetKernel returns the configured kernel, falling back to linear.
func (c *StreamConfig) GetKernel() interp.Kernel {
	if c.Kernel == nil {
		return interp.DefaultKernel
	}
	k, err := interp.ParseKernel(*c.Kernel)
	if err != nil {
		return interp.DefaultKernel
	}
	return k
}

// GetGRPCListen returns the gRPC listen address; empty disables the service.
func (c *StreamConfig) GetGRPCListen() string {
	if c.GRPCListen == nil {
		return "localhost:50061"
	}
	return *c.GRPCListen
}

// GetHTTPListen returns the monitor listen address; empty disables it.
func (c *StreamConfig) GetHTTPListen() string {
	if c.HTTPListen == nil {
		return ":8090"
	}
	return *c.HTTPListen
}
