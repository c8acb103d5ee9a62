package geometry

import (
	"fmt"
	"strings"

	"github.com/golang/geo/r3"
)

// ChannelKind tags the modality of a sensor.
type ChannelKind int

const (
	KindUnknown ChannelKind = iota
	KindMEG
	KindEEG
)

func (k ChannelKind) String() string {
	switch k {
	case KindMEG:
		return "MEG"
	case KindEEG:
		return "EEG"
	default:
		return "unknown"
	}
}

// ParseChannelKind maps a modality name to its ChannelKind.
func ParseChannelKind(s string) (ChannelKind, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "MEG":
		return KindMEG, nil
	case "EEG":
		return KindEEG, nil
	}
	return KindUnknown, fmt.Errorf("unknown channel kind %q", s)
}

// Sensor is a single channel with its position in head coordinates.
type Sensor struct {
	Name     string
	Kind     ChannelKind
	Position r3.Vector
}

// SensorSet is an ordered list of sensors. Order defines the column order of
// data frames and of the interpolation operator.
type SensorSet []Sensor

// OfKind returns the sensors matching kind, preserving order.
func (s SensorSet) OfKind(kind ChannelKind) SensorSet {
	out := make(SensorSet, 0, len(s))
	for _, sensor := range s {
		if sensor.Kind == kind {
			out = append(out, sensor)
		}
	}
	return out
}

// Names returns the channel names in order.
func (s SensorSet) Names() []string {
	names := make([]string, len(s))
	for i, sensor := range s {
		names[i] = sensor.Name
	}
	return names
}

// Positions returns the sensor positions in order.
func (s SensorSet) Positions() []r3.Vector {
	pos := make([]r3.Vector, len(s))
	for i, sensor := range s {
		pos[i] = sensor.Position
	}
	return pos
}

// IndexOf returns the position of the named channel, or -1.
func (s SensorSet) IndexOf(name string) int {
	for i, sensor := range s {
		if sensor.Name == name {
			return i
		}
	}
	return -1
}
