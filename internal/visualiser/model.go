// Package visualiser streams surface frames to remote viewers over gRPC.
//
// A Publisher receives pipeline output as a stream.Sink, converts it into
// FrameBundles and fans them out to every connected StreamFrames client.
package visualiser

import (
	"time"

	"github.com/banshee-data/sensormap/internal/colormap"
	"github.com/banshee-data/sensormap/internal/stream"
)

// FrameType identifies the payload carried by a FrameBundle.
type FrameType int

const (
	FrameTypeValues   FrameType = iota + 1 // per-vertex raw values
	FrameTypeColors                        // per-vertex colors
	FrameTypeOperator                      // a new interpolation operator is live
)

func (t FrameType) String() string {
	switch t {
	case FrameTypeValues:
		return "values"
	case FrameTypeColors:
		return "colors"
	case FrameTypeOperator:
		return "operator"
	default:
		return "unknown"
	}
}

// FrameBundle is the wire model for one message on the frame stream.
type FrameBundle struct {
	FrameID        uint64    `json:"frame_id"`
	Seq            uint64    `json:"seq,omitempty"`
	TimestampNanos int64     `json:"timestamp_ns"`
	FrameType      FrameType `json:"frame_type"`

	Values []float64      `json:"values,omitempty"`
	Colors []colormap.RGB `json:"colors,omitempty"`
	NoData []int          `json:"no_data,omitempty"`

	Operator *OperatorInfo `json:"operator,omitempty"`
}

// OperatorInfo summarises an interpolation operator.
type OperatorInfo struct {
	ID             string   `json:"id"`
	Generation     uint64   `json:"generation"`
	Vertices       int      `json:"vertices"`
	Sensors        []string `json:"sensors"`
	Kernel         string   `json:"kernel"`
	CancelDistance float64  `json:"cancel_distance"`
	BadChannels    []string `json:"bad_channels,omitempty"`
	NNZ            int      `json:"nnz"`
	BuildMillis    float64  `json:"build_ms"`
}

func valuesBundle(f stream.RawFrame) *FrameBundle {
	return &FrameBundle{
		Seq:            f.Seq,
		TimestampNanos: f.Time.UnixNano(),
		FrameType:      FrameTypeValues,
		Values:         f.Values,
		NoData:         f.NoData,
	}
}

func colorsBundle(f stream.ColorFrame) *FrameBundle {
	return &FrameBundle{
		Seq:            f.Seq,
		TimestampNanos: f.Time.UnixNano(),
		FrameType:      FrameTypeColors,
		Colors:         f.Colors,
		NoData:         f.NoData,
	}
}

func operatorBundle(u stream.OperatorUpdate, now time.Time) *FrameBundle {
	op := u.Operator
	rows, _ := op.Dims()
	return &FrameBundle{
		TimestampNanos: now.UnixNano(),
		FrameType:      FrameTypeOperator,
		Operator: &OperatorInfo{
			ID:             op.ID.String(),
			Generation:     u.Generation,
			Vertices:       rows,
			Sensors:        u.Sensors.Names(),
			Kernel:         op.Kernel.String(),
			CancelDistance: op.CancelDistance,
			BadChannels:    op.BadChannels,
			NNZ:            op.NNZ(),
			BuildMillis:    float64(u.Elapsed.Microseconds()) / 1000,
		},
	}
}

// StreamRequest selects which frame types a client receives. With no flags
// set the client receives everything.
type StreamRequest struct {
	ClientName      string `json:"client_name,omitempty"`
	IncludeValues   bool   `json:"include_values,omitempty"`
	IncludeColors   bool   `json:"include_colors,omitempty"`
	IncludeOperator bool   `json:"include_operator,omitempty"`
}

func (r *StreamRequest) wants(t FrameType) bool {
	if r == nil || (!r.IncludeValues && !r.IncludeColors && !r.IncludeOperator) {
		return true
	}
	switch t {
	case FrameTypeValues:
		return r.IncludeValues
	case FrameTypeColors:
		return r.IncludeColors
	case FrameTypeOperator:
		return r.IncludeOperator
	}
	return false
}

// StatusRequest is the empty request for GetStatus, Pause and Resume.
type StatusRequest struct{}

// StatusResponse reports the pipeline and publisher state.
type StatusResponse struct {
	Stream    stream.Status  `json:"stream"`
	Publisher PublisherStats `json:"publisher"`
}
