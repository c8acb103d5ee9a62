package visualiser

import (
	"context"
	"testing"
	"time"

	"github.com/golang/geo/r3"

	"github.com/banshee-data/sensormap/internal/geometry"
	"github.com/banshee-data/sensormap/internal/interp"
	"github.com/banshee-data/sensormap/internal/stream"
)

func testOperator(t *testing.T) *interp.Operator {
	t.Helper()
	res, err := interp.Build(context.Background(), interp.Params{
		Surface: &geometry.Surface{
			Vertices: []r3.Vector{{X: 0}, {X: 1}, {X: 2}, {X: 3}},
			Faces:    []geometry.Face{{0, 1, 2}, {1, 2, 3}},
		},
		Sensors: geometry.SensorSet{
			{Name: "EEG 001", Kind: geometry.KindEEG, Position: r3.Vector{X: 0}},
			{Name: "EEG 002", Kind: geometry.KindEEG, Position: r3.Vector{X: 3}},
		},
		Kind:           geometry.KindEEG,
		CancelDistance: 1.5,
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return res.Operator
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.ListenAddr != "localhost:50061" {
		t.Errorf("expected ListenAddr=localhost:50061, got %s", cfg.ListenAddr)
	}
	if cfg.ClientBuffer != 10 {
		t.Errorf("expected ClientBuffer=10, got %d", cfg.ClientBuffer)
	}
}

func TestPublisherIgnoresFramesWhenStopped(t *testing.T) {
	pub := NewPublisher(Config{})
	pub.OnRawData(stream.RawFrame{Seq: 1})

	stats := pub.Stats()
	if stats.Running {
		t.Error("expected Running=false before Start")
	}
	if stats.FrameCount != 0 {
		t.Errorf("expected FrameCount=0, got %d", stats.FrameCount)
	}
}

func TestPublisherStartStop(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ListenAddr = "localhost:0"
	pub := NewPublisher(cfg)

	if err := pub.Start(NewServer(pub, nil)); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if !pub.Stats().Running {
		t.Error("expected Running=true after Start")
	}
	if pub.Addr() == nil {
		t.Error("expected a bound address")
	}
	if err := pub.Start(NewServer(pub, nil)); err == nil {
		t.Error("expected error on second Start")
	}

	pub.Stop()
	pub.Stop()
	if pub.Stats().Running {
		t.Error("expected Running=false after Stop")
	}
}

func TestPublisherDropsForSlowClient(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ListenAddr = "localhost:0"
	cfg.ClientBuffer = 2
	pub := NewPublisher(cfg)
	if err := pub.Start(NewServer(pub, nil)); err != nil {
		t.Fatal(err)
	}
	defer pub.Stop()

	client := pub.addClient(&StreamRequest{})
	defer pub.removeClient(client.id)

	for i := 0; i < 5; i++ {
		pub.OnRawData(stream.RawFrame{Seq: uint64(i + 1), Values: []float64{float64(i)}})
	}

	deadline := time.Now().Add(5 * time.Second)
	for pub.Stats().DroppedFrames < 3 {
		if time.Now().After(deadline) {
			t.Fatalf("expected 3 drops, stats=%+v", pub.Stats())
		}
		time.Sleep(time.Millisecond)
	}
	if got := len(client.frameCh); got != 2 {
		t.Errorf("client buffer holds %d frames, want 2", got)
	}
	first := <-client.frameCh
	if first.Seq != 1 {
		t.Errorf("first buffered frame seq = %d, want 1", first.Seq)
	}
}

func TestPublisherCountsDiagnostics(t *testing.T) {
	pub := NewPublisher(DefaultConfig())
	pub.OnDiagnostic(stream.Diagnostic{Kind: stream.DiagDimensionMismatch})
	if got := pub.Stats().Diagnostics; got != 1 {
		t.Errorf("Diagnostics = %d, want 1", got)
	}
}

func TestStreamRequestWants(t *testing.T) {
	tests := []struct {
		req  *StreamRequest
		typ  FrameType
		want bool
	}{
		{nil, FrameTypeColors, true},
		{&StreamRequest{}, FrameTypeOperator, true},
		{&StreamRequest{IncludeColors: true}, FrameTypeColors, true},
		{&StreamRequest{IncludeColors: true}, FrameTypeValues, false},
		{&StreamRequest{IncludeValues: true, IncludeOperator: true}, FrameTypeOperator, true},
	}
	for _, tt := range tests {
		if got := tt.req.wants(tt.typ); got != tt.want {
			t.Errorf("%+v.wants(%s) = %v, want %v", tt.req, tt.typ, got, tt.want)
		}
	}
}
