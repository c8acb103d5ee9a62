package visualiser

import (
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc"

	"github.com/banshee-data/sensormap/internal/monitoring"
	"github.com/banshee-data/sensormap/internal/stream"
)

var logf = monitoring.Component("Visualiser")

// Config holds configuration for the frame publisher.
type Config struct {
	// ListenAddr is the gRPC listen address (e.g. "localhost:50061").
	ListenAddr string

	// MaxClients caps concurrent StreamFrames clients. Zero means no limit.
	MaxClients int

	// QueueSize is the depth of the broadcast queue.
	QueueSize int

	// ClientBuffer is the per-client frame buffer. A client that falls
	// further behind loses frames.
	ClientBuffer int
}

// DefaultConfig returns a default configuration.
func DefaultConfig() Config {
	return Config{
		ListenAddr:   "localhost:50061",
		MaxClients:   8,
		QueueSize:    100,
		ClientBuffer: 10,
	}
}

// Publisher receives pipeline output and broadcasts it to gRPC clients. It
// implements stream.Sink.
type Publisher struct {
	config   Config
	server   *grpc.Server
	listener net.Listener

	frameChan chan *FrameBundle
	clients   map[string]*clientStream
	clientsMu sync.RWMutex

	frameCount    atomic.Uint64
	clientCount   atomic.Int32
	droppedFrames atomic.Uint64
	diagnostics   atomic.Uint64

	running atomic.Bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

var _ stream.Sink = (*Publisher)(nil)

type clientStream struct {
	id      string
	request *StreamRequest
	frameCh chan *FrameBundle
	doneCh  chan struct{}
}

// NewPublisher creates a Publisher. Nothing is served until Start.
func NewPublisher(cfg Config) *Publisher {
	def := DefaultConfig()
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = def.QueueSize
	}
	if cfg.ClientBuffer <= 0 {
		cfg.ClientBuffer = def.ClientBuffer
	}
	return &Publisher{
		config:    cfg,
		frameChan: make(chan *FrameBundle, cfg.QueueSize),
		clients:   make(map[string]*clientStream),
		stopCh:    make(chan struct{}),
	}
}

// Start listens on the configured address and serves srv.
func (p *Publisher) Start(srv *Server) error {
	if p.running.Load() {
		return fmt.Errorf("publisher already running")
	}
	lis, err := net.Listen("tcp", p.config.ListenAddr)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	return p.Serve(lis, srv)
}

// Serve serves srv on lis in the background.
func (p *Publisher) Serve(lis net.Listener, srv *Server) error {
	if !p.running.CompareAndSwap(false, true) {
		return fmt.Errorf("publisher already running")
	}
	p.listener = lis
	p.server = grpc.NewServer(grpc.ForceServerCodec(jsonCodec{}))
	RegisterSurfaceStreamServer(p.server, srv)

	p.wg.Add(2)
	go p.broadcastLoop()
	go func() {
		defer p.wg.Done()
		logf("gRPC server listening on %s", lis.Addr())
		if err := p.server.Serve(lis); err != nil && p.running.Load() {
			logf("gRPC server error: %v", err)
		}
	}()
	return nil
}

// Addr returns the listen address, or nil before Start.
func (p *Publisher) Addr() net.Addr {
	if p.listener == nil {
		return nil
	}
	return p.listener.Addr()
}

// Stop ends every client stream and stops the server.
func (p *Publisher) Stop() {
	if !p.running.CompareAndSwap(true, false) {
		return
	}
	close(p.stopCh)
	if p.server != nil {
		p.server.Stop()
	}
	p.wg.Wait()
	logf("gRPC server stopped")
}

// Publish queues a bundle for broadcast. It never blocks; when the queue is
// full the bundle is dropped and counted.
func (p *Publisher) Publish(b *FrameBundle) {
	if !p.running.Load() || b == nil {
		return
	}
	b.FrameID = p.frameCount.Add(1)
	select {
	case p.frameChan <- b:
	default:
		dropped := p.droppedFrames.Add(1)
		if dropped == 1 || dropped%100 == 0 {
			logf("broadcast queue full, dropped frame %d (total dropped: %d)", b.FrameID, dropped)
		}
	}
}

func (p *Publisher) OnRawData(f stream.RawFrame)     { p.Publish(valuesBundle(f)) }
func (p *Publisher) OnColorData(f stream.ColorFrame) { p.Publish(colorsBundle(f)) }

func (p *Publisher) OnOperator(u stream.OperatorUpdate) {
	if u.Operator == nil {
		return
	}
	p.Publish(operatorBundle(u, time.Now()))
}

// OnDiagnostic only counts; diagnostics are not streamed to viewers.
func (p *Publisher) OnDiagnostic(d stream.Diagnostic) {
	p.diagnostics.Add(1)
}

func (p *Publisher) broadcastLoop() {
	defer p.wg.Done()
	for {
		select {
		case <-p.stopCh:
			return
		case frame := <-p.frameChan:
			p.clientsMu.RLock()
			for _, c := range p.clients {
				if !c.request.wants(frame.FrameType) {
					continue
				}
				select {
				case c.frameCh <- frame:
				default:
					// Slow client.
					p.droppedFrames.Add(1)
				}
			}
			p.clientsMu.RUnlock()
		}
	}
}

// addClient registers a client, or returns nil when MaxClients is reached.
func (p *Publisher) addClient(req *StreamRequest) *clientStream {
	p.clientsMu.Lock()
	defer p.clientsMu.Unlock()
	if p.config.MaxClients > 0 && len(p.clients) >= p.config.MaxClients {
		return nil
	}
	c := &clientStream{
		id:      uuid.NewString(),
		request: req,
		frameCh: make(chan *FrameBundle, p.config.ClientBuffer),
		doneCh:  make(chan struct{}),
	}
	p.clients[c.id] = c
	n := p.clientCount.Add(1)
	logf("client connected: %s name=%q (total: %d)", c.id, req.ClientName, n)
	return c
}

func (p *Publisher) removeClient(id string) {
	p.clientsMu.Lock()
	c, ok := p.clients[id]
	if ok {
		close(c.doneCh)
		delete(p.clients, id)
	}
	p.clientsMu.Unlock()
	if ok {
		n := p.clientCount.Add(-1)
		logf("client disconnected: %s (remaining: %d)", id, n)
	}
}

// Stats returns current publisher statistics.
func (p *Publisher) Stats() PublisherStats {
	return PublisherStats{
		FrameCount:    p.frameCount.Load(),
		DroppedFrames: p.droppedFrames.Load(),
		Diagnostics:   p.diagnostics.Load(),
		ClientCount:   p.clientCount.Load(),
		Running:       p.running.Load(),
	}
}

// PublisherStats contains publisher statistics.
type PublisherStats struct {
	FrameCount    uint64 `json:"frame_count"`
	DroppedFrames uint64 `json:"dropped_frames"`
	Diagnostics   uint64 `json:"diagnostics"`
	ClientCount   int32  `json:"client_count"`
	Running       bool   `json:"running"`
}
