package monitor

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/banshee-data/sensormap/internal/httputil"
	"github.com/banshee-data/sensormap/internal/version"
)

// WebServer serves the monitor over HTTP.
type WebServer struct {
	address  string
	monitor  *Monitor
	pipeline Pipeline
	extra    func() any
	server   *http.Server
}

// WebServerConfig contains configuration options for the web server.
type WebServerConfig struct {
	Address  string
	Monitor  *Monitor
	Pipeline Pipeline
	// Extra, if set, is reported under "extra" in /api/status.
	Extra func() any
}

// NewWebServer creates a new web server with the provided configuration.
func NewWebServer(config WebServerConfig) *WebServer {
	ws := &WebServer{
		address:  config.Address,
		monitor:  config.Monitor,
		pipeline: config.Pipeline,
		extra:    config.Extra,
	}
	if ws.monitor == nil {
		ws.monitor = New()
	}
	ws.server = &http.Server{
		Addr:              ws.address,
		Handler:           ws.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return ws
}

// Handler returns the route table.
func (ws *WebServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", ws.handleHealth)
	mux.HandleFunc("/api/status", ws.handleStatus)
	mux.HandleFunc("/api/diagnostics", ws.handleDiagnostics)
	mux.HandleFunc("/debug/frame", ws.handleFrameChart)
	mux.HandleFunc("/debug/colormap", ws.handleColormapChart)
	mux.HandleFunc("/debug/snapshot.png", ws.handleSnapshotPNG)
	mux.HandleFunc("/ws/frames", ws.monitor.hub.serveWS)
	return mux
}

// Start serves until ctx is cancelled, then shuts down.
func (ws *WebServer) Start(ctx context.Context) error {
	lis, err := net.Listen("tcp", ws.address)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", ws.address, err)
	}
	errCh := make(chan error, 1)
	go func() {
		logf("starting HTTP server on %s", lis.Addr())
		if err := ws.server.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	logf("shutting down HTTP server...")
	ws.monitor.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := ws.server.Shutdown(shutdownCtx); err != nil {
		logf("HTTP server shutdown error: %v", err)
		if err := ws.server.Close(); err != nil {
			logf("HTTP server force close error: %v", err)
		}
	}
	logf("HTTP server routine stopped")
	return nil
}

func (ws *WebServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok", "version": version.String()})
}

// statusResponse is the body of /api/status.
type statusResponse struct {
	Pipeline    any              `json:"pipeline,omitempty"`
	Operator    *OperatorSummary `json:"operator,omitempty"`
	RawFrames   uint64           `json:"raw_frames"`
	ColorFrames uint64           `json:"color_frames"`
	WSClients   int              `json:"ws_clients"`
	WSDropped   uint64           `json:"ws_dropped"`
	Extra       any              `json:"extra,omitempty"`
}

func (ws *WebServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	if !httputil.RequireMethod(w, r, http.MethodGet) {
		return
	}
	resp := statusResponse{
		Operator:  ws.monitor.Operator(),
		WSClients: ws.monitor.hub.count(),
		WSDropped: ws.monitor.hub.dropped.Load(),
	}
	resp.RawFrames, resp.ColorFrames = ws.monitor.Counters()
	if ws.pipeline != nil {
		resp.Pipeline = ws.pipeline.Status()
	}
	if ws.extra != nil {
		resp.Extra = ws.extra()
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

func (ws *WebServer) handleDiagnostics(w http.ResponseWriter, r *http.Request) {
	if !httputil.RequireMethod(w, r, http.MethodGet) {
		return
	}
	httputil.WriteJSON(w, http.StatusOK, ws.monitor.Diagnostics())
}
