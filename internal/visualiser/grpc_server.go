package visualiser

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/banshee-data/sensormap/internal/stream"
)

const serviceName = "sensormap.SurfaceStream"

// Full method names.
const (
	StreamFramesMethod = "/" + serviceName + "/StreamFrames"
	GetStatusMethod    = "/" + serviceName + "/GetStatus"
	PauseMethod        = "/" + serviceName + "/Pause"
	ResumeMethod       = "/" + serviceName + "/Resume"
)

// SurfaceStreamServer is the server API for the frame service.
type SurfaceStreamServer interface {
	StreamFrames(*StreamRequest, FrameStream) error
	GetStatus(context.Context, *StatusRequest) (*StatusResponse, error)
	Pause(context.Context, *StatusRequest) (*StatusResponse, error)
	Resume(context.Context, *StatusRequest) (*StatusResponse, error)
}

// FrameStream is the server side of a StreamFrames call.
type FrameStream interface {
	Send(*FrameBundle) error
	grpc.ServerStream
}

type frameStream struct {
	grpc.ServerStream
}

func (s *frameStream) Send(b *FrameBundle) error { return s.ServerStream.SendMsg(b) }

// SurfaceStreamServiceDesc describes the frame service for grpc.Server.
var SurfaceStreamServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*SurfaceStreamServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetStatus", Handler: unaryHandler(GetStatusMethod, SurfaceStreamServer.GetStatus)},
		{MethodName: "Pause", Handler: unaryHandler(PauseMethod, SurfaceStreamServer.Pause)},
		{MethodName: "Resume", Handler: unaryHandler(ResumeMethod, SurfaceStreamServer.Resume)},
	},
	Streams: []grpc.StreamDesc{
		{StreamName: "StreamFrames", Handler: streamFramesHandler, ServerStreams: true},
	},
	Metadata: "sensormap/surface_stream",
}

// RegisterSurfaceStreamServer registers srv on s.
func RegisterSurfaceStreamServer(s grpc.ServiceRegistrar, srv SurfaceStreamServer) {
	s.RegisterService(&SurfaceStreamServiceDesc, srv)
}

type statusMethod func(SurfaceStreamServer, context.Context, *StatusRequest) (*StatusResponse, error)

func unaryHandler(fullMethod string, call statusMethod) func(any, context.Context, func(any) error, grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(StatusRequest)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(SurfaceStreamServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(SurfaceStreamServer), ctx, req.(*StatusRequest))
		}
		return interceptor(ctx, in, info, handler)
	}
}

func streamFramesHandler(srv any, ss grpc.ServerStream) error {
	req := new(StreamRequest)
	if err := ss.RecvMsg(req); err != nil {
		return err
	}
	return srv.(SurfaceStreamServer).StreamFrames(req, &frameStream{ss})
}

// Pipeline is the part of the streaming controller the service drives.
type Pipeline interface {
	Status() stream.Status
	SetStreamingState(on bool)
}

// Server implements SurfaceStreamServer on top of a Publisher.
type Server struct {
	publisher *Publisher
	pipeline  Pipeline
}

var _ SurfaceStreamServer = (*Server)(nil)

// NewServer creates a service backed by publisher. pipeline may be nil, in
// which case Pause and Resume are unavailable.
func NewServer(publisher *Publisher, pipeline Pipeline) *Server {
	return &Server{publisher: publisher, pipeline: pipeline}
}

// StreamFrames streams published frames until the client goes away or the
// publisher stops.
func (s *Server) StreamFrames(req *StreamRequest, fs FrameStream) error {
	client := s.publisher.addClient(req)
	if client == nil {
		return status.Errorf(codes.ResourceExhausted, "client limit %d reached", s.publisher.config.MaxClients)
	}
	defer s.publisher.removeClient(client.id)

	ctx := fs.Context()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.publisher.stopCh:
			return status.Error(codes.Unavailable, "publisher stopped")
		case frame := <-client.frameCh:
			if err := fs.Send(frame); err != nil {
				logf("send to %s failed: %v", client.id, err)
				return err
			}
		}
	}
}

func (s *Server) status() *StatusResponse {
	resp := &StatusResponse{Publisher: s.publisher.Stats()}
	if s.pipeline != nil {
		resp.Stream = s.pipeline.Status()
	}
	return resp
}

// GetStatus reports the pipeline and publisher state.
func (s *Server) GetStatus(ctx context.Context, _ *StatusRequest) (*StatusResponse, error) {
	return s.status(), nil
}

// Pause stops the tick timer.
func (s *Server) Pause(ctx context.Context, _ *StatusRequest) (*StatusResponse, error) {
	if s.pipeline == nil {
		return nil, status.Error(codes.Unimplemented, "no pipeline attached")
	}
	s.pipeline.SetStreamingState(false)
	return s.status(), nil
}

// Resume restarts the tick timer.
func (s *Server) Resume(ctx context.Context, _ *StatusRequest) (*StatusResponse, error) {
	if s.pipeline == nil {
		return nil, status.Error(codes.Unimplemented, "no pipeline attached")
	}
	s.pipeline.SetStreamingState(true)
	return s.status(), nil
}
