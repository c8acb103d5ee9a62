package visualiser

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
)

// Client is a thin caller for the frame service.
type Client struct {
	conn grpc.ClientConnInterface
}

// NewClient wraps an established connection.
func NewClient(conn grpc.ClientConnInterface) *Client {
	return &Client{conn: conn}
}

// GetStatus calls GetStatus.
func (c *Client) GetStatus(ctx context.Context) (*StatusResponse, error) {
	return c.unary(ctx, GetStatusMethod)
}

// Pause calls Pause.
func (c *Client) Pause(ctx context.Context) (*StatusResponse, error) {
	return c.unary(ctx, PauseMethod)
}

// Resume calls Resume.
func (c *Client) Resume(ctx context.Context) (*StatusResponse, error) {
	return c.unary(ctx, ResumeMethod)
}

func (c *Client) unary(ctx context.Context, method string) (*StatusResponse, error) {
	out := new(StatusResponse)
	if err := c.conn.Invoke(ctx, method, &StatusRequest{}, out, grpc.CallContentSubtype(codecName)); err != nil {
		return nil, err
	}
	return out, nil
}

// FrameReceiver reads bundles from a StreamFrames call.
type FrameReceiver struct {
	cs grpc.ClientStream
}

// Recv blocks for the next bundle.
func (r *FrameReceiver) Recv() (*FrameBundle, error) {
	b := new(FrameBundle)
	if err := r.cs.RecvMsg(b); err != nil {
		return nil, err
	}
	return b, nil
}

// StreamFrames opens a frame stream. Cancel ctx to end it.
func (c *Client) StreamFrames(ctx context.Context, req *StreamRequest) (*FrameReceiver, error) {
	cs, err := c.conn.NewStream(ctx, &SurfaceStreamServiceDesc.Streams[0], StreamFramesMethod, grpc.CallContentSubtype(codecName))
	if err != nil {
		return nil, err
	}
	if err := cs.SendMsg(req); err != nil {
		return nil, fmt.Errorf("failed to send stream request: %w", err)
	}
	if err := cs.CloseSend(); err != nil {
		return nil, fmt.Errorf("failed to close send side: %w", err)
	}
	return &FrameReceiver{cs: cs}, nil
}
