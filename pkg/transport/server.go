package transport

import (
	"fmt"
	"net"
	"sync"

	"github.com/google/uuid"
	"google.golang.org/grpc"
)

// Handler receives inbound frames and disconnect notifications for every
// channel a Server accepts. AgentConnectionManager (pkg/connection)
// implements Handler.
type Handler interface {
	// HandleFrame processes one inbound frame. Called synchronously from
	// ch's receive loop; implementations must not block indefinitely.
	HandleFrame(ch *Channel, f *Frame)
	// HandleDisconnect is called exactly once, after the receive loop
	// for ch has exited for any reason.
	HandleDisconnect(ch *Channel)
}

// Server is the Master-side endpoint: a gRPC server exposing the single
// Channel RPC over the JSON codec.
type Server struct {
	grpcServer *grpc.Server
	handler    Handler

	mu       sync.Mutex
	channels map[string]*Channel
}

// NewServer constructs a Server. Call Serve to start accepting
// connections.
func NewServer(handler Handler) *Server {
	s := &Server{
		handler:  handler,
		channels: make(map[string]*Channel),
	}
	s.grpcServer = grpc.NewServer(grpc.ForceServerCodec(jsonCodec{}))
	s.grpcServer.RegisterService(&ServiceDesc, s)
	return s
}

// Serve blocks, accepting connections on lis until Stop is called.
func (s *Server) Serve(lis net.Listener) error {
	return s.grpcServer.Serve(lis)
}

// Stop gracefully stops the server, waiting for in-flight streams.
func (s *Server) Stop() {
	s.grpcServer.GracefulStop()
}

// Channel implements channelServer: one call per accepted slave stream,
// running for the stream's lifetime.
func (s *Server) Channel(stream grpc.ServerStream) error {
	handle := uuid.NewString()
	ch := newChannel(handle, stream)

	s.mu.Lock()
	s.channels[handle] = ch
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.channels, handle)
		s.mu.Unlock()
		ch.markClosed()
		s.handler.HandleDisconnect(ch)
	}()

	for {
		f, err := ch.Recv()
		if err != nil {
			return fmt.Errorf("transport: channel %s receive loop ended: %w", handle, err)
		}
		s.handler.HandleFrame(ch, f)
	}
}

// Lookup returns the channel for handle, if still open.
func (s *Server) Lookup(handle string) (*Channel, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, ok := s.channels[handle]
	return ch, ok
}
