package transport

import (
	"fmt"
	"sync"
)

// Stream is the subset of grpc.ServerStream/grpc.ClientStream Channel
// needs; both satisfy it, so Channel wraps either side identically.
type Stream interface {
	SendMsg(m any) error
	RecvMsg(m any) error
}

// Channel is one established Master↔Slave connection. A reconnect always
// produces a new Channel with a new Handle; channels are never reused
// across reconnects (§4.1).
type Channel struct {
	Handle   string
	NodeName string // set once SlaveRegistration is observed

	stream    Stream
	sendMu    sync.Mutex
	closed    chan struct{}
	closeOnce sync.Once
}

func newChannel(handle string, s Stream) *Channel {
	return &Channel{Handle: handle, stream: s, closed: make(chan struct{})}
}

// NewChannelForTesting constructs a Channel around an arbitrary Stream,
// for tests in other packages that need to drive connection/dispatcher
// behavior without a real gRPC connection.
func NewChannelForTesting(handle string, s Stream) *Channel {
	return newChannel(handle, s)
}

// Send marshals and writes f. SendMsg on a gRPC stream is not safe for
// concurrent use, so sends are serialized per channel.
func (c *Channel) Send(f *Frame) error {
	select {
	case <-c.closed:
		return ErrChannelClosed
	default:
	}

	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	if err := c.stream.SendMsg(f); err != nil {
		return fmt.Errorf("%w: %v", ErrChannelClosed, err)
	}
	return nil
}

// Recv blocks for the next inbound Frame. It is only ever called from
// the channel's single receive loop (server or client side).
func (c *Channel) Recv() (*Frame, error) {
	f := &Frame{}
	if err := c.stream.RecvMsg(f); err != nil {
		return nil, err
	}
	return f, nil
}

// Closed reports whether the channel has been marked closed.
func (c *Channel) Closed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

func (c *Channel) markClosed() {
	c.closeOnce.Do(func() { close(c.closed) })
}
