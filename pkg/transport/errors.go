package transport

import "errors"

// ErrDisconnected is returned by connection.Manager.SendToNode when the
// target node's registered channel is missing or already closed (§4.1).
var ErrDisconnected = errors.New("transport: not connected")

// ErrChannelClosed is returned by Channel.Send once the channel has been
// marked closed, and wraps any error from the underlying stream's
// SendMsg. Recv returns the stream's own error unwrapped.
var ErrChannelClosed = errors.New("transport: channel closed")
