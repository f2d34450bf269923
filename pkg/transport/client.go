package transport

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// Dial opens one gRPC connection to target and starts the bidirectional
// Channel stream, returning a Channel ready for Send/Recv. The caller
// owns the returned *grpc.ClientConn's lifetime via the returned closer.
func Dial(ctx context.Context, target string) (*Channel, func() error, error) {
	conn, err := grpc.NewClient(target,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.ForceCodec(jsonCodec{})),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("transport: dial %s: %w", target, err)
	}

	fullMethod := fmt.Sprintf("/%s/Channel", serviceName)
	stream, err := conn.NewStream(ctx, &ServiceDesc.Streams[0], fullMethod)
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("transport: open channel to %s: %w", target, err)
	}

	ch := newChannel(target, stream)
	return ch, conn.Close, nil
}

// ReconnectSchedule implements the slave-side reconnection policy of
// §4.1: 1s, 2s, 5s, then 10s for up to 5 attempts, 30s for up to 12
// attempts, and 1 minute indefinitely thereafter. attempt is 1-based
// (the delay to wait *before* that attempt).
func ReconnectSchedule(attempt int) time.Duration {
	switch {
	case attempt <= 0:
		return 0
	case attempt == 1:
		return 1 * time.Second
	case attempt == 2:
		return 2 * time.Second
	case attempt == 3:
		return 5 * time.Second
	case attempt <= 3+5:
		return 10 * time.Second
	case attempt <= 3+5+12:
		return 30 * time.Second
	default:
		return 1 * time.Minute
	}
}
