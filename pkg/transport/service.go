package transport

import "google.golang.org/grpc"

const serviceName = "sitekeeper.transport.Channel"

// channelServer is the handler-side contract ServiceDesc dispatches to.
// Server implements it; the method name matches the single StreamDesc
// below.
type channelServer interface {
	Channel(stream grpc.ServerStream) error
}

func channelHandler(srv any, stream grpc.ServerStream) error {
	return srv.(channelServer).Channel(stream)
}

// ServiceDesc is a hand-written grpc.ServiceDesc for the single
// bidirectional-streaming "Channel" RPC, in place of protoc-generated
// registration code (see doc.go for why).
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*channelServer)(nil),
	Methods:     []grpc.MethodDesc{},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Channel",
			Handler:       channelHandler,
			ServerStreams: true,
			ClientStreams: true,
		},
	},
	Metadata: "pkg/transport/service.go",
}
