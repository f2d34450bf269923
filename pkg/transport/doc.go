/*
Package transport implements the Master↔Slave control-plane channel
(C1): a persistent, ordered, bidirectional message stream per slave,
carrying the typed envelopes in §6 of the specification this module
implements.

# Why gRPC without protoc

The channel is a single bidirectional-streaming gRPC RPC ("Channel")
carrying Frame values. Frame is plain Go, JSON-tagged, and travels
through a hand-registered encoding.Codec (jsonCodec) rather than a
protoc-generated message — there is no .proto source for this project's
wire contract, so rather than author protoc output by hand (easy to get
subtly wrong and impossible to verify without the generator), the
service is wired directly against grpc's public, codec-agnostic stream
API: a grpc.ServiceDesc naming one bidi-streaming method, registered with
a Codec that marshals/unmarshals Frame as JSON instead of protobuf wire
format. grpc remains a real, exercised dependency; Frame's fields are
plain Go types (time.Time timestamps, JSON strings for the opaque
payloads), and no protobuf message type is used; only codegen is
skipped.

# Delivery semantics

At-most-once per direction per message; ordering preserved per
connection; no redelivery across a reconnect. A reconnect always
produces a fresh channel handle (an opaque string minted by the server
on stream accept). Send on a closed channel returns ErrChannelClosed.
ErrDisconnected is returned by connection.Manager.SendToNode when a
node's registered channel is missing or already closed; a node with no
registered entry gets connection.ErrNotFound instead.

# Reconnection policy

The slave agent (pkg/slave's Agent.Run) retries with
ReconnectSchedule, the schedule from §4.1: 1s, 2s, 5s,
then 10s for up to 5 attempts, 30s for up to 12 attempts, and 1 minute
indefinitely thereafter, until the process is shut down.
*/
package transport
