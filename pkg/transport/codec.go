package transport

import (
	"encoding/json"
	"fmt"

	"google.golang.org/grpc/encoding"
)

// jsonCodecName is registered as the gRPC content-subtype so both sides
// negotiate JSON framing instead of protobuf wire format.
const jsonCodecName = "sitekeeper-json"

// jsonCodec implements encoding.Codec by marshaling Frame values (and
// any other Go value passed to SendMsg/RecvMsg) as JSON. It is
// registered globally in init and selected via grpc.ForceCodec/
// grpc.ForceServerCodec at dial/serve time.
type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("transport: marshal frame: %w", err)
	}
	return data, nil
}

func (jsonCodec) Unmarshal(data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("transport: unmarshal frame: %w", err)
	}
	return nil
}

func (jsonCodec) Name() string {
	return jsonCodecName
}

func init() {
	encoding.RegisterCodec(jsonCodec{})
}
