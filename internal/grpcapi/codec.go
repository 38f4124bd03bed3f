package grpcapi

import "encoding/json"

// jsonCodec lets BatchService exchange plain Go structs over grpc
// without a protoc-generated message type: every request/response in
// this package is a normal struct tagged for encoding/json, and this
// codec is what grpc-go calls to (de)serialize it on the wire.
type jsonCodec struct{}

func (jsonCodec) Marshal(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec) Unmarshal(data []byte, v interface{}) error {
	return json.Unmarshal(data, v)
}

func (jsonCodec) Name() string {
	return "json"
}
