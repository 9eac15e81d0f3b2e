// Package rpc defines the wire contract the client runtime consumes from
// the authority: a small set of RPCs carried over a gRPC channel. The
// authority's actual protobuf service definition is out of scope (the
// spec treats it as an opaque collaborator); this package expresses the
// same operations as a plain Go client interface over google.golang.org/grpc,
// using a JSON wire codec in place of generated protobuf message types.
package rpc

import (
	"encoding/json"
	"fmt"

	"google.golang.org/grpc/encoding"
)

const codecName = "authly-json"

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

// jsonCodec marshals the plain Go request/response structs in this
// package through encoding/json. Registering it under a distinct name
// (rather than overriding "proto") keeps this opt-in per call via
// grpc.CallContentSubtype, so a future real protobuf service definition
// can coexist on the same channel.
type jsonCodec struct{}

func (jsonCodec) Name() string { return codecName }

func (jsonCodec) Marshal(v any) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("rpc: marshal: %w", err)
	}
	return b, nil
}

func (jsonCodec) Unmarshal(data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("rpc: unmarshal: %w", err)
	}
	return nil
}
