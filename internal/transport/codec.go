// Package transport carries the remote services over gRPC. Messages are
// google.protobuf.Struct values holding a JSON envelope {"data": ...}, so the
// service needs no generated code and the model types keep their JSON shape.
package transport

import (
	"bytes"
	"encoding/json"
	"fmt"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

type envelope struct {
	Data any `json:"data"`
}

type rawEnvelope struct {
	Data json.RawMessage `json:"data"`
}

func encode(v any) (*structpb.Struct, error) {
	raw, err := json.Marshal(envelope{Data: v})
	if err != nil {
		return nil, fmt.Errorf("encode message: %w", err)
	}
	s := &structpb.Struct{}
	if err := protojson.Unmarshal(raw, s); err != nil {
		return nil, fmt.Errorf("encode message: %w", err)
	}
	return s, nil
}

func decode(s *structpb.Struct, dst any) error {
	raw, err := protojson.Marshal(s)
	if err != nil {
		return fmt.Errorf("decode message: %w", err)
	}
	var env rawEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("decode message: %w", err)
	}
	if len(env.Data) == 0 || bytes.Equal(env.Data, []byte("null")) {
		return nil
	}
	if err := json.Unmarshal(env.Data, dst); err != nil {
		return fmt.Errorf("decode message: %w", err)
	}
	return nil
}
