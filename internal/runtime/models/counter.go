package models

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

var counterMarshalOptions = protojson.MarshalOptions{
	EmitUnpopulated: true,
}

// CounterMessage is a signed 32-bit counter. Increments wrap on overflow.
type CounterMessage struct {
	Value int32
}

// Tick advances the counter by one.
func (m *CounterMessage) Tick() {
	m.Value++
}

func (m *CounterMessage) SchemaName() string  { return CounterSchema }
func (m *CounterMessage) ContentType() string { return ContentTypeJSON }

// Marshal renders the counter as a protobuf Int32Value in protojson form.
func (m *CounterMessage) Marshal() ([]byte, error) {
	payload, err := counterMarshalOptions.Marshal(wrapperspb.Int32(m.Value))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal counter: %w", err)
	}
	return payload, nil
}

// DecodeCounter parses a payload produced by CounterMessage.Marshal.
func DecodeCounter(payload []byte) (int32, error) {
	var v wrapperspb.Int32Value
	if err := protojson.Unmarshal(payload, &v); err != nil {
		return 0, fmt.Errorf("failed to decode counter: %w", err)
	}
	return v.GetValue(), nil
}
