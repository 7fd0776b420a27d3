package models

import (
	"fmt"

	"github.com/drblury/framepub/internal/runtime/buffer"
	"github.com/drblury/framepub/internal/runtime/jsoncodec"
)

// FramedBinaryMessage is a binary payload tagged with a frame id and an
// encoding format. The frame id and format are written once by the
// constructor; Data is the only buffer callers may touch.
type FramedBinaryMessage struct {
	frameID *buffer.Bounded
	format  *buffer.Bounded
	Data    *buffer.Bounded
}

// NewFramedBinaryMessage allocates the three buffers of the message. The
// label buffers are sized exactly to their strings; the payload buffer holds
// payloadCapacity bytes and starts empty.
func NewFramedBinaryMessage(frameID, format string, payloadCapacity int) (*FramedBinaryMessage, error) {
	id, err := buffer.NewFromString(frameID)
	if err != nil {
		return nil, fmt.Errorf("frame id: %w", err)
	}
	tag, err := buffer.NewFromString(format)
	if err != nil {
		id.Release()
		return nil, fmt.Errorf("format: %w", err)
	}
	data, err := buffer.New(payloadCapacity)
	if err != nil {
		id.Release()
		tag.Release()
		return nil, fmt.Errorf("payload: %w", err)
	}
	return &FramedBinaryMessage{frameID: id, format: tag, Data: data}, nil
}

// FrameID returns the frame id label.
func (m *FramedBinaryMessage) FrameID() string { return m.frameID.String() }

// Format returns the encoding tag of the payload.
func (m *FramedBinaryMessage) Format() string { return m.format.String() }

// RefillPayload overwrites the payload with src.
func (m *FramedBinaryMessage) RefillPayload(src []byte) error {
	return m.Data.Write(src)
}

// Release frees all three buffers.
func (m *FramedBinaryMessage) Release() {
	m.frameID.Release()
	m.format.Release()
	m.Data.Release()
}

func (m *FramedBinaryMessage) SchemaName() string  { return FrameSchema }
func (m *FramedBinaryMessage) ContentType() string { return ContentTypeJSON }

// FrameHeader is the wire form of the message header.
type FrameHeader struct {
	FrameID string `json:"frame_id"`
}

// Frame is the wire form of a FramedBinaryMessage. Data is base64 in JSON.
type Frame struct {
	Header FrameHeader `json:"header"`
	Format string      `json:"format"`
	Data   []byte      `json:"data"`
}

// Marshal encodes the message as JSON.
func (m *FramedBinaryMessage) Marshal() ([]byte, error) {
	payload, err := jsoncodec.Marshal(Frame{
		Header: FrameHeader{FrameID: m.FrameID()},
		Format: m.Format(),
		Data:   m.Data.Bytes(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal frame: %w", err)
	}
	return payload, nil
}

// DecodeFrame parses a payload produced by FramedBinaryMessage.Marshal.
func DecodeFrame(payload []byte) (Frame, error) {
	var f Frame
	if err := jsoncodec.Unmarshal(payload, &f); err != nil {
		return Frame{}, fmt.Errorf("failed to decode frame: %w", err)
	}
	return f, nil
}
