// Package models defines the two messages the node publishes and their wire
// encodings. Both messages are built once and mutated in place every tick.
package models

// Schema names carried in message metadata.
const (
	CounterSchema = "std_msgs/msg/Int32"
	FrameSchema   = "sensor_msgs/msg/CompressedImage"
)

// Defaults for the framed binary message.
const (
	DefaultFrameID         = "my_image_topic"
	DefaultFormat          = "jpeg"
	DefaultPayloadCapacity = 32
)

// Content types reported alongside encoded payloads.
const (
	ContentTypeJSON = "application/json"
)

// Message is implemented by every publishable model.
type Message interface {
	// SchemaName returns the message type name, e.g. "std_msgs/msg/Int32".
	SchemaName() string

	// ContentType describes the encoding produced by Marshal.
	ContentType() string

	// Marshal encodes the current state of the message.
	Marshal() ([]byte, error)
}
