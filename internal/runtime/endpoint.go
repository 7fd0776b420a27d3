package runtime

import (
	"context"
	"fmt"

	"github.com/ThreeDotsLabs/watermill/message"

	errspkg "github.com/drblury/framepub/internal/runtime/errors"
	idspkg "github.com/drblury/framepub/internal/runtime/ids"
	metadatapkg "github.com/drblury/framepub/internal/runtime/metadata"
	"github.com/drblury/framepub/internal/runtime/models"
)

// Publisher is a publish endpoint bound to one topic.
type Publisher interface {
	Topic() string
	Publish(ctx context.Context, msg models.Message, md metadatapkg.Metadata) error
}

// Endpoint publishes messages of a single schema to a single topic.
type Endpoint struct {
	publisher message.Publisher
	topic     string
	schema    string
}

var _ Publisher = (*Endpoint)(nil)

// NewEndpoint binds publisher to topic for messages of the given schema.
// An empty schema accepts any message.
func NewEndpoint(publisher message.Publisher, topic string, schema string) (*Endpoint, error) {
	if publisher == nil {
		return nil, fmt.Errorf("%w: %w", errspkg.ErrEndpointInit, errspkg.ErrPublisherRequired)
	}
	if topic == "" {
		return nil, fmt.Errorf("%w: %w", errspkg.ErrEndpointInit, errspkg.ErrTopicRequired)
	}
	return &Endpoint{publisher: publisher, topic: topic, schema: schema}, nil
}

// Topic returns the topic the endpoint publishes to.
func (e *Endpoint) Topic() string { return e.topic }

// Schema returns the message type the endpoint accepts.
func (e *Endpoint) Schema() string { return e.schema }

// Publish encodes the current state of msg and hands it to the transport.
// Failures are returned as *errors.PublishError.
func (e *Endpoint) Publish(ctx context.Context, msg models.Message, md metadatapkg.Metadata) error {
	tick, _ := md.Tick()
	fail := func(err error) error {
		return &errspkg.PublishError{Topic: e.topic, Tick: tick, Err: err}
	}

	if msg == nil {
		return fail(errspkg.ErrMessageRequired)
	}
	if e.schema != "" && msg.SchemaName() != e.schema {
		return fail(fmt.Errorf("message type %s does not match endpoint type %s", msg.SchemaName(), e.schema))
	}

	wm, err := NewWatermillMessage(msg, md)
	if err != nil {
		return fail(err)
	}
	if ctx != nil {
		wm.SetContext(ctx)
	}

	if err := e.publisher.Publish(e.topic, wm); err != nil {
		return fail(err)
	}
	return nil
}

// NewWatermillMessage encodes msg into a Watermill message carrying md plus
// the schema and content type.
func NewWatermillMessage(msg models.Message, md metadatapkg.Metadata) (*message.Message, error) {
	if msg == nil {
		return nil, errspkg.ErrMessageRequired
	}

	payload, err := msg.Marshal()
	if err != nil {
		return nil, err
	}

	wm := message.NewMessage(idspkg.CreateULID(), payload)
	wm.Metadata = metadatapkg.ToWatermill(md)
	wm.Metadata.Set(metadatapkg.KeySchema, msg.SchemaName())
	wm.Metadata.Set(metadatapkg.KeyContentType, msg.ContentType())
	return wm, nil
}
