package jetstream

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drblury/framepub/transport"
	"github.com/drblury/framepub/transport/transporttest"
)

func TestRegister(t *testing.T) {
	original := transport.DefaultRegistry
	defer func() { transport.DefaultRegistry = original }()

	transport.DefaultRegistry = transport.NewRegistry()
	Register()

	caps := transport.GetCapabilities(TransportName)
	assert.Equal(t, "nats-jetstream", caps.Name)
	assert.True(t, caps.Durable)
	assert.True(t, caps.SupportsReliableDelivery())
}

func TestCapabilities(t *testing.T) {
	assert.Equal(t, transport.NATSJetStreamCapabilities, Capabilities())
}

func TestConfig_withDefaults(t *testing.T) {
	t.Run("empty config gets defaults", func(t *testing.T) {
		result := Config{}.withDefaults()

		assert.Equal(t, DefaultStreamName, result.StreamName)
		assert.Equal(t, DefaultMaxDeliver, result.MaxDeliver)
		assert.Equal(t, DefaultAckWait, result.AckWait)
		assert.Equal(t, DefaultMaxAge, result.MaxAge)
		assert.Equal(t, 1, result.Replicas)
	})

	t.Run("custom values preserved", func(t *testing.T) {
		cfg := Config{
			URL:        "nats://localhost:4222",
			StreamName: "CUSTOM",
			MaxDeliver: 5,
			AckWait:    time.Minute,
			Replicas:   3,
			MaxAge:     time.Hour,
		}
		assert.Equal(t, cfg, cfg.withDefaults())
	})
}

func TestStreamConfig(t *testing.T) {
	sc := streamConfig(Config{StreamName: "FRAMEPUB", Replicas: 1, MaxAge: time.Hour})
	assert.Equal(t, "FRAMEPUB", sc.Name)
	assert.Equal(t, []string{"FRAMEPUB.>"}, sc.Subjects)
	assert.Equal(t, nats.LimitsPolicy, sc.Retention)
	assert.Equal(t, time.Hour, sc.MaxAge)
}

func TestNaming(t *testing.T) {
	assert.Equal(t, "FRAMEPUB.std_msgs_msg_Int32", subjectFor("FRAMEPUB", "std_msgs_msg_Int32"))
	assert.Equal(t, "framepub_sensor_msgs_msg_CompressedImage", durableFor("sensor_msgs_msg_CompressedImage"))
	assert.Equal(t, "framepub_a_b_c", durableFor("a.b*c"))
}

func TestMessageConversion(t *testing.T) {
	msg := message.NewMessage("01HX", []byte("payload"))
	msg.Metadata.Set("framepub_tick", "3")

	natsMsg := toNATS("FRAMEPUB.counter", msg)
	assert.Equal(t, "FRAMEPUB.counter", natsMsg.Subject)
	assert.Equal(t, "01HX", natsMsg.Header.Get(nats.MsgIdHdr))
	assert.Equal(t, "3", natsMsg.Header.Get("framepub_tick"))

	back := fromNATS(natsMsg)
	assert.Equal(t, "01HX", back.UUID)
	assert.Equal(t, []byte("payload"), []byte(back.Payload))
	assert.Equal(t, "3", back.Metadata.Get("framepub_tick"))
	assert.Empty(t, back.Metadata.Get(nats.MsgIdHdr))
}

func TestFromNATSWithoutID(t *testing.T) {
	back := fromNATS(&nats.Msg{Data: []byte("x"), Header: nats.Header{}})
	assert.NotEmpty(t, back.UUID)
}

func TestBuild(t *testing.T) {
	t.Run("missing URL", func(t *testing.T) {
		_, err := Build(context.Background(), &transporttest.Config{}, watermill.NopLogger{})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "URL is required")
	})

	t.Run("connect failure", func(t *testing.T) {
		original := Connect
		defer func() { Connect = original }()

		var gotURL string
		Connect = func(url string, opts ...nats.Option) (*nats.Conn, error) {
			gotURL = url
			return nil, errors.New("no servers available")
		}

		_, err := Build(context.Background(), &transporttest.Config{NATSURL: "nats://localhost:4222"}, watermill.NopLogger{})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no servers available")
		assert.Equal(t, "nats://localhost:4222", gotURL)
	})
}
