package transport

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drblury/framepub/transport/transporttest"
)

func publisherOnly(ctx context.Context, cfg Config, logger watermill.LoggerAdapter) (Transport, error) {
	return Transport{Publisher: transporttest.NewPublisher()}, nil
}

func TestNewRegistry(t *testing.T) {
	reg := NewRegistry()
	assert.NotNil(t, reg)
	assert.Empty(t, reg.Names())
}

func TestRegistry_RegisterWithCapabilities(t *testing.T) {
	reg := NewRegistry()
	reg.RegisterWithCapabilities("test-transport", publisherOnly, Capabilities{
		Name:    "test-transport",
		Durable: true,
	})

	assert.True(t, reg.Has("test-transport"))
	caps := reg.GetCapabilities("test-transport")
	assert.Equal(t, "test-transport", caps.Name)
	assert.True(t, caps.Durable)
}

func TestRegistry_GetCapabilities_Unknown(t *testing.T) {
	reg := NewRegistry()
	caps := reg.GetCapabilities("unknown")
	assert.Equal(t, Capabilities{Name: "unknown"}, caps)
}

func TestRegistry_Build(t *testing.T) {
	reg := NewRegistry()

	var gotLogger watermill.LoggerAdapter
	reg.Register("test-transport", func(ctx context.Context, cfg Config, logger watermill.LoggerAdapter) (Transport, error) {
		gotLogger = logger
		return publisherOnly(ctx, cfg, logger)
	})

	tr, err := reg.Build(context.Background(), &transporttest.Config{PubSubSystem: "test-transport"}, nil)
	require.NoError(t, err)
	assert.NotNil(t, tr.Publisher)
	assert.Nil(t, tr.Subscriber)
	assert.Equal(t, watermill.NopLogger{}, gotLogger)
}

func TestRegistry_Build_NilConfig(t *testing.T) {
	_, err := NewRegistry().Build(context.Background(), nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config is required")
}

func TestRegistry_Build_UnknownTransport(t *testing.T) {
	reg := NewRegistry()
	reg.Register("known", publisherOnly)

	_, err := reg.Build(context.Background(), &transporttest.Config{PubSubSystem: "unknown"}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown transport "unknown"`)
	assert.Contains(t, err.Error(), "known")
}

func TestRegistry_Build_BuilderError(t *testing.T) {
	reg := NewRegistry()
	expectedErr := errors.New("builder error")
	reg.Register("failing", func(ctx context.Context, cfg Config, logger watermill.LoggerAdapter) (Transport, error) {
		return Transport{}, expectedErr
	})

	_, err := reg.Build(context.Background(), &transporttest.Config{PubSubSystem: "failing"}, nil)
	require.ErrorIs(t, err, expectedErr)
	assert.Contains(t, err.Error(), "transport failing")
}

func TestRegistry_Build_MissingPublisher(t *testing.T) {
	reg := NewRegistry()
	reg.Register("empty", func(ctx context.Context, cfg Config, logger watermill.LoggerAdapter) (Transport, error) {
		return Transport{}, nil
	})

	_, err := reg.Build(context.Background(), &transporttest.Config{PubSubSystem: "empty"}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no publisher")
}

func TestRegistry_NamesSorted(t *testing.T) {
	reg := NewRegistry()
	reg.Register("nats", publisherOnly)
	reg.Register("channel", publisherOnly)
	reg.Register("kafka", publisherOnly)

	assert.Equal(t, []string{"channel", "kafka", "nats"}, reg.Names())
}

func TestRegistry_ConcurrentAccess(t *testing.T) {
	reg := NewRegistry()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				reg.Register("transport", publisherOnly)
				reg.Has("transport")
				reg.Names()
				reg.GetCapabilities("transport")
			}
		}()
	}
	wg.Wait()

	assert.True(t, reg.Has("transport"))
}

func TestPackageLevelRegistration(t *testing.T) {
	RegisterWithCapabilities("test-pkg-transport", publisherOnly, Capabilities{Name: "test-pkg-transport", SupportsAck: true})

	assert.True(t, DefaultRegistry.Has("test-pkg-transport"))
	assert.True(t, GetCapabilities("test-pkg-transport").SupportsAck)

	tr, err := Build(context.Background(), &transporttest.Config{PubSubSystem: "test-pkg-transport"}, nil)
	require.NoError(t, err)
	assert.NotNil(t, tr.Publisher)
}
