package transport

import (
	"context"
	"errors"
	"testing"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drblury/framepub/internal/runtime/config"
	pubtransport "github.com/drblury/framepub/transport"
	"github.com/drblury/framepub/transport/transporttest"
)

func TestDefaultFactory_BuildChannel(t *testing.T) {
	tr, err := DefaultFactory().Build(context.Background(), &config.Config{PubSubSystem: "channel"}, watermill.NopLogger{})
	require.NoError(t, err)
	defer tr.Close()

	assert.NotNil(t, tr.Publisher)
	assert.Nil(t, tr.Subscriber)
	assert.Equal(t, "channel", tr.Capabilities.Name)
}

func TestDefaultFactory_BuildChannelConsume(t *testing.T) {
	tr, err := DefaultFactory().Build(context.Background(), &config.Config{PubSubSystem: "channel", Consume: true}, nil)
	require.NoError(t, err)
	defer tr.Close()

	assert.NotNil(t, tr.Subscriber)
}

func TestDefaultFactory_NilConfig(t *testing.T) {
	_, err := DefaultFactory().Build(context.Background(), nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config is required")
}

func TestDefaultFactory_UnknownTransport(t *testing.T) {
	_, err := DefaultFactory().Build(context.Background(), &config.Config{PubSubSystem: "carrier-pigeon"}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "carrier-pigeon")
}

func TestNewFactory_UsesGivenRegistry(t *testing.T) {
	pub := transporttest.NewPublisher()
	caps := pubtransport.Capabilities{Name: "fake", MaxMessageSize: 64}

	registry := pubtransport.NewRegistry()
	registry.RegisterWithCapabilities("fake", func(ctx context.Context, cfg pubtransport.Config, logger watermill.LoggerAdapter) (pubtransport.Transport, error) {
		return pubtransport.Transport{Publisher: pub}, nil
	}, caps)

	tr, err := NewFactory(registry).Build(context.Background(), &config.Config{PubSubSystem: "fake"}, nil)
	require.NoError(t, err)
	assert.Same(t, pub, tr.Publisher)
	assert.Equal(t, caps, tr.Capabilities)
}

func TestFactoryFunc(t *testing.T) {
	want := errors.New("boom")
	f := FactoryFunc(func(ctx context.Context, conf *config.Config, logger watermill.LoggerAdapter) (Transport, error) {
		return Transport{}, want
	})

	_, err := f.Build(context.Background(), &config.Config{}, nil)
	assert.ErrorIs(t, err, want)
}
