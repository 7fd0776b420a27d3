// Package transport builds the publisher and subscriber a service runs on
// from a runtime config.
package transport

import (
	"context"
	"errors"

	"github.com/ThreeDotsLabs/watermill"

	"github.com/drblury/framepub/internal/runtime/config"
	pubtransport "github.com/drblury/framepub/transport"
	_ "github.com/drblury/framepub/transport/transports"
)

// Transport is a built transport together with what it supports.
type Transport struct {
	pubtransport.Transport
	Capabilities pubtransport.Capabilities
}

// Factory abstracts how a service obtains its transport.
type Factory interface {
	Build(ctx context.Context, conf *config.Config, logger watermill.LoggerAdapter) (Transport, error)
}

// FactoryFunc adapts a function to Factory.
type FactoryFunc func(ctx context.Context, conf *config.Config, logger watermill.LoggerAdapter) (Transport, error)

func (f FactoryFunc) Build(ctx context.Context, conf *config.Config, logger watermill.LoggerAdapter) (Transport, error) {
	return f(ctx, conf, logger)
}

// DefaultFactory returns the factory backed by the default transport
// registry, with every built-in transport registered.
func DefaultFactory() Factory {
	return registryFactory{registry: pubtransport.DefaultRegistry}
}

// NewFactory returns a factory backed by registry.
func NewFactory(registry *pubtransport.Registry) Factory {
	return registryFactory{registry: registry}
}

type registryFactory struct {
	registry *pubtransport.Registry
}

func (f registryFactory) Build(ctx context.Context, conf *config.Config, logger watermill.LoggerAdapter) (Transport, error) {
	if conf == nil {
		return Transport{}, errors.New("transport: config is required")
	}

	t, err := f.registry.Build(ctx, conf, logger)
	if err != nil {
		return Transport{}, err
	}

	return Transport{
		Transport:    t,
		Capabilities: f.registry.GetCapabilities(conf.GetPubSubSystem()),
	}, nil
}
