// Package channel provides an in-memory Go channel transport. Useful for
// tests and for running a node without any broker.
package channel

import (
	"context"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"github.com/drblury/framepub/transport"
)

// TransportName is the name used to register this transport.
const TransportName = "channel"

// Factory allows overriding the channel creation for testing.
var Factory = func(cfg gochannel.Config, logger watermill.LoggerAdapter) (message.Publisher, message.Subscriber) {
	pubSub := gochannel.NewGoChannel(cfg, logger)
	return pubSub, pubSub
}

func init() {
	Register()
}

// Register adds the channel transport to the default registry.
func Register() {
	transport.RegisterWithCapabilities(TransportName, Build, transport.ChannelCapabilities)
}

// Build creates a Go channel transport. Without consumption the GoChannel
// drops messages that have no subscriber, which is what a publish-only node
// wants. With consumption enabled, messages published before a subscriber
// attaches are kept for it.
func Build(ctx context.Context, cfg transport.Config, logger watermill.LoggerAdapter) (transport.Transport, error) {
	consume := cfg.GetConsume()
	pub, sub := Factory(gochannel.Config{
		OutputChannelBuffer: 64,
		Persistent:          consume,
	}, logger)

	t := transport.Transport{Publisher: pub}
	if consume {
		t.Subscriber = sub
	}
	return t, nil
}

// Capabilities returns the capabilities of this transport.
func Capabilities() transport.Capabilities {
	return transport.ChannelCapabilities
}
