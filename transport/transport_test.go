package transport

import (
	"errors"
	"testing"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drblury/framepub/transport/transporttest"
)

var _ Config = (*transporttest.Config)(nil)

func TestTransport_CloseBoth(t *testing.T) {
	pub := transporttest.NewPublisher()
	sub := &transporttest.Subscriber{}

	require.NoError(t, Transport{Publisher: pub, Subscriber: sub}.Close())
	assert.True(t, pub.Closed())
	assert.True(t, sub.Closed())
}

func TestTransport_ClosePublisherOnly(t *testing.T) {
	pub := transporttest.NewPublisher()
	require.NoError(t, Transport{Publisher: pub}.Close())
	assert.True(t, pub.Closed())
}

func TestTransport_CloseSharedPubSubOnce(t *testing.T) {
	pubSub := gochannel.NewGoChannel(gochannel.Config{}, watermill.NopLogger{})

	// GoChannel.Close is idempotent, so count calls through a wrapper instead.
	counted := &countingPubSub{GoChannel: pubSub}
	require.NoError(t, Transport{Publisher: counted, Subscriber: counted}.Close())
	assert.Equal(t, 1, counted.closes)
}

func TestTransport_CloseJoinsErrors(t *testing.T) {
	pubErr := errors.New("pub close")
	subErr := errors.New("sub close")

	err := Transport{
		Publisher:  failingCloser{err: pubErr},
		Subscriber: &failingSubscriber{err: subErr},
	}.Close()

	require.ErrorIs(t, err, pubErr)
	require.ErrorIs(t, err, subErr)
}

type countingPubSub struct {
	*gochannel.GoChannel
	closes int
}

func (c *countingPubSub) Close() error {
	c.closes++
	return c.GoChannel.Close()
}

type failingCloser struct {
	err error
}

func (f failingCloser) Publish(string, ...*message.Message) error { return nil }
func (f failingCloser) Close() error                              { return f.err }

type failingSubscriber struct {
	transporttest.Subscriber
	err error
}

func (f *failingSubscriber) Close() error { return f.err }
