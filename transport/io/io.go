// Package io provides an append-only file transport. Every message becomes
// one JSON line; listeners tail the file.
package io

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/drblury/framepub/internal/runtime/jsoncodec"
	"github.com/drblury/framepub/transport"
)

// TransportName is the name used to register this transport.
const TransportName = "io"

// DefaultFilePath is the default file path if none is specified.
const DefaultFilePath = "framepub.log"

// PollInterval is how long a subscriber waits at end of file.
var PollInterval = 50 * time.Millisecond

// ErrClosed is returned by Publish after Close.
var ErrClosed = errors.New("io: publisher closed")

// PublisherFactory allows overriding the publisher creation for testing.
var PublisherFactory = func(filePath string, logger watermill.LoggerAdapter) (message.Publisher, error) {
	return NewPublisher(filePath, logger)
}

// SubscriberFactory allows overriding the subscriber creation for testing.
var SubscriberFactory = func(filePath string, logger watermill.LoggerAdapter) (message.Subscriber, error) {
	return &Subscriber{filePath: filePath, logger: logger}, nil
}

func init() {
	Register()
}

// Register registers the I/O transport with the default registry.
func Register() {
	transport.RegisterWithCapabilities(TransportName, Build, transport.IOCapabilities)
}

// Build opens the file for appending and, when consuming, a tailing
// subscriber on the same path.
func Build(ctx context.Context, cfg transport.Config, logger watermill.LoggerAdapter) (transport.Transport, error) {
	filePath := cfg.GetIOFile()
	if filePath == "" {
		filePath = DefaultFilePath
	}

	pub, err := PublisherFactory(filePath, logger)
	if err != nil {
		return transport.Transport{}, fmt.Errorf("io publisher: %w", err)
	}

	t := transport.Transport{Publisher: pub}
	if !cfg.GetConsume() {
		return t, nil
	}

	sub, err := SubscriberFactory(filePath, logger)
	if err != nil {
		_ = pub.Close()
		return transport.Transport{}, fmt.Errorf("io subscriber: %w", err)
	}
	t.Subscriber = sub
	return t, nil
}

// Capabilities returns the capabilities of this transport.
func Capabilities() transport.Capabilities {
	return transport.IOCapabilities
}

// storedMessage is one line of the file.
type storedMessage struct {
	UUID     string            `json:"uuid"`
	Topic    string            `json:"topic"`
	Metadata map[string]string `json:"metadata"`
	Payload  []byte            `json:"payload"`
}

// Publisher appends messages to a file that stays open until Close.
type Publisher struct {
	mu     sync.Mutex
	file   *os.File
	logger watermill.LoggerAdapter
}

// NewPublisher opens (creating if needed) filePath for appending.
func NewPublisher(filePath string, logger watermill.LoggerAdapter) (*Publisher, error) {
	f, err := os.OpenFile(filePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = watermill.NopLogger{}
	}
	return &Publisher{file: f, logger: logger}, nil
}

// Publish writes one line per message.
func (p *Publisher) Publish(topic string, messages ...*message.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.file == nil {
		return ErrClosed
	}

	for _, msg := range messages {
		line, err := jsoncodec.Marshal(storedMessage{
			UUID:     msg.UUID,
			Topic:    topic,
			Metadata: msg.Metadata,
			Payload:  msg.Payload,
		})
		if err != nil {
			return err
		}
		line = append(line, '\n')
		if _, err := p.file.Write(line); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the file. Safe to call twice.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.file == nil {
		return nil
	}
	err := p.file.Close()
	p.file = nil
	return err
}

// Subscriber tails a file and emits the lines of one topic.
type Subscriber struct {
	filePath string
	logger   watermill.LoggerAdapter
}

// Subscribe starts tailing from the beginning of the file.
func (s *Subscriber) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	f, err := os.OpenFile(s.filePath, os.O_RDONLY|os.O_CREATE, 0o600)
	if err != nil {
		return nil, err
	}

	out := make(chan *message.Message)
	go func() {
		defer close(out)
		defer f.Close()
		s.tail(ctx, f, out, topic)
	}()
	return out, nil
}

// Close closes the subscriber. Running subscriptions end with their context.
func (s *Subscriber) Close() error {
	return nil
}

func (s *Subscriber) tail(ctx context.Context, f *os.File, out chan<- *message.Message, topic string) {
	reader := bufio.NewReader(f)
	var partial []byte

	for {
		if ctx.Err() != nil {
			return
		}

		chunk, err := reader.ReadBytes('\n')
		partial = append(partial, chunk...)
		if errors.Is(err, io.EOF) {
			// the publisher may be mid-line; keep the partial bytes
			select {
			case <-ctx.Done():
				return
			case <-time.After(PollInterval):
			}
			continue
		}
		if err != nil {
			s.logger.Error("Failed to read file", err, watermill.LogFields{"file": s.filePath})
			return
		}

		line := partial
		partial = nil
		if !s.emit(ctx, out, line, topic) {
			return
		}
	}
}

func (s *Subscriber) emit(ctx context.Context, out chan<- *message.Message, line []byte, topic string) bool {
	var sm storedMessage
	if err := jsoncodec.Unmarshal(line, &sm); err != nil {
		s.logger.Error("Failed to unmarshal message", err, watermill.LogFields{"file": s.filePath})
		return true
	}
	if sm.Topic != topic {
		return true
	}

	msg := message.NewMessage(sm.UUID, sm.Payload)
	msg.Metadata = sm.Metadata
	if msg.Metadata == nil {
		msg.Metadata = make(message.Metadata)
	}
	msg.SetContext(ctx)

	select {
	case out <- msg:
	case <-ctx.Done():
		return false
	}

	select {
	case <-msg.Acked():
	case <-msg.Nacked():
		s.logger.Debug("Message nacked", watermill.LogFields{"uuid": msg.UUID})
	case <-ctx.Done():
		return false
	}
	return true
}
