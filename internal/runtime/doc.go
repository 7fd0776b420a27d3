/*
Package runtime wires the periodic publisher node of framepub.

# Architecture Overview

A Service owns one transport, two publish endpoints, one Node and the
cooperative Executor that drives it. Every timer period the executor calls
Node.OnTick, which publishes the current counter value on the counter topic,
increments it, refills the frame payload from the source pattern and
publishes the frame on the image topic. A failed publish is logged, counted
and reported to TickHooks; the node keeps ticking.

# Package Structure

## Service (service.go)

The Service struct builds everything from a config.Config:
  - Transport from the transport registry (Kafka, RabbitMQ, NATS, SQLite, ...)
  - Counter and image endpoints
  - Node and executor with the registered timer
  - HTTP server for /metrics and /stats when metrics are enabled

## Node (node.go, hooks.go)

The Node holds the CounterMessage and the FramedBinaryMessage for its whole
life. OnTick never allocates a new frame. TickHooks observe tick start, tick
completion and publish failures.

## Endpoints (endpoint.go)

An Endpoint binds a publisher to one topic and one message schema. Publishing
a message of another schema is rejected before anything reaches the wire.

## Listener (listener.go, middleware.go)

The Listener subscribes to both topics through a Watermill router and logs
what arrives. It is the consuming half used by framepub-listen and by the
end-to-end tests.

# Sub-packages

  - buffer/: bounded byte buffers with explicit release
  - config/: node and transport configuration with validation
  - errors/: sentinel errors and error types
  - executor/: single-timer cooperative executor
  - ids/: ULID generation for message IDs
  - jsoncodec/: JSON marshaling utilities
  - logging/: logger interface and adapters
  - metadata/: message metadata utilities
  - metrics/: Prometheus collectors and snapshots of the node
  - models/: CounterMessage, FramedBinaryMessage and their wire forms
  - transport/: factory over the transport registry

# Usage Example

	cfg := &framepub.Config{
		PubSubSystem: "nats",
		NATSURL:      "nats://localhost:4222",
		TimerPeriod:  time.Second,
	}

	svc := framepub.NewService(cfg, logger, ctx, framepub.ServiceDependencies{})
	defer svc.Close()

	if err := svc.Start(ctx); err != nil {
		log.Fatal(err)
	}
*/
package runtime
