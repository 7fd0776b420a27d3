// Package framepub runs a periodic publishing node on top of Watermill. Every
// timer period the node publishes a counter value on one topic and a fixed
// size framed binary payload on another, reusing storage allocated once at
// construction. It reads the target transport (Kafka, RabbitMQ, AWS SNS/SQS,
// NATS, NATS JetStream, HTTP, I/O, SQLite, PostgreSQL, or Go Channels) from
// Config, builds the two publish endpoints and drives the node with a
// single-timer cooperative executor.
//
// A minimal setup fills Config, creates a Service and calls Start:
//
//	svc := framepub.NewService(&framepub.Config{TimerPeriod: time.Second}, logger, ctx, framepub.ServiceDependencies{})
//	defer svc.Close()
//	err := svc.Start(ctx)
//
// # Failures
//
// Construction failures are fatal: TryNewService returns them and NewService
// panics. A failed publish is not. It is logged at error level, counted in the
// node metrics and handed to TickHooks.OnPublishError, and the node ticks on.
//
// # Observability
//
// With MetricsEnabled the service serves Prometheus metrics on /metrics and a
// JSON snapshot of the node on /stats. Each tick runs inside an OpenTelemetry
// span.
//
// # Listener
//
// Listener is the consuming companion: it subscribes to both topics, decodes
// what arrives and logs it. ServiceDependencies and ListenerDependencies accept
// a TransportFactory so tests and embedders can plug in their own broker.
package framepub
