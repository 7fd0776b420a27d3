package runtime

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	errspkg "github.com/drblury/framepub/internal/runtime/errors"
	loggingpkg "github.com/drblury/framepub/internal/runtime/logging"
	metadatapkg "github.com/drblury/framepub/internal/runtime/metadata"
	metricspkg "github.com/drblury/framepub/internal/runtime/metrics"
	"github.com/drblury/framepub/internal/runtime/models"
)

// TracerName is the OpenTelemetry tracer used for tick spans.
const TracerName = "framepub.node"

// NodeConfig describes the messages a Node owns.
type NodeConfig struct {
	Name            string
	FrameID         string
	Format          string
	PayloadCapacity int
}

func (c NodeConfig) withDefaults() NodeConfig {
	if c.FrameID == "" {
		c.FrameID = models.DefaultFrameID
	}
	if c.Format == "" {
		c.Format = models.DefaultFormat
	}
	if c.PayloadCapacity == 0 {
		c.PayloadCapacity = models.DefaultPayloadCapacity
	}
	return c
}

// NodeDependencies holds optional collaborators. Nil fields get no-op or
// unregistered defaults.
type NodeDependencies struct {
	Logger  loggingpkg.ServiceLogger
	Metrics *metricspkg.NodeMetrics
	Tracer  trace.Tracer
	Hooks   TickHooks
}

// Node owns a counter and a framed payload and publishes both on every
// tick. Message state is only touched from OnTick, which the executor never
// runs concurrently.
type Node struct {
	name string

	counter models.CounterMessage
	frame   *models.FramedBinaryMessage
	source  []byte

	counterEP Publisher
	imageEP   Publisher

	logger  loggingpkg.ServiceLogger
	metrics *metricspkg.NodeMetrics
	tracer  trace.Tracer
	hooks   TickHooks

	ticks uint64
}

// NewNode allocates all message storage up front. The counter starts at 0
// and the payload buffer starts empty.
func NewNode(cfg NodeConfig, counterEP, imageEP Publisher, deps NodeDependencies) (*Node, error) {
	if counterEP == nil {
		return nil, fmt.Errorf("%w: counter: %w", errspkg.ErrEndpointInit, errspkg.ErrPublisherRequired)
	}
	if imageEP == nil {
		return nil, fmt.Errorf("%w: image: %w", errspkg.ErrEndpointInit, errspkg.ErrPublisherRequired)
	}

	cfg = cfg.withDefaults()
	frame, err := models.NewFramedBinaryMessage(cfg.FrameID, cfg.Format, cfg.PayloadCapacity)
	if err != nil {
		return nil, fmt.Errorf("failed to allocate frame: %w", err)
	}

	n := &Node{
		name:      cfg.Name,
		frame:     frame,
		source:    models.SourcePattern(cfg.PayloadCapacity),
		counterEP: counterEP,
		imageEP:   imageEP,
		logger:    deps.Logger,
		metrics:   deps.Metrics,
		tracer:    deps.Tracer,
		hooks:     deps.Hooks,
	}
	if n.logger == nil {
		n.logger = loggingpkg.NewNopServiceLogger()
	}
	if n.metrics == nil {
		n.metrics = metricspkg.NewNodeMetrics(nil, cfg.Name)
	}
	if n.tracer == nil {
		n.tracer = otel.Tracer(TracerName)
	}
	n.logger = n.logger.With(loggingpkg.LogFields{"node": cfg.Name})
	return n, nil
}

// OnTick publishes the current counter, advances it, refills the payload
// and publishes the frame. Publish and refill failures are logged and do not
// stop the tick.
func (n *Node) OnTick(ctx context.Context) {
	n.ticks++
	tick := n.ticks
	start := time.Now()

	ctx, span := n.tracer.Start(ctx, "OnTick", trace.WithAttributes(
		attribute.String("framepub.node", n.name),
		attribute.Int64("framepub.tick", int64(tick)),
	))
	defer span.End()

	tc := TickContext{
		Node:      n.name,
		Tick:      tick,
		Counter:   n.counter.Value,
		Context:   ctx,
		StartedAt: start,
	}
	n.hooks.start(tc)

	md := metadatapkg.New(metadatapkg.KeyNode, n.name).WithTick(tick)

	err := n.counterEP.Publish(ctx, &n.counter, md)
	n.metrics.RecordPublish(n.counterEP.Topic(), err)
	if err != nil {
		n.failed(span, tc, "Failed to publish counter", err, n.counterEP.Topic())
	} else {
		n.logger.Info("Sent counter", loggingpkg.LogFields{"value": tc.Counter, "tick": tick})
	}

	n.counter.Tick()

	if err := n.frame.RefillPayload(n.source); err != nil {
		n.failed(span, tc, "Failed to refill frame payload", err, n.imageEP.Topic())
	} else {
		err := n.imageEP.Publish(ctx, n.frame, md)
		n.metrics.RecordPublish(n.imageEP.Topic(), err)
		if err != nil {
			n.failed(span, tc, "Failed to publish image", err, n.imageEP.Topic())
		} else {
			n.logger.Info("Sent image", loggingpkg.LogFields{"bytes": n.frame.Data.Size(), "tick": tick})
		}
	}

	span.SetAttributes(
		attribute.Int("framepub.counter", int(tc.Counter)),
		attribute.Int("framepub.payload_bytes", n.frame.Data.Size()),
	)
	tc.Duration = time.Since(start)
	n.metrics.RecordTick(tc.Duration, tc.Counter, n.frame.Data.Size())
	n.hooks.done(tc)
}

func (n *Node) failed(span trace.Span, tc TickContext, msg string, err error, topic string) {
	span.RecordError(err)
	span.SetStatus(codes.Error, msg)
	n.logger.Error(msg, err, loggingpkg.LogFields{"topic": topic, "tick": tc.Tick})
	n.hooks.publishError(tc, topic, err)
}

// Name returns the node name.
func (n *Node) Name() string { return n.name }

// Counter returns the value the next tick will publish.
func (n *Node) Counter() int32 { return n.counter.Value }

// Frame exposes the framed message. Callers must not mutate it while the
// node is ticking.
func (n *Node) Frame() *models.FramedBinaryMessage { return n.frame }

// Stats returns the node's tick and publish statistics.
func (n *Node) Stats() metricspkg.Snapshot {
	return n.metrics.Snapshot()
}

// Close releases the frame buffers. Ticks after Close still publish the
// counter but skip the frame.
func (n *Node) Close() {
	n.frame.Release()
}
