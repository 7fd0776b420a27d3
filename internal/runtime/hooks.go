package runtime

import (
	"context"
	"time"
)

// TickContext provides information about one tick to hooks.
type TickContext struct {
	// Node is the name of the ticking node.
	Node string
	// Tick is the 1-based tick number.
	Tick uint64
	// Counter is the value published on this tick.
	Counter int32
	// Context is the context the executor passed to the tick.
	Context context.Context
	// StartedAt is when the tick started.
	StartedAt time.Time
	// Duration is how long the tick took (only set in OnTickDone).
	Duration time.Duration
}

// TickHooks defines callbacks for tick lifecycle events.
// All hooks are optional - nil hooks are simply not called.
type TickHooks struct {
	// OnTickStart is called before the counter is published.
	OnTickStart func(ctx TickContext)

	// OnTickDone is called after the frame publish, failed or not.
	OnTickDone func(ctx TickContext)

	// OnPublishError is called for every failed publish or refill, with the
	// topic it concerned.
	OnPublishError func(ctx TickContext, topic string, err error)
}

// Merge combines two TickHooks. The hooks from other run after those of h.
func (h TickHooks) Merge(other TickHooks) TickHooks {
	return TickHooks{
		OnTickStart:    chainTickHooks(h.OnTickStart, other.OnTickStart),
		OnTickDone:     chainTickHooks(h.OnTickDone, other.OnTickDone),
		OnPublishError: chainErrorHooks(h.OnPublishError, other.OnPublishError),
	}
}

func chainTickHooks(a, b func(TickContext)) func(TickContext) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(ctx TickContext) {
		a(ctx)
		b(ctx)
	}
}

func chainErrorHooks(a, b func(TickContext, string, error)) func(TickContext, string, error) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(ctx TickContext, topic string, err error) {
		a(ctx, topic, err)
		b(ctx, topic, err)
	}
}

func (h TickHooks) start(ctx TickContext) {
	if h.OnTickStart != nil {
		h.OnTickStart(ctx)
	}
}

func (h TickHooks) done(ctx TickContext) {
	if h.OnTickDone != nil {
		h.OnTickDone(ctx)
	}
}

func (h TickHooks) publishError(ctx TickContext, topic string, err error) {
	if h.OnPublishError != nil {
		h.OnPublishError(ctx, topic, err)
	}
}

// AlertingHooks returns hooks that call alertFunc on every failed publish.
func AlertingHooks(alertFunc func(ctx TickContext, topic string, err error)) TickHooks {
	return TickHooks{
		OnPublishError: alertFunc,
	}
}
