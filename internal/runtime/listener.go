package runtime

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/plugin"
	"github.com/prometheus/client_golang/prometheus"

	configpkg "github.com/drblury/framepub/internal/runtime/config"
	errspkg "github.com/drblury/framepub/internal/runtime/errors"
	loggingpkg "github.com/drblury/framepub/internal/runtime/logging"
	metadatapkg "github.com/drblury/framepub/internal/runtime/metadata"
	metricspkg "github.com/drblury/framepub/internal/runtime/metrics"
	"github.com/drblury/framepub/internal/runtime/models"
	transportpkg "github.com/drblury/framepub/internal/runtime/transport"
)

var routerRun = func(router *message.Router, ctx context.Context) error {
	return router.Run(ctx)
}

// CounterHandler receives every decoded counter.
type CounterHandler func(ctx context.Context, value int32, md metadatapkg.Metadata) error

// FrameHandler receives every decoded frame.
type FrameHandler func(ctx context.Context, frame models.Frame, md metadatapkg.Metadata) error

// ListenerDependencies holds the optional collaborators of a Listener.
type ListenerDependencies struct {
	TransportFactory          transportpkg.Factory
	Registerer                prometheus.Registerer
	Gatherer                  prometheus.Gatherer
	MetricsListener           net.Listener
	Middlewares               []MiddlewareRegistration // Appended after the default middleware chain.
	DisableDefaultMiddlewares bool
	OnCounter                 CounterHandler
	OnFrame                   FrameHandler
}

// Listener subscribes to the node's two topics and logs what arrives.
type Listener struct {
	Conf   *configpkg.Config
	Logger loggingpkg.ServiceLogger

	transport  transportpkg.Transport
	router     *message.Router
	registerer prometheus.Registerer
	http       *httpServer

	onCounter CounterHandler
	onFrame   FrameHandler

	counters atomic.Uint64
	frames   atomic.Uint64
	dropped  atomic.Uint64

	closeOnce sync.Once
	closeErr  error
}

// NewListener is TryNewListener that panics on error.
func NewListener(conf *configpkg.Config, log loggingpkg.ServiceLogger, ctx context.Context, deps ListenerDependencies) *Listener {
	l, err := TryNewListener(conf, log, ctx, deps)
	if err != nil {
		panic(err)
	}
	return l
}

// TryNewListener builds a consuming transport and a router with one handler
// per topic.
func TryNewListener(conf *configpkg.Config, log loggingpkg.ServiceLogger, ctx context.Context, deps ListenerDependencies) (*Listener, error) {
	if conf == nil {
		return nil, errspkg.ErrConfigRequired
	}
	if log == nil {
		return nil, errspkg.ErrLoggerRequired
	}

	cfg := conf.WithDefaults()
	cfg.Consume = true
	if err := cfg.Validate(); err != nil {
		return nil, errspkg.NewConfigValidationError(err)
	}

	wmLogger := loggingpkg.NewWatermillAdapter(log)
	log.Info("Creating listener", loggingpkg.LogFields{
		"pubsub_system": cfg.PubSubSystem,
		"config":        cfg.String(),
	})

	factory := deps.TransportFactory
	if factory == nil {
		factory = transportpkg.DefaultFactory()
	}
	t, err := factory.Build(ctx, &cfg, wmLogger)
	if err != nil {
		return nil, err
	}
	if t.Subscriber == nil {
		_ = t.Close()
		return nil, fmt.Errorf("transport %s built no subscriber", cfg.PubSubSystem)
	}

	router, err := message.NewRouter(message.RouterConfig{}, wmLogger)
	if err != nil {
		_ = t.Close()
		return nil, err
	}
	router.AddPlugin(plugin.SignalsHandler)

	registerer := deps.Registerer
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	l := &Listener{
		Conf:       &cfg,
		Logger:     log,
		transport:  t,
		router:     router,
		registerer: registerer,
		http:       newHTTPServer(log, deps.MetricsListener),
		onCounter:  deps.OnCounter,
		onFrame:    deps.OnFrame,
	}

	if err := l.registerConfiguredMiddlewares(deps); err != nil {
		_ = l.Close()
		return nil, err
	}
	if cfg.MetricsEnabled {
		l.http.Handle("/metrics", metricspkg.Handler(deps.Gatherer))
	}

	router.AddNoPublisherHandler("counter-listener", cfg.CounterTopic, t.Subscriber, l.handleCounter)
	router.AddNoPublisherHandler("image-listener", cfg.ImageTopic, t.Subscriber, l.handleFrame)
	return l, nil
}

func (l *Listener) registerConfiguredMiddlewares(deps ListenerDependencies) error {
	var defaults []MiddlewareRegistration
	if !deps.DisableDefaultMiddlewares {
		defaults = DefaultMiddlewares()
	}
	registrations := make([]MiddlewareRegistration, 0, len(defaults)+len(deps.Middlewares))
	registrations = append(registrations, defaults...)
	registrations = append(registrations, deps.Middlewares...)

	for _, reg := range registrations {
		if err := l.RegisterMiddleware(reg); err != nil {
			name := reg.Name
			if name == "" {
				name = "anonymous_middleware"
			}
			return fmt.Errorf("failed to register middleware %s: %w", name, err)
		}
	}
	return nil
}

// Start runs the router until ctx is cancelled or a signal arrives.
func (l *Listener) Start(ctx context.Context) error {
	if l.Conf.MetricsEnabled {
		if err := l.http.Start(l.Conf.MetricsPort); err != nil {
			return err
		}
	}
	return routerRun(l.router, ctx)
}

// Running is closed once the router has started all handlers.
func (l *Listener) Running() chan struct{} {
	return l.router.Running()
}

// Received returns how many counters and frames were decoded.
func (l *Listener) Received() (counters, frames uint64) {
	return l.counters.Load(), l.frames.Load()
}

// Dropped returns how many messages could not be decoded.
func (l *Listener) Dropped() uint64 {
	return l.dropped.Load()
}

// Close stops the router and releases the transport. Safe to call twice.
func (l *Listener) Close() error {
	l.closeOnce.Do(func() {
		var errs []error
		if err := l.router.Close(); err != nil {
			errs = append(errs, err)
		}
		if err := l.http.Close(); err != nil {
			errs = append(errs, fmt.Errorf("metrics server: %w", err))
		}
		if err := l.transport.Close(); err != nil {
			errs = append(errs, err)
		}
		l.closeErr = errors.Join(errs...)
	})
	return l.closeErr
}

// Undecodable messages are acked and counted; redelivery would not fix them.
func (l *Listener) handleCounter(msg *message.Message) error {
	md := metadatapkg.FromWatermill(msg.Metadata)
	tick, _ := md.Tick()

	value, err := models.DecodeCounter(msg.Payload)
	if err != nil {
		l.dropped.Add(1)
		l.Logger.Error("Dropping undecodable counter", err, loggingpkg.LogFields{"message_uuid": msg.UUID})
		return nil
	}

	l.counters.Add(1)
	l.Logger.Info("Received counter", loggingpkg.LogFields{
		"value": value,
		"tick":  tick,
		"node":  md[metadatapkg.KeyNode],
	})
	if l.onCounter != nil {
		return l.onCounter(msg.Context(), value, md)
	}
	return nil
}

func (l *Listener) handleFrame(msg *message.Message) error {
	md := metadatapkg.FromWatermill(msg.Metadata)
	tick, _ := md.Tick()

	frame, err := models.DecodeFrame(msg.Payload)
	if err != nil {
		l.dropped.Add(1)
		l.Logger.Error("Dropping undecodable frame", err, loggingpkg.LogFields{"message_uuid": msg.UUID})
		return nil
	}

	l.frames.Add(1)
	l.Logger.Info("Received image", loggingpkg.LogFields{
		"frame_id": frame.Header.FrameID,
		"format":   frame.Format,
		"bytes":    len(frame.Data),
		"tick":     tick,
	})
	if l.onFrame != nil {
		return l.onFrame(msg.Context(), frame, md)
	}
	return nil
}
