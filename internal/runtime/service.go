package runtime

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/trace"

	configpkg "github.com/drblury/framepub/internal/runtime/config"
	errspkg "github.com/drblury/framepub/internal/runtime/errors"
	"github.com/drblury/framepub/internal/runtime/executor"
	"github.com/drblury/framepub/internal/runtime/jsoncodec"
	loggingpkg "github.com/drblury/framepub/internal/runtime/logging"
	metricspkg "github.com/drblury/framepub/internal/runtime/metrics"
	"github.com/drblury/framepub/internal/runtime/models"
	transportpkg "github.com/drblury/framepub/internal/runtime/transport"
)

// ServiceDependencies holds the optional collaborators that the Service can use.
// Leave fields nil to get the defaults.
type ServiceDependencies struct {
	TransportFactory transportpkg.Factory
	// Registerer and Gatherer back the node metrics. They default to the
	// Prometheus default registry.
	Registerer prometheus.Registerer
	Gatherer   prometheus.Gatherer
	Clock      clock.Clock
	Tracer     trace.Tracer
	Hooks      TickHooks
	// MetricsListener replaces the listener on MetricsPort when set.
	MetricsListener net.Listener
}

// Service wires the transport, the two publish endpoints, the node and the
// executor that drives it.
type Service struct {
	Conf   *configpkg.Config
	Logger loggingpkg.ServiceLogger

	transport transportpkg.Transport
	node      *Node
	executor  *executor.Executor
	metrics   *metricspkg.NodeMetrics
	gatherer  prometheus.Gatherer

	http      *httpServer
	resources *resourceTracker

	mu       sync.Mutex
	spinDone chan struct{}

	closeOnce sync.Once
	closeErr  error
}

// NewService is TryNewService that panics on error.
func NewService(conf *configpkg.Config, log loggingpkg.ServiceLogger, ctx context.Context, deps ServiceDependencies) *Service {
	s, err := TryNewService(conf, log, ctx, deps)
	if err != nil {
		panic(err)
	}
	return s
}

// TryNewService builds everything the node needs and registers its timer.
// Nothing runs until Start.
func TryNewService(conf *configpkg.Config, log loggingpkg.ServiceLogger, ctx context.Context, deps ServiceDependencies) (*Service, error) {
	if conf == nil {
		return nil, errspkg.ErrConfigRequired
	}
	if log == nil {
		return nil, errspkg.ErrLoggerRequired
	}

	cfg := conf.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, errspkg.NewConfigValidationError(err)
	}

	log.Info("Creating node service", loggingpkg.LogFields{
		"pubsub_system": cfg.PubSubSystem,
		"config":        cfg.String(),
	})

	factory := deps.TransportFactory
	if factory == nil {
		factory = transportpkg.DefaultFactory()
	}
	t, err := factory.Build(ctx, &cfg, loggingpkg.NewWatermillAdapter(log))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errspkg.ErrEndpointInit, err)
	}

	s := &Service{
		Conf:      &cfg,
		Logger:    log,
		transport: t,
		gatherer:  deps.Gatherer,
		http:      newHTTPServer(log, deps.MetricsListener),
		resources: newResourceTracker(),
	}

	if err := s.init(deps); err != nil {
		_ = t.Close()
		return nil, err
	}
	return s, nil
}

func (s *Service) init(deps ServiceDependencies) error {
	cfg := s.Conf

	if caps := s.transport.Capabilities; !caps.Fits(int64(cfg.PayloadCapacity)) {
		s.Logger.Info("Payload capacity exceeds transport message size", loggingpkg.LogFields{
			"payload_capacity": cfg.PayloadCapacity,
			"max_message_size": caps.MaxMessageSize,
			"transport":        caps.Name,
		})
	}

	counterEP, err := NewEndpoint(s.transport.Publisher, cfg.CounterTopic, models.CounterSchema)
	if err != nil {
		return fmt.Errorf("counter endpoint: %w", err)
	}
	imageEP, err := NewEndpoint(s.transport.Publisher, cfg.ImageTopic, models.FrameSchema)
	if err != nil {
		return fmt.Errorf("image endpoint: %w", err)
	}

	s.metrics = metricspkg.NewNodeMetrics(deps.Registerer, cfg.NodeName)
	if cfg.MetricsEnabled {
		if err := s.metrics.Register(); err != nil {
			return fmt.Errorf("failed to register metrics: %w", err)
		}
		s.http.Handle("/metrics", metricspkg.Handler(s.gatherer))
		s.http.Handle("/stats", http.HandlerFunc(s.serveStats))
	}

	node, err := NewNode(NodeConfig{
		Name:            cfg.NodeName,
		FrameID:         cfg.FrameID,
		Format:          cfg.ImageFormat,
		PayloadCapacity: cfg.PayloadCapacity,
	}, counterEP, imageEP, NodeDependencies{
		Logger:  s.Logger,
		Metrics: s.metrics,
		Tracer:  deps.Tracer,
		Hooks:   deps.Hooks,
	})
	if err != nil {
		return err
	}
	s.node = node

	opts := []executor.Option{executor.WithLogger(s.Logger)}
	if deps.Clock != nil {
		opts = append(opts, executor.WithClock(deps.Clock))
	}
	s.executor = executor.New(opts...)
	if err := s.executor.AddTimer(cfg.TimerPeriod, node.OnTick); err != nil {
		node.Close()
		return err
	}
	return nil
}

// Start serves metrics when enabled and spins the executor until ctx is
// cancelled or Stop is called. A Stop returns nil.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.spinDone != nil {
		s.mu.Unlock()
		return errspkg.ErrExecutorRunning
	}
	done := make(chan struct{})
	s.spinDone = done
	s.mu.Unlock()
	defer close(done)

	if s.executor.State() == executor.Stopped {
		return errspkg.ErrExecutorStopped
	}
	if s.Conf.MetricsEnabled {
		if err := s.http.Start(s.Conf.MetricsPort); err != nil {
			return err
		}
	}

	s.Logger.Info("Starting node", loggingpkg.LogFields{
		"node":          s.node.Name(),
		"counter_topic": s.Conf.CounterTopic,
		"image_topic":   s.Conf.ImageTopic,
		"period":        s.Conf.TimerPeriod.String(),
	})
	return s.executor.Spin(ctx)
}

// Stop asks the executor to return after the current tick.
func (s *Service) Stop() {
	s.executor.Stop()
}

// Node returns the node driven by the service.
func (s *Service) Node() *Node { return s.node }

// Executor returns the executor driving the node.
func (s *Service) Executor() *executor.Executor { return s.executor }

// ServiceStats is served as JSON on /stats.
type ServiceStats struct {
	Node     metricspkg.Snapshot `json:"node"`
	Resource ResourceUsage       `json:"resource"`
}

// Stats returns the node statistics and the process resource usage.
func (s *Service) Stats() ServiceStats {
	return ServiceStats{
		Node:     s.node.Stats(),
		Resource: s.resources.Snapshot(),
	}
}

// MetricsAddr returns the address of the metrics server, or "" when it is
// not running.
func (s *Service) MetricsAddr() string {
	return s.http.Addr()
}

// Close stops the executor, waits for a running Start to return and then
// releases the node, the metrics server and the transport. Safe to call twice.
func (s *Service) Close() error {
	s.closeOnce.Do(func() {
		s.executor.Stop()

		s.mu.Lock()
		done := s.spinDone
		s.mu.Unlock()
		if done != nil {
			<-done
		}

		var errs []error
		if err := s.http.Close(); err != nil {
			errs = append(errs, fmt.Errorf("metrics server: %w", err))
		}
		s.node.Close()
		if err := s.transport.Close(); err != nil {
			errs = append(errs, err)
		}
		s.closeErr = errors.Join(errs...)
	})
	return s.closeErr
}

func (s *Service) serveStats(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := jsoncodec.Encode(w, s.Stats()); err != nil {
		s.Logger.Error("Failed to encode stats", err, nil)
	}
}
