package framepub

import (
	runtimepkg "github.com/drblury/framepub/internal/runtime"
	bufferpkg "github.com/drblury/framepub/internal/runtime/buffer"
	configpkg "github.com/drblury/framepub/internal/runtime/config"
	errspkg "github.com/drblury/framepub/internal/runtime/errors"
	executorpkg "github.com/drblury/framepub/internal/runtime/executor"
	idspkg "github.com/drblury/framepub/internal/runtime/ids"
	jsoncodec "github.com/drblury/framepub/internal/runtime/jsoncodec"
	loggingpkg "github.com/drblury/framepub/internal/runtime/logging"
	metadatapkg "github.com/drblury/framepub/internal/runtime/metadata"
	metricspkg "github.com/drblury/framepub/internal/runtime/metrics"
	modelspkg "github.com/drblury/framepub/internal/runtime/models"
	transportpkg "github.com/drblury/framepub/internal/runtime/transport"
	newtransport "github.com/drblury/framepub/transport"
)

type (
	Config               = configpkg.Config
	Service              = runtimepkg.Service
	ServiceDependencies  = runtimepkg.ServiceDependencies
	ServiceStats         = runtimepkg.ServiceStats
	ResourceUsage        = runtimepkg.ResourceUsage
	Transport            = transportpkg.Transport
	TransportFactory     = transportpkg.Factory
	TransportFactoryFunc = transportpkg.FactoryFunc

	// Node and its publish boundary
	Node             = runtimepkg.Node
	NodeConfig       = runtimepkg.NodeConfig
	NodeDependencies = runtimepkg.NodeDependencies
	Endpoint         = runtimepkg.Endpoint
	Publisher        = runtimepkg.Publisher

	// Tick lifecycle hooks
	TickContext = runtimepkg.TickContext
	TickHooks   = runtimepkg.TickHooks

	Executor         = executorpkg.Executor
	ExecutorOption   = executorpkg.Option
	ExecutorState    = executorpkg.State
	ExecutorCallback = executorpkg.Callback

	// Listener
	Listener               = runtimepkg.Listener
	ListenerDependencies   = runtimepkg.ListenerDependencies
	CounterHandler         = runtimepkg.CounterHandler
	FrameHandler           = runtimepkg.FrameHandler
	MiddlewareBuilder      = runtimepkg.MiddlewareBuilder
	MiddlewareRegistration = runtimepkg.MiddlewareRegistration

	// Messages
	Message             = modelspkg.Message
	CounterMessage      = modelspkg.CounterMessage
	FramedBinaryMessage = modelspkg.FramedBinaryMessage
	Frame               = modelspkg.Frame
	FrameHeader         = modelspkg.FrameHeader
	Buffer              = bufferpkg.Bounded

	Metadata = metadatapkg.Metadata

	LogFields     = loggingpkg.LogFields
	ServiceLogger = loggingpkg.ServiceLogger

	NodeSnapshot = metricspkg.Snapshot
	TopicStats   = metricspkg.TopicStats

	ConfigValidationError = errspkg.ConfigValidationError
	PublishError          = errspkg.PublishError

	// Modular transport types
	TransportBuilder      = newtransport.Builder
	TransportConfig       = newtransport.Config
	TransportRegistry     = newtransport.Registry
	TransportCapabilities = newtransport.Capabilities
)

var (
	NewService     = runtimepkg.NewService
	TryNewService  = runtimepkg.TryNewService
	NewListener    = runtimepkg.NewListener
	TryNewListener = runtimepkg.TryNewListener
	NewNode        = runtimepkg.NewNode
	NewEndpoint    = runtimepkg.NewEndpoint

	LoadConfig     = configpkg.Load
	ValidateConfig = configpkg.ValidateConfig

	NewExecutor        = executorpkg.New
	WithExecutorClock  = executorpkg.WithClock
	WithExecutorLogger = executorpkg.WithLogger

	AlertingHooks = runtimepkg.AlertingHooks

	DefaultMiddlewares      = runtimepkg.DefaultMiddlewares
	CorrelationIDMiddleware = runtimepkg.CorrelationIDMiddleware
	LogMessagesMiddleware   = runtimepkg.LogMessagesMiddleware
	TracerMiddleware        = runtimepkg.TracerMiddleware
	MetricsMiddleware       = runtimepkg.MetricsMiddleware
	RecovererMiddleware     = runtimepkg.RecovererMiddleware

	NewBuffer              = bufferpkg.New
	NewFramedBinaryMessage = modelspkg.NewFramedBinaryMessage
	SourcePattern          = modelspkg.SourcePattern
	DecodeCounter          = modelspkg.DecodeCounter
	DecodeFrame            = modelspkg.DecodeFrame

	DefaultTransportFactory = transportpkg.DefaultFactory
	NewTransportFactory     = transportpkg.NewFactory

	// Import individual transports via: _ "github.com/drblury/framepub/transport/kafka"
	// or all of them via: _ "github.com/drblury/framepub/transport/transports"
	DefaultTransportRegistry = newtransport.DefaultRegistry
	RegisterTransport        = newtransport.Register
	BuildTransport           = newtransport.Build
	GetCapabilities          = newtransport.GetCapabilities

	Marshal       = jsoncodec.Marshal
	MarshalIndent = jsoncodec.MarshalIndent
	Unmarshal     = jsoncodec.Unmarshal
	Encode        = jsoncodec.Encode
	Decode        = jsoncodec.Decode

	ErrAllocation             = errspkg.ErrAllocation
	ErrCapacityExceeded       = errspkg.ErrCapacityExceeded
	ErrReleased               = errspkg.ErrReleased
	ErrEndpointInit           = errspkg.ErrEndpointInit
	ErrPublish                = errspkg.ErrPublish
	ErrPublisherRequired      = errspkg.ErrPublisherRequired
	ErrTopicRequired          = errspkg.ErrTopicRequired
	ErrMessageRequired        = errspkg.ErrMessageRequired
	ErrTimerInit              = errspkg.ErrTimerInit
	ErrTimerAlreadyRegistered = errspkg.ErrTimerAlreadyRegistered
	ErrNoTimer                = errspkg.ErrNoTimer
	ErrExecutorRunning        = errspkg.ErrExecutorRunning
	ErrExecutorStopped        = errspkg.ErrExecutorStopped
	ErrConfigRequired         = errspkg.ErrConfigRequired
	ErrLoggerRequired         = errspkg.ErrLoggerRequired

	NewSlogServiceLogger      = loggingpkg.NewSlogServiceLogger
	NewWatermillServiceLogger = loggingpkg.NewWatermillServiceLogger
	NewNopServiceLogger       = loggingpkg.NewNopServiceLogger

	NewMetadata = metadatapkg.New

	CreateULID = idspkg.CreateULID
)

// Executor states.
const (
	ExecutorIdle    = executorpkg.Idle
	ExecutorRunning = executorpkg.Running
	ExecutorStopped = executorpkg.Stopped
)

// Metadata keys set on every published message.
const (
	MetadataKeySchema        = metadatapkg.KeySchema
	MetadataKeyContentType   = metadatapkg.KeyContentType
	MetadataKeyNode          = metadatapkg.KeyNode
	MetadataKeyTick          = metadatapkg.KeyTick
	MetadataKeyCorrelationID = runtimepkg.MetadataKeyCorrelationID
)

// Defaults of a node built from an empty Config.
const (
	DefaultNodeName        = configpkg.DefaultNodeName
	DefaultCounterTopic    = configpkg.DefaultCounterTopic
	DefaultImageTopic      = configpkg.DefaultImageTopic
	DefaultTimerPeriod     = configpkg.DefaultTimerPeriod
	DefaultFrameID         = modelspkg.DefaultFrameID
	DefaultFormat          = modelspkg.DefaultFormat
	DefaultPayloadCapacity = modelspkg.DefaultPayloadCapacity

	CounterSchema = modelspkg.CounterSchema
	FrameSchema   = modelspkg.FrameSchema
)
