package runtime

import (
	"testing"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	configpkg "github.com/drblury/framepub/internal/runtime/config"
	loggingpkg "github.com/drblury/framepub/internal/runtime/logging"
)

func newTestListener(t *testing.T, conf *configpkg.Config) *Listener {
	t.Helper()
	router, err := message.NewRouter(message.RouterConfig{}, watermill.NopLogger{})
	require.NoError(t, err)
	return &Listener{
		Conf:       conf,
		Logger:     loggingpkg.NewNopServiceLogger(),
		router:     router,
		registerer: prometheus.NewRegistry(),
	}
}

func passthrough(seen **message.Message) message.HandlerFunc {
	return func(msg *message.Message) ([]*message.Message, error) {
		*seen = msg
		return nil, nil
	}
}

func TestRegisterMiddlewareErrors(t *testing.T) {
	l := &Listener{}
	assert.EqualError(t, l.RegisterMiddleware(CorrelationIDMiddleware()), "router is not initialised")

	l = newTestListener(t, &configpkg.Config{})
	assert.EqualError(t, l.RegisterMiddleware(MiddlewareRegistration{Name: "nothing"}),
		"middleware registration requires Middleware or Builder")
}

func TestDefaultMiddlewaresRegister(t *testing.T) {
	l := newTestListener(t, &configpkg.Config{})

	regs := DefaultMiddlewares()
	names := make([]string, 0, len(regs))
	for _, reg := range regs {
		names = append(names, reg.Name)
		require.NoError(t, l.RegisterMiddleware(reg))
	}
	assert.Equal(t, []string{"correlation_id", "log_messages", "tracer", "metrics", "recoverer"}, names)
}

func TestCorrelationIDMiddleware(t *testing.T) {
	var seen *message.Message

	msg := message.NewMessage(watermill.NewUUID(), nil)
	_, err := correlationIDMiddleware(passthrough(&seen))(msg)
	require.NoError(t, err)
	assert.Len(t, seen.Metadata.Get(MetadataKeyCorrelationID), 26)

	msg = message.NewMessage(watermill.NewUUID(), nil)
	msg.Metadata.Set(MetadataKeyCorrelationID, "keep-me")
	_, err = correlationIDMiddleware(passthrough(&seen))(msg)
	require.NoError(t, err)
	assert.Equal(t, "keep-me", seen.Metadata.Get(MetadataKeyCorrelationID))
}

func TestLogMessagesMiddlewareNeedsLogger(t *testing.T) {
	l := newTestListener(t, &configpkg.Config{})
	l.Logger = nil

	err := l.RegisterMiddleware(LogMessagesMiddleware(nil))
	assert.EqualError(t, err, "log messages middleware requires a logger")

	require.NoError(t, l.RegisterMiddleware(LogMessagesMiddleware(loggingpkg.NewNopServiceLogger())))
}

func TestMetricsMiddleware(t *testing.T) {
	disabled := newTestListener(t, &configpkg.Config{})
	mw, err := MetricsMiddleware().Builder(disabled)
	require.NoError(t, err)
	assert.Nil(t, mw)

	enabled := newTestListener(t, &configpkg.Config{MetricsEnabled: true})
	mw, err = MetricsMiddleware().Builder(enabled)
	require.NoError(t, err)
	assert.NotNil(t, mw)
}

func TestTracerMiddlewareSetsContext(t *testing.T) {
	var seen *message.Message

	msg := message.NewMessage(watermill.NewUUID(), []byte("x"))
	_, err := tracerMiddleware(passthrough(&seen))(msg)
	require.NoError(t, err)
	require.NotNil(t, seen)
	assert.NotNil(t, seen.Context())
}
