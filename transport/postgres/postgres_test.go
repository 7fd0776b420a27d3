package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/drblury/framepub/transport"
	"github.com/drblury/framepub/transport/transporttest"
)

func TestRegister(t *testing.T) {
	original := transport.DefaultRegistry
	t.Cleanup(func() { transport.DefaultRegistry = original })

	transport.DefaultRegistry = transport.NewRegistry()
	Register()

	caps := transport.GetCapabilities(TransportName)
	assert.Equal(t, "postgres", caps.Name)
	assert.True(t, caps.Durable)
	assert.False(t, caps.SupportsTracing)

	assert.Equal(t, "postgres", transport.GetCapabilities("postgresql").Name)
	assert.Equal(t, transport.PostgresCapabilities, Capabilities())
}

func TestConfig_withDefaults(t *testing.T) {
	t.Run("empty config gets defaults", func(t *testing.T) {
		result := Config{}.withDefaults()

		assert.Equal(t, DefaultPollInterval, result.PollInterval)
		assert.Equal(t, DefaultMaxRetries, result.MaxRetries)
		assert.Equal(t, DefaultLockTimeout, result.LockTimeout)
		assert.Equal(t, "framepub", result.SchemaName)
		assert.Equal(t, 10, result.MaxOpenConns)
		assert.Equal(t, 5, result.MaxIdleConns)
	})

	t.Run("custom values preserved", func(t *testing.T) {
		cfg := Config{
			ConnectionString: "postgres://localhost:5432/test",
			PollInterval:     200 * time.Millisecond,
			MaxRetries:       5,
			LockTimeout:      time.Minute,
			SchemaName:       "custom",
		}
		result := cfg.withDefaults()

		assert.Equal(t, cfg.ConnectionString, result.ConnectionString)
		assert.Equal(t, cfg.PollInterval, result.PollInterval)
		assert.Equal(t, 5, result.MaxRetries)
		assert.Equal(t, time.Minute, result.LockTimeout)
		assert.Equal(t, "custom", result.SchemaName)
	})
}

func TestConfig_validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr error
	}{
		{name: "valid", cfg: Config{ConnectionString: "postgres://x", SchemaName: "framepub_q1"}},
		{name: "missing connection", cfg: Config{SchemaName: "framepub"}, wantErr: ErrConnectionRequired},
		{name: "injection", cfg: Config{ConnectionString: "postgres://x", SchemaName: "a; DROP TABLE x"}, wantErr: ErrInvalidSchema},
		{name: "upper case", cfg: Config{ConnectionString: "postgres://x", SchemaName: "Framepub"}, wantErr: ErrInvalidSchema},
		{name: "leading digit", cfg: Config{ConnectionString: "postgres://x", SchemaName: "1q"}, wantErr: ErrInvalidSchema},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.validate()
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestNew_RejectsBadConfigBeforeConnecting(t *testing.T) {
	_, err := New(Config{}, nil)
	assert.ErrorIs(t, err, ErrConnectionRequired)

	_, err = New(Config{ConnectionString: "postgres://x", SchemaName: "bad-name"}, nil)
	assert.ErrorIs(t, err, ErrInvalidSchema)
}

func TestBuild_MissingURL(t *testing.T) {
	_, err := Build(context.Background(), &transporttest.Config{}, nil)
	assert.ErrorIs(t, err, ErrConnectionRequired)
}
