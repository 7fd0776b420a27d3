package cli

import (
	"bytes"
	"flag"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDefaults(t *testing.T) {
	opts, err := Parse("framepub", nil, &bytes.Buffer{})
	require.NoError(t, err)

	assert.Equal(t, "info", opts.LogLevel)
	assert.Equal(t, "json", opts.LogFormat)
	assert.Empty(t, opts.ConfigPath)
	assert.Zero(t, opts.Period)

	cfg, err := opts.Config()
	require.NoError(t, err)
	assert.Empty(t, cfg.PubSubSystem)
	assert.False(t, cfg.MetricsEnabled)
}

func TestParseFlags(t *testing.T) {
	opts, err := Parse("framepub", []string{
		"-transport", "nats",
		"-node", "cam",
		"-counter-topic", "c",
		"-image-topic", "i",
		"-period", "250ms",
		"-metrics",
		"-metrics-port", "9191",
		"-log-level", "debug",
	}, &bytes.Buffer{})
	require.NoError(t, err)

	cfg, err := opts.Config()
	require.NoError(t, err)
	assert.Equal(t, "nats", cfg.PubSubSystem)
	assert.Equal(t, "cam", cfg.NodeName)
	assert.Equal(t, "c", cfg.CounterTopic)
	assert.Equal(t, "i", cfg.ImageTopic)
	assert.Equal(t, 250*time.Millisecond, cfg.TimerPeriod)
	assert.True(t, cfg.MetricsEnabled)
	assert.Equal(t, 9191, cfg.MetricsPort)
}

func TestParseEnvFallback(t *testing.T) {
	t.Setenv("FRAMEPUB_TRANSPORT", "sqlite")
	t.Setenv("FRAMEPUB_PERIOD", "2s")
	t.Setenv("FRAMEPUB_METRICS", "true")
	t.Setenv("FRAMEPUB_METRICS_PORT", "not-a-number")

	opts, err := Parse("framepub", nil, &bytes.Buffer{})
	require.NoError(t, err)
	assert.Equal(t, "sqlite", opts.PubSubSystem)
	assert.Equal(t, 2*time.Second, opts.Period)
	assert.True(t, opts.MetricsEnabled)
	assert.Zero(t, opts.MetricsPort)

	// Flags win over the environment.
	opts, err = Parse("framepub", []string{"-transport", "channel"}, &bytes.Buffer{})
	require.NoError(t, err)
	assert.Equal(t, "channel", opts.PubSubSystem)
}

func TestParseRejectsInvalidValues(t *testing.T) {
	cases := map[string][]string{
		"log level":  {"-log-level", "loud"},
		"log format": {"-log-format", "xml"},
		"period":     {"-period", "-1s"},
		"port":       {"-metrics-port", "70000"},
	}
	for name, args := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse("framepub", args, &bytes.Buffer{})
			assert.Error(t, err)
		})
	}

	_, err := Parse("framepub", []string{"-h"}, &bytes.Buffer{})
	assert.ErrorIs(t, err, flag.ErrHelp)
}

func TestConfigFileWithOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "node.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"pubsub_system": "sqlite",
		"sqlite_file": "queue.db",
		"node_name": "from-file",
		"timer_period": "500ms"
	}`), 0o600))

	opts, err := Parse("framepub", []string{"-config", path, "-node", "from-flag"}, &bytes.Buffer{})
	require.NoError(t, err)

	cfg, err := opts.Config()
	require.NoError(t, err)
	assert.Equal(t, "sqlite", cfg.PubSubSystem)
	assert.Equal(t, "queue.db", cfg.SQLiteFile)
	assert.Equal(t, "from-flag", cfg.NodeName)
	assert.Equal(t, 500*time.Millisecond, cfg.TimerPeriod)

	opts.ConfigPath = filepath.Join(t.TempDir(), "missing.json")
	_, err = opts.Config()
	assert.Error(t, err)
}

func TestLoggerTagsService(t *testing.T) {
	var buf bytes.Buffer
	opts := &Options{LogLevel: "info", LogFormat: "json"}

	opts.Logger(&buf, "framepub").Info("hello")
	assert.Contains(t, buf.String(), `"service":"framepub"`)
	assert.Contains(t, buf.String(), `"version":"`+Version+`"`)
}
