// Package cli holds the flag handling shared by the framepub commands.
package cli

import (
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strconv"
	"time"

	configpkg "github.com/drblury/framepub/internal/runtime/config"
	loggingpkg "github.com/drblury/framepub/internal/runtime/logging"
)

// Version is stamped into every log line of the commands.
const Version = "0.1.0"

// Options holds command-line configuration. Empty values leave the config
// file (or the defaults) in charge.
type Options struct {
	ConfigPath     string
	PubSubSystem   string
	NodeName       string
	CounterTopic   string
	ImageTopic     string
	Period         time.Duration
	MetricsEnabled bool
	MetricsPort    int
	LogLevel       string
	LogFormat      string
	ShowVersion    bool
	Validate       bool
}

// Register defines the flags on fs, each with a FRAMEPUB_* environment
// fallback.
func (o *Options) Register(fs *flag.FlagSet) {
	fs.StringVar(&o.ConfigPath, "config",
		getEnv("FRAMEPUB_CONFIG", ""),
		"Path to a JSON configuration file (env: FRAMEPUB_CONFIG)")

	fs.StringVar(&o.PubSubSystem, "transport",
		getEnv("FRAMEPUB_TRANSPORT", ""),
		"Transport name, e.g. channel, kafka, nats (env: FRAMEPUB_TRANSPORT)")

	fs.StringVar(&o.NodeName, "node",
		getEnv("FRAMEPUB_NODE", ""),
		"Node name (env: FRAMEPUB_NODE)")

	fs.StringVar(&o.CounterTopic, "counter-topic",
		getEnv("FRAMEPUB_COUNTER_TOPIC", ""),
		"Counter topic (env: FRAMEPUB_COUNTER_TOPIC)")

	fs.StringVar(&o.ImageTopic, "image-topic",
		getEnv("FRAMEPUB_IMAGE_TOPIC", ""),
		"Image topic (env: FRAMEPUB_IMAGE_TOPIC)")

	fs.DurationVar(&o.Period, "period",
		getEnvDuration("FRAMEPUB_PERIOD", 0),
		"Timer period (env: FRAMEPUB_PERIOD)")

	fs.BoolVar(&o.MetricsEnabled, "metrics",
		getEnvBool("FRAMEPUB_METRICS", false),
		"Serve Prometheus metrics (env: FRAMEPUB_METRICS)")

	fs.IntVar(&o.MetricsPort, "metrics-port",
		getEnvInt("FRAMEPUB_METRICS_PORT", 0),
		"Metrics port (env: FRAMEPUB_METRICS_PORT)")

	fs.StringVar(&o.LogLevel, "log-level",
		getEnv("FRAMEPUB_LOG_LEVEL", "info"),
		"Log level: debug, info, warn, error (env: FRAMEPUB_LOG_LEVEL)")

	fs.StringVar(&o.LogFormat, "log-format",
		getEnv("FRAMEPUB_LOG_FORMAT", "json"),
		"Log format: json, text (env: FRAMEPUB_LOG_FORMAT)")

	fs.BoolVar(&o.ShowVersion, "version", false, "Show version information")
	fs.BoolVar(&o.Validate, "validate", false, "Validate configuration and exit")
}

// Parse registers the flags on a new FlagSet named name and parses args.
func Parse(name string, args []string, output io.Writer) (*Options, error) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(output)

	opts := &Options{}
	opts.Register(fs)
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if err := opts.validate(); err != nil {
		return nil, err
	}
	return opts, nil
}

func (o *Options) validate() error {
	if !slices.Contains([]string{"debug", "info", "warn", "error"}, o.LogLevel) {
		return fmt.Errorf("invalid log level: %s", o.LogLevel)
	}
	if !slices.Contains([]string{"json", "text"}, o.LogFormat) {
		return fmt.Errorf("invalid log format: %s", o.LogFormat)
	}
	if o.Period < 0 {
		return fmt.Errorf("invalid period: %s", o.Period)
	}
	if o.MetricsPort < 0 || o.MetricsPort > 65535 {
		return fmt.Errorf("invalid metrics port: %d", o.MetricsPort)
	}
	return nil
}

// Config loads the config file when one is named and applies the flags on
// top of it. Defaults are applied by the service.
func (o *Options) Config() (*configpkg.Config, error) {
	cfg := &configpkg.Config{}
	if o.ConfigPath != "" {
		loaded, err := configpkg.Load(o.ConfigPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if o.PubSubSystem != "" {
		cfg.PubSubSystem = o.PubSubSystem
	}
	if o.NodeName != "" {
		cfg.NodeName = o.NodeName
	}
	if o.CounterTopic != "" {
		cfg.CounterTopic = o.CounterTopic
	}
	if o.ImageTopic != "" {
		cfg.ImageTopic = o.ImageTopic
	}
	if o.Period > 0 {
		cfg.TimerPeriod = o.Period
	}
	if o.MetricsEnabled {
		cfg.MetricsEnabled = true
	}
	if o.MetricsPort > 0 {
		cfg.MetricsPort = o.MetricsPort
	}
	return cfg, nil
}

// Logger builds the process logger and tags it with the command name.
func (o *Options) Logger(w io.Writer, name string) *slog.Logger {
	return loggingpkg.NewSlogLogger(w, o.LogFormat, o.LogLevel).With(
		"service", name,
		"version", Version,
		"pid", os.Getpid(),
	)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
