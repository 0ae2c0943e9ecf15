package main

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mirkobrombin/go-latch/v1/lock"
	"github.com/mirkobrombin/go-latch/v1/presets"
)

type config struct {
	Backend string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	NATSURL           string
	NATSLockBucket    string
	NATSCounterBucket string
	NATSTTL           time.Duration

	Timeout     time.Duration
	TokenSource string
	MinBackoff  time.Duration
	MaxBackoff  time.Duration

	LogLevel  string
	LogFormat string

	MetricsAddr string
	Trace       bool
}

// initConfig loads .env files and binds LATCH_* environment variables.
func initConfig() {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	viper.SetEnvPrefix("latch")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addConfigFlags(cmd *cobra.Command) {
	f := cmd.PersistentFlags()
	f.String("backend", "redis", "store backend (redis, nats, memory)")
	f.String("redis-addr", "localhost:6379", "address of the Redis server")
	f.String("redis-password", "", "password of the Redis server")
	f.Int("redis-db", 0, "Redis database number")
	f.String("nats-url", "nats://localhost:4222", "URL of the NATS server")
	f.String("nats-lock-bucket", "latch_locks", "JetStream bucket holding locks")
	f.String("nats-counter-bucket", "latch_counters", "JetStream bucket holding id counters")
	f.Duration("nats-ttl", 30*time.Second, "lock bucket max age; the only TTL locks may use with NATS")
	f.Duration("timeout", 5*time.Second, "timeout of a single store call")
	f.String("token-source", "uuid", "ownership token source (uuid, id)")
	f.Duration("min-backoff", lock.DefaultMinBackoff, "shortest pause between lock attempts")
	f.Duration("max-backoff", lock.DefaultMaxBackoff, "longest pause between lock attempts")
	f.String("log-level", "info", "log level (debug, info, warn, error)")
	f.String("log-format", "text", "log format (text, json)")
	f.String("metrics-addr", "", "serve Prometheus metrics on this address")
	f.Bool("trace", false, "print OpenTelemetry spans to stdout")
}

func loadConfig(v *viper.Viper) (config, error) {
	cfg := config{
		Backend:           strings.ToLower(v.GetString("backend")),
		RedisAddr:         v.GetString("redis-addr"),
		RedisPassword:     v.GetString("redis-password"),
		RedisDB:           v.GetInt("redis-db"),
		NATSURL:           v.GetString("nats-url"),
		NATSLockBucket:    v.GetString("nats-lock-bucket"),
		NATSCounterBucket: v.GetString("nats-counter-bucket"),
		NATSTTL:           v.GetDuration("nats-ttl"),
		Timeout:           v.GetDuration("timeout"),
		TokenSource:       strings.ToLower(v.GetString("token-source")),
		MinBackoff:        v.GetDuration("min-backoff"),
		MaxBackoff:        v.GetDuration("max-backoff"),
		LogLevel:          v.GetString("log-level"),
		LogFormat:         strings.ToLower(v.GetString("log-format")),
		MetricsAddr:       v.GetString("metrics-addr"),
		Trace:             v.GetBool("trace"),
	}
	switch cfg.Backend {
	case "redis", "nats", "memory":
	default:
		return cfg, fmt.Errorf("invalid backend %q", cfg.Backend)
	}
	switch cfg.TokenSource {
	case "uuid", "id":
	default:
		return cfg, fmt.Errorf("invalid token source %q", cfg.TokenSource)
	}
	if cfg.MaxBackoff < cfg.MinBackoff {
		return cfg, fmt.Errorf("max-backoff %v is below min-backoff %v", cfg.MaxBackoff, cfg.MinBackoff)
	}
	return cfg, nil
}

func newLogger(cfg config, w io.Writer) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		return nil, fmt.Errorf("invalid log level %q", cfg.LogLevel)
	}
	opts := &slog.HandlerOptions{Level: level}
	switch cfg.LogFormat {
	case "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return nil, fmt.Errorf("invalid log format %q", cfg.LogFormat)
}

func openLatch(cfg config, logger *slog.Logger) (*presets.Latch, error) {
	lockOpts := []lock.Option{
		lock.WithLogger(logger),
		lock.WithBackoff(cfg.MinBackoff, cfg.MaxBackoff),
	}
	idTokens := cfg.TokenSource == "id"
	switch cfg.Backend {
	case "nats":
		return presets.NewNATS(presets.NATSOptions{
			URL:           cfg.NATSURL,
			LockBucket:    cfg.NATSLockBucket,
			CounterBucket: cfg.NATSCounterBucket,
			TTL:           cfg.NATSTTL,
			IDTokens:      idTokens,
		}, lockOpts...)
	case "memory":
		return presets.NewInMemoryStandalone(presets.InMemoryOptions{IDTokens: idTokens}, lockOpts...), nil
	}
	return presets.NewRedis(presets.RedisOptions{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
		Timeout:  cfg.Timeout,
		IDTokens: idTokens,
	}, lockOpts...), nil
}
