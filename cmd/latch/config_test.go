package main

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
)

func newTestViper(t *testing.T, values map[string]any) *viper.Viper {
	t.Helper()
	v := viper.New()
	if err := v.BindPFlags(rootCmd.PersistentFlags()); err != nil {
		t.Fatalf("bind flags: %v", err)
	}
	for k, val := range values {
		v.Set(k, val)
	}
	return v
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := loadConfig(newTestViper(t, nil))
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Backend != "redis" || cfg.RedisAddr != "localhost:6379" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.MinBackoff != 2*time.Millisecond || cfg.MaxBackoff != 200*time.Millisecond {
		t.Fatalf("unexpected backoff defaults: %v %v", cfg.MinBackoff, cfg.MaxBackoff)
	}
	if cfg.TokenSource != "uuid" {
		t.Fatalf("unexpected token source %q", cfg.TokenSource)
	}
}

func TestLoadConfigRejectsInvalid(t *testing.T) {
	cases := map[string]map[string]any{
		"backend":      {"backend": "etcd"},
		"token source": {"token-source": "random"},
		"backoff":      {"min-backoff": time.Second, "max-backoff": time.Millisecond},
	}
	for name, values := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := loadConfig(newTestViper(t, values)); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := newLogger(config{LogLevel: "warn", LogFormat: "json"}, &buf)
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}
	logger.Info("hidden")
	logger.Warn("shown", "key", "job:1")
	if strings.Contains(buf.String(), "hidden") || !strings.Contains(buf.String(), `"key":"job:1"`) {
		t.Fatalf("unexpected log output %q", buf.String())
	}
	if _, err := newLogger(config{LogLevel: "loud", LogFormat: "text"}, &buf); err == nil {
		t.Fatal("expected invalid level error")
	}
	if _, err := newLogger(config{LogLevel: "info", LogFormat: "xml"}, &buf); err == nil {
		t.Fatal("expected invalid format error")
	}
}

func TestOpenLatchMemory(t *testing.T) {
	cfg, err := loadConfig(newTestViper(t, map[string]any{"backend": "memory", "token-source": "id"}))
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	logger, _ := newLogger(cfg, &bytes.Buffer{})
	l, err := openLatch(cfg, logger)
	if err != nil {
		t.Fatalf("open latch: %v", err)
	}
	defer l.Close()
	ctx := context.Background()
	h, ok, err := l.Locker.TryLock(ctx, "k", time.Second)
	if err != nil || !ok {
		t.Fatalf("trylock: %v ok %v", err, ok)
	}
	if strings.Contains(h.Token(), "-") {
		t.Fatalf("expected id token, got %q", h.Token())
	}
}

func executeArgs(t *testing.T, args ...string) error {
	t.Helper()
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	_ = teardown(rootCmd, nil)
	return err
}

func TestRunCommandPassesExitStatus(t *testing.T) {
	if err := executeArgs(t, "--backend", "memory", "run", "job:1", "--", "sh", "-c", "exit 0"); err != nil {
		t.Fatalf("run: %v", err)
	}
	err := executeArgs(t, "--backend", "memory", "run", "job:1", "--", "sh", "-c", "exit 3")
	var exitErr *exitCodeError
	if !errors.As(err, &exitErr) || exitErr.code != 3 {
		t.Fatalf("expected exit status 3, got %v", err)
	}
}

func TestIDCommand(t *testing.T) {
	if err := executeArgs(t, "--backend", "memory", "id", "-n", "3"); err != nil {
		t.Fatalf("id: %v", err)
	}
	if err := executeArgs(t, "id", "decode", "4294967297"); err != nil {
		t.Fatalf("decode: %v", err)
	}
}

func TestBenchCommandMemory(t *testing.T) {
	err := executeArgs(t, "--backend", "memory", "--min-backoff", "0s", "--max-backoff", "1ms", "bench", "-c", "4", "-n", "10")
	if err != nil {
		t.Fatalf("bench: %v", err)
	}
}
