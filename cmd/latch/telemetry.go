package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/mirkobrombin/go-latch/v1/metrics"
)

type telemetryState struct {
	server *http.Server
	tp     *sdktrace.TracerProvider
}

func startTelemetry(cfg config) (*telemetryState, error) {
	st := &telemetryState{}
	if cfg.Trace {
		exp, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, err
		}
		st.tp = sdktrace.NewTracerProvider(sdktrace.WithBatcher(exp))
		otel.SetTracerProvider(st.tp)
	}
	if cfg.MetricsAddr != "" {
		reg := metrics.NewRegistry()
		metrics.RegisterLockMetrics(reg)
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		st.server = &http.Server{Addr: cfg.MetricsAddr, Handler: mux}
		go func() {
			if err := st.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("latch: metrics server stopped", "addr", cfg.MetricsAddr, "error", err)
			}
		}()
	}
	return st, nil
}

func (st *telemetryState) shutdown(ctx context.Context) error {
	var errs []error
	if st.server != nil {
		errs = append(errs, st.server.Shutdown(ctx))
	}
	if st.tp != nil {
		errs = append(errs, st.tp.Shutdown(ctx))
	}
	return errors.Join(errs...)
}
