// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Metroverse Contributors

// Package observability provides HTTP endpoints for metrics and health probes.
package observability

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/samber/oops"

	"github.com/metroverse/scriptbridge/internal/registry"
)

// ReadinessChecker reports whether the bridge runtime is ready.
type ReadinessChecker func() bool

var _ registry.Metrics = (*Metrics)(nil)

// Metrics holds the bridge's Prometheus metrics. It satisfies the
// registry's Metrics interface.
type Metrics struct {
	PluginLoads      *prometheus.CounterVec
	DispatchFailures *prometheus.CounterVec
	CheatsHandled    *prometheus.CounterVec
}

// NewMetrics creates and registers the bridge metrics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		PluginLoads: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scriptbridge_plugin_loads_total",
				Help: "Total number of plugin load attempts by result",
			},
			[]string{"result"},
		),
		DispatchFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scriptbridge_dispatch_failures_total",
				Help: "Total number of plugin hook failures by hook",
			},
			[]string{"hook"},
		),
		CheatsHandled: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scriptbridge_cheats_handled_total",
				Help: "Total number of cheats consumed by plugins",
			},
			[]string{"plugin"},
		),
	}

	reg.MustRegister(m.PluginLoads)
	reg.MustRegister(m.DispatchFailures)
	reg.MustRegister(m.CheatsHandled)

	return m
}

// PluginLoaded records a plugin load attempt with result "ok" or "error".
func (m *Metrics) PluginLoaded(result string) {
	m.PluginLoads.WithLabelValues(result).Inc()
}

// DispatchFailure records a failed plugin hook invocation.
func (m *Metrics) DispatchFailure(hook string) {
	m.DispatchFailures.WithLabelValues(hook).Inc()
}

// CheatHandled records a cheat consumed by the named plugin.
func (m *Metrics) CheatHandled(plugin string) {
	m.CheatsHandled.WithLabelValues(plugin).Inc()
}

// Server provides the /metrics endpoint and health probes.
type Server struct {
	addr       string
	listener   net.Listener
	httpServer *http.Server
	registry   *prometheus.Registry
	metrics    *Metrics
	isReady    ReadinessChecker
	running    atomic.Bool
}

// NewServer creates an observability server listening on addr in
// "host:port" format.
func NewServer(addr string, readinessChecker ReadinessChecker) *Server {
	// Own registry so tests and the host process never collide on the
	// global one.
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	return &Server{
		addr:     addr,
		registry: registry,
		metrics:  NewMetrics(registry),
		isReady:  readinessChecker,
	}
}

// Metrics returns the bridge metrics for recording application events.
func (s *Server) Metrics() *Metrics {
	return s.metrics
}

// Start begins serving. It returns an error channel that receives any
// error from the HTTP server after startup; the channel is closed on
// graceful stop.
func (s *Server) Start() (<-chan error, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, oops.Errorf("observability server already running")
	}

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		s.running.Store(false)
		return nil, oops.With("addr", s.addr).Wrap(err)
	}
	s.listener = listener

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	}))
	mux.HandleFunc("/healthz/liveness", s.handleLiveness)
	mux.HandleFunc("/healthz/readiness", s.handleReadiness)

	httpSrv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.httpServer = httpSrv

	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		if serveErr := httpSrv.Serve(listener); serveErr != nil && serveErr != http.ErrServerClosed {
			slog.Error("observability server error", "error", serveErr)
			errCh <- serveErr
		}
	}()

	slog.Info("observability server started", "addr", listener.Addr().String())
	return errCh, nil
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}

	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.running.Store(true)
			return oops.With("operation", "shutdown_observability_server").Wrap(err)
		}
	}

	slog.Info("observability server stopped")
	return nil
}

// Addr returns the bound address, or empty when not running.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}

func (s *Server) handleLiveness(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	//nolint:errcheck // health check write error is acceptable, client may disconnect
	w.Write([]byte("ok\n"))
}

func (s *Server) handleReadiness(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")

	if s.isReady == nil || s.isReady() {
		w.WriteHeader(http.StatusOK)
		//nolint:errcheck // health check write error is acceptable, client may disconnect
		w.Write([]byte("ok\n"))
		return
	}

	w.WriteHeader(http.StatusServiceUnavailable)
	//nolint:errcheck // health check write error is acceptable, client may disconnect
	w.Write([]byte("not ready\n"))
}
