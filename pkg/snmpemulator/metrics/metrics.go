// Package metrics instruments the emulator with Prometheus collectors and
// serves them over HTTP. Every method is safe on a nil *Metrics, so
// components can be built without instrumentation.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// DefaultNamespace prefixes every metric name.
const DefaultNamespace = "snmpemulator"

// Varbind outcomes.
const (
	OutcomeOK           = "ok"
	OutcomeNoSuchObject = "no_such_object"
	OutcomeNoSuchInst   = "no_such_instance"
	OutcomeEndOfView    = "end_of_mib_view"
	OutcomeDenied       = "not_writable"
	OutcomeBadValue     = "bad_value"
	OutcomeError        = "error"
)

// Metrics holds the collectors, registered on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	varbinds        *prometheus.CounterVec
	dropped         *prometheus.CounterVec
	writes          *prometheus.CounterVec
	links           *prometheus.CounterVec
	reloads         *prometheus.CounterVec
	instances       prometheus.Gauge
	uptime          prometheus.GaugeFunc
}

// New creates and registers every collector under namespace.
func New(namespace string) *Metrics {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	started := time.Now()
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "SNMP requests answered, by PDU type and protocol version",
		}, []string{"pdu_type", "version"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "Time spent answering one SNMP request",
			Buckets:   []float64{.0001, .00025, .0005, .001, .0025, .005, .01, .025, .05, .1},
		}, []string{"pdu_type"}),
		varbinds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "varbinds_total",
			Help:      "Variable bindings processed, by outcome",
		}, []string{"outcome"}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "packets_dropped_total",
			Help:      "Packets discarded without a response, by reason",
		}, []string{"reason"}),
		writes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "writes_total",
			Help:      "Applied changes to the runtime overlay, by MIB and source",
		}, []string{"mib", "source"}),
		links: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "link_propagations_total",
			Help:      "Linked writes, by outcome",
		}, []string{"outcome"}),
		reloads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reloads_total",
			Help:      "Configuration reloads, by result",
		}, []string{"result"}),
		instances: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "instances",
			Help:      "Addressable instances in the current tree",
		}),
	}
	m.uptime = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "uptime_seconds",
		Help:      "Seconds since the emulator started",
	}, func() float64 { return time.Since(started).Seconds() })

	m.registry.MustRegister(
		m.requests,
		m.requestDuration,
		m.varbinds,
		m.dropped,
		m.writes,
		m.links,
		m.reloads,
		m.instances,
		m.uptime,
	)
	return m
}

// Registry exposes the private registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

// ─────────────────────────────────────────────────────────────────────────────
// Observations
// ─────────────────────────────────────────────────────────────────────────────

// ObserveRequest records one answered request.
func (m *Metrics) ObserveRequest(pduType, version string, d time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(pduType, version).Inc()
	m.requestDuration.WithLabelValues(pduType).Observe(d.Seconds())
}

// ObserveVarbind records the outcome of one variable binding.
func (m *Metrics) ObserveVarbind(outcome string) {
	if m == nil {
		return
	}
	m.varbinds.WithLabelValues(outcome).Inc()
}

// ObserveDropped records a packet that got no response.
func (m *Metrics) ObserveDropped(reason string) {
	if m == nil {
		return
	}
	m.dropped.WithLabelValues(reason).Inc()
}

// ObserveWrite records one applied overlay change.
func (m *Metrics) ObserveWrite(mib, source string) {
	if m == nil {
		return
	}
	m.writes.WithLabelValues(mib, source).Inc()
}

// ObserveLinks records the outcome counts of one propagation pass.
func (m *Metrics) ObserveLinks(applied, skipped, failed int) {
	if m == nil {
		return
	}
	m.links.WithLabelValues("applied").Add(float64(applied))
	m.links.WithLabelValues("skipped").Add(float64(skipped))
	m.links.WithLabelValues("failed").Add(float64(failed))
}

// ObserveReload records a reload attempt.
func (m *Metrics) ObserveReload(err error) {
	if m == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "failure"
	}
	m.reloads.WithLabelValues(result).Inc()
}

// SetInstances publishes the instance count of the current tree.
func (m *Metrics) SetInstances(n int) {
	if m == nil {
		return
	}
	m.instances.Set(float64(n))
}

// ─────────────────────────────────────────────────────────────────────────────
// HTTP server
// ─────────────────────────────────────────────────────────────────────────────

// Server serves /metrics and /health.
type Server struct {
	srv    *http.Server
	ln     net.Listener
	logger *slog.Logger
	done   chan struct{}
}

// NewServer binds addr. Use ":0" to pick a free port.
func NewServer(addr string, m *Metrics, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(noopWriter{}, nil))
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("metrics: listen %s: %w", addr, err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	return &Server{
		srv:    &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second},
		ln:     ln,
		logger: logger,
		done:   make(chan struct{}),
	}, nil
}

// Addr is the bound address.
func (s *Server) Addr() net.Addr { return s.ln.Addr() }

// Start serves in the background until Stop.
func (s *Server) Start() {
	s.logger.Info("metrics: server started", "addr", s.ln.Addr().String())
	go func() {
		defer close(s.done)
		if err := s.srv.Serve(s.ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("metrics: server failed", "error", err.Error())
		}
	}()
}

// Stop shuts the server down, waiting for in-flight scrapes until ctx ends.
func (s *Server) Stop(ctx context.Context) error {
	err := s.srv.Shutdown(ctx)
	<-s.done
	s.logger.Info("metrics: server stopped")
	return err
}

// ─────────────────────────────────────────────────────────────────────────────
// no-op logger writer
// ─────────────────────────────────────────────────────────────────────────────

type noopWriter struct{}

func (noopWriter) Write(p []byte) (int, error) { return len(p), nil }
