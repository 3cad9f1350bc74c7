// Package balancermetrics exposes the container balancer's Prometheus
// metrics, matching §6.2 of the control-loop specification exactly.
package balancermetrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every counter and gauge the iteration engine reports.
//
// The spec's "Latest" metrics are reset at the start of every iteration
// (§6.2), which a true monotonic prometheus.Counter cannot do; they are
// implemented as Gauges here, set once per iteration rather than
// incremented, while the cumulative counterparts remain Counters.
type Metrics struct {
	NumIterations                    prometheus.Counter
	NumContainerMovesCompleted       prometheus.Counter
	NumContainerMovesTimeout         prometheus.Counter
	NumContainerMovesCompletedLatest prometheus.Gauge
	NumContainerMovesTimeoutLatest   prometheus.Gauge
	NumDatanodesInvolvedLatest       prometheus.Gauge
	DataSizeMovedGB                  prometheus.Counter
	DataSizeMovedGBLatest            prometheus.Gauge
	NumDatanodesUnbalanced           prometheus.Gauge
	DataSizeUnbalancedGB             prometheus.Gauge
}

// New creates and registers the balancer's metrics against the supplied
// registerer, matching the teacher's NewPrometheusMetrics/MustRegister
// pattern. Pass prometheus.DefaultRegisterer in production and a fresh
// prometheus.NewRegistry() in tests to avoid duplicate-registration panics.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		NumIterations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "containerbalancer_iterations_total",
			Help: "Total number of balancer iterations run.",
		}),
		NumContainerMovesCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "containerbalancer_container_moves_completed_total",
			Help: "Total number of container moves that completed successfully.",
		}),
		NumContainerMovesTimeout: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "containerbalancer_container_moves_timeout_total",
			Help: "Total number of container moves that timed out.",
		}),
		NumContainerMovesCompletedLatest: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "containerbalancer_container_moves_completed_latest",
			Help: "Container moves completed in the most recent iteration.",
		}),
		NumContainerMovesTimeoutLatest: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "containerbalancer_container_moves_timeout_latest",
			Help: "Container moves timed out in the most recent iteration.",
		}),
		NumDatanodesInvolvedLatest: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "containerbalancer_datanodes_involved_latest",
			Help: "Data nodes involved in the most recent iteration.",
		}),
		DataSizeMovedGB: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "containerbalancer_data_size_moved_gb_total",
			Help: "Cumulative data size moved, in GB.",
		}),
		DataSizeMovedGBLatest: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "containerbalancer_data_size_moved_gb_latest",
			Help: "Data size moved in the most recent iteration, in GB.",
		}),
		NumDatanodesUnbalanced: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "containerbalancer_datanodes_unbalanced",
			Help: "Number of unbalanced (over- or under-utilized) data nodes, as of the most recent iteration.",
		}),
		DataSizeUnbalancedGB: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "containerbalancer_data_size_unbalanced_gb",
			Help: "Estimated unbalanced data size, in GB, as of the most recent iteration.",
		}),
	}

	reg.MustRegister(
		m.NumIterations,
		m.NumContainerMovesCompleted,
		m.NumContainerMovesTimeout,
		m.NumContainerMovesCompletedLatest,
		m.NumContainerMovesTimeoutLatest,
		m.NumDatanodesInvolvedLatest,
		m.DataSizeMovedGB,
		m.DataSizeMovedGBLatest,
		m.NumDatanodesUnbalanced,
		m.DataSizeUnbalancedGB,
	)

	return m
}

// ResetGauges zeroes every per-iteration gauge, including the "Latest"
// family, at the start of an iteration (§6.2 reset policy).
func (m *Metrics) ResetGauges() {
	m.NumContainerMovesCompletedLatest.Set(0)
	m.NumContainerMovesTimeoutLatest.Set(0)
	m.NumDatanodesInvolvedLatest.Set(0)
	m.DataSizeMovedGBLatest.Set(0)
	m.NumDatanodesUnbalanced.Set(0)
	m.DataSizeUnbalancedGB.Set(0)
}

// RecordIterationTotals folds one iteration's tallies into the cumulative
// counters and sets the "latest" gauges for the iteration just completed.
func (m *Metrics) RecordIterationTotals(completed, timedOut int, sizeMovedGB float64, datanodesInvolved int) {
	m.NumIterations.Inc()

	m.NumContainerMovesCompleted.Add(float64(completed))
	m.NumContainerMovesCompletedLatest.Set(float64(completed))
	m.NumContainerMovesTimeout.Add(float64(timedOut))
	m.NumContainerMovesTimeoutLatest.Set(float64(timedOut))
	m.NumDatanodesInvolvedLatest.Set(float64(datanodesInvolved))
	m.DataSizeMovedGB.Add(sizeMovedGB)
	m.DataSizeMovedGBLatest.Set(sizeMovedGB)
}

// SetUnbalanced sets the per-iteration unbalanced-state gauges, computed by
// the iteration engine from the classified snapshot.
func (m *Metrics) SetUnbalanced(numDatanodes int, sizeGB float64) {
	m.NumDatanodesUnbalanced.Set(float64(numDatanodes))
	m.DataSizeUnbalancedGB.Set(sizeGB)
}

// Server serves the balancer's metrics over HTTP, matching the teacher's
// MetricsServer.
type Server struct {
	server *http.Server
}

func NewServer(addr string) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	return &Server{server: &http.Server{Addr: addr, Handler: mux}}
}

func (s *Server) Start() error {
	err := s.server.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
