package cql

import (
	"net"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PromHook is an optional Hook implementation exporting connection and
// execution counters/histograms to Prometheus, registered via WithHooks
// like any other Hook — the driver core has no hard dependency on it.
type PromHook struct {
	connectTotal   *prometheus.CounterVec
	connectSeconds prometheus.Histogram
	writeBytes     prometheus.Counter
	writeSeconds   prometheus.Histogram
	readBytes      prometheus.Counter
	readSeconds    prometheus.Histogram
	defunctTotal   *prometheus.CounterVec
	speculativeTotal *prometheus.CounterVec
}

// NewPromHook constructs a PromHook and registers its collectors on reg. A
// nil reg registers against prometheus.DefaultRegisterer.
func NewPromHook(reg prometheus.Registerer) *PromHook {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	h := &PromHook{
		connectTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cql_connect_total",
			Help: "Number of TCP dials attempted, by host and outcome.",
		}, []string{"host", "outcome"}),
		connectSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "cql_connect_seconds",
			Help:    "TCP dial duration.",
			Buckets: prometheus.DefBuckets,
		}),
		writeBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cql_write_bytes_total",
			Help: "Bytes written to CQL connections.",
		}),
		writeSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "cql_write_seconds",
			Help:    "Time spent writing a request frame.",
			Buckets: prometheus.DefBuckets,
		}),
		readBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cql_read_bytes_total",
			Help: "Bytes read from CQL connections.",
		}),
		readSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "cql_read_seconds",
			Help:    "Time spent reading a response frame.",
			Buckets: prometheus.DefBuckets,
		}),
		defunctTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cql_connection_defunct_total",
			Help: "Connections marked defunct, by host.",
		}, []string{"host"}),
		speculativeTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cql_speculative_executions_total",
			Help: "Speculative attempts launched, by host.",
		}, []string{"host"}),
	}
	reg.MustRegister(h.connectTotal, h.connectSeconds, h.writeBytes, h.writeSeconds,
		h.readBytes, h.readSeconds, h.defunctTotal, h.speculativeTotal)
	return h
}

func (h *PromHook) OnConnect(host string, dialDur time.Duration, conn net.Conn, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	h.connectTotal.WithLabelValues(host, outcome).Inc()
	h.connectSeconds.Observe(dialDur.Seconds())
}

func (h *PromHook) OnWrite(host string, n int, dur time.Duration, err error) {
	h.writeBytes.Add(float64(n))
	h.writeSeconds.Observe(dur.Seconds())
}

func (h *PromHook) OnRead(host string, n int, dur time.Duration, err error) {
	h.readBytes.Add(float64(n))
	h.readSeconds.Observe(dur.Seconds())
}

func (h *PromHook) OnDefunct(host string, err error) {
	h.defunctTotal.WithLabelValues(host).Inc()
}

func (h *PromHook) OnSpeculativeExecution(host string, attemptIndex int) {
	h.speculativeTotal.WithLabelValues(host).Inc()
}
