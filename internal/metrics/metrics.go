// Package metrics holds kiln's Prometheus instrumentation.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// BlocksRendered counts completed output blocks.
	BlocksRendered = promauto.NewCounter(prometheus.CounterOpts{
		Name: "kiln_blocks_rendered_total",
		Help: "Total number of audio blocks rendered",
	})

	// SignalFaults counts signals removed after panicking mid-render.
	SignalFaults = promauto.NewCounter(prometheus.CounterOpts{
		Name: "kiln_signal_faults_total",
		Help: "Total number of signals removed due to a render fault",
	})

	// AllocFailures counts refused arena allocations by arena ("slab" or "pool").
	AllocFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kiln_alloc_failures_total",
		Help: "Total number of refused arena allocations",
	}, []string{"arena"})

	// ActiveSignals tracks the current registry size.
	ActiveSignals = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "kiln_active_signals",
		Help: "Number of currently registered signals",
	})
)

// Serve exposes /metrics on addr. It blocks, so run it on its own goroutine.
func Serve(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return srv.ListenAndServe()
}
