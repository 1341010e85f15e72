// SPDX-License-Identifier: MIT
//
// Package metrics exposes pipeline counters and levels to Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"soukou/internal/analysis"
)

// Metrics holds the collectors for one registry. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	registry *prometheus.Registry

	frames     prometheus.Counter
	transients prometheus.Counter
	runs       *prometheus.CounterVec // Finished runs, by outcome.
	windows    prometheus.Counter
	active     prometheus.Gauge
	rms        prometheus.Gauge
	dbfs       prometheus.Gauge
	dropped    prometheus.Counter
}

// New creates the collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		frames: factory.NewCounter(prometheus.CounterOpts{
			Name: "soukou_frames_published_total",
			Help: "Frames published by the frame composer",
		}),
		transients: factory.NewCounter(prometheus.CounterOpts{
			Name: "soukou_transients_total",
			Help: "Frames flagged as transient",
		}),
		runs: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "soukou_pipeline_runs_total",
			Help: "Pipeline runs that ended, by outcome",
		}, []string{"outcome"}),
		windows: factory.NewCounter(prometheus.CounterOpts{
			Name: "soukou_windows_dispatched_total",
			Help: "Windows dispatched by finished pipeline runs",
		}),
		active: factory.NewGauge(prometheus.GaugeOpts{
			Name: "soukou_pipeline_active",
			Help: "1 while a playback pipeline is running",
		}),
		rms: factory.NewGauge(prometheus.GaugeOpts{
			Name: "soukou_rms",
			Help: "RMS of the most recent frame",
		}),
		dbfs: factory.NewGauge(prometheus.GaugeOpts{
			Name: "soukou_dbfs",
			Help: "Level of the most recent frame in dBFS",
		}),
		dropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "soukou_transport_dropped_total",
			Help: "Frames a transport could not deliver to a client",
		}),
	}
}

// ObserveFrame records one published frame.
func (m *Metrics) ObserveFrame(f analysis.Frame) {
	if m == nil {
		return
	}
	m.frames.Inc()
	if f.Transient {
		m.transients.Inc()
	}
	m.rms.Set(f.RMS)
	m.dbfs.Set(f.DBFS)
}

// RunStarted marks a pipeline as active.
func (m *Metrics) RunStarted() {
	if m == nil {
		return
	}
	m.active.Set(1)
}

// RunFinished records how a pipeline run ended.
func (m *Metrics) RunFinished(res analysis.Result) {
	if m == nil {
		return
	}
	m.active.Set(0)
	m.runs.WithLabelValues(res.Outcome.String()).Inc()
	m.windows.Add(float64(res.Dispatched))
}

// Dropped records a frame a transport had to discard.
func (m *Metrics) Dropped() {
	if m == nil {
		return
	}
	m.dropped.Inc()
}

// Registry returns the registry holding the collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the collectors in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
