package engine

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are the prometheus collectors updated by the engine
type Metrics struct {
	Acquisitions    prometheus.Counter
	LostTriggers    prometheus.Counter
	ChannelErrors   prometheus.Counter
	SettingChanges  prometheus.Counter
	TransportErrors *prometheus.CounterVec
	UnknownStates   *prometheus.CounterVec
	RunState        prometheus.Gauge
	AcquireSeconds  prometheus.Histogram
}

// NewMetrics creates the collectors and registers them with reg.
// A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Acquisitions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "scopesync_acquisitions_total",
			Help: "Triggers that completed and were read out.",
		}),
		LostTriggers: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "scopesync_lost_triggers_total",
			Help: "Triggers whose waveforms could not be read.",
		}),
		ChannelErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "scopesync_channel_errors_total",
			Help: "Failures acquiring or converting a single channel.",
		}),
		SettingChanges: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "scopesync_setting_changes_total",
			Help: "Instrument settings published after a change was detected.",
		}),
		TransportErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scopesync_transport_errors_total",
			Help: "Transport failures by kind.",
		}, []string{"kind"}),
		UnknownStates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scopesync_unknown_trigger_states_total",
			Help: "Trigger statuses in none of the complete, stopped or waiting sets.",
		}, []string{"state"}),
		RunState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "scopesync_run_state",
			Help: "0 stopped, 1 running, 2 exiting.",
		}),
		AcquireSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "scopesync_acquire_seconds",
			Help:    "Time from stop to resumed acquisition.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		}),
	}
	if reg != nil {
		reg.MustRegister(m.Acquisitions, m.LostTriggers, m.ChannelErrors, m.SettingChanges,
			m.TransportErrors, m.UnknownStates, m.RunState, m.AcquireSeconds)
	}
	return m
}
