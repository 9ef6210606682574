// Package metrics exposes resolution counters for Prometheus.
package metrics

import (
    "github.com/prometheus/client_golang/prometheus"
)

// Recorder counts provider attempts and resolution outcomes. A nil
// *Recorder is valid and records nothing.
type Recorder struct {
    ProviderAttempts *prometheus.CounterVec
    Resolutions      *prometheus.CounterVec
}

// New creates the counters and registers them on reg.
func New(reg prometheus.Registerer) *Recorder {
    r := &Recorder{
        ProviderAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
            Namespace: "quote",
            Name:      "provider_attempts_total",
            Help:      "Provider fetch attempts by provider and outcome (ok or error kind).",
        }, []string{"provider", "outcome"}),
        Resolutions: prometheus.NewCounterVec(prometheus.CounterOpts{
            Namespace: "quote",
            Name:      "resolutions_total",
            Help:      "Market resolutions by kind and cache status.",
        }, []string{"kind", "status"}),
    }
    if reg != nil {
        reg.MustRegister(r.ProviderAttempts, r.Resolutions)
    }
    return r
}

func (r *Recorder) ProviderAttempt(provider, outcome string) {
    if r == nil {
        return
    }
    r.ProviderAttempts.WithLabelValues(provider, outcome).Inc()
}

func (r *Recorder) Resolution(kind, status string) {
    if r == nil {
        return
    }
    r.Resolutions.WithLabelValues(kind, status).Inc()
}
