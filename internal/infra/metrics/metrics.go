package metrics

import (
	"errors"
	"time"

	"verifier_bot/internal/infra/contestdojo"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Metrics provides observability for verification attempts and directory calls.
type Metrics struct {
	Registry              *prometheus.Registry
	VerificationsTotal    *prometheus.CounterVec
	VerificationDuration  prometheus.Histogram
	DirectoryCallDuration *prometheus.HistogramVec
}

// New creates a Metrics instance registered on its own registry, together
// with the Go runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		VerificationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "verifier_verifications_total",
			Help: "Total number of verification submissions by outcome",
		}, []string{"outcome"}),
		VerificationDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "verifier_verification_duration_seconds",
			Help:    "Duration of a verification submission from lookup to reply",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
		DirectoryCallDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "verifier_directory_call_duration_seconds",
			Help:    "Duration of ContestDojo API calls by operation and result",
			Buckets: []float64{0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"op", "result"}),
	}
	m.Registry.MustRegister(
		m.VerificationsTotal,
		m.VerificationDuration,
		m.DirectoryCallDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// ObserveVerification records one handled submission.
func (m *Metrics) ObserveVerification(outcome string, start time.Time) {
	m.VerificationsTotal.WithLabelValues(outcome).Inc()
	m.VerificationDuration.Observe(time.Since(start).Seconds())
}

// ObserveDirectoryCall records one directory API call, labelled by error class.
func (m *Metrics) ObserveDirectoryCall(op string, start time.Time, err error) {
	m.DirectoryCallDuration.WithLabelValues(op, resultLabel(err)).Observe(time.Since(start).Seconds())
}

func resultLabel(err error) string {
	if err == nil {
		return "ok"
	}
	var remoteErr *contestdojo.RemoteError
	if errors.As(err, &remoteErr) {
		return string(remoteErr.Class)
	}
	var decodeErr *contestdojo.DecodeError
	if errors.As(err, &decodeErr) {
		return "decode"
	}
	return "error"
}
