// ABOUTME: Prometheus counters and gauges for push frames, polling and sends
// ABOUTME: Recorder doubles as the cable connection observer

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "chatwidget"

// Outcome labels.
const (
	OutcomeOK       = "ok"
	OutcomeError    = "error"
	OutcomeRejected = "rejected"
	OutcomeTimeout  = "timeout"
	OutcomePending  = "pending"
)

// Recorder holds the engine's collectors.
type Recorder struct {
	frames       *prometheus.CounterVec
	dropped      *prometheus.CounterVec
	polls        *prometheus.CounterVec
	sends        *prometheus.CounterVec
	bootstraps   *prometheus.CounterVec
	connected    prometheus.Gauge
	reconnects   prometheus.Counter
	revealedRune prometheus.Counter
}

// New creates a Recorder and registers it on reg.
func New(reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		frames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cable",
			Name:      "frames_total",
			Help:      "Cable frames received, by frame type.",
		}, []string{"type"}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "events_dropped_total",
			Help:      "Push events ignored by the orchestrator, by reason.",
		}, []string{"reason"}),
		polls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "polls_total",
			Help:      "Polling fallback attempts, by outcome.",
		}, []string{"outcome"}),
		sends: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "sends_total",
			Help:      "User message sends, by outcome.",
		}, []string{"outcome"}),
		bootstraps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "bootstraps_total",
			Help:      "Conversation bootstraps, by outcome.",
		}, []string{"outcome"}),
		connected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "cable",
			Name:      "connected",
			Help:      "1 while the cable connection is welcomed.",
		}),
		reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cable",
			Name:      "disconnects_total",
			Help:      "Cable connections lost after a welcome.",
		}),
		revealedRune: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reveal",
			Name:      "runes_total",
			Help:      "Characters revealed by the typing animation.",
		}),
	}

	if reg != nil {
		reg.MustRegister(
			r.frames, r.dropped, r.polls, r.sends, r.bootstraps,
			r.connected, r.reconnects, r.revealedRune,
		)
	}
	return r
}

// Connected implements cable.Observer.
func (r *Recorder) Connected() {
	if r == nil {
		return
	}
	r.connected.Set(1)
}

// Disconnected implements cable.Observer.
func (r *Recorder) Disconnected(error) {
	if r == nil {
		return
	}
	r.connected.Set(0)
	r.reconnects.Inc()
}

// FrameReceived implements cable.Observer.
func (r *Recorder) FrameReceived(frameType string) {
	if r == nil {
		return
	}
	r.frames.WithLabelValues(frameType).Inc()
}

// EventDropped counts an ignored push event.
func (r *Recorder) EventDropped(reason string) {
	if r == nil {
		return
	}
	r.dropped.WithLabelValues(reason).Inc()
}

// Poll counts one polling attempt.
func (r *Recorder) Poll(outcome string) {
	if r == nil {
		return
	}
	r.polls.WithLabelValues(outcome).Inc()
}

// Send counts one send.
func (r *Recorder) Send(outcome string) {
	if r == nil {
		return
	}
	r.sends.WithLabelValues(outcome).Inc()
}

// Bootstrap counts one bootstrap.
func (r *Recorder) Bootstrap(outcome string) {
	if r == nil {
		return
	}
	r.bootstraps.WithLabelValues(outcome).Inc()
}

// Revealed counts characters shown by the reveal animation.
func (r *Recorder) Revealed(n int) {
	if r == nil || n <= 0 {
		return
	}
	r.revealedRune.Add(float64(n))
}
