// Package metrics holds the Prometheus collectors for the voice engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "axiom"

var (
	// SessionsActive is the number of guilds with a live voice session.
	SessionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "voice_sessions_active",
			Help:      "Number of connected voice sessions",
		},
	)

	// ListenersActive is the number of utterances currently being captured.
	ListenersActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "voice_listeners_active",
			Help:      "Number of speakers currently being captured",
		},
	)

	// UtterancesTotal counts captured utterances by outcome.
	UtterancesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "voice_utterances_total",
			Help:      "Utterances by outcome",
		},
		[]string{"outcome"}, // transcribed, short, ceiling, decode_error, stt_error, empty
	)

	// GateTotal counts wake-phrase gate decisions.
	GateTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "wake_gate_total",
			Help:      "Wake-phrase gate decisions",
		},
		[]string{"result"}, // none, prompt, question
	)

	// ResponsesTotal counts dispatched responses.
	ResponsesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "voice_responses_total",
			Help:      "Dispatched responses by status",
		},
		[]string{"status"}, // success, error
	)

	// ResponseDuration is the time from dispatch to playback idle.
	ResponseDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "voice_response_duration_seconds",
			Help:      "Duration of a response dispatch including playback",
			Buckets:   []float64{.5, 1, 2.5, 5, 10, 20, 30, 60},
		},
	)

	QueueEvictionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "voice_queue_evictions_total",
			Help:      "Queued questions dropped because the queue was full",
		},
	)

	WatchdogFiredTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "voice_watchdog_fired_total",
			Help:      "Times the speaking watchdog forced a session back to idle",
		},
	)

	DroppedFramesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "voice_dropped_frames_total",
			Help:      "Inbound audio frames dropped because a listener buffer was full",
		},
	)
)

// Register adds every collector to reg.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		SessionsActive,
		ListenersActive,
		UtterancesTotal,
		GateTotal,
		ResponsesTotal,
		ResponseDuration,
		QueueEvictionsTotal,
		WatchdogFiredTotal,
		DroppedFramesTotal,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}
