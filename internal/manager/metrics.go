package manager

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"llamad/pkg/llama"
)

var (
	engineCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "llamad",
			Subsystem: "engine",
			Name:      "calls_total",
			Help:      "Native engine calls by operation and result",
		},
		[]string{"op", "result"},
	)

	engineCallDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "llamad",
			Subsystem: "engine",
			Name:      "call_duration_seconds",
			Help:      "Duration of native engine calls in seconds",
			Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"op"},
	)

	engineTokensStreamed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "llamad",
			Subsystem: "engine",
			Name:      "tokens_streamed_total",
			Help:      "Tokens delivered through the token callback",
		},
	)

	engineLoadedModels = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "llamad",
			Subsystem: "engine",
			Name:      "loaded_models",
			Help:      "Model instances currently held by the manager",
		},
	)
)

func init() {
	prometheus.MustRegister(engineCallsTotal, engineCallDuration, engineTokensStreamed, engineLoadedModels)
}

// callResult buckets an engine error into a low-cardinality label.
func callResult(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	case llama.IsLoadFailure(err):
		return "load_error"
	case llama.IsPredictionFailure(err):
		return "prediction_error"
	case llama.IsDecodeFailure(err):
		return "decode_error"
	case llama.IsStateIOFailure(err):
		return "state_error"
	case IsDependencyUnavailable(err):
		return "unavailable"
	case IsInvalidRequest(err):
		return "invalid"
	default:
		return "error"
	}
}

func observeEngineCall(op string, err error, start time.Time) {
	engineCallsTotal.WithLabelValues(op, callResult(err)).Inc()
	engineCallDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

func addStreamedTokens(n int) {
	if n > 0 {
		engineTokensStreamed.Add(float64(n))
	}
}

func setLoadedModels(n int) { engineLoadedModels.Set(float64(n)) }
