package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// PredictionsServed counts served predictions by model and predicted class
var PredictionsServed = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "heartml_predictions_total",
		Help: "Total number of predictions served",
	},
	[]string{"model", "class"},
)

// PredictionLatency records latency distribution for single predictions
var PredictionLatency = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "heartml_prediction_latency_seconds",
		Help:    "Latency in seconds to serve individual predictions",
		Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
	},
	[]string{"model"},
)

// ModelLoads counts registry loads that missed the model cache
var ModelLoads = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "heartml_model_loads_total",
		Help: "Number of model loads from the registry",
	},
	[]string{"model"},
)

// Persistence queue metrics
var (
	PersistQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "heartml_persist_queue_depth",
			Help: "Pending prediction writes in the persistence queue",
		},
	)

	PersistDrops = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "heartml_persist_drops_total",
			Help: "Predictions dropped because the persistence queue was full",
		},
	)

	PersistFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "heartml_persist_failures_total",
			Help: "Prediction writes that failed in the background worker",
		},
	)
)

func init() {
	prometheus.MustRegister(PredictionsServed, PredictionLatency, ModelLoads)
	prometheus.MustRegister(PersistQueueDepth, PersistDrops, PersistFailures)
}
