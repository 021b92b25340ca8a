package monitor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	refreshesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bridgecast_refreshes_total",
		Help: "Total number of analytics refreshes started.",
	})
	refreshesFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bridgecast_refreshes_failed_total",
		Help: "Total number of refreshes that could not load events.",
	})
	refreshesStale = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bridgecast_refreshes_stale_total",
		Help: "Total number of refresh results superseded by a newer generation.",
	})
	computeDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "bridgecast_compute_duration_seconds",
		Help:    "Duration of one aggregate, detect and predict pass.",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1.0, 2.5, 5.0},
	})
	eventsAnalyzed = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "bridgecast_events_analyzed",
		Help: "Number of events used by the latest computation.",
	})
	eventsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bridgecast_events_rejected_total",
		Help: "Events skipped by the aggregator, by reason.",
	}, []string{"reason"})
	cascadeRelations = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "bridgecast_cascade_relations",
		Help: "Number of cascade relations in the latest computation.",
	})
	predictionsGenerated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bridgecast_predictions_generated_total",
		Help: "Total number of predictions computed, by tier.",
	}, []string{"tier"})
	predictionProbability = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "bridgecast_prediction_probability",
		Help: "Latest opening probability per bridge.",
	}, []string{"bridge_id"})

	// PredictionsPublished counts predictions written to Redis.
	PredictionsPublished = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bridgecast_predictions_published_total",
		Help: "Total number of predictions published to Redis.",
	})
	// NotificationsSent counts outlook messages delivered to Telegram.
	NotificationsSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bridgecast_notifications_sent_total",
		Help: "Total number of Telegram outlooks sent.",
	})
	// FeedRecordsSkipped counts malformed feed records.
	FeedRecordsSkipped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bridgecast_feed_records_skipped_total",
		Help: "Total number of feed records rejected during ingestion.",
	})
	// CycleDuration observes one full poll, store, refresh and notify cycle.
	CycleDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "bridgecast_cycle_duration_seconds",
		Help:    "Duration of a full monitoring cycle.",
		Buckets: []float64{0.1, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0},
	})
)
