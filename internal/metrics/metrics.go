// Package metrics provides the Prometheus collectors shared by the overlay and collector.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once sync.Once

	// Overlay
	PollsTotal       *prometheus.CounterVec // by resource
	PollsSkipped     *prometheus.CounterVec // by resource and reason
	FetchErrors      *prometheus.CounterVec // by resource
	LinesRejected    prometheus.Counter
	MessagesIngested prometheus.Counter
	MessagesEvicted  prometheus.Counter
	RenderWrites     prometheus.Counter
	StoreSize        prometheus.Gauge

	// Collector
	MessagesRecorded *prometheus.CounterVec // by provider and outcome
	Checkpoints      prometheus.Counter
	UploadsSucceeded prometheus.Counter
	UploadsFailed    prometheus.Counter
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		PollsTotal = promauto.NewCounterVec(prometheus.CounterOpts{Name: "overlay_polls_total", Help: "Fetches applied by the overlay"}, []string{"resource"})
		PollsSkipped = promauto.NewCounterVec(prometheus.CounterOpts{Name: "overlay_polls_skipped_total", Help: "Poll cycles skipped"}, []string{"resource", "reason"})
		FetchErrors = promauto.NewCounterVec(prometheus.CounterOpts{Name: "overlay_fetch_errors_total", Help: "Failed fetches"}, []string{"resource"})
		LinesRejected = promauto.NewCounter(prometheus.CounterOpts{Name: "overlay_lines_rejected_total", Help: "Lines that did not decode to a message"})
		MessagesIngested = promauto.NewCounter(prometheus.CounterOpts{Name: "overlay_messages_ingested_total", Help: "New messages added to the store"})
		MessagesEvicted = promauto.NewCounter(prometheus.CounterOpts{Name: "overlay_messages_evicted_total", Help: "Messages evicted by the store cap"})
		RenderWrites = promauto.NewCounter(prometheus.CounterOpts{Name: "overlay_render_writes_total", Help: "Renders that changed the target"})
		StoreSize = promauto.NewGauge(prometheus.GaugeOpts{Name: "overlay_store_messages", Help: "Messages currently held in memory"})

		MessagesRecorded = promauto.NewCounterVec(prometheus.CounterOpts{Name: "collector_messages_total", Help: "Messages received by the collector"}, []string{"provider", "outcome"})
		Checkpoints = promauto.NewCounter(prometheus.CounterOpts{Name: "collector_checkpoints_total", Help: "Database checkpoints written"})
		UploadsSucceeded = promauto.NewCounter(prometheus.CounterOpts{Name: "collector_uploads_succeeded_total", Help: "Database files uploaded to S3"})
		UploadsFailed = promauto.NewCounter(prometheus.CounterOpts{Name: "collector_uploads_failed_total", Help: "Database uploads that exhausted retries"})
	})
}
