// internal/metrics/metrics.go
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/SyedDaiam9101/rmbg-service/internal/segmentation"
)

var (
	// HTTPRequestDurationSeconds is a histogram for HTTP API request latencies
	HTTPRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of response latency (seconds) of HTTP requests handled by the API.",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"method", "route", "status"},
	)

	// GRPCServerHandlingSeconds is a histogram for gRPC server request latencies
	GRPCServerHandlingSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "grpc_server_handling_seconds",
			Help:    "Histogram of response latency (seconds) of gRPC that had been application-level handled by the server.",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "code"},
	)

	// SegmentationStageSeconds is a histogram of per-stage pipeline latency
	SegmentationStageSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "segmentation_stage_seconds",
			Help:    "Histogram of segmentation pipeline stage latency (seconds).",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"stage"},
	)

	// SegmentationsTotal counts pipeline runs by outcome
	SegmentationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "segmentations_total",
			Help: "Total segmentation runs by outcome (ok or the error kind).",
		},
		[]string{"outcome"},
	)

	// ImagePixels is a histogram of processed image sizes in pixels
	ImagePixels = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "segmentation_image_pixels",
			Help:    "Histogram of processed image sizes (width*height).",
			Buckets: prometheus.ExponentialBuckets(64*64, 4, 8),
		},
	)

	// CacheRequestsTotal counts result cache lookups
	CacheRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "result_cache_requests_total",
			Help: "Total result cache lookups by result (hit, miss, error).",
		},
		[]string{"result"},
	)

	// HealthStatus is a gauge indicating the health status of the service
	HealthStatus = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "health_status",
			Help: "Health status of the service (1 = healthy, 0 = unhealthy).",
		},
	)
)

// RecordHTTPRequest records the latency of an HTTP request
func RecordHTTPRequest(method, route string, status int, seconds float64) {
	HTTPRequestDurationSeconds.WithLabelValues(method, route, strconv.Itoa(status)).Observe(seconds)
}

// RecordGRPCLatency records the latency of a gRPC method call
func RecordGRPCLatency(method, code string, seconds float64) {
	GRPCServerHandlingSeconds.WithLabelValues(method, code).Observe(seconds)
}

// RecordSegmentation is a segmentation.Observer. Stage timings are only
// recorded for successful runs.
func RecordSegmentation(m segmentation.Metrics, err error) {
	if err != nil {
		SegmentationsTotal.WithLabelValues(segmentation.KindOf(err).String()).Inc()
		return
	}
	SegmentationsTotal.WithLabelValues("ok").Inc()
	for stage, d := range m.Stages() {
		SegmentationStageSeconds.WithLabelValues(stage).Observe(d.Seconds())
	}
	ImagePixels.Observe(float64(m.ImageWidth * m.ImageHeight))
}

// RecordCacheHit counts a result cache hit
func RecordCacheHit() { CacheRequestsTotal.WithLabelValues("hit").Inc() }

// RecordCacheMiss counts a result cache miss
func RecordCacheMiss() { CacheRequestsTotal.WithLabelValues("miss").Inc() }

// RecordCacheError counts a failed cache lookup or write
func RecordCacheError() { CacheRequestsTotal.WithLabelValues("error").Inc() }

// SetHealthy sets the health status to healthy
func SetHealthy() {
	HealthStatus.Set(1)
}

// SetUnhealthy sets the health status to unhealthy
func SetUnhealthy() {
	HealthStatus.Set(0)
}
