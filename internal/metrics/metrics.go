package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "docuchat", Name: "http_requests_total", Help: "Number of HTTP requests by method, route and status."},
		[]string{"method", "path", "status"},
	)
	HTTPDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Namespace: "docuchat", Name: "http_request_duration_seconds", Help: "HTTP request latency by method and route.", Buckets: prometheus.DefBuckets},
		[]string{"method", "path"},
	)
	DocumentsProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "docuchat", Name: "documents_processed_total", Help: "Number of documents that finished processing, by final status."},
		[]string{"status"},
	)
	ChunksEmbedded = prometheus.NewCounter(
		prometheus.CounterOpts{Namespace: "docuchat", Name: "chunks_embedded_total", Help: "Number of chunks embedded and added to the vector index."},
	)
	ProviderRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "docuchat", Name: "provider_requests_total", Help: "Number of upstream AI provider calls by provider and kind."},
		[]string{"provider", "kind"},
	)
	ProviderFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "docuchat", Name: "provider_failures_total", Help: "Number of failed upstream AI provider calls by provider and kind."},
		[]string{"provider", "kind"},
	)
	IndexVectors = prometheus.NewGauge(
		prometheus.GaugeOpts{Namespace: "docuchat", Name: "index_vectors", Help: "Number of vectors currently held in the in-memory index."},
	)
	RateLimitRejected = prometheus.NewCounter(
		prometheus.CounterOpts{Namespace: "docuchat", Name: "rate_limit_rejected_total", Help: "Number of requests rejected by the per-user rate limiter."},
	)
)

func RegisterCollectors(reg prometheus.Registerer) {
	reg.MustRegister(HTTPRequests)
	reg.MustRegister(HTTPDuration)
	reg.MustRegister(DocumentsProcessed)
	reg.MustRegister(ChunksEmbedded)
	reg.MustRegister(ProviderRequests)
	reg.MustRegister(ProviderFailures)
	reg.MustRegister(IndexVectors)
	reg.MustRegister(RateLimitRejected)
}
