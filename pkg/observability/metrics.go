// Package observability provides Prometheus metrics, HTTP middleware and
// the OpenTelemetry provider setup for the mcp-census server.
package observability

import "github.com/prometheus/client_golang/prometheus"

// UpstreamBuckets defines histogram buckets suited for Census API latencies,
// ranging from 50ms to 60s. Data queries over large geographies are slow.
var UpstreamBuckets = []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60}

var (
	// HTTPRequestsTotal counts HTTP requests by method, route and status class.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mcp_census_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	// HTTPRequestDuration records HTTP request duration in seconds.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mcp_census_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	// ToolCallsTotal counts MCP tool calls by tool name and outcome.
	ToolCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mcp_census_tool_calls_total",
			Help: "MCP tool calls",
		},
		[]string{"tool", "status"},
	)

	// ToolDuration records MCP tool call duration in seconds.
	ToolDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mcp_census_tool_duration_seconds",
			Help:    "MCP tool call duration",
			Buckets: UpstreamBuckets,
		},
		[]string{"tool"},
	)

	// UpstreamRequestsTotal counts requests sent to the Census Data API.
	UpstreamRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mcp_census_upstream_requests_total",
			Help: "Census API requests",
		},
		[]string{"endpoint", "status"},
	)

	// UpstreamDuration records Census API latency in seconds.
	UpstreamDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mcp_census_upstream_duration_seconds",
			Help:    "Census API latency",
			Buckets: UpstreamBuckets,
		},
		[]string{"endpoint"},
	)

	// IndexSearchesTotal counts dataset index searches by backend and outcome.
	IndexSearchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mcp_census_index_searches_total",
			Help: "Dataset index searches",
		},
		[]string{"backend", "status"},
	)

	// IndexDocuments reports the number of documents in the dataset index.
	IndexDocuments = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "mcp_census_index_documents",
			Help: "Documents in the dataset index",
		},
		[]string{"backend"},
	)

	// RateLimitRejectedTotal counts requests rejected by the rate limiter.
	RateLimitRejectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mcp_census_ratelimit_rejected_total",
			Help: "Rate limit rejections",
		},
		[]string{"tier"},
	)
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		ToolCallsTotal,
		ToolDuration,
		UpstreamRequestsTotal,
		UpstreamDuration,
		IndexSearchesTotal,
		IndexDocuments,
		RateLimitRejectedTotal,
	)
}
