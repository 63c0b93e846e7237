package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RedisErrorRate counts Redis errors by operation type.
	RedisErrorRate = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "patchdb_redis_error_rate_total",
		Help: "Total number of Redis errors by operation type",
	}, []string{"operation"})

	// CacheLookups counts cache-aside lookups by key family and result.
	CacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "patchdb_cache_lookups_total",
		Help: "Cache-aside lookups by key family and result (hit, miss)",
	}, []string{"family", "result"})

	// PatchIndexRequests counts calls to the similarity service by operation and outcome.
	PatchIndexRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "patchdb_patch_index_requests_total",
		Help: "Calls to the patch index service by operation and outcome",
	}, []string{"operation", "outcome"})

	// PatchIndexLatency records similarity service latency by operation.
	PatchIndexLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "patchdb_patch_index_latency_seconds",
		Help:    "Patch index call latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})

	// StorageRequests counts object-store operations by backend, operation and outcome.
	StorageRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "patchdb_storage_requests_total",
		Help: "Object store operations by backend, operation and outcome",
	}, []string{"backend", "operation", "outcome"})

	// SubmissionTransitions counts submission status changes.
	SubmissionTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "patchdb_submission_transitions_total",
		Help: "Patch submission transitions by kind (publish, unpublish, republish, update)",
	}, []string{"kind"})

	// CollectionLinkJobs counts processed collection-link jobs by outcome.
	CollectionLinkJobs = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "patchdb_collection_link_jobs_total",
		Help: "Collection link jobs processed by outcome (done, retry, failed)",
	}, []string{"outcome"})

	// UploadMatches counts similarity matches returned for collection uploads.
	UploadMatches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "patchdb_upload_matches_total",
		Help: "Similarity matches for collection uploads by classification (owned, new, unknown)",
	}, []string{"classification"})

	// FollowEvents counts follow graph changes.
	FollowEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "patchdb_follow_events_total",
		Help: "Follow graph changes by action (follow, unfollow) and effect (changed, noop)",
	}, []string{"action", "effect"})
)

// Outcome returns the metric label for an error result.
func Outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// ObservePatchIndexCall records the outcome and latency of a similarity service call.
func ObservePatchIndexCall(operation string, start time.Time, err error) {
	PatchIndexRequests.WithLabelValues(operation, Outcome(err)).Inc()
	PatchIndexLatency.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}
