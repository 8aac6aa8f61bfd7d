// Package telemetry defines the server's Prometheus metrics. Everything is
// registered on the default registry and served through promhttp in main.
package telemetry

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	MessagesCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chatsphere_messages_created_total",
		Help: "Messages appended to the store.",
	})
	MessagesDeleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chatsphere_messages_deleted_total",
		Help: "Messages hard-deleted from the store.",
	})
	Reactions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chatsphere_reactions_total",
		Help: "Reaction mutations by action (add, remove, noop).",
	}, []string{"action"})
	Votes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chatsphere_votes_total",
		Help: "Poll vote attempts by outcome.",
	}, []string{"outcome"})
	CacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chatsphere_cache_hits_total",
		Help: "Snapshot cache hits.",
	})
	CacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chatsphere_cache_misses_total",
		Help: "Snapshot cache misses, including expired entries.",
	})
	CacheInvalidations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chatsphere_cache_invalidations_total",
		Help: "Whole-cache evictions triggered by mutations.",
	})
	NotifySent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chatsphere_notifications_sent_total",
		Help: "Push notifications delivered.",
	})
	NotifyFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chatsphere_notifications_failed_total",
		Help: "Push notification deliveries that errored.",
	})
	NotifyPruned = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chatsphere_notifications_pruned_total",
		Help: "Expired subscriptions removed after gone responses.",
	})
	NotifyDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chatsphere_notifications_dropped_total",
		Help: "Notifications dropped because the dispatch queue was full.",
	})
	MutationConflicts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chatsphere_mutation_conflicts_total",
		Help: "Optimistic swap conflicts that triggered a retry.",
	})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "chatsphere_http_request_duration_seconds",
		Help:    "HTTP request latency by method and status.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "status"})
)

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Middleware records request latency and status for every handler.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		srw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(srw, r)
		requestDuration.WithLabelValues(r.Method, strconv.Itoa(srw.status)).Observe(time.Since(start).Seconds())
	})
}
