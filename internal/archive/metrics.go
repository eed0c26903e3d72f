package archive

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	archiveCacheLookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "folderdrop_archive_cache_lookups_total",
			Help: "Archive cache lookups by result (hit, miss).",
		},
		[]string{"result"},
	)

	archiveBuildsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "folderdrop_archive_builds_total",
			Help: "Archive builds by outcome.",
		},
		[]string{"result"},
	)

	archiveMemberFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "folderdrop_archive_member_failures_total",
			Help: "Member fetches that failed during archive builds, by cause.",
		},
		[]string{"cause"},
	)

	archiveInvalidationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "folderdrop_archive_invalidations_total",
		Help: "Archive cache entries deleted after folder mutations.",
	})

	archiveBuildDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "folderdrop_archive_build_duration_seconds",
		Help:    "Time spent enumerating, fetching and zipping a folder.",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
	})
)

// Build outcome labels.
const (
	buildSucceeded = "succeeded"
	buildPartial   = "partial"
	buildEmpty     = "empty"
	buildFailed    = "failed"
	buildLimited   = "limit_exceeded"
)
