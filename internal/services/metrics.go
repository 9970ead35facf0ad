// Prometheus instrumentation for the message pipeline. Label cardinality is
// kept to small fixed sets (stage names, action kinds); author IDs never
// become labels.
package services

import "github.com/prometheus/client_golang/prometheus"

var (
	// pipelineMsgs counts inbound messages by terminal outcome:
	// ignored, banned, rate_limited, access_denied, violation, answered, failed.
	pipelineMsgs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_messages_total",
			Help: "Total number of inbound messages by outcome.",
		},
		[]string{"outcome"},
	)

	// cacheLookups counts reply-cache lookups by result (hit/miss).
	cacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_cache_lookups_total",
			Help: "Total reply cache lookups by result.",
		},
		[]string{"result"},
	)

	// moderationActions counts escalation outcomes by action kind.
	moderationActions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_moderation_actions_total",
			Help: "Total moderation actions by kind.",
		},
		[]string{"action"},
	)

	// fallbackReplies counts substituted replies by reason
	// (generation_exhausted, content_postcheck).
	fallbackReplies = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_fallback_replies_total",
			Help: "Total fallback replies substituted, by reason.",
		},
		[]string{"reason"},
	)

	// sweeperEvictions counts entries removed per store by the sweeper.
	sweeperEvictions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_sweeper_evictions_total",
			Help: "Total entries evicted by the maintenance sweeper, per store.",
		},
		[]string{"store"},
	)

	// chunksSent counts transmitted reply chunks.
	chunksSent = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "pipeline_chunks_sent_total",
			Help: "Total reply chunks transmitted.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		pipelineMsgs, cacheLookups, moderationActions,
		fallbackReplies, sweeperEvictions, chunksSent,
	)
}
