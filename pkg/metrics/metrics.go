package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	NodeExecutions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "graph_node_executions_total",
			Help: "Total number of graph node executions",
		},
		[]string{"graph", "node", "outcome"},
	)

	LLMCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "llm_calls_total",
			Help: "Total number of LLM calls",
		},
		[]string{"model", "mode", "outcome"},
	)

	LLMCostUSD = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "llm_cost_usd_total",
			Help: "Accumulated LLM usage cost in USD",
		},
		[]string{"model"},
	)

	LLMLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "llm_call_duration_seconds",
			Help:    "Duration of LLM calls in seconds",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
		},
		[]string{"model", "mode"},
	)

	ConversationTurns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "conversation_turns_total",
			Help: "Total number of conversation turns by actor",
		},
		[]string{"actor"},
	)

	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "conversation_sessions_active",
			Help: "Number of open websocket sessions",
		},
	)

	StatusNotificationsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "status_notifications_dropped_total",
			Help: "Status notifications dropped because the session queue was full",
		},
	)

	AnalysisJobs = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "analysis_jobs_total",
			Help: "Total number of contract analysis jobs by final status",
		},
		[]string{"status"},
	)

	AnalysisJobsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "analysis_jobs_active",
			Help: "Number of contract analysis jobs currently running",
		},
	)
)
