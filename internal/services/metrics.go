package services

import "github.com/prometheus/client_golang/prometheus"

var (
	// messagesAppended counts messages written to the store, by thread type
	// and sender type.
	messagesAppended = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "conversation_messages_appended_total",
			Help: "Total number of messages appended to conversation threads.",
		},
		[]string{"thread_type", "sender_type"},
	)

	// sessionsSwept counts chat sessions transitioned to abandoned by the
	// background sweep.
	sessionsSwept = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_sessions_abandoned_total",
			Help: "Total number of chat sessions marked abandoned by the sweep.",
		},
	)

	// sweepRuns counts sweep executions by outcome.
	sweepRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_sweep_runs_total",
			Help: "Total number of abandonment sweep runs.",
		},
		[]string{"outcome"},
	)
)

func init() {
	prometheus.MustRegister(messagesAppended, sessionsSwept, sweepRuns)
}
