package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CommandsTotal counts whitelist commands by command name and result
	CommandsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "whitelist_commands_total",
			Help: "Total number of whitelist commands processed",
		},
		[]string{"command", "result"},
	)

	// CommandDuration tracks command processing time
	CommandDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "whitelist_command_duration_seconds",
			Help:    "Command processing duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"command"},
	)

	// ApprovalsTotal counts recorded approvals
	ApprovalsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "whitelist_approvals_total",
			Help: "Total number of approvals recorded",
		},
	)

	// ApprovalResetsTotal counts approval-set resets caused by edits to
	// pending versions
	ApprovalResetsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "whitelist_approval_resets_total",
			Help: "Total number of approval resets triggered by edits",
		},
	)

	// ActivationsTotal counts versions that reached active status
	ActivationsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "whitelist_activations_total",
			Help: "Total number of version activations",
		},
	)

	// RevocationsTotal counts revoked whitelists
	RevocationsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "whitelist_revocations_total",
			Help: "Total number of whitelist revocations",
		},
	)

	// ExpirationsTotal counts whitelists expired by the evaluator
	ExpirationsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "whitelist_expirations_total",
			Help: "Total number of whitelist expirations",
		},
	)

	// SweepDuration tracks expiration sweep time
	SweepDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "whitelist_expiration_sweep_duration_seconds",
			Help:    "Expiration sweep duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// ErrorsTotal counts errors by component and type
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "whitelist_errors_total",
			Help: "Total number of errors",
		},
		[]string{"component", "error_type"},
	)
)
