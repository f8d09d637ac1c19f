package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// LedgerReads counts read calls against the ledger by method and outcome
	LedgerReads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "earnbid_ledger_reads_total",
			Help: "Total number of ledger read calls",
		},
		[]string{"method", "status"},
	)

	// TransactionsSent counts transactions handed to the node
	TransactionsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "earnbid_transactions_sent_total",
			Help: "Total number of transactions sent",
		},
		[]string{"operation", "status"},
	)

	// TransactionsConfirmed counts transaction outcomes after waiting for the receipt
	TransactionsConfirmed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "earnbid_transactions_confirmed_total",
			Help: "Total number of awaited transactions by outcome",
		},
		[]string{"operation", "result"},
	)

	// TransactionDuration tracks time from submission to receipt
	TransactionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "earnbid_transaction_confirmation_seconds",
			Help:    "Time between submission and confirmation in seconds",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		},
		[]string{"operation"},
	)

	// GasUsed tracks gas used for confirmed transactions
	GasUsed = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "earnbid_gas_used",
			Help:    "Gas used for Ethereum transactions",
			Buckets: []float64{21000, 50000, 100000, 200000, 300000, 500000},
		},
		[]string{"operation"},
	)

	// WorkflowTransitions counts bid workflow state changes
	WorkflowTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "earnbid_workflow_transitions_total",
			Help: "Total number of bid workflow state transitions",
		},
		[]string{"from", "to"},
	)

	// ValidationErrors counts rejected local input
	ValidationErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "earnbid_validation_errors_total",
			Help: "Total number of local validation failures",
		},
		[]string{"field"},
	)

	// OpenWorkflows tracks workflows currently held by the service
	OpenWorkflows = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "earnbid_open_workflows",
			Help: "Number of open bid workflows",
		},
	)
)
