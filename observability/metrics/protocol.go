package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// ProtocolMetrics aggregates the counters the RPC surface and engines feed.
type ProtocolMetrics struct {
	rpcRequests     *prometheus.CounterVec
	loanTransitions *prometheus.CounterVec
	royaltyOps      *prometheus.CounterVec
}

var (
	protocolOnce     sync.Once
	protocolRegistry *ProtocolMetrics
)

// Protocol returns the lazily registered metrics singleton.
func Protocol() *ProtocolMetrics {
	protocolOnce.Do(func() {
		protocolRegistry = &ProtocolMetrics{
			rpcRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "ipledger_rpc_requests_total",
				Help: "Count of JSON-RPC requests by method and outcome.",
			}, []string{"method", "outcome"}),
			loanTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "ipledger_loan_transitions_total",
				Help: "Count of successful loan state transitions by action.",
			}, []string{"action"}),
			royaltyOps: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "ipledger_royalty_operations_total",
				Help: "Count of successful royalty ledger operations by kind.",
			}, []string{"kind"}),
		}
		prometheus.MustRegister(
			protocolRegistry.rpcRequests,
			protocolRegistry.loanTransitions,
			protocolRegistry.royaltyOps,
		)
	})
	return protocolRegistry
}

// ObserveRequest records one RPC request with its outcome ("ok" or "error").
func (m *ProtocolMetrics) ObserveRequest(method, outcome string) {
	if m == nil {
		return
	}
	m.rpcRequests.WithLabelValues(method, outcome).Inc()
}

// ObserveLoanTransition records a successful loan action (apply, approve,
// repay, liquidate).
func (m *ProtocolMetrics) ObserveLoanTransition(action string) {
	if m == nil {
		return
	}
	m.loanTransitions.WithLabelValues(action).Inc()
}

// ObserveRoyaltyOp records a successful royalty operation (issue, transfer,
// deposit, claim).
func (m *ProtocolMetrics) ObserveRoyaltyOp(kind string) {
	if m == nil {
		return
	}
	m.royaltyOps.WithLabelValues(kind).Inc()
}
