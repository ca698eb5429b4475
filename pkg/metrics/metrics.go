// Package metrics instruments the transaction runtime and the RPC surface
// with Prometheus collectors and serves them alongside health probes.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "omerta"

// Metrics holds every collector on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	Transactions     *prometheus.CounterVec
	Instructions     *prometheus.CounterVec
	ComputeUnits     prometheus.Histogram
	ExecutionSeconds prometheus.Histogram
	LockWaitSeconds  prometheus.Histogram
	Slot             prometheus.Gauge
	Accounts         prometheus.Gauge
	TokenSupply      prometheus.Gauge
	JournalErrors    prometheus.Counter
	RPCRequests      *prometheus.CounterVec
	Subscriptions    prometheus.Gauge
}

// New creates and registers the collectors, including the Go runtime and
// process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		Transactions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transactions_total",
			Help:      "Processed transactions by outcome.",
		}, []string{"status"}),
		Instructions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "instructions_total",
			Help:      "Top-level instructions by program and outcome.",
		}, []string{"program", "status"}),
		ComputeUnits: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "transaction_compute_units",
			Help:      "Compute units consumed per transaction.",
			Buckets:   prometheus.ExponentialBuckets(1000, 2, 11),
		}),
		ExecutionSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "transaction_execution_seconds",
			Help:      "Wall time from lock acquisition to commit.",
			Buckets:   prometheus.DefBuckets,
		}),
		LockWaitSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "account_lock_wait_seconds",
			Help:      "Time spent waiting for account locks.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 8),
		}),
		Slot: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "slot",
			Help:      "Slot of the last committed transaction.",
		}),
		Accounts: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "accounts",
			Help:      "Accounts held by the store.",
		}),
		TokenSupply: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "token_supply_raw",
			Help:      "Current supply of the mint in raw units.",
		}),
		JournalErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "journal_errors_total",
			Help:      "Transactions that could not be written to the journal.",
		}),
		RPCRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rpc_requests_total",
			Help:      "JSON-RPC requests by method and outcome.",
		}, []string{"method", "status"}),
		Subscriptions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "rpc_subscriptions",
			Help:      "Open websocket account subscriptions.",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.Transactions, m.Instructions, m.ComputeUnits, m.ExecutionSeconds,
		m.LockWaitSeconds, m.Slot, m.Accounts, m.TokenSupply, m.JournalErrors,
		m.RPCRequests, m.Subscriptions,
	)
	return m
}

func status(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}

// ObserveTransaction records one processed transaction.
func (m *Metrics) ObserveTransaction(success bool, computeUnits uint64, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.Transactions.WithLabelValues(status(success)).Inc()
	m.ComputeUnits.Observe(float64(computeUnits))
	m.ExecutionSeconds.Observe(elapsed.Seconds())
}

// ObserveInstruction records one top-level instruction.
func (m *Metrics) ObserveInstruction(program string, success bool) {
	if m == nil {
		return
	}
	m.Instructions.WithLabelValues(program, status(success)).Inc()
}

// ObserveLockWait records how long a transaction waited for its locks.
func (m *Metrics) ObserveLockWait(d time.Duration) {
	if m == nil {
		return
	}
	m.LockWaitSeconds.Observe(d.Seconds())
}

// ObserveCommit records the ledger position after a committed transaction.
func (m *Metrics) ObserveCommit(slot, accounts uint64) {
	if m == nil {
		return
	}
	m.Slot.Set(float64(slot))
	m.Accounts.Set(float64(accounts))
}

// SetTokenSupply records the watched mint's supply.
func (m *Metrics) SetTokenSupply(raw uint64) {
	if m == nil {
		return
	}
	m.TokenSupply.Set(float64(raw))
}

// JournalFailed counts a transaction the journal could not store.
func (m *Metrics) JournalFailed() {
	if m == nil {
		return
	}
	m.JournalErrors.Inc()
}

// SetSubscriptions records the number of open account subscriptions.
func (m *Metrics) SetSubscriptions(n int) {
	if m == nil {
		return
	}
	m.Subscriptions.Set(float64(n))
}

// ObserveRPC records one JSON-RPC call.
func (m *Metrics) ObserveRPC(method string, success bool) {
	if m == nil {
		return
	}
	m.RPCRequests.WithLabelValues(method, status(success)).Inc()
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
