package metrics

import (
	"math/big"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type LedgerMetrics struct {
	loansCreated prometheus.Counter
	transitions  *prometheus.CounterVec
	fundedVolume prometheus.Counter
	roundingDust prometheus.Counter
	minedTxs     *prometheus.CounterVec
	blockHeight  prometheus.Gauge
	mempoolSize  prometheus.Gauge
}

var (
	ledgerOnce     sync.Once
	ledgerRegistry *LedgerMetrics
)

func Ledger() *LedgerMetrics {
	ledgerOnce.Do(func() {
		ledgerRegistry = &LedgerMetrics{
			loansCreated: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "microloan_loans_created_total",
				Help: "Number of loans created.",
			}),
			transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "microloan_loan_transitions_total",
				Help: "Loan status transitions by target status.",
			}, []string{"status"}),
			fundedVolume: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "microloan_funded_volume_total",
				Help: "Sum of effective contributions in the smallest unit.",
			}),
			roundingDust: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "microloan_rounding_dust_total",
				Help: "Cumulative repayment remainder left in custody by truncating shares.",
			}),
			minedTxs: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "microloan_node_txs_total",
				Help: "Executed transactions by receipt status.",
			}, []string{"status"}),
			blockHeight: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "microloan_node_block_height",
				Help: "Latest produced block number.",
			}),
			mempoolSize: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "microloan_node_mempool_size",
				Help: "Transactions waiting for the next block.",
			}),
		}
		prometheus.MustRegister(
			ledgerRegistry.loansCreated,
			ledgerRegistry.transitions,
			ledgerRegistry.fundedVolume,
			ledgerRegistry.roundingDust,
			ledgerRegistry.minedTxs,
			ledgerRegistry.blockHeight,
			ledgerRegistry.mempoolSize,
		)
	})
	return ledgerRegistry
}

func (m *LedgerMetrics) ObserveLoanCreated() {
	if m == nil {
		return
	}
	m.loansCreated.Inc()
}

func (m *LedgerMetrics) ObserveTransition(status string) {
	if m == nil {
		return
	}
	if status == "" {
		status = "unknown"
	}
	m.transitions.WithLabelValues(status).Inc()
}

func (m *LedgerMetrics) ObserveFunded(amount *big.Int) {
	if m == nil || amount == nil {
		return
	}
	m.fundedVolume.Add(toFloat(amount))
}

func (m *LedgerMetrics) ObserveRoundingDust(amount *big.Int) {
	if m == nil || amount == nil || amount.Sign() <= 0 {
		return
	}
	m.roundingDust.Add(toFloat(amount))
}

func (m *LedgerMetrics) ObserveTx(status string) {
	if m == nil {
		return
	}
	m.minedTxs.WithLabelValues(status).Inc()
}

func (m *LedgerMetrics) SetBlockHeight(n uint64) {
	if m == nil {
		return
	}
	m.blockHeight.Set(float64(n))
}

func (m *LedgerMetrics) SetMempoolSize(n int) {
	if m == nil {
		return
	}
	m.mempoolSize.Set(float64(n))
}

func toFloat(v *big.Int) float64 {
	f, _ := new(big.Float).SetInt(v).Float64()
	return f
}
