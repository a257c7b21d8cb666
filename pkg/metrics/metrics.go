// Package metrics exposes dispatch and balance metrics to Prometheus and,
// optionally, pushes balance gauges to Datadog.
package metrics

import (
	"math/big"
	"net/http"

	"github.com/AidanTHWong/wallet/pkg/balance"
	"github.com/AidanTHWong/wallet/pkg/shared"
	"github.com/AidanTHWong/wallet/pkg/transfer"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
)

const namespace = "split_bridge"

// Dispatch outcomes.
const (
	OutcomeSuccess  = "success"
	OutcomeFailed   = "failed"
	OutcomeRejected = "rejected"
)

type Metrics struct {
	registry   *prometheus.Registry
	dispatches *prometheus.CounterVec
	legs       *prometheus.CounterVec
	volume     *prometheus.CounterVec
	balances   *prometheus.GaugeVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		dispatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispatches_total",
			Help:      "Bridge and send submissions by outcome.",
		}, []string{"kind", "outcome"}),
		legs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "legs_total",
			Help:      "Transactions included, per wallet and chain.",
		}, []string{"kind", "wallet", "chain"}),
		volume: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "volume_eth_total",
			Help:      "Ether moved by included transactions.",
		}, []string{"kind", "chain"}),
		balances: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "wallet_balance_eth",
			Help:      "Last observed native balance per wallet and chain.",
		}, []string{"wallet", "chain"}),
	}
	m.registry.MustRegister(m.dispatches, m.legs, m.volume, m.balances)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Dispatched records a finished submission and the legs it got included.
func (m *Metrics) Dispatched(kind transfer.Kind, outcome string, results []transfer.Result) {
	m.dispatches.WithLabelValues(kind.String(), outcome).Inc()
	for _, r := range results {
		m.legs.WithLabelValues(kind.String(), r.Wallet, r.Chain.String()).Inc()
		m.volume.WithLabelValues(kind.String(), r.Chain.String()).Add(Ether(r.Amount))
	}
}

func (m *Metrics) Balances(snaps ...balance.Snapshot) {
	for _, s := range snaps {
		if !s.Connected() {
			continue
		}
		for _, c := range shared.Chains {
			m.balances.WithLabelValues(s.Name, c.String()).Set(Ether(s.Balance(c)))
		}
	}
}

// Ether converts wei to a float for reporting.
func Ether(wei *big.Int) float64 {
	if wei == nil {
		return 0
	}
	f, _ := decimal.NewFromBigInt(wei, -shared.EtherDecimals).Float64()
	return f
}
