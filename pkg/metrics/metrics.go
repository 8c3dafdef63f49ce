// Package metrics wires the fleet's operational counters and gauges
// into a dedicated prometheus/client_golang registry, exposed over
// /metrics by pkg/server. Grounded on the retrieval pack's use of
// prometheus as its own metrics stack (go.mod's
// github.com/prometheus/client_golang dependency), generalized from
// validator-attestation counters to strategy-execution and
// recharge-engine counters.
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry bundles every metric the agent exports, each labeled the way
// the thing it measures is keyed elsewhere in the codebase (strategy
// key, provider name, halting phase).
type Registry struct {
	reg *prometheus.Registry

	ExecutionsTotal   *prometheus.CounterVec
	RechargesTotal    *prometheus.CounterVec
	ProviderReputation *prometheus.GaugeVec
	HaltPhase         prometheus.Gauge
	StrategyRate      *prometheus.GaugeVec
}

func New() *Registry {
	reg := prometheus.NewRegistry()

	r := &Registry{
		reg: reg,
		ExecutionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ir_agent",
			Name:      "strategy_executions_total",
			Help:      "Strategy Engine executions, labeled by strategy key and outcome.",
		}, []string{"strategy_key", "outcome"}),
		RechargesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ir_agent",
			Name:      "recharges_total",
			Help:      "Recharge Engine operations (mint deposits and swaps), labeled by kind and outcome.",
		}, []string{"kind", "outcome"}),
		ProviderReputation: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "ir_agent",
			Name:      "rpc_provider_reputation",
			Help:      "Current reputation score of each configured RPC provider.",
		}, []string{"provider"}),
		HaltPhase: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "ir_agent",
			Name:      "halt_phase",
			Help:      "Current halting phase: 0=Functional, 1=HaltingInProgress, 2=Halted.",
		}),
		StrategyRate: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "ir_agent",
			Name:      "strategy_latest_rate_e18",
			Help:      "Last committed annual interest rate per strategy, e18 fixed point.",
		}, []string{"strategy_key"}),
	}

	reg.MustRegister(r.ExecutionsTotal, r.RechargesTotal, r.ProviderReputation, r.HaltPhase, r.StrategyRate)
	return r
}

// Handler serves the registry's metrics in the Prometheus exposition
// format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

func (r *Registry) RecordExecution(strategyKey uint32, outcome string) {
	r.ExecutionsTotal.WithLabelValues(keyLabel(strategyKey), outcome).Inc()
}

func (r *Registry) RecordRecharge(kind, outcome string) {
	r.RechargesTotal.WithLabelValues(kind, outcome).Inc()
}

func (r *Registry) SetReputation(provider string, score int) {
	r.ProviderReputation.WithLabelValues(provider).Set(float64(score))
}

func (r *Registry) SetHaltPhase(phase string) {
	v := 0.0
	switch phase {
	case "HaltingInProgress":
		v = 1
	case "Halted":
		v = 2
	}
	r.HaltPhase.Set(v)
}

func (r *Registry) SetStrategyRate(strategyKey uint32, rateE18 float64) {
	r.StrategyRate.WithLabelValues(keyLabel(strategyKey)).Set(rateE18)
}

func keyLabel(key uint32) string {
	return strconv.FormatUint(uint64(key), 10)
}
