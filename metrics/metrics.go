// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package metrics

import (
	"github.com/luxfi/metric"
)

var _ Metrics = (*metricsImpl)(nil)

// Metrics instruments every vault state transition.
type Metrics interface {
	MarkDeposit()
	MarkRedeem()
	MarkQueueEntry()
	MarkClaim()
	MarkHarvest()
	MarkCheckpoint()

	// ObserveTotals updates the gauges mirroring the ledger and queue state.
	ObserveTotals(totalShares, totalAssets, queuedShares, unclaimedAssets, rewardsNonce uint64)
}

type metricsImpl struct {
	numDeposits, numRedeems, numQueueEntries metric.Counter
	numClaims, numHarvests, numCheckpoints   metric.Counter

	totalShares, totalAssets      metric.Gauge
	queuedShares, unclaimedAssets metric.Gauge
	rewardsNonce                  metric.Gauge
}

func New(registerer metric.Registerer) (Metrics, error) {
	m := &metricsImpl{
		numDeposits: metric.NewCounter(metric.CounterOpts{
			Name: "vault_deposits",
			Help: "Number of deposits accepted",
		}),
		numRedeems: metric.NewCounter(metric.CounterOpts{
			Name: "vault_redeems",
			Help: "Number of instant redemptions",
		}),
		numQueueEntries: metric.NewCounter(metric.CounterOpts{
			Name: "vault_queue_entries",
			Help: "Number of exit queue entries",
		}),
		numClaims: metric.NewCounter(metric.CounterOpts{
			Name: "vault_claims",
			Help: "Number of exit claims paid",
		}),
		numHarvests: metric.NewCounter(metric.CounterOpts{
			Name: "vault_harvests",
			Help: "Number of reward harvests applied",
		}),
		numCheckpoints: metric.NewCounter(metric.CounterOpts{
			Name: "vault_checkpoints",
			Help: "Number of exit queue checkpoints created",
		}),
		totalShares: metric.NewGauge(metric.GaugeOpts{
			Name: "vault_total_shares",
			Help: "Outstanding share supply",
		}),
		totalAssets: metric.NewGauge(metric.GaugeOpts{
			Name: "vault_total_assets",
			Help: "Assets backing the share supply",
		}),
		queuedShares: metric.NewGauge(metric.GaugeOpts{
			Name: "vault_queued_shares",
			Help: "Shares awaiting conversion in the exit queue",
		}),
		unclaimedAssets: metric.NewGauge(metric.GaugeOpts{
			Name: "vault_unclaimed_assets",
			Help: "Assets processed by checkpoints but not yet claimed",
		}),
		rewardsNonce: metric.NewGauge(metric.GaugeOpts{
			Name: "vault_rewards_nonce",
			Help: "Last harvested oracle epoch",
		}),
	}

	if err := registerer.Register(metric.AsCollector(m.numDeposits)); err != nil {
		return nil, err
	}
	if err := registerer.Register(metric.AsCollector(m.numRedeems)); err != nil {
		return nil, err
	}
	if err := registerer.Register(metric.AsCollector(m.numQueueEntries)); err != nil {
		return nil, err
	}
	if err := registerer.Register(metric.AsCollector(m.numClaims)); err != nil {
		return nil, err
	}
	if err := registerer.Register(metric.AsCollector(m.numHarvests)); err != nil {
		return nil, err
	}
	if err := registerer.Register(metric.AsCollector(m.numCheckpoints)); err != nil {
		return nil, err
	}
	if err := registerer.Register(metric.AsCollector(m.totalShares)); err != nil {
		return nil, err
	}
	if err := registerer.Register(metric.AsCollector(m.totalAssets)); err != nil {
		return nil, err
	}
	if err := registerer.Register(metric.AsCollector(m.queuedShares)); err != nil {
		return nil, err
	}
	if err := registerer.Register(metric.AsCollector(m.unclaimedAssets)); err != nil {
		return nil, err
	}
	if err := registerer.Register(metric.AsCollector(m.rewardsNonce)); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *metricsImpl) MarkDeposit() {
	m.numDeposits.Inc()
}

func (m *metricsImpl) MarkRedeem() {
	m.numRedeems.Inc()
}

func (m *metricsImpl) MarkQueueEntry() {
	m.numQueueEntries.Inc()
}

func (m *metricsImpl) MarkClaim() {
	m.numClaims.Inc()
}

func (m *metricsImpl) MarkHarvest() {
	m.numHarvests.Inc()
}

func (m *metricsImpl) MarkCheckpoint() {
	m.numCheckpoints.Inc()
}

func (m *metricsImpl) ObserveTotals(totalShares, totalAssets, queuedShares, unclaimedAssets, rewardsNonce uint64) {
	m.totalShares.Set(float64(totalShares))
	m.totalAssets.Set(float64(totalAssets))
	m.queuedShares.Set(float64(queuedShares))
	m.unclaimedAssets.Set(float64(unclaimedAssets))
	m.rewardsNonce.Set(float64(rewardsNonce))
}

// Noop returns metrics that record nothing. Used by tests.
func Noop() Metrics {
	return noopMetrics{}
}

type noopMetrics struct{}

func (noopMetrics) MarkDeposit()                       {}
func (noopMetrics) MarkRedeem()                        {}
func (noopMetrics) MarkQueueEntry()                    {}
func (noopMetrics) MarkClaim()                         {}
func (noopMetrics) MarkHarvest()                       {}
func (noopMetrics) MarkCheckpoint()                    {}
func (noopMetrics) ObserveTotals(_, _, _, _, _ uint64) {}
