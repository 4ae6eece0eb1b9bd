// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package rewards

import (
	"github.com/luxfi/ids"
)

// HarvestState is the persisted harvest bookkeeping of one vault.
type HarvestState struct {
	// Nonce is the last epoch whose attestation this vault applied. Epochs
	// must be applied strictly in order.
	Nonce uint64 `serialize:"true" json:"nonce"`

	CumulativeReward         int64  `serialize:"true" json:"cumulativeReward"`
	CumulativeUnlockedReward uint64 `serialize:"true" json:"cumulativeUnlockedReward"`
}

// Delta is the net change one harvest applies to the ledger.
type Delta struct {
	// Reward is the signed reward change since the last applied epoch.
	Reward int64
	// Unlocked is the newly unlocked auxiliary reward since the last applied
	// epoch. Never negative.
	Unlocked uint64
}

// Harvester validates attestations for one vault and tracks the cumulative
// totals already applied. It never mutates the ledger itself; the caller
// applies the returned delta atomically with the rest of its state change.
type Harvester struct {
	vaultID ids.ID
	oracle  Oracle
	state   HarvestState
}

func NewHarvester(vaultID ids.ID, oracle Oracle, state HarvestState) *Harvester {
	return &Harvester{
		vaultID: vaultID,
		oracle:  oracle,
		state:   state,
	}
}

func (h *Harvester) State() HarvestState {
	return h.state
}

func (h *Harvester) Nonce() uint64 {
	return h.state.Nonce
}

// IsStale reports whether the vault is more than one epoch behind the
// committee. While stale, ledger mutations are blocked until the vault
// harvests its way back.
func (h *Harvester) IsStale() bool {
	return h.oracle.CurrentEpoch() > h.state.Nonce+1
}

// IsHarvestRequired reports whether an unapplied epoch is available.
func (h *Harvester) IsHarvestRequired() bool {
	return h.oracle.CurrentEpoch() > h.state.Nonce
}

// Harvest validates [attestation] and advances the nonce, returning the delta
// to apply to the ledger.
//
// The attestation must target exactly the next epoch: skipping epochs is
// disallowed, a lagging vault harvests each epoch in turn against the
// retained historical roots. The very first harvest must not report a net
// loss; with no prior positive baseline to net against, a first-update loss
// is treated as corrupted input rather than a legitimate penalty.
func (h *Harvester) Harvest(attestation Attestation) (Delta, error) {
	if attestation.Epoch != h.state.Nonce+1 {
		return Delta{}, ErrEpochNotSequel
	}
	if attestation.Epoch > h.oracle.CurrentEpoch() {
		return Delta{}, ErrFutureEpoch
	}
	if err := h.oracle.VerifyMembership(h.vaultID, attestation); err != nil {
		return Delta{}, err
	}

	reward := attestation.CumulativeReward - h.state.CumulativeReward
	if h.state.Nonce == 0 && reward < 0 {
		return Delta{}, ErrFirstHarvestLoss
	}
	if attestation.CumulativeUnlockedReward < h.state.CumulativeUnlockedReward {
		return Delta{}, ErrUnlockedDecreased
	}
	unlocked := attestation.CumulativeUnlockedReward - h.state.CumulativeUnlockedReward

	h.state = HarvestState{
		Nonce:                    attestation.Epoch,
		CumulativeReward:         attestation.CumulativeReward,
		CumulativeUnlockedReward: attestation.CumulativeUnlockedReward,
	}
	return Delta{
		Reward:   reward,
		Unlocked: unlocked,
	}, nil
}
