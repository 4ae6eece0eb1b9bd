// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package rewards implements the oracle attestation surface and the harvest
// step that applies attested reward deltas to a vault.
package rewards

import (
	"errors"
	"sync"

	"github.com/luxfi/ids"
)

var (
	ErrNoSuchEpoch       = errors.New("no root published for epoch")
	ErrInvalidProof      = errors.New("invalid membership proof")
	ErrEmptyRoot         = errors.New("empty rewards root")
	ErrFutureEpoch       = errors.New("attestation epoch not yet published")
	ErrEpochNotSequel    = errors.New("attestation epoch must advance the nonce by exactly one")
	ErrFirstHarvestLoss  = errors.New("first harvest must not report a net loss")
	ErrUnlockedDecreased = errors.New("cumulative unlocked reward decreased")
)

// Attestation carries the committee's published leaf for one vault at one
// epoch, plus the membership proof against that epoch's root.
type Attestation struct {
	Epoch                    uint64
	CumulativeReward         int64
	CumulativeUnlockedReward uint64
	Proof                    [][]byte
}

// Oracle is the committee's attestation ledger, queried read-only by vaults.
// One oracle serves many vaults; vaults reference it, never embed it.
type Oracle interface {
	// CurrentEpoch returns the committee's publication counter.
	CurrentEpoch() uint64

	// VerifyMembership checks that [attestation] for [vaultID] is included
	// under the root published at attestation.Epoch.
	VerifyMembership(vaultID ids.ID, attestation Attestation) error
}

var _ Oracle = (*Registry)(nil)

// Registry is an in-process Oracle: the committee publishes one merkle root
// per epoch over all vault leaves. Roots for past epochs are retained so a
// lagging vault can harvest sequentially.
type Registry struct {
	mu    sync.RWMutex
	epoch uint64
	roots map[uint64][]byte
}

func NewRegistry() *Registry {
	return &Registry{
		roots: make(map[uint64][]byte),
	}
}

// Publish records [root] as the next epoch's rewards root and advances the
// epoch counter.
func (r *Registry) Publish(root []byte) (uint64, error) {
	if len(root) == 0 {
		return 0, ErrEmptyRoot
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.epoch++
	r.roots[r.epoch] = root
	return r.epoch, nil
}

func (r *Registry) CurrentEpoch() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.epoch
}

// Root returns the root published at [epoch].
func (r *Registry) Root(epoch uint64) ([]byte, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	root, ok := r.roots[epoch]
	if !ok {
		return nil, ErrNoSuchEpoch
	}
	return root, nil
}

func (r *Registry) VerifyMembership(vaultID ids.ID, attestation Attestation) error {
	root, err := r.Root(attestation.Epoch)
	if err != nil {
		return err
	}
	leaf := LeafHash(
		vaultID,
		attestation.Epoch,
		attestation.CumulativeReward,
		attestation.CumulativeUnlockedReward,
	)
	if !VerifyProof(root, leaf, attestation.Proof) {
		return ErrInvalidProof
	}
	return nil
}
