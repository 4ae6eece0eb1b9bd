// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package ledger

import (
	"errors"
	"time"

	"github.com/luxfi/ids"
)

// MaxFeePercentBps caps the reward fee at 100%.
const MaxFeePercentBps = 10_000

var (
	ErrFeeTooHigh         = errors.New("fee percent above maximum")
	ErrFeeIncreaseTooFast = errors.New("fee percent increase above allowed step")
	ErrFeeChangeTooSoon   = errors.New("fee change requested before min delay elapsed")
	ErrEmptyFeeRecipient  = errors.New("empty fee recipient")
)

// FeeConfig is the persisted fee state of a vault.
type FeeConfig struct {
	Recipient  ids.ShortID `serialize:"true" json:"recipient"`
	PercentBps uint16      `serialize:"true" json:"percentBps"`
	UpdatedAt  uint64      `serialize:"true" json:"updatedAt"` // unix seconds
}

// FeeController enforces the change-control policy on the fee configuration:
// a hard cap, a bounded relative increase per change, and a minimum delay
// between changes.
type FeeController struct {
	cfg FeeConfig

	maxPercentBps    uint16
	increaseLimitBps uint16 // relative step: new <= old + old*limit/10000
	minIncreaseBps   uint16 // absolute step floor so a zero fee is not frozen
	minDelay         time.Duration
}

func NewFeeController(
	cfg FeeConfig,
	maxPercentBps uint16,
	increaseLimitBps uint16,
	minIncreaseBps uint16,
	minDelay time.Duration,
) *FeeController {
	return &FeeController{
		cfg:              cfg,
		maxPercentBps:    maxPercentBps,
		increaseLimitBps: increaseLimitBps,
		minIncreaseBps:   minIncreaseBps,
		minDelay:         minDelay,
	}
}

func (f *FeeController) Config() FeeConfig {
	return f.cfg
}

func (f *FeeController) Recipient() ids.ShortID {
	return f.cfg.Recipient
}

func (f *FeeController) PercentBps() uint16 {
	return f.cfg.PercentBps
}

// FeeAssets returns the portion of [reward] owed to the fee recipient at the
// current percentage. The result never exceeds [reward], so it cannot
// overflow.
func (f *FeeController) FeeAssets(reward uint64) uint64 {
	assets, _ := mulDiv(reward, uint64(f.cfg.PercentBps), MaxFeePercentBps)
	return assets
}

// Set updates the fee configuration, enforcing the change-control policy.
// [now] is the current wall-clock time in unix seconds.
func (f *FeeController) Set(recipient ids.ShortID, percentBps uint16, now uint64) error {
	if recipient == ids.ShortEmpty {
		return ErrEmptyFeeRecipient
	}
	if percentBps > f.maxPercentBps || percentBps > MaxFeePercentBps {
		return ErrFeeTooHigh
	}
	if f.cfg.UpdatedAt != 0 && now < f.cfg.UpdatedAt+uint64(f.minDelay/time.Second) {
		return ErrFeeChangeTooSoon
	}
	if percentBps > f.cfg.PercentBps {
		step := uint64(f.cfg.PercentBps) * uint64(f.increaseLimitBps) / MaxFeePercentBps
		step = max(step, uint64(f.minIncreaseBps))
		if uint64(percentBps) > uint64(f.cfg.PercentBps)+step {
			return ErrFeeIncreaseTooFast
		}
	}
	f.cfg = FeeConfig{
		Recipient:  recipient,
		PercentBps: percentBps,
		UpdatedAt:  now,
	}
	return nil
}
