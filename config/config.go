// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package config

import (
	"errors"
	"time"
)

var (
	errZeroSecurityDeposit    = errors.New("security deposit must be non-zero")
	errFeeAboveMax            = errors.New("initial fee percent above maximum")
	errMaxFeeAboveHundred     = errors.New("max fee percent above 100%")
	errZeroCheckpointInterval = errors.New("checkpoint interval must be non-zero")
)

// Struct collecting all the foundational parameters of a vault.
type Config struct {
	// SecurityDeposit is minted to the vault itself at genesis. It keeps both
	// totals permanently non-zero, avoiding division by zero in conversions
	// and bounding first-depositor rounding attacks.
	SecurityDeposit uint64 `json:"securityDeposit"`

	// FeePercentBps of a positive reward delta is diverted to the fee
	// recipient by minting fresh shares.
	FeePercentBps uint16 `json:"feePercentBps"`

	// MaxFeePercentBps caps the fee percent for the vault's lifetime.
	MaxFeePercentBps uint16 `json:"maxFeePercentBps"`

	// FeeIncreaseLimitBps bounds the relative fee increase per change.
	FeeIncreaseLimitBps uint16 `json:"feeIncreaseLimitBps"`

	// MinFeeIncreaseBps is the absolute step floor, so a zero fee can still
	// be raised.
	MinFeeIncreaseBps uint16 `json:"minFeeIncreaseBps"`

	// FeeChangeMinDelay is the minimum time between fee changes.
	FeeChangeMinDelay time.Duration `json:"feeChangeMinDelay"`

	// ClaimDelay is the maturity period between entering the exit queue and
	// assets becoming payable, even once checkpointed.
	ClaimDelay time.Duration `json:"claimDelay"`

	// CheckpointInterval rate-limits checkpoint creation.
	CheckpointInterval time.Duration `json:"checkpointInterval"`

	// TicketOffset seeds the exit-queue cursor. Kept for state compatibility
	// with prior deployments; treat tickets as opaque.
	TicketOffset uint64 `json:"ticketOffset"`
}

// Default returns the production parameters.
func Default() Config {
	return Config{
		SecurityDeposit:     1_000,
		FeePercentBps:       500,
		MaxFeePercentBps:    10_000,
		FeeIncreaseLimitBps: 2_000,
		MinFeeIncreaseBps:   100,
		FeeChangeMinDelay:   3 * 24 * time.Hour,
		ClaimDelay:          24 * time.Hour,
		CheckpointInterval:  12 * time.Hour,
		TicketOffset:        0,
	}
}

func (c *Config) Validate() error {
	switch {
	case c.SecurityDeposit == 0:
		return errZeroSecurityDeposit
	case c.MaxFeePercentBps > 10_000:
		return errMaxFeeAboveHundred
	case c.FeePercentBps > c.MaxFeePercentBps:
		return errFeeAboveMax
	case c.CheckpointInterval <= 0:
		return errZeroCheckpointInterval
	}
	return nil
}
