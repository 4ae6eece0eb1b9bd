// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package ledger

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/luxfi/ids"
)

func newTestFeeController(cfg FeeConfig) *FeeController {
	return NewFeeController(
		cfg,
		5_000,       // max 50%
		2_000,       // +20% relative per change
		100,         // at least +1% absolute
		24*time.Hour,
	)
}

func TestSetFee(t *testing.T) {
	require := require.New(t)

	f := newTestFeeController(FeeConfig{Recipient: alice, PercentBps: 1_000})

	require.NoError(f.Set(bob, 1_200, 1_000))
	require.Equal(FeeConfig{
		Recipient:  bob,
		PercentBps: 1_200,
		UpdatedAt:  1_000,
	}, f.Config())
}

func TestSetFeeRejectsEmptyRecipient(t *testing.T) {
	require := require.New(t)

	f := newTestFeeController(FeeConfig{Recipient: alice, PercentBps: 1_000})
	require.ErrorIs(f.Set(ids.ShortEmpty, 500, 1_000), ErrEmptyFeeRecipient)
}

func TestSetFeeAboveMax(t *testing.T) {
	require := require.New(t)

	f := newTestFeeController(FeeConfig{Recipient: alice, PercentBps: 1_000})
	require.ErrorIs(f.Set(alice, 5_001, 1_000), ErrFeeTooHigh)
}

func TestSetFeeIncreaseTooFast(t *testing.T) {
	require := require.New(t)

	f := newTestFeeController(FeeConfig{Recipient: alice, PercentBps: 1_000})

	// 20% of 1000 bps is 200 bps, so 1201 overshoots.
	require.ErrorIs(f.Set(alice, 1_201, 1_000), ErrFeeIncreaseTooFast)

	// Decreases are never rate-limited.
	require.NoError(f.Set(alice, 1, 1_000))
}

func TestSetFeeMinIncreaseFloor(t *testing.T) {
	require := require.New(t)

	// 20% of a zero fee is zero; the absolute floor still allows +100 bps.
	f := newTestFeeController(FeeConfig{Recipient: alice, PercentBps: 0})
	require.ErrorIs(f.Set(alice, 101, 1_000), ErrFeeIncreaseTooFast)
	require.NoError(f.Set(alice, 100, 1_000))
}

func TestSetFeeChangeTooSoon(t *testing.T) {
	require := require.New(t)

	f := newTestFeeController(FeeConfig{Recipient: alice, PercentBps: 1_000})
	require.NoError(f.Set(alice, 900, 1_000))

	delay := uint64(24 * time.Hour / time.Second)
	require.ErrorIs(f.Set(alice, 800, 1_000+delay-1), ErrFeeChangeTooSoon)
	require.NoError(f.Set(alice, 800, 1_000+delay))
}
