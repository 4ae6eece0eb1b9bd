// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package ledger implements the share/asset bookkeeping for a pooled staking
// vault. All conversions are deterministic integer operations that round
// toward the vault, so repeated small operations cannot siphon value from
// existing holders.
package ledger

import (
	"errors"
	"maps"

	"github.com/holiman/uint256"

	"github.com/luxfi/ids"

	safemath "github.com/luxfi/math"
)

var (
	ErrZeroAmount          = errors.New("zero amount")
	ErrEmptyHolder         = errors.New("empty holder address")
	ErrInsufficientBalance = errors.New("insufficient share balance")
	ErrInsolvent           = errors.New("total assets exhausted with shares outstanding")
	ErrAmountTooLarge      = errors.New("amount too large")
)

// Ledger tracks the total share supply, the total assets backing it, and the
// per-holder share balances. The zero-value totals only exist before genesis;
// once the security deposit is minted neither total returns to zero.
type Ledger struct {
	totalShares uint64
	totalAssets uint64
	balances    map[ids.ShortID]uint64
}

func New() *Ledger {
	return &Ledger{
		balances: make(map[ids.ShortID]uint64),
	}
}

// Load restores a ledger from persisted totals and balances. The balances map
// is not copied; the caller must not retain it.
func Load(totalShares, totalAssets uint64, balances map[ids.ShortID]uint64) *Ledger {
	if balances == nil {
		balances = make(map[ids.ShortID]uint64)
	}
	return &Ledger{
		totalShares: totalShares,
		totalAssets: totalAssets,
		balances:    balances,
	}
}

func (l *Ledger) TotalShares() uint64 {
	return l.totalShares
}

func (l *Ledger) TotalAssets() uint64 {
	return l.totalAssets
}

// Balance returns the share balance of [holder].
func (l *Ledger) Balance(holder ids.ShortID) uint64 {
	return l.balances[holder]
}

// Balances returns a copy of all non-zero share balances.
func (l *Ledger) Balances() map[ids.ShortID]uint64 {
	return maps.Clone(l.balances)
}

// ConvertToShares returns floor(assets * totalShares / totalAssets). While the
// share supply is zero, assets convert one-to-one.
func (l *Ledger) ConvertToShares(assets uint64) (uint64, error) {
	if l.totalShares == 0 {
		return assets, nil
	}
	if l.totalAssets == 0 {
		return 0, ErrInsolvent
	}
	return mulDiv(assets, l.totalShares, l.totalAssets)
}

// ConvertToAssets returns floor(shares * totalAssets / totalShares).
func (l *Ledger) ConvertToAssets(shares uint64) (uint64, error) {
	if l.totalShares == 0 {
		return 0, nil
	}
	return mulDiv(shares, l.totalAssets, l.totalShares)
}

// Deposit mints ConvertToShares(assets) to [to] and grows both totals by
// [assets]. Returns the number of shares minted.
func (l *Ledger) Deposit(to ids.ShortID, assets uint64) (uint64, error) {
	if assets == 0 {
		return 0, ErrZeroAmount
	}
	if to == ids.ShortEmpty {
		return 0, ErrEmptyHolder
	}
	shares, err := l.ConvertToShares(assets)
	if err != nil {
		return 0, err
	}
	newTotalAssets, err := safemath.Add64(l.totalAssets, assets)
	if err != nil {
		return 0, ErrAmountTooLarge
	}
	newTotalShares, err := safemath.Add64(l.totalShares, shares)
	if err != nil {
		return 0, ErrAmountTooLarge
	}
	l.totalAssets = newTotalAssets
	l.totalShares = newTotalShares
	l.balances[to] += shares
	return shares, nil
}

// Redeem burns [shares] from [from] and shrinks both totals, returning the
// assets released at the current exchange rate.
func (l *Ledger) Redeem(from ids.ShortID, shares uint64) (uint64, error) {
	if shares == 0 {
		return 0, ErrZeroAmount
	}
	if l.balances[from] < shares {
		return 0, ErrInsufficientBalance
	}
	assets, err := l.ConvertToAssets(shares)
	if err != nil {
		return 0, err
	}
	l.subBalance(from, shares)
	l.totalShares -= shares
	l.totalAssets -= assets
	return assets, nil
}

// Move reassigns [shares] from one holder to another without touching the
// totals. Policy gating happens above the ledger.
func (l *Ledger) Move(from, to ids.ShortID, shares uint64) error {
	if shares == 0 {
		return ErrZeroAmount
	}
	if to == ids.ShortEmpty {
		return ErrEmptyHolder
	}
	if l.balances[from] < shares {
		return ErrInsufficientBalance
	}
	l.subBalance(from, shares)
	l.balances[to] += shares
	return nil
}

// MintShares grows the share supply without adding assets, diluting every
// existing holder. Used for fee share minting.
func (l *Ledger) MintShares(to ids.ShortID, shares uint64) error {
	if to == ids.ShortEmpty {
		return ErrEmptyHolder
	}
	newTotalShares, err := safemath.Add64(l.totalShares, shares)
	if err != nil {
		return ErrAmountTooLarge
	}
	l.totalShares = newTotalShares
	l.balances[to] += shares
	return nil
}

// AddAssets grows the asset total without minting shares, raising the
// exchange rate. Used when a positive reward delta is applied.
func (l *Ledger) AddAssets(assets uint64) error {
	newTotalAssets, err := safemath.Add64(l.totalAssets, assets)
	if err != nil {
		return ErrAmountTooLarge
	}
	l.totalAssets = newTotalAssets
	return nil
}

// SubAssets shrinks the asset total, clamping at zero. Returns the amount
// actually removed. Used when a penalty delta is applied.
func (l *Ledger) SubAssets(assets uint64) uint64 {
	removed := min(assets, l.totalAssets)
	l.totalAssets -= removed
	return removed
}

func (l *Ledger) subBalance(holder ids.ShortID, shares uint64) {
	remaining := l.balances[holder] - shares
	if remaining == 0 {
		delete(l.balances, holder)
	} else {
		l.balances[holder] = remaining
	}
}

// mulDiv returns floor(a * b / denom) with a 256-bit intermediate product.
func mulDiv(a, b, denom uint64) (uint64, error) {
	product := new(uint256.Int).Mul(
		new(uint256.Int).SetUint64(a),
		new(uint256.Int).SetUint64(b),
	)
	product.Div(product, new(uint256.Int).SetUint64(denom))
	if !product.IsUint64() {
		return 0, ErrAmountTooLarge
	}
	return product.Uint64(), nil
}
