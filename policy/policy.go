// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package policy defines the capability set injected into a vault to realize
// its variants (open, private, collateral-aware) without inheritance chains.
// Gates are resolved per call; the ledger itself stays policy-free.
package policy

import (
	"errors"

	"github.com/luxfi/ids"
)

var (
	ErrDepositNotAllowed  = errors.New("depositor not admitted")
	ErrTransferNotAllowed = errors.New("transfer would under-collateralize holder")
)

// DepositGate admits or rejects depositors.
type DepositGate interface {
	CanDeposit(depositor ids.ShortID) error
}

// TransferGate is consulted on every share transfer with the sender's
// balance after the transfer would apply.
type TransferGate interface {
	CanTransfer(holder ids.ShortID, sharesAfter uint64) error
}

// CollateralChecker is the external loan-to-value collaborator: it knows the
// backing each holder's secondary-token position requires.
type CollateralChecker interface {
	CheckTransferAllowed(holder ids.ShortID, sharesAfter uint64) bool
}

// Set bundles the gates one vault instance resolves per call.
type Set struct {
	DepositGate  DepositGate
	TransferGate TransferGate
}

// Open returns the permissionless capability set.
func Open() Set {
	return Set{
		DepositGate:  allowAll{},
		TransferGate: allowAll{},
	}
}

// Private returns a capability set admitting only [depositors].
func Private(depositors ...ids.ShortID) Set {
	gate := allowlistGate{admitted: make(map[ids.ShortID]struct{}, len(depositors))}
	for _, depositor := range depositors {
		gate.admitted[depositor] = struct{}{}
	}
	return Set{
		DepositGate:  gate,
		TransferGate: allowAll{},
	}
}

// WithCollateral wires the LTV collaborator into [set]'s transfer gate.
func WithCollateral(set Set, checker CollateralChecker) Set {
	set.TransferGate = collateralGate{checker: checker}
	return set
}

type allowAll struct{}

func (allowAll) CanDeposit(ids.ShortID) error {
	return nil
}

func (allowAll) CanTransfer(ids.ShortID, uint64) error {
	return nil
}

type allowlistGate struct {
	admitted map[ids.ShortID]struct{}
}

func (g allowlistGate) CanDeposit(depositor ids.ShortID) error {
	if _, ok := g.admitted[depositor]; !ok {
		return ErrDepositNotAllowed
	}
	return nil
}

type collateralGate struct {
	checker CollateralChecker
}

func (g collateralGate) CanTransfer(holder ids.ShortID, sharesAfter uint64) error {
	if !g.checker.CheckTransferAllowed(holder, sharesAfter) {
		return ErrTransferNotAllowed
	}
	return nil
}
