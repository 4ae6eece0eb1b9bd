// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package vault

import (
	"github.com/luxfi/ids"

	"github.com/luxfi/vault/policy"
)

// Factory stamps out vault variants by injecting the matching capability set
// into an otherwise identical core.
type Factory struct {
	Params Params
}

// NewOpen creates or opens a permissionless vault: anyone may deposit.
func (f *Factory) NewOpen() (*Vault, error) {
	params := f.Params
	params.Policy = policy.Open()
	return New(params)
}

// NewPrivate creates or opens a vault admitting only [depositors].
func (f *Factory) NewPrivate(depositors ...ids.ShortID) (*Vault, error) {
	params := f.Params
	params.Policy = policy.Private(depositors...)
	return New(params)
}

// NewWithCollateral creates or opens a vault whose share transfers are gated
// by an external loan-to-value checker.
func (f *Factory) NewWithCollateral(base policy.Set, checker policy.CollateralChecker) (*Vault, error) {
	params := f.Params
	params.Policy = policy.WithCollateral(base, checker)
	return New(params)
}
