// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package vault

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/luxfi/database"
	"github.com/luxfi/database/memdb"
	"github.com/luxfi/ids"
	"github.com/luxfi/log"

	"github.com/luxfi/vault/config"
	"github.com/luxfi/vault/ledger"
	"github.com/luxfi/vault/policy"
	"github.com/luxfi/vault/queue"
	"github.com/luxfi/vault/rewards"
)

var (
	testVaultID  = ids.ID{0x7a}
	alice        = ids.ShortID{1}
	bob          = ids.ShortID{2}
	feeRecipient = ids.ShortID{3}

	genesisTime = time.Unix(10_000, 0)
)

func testConfig() config.Config {
	cfg := config.Default()
	cfg.SecurityDeposit = 1_000
	cfg.FeePercentBps = 1_000 // 10%
	cfg.ClaimDelay = time.Hour
	cfg.CheckpointInterval = time.Hour
	return cfg
}

func newTestVault(t *testing.T, db database.Database, registry *rewards.Registry) *Vault {
	require := require.New(t)

	v, err := New(Params{
		VaultID:      testVaultID,
		Config:       testConfig(),
		DB:           db,
		Oracle:       registry,
		Policy:       policy.Open(),
		FeeRecipient: feeRecipient,
		Log:          log.NewNoOpLogger(),
	})
	require.NoError(err)
	v.clock.Set(genesisTime)
	return v
}

// publish commits one epoch's cumulative totals for [v] to the registry and
// returns the matching attestation.
func publish(t *testing.T, registry *rewards.Registry, v *Vault, reward int64, unlocked uint64) rewards.Attestation {
	require := require.New(t)

	epoch := registry.CurrentEpoch() + 1
	leaves := [][]byte{
		rewards.LeafHash(v.ID(), epoch, reward, unlocked),
		rewards.LeafHash(ids.GenerateTestID(), epoch, 55, 0),
	}
	root, proofs := rewards.BuildTree(leaves)
	_, err := registry.Publish(root)
	require.NoError(err)

	return rewards.Attestation{
		Epoch:                    epoch,
		CumulativeReward:         reward,
		CumulativeUnlockedReward: unlocked,
		Proof:                    proofs[0],
	}
}

// conservation checks the share and asset bookkeeping identities that must
// hold after every operation.
func conservation(t *testing.T, v *Vault) {
	require := require.New(t)

	var sum uint64
	for _, shares := range v.ledger.Balances() {
		sum += shares
	}
	require.Equal(v.TotalShares(), sum)
	require.Equal(v.QueuedShares(), v.Balance(v.queueAddr))
}

func TestGenesisMintsSecurityDeposit(t *testing.T) {
	require := require.New(t)

	v := newTestVault(t, memdb.New(), rewards.NewRegistry())
	require.Equal(uint64(1_000), v.TotalShares())
	require.Equal(uint64(1_000), v.TotalAssets())
	require.Equal(uint64(1_000), v.LiquidAssets())
	require.Equal(uint64(1_000), v.Balance(v.selfAddr))
	require.False(v.Collateralized())
	conservation(t, v)
}

func TestReopenRestoresState(t *testing.T) {
	require := require.New(t)

	db := memdb.New()
	registry := rewards.NewRegistry()
	v := newTestVault(t, db, registry)

	_, err := v.Deposit(alice, 500)
	require.NoError(err)
	require.NoError(v.FundPosition(1_200))

	reopened := newTestVault(t, db, registry)
	require.Equal(v.TotalShares(), reopened.TotalShares())
	require.Equal(v.TotalAssets(), reopened.TotalAssets())
	require.Equal(v.LiquidAssets(), reopened.LiquidAssets())
	require.Equal(v.Balance(alice), reopened.Balance(alice))
	require.True(reopened.Collateralized())
	conservation(t, reopened)
}

func TestDepositAndInstantRedeem(t *testing.T) {
	require := require.New(t)

	v := newTestVault(t, memdb.New(), rewards.NewRegistry())

	shares, err := v.Deposit(alice, 500)
	require.NoError(err)
	require.Equal(uint64(500), shares)
	require.Equal(uint64(1_500), v.TotalAssets())
	conservation(t, v)

	assets, err := v.Redeem(alice, 200)
	require.NoError(err)
	require.Equal(uint64(200), assets)
	require.Equal(uint64(300), v.Balance(alice))
	require.Equal(uint64(1_300), v.LiquidAssets())
	conservation(t, v)
}

func TestRedeemRequiresLiquidity(t *testing.T) {
	require := require.New(t)

	v := newTestVault(t, memdb.New(), rewards.NewRegistry())
	_, err := v.Deposit(alice, 500)
	require.NoError(err)

	// Move most of the balance into an external position.
	require.NoError(v.FundPosition(1_400))
	_, err = v.Redeem(alice, 200)
	require.ErrorIs(err, ErrInsufficientLiquidity)

	assets, err := v.Redeem(alice, 100)
	require.NoError(err)
	require.Equal(uint64(100), assets)
}

func TestEnterQueueBeforeCollateralizationIsInstant(t *testing.T) {
	require := require.New(t)

	v := newTestVault(t, memdb.New(), rewards.NewRegistry())
	_, err := v.Deposit(alice, 500)
	require.NoError(err)

	// Nothing is staked yet, so the exit pays out instantly and returns the
	// sentinel ticket.
	ticket, err := v.EnterQueue(alice, 500)
	require.NoError(err)
	require.Equal(uint64(queue.MaxTicket), ticket)
	require.Zero(v.Balance(alice))
	require.Zero(v.QueuedShares())
	require.Equal(uint64(1_000), v.TotalAssets())
	conservation(t, v)
}

func TestExitQueueLifecycle(t *testing.T) {
	require := require.New(t)

	v := newTestVault(t, memdb.New(), rewards.NewRegistry())

	_, err := v.Deposit(alice, 1_000)
	require.NoError(err)
	require.NoError(v.FundPosition(2_000))

	ticket, err := v.EnterQueue(alice, 1_000)
	require.NoError(err)
	require.Zero(ticket)
	require.Equal(uint64(1_000), v.QueuedShares())
	conservation(t, v)

	// No liquidity yet: updating state creates no checkpoint.
	require.NoError(v.UpdateState())
	require.Zero(v.NumCheckpoints())

	// Principal returns partially; the next update processes 400 shares at
	// the 1:1 rate.
	require.NoError(v.ReturnPrincipal(400))
	require.NoError(v.UpdateState())
	require.Equal(1, v.NumCheckpoints())
	require.Equal(uint64(600), v.QueuedShares())
	require.Equal(uint64(400), v.UnclaimedAssets())
	require.Zero(v.LiquidAssets())
	require.Equal(uint64(1_600), v.TotalShares())
	require.Equal(uint64(1_600), v.TotalAssets())
	conservation(t, v)

	// The claim needs maturity and the covering checkpoint index.
	entryTime := uint64(genesisTime.Unix())
	v.clock.Set(genesisTime.Add(time.Hour))

	index, err := v.GetQueueIndex(ticket)
	require.NoError(err)
	require.Zero(index)

	result, err := v.Claim(alice, ticket, entryTime, index)
	require.NoError(err)
	require.Equal(queue.ClaimResult{
		ClaimedAssets: 400,
		NewTicket:     400,
		LeftShares:    600,
	}, result)
	require.Zero(v.UnclaimedAssets())
	conservation(t, v)

	// The rest of the principal returns; the next interval processes the
	// remainder.
	require.NoError(v.ReturnPrincipal(600))
	v.clock.Set(genesisTime.Add(2 * time.Hour))
	require.NoError(v.UpdateState())
	require.Equal(2, v.NumCheckpoints())
	require.Zero(v.QueuedShares())

	index, err = v.GetQueueIndex(result.NewTicket)
	require.NoError(err)
	require.Equal(1, index)

	result, err = v.Claim(alice, result.NewTicket, entryTime, index)
	require.NoError(err)
	require.Equal(queue.ClaimResult{ClaimedAssets: 600}, result)

	// Alice got her full 1000 back; only the security deposit remains.
	require.Equal(uint64(1_000), v.TotalShares())
	require.Equal(uint64(1_000), v.TotalAssets())
	require.Zero(v.UnclaimedAssets())
	conservation(t, v)
}

func TestClaimWrongOwner(t *testing.T) {
	require := require.New(t)

	v := newTestVault(t, memdb.New(), rewards.NewRegistry())
	_, err := v.Deposit(alice, 1_000)
	require.NoError(err)
	require.NoError(v.FundPosition(2_000))

	ticket, err := v.EnterQueue(alice, 1_000)
	require.NoError(err)

	v.clock.Set(genesisTime.Add(2 * time.Hour))
	_, err = v.Claim(bob, ticket, uint64(genesisTime.Unix()), 0)
	require.ErrorIs(err, ErrNotPositionOwner)
}

func TestRedeemBlockedWhileExitsQueued(t *testing.T) {
	require := require.New(t)

	v := newTestVault(t, memdb.New(), rewards.NewRegistry())
	_, err := v.Deposit(alice, 1_000)
	require.NoError(err)
	_, err = v.Deposit(bob, 500)
	require.NoError(err)
	require.NoError(v.FundPosition(2_000))

	_, err = v.EnterQueue(alice, 1_000)
	require.NoError(err)

	// Bob cannot jump the queue even though liquidity remains.
	_, err = v.Redeem(bob, 100)
	require.ErrorIs(err, ErrQueueNotEmpty)
}

func TestHarvestMintsFeeShares(t *testing.T) {
	require := require.New(t)

	registry := rewards.NewRegistry()
	v := newTestVault(t, memdb.New(), registry)
	_, err := v.Deposit(alice, 1_000)
	require.NoError(err)

	att := publish(t, registry, v, 1_000, 100)
	require.NoError(v.UpdateState(att))

	// 10% of the 1000 reward, valued at the pre-reward 1:1 rate.
	require.Equal(uint64(100), v.Balance(feeRecipient))
	require.Equal(uint64(2_100), v.TotalShares())
	require.Equal(uint64(3_000), v.TotalAssets())
	require.Equal(uint64(2_100), v.LiquidAssets())
	require.Equal(uint64(1), v.RewardsNonce())
	conservation(t, v)
}

func TestHarvestPenalty(t *testing.T) {
	require := require.New(t)

	registry := rewards.NewRegistry()
	v := newTestVault(t, memdb.New(), registry)
	_, err := v.Deposit(alice, 1_000)
	require.NoError(err)

	require.NoError(v.UpdateState(publish(t, registry, v, 100, 0)))
	require.Equal(uint64(2_100), v.TotalAssets())

	// The cumulative total drops back: a 100 penalty, no fee, no unlock.
	require.NoError(v.UpdateState(publish(t, registry, v, 0, 0)))
	require.Equal(uint64(2_000), v.TotalAssets())
	require.Equal(uint64(2_010), v.TotalShares())
	require.Equal(uint64(2), v.RewardsNonce())
	conservation(t, v)
}

func TestStalenessBlocksMutations(t *testing.T) {
	require := require.New(t)

	registry := rewards.NewRegistry()
	v := newTestVault(t, memdb.New(), registry)

	first := publish(t, registry, v, 100, 0)
	second := publish(t, registry, v, 200, 0)

	// Two unharvested epochs: the exchange rate is too outdated to honor.
	_, err := v.Deposit(alice, 500)
	require.ErrorIs(err, ErrStale)
	_, err = v.Redeem(alice, 1)
	require.ErrorIs(err, ErrStale)
	require.ErrorIs(v.Transfer(alice, bob, 1), ErrStale)
	_, err = v.EnterQueue(alice, 1)
	require.ErrorIs(err, ErrStale)
	require.ErrorIs(v.FundPosition(1), ErrStale)

	// Catching up in one call unblocks everything.
	require.NoError(v.UpdateState(first, second))
	require.Equal(uint64(2), v.RewardsNonce())
	_, err = v.Deposit(alice, 500)
	require.NoError(err)
}

func TestUpdateStateNoPendingWorkIsNoop(t *testing.T) {
	require := require.New(t)

	v := newTestVault(t, memdb.New(), rewards.NewRegistry())
	totalShares := v.TotalShares()

	require.NoError(v.UpdateState())
	require.NoError(v.UpdateState())
	require.Equal(totalShares, v.TotalShares())
	require.Zero(v.NumCheckpoints())
}

func TestUpdateStateRejectsBadAttestation(t *testing.T) {
	require := require.New(t)

	registry := rewards.NewRegistry()
	v := newTestVault(t, memdb.New(), registry)

	att := publish(t, registry, v, 100, 0)
	att.CumulativeReward = 5_000
	require.ErrorIs(v.UpdateState(att), rewards.ErrInvalidProof)

	// The nonce did not advance; the genuine attestation still applies.
	require.Zero(v.RewardsNonce())
	att.CumulativeReward = 100
	require.NoError(v.UpdateState(att))
	require.Equal(uint64(1), v.RewardsNonce())
}

func TestTransferRespectsCollateralGate(t *testing.T) {
	require := require.New(t)

	db := memdb.New()
	factory := Factory{Params: Params{
		VaultID:      testVaultID,
		Config:       testConfig(),
		DB:           db,
		Oracle:       rewards.NewRegistry(),
		FeeRecipient: feeRecipient,
		Log:          log.NewNoOpLogger(),
	}}

	// The gate requires every holder to retain at least 400 shares.
	v, err := factory.NewWithCollateral(policy.Open(), minBalanceChecker{min: 400})
	require.NoError(err)
	v.clock.Set(genesisTime)

	_, err = v.Deposit(alice, 500)
	require.NoError(err)

	require.ErrorIs(v.Transfer(alice, bob, 200), policy.ErrTransferNotAllowed)
	require.NoError(v.Transfer(alice, bob, 100))
	require.Equal(uint64(400), v.Balance(alice))
	require.Equal(uint64(100), v.Balance(bob))
}

type minBalanceChecker struct {
	min uint64
}

func (c minBalanceChecker) CheckTransferAllowed(_ ids.ShortID, sharesAfter uint64) bool {
	return sharesAfter >= c.min
}

func TestPrivateVaultRejectsOutsiders(t *testing.T) {
	require := require.New(t)

	factory := Factory{Params: Params{
		VaultID:      testVaultID,
		Config:       testConfig(),
		DB:           memdb.New(),
		Oracle:       rewards.NewRegistry(),
		FeeRecipient: feeRecipient,
		Log:          log.NewNoOpLogger(),
	}}

	v, err := factory.NewPrivate(alice)
	require.NoError(err)
	v.clock.Set(genesisTime)

	_, err = v.Deposit(alice, 100)
	require.NoError(err)
	_, err = v.Deposit(bob, 100)
	require.ErrorIs(err, policy.ErrDepositNotAllowed)
}

func TestSetFee(t *testing.T) {
	require := require.New(t)

	v := newTestVault(t, memdb.New(), rewards.NewRegistry())

	require.NoError(v.SetFee(bob, 1_100))
	feeConfig := v.FeeConfig()
	require.Equal(bob, feeConfig.Recipient)
	require.Equal(uint16(1_100), feeConfig.PercentBps)

	// The change-control policy still applies through the vault surface.
	require.ErrorIs(v.SetFee(bob, 1_200), ledger.ErrFeeChangeTooSoon)
}

func TestCheckpointIntervalRateLimits(t *testing.T) {
	require := require.New(t)

	v := newTestVault(t, memdb.New(), rewards.NewRegistry())
	_, err := v.Deposit(alice, 1_000)
	require.NoError(err)
	require.NoError(v.FundPosition(2_000))
	_, err = v.EnterQueue(alice, 1_000)
	require.NoError(err)

	require.NoError(v.ReturnPrincipal(500))
	require.NoError(v.UpdateState())
	require.Equal(1, v.NumCheckpoints())

	// More liquidity within the same interval does not checkpoint again.
	require.NoError(v.ReturnPrincipal(500))
	require.NoError(v.UpdateState())
	require.Equal(1, v.NumCheckpoints())

	v.clock.Set(genesisTime.Add(time.Hour))
	require.NoError(v.UpdateState())
	require.Equal(2, v.NumCheckpoints())
}
