// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package vault

import (
	"time"

	"github.com/luxfi/ids"
	"github.com/luxfi/log"

	"github.com/luxfi/vault/events"
	"github.com/luxfi/vault/ledger"
	"github.com/luxfi/vault/queue"
	"github.com/luxfi/vault/rewards"

	safemath "github.com/luxfi/math"
)

// Deposit accepts [assets] from [from], mints shares at the current exchange
// rate, and returns the number of shares minted.
func (v *Vault) Deposit(from ids.ShortID, assets uint64) (uint64, error) {
	v.lock.Lock()
	defer v.lock.Unlock()

	if err := v.checkFresh(); err != nil {
		return 0, err
	}
	if err := v.gates.DepositGate.CanDeposit(from); err != nil {
		return 0, err
	}

	shares, err := v.ledger.Deposit(from, assets)
	if err != nil {
		return 0, err
	}
	newLiquid, err := safemath.Add64(v.liquidAssets, assets)
	if err != nil {
		return 0, v.fail(ledger.ErrAmountTooLarge)
	}
	v.liquidAssets = newLiquid

	if err := v.persistLedger(); err != nil {
		return 0, v.fail(err)
	}
	if err := v.persistBalances(from); err != nil {
		return 0, v.fail(err)
	}
	if err := v.commit(); err != nil {
		return 0, err
	}

	v.metrics.MarkDeposit()
	v.events.Publish(&events.Event{
		Type:      events.TypeDeposit,
		VaultID:   v.vaultID,
		Holder:    from,
		Assets:    assets,
		Shares:    shares,
		Timestamp: v.clock.Unix(),
	})
	v.log.Debug("deposit",
		log.Stringer("holder", from),
		"assets", assets,
		"shares", shares,
	)
	return shares, nil
}

// Redeem burns [shares] from [from] and pays out assets immediately from the
// liquid balance. Instant redemption is only available while nobody is waiting
// in the exit queue, so it can never jump ahead of queued exits.
func (v *Vault) Redeem(from ids.ShortID, shares uint64) (uint64, error) {
	v.lock.Lock()
	defer v.lock.Unlock()

	if err := v.checkFresh(); err != nil {
		return 0, err
	}
	if v.queue.QueuedShares() != 0 {
		return 0, ErrQueueNotEmpty
	}

	assets, err := v.ledger.ConvertToAssets(shares)
	if err != nil {
		return 0, err
	}
	if assets > v.liquidAssets {
		return 0, ErrInsufficientLiquidity
	}
	if _, err := v.ledger.Redeem(from, shares); err != nil {
		return 0, err
	}
	v.liquidAssets -= assets

	if err := v.persistLedger(); err != nil {
		return 0, v.fail(err)
	}
	if err := v.persistBalances(from); err != nil {
		return 0, v.fail(err)
	}
	if err := v.commit(); err != nil {
		return 0, err
	}

	v.metrics.MarkRedeem()
	v.events.Publish(&events.Event{
		Type:      events.TypeRedeem,
		VaultID:   v.vaultID,
		Holder:    from,
		Assets:    assets,
		Shares:    shares,
		Timestamp: v.clock.Unix(),
	})
	return assets, nil
}

// Transfer moves [shares] from [from] to [to] without touching the totals.
func (v *Vault) Transfer(from, to ids.ShortID, shares uint64) error {
	v.lock.Lock()
	defer v.lock.Unlock()

	if err := v.checkFresh(); err != nil {
		return err
	}
	balance := v.ledger.Balance(from)
	if balance < shares {
		return ledger.ErrInsufficientBalance
	}
	if err := v.gates.TransferGate.CanTransfer(from, balance-shares); err != nil {
		return err
	}

	if err := v.ledger.Move(from, to, shares); err != nil {
		return err
	}
	if err := v.persistBalances(from, to); err != nil {
		return v.fail(err)
	}
	return v.commit()
}

// EnterQueue requests the exit of [shares] held by [from] and returns the
// position ticket.
//
// Before any assets have been moved into an external position, every exit can
// be served at the current rate without waiting, so the shares are redeemed on
// the spot and the sentinel MaxTicket is returned: there is no position to
// claim. Once collateralized, the shares move into the queue and convert to
// assets as checkpoints process them.
func (v *Vault) EnterQueue(from ids.ShortID, shares uint64) (uint64, error) {
	v.lock.Lock()
	defer v.lock.Unlock()

	if err := v.checkFresh(); err != nil {
		return 0, err
	}

	if !v.collateralized {
		assets, err := v.ledger.ConvertToAssets(shares)
		if err != nil {
			return 0, err
		}
		if assets > v.liquidAssets {
			return 0, ErrInsufficientLiquidity
		}
		if _, err := v.ledger.Redeem(from, shares); err != nil {
			return 0, err
		}
		v.liquidAssets -= assets

		if err := v.persistLedger(); err != nil {
			return 0, v.fail(err)
		}
		if err := v.persistBalances(from); err != nil {
			return 0, v.fail(err)
		}
		if err := v.commit(); err != nil {
			return 0, err
		}

		v.metrics.MarkRedeem()
		v.events.Publish(&events.Event{
			Type:      events.TypeRedeem,
			VaultID:   v.vaultID,
			Holder:    from,
			Assets:    assets,
			Shares:    shares,
			Ticket:    queue.MaxTicket,
			Timestamp: v.clock.Unix(),
		})
		return queue.MaxTicket, nil
	}

	// The queued shares are parked on the queue address so the balance sum
	// keeps matching the share supply while the exit is pending.
	if err := v.ledger.Move(from, v.queueAddr, shares); err != nil {
		return 0, err
	}
	now := v.clock.Unix()
	ticket, err := v.queue.Enter(from, shares, now)
	if err != nil {
		return 0, v.fail(err)
	}

	if err := v.persistBalances(from, v.queueAddr); err != nil {
		return 0, v.fail(err)
	}
	if err := v.persistQueueMeta(); err != nil {
		return 0, v.fail(err)
	}
	position, _ := v.queue.GetPosition(ticket)
	if err := v.state.PutPosition(position); err != nil {
		return 0, v.fail(err)
	}
	if err := v.commit(); err != nil {
		return 0, err
	}

	v.metrics.MarkQueueEntry()
	v.events.Publish(&events.Event{
		Type:      events.TypeQueueEnter,
		VaultID:   v.vaultID,
		Holder:    from,
		Shares:    shares,
		Ticket:    ticket,
		Timestamp: now,
	})
	v.log.Debug("exit queued",
		log.Stringer("holder", from),
		"ticket", ticket,
		"shares", shares,
	)
	return ticket, nil
}

// Claim pays out the processed portion of the exit position identified by
// [ticket]. [timestamp] must match the position's entry time and [index] must
// be the covering checkpoint index from GetQueueIndex.
//
// Claims stay available while the vault is stale: the payout rates were frozen
// into the checkpoint log when the liquidity was processed, so no unharvested
// epoch can change what a claim is owed.
func (v *Vault) Claim(owner ids.ShortID, ticket, timestamp uint64, index int) (queue.ClaimResult, error) {
	v.lock.Lock()
	defer v.lock.Unlock()

	position, ok := v.queue.GetPosition(ticket)
	if !ok {
		return queue.ClaimResult{}, queue.ErrPositionNotFound
	}
	if position.Owner != owner {
		return queue.ClaimResult{}, ErrNotPositionOwner
	}

	now := v.clock.Unix()
	claimDelay := uint64(v.cfg.ClaimDelay / time.Second)
	result, err := v.queue.Claim(ticket, timestamp, index, now, claimDelay)
	if err != nil {
		return queue.ClaimResult{}, err
	}

	if err := v.persistQueueMeta(); err != nil {
		return queue.ClaimResult{}, v.fail(err)
	}
	if err := v.state.DeletePosition(ticket); err != nil {
		return queue.ClaimResult{}, v.fail(err)
	}
	if result.LeftShares > 0 {
		successor, _ := v.queue.GetPosition(result.NewTicket)
		if err := v.state.PutPosition(successor); err != nil {
			return queue.ClaimResult{}, v.fail(err)
		}
	}
	if err := v.commit(); err != nil {
		return queue.ClaimResult{}, err
	}

	v.metrics.MarkClaim()
	v.events.Publish(&events.Event{
		Type:      events.TypeClaim,
		VaultID:   v.vaultID,
		Holder:    owner,
		Assets:    result.ClaimedAssets,
		Shares:    result.LeftShares,
		Ticket:    ticket,
		NewTicket: result.NewTicket,
		Index:     index,
		Timestamp: now,
	})
	return result, nil
}

// UpdateState applies pending reward attestations in epoch order and then,
// when due, creates an exit queue checkpoint from the available liquidity.
// Calling it with no pending work is a no-op, so keepers can invoke it
// unconditionally.
func (v *Vault) UpdateState(attestations ...rewards.Attestation) error {
	v.lock.Lock()
	defer v.lock.Unlock()

	// Events and metrics are buffered until the commit lands, so observers
	// never see a transition that was rolled back.
	var (
		pending  []*events.Event
		harvests int
		mutated  bool
	)
	for _, attestation := range attestations {
		if !v.harvester.IsHarvestRequired() {
			break
		}
		event, err := v.harvest(attestation)
		if err != nil {
			// A failed harvest may have partially mutated in-memory state;
			// rebuild from the last committed state either way.
			return v.fail(err)
		}
		pending = append(pending, event)
		harvests++
		mutated = true
	}

	checkpointEvent, err := v.maybeCheckpoint()
	if err != nil {
		return v.fail(err)
	}
	if checkpointEvent != nil {
		pending = append(pending, checkpointEvent)
	}
	if !mutated && checkpointEvent == nil {
		return nil
	}

	if err := v.persistLedger(); err != nil {
		return v.fail(err)
	}
	if err := v.persistQueueMeta(); err != nil {
		return v.fail(err)
	}
	if err := v.state.PutHarvestState(v.harvester.State()); err != nil {
		return v.fail(err)
	}
	if err := v.state.PutLastCheckpointTime(v.lastCheckpoint); err != nil {
		return v.fail(err)
	}
	if err := v.commit(); err != nil {
		return err
	}

	for range harvests {
		v.metrics.MarkHarvest()
	}
	if checkpointEvent != nil {
		v.metrics.MarkCheckpoint()
		v.log.Info("checkpoint created",
			"index", checkpointEvent.Index,
			"shares", checkpointEvent.Shares,
			"assets", checkpointEvent.Assets,
		)
	}
	for _, event := range pending {
		v.events.Publish(event)
	}
	return nil
}

// harvest validates one attestation and applies its reward delta to the
// ledger. Fee shares are valued at the exchange rate before the reward lands,
// so the fee recipient is paid the configured percentage of the delta itself.
func (v *Vault) harvest(attestation rewards.Attestation) (*events.Event, error) {
	delta, err := v.harvester.Harvest(attestation)
	if err != nil {
		return nil, err
	}

	if delta.Reward > 0 {
		reward := uint64(delta.Reward)
		feeConfig := v.fees.Config()

		var feeShares uint64
		if feeConfig.PercentBps > 0 && feeConfig.Recipient != ids.ShortEmpty {
			feeAssets := v.fees.FeeAssets(reward)
			if feeShares, err = v.ledger.ConvertToShares(feeAssets); err != nil {
				return nil, err
			}
		}
		if err := v.ledger.AddAssets(reward); err != nil {
			return nil, err
		}
		if feeShares > 0 {
			if err := v.ledger.MintShares(feeConfig.Recipient, feeShares); err != nil {
				return nil, err
			}
			if err := v.persistBalances(feeConfig.Recipient); err != nil {
				return nil, err
			}
		}
	} else if delta.Reward < 0 {
		// Penalties burn assets without burning shares; the exchange rate
		// absorbs the loss, clamped at zero.
		v.ledger.SubAssets(uint64(-delta.Reward))
	}

	newLiquid, err := safemath.Add64(v.liquidAssets, delta.Unlocked)
	if err != nil {
		return nil, ledger.ErrAmountTooLarge
	}
	v.liquidAssets = newLiquid

	return &events.Event{
		Type:      events.TypeHarvest,
		VaultID:   v.vaultID,
		Epoch:     attestation.Epoch,
		Reward:    delta.Reward,
		Assets:    delta.Unlocked,
		Timestamp: v.clock.Unix(),
	}, nil
}

// maybeCheckpoint burns queued shares against the liquid balance if a
// checkpoint is due. Returns the checkpoint event, or nil if none was due.
func (v *Vault) maybeCheckpoint() (*events.Event, error) {
	if v.harvester.IsStale() {
		// Never freeze a payout rate derived from outdated totals.
		return nil, nil
	}
	queued := v.queue.QueuedShares()
	if queued == 0 || v.liquidAssets == 0 {
		return nil, nil
	}
	now := v.clock.Unix()
	interval := uint64(v.cfg.CheckpointInterval / time.Second)
	if v.lastCheckpoint != 0 && now < v.lastCheckpoint+interval {
		return nil, nil
	}

	// Process as much of the queue as the liquid balance covers.
	liquidShares, err := v.ledger.ConvertToShares(v.liquidAssets)
	if err != nil {
		return nil, err
	}
	shares := min(queued, liquidShares)
	if shares == 0 {
		return nil, nil
	}

	assets, err := v.ledger.Redeem(v.queueAddr, shares)
	if err != nil {
		return nil, err
	}
	if err := v.queue.PushCheckpoint(shares, assets, now); err != nil {
		return nil, err
	}
	v.liquidAssets -= assets
	v.lastCheckpoint = now

	index := v.queue.NumCheckpoints() - 1
	checkpoint, _ := v.queue.Checkpoint(index)
	if err := v.state.AppendCheckpoint(index, checkpoint); err != nil {
		return nil, err
	}
	if err := v.persistBalances(v.queueAddr); err != nil {
		return nil, err
	}

	return &events.Event{
		Type:      events.TypeCheckpoint,
		VaultID:   v.vaultID,
		Assets:    assets,
		Shares:    shares,
		Index:     index,
		Timestamp: now,
	}, nil
}

// FundPosition moves [assets] of the liquid balance into an external staking
// position. The assets stay counted in the total; only their liquidity
// changes. The first funding flips the vault to collateralized, ending the
// instant-exit phase.
func (v *Vault) FundPosition(assets uint64) error {
	v.lock.Lock()
	defer v.lock.Unlock()

	if err := v.checkFresh(); err != nil {
		return err
	}
	if assets == 0 {
		return ledger.ErrZeroAmount
	}
	if assets > v.liquidAssets {
		return ErrInsufficientLiquidity
	}

	v.liquidAssets -= assets
	v.collateralized = true

	if err := v.state.PutLiquidAssets(v.liquidAssets); err != nil {
		return v.fail(err)
	}
	if err := v.state.PutCollateralized(true); err != nil {
		return v.fail(err)
	}
	if err := v.commit(); err != nil {
		return err
	}

	v.log.Info("position funded",
		"assets", assets,
		"liquidAssets", v.liquidAssets,
	)
	return nil
}

// ReturnPrincipal credits [assets] of withdrawn position principal back to
// the liquid balance. The principal never left the total, so only liquidity
// changes.
func (v *Vault) ReturnPrincipal(assets uint64) error {
	v.lock.Lock()
	defer v.lock.Unlock()

	if assets == 0 {
		return ledger.ErrZeroAmount
	}
	newLiquid, err := safemath.Add64(v.liquidAssets, assets)
	if err != nil {
		return ledger.ErrAmountTooLarge
	}
	v.liquidAssets = newLiquid

	if err := v.state.PutLiquidAssets(v.liquidAssets); err != nil {
		return v.fail(err)
	}
	return v.commit()
}

// SetFee updates the fee recipient and percentage, subject to the
// change-control policy.
func (v *Vault) SetFee(recipient ids.ShortID, percentBps uint16) error {
	v.lock.Lock()
	defer v.lock.Unlock()

	now := v.clock.Unix()
	if err := v.fees.Set(recipient, percentBps, now); err != nil {
		return err
	}
	if err := v.state.PutFeeConfig(v.fees.Config()); err != nil {
		return v.fail(err)
	}
	if err := v.commit(); err != nil {
		return err
	}

	v.events.Publish(&events.Event{
		Type:      events.TypeFeeUpdate,
		VaultID:   v.vaultID,
		Holder:    recipient,
		Shares:    uint64(percentBps),
		Timestamp: now,
	})
	return nil
}
