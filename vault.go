// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package vault assembles the share/asset ledger, the exit queue checkpoint
// engine, and the reward harvester into one pooled staking vault. All
// mutating operations are serialized; each either commits fully or leaves no
// trace.
package vault

import (
	"errors"
	"fmt"
	"sync"

	"github.com/luxfi/database"
	"github.com/luxfi/ids"
	"github.com/luxfi/log"
	"github.com/luxfi/metric"

	"github.com/luxfi/vault/config"
	"github.com/luxfi/vault/events"
	"github.com/luxfi/vault/ledger"
	"github.com/luxfi/vault/metrics"
	"github.com/luxfi/vault/policy"
	"github.com/luxfi/vault/queue"
	"github.com/luxfi/vault/rewards"
	"github.com/luxfi/vault/state"
	"github.com/luxfi/vault/utils/hashing"
	"github.com/luxfi/vault/utils/timer/mockable"
)

var (
	ErrStale                 = errors.New("vault is behind the oracle; harvest required")
	ErrQueueNotEmpty         = errors.New("instant redemption unavailable while exits are queued")
	ErrInsufficientLiquidity = errors.New("insufficient liquid balance")
	ErrNotPositionOwner      = errors.New("caller does not own the exit position")
	ErrEmptyVaultID          = errors.New("empty vault id")
	ErrNoOracle              = errors.New("no oracle configured")
)

// Params collects everything needed to open (or create) a vault.
type Params struct {
	VaultID      ids.ID
	Config       config.Config
	DB           database.Database
	Oracle       rewards.Oracle
	Policy       policy.Set
	FeeRecipient ids.ShortID
	Log          log.Logger
	Registerer   metric.Registerer
}

// Vault is one pooled staking vault instance.
type Vault struct {
	vaultID ids.ID
	cfg     config.Config
	log     log.Logger
	gates   policy.Set

	// Every mutating call holds the write lock for its full duration, so a
	// call either completes or fails atomically.
	lock sync.RWMutex

	clock mockable.Clock

	ledger    *ledger.Ledger
	queue     *queue.Queue
	harvester *rewards.Harvester
	fees      *ledger.FeeController
	state     *state.State
	metrics   metrics.Metrics
	events    *events.Log
	oracle    rewards.Oracle

	// liquidAssets is the immediately withdrawable balance: deposits not yet
	// moved into external positions, returned principal, and unlocked
	// rewards. Checkpoint funding and instant redemptions draw from it.
	liquidAssets uint64

	// collateralized flips once assets first move into an external position.
	// Before that every exit can be served instantly.
	collateralized bool

	// lastCheckpoint is the creation time of the newest checkpoint, used to
	// rate-limit checkpoint churn.
	lastCheckpoint uint64

	// selfAddr holds the genesis security deposit; queueAddr holds the
	// aggregate of queued shares so the balance sum always matches the share
	// supply.
	selfAddr  ids.ShortID
	queueAddr ids.ShortID
}

// New opens the vault stored in [params.DB], creating it at genesis if the
// database is empty.
func New(params Params) (*Vault, error) {
	if params.VaultID == ids.Empty {
		return nil, ErrEmptyVaultID
	}
	if params.Oracle == nil {
		return nil, ErrNoOracle
	}
	if err := params.Config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if params.Policy.DepositGate == nil || params.Policy.TransferGate == nil {
		params.Policy = policy.Open()
	}

	vaultMetrics := metrics.Noop()
	if params.Registerer != nil {
		var err error
		if vaultMetrics, err = metrics.New(params.Registerer); err != nil {
			return nil, fmt.Errorf("failed to register metrics: %w", err)
		}
	}

	v := &Vault{
		vaultID:   params.VaultID,
		cfg:       params.Config,
		log:       params.Log,
		gates:     params.Policy,
		state:     state.New(params.DB),
		metrics:   vaultMetrics,
		events:    events.NewLog(params.Log, defaultEventRetention),
		oracle:    params.Oracle,
		selfAddr:  roleAddress(params.VaultID, roleSelf),
		queueAddr: roleAddress(params.VaultID, roleQueue),
	}

	initialized, err := v.state.IsInitialized()
	if err != nil {
		return nil, err
	}
	if initialized {
		if err := v.load(); err != nil {
			return nil, err
		}
	} else {
		if err := v.genesis(params.FeeRecipient); err != nil {
			return nil, err
		}
	}
	v.observe()
	return v, nil
}

const defaultEventRetention = 4096

const (
	roleSelf  = 0x00
	roleQueue = 0x01
)

// roleAddress derives a reserved holder address from the vault ID. Reserved
// addresses never collide with external holders, which are 20-byte hashes of
// public keys.
func roleAddress(vaultID ids.ID, role byte) ids.ShortID {
	digest := hashing.ComputeHash256(append(vaultID[:], role))
	addr, _ := ids.ToShortID(digest[:20])
	return addr
}

// genesis mints the security deposit to the vault itself, guaranteeing both
// totals stay non-zero for the vault's entire lifetime.
func (v *Vault) genesis(feeRecipient ids.ShortID) error {
	v.ledger = ledger.New()
	v.queue = queue.New(v.cfg.TicketOffset)
	v.harvester = rewards.NewHarvester(v.vaultID, v.oracle, rewards.HarvestState{})
	v.fees = ledger.NewFeeController(
		ledger.FeeConfig{
			Recipient:  feeRecipient,
			PercentBps: v.cfg.FeePercentBps,
		},
		v.cfg.MaxFeePercentBps,
		v.cfg.FeeIncreaseLimitBps,
		v.cfg.MinFeeIncreaseBps,
		v.cfg.FeeChangeMinDelay,
	)

	if _, err := v.ledger.Deposit(v.selfAddr, v.cfg.SecurityDeposit); err != nil {
		return fmt.Errorf("failed to mint security deposit: %w", err)
	}
	v.liquidAssets = v.cfg.SecurityDeposit

	if err := v.persistAll(); err != nil {
		v.state.Abort()
		return err
	}
	if err := v.state.SetInitialized(); err != nil {
		v.state.Abort()
		return err
	}
	if err := v.state.Commit(); err != nil {
		v.state.Abort()
		return err
	}

	v.log.Info("vault created",
		log.Stringer("vaultID", v.vaultID),
		"securityDeposit", v.cfg.SecurityDeposit,
	)
	return nil
}

// load restores all engines from the database.
func (v *Vault) load() error {
	totalShares, totalAssets, err := v.state.GetTotals()
	if err != nil {
		return fmt.Errorf("failed to load totals: %w", err)
	}
	balances, err := v.state.GetBalances()
	if err != nil {
		return fmt.Errorf("failed to load balances: %w", err)
	}
	v.ledger = ledger.Load(totalShares, totalAssets, balances)

	ticketOffset, cursor, queuedShares, unclaimedAssets, err := v.state.GetQueueMeta()
	if err != nil {
		return fmt.Errorf("failed to load queue meta: %w", err)
	}
	checkpoints, err := v.state.GetCheckpoints()
	if err != nil {
		return fmt.Errorf("failed to load checkpoints: %w", err)
	}
	positions, err := v.state.GetPositions()
	if err != nil {
		return fmt.Errorf("failed to load exit positions: %w", err)
	}
	v.queue = queue.Load(ticketOffset, cursor, queuedShares, unclaimedAssets, checkpoints, positions)

	harvestState, err := v.state.GetHarvestState()
	if err != nil {
		return fmt.Errorf("failed to load harvest state: %w", err)
	}
	v.harvester = rewards.NewHarvester(v.vaultID, v.oracle, harvestState)

	feeConfig, err := v.state.GetFeeConfig()
	if err != nil {
		return fmt.Errorf("failed to load fee config: %w", err)
	}
	v.fees = ledger.NewFeeController(
		feeConfig,
		v.cfg.MaxFeePercentBps,
		v.cfg.FeeIncreaseLimitBps,
		v.cfg.MinFeeIncreaseBps,
		v.cfg.FeeChangeMinDelay,
	)

	if v.liquidAssets, err = v.state.GetLiquidAssets(); err != nil {
		return fmt.Errorf("failed to load liquid balance: %w", err)
	}
	if v.collateralized, err = v.state.GetCollateralized(); err != nil {
		return fmt.Errorf("failed to load collateralization flag: %w", err)
	}
	if v.lastCheckpoint, err = v.state.GetLastCheckpointTime(); err != nil {
		return fmt.Errorf("failed to load last checkpoint time: %w", err)
	}
	return nil
}

// persistAll writes every piece of durable state. Used at genesis; steady
// state operations persist only what they touched.
func (v *Vault) persistAll() error {
	if err := v.persistLedger(); err != nil {
		return err
	}
	for holder, shares := range v.ledger.Balances() {
		if err := v.state.PutBalance(holder, shares); err != nil {
			return err
		}
	}
	if err := v.persistQueueMeta(); err != nil {
		return err
	}
	for i := 0; i < v.queue.NumCheckpoints(); i++ {
		checkpoint, _ := v.queue.Checkpoint(i)
		if err := v.state.AppendCheckpoint(i, checkpoint); err != nil {
			return err
		}
	}
	for _, position := range v.queue.Positions() {
		if err := v.state.PutPosition(position); err != nil {
			return err
		}
	}
	if err := v.state.PutHarvestState(v.harvester.State()); err != nil {
		return err
	}
	if err := v.state.PutFeeConfig(v.fees.Config()); err != nil {
		return err
	}
	if err := v.state.PutCollateralized(v.collateralized); err != nil {
		return err
	}
	return v.state.PutLastCheckpointTime(v.lastCheckpoint)
}

func (v *Vault) persistLedger() error {
	if err := v.state.PutTotals(v.ledger.TotalShares(), v.ledger.TotalAssets()); err != nil {
		return err
	}
	return v.state.PutLiquidAssets(v.liquidAssets)
}

func (v *Vault) persistQueueMeta() error {
	return v.state.PutQueueMeta(
		v.queue.TicketOffset(),
		v.queue.Cursor(),
		v.queue.QueuedShares(),
		v.queue.UnclaimedAssets(),
	)
}

func (v *Vault) persistBalances(holders ...ids.ShortID) error {
	for _, holder := range holders {
		if err := v.state.PutBalance(holder, v.ledger.Balance(holder)); err != nil {
			return err
		}
	}
	return nil
}

// commit finalizes a mutation. If the write fails, all pending changes are
// aborted and the in-memory engines are rebuilt from the last committed
// state, so the failed call leaves no effect.
func (v *Vault) commit() error {
	if err := v.state.Commit(); err != nil {
		v.state.Abort()
		if loadErr := v.load(); loadErr != nil {
			return errors.Join(err, loadErr)
		}
		return err
	}
	v.observe()
	return nil
}

// fail unwinds an operation whose in-memory mutation already happened.
func (v *Vault) fail(err error) error {
	v.state.Abort()
	if loadErr := v.load(); loadErr != nil {
		return errors.Join(err, loadErr)
	}
	return err
}

func (v *Vault) observe() {
	v.metrics.ObserveTotals(
		v.ledger.TotalShares(),
		v.ledger.TotalAssets(),
		v.queue.QueuedShares(),
		v.queue.UnclaimedAssets(),
		v.harvester.Nonce(),
	)
}

// checkFresh rejects ledger mutations while the vault is more than one epoch
// behind the committee.
func (v *Vault) checkFresh() error {
	if v.harvester.IsStale() {
		return ErrStale
	}
	return nil
}

func (v *Vault) ID() ids.ID {
	return v.vaultID
}

func (v *Vault) TotalShares() uint64 {
	v.lock.RLock()
	defer v.lock.RUnlock()
	return v.ledger.TotalShares()
}

func (v *Vault) TotalAssets() uint64 {
	v.lock.RLock()
	defer v.lock.RUnlock()
	return v.ledger.TotalAssets()
}

func (v *Vault) QueuedShares() uint64 {
	v.lock.RLock()
	defer v.lock.RUnlock()
	return v.queue.QueuedShares()
}

func (v *Vault) UnclaimedAssets() uint64 {
	v.lock.RLock()
	defer v.lock.RUnlock()
	return v.queue.UnclaimedAssets()
}

func (v *Vault) LiquidAssets() uint64 {
	v.lock.RLock()
	defer v.lock.RUnlock()
	return v.liquidAssets
}

func (v *Vault) Collateralized() bool {
	v.lock.RLock()
	defer v.lock.RUnlock()
	return v.collateralized
}

func (v *Vault) RewardsNonce() uint64 {
	v.lock.RLock()
	defer v.lock.RUnlock()
	return v.harvester.Nonce()
}

func (v *Vault) Balance(holder ids.ShortID) uint64 {
	v.lock.RLock()
	defer v.lock.RUnlock()
	return v.ledger.Balance(holder)
}

func (v *Vault) FeeConfig() ledger.FeeConfig {
	v.lock.RLock()
	defer v.lock.RUnlock()
	return v.fees.Config()
}

func (v *Vault) ConvertToShares(assets uint64) (uint64, error) {
	v.lock.RLock()
	defer v.lock.RUnlock()
	return v.ledger.ConvertToShares(assets)
}

func (v *Vault) ConvertToAssets(shares uint64) (uint64, error) {
	v.lock.RLock()
	defer v.lock.RUnlock()
	return v.ledger.ConvertToAssets(shares)
}

func (v *Vault) NumCheckpoints() int {
	v.lock.RLock()
	defer v.lock.RUnlock()
	return v.queue.NumCheckpoints()
}

func (v *Vault) GetCheckpoint(index int) (queue.Checkpoint, bool) {
	v.lock.RLock()
	defer v.lock.RUnlock()
	return v.queue.Checkpoint(index)
}

func (v *Vault) GetQueueIndex(ticket uint64) (int, error) {
	v.lock.RLock()
	defer v.lock.RUnlock()
	return v.queue.GetQueueIndex(ticket)
}

func (v *Vault) CalculateExited(ticket uint64, index int) (queue.ExitResult, error) {
	v.lock.RLock()
	defer v.lock.RUnlock()
	return v.queue.CalculateExited(ticket, index)
}

func (v *Vault) GetExitPositions(owner ids.ShortID) []*queue.Position {
	v.lock.RLock()
	defer v.lock.RUnlock()
	return v.queue.PositionsOf(owner)
}

// Events exposes the event log for API mounting and indexer catch-up.
func (v *Vault) Events() *events.Log {
	return v.events
}

func (v *Vault) Close() error {
	return v.state.Close()
}
