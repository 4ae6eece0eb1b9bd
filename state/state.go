// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package state persists the durable state of a vault: ledger totals,
// per-holder balances, the append-only checkpoint log, outstanding exit
// positions, and the harvest bookkeeping. Writes accumulate in a versiondb
// and become visible atomically on Commit; Abort discards them, so a failed
// operation leaves no partial state behind.
package state

import (
	"encoding/binary"
	"fmt"

	"github.com/luxfi/database"
	"github.com/luxfi/database/prefixdb"
	"github.com/luxfi/database/versiondb"
	"github.com/luxfi/ids"

	"github.com/luxfi/vault/ledger"
	"github.com/luxfi/vault/queue"
	"github.com/luxfi/vault/rewards"
)

var (
	BalancePrefix    = []byte("balance")
	PositionPrefix   = []byte("position")
	CheckpointPrefix = []byte("checkpoint")
	SingletonPrefix  = []byte("singleton")

	TotalSharesKey     = []byte("total shares")
	TotalAssetsKey     = []byte("total assets")
	QueuedSharesKey    = []byte("queued shares")
	UnclaimedAssetsKey = []byte("unclaimed assets")
	CursorKey          = []byte("cursor")
	TicketOffsetKey    = []byte("ticket offset")
	LiquidAssetsKey    = []byte("liquid assets")
	CollateralizedKey  = []byte("collateralized")
	LastCheckpointKey  = []byte("last checkpoint")
	HarvestStateKey    = []byte("harvest state")
	FeeConfigKey       = []byte("fee config")
	InitializedKey     = []byte("initialized")
)

// State is the durable layout of one vault instance.
type State struct {
	baseDB *versiondb.Database

	balanceDB    database.Database
	positionDB   database.Database
	checkpointDB database.Database
	singletonDB  database.Database
}

func New(db database.Database) *State {
	baseDB := versiondb.New(db)
	return &State{
		baseDB:       baseDB,
		balanceDB:    prefixdb.New(BalancePrefix, baseDB),
		positionDB:   prefixdb.New(PositionPrefix, baseDB),
		checkpointDB: prefixdb.New(CheckpointPrefix, baseDB),
		singletonDB:  prefixdb.New(SingletonPrefix, baseDB),
	}
}

// Commit atomically writes all pending changes through to the underlying
// database.
func (s *State) Commit() error {
	return s.baseDB.Commit()
}

// Abort discards all pending changes.
func (s *State) Abort() {
	s.baseDB.Abort()
}

func (s *State) Close() error {
	return s.baseDB.Close()
}

func (s *State) IsInitialized() (bool, error) {
	return s.singletonDB.Has(InitializedKey)
}

func (s *State) SetInitialized() error {
	return s.singletonDB.Put(InitializedKey, nil)
}

func (s *State) PutTotals(totalShares, totalAssets uint64) error {
	if err := database.PutUInt64(s.singletonDB, TotalSharesKey, totalShares); err != nil {
		return err
	}
	return database.PutUInt64(s.singletonDB, TotalAssetsKey, totalAssets)
}

func (s *State) GetTotals() (uint64, uint64, error) {
	totalShares, err := database.GetUInt64(s.singletonDB, TotalSharesKey)
	if err != nil {
		return 0, 0, err
	}
	totalAssets, err := database.GetUInt64(s.singletonDB, TotalAssetsKey)
	return totalShares, totalAssets, err
}

func (s *State) PutBalance(holder ids.ShortID, shares uint64) error {
	if shares == 0 {
		return s.balanceDB.Delete(holder[:])
	}
	return database.PutUInt64(s.balanceDB, holder[:], shares)
}

// GetBalances loads every non-zero share balance. Called once at startup.
func (s *State) GetBalances() (map[ids.ShortID]uint64, error) {
	balances := make(map[ids.ShortID]uint64)
	it := s.balanceDB.NewIterator()
	defer it.Release()
	for it.Next() {
		holder, err := ids.ToShortID(it.Key())
		if err != nil {
			return nil, fmt.Errorf("corrupt balance key: %w", err)
		}
		shares, err := database.ParseUInt64(it.Value())
		if err != nil {
			return nil, fmt.Errorf("corrupt balance for %s: %w", holder, err)
		}
		balances[holder] = shares
	}
	return balances, it.Error()
}

func (s *State) PutQueueMeta(ticketOffset, cursor, queuedShares, unclaimedAssets uint64) error {
	if err := database.PutUInt64(s.singletonDB, TicketOffsetKey, ticketOffset); err != nil {
		return err
	}
	if err := database.PutUInt64(s.singletonDB, CursorKey, cursor); err != nil {
		return err
	}
	if err := database.PutUInt64(s.singletonDB, QueuedSharesKey, queuedShares); err != nil {
		return err
	}
	return database.PutUInt64(s.singletonDB, UnclaimedAssetsKey, unclaimedAssets)
}

func (s *State) GetQueueMeta() (ticketOffset, cursor, queuedShares, unclaimedAssets uint64, err error) {
	if ticketOffset, err = database.GetUInt64(s.singletonDB, TicketOffsetKey); err != nil {
		return
	}
	if cursor, err = database.GetUInt64(s.singletonDB, CursorKey); err != nil {
		return
	}
	if queuedShares, err = database.GetUInt64(s.singletonDB, QueuedSharesKey); err != nil {
		return
	}
	unclaimedAssets, err = database.GetUInt64(s.singletonDB, UnclaimedAssetsKey)
	return
}

// AppendCheckpoint persists the checkpoint at [index] of the log. Checkpoints
// are immutable; an index is written exactly once.
func (s *State) AppendCheckpoint(index int, checkpoint queue.Checkpoint) error {
	bytes, err := Codec.Marshal(CodecVersion, &checkpoint)
	if err != nil {
		return fmt.Errorf("failed to marshal checkpoint: %w", err)
	}
	return s.checkpointDB.Put(indexKey(index), bytes)
}

// GetCheckpoints loads the whole checkpoint log in order. Called once at
// startup; afterwards the in-memory arena is authoritative.
func (s *State) GetCheckpoints() ([]queue.Checkpoint, error) {
	var checkpoints []queue.Checkpoint
	it := s.checkpointDB.NewIterator()
	defer it.Release()
	for it.Next() {
		var checkpoint queue.Checkpoint
		if _, err := Codec.Unmarshal(it.Value(), &checkpoint); err != nil {
			return nil, fmt.Errorf("corrupt checkpoint: %w", err)
		}
		checkpoints = append(checkpoints, checkpoint)
	}
	return checkpoints, it.Error()
}

func (s *State) PutPosition(position *queue.Position) error {
	bytes, err := Codec.Marshal(CodecVersion, position)
	if err != nil {
		return fmt.Errorf("failed to marshal position: %w", err)
	}
	return s.positionDB.Put(ticketKey(position.Ticket), bytes)
}

func (s *State) DeletePosition(ticket uint64) error {
	return s.positionDB.Delete(ticketKey(ticket))
}

// GetPositions loads every outstanding exit position. Called once at startup.
func (s *State) GetPositions() ([]*queue.Position, error) {
	var positions []*queue.Position
	it := s.positionDB.NewIterator()
	defer it.Release()
	for it.Next() {
		position := &queue.Position{}
		if _, err := Codec.Unmarshal(it.Value(), position); err != nil {
			return nil, fmt.Errorf("corrupt exit position: %w", err)
		}
		positions = append(positions, position)
	}
	return positions, it.Error()
}

func (s *State) PutHarvestState(harvestState rewards.HarvestState) error {
	bytes, err := Codec.Marshal(CodecVersion, &harvestState)
	if err != nil {
		return fmt.Errorf("failed to marshal harvest state: %w", err)
	}
	return s.singletonDB.Put(HarvestStateKey, bytes)
}

func (s *State) GetHarvestState() (rewards.HarvestState, error) {
	var harvestState rewards.HarvestState
	bytes, err := s.singletonDB.Get(HarvestStateKey)
	if err != nil {
		return harvestState, err
	}
	_, err = Codec.Unmarshal(bytes, &harvestState)
	return harvestState, err
}

func (s *State) PutFeeConfig(feeConfig ledger.FeeConfig) error {
	bytes, err := Codec.Marshal(CodecVersion, &feeConfig)
	if err != nil {
		return fmt.Errorf("failed to marshal fee config: %w", err)
	}
	return s.singletonDB.Put(FeeConfigKey, bytes)
}

func (s *State) GetFeeConfig() (ledger.FeeConfig, error) {
	var feeConfig ledger.FeeConfig
	bytes, err := s.singletonDB.Get(FeeConfigKey)
	if err != nil {
		return feeConfig, err
	}
	_, err = Codec.Unmarshal(bytes, &feeConfig)
	return feeConfig, err
}

func (s *State) PutLiquidAssets(liquidAssets uint64) error {
	return database.PutUInt64(s.singletonDB, LiquidAssetsKey, liquidAssets)
}

func (s *State) GetLiquidAssets() (uint64, error) {
	return database.GetUInt64(s.singletonDB, LiquidAssetsKey)
}

func (s *State) PutCollateralized(collateralized bool) error {
	return database.PutBool(s.singletonDB, CollateralizedKey, collateralized)
}

func (s *State) GetCollateralized() (bool, error) {
	return database.GetBool(s.singletonDB, CollateralizedKey)
}

func (s *State) PutLastCheckpointTime(timestamp uint64) error {
	return database.PutUInt64(s.singletonDB, LastCheckpointKey, timestamp)
}

func (s *State) GetLastCheckpointTime() (uint64, error) {
	return database.GetUInt64(s.singletonDB, LastCheckpointKey)
}

// ticketKey is the big-endian encoding of a ticket, so the iterator walks
// positions in FIFO order.
func ticketKey(ticket uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, ticket)
	return key
}

// indexKey is the big-endian encoding of a checkpoint index, so the iterator
// walks the log in append order.
func indexKey(index int) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, uint64(index))
	return key
}
