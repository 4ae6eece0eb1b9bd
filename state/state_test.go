// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package state

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/luxfi/database"
	"github.com/luxfi/database/memdb"
	"github.com/luxfi/ids"

	"github.com/luxfi/vault/ledger"
	"github.com/luxfi/vault/queue"
	"github.com/luxfi/vault/rewards"
)

func TestInitialized(t *testing.T) {
	require := require.New(t)

	s := New(memdb.New())
	initialized, err := s.IsInitialized()
	require.NoError(err)
	require.False(initialized)

	require.NoError(s.SetInitialized())
	require.NoError(s.Commit())

	initialized, err = s.IsInitialized()
	require.NoError(err)
	require.True(initialized)
}

func TestAbortDiscardsPendingWrites(t *testing.T) {
	require := require.New(t)

	db := memdb.New()
	s := New(db)

	require.NoError(s.PutTotals(100, 200))
	s.Abort()
	require.NoError(s.Commit())

	_, _, err := s.GetTotals()
	require.ErrorIs(err, database.ErrNotFound)
}

func TestCommitPersistsAcrossReopen(t *testing.T) {
	require := require.New(t)

	db := memdb.New()
	s := New(db)

	require.NoError(s.PutTotals(1_000, 2_000))
	require.NoError(s.PutQueueMeta(5, 1_005, 400, 300))
	require.NoError(s.PutLiquidAssets(750))
	require.NoError(s.PutCollateralized(true))
	require.NoError(s.PutLastCheckpointTime(12_345))
	require.NoError(s.Commit())

	reopened := New(db)
	totalShares, totalAssets, err := reopened.GetTotals()
	require.NoError(err)
	require.Equal(uint64(1_000), totalShares)
	require.Equal(uint64(2_000), totalAssets)

	offset, cursor, queued, unclaimed, err := reopened.GetQueueMeta()
	require.NoError(err)
	require.Equal(uint64(5), offset)
	require.Equal(uint64(1_005), cursor)
	require.Equal(uint64(400), queued)
	require.Equal(uint64(300), unclaimed)

	liquid, err := reopened.GetLiquidAssets()
	require.NoError(err)
	require.Equal(uint64(750), liquid)

	collateralized, err := reopened.GetCollateralized()
	require.NoError(err)
	require.True(collateralized)

	lastCheckpoint, err := reopened.GetLastCheckpointTime()
	require.NoError(err)
	require.Equal(uint64(12_345), lastCheckpoint)
}

func TestBalances(t *testing.T) {
	require := require.New(t)

	s := New(memdb.New())
	alice := ids.ShortID{1}
	bob := ids.ShortID{2}

	require.NoError(s.PutBalance(alice, 100))
	require.NoError(s.PutBalance(bob, 200))
	require.NoError(s.Commit())

	balances, err := s.GetBalances()
	require.NoError(err)
	require.Equal(map[ids.ShortID]uint64{alice: 100, bob: 200}, balances)

	// Zeroed balances are deleted, not stored.
	require.NoError(s.PutBalance(alice, 0))
	require.NoError(s.Commit())

	balances, err = s.GetBalances()
	require.NoError(err)
	require.Equal(map[ids.ShortID]uint64{bob: 200}, balances)
}

func TestCheckpointLogOrder(t *testing.T) {
	require := require.New(t)

	s := New(memdb.New())
	checkpoints := []queue.Checkpoint{
		{CumulativeShares: 400, CumulativeAssets: 400, Timestamp: 100},
		{CumulativeShares: 1_000, CumulativeAssets: 1_600, Timestamp: 200},
		{CumulativeShares: 1_500, CumulativeAssets: 2_000, Timestamp: 300},
	}
	// Write out of order; the iterator must still return append order.
	require.NoError(s.AppendCheckpoint(2, checkpoints[2]))
	require.NoError(s.AppendCheckpoint(0, checkpoints[0]))
	require.NoError(s.AppendCheckpoint(1, checkpoints[1]))
	require.NoError(s.Commit())

	loaded, err := s.GetCheckpoints()
	require.NoError(err)
	require.Equal(checkpoints, loaded)
}

func TestPositionsFIFOOrder(t *testing.T) {
	require := require.New(t)

	s := New(memdb.New())
	positions := []*queue.Position{
		{Ticket: 0, Owner: ids.ShortID{1}, Shares: 400, EnteredAt: 10},
		{Ticket: 400, Owner: ids.ShortID{2}, Shares: 600, EnteredAt: 11},
		{Ticket: 1_000, Owner: ids.ShortID{1}, Shares: 100, EnteredAt: 12},
	}
	require.NoError(s.PutPosition(positions[2]))
	require.NoError(s.PutPosition(positions[0]))
	require.NoError(s.PutPosition(positions[1]))
	require.NoError(s.Commit())

	loaded, err := s.GetPositions()
	require.NoError(err)
	require.Equal(positions, loaded)

	require.NoError(s.DeletePosition(400))
	require.NoError(s.Commit())

	loaded, err = s.GetPositions()
	require.NoError(err)
	require.Equal([]*queue.Position{positions[0], positions[2]}, loaded)
}

func TestHarvestStateRoundTrip(t *testing.T) {
	require := require.New(t)

	s := New(memdb.New())
	harvestState := rewards.HarvestState{
		Nonce:                    7,
		CumulativeReward:         -1_234,
		CumulativeUnlockedReward: 99,
	}
	require.NoError(s.PutHarvestState(harvestState))
	require.NoError(s.Commit())

	loaded, err := s.GetHarvestState()
	require.NoError(err)
	require.Equal(harvestState, loaded)
}

func TestFeeConfigRoundTrip(t *testing.T) {
	require := require.New(t)

	s := New(memdb.New())
	feeConfig := ledger.FeeConfig{
		Recipient:  ids.ShortID{9},
		PercentBps: 500,
		UpdatedAt:  4_242,
	}
	require.NoError(s.PutFeeConfig(feeConfig))
	require.NoError(s.Commit())

	loaded, err := s.GetFeeConfig()
	require.NoError(err)
	require.Equal(feeConfig, loaded)
}
