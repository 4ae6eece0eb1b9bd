// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package queue

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/luxfi/ids"
)

var (
	alice = ids.ShortID{1}
	bob   = ids.ShortID{2}
)

func TestEnterAssignsTickets(t *testing.T) {
	require := require.New(t)

	q := New(0)
	ticket, err := q.Enter(alice, 1_000, 10)
	require.NoError(err)
	require.Zero(ticket)

	ticket, err = q.Enter(bob, 500, 11)
	require.NoError(err)
	require.Equal(uint64(1_000), ticket)

	require.Equal(uint64(1_500), q.Cursor())
	require.Equal(uint64(1_500), q.QueuedShares())
}

func TestEnterWithOffset(t *testing.T) {
	require := require.New(t)

	q := New(7_000)
	ticket, err := q.Enter(alice, 100, 10)
	require.NoError(err)
	require.Equal(uint64(7_000), ticket)

	// The checkpoint baseline starts at the offset, so the first checkpoint
	// covers the first ticket.
	require.NoError(q.PushCheckpoint(100, 100, 20))
	index, err := q.GetQueueIndex(7_000)
	require.NoError(err)
	require.Zero(index)

	exited, err := q.CalculateExited(7_000, index)
	require.NoError(err)
	require.Equal(ExitResult{ExitedShares: 100, ExitedAssets: 100}, exited)
}

func TestGetQueueIndexBeforeCheckpoint(t *testing.T) {
	require := require.New(t)

	q := New(0)
	_, err := q.Enter(alice, 1_000, 10)
	require.NoError(err)

	_, err = q.GetQueueIndex(0)
	require.ErrorIs(err, ErrCheckpointNotFound)
}

// A position partially processed by one checkpoint is claimable for the
// processed part, and the remainder re-enters under ticket+exitedShares.
func TestPartialClaimIssuesNewTicket(t *testing.T) {
	require := require.New(t)

	q := New(0)
	ticket, err := q.Enter(alice, 1_000, 0)
	require.NoError(err)
	require.Zero(ticket)

	// Liquidity covers 400 of the 1000 queued shares at a 1:1 rate.
	require.NoError(q.PushCheckpoint(400, 400, 100))
	require.Equal(uint64(600), q.QueuedShares())
	require.Equal(uint64(400), q.UnclaimedAssets())

	index, err := q.GetQueueIndex(0)
	require.NoError(err)
	require.Zero(index)

	result, err := q.Claim(0, 0, index, 100, 0)
	require.NoError(err)
	require.Equal(ClaimResult{
		ClaimedAssets: 400,
		NewTicket:     400,
		LeftShares:    600,
	}, result)
	require.Zero(q.UnclaimedAssets())

	// The old ticket is gone; the remainder waits under the new one.
	_, ok := q.GetPosition(0)
	require.False(ok)
	successor, ok := q.GetPosition(400)
	require.True(ok)
	require.Equal(&Position{
		Ticket:    400,
		Owner:     alice,
		Shares:    600,
		EnteredAt: 0,
	}, successor)

	// The remainder is not yet covered by any checkpoint.
	_, err = q.GetQueueIndex(400)
	require.ErrorIs(err, ErrCheckpointNotFound)

	// A second checkpoint resolves it fully.
	require.NoError(q.PushCheckpoint(600, 600, 200))
	index, err = q.GetQueueIndex(400)
	require.NoError(err)
	require.Equal(1, index)

	result, err = q.Claim(400, 0, index, 200, 0)
	require.NoError(err)
	require.Equal(ClaimResult{ClaimedAssets: 600}, result)
	require.Zero(q.QueuedShares())
	require.Zero(q.UnclaimedAssets())
}

// One checkpoint can straddle multiple positions; each claims only its slice.
func TestCheckpointCoversMultiplePositions(t *testing.T) {
	require := require.New(t)

	q := New(0)
	aliceTicket, err := q.Enter(alice, 300, 0)
	require.NoError(err)
	bobTicket, err := q.Enter(bob, 700, 0)
	require.NoError(err)

	require.NoError(q.PushCheckpoint(1_000, 500, 100))

	index, err := q.GetQueueIndex(aliceTicket)
	require.NoError(err)
	exited, err := q.CalculateExited(aliceTicket, index)
	require.NoError(err)
	require.Equal(ExitResult{ExitedShares: 300, ExitedAssets: 150}, exited)

	index, err = q.GetQueueIndex(bobTicket)
	require.NoError(err)
	exited, err = q.CalculateExited(bobTicket, index)
	require.NoError(err)
	require.Equal(ExitResult{ExitedShares: 700, ExitedAssets: 350}, exited)
}

// A position can straddle multiple checkpoints, each contributing at its own
// rate.
func TestPositionStraddlesCheckpoints(t *testing.T) {
	require := require.New(t)

	q := New(0)
	ticket, err := q.Enter(alice, 1_000, 0)
	require.NoError(err)

	// First 400 shares at 1:1, remaining 600 at 1:2.
	require.NoError(q.PushCheckpoint(400, 400, 100))
	require.NoError(q.PushCheckpoint(600, 1_200, 200))

	index, err := q.GetQueueIndex(ticket)
	require.NoError(err)
	require.Zero(index)

	exited, err := q.CalculateExited(ticket, index)
	require.NoError(err)
	require.Equal(ExitResult{
		ExitedShares: 1_000,
		ExitedAssets: 1_600,
	}, exited)
}

func TestCalculateExitedRejectsWrongIndex(t *testing.T) {
	require := require.New(t)

	q := New(0)
	_, err := q.Enter(alice, 300, 0)
	require.NoError(err)
	ticket, err := q.Enter(bob, 300, 0)
	require.NoError(err)

	require.NoError(q.PushCheckpoint(300, 300, 100))
	require.NoError(q.PushCheckpoint(300, 300, 200))

	// Bob's ticket 300 is covered by checkpoint 1, not 0.
	_, err = q.CalculateExited(ticket, 0)
	require.ErrorIs(err, ErrInvalidCheckpointIndex)

	// Alice's ticket 0 must start at checkpoint 0; starting later would skip
	// its coverage.
	_, err = q.CalculateExited(0, 1)
	require.ErrorIs(err, ErrInvalidCheckpointIndex)

	_, err = q.CalculateExited(ticket, 2)
	require.ErrorIs(err, ErrInvalidCheckpointIndex)
}

func TestClaimValidations(t *testing.T) {
	require := require.New(t)

	q := New(0)
	ticket, err := q.Enter(alice, 100, 50)
	require.NoError(err)
	require.NoError(q.PushCheckpoint(100, 100, 60))

	_, err = q.Claim(99, 50, 0, 1_000, 0)
	require.ErrorIs(err, ErrPositionNotFound)

	_, err = q.Claim(ticket, 51, 0, 1_000, 0)
	require.ErrorIs(err, ErrTimestampMismatch)

	_, err = q.Claim(ticket, 50, 0, 149, 100)
	require.ErrorIs(err, ErrClaimNotMatured)

	result, err := q.Claim(ticket, 50, 0, 150, 100)
	require.NoError(err)
	require.Equal(ClaimResult{ClaimedAssets: 100}, result)
}

func TestPushCheckpointValidations(t *testing.T) {
	require := require.New(t)

	q := New(0)
	_, err := q.Enter(alice, 100, 0)
	require.NoError(err)

	require.ErrorIs(q.PushCheckpoint(0, 10, 50), errZeroCheckpoint)
	require.ErrorIs(q.PushCheckpoint(101, 101, 50), errCheckpointOverrun)
}

func TestLoadRoundTrip(t *testing.T) {
	require := require.New(t)

	q := New(5)
	_, err := q.Enter(alice, 400, 10)
	require.NoError(err)
	_, err = q.Enter(bob, 600, 11)
	require.NoError(err)
	require.NoError(q.PushCheckpoint(500, 450, 100))

	loaded := Load(
		q.TicketOffset(),
		q.Cursor(),
		q.QueuedShares(),
		q.UnclaimedAssets(),
		q.checkpoints,
		q.Positions(),
	)
	require.Equal(q.Cursor(), loaded.Cursor())
	require.Equal(q.QueuedShares(), loaded.QueuedShares())
	require.Equal(q.Positions(), loaded.Positions())

	// Claims resolve identically after a reload.
	index, err := loaded.GetQueueIndex(5)
	require.NoError(err)
	want, err := q.CalculateExited(5, index)
	require.NoError(err)
	got, err := loaded.CalculateExited(5, index)
	require.NoError(err)
	require.Equal(want, got)
}

func TestPositionsOf(t *testing.T) {
	require := require.New(t)

	q := New(0)
	_, err := q.Enter(alice, 100, 0)
	require.NoError(err)
	_, err = q.Enter(bob, 200, 0)
	require.NoError(err)
	_, err = q.Enter(alice, 300, 0)
	require.NoError(err)

	positions := q.PositionsOf(alice)
	require.Len(positions, 2)
	require.Equal(uint64(0), positions[0].Ticket)
	require.Equal(uint64(300), positions[1].Ticket)
}
