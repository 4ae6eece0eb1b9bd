// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package queue implements the exit queue and its checkpoint engine: an
// append-only log converting queued shares into claimable assets in FIFO
// order as liquidity becomes available.
package queue

import (
	"errors"
	"math"

	"github.com/google/btree"

	"github.com/luxfi/ids"

	safemath "github.com/luxfi/math"
)

// MaxTicket is the sentinel returned when a queue entry was served by an
// instant redemption. It never matches a stored position and yields nothing
// when claimed.
const MaxTicket = math.MaxUint64

const positionTreeDegree = 2

var (
	ErrPositionNotFound       = errors.New("exit position not found")
	ErrTimestampMismatch      = errors.New("exit position timestamp mismatch")
	ErrClaimNotMatured        = errors.New("claim delay has not elapsed")
	ErrCheckpointNotFound     = errors.New("no checkpoint covers the ticket")
	ErrInvalidCheckpointIndex = errors.New("checkpoint index does not cover the ticket")
	ErrCursorOverflow         = errors.New("queue cursor overflow")
	ErrUnclaimedUnderflow     = errors.New("unclaimed assets underflow")
)

// Position is an outstanding exit request. The ticket records how many shares
// were already ahead of the holder when the position was created; positions
// are never mutated, a partial claim replaces one with a smaller successor.
type Position struct {
	Ticket    uint64      `serialize:"true" json:"ticket"`
	Owner     ids.ShortID `serialize:"true" json:"owner"`
	Shares    uint64      `serialize:"true" json:"shares"`
	EnteredAt uint64      `serialize:"true" json:"enteredAt"` // unix seconds
}

func (p *Position) less(than *Position) bool {
	return p.Ticket < than.Ticket
}

// Queue tracks queued shares awaiting conversion and the checkpoint log that
// resolves them. The cursor only ever increases; its starting value is a
// configurable offset kept for state compatibility with prior deployments and
// carries no independent meaning.
type Queue struct {
	// offset is the value the cursor was seeded with; the baseline of the
	// cumulative-share number line.
	offset          uint64
	cursor          uint64
	queuedShares    uint64
	unclaimedAssets uint64

	// Arena-style checkpoint log; entries are append-only and immutable.
	checkpoints []Checkpoint

	// Outstanding positions ordered by ticket.
	positions *btree.BTreeG[*Position]
}

func New(ticketOffset uint64) *Queue {
	return &Queue{
		offset:    ticketOffset,
		cursor:    ticketOffset,
		positions: btree.NewG(positionTreeDegree, (*Position).less),
	}
}

// Load restores a queue from persisted state. The checkpoint slice is not
// copied; the caller must not retain it.
func Load(
	ticketOffset uint64,
	cursor uint64,
	queuedShares uint64,
	unclaimedAssets uint64,
	checkpoints []Checkpoint,
	positions []*Position,
) *Queue {
	q := &Queue{
		offset:          ticketOffset,
		cursor:          cursor,
		queuedShares:    queuedShares,
		unclaimedAssets: unclaimedAssets,
		checkpoints:     checkpoints,
		positions:       btree.NewG(positionTreeDegree, (*Position).less),
	}
	for _, position := range positions {
		q.positions.ReplaceOrInsert(position)
	}
	return q
}

func (q *Queue) Cursor() uint64 {
	return q.cursor
}

func (q *Queue) TicketOffset() uint64 {
	return q.offset
}

func (q *Queue) QueuedShares() uint64 {
	return q.queuedShares
}

func (q *Queue) UnclaimedAssets() uint64 {
	return q.unclaimedAssets
}

func (q *Queue) NumCheckpoints() int {
	return len(q.checkpoints)
}

func (q *Queue) Checkpoint(index int) (Checkpoint, bool) {
	if index < 0 || index >= len(q.checkpoints) {
		return Checkpoint{}, false
	}
	return q.checkpoints[index], true
}

// GetPosition returns the outstanding position identified by [ticket].
func (q *Queue) GetPosition(ticket uint64) (*Position, bool) {
	return q.positions.Get(&Position{Ticket: ticket})
}

// PositionsOf returns the outstanding positions owned by [owner] in FIFO
// order.
func (q *Queue) PositionsOf(owner ids.ShortID) []*Position {
	var positions []*Position
	q.positions.Ascend(func(position *Position) bool {
		if position.Owner == owner {
			positions = append(positions, position)
		}
		return true
	})
	return positions
}

// Positions returns every outstanding position in FIFO order.
func (q *Queue) Positions() []*Position {
	positions := make([]*Position, 0, q.positions.Len())
	q.positions.Ascend(func(position *Position) bool {
		positions = append(positions, position)
		return true
	})
	return positions
}

// Enter appends [shares] to the queue on behalf of [owner] and returns the
// position ticket: the cursor value before this entry, i.e. how many shares
// were already ahead in the queue. The caller has already burned the shares
// from the holder's liquid balance.
func (q *Queue) Enter(owner ids.ShortID, shares uint64, now uint64) (uint64, error) {
	newCursor, err := safemath.Add64(q.cursor, shares)
	if err != nil {
		return 0, ErrCursorOverflow
	}
	ticket := q.cursor
	q.cursor = newCursor
	q.queuedShares += shares
	q.positions.ReplaceOrInsert(&Position{
		Ticket:    ticket,
		Owner:     owner,
		Shares:    shares,
		EnteredAt: now,
	})
	return ticket, nil
}

// PushCheckpoint records a liquidity-processing event converting [shares]
// queued shares into [assets] claimable assets. Only the state-update
// orchestrator creates checkpoints.
func (q *Queue) PushCheckpoint(shares, assets, now uint64) error {
	if shares == 0 {
		return errZeroCheckpoint
	}
	if shares > q.queuedShares {
		return errCheckpointOverrun
	}
	last := q.lastCumulative()
	q.checkpoints = append(q.checkpoints, Checkpoint{
		CumulativeShares: last.CumulativeShares + shares,
		CumulativeAssets: last.CumulativeAssets + assets,
		Timestamp:        now,
	})
	q.queuedShares -= shares
	q.unclaimedAssets += assets
	return nil
}

var (
	errZeroCheckpoint    = errors.New("checkpoint must process a non-zero share amount")
	errCheckpointOverrun = errors.New("checkpoint exceeds queued shares")
)

// lastCumulative returns the running totals as of the newest checkpoint. The
// share total starts at the ticket offset the cursor was seeded with, so that
// checkpoint ranges and tickets share one number line.
func (q *Queue) lastCumulative() Checkpoint {
	if n := len(q.checkpoints); n > 0 {
		return q.checkpoints[n-1]
	}
	return Checkpoint{CumulativeShares: q.offset}
}
