// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package queue

import (
	"sort"

	"github.com/holiman/uint256"
)

// Checkpoint is an immutable record of one liquidity-processing event. Both
// cumulative fields are running totals across the whole log and are
// non-decreasing, which makes binary search on CumulativeShares safe.
type Checkpoint struct {
	CumulativeShares uint64 `serialize:"true" json:"cumulativeShares"`
	CumulativeAssets uint64 `serialize:"true" json:"cumulativeAssets"`
	Timestamp        uint64 `serialize:"true" json:"timestamp"` // unix seconds
}

// ExitResult describes how much of a position the checkpoint log has
// resolved.
type ExitResult struct {
	// LeftShares is the unprocessed remainder of the position.
	LeftShares uint64
	// ExitedShares is the portion converted to assets.
	ExitedShares uint64
	// ExitedAssets is the claimable asset amount for ExitedShares.
	ExitedAssets uint64
}

// GetQueueIndex returns the index of the first checkpoint that covers
// [ticket]: the smallest i with checkpoints[i].CumulativeShares > ticket.
// Returns ErrCheckpointNotFound while the position is entirely unprocessed.
func (q *Queue) GetQueueIndex(ticket uint64) (int, error) {
	index := sort.Search(len(q.checkpoints), func(i int) bool {
		return q.checkpoints[i].CumulativeShares > ticket
	})
	if index == len(q.checkpoints) {
		return 0, ErrCheckpointNotFound
	}
	return index, nil
}

// CalculateExited resolves the position identified by [ticket] against the
// checkpoint log starting at [index]. The index must be exactly the first
// checkpoint that can cover the ticket; an index that is too low or that
// skips unprocessed predecessors is rejected rather than silently
// mis-resolved. Most positions resolve within one checkpoint, but a position
// may straddle several when checkpoints are small.
func (q *Queue) CalculateExited(ticket uint64, index int) (ExitResult, error) {
	position, ok := q.GetPosition(ticket)
	if !ok {
		return ExitResult{}, ErrPositionNotFound
	}
	if err := q.checkIndex(ticket, index); err != nil {
		return ExitResult{}, err
	}

	var (
		remaining = position.Shares
		assets    uint64
		prev      = q.checkpointBefore(index)
	)
	for i := index; i < len(q.checkpoints) && remaining > 0; i++ {
		cp := q.checkpoints[i]
		batchShares := cp.CumulativeShares - prev.CumulativeShares
		batchAssets := cp.CumulativeAssets - prev.CumulativeAssets

		// The slice of this checkpoint belonging to the position.
		from := max(ticket, prev.CumulativeShares)
		exited := min(cp.CumulativeShares-from, remaining)

		// Pay out at this checkpoint's rate, rounding down.
		assets += mulDivFloor(exited, batchAssets, batchShares)
		remaining -= exited
		prev = cp
	}

	return ExitResult{
		LeftShares:   remaining,
		ExitedShares: position.Shares - remaining,
		ExitedAssets: assets,
	}, nil
}

// checkIndex verifies that [index] is the canonical starting checkpoint for
// [ticket], as returned by GetQueueIndex.
func (q *Queue) checkIndex(ticket uint64, index int) error {
	if index < 0 || index >= len(q.checkpoints) {
		return ErrInvalidCheckpointIndex
	}
	if q.checkpoints[index].CumulativeShares <= ticket {
		// Index is too low: it covers an earlier ticket range.
		return ErrInvalidCheckpointIndex
	}
	if q.checkpointBefore(index).CumulativeShares > ticket {
		// Index skips checkpoints that cover this ticket.
		return ErrInvalidCheckpointIndex
	}
	return nil
}

// checkpointBefore returns the checkpoint preceding [index], or the log's
// baseline for index 0.
func (q *Queue) checkpointBefore(index int) Checkpoint {
	if index > 0 {
		return q.checkpoints[index-1]
	}
	return Checkpoint{CumulativeShares: q.offset}
}

// mulDivFloor returns floor(a * b / denom) with a 256-bit intermediate.
// denom is never zero here: checkpoints always process a non-zero share
// amount.
func mulDivFloor(a, b, denom uint64) uint64 {
	product := new(uint256.Int).Mul(
		new(uint256.Int).SetUint64(a),
		new(uint256.Int).SetUint64(b),
	)
	product.Div(product, new(uint256.Int).SetUint64(denom))
	return product.Uint64()
}
