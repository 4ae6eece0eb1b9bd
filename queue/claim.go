// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package queue

// ClaimResult reports the outcome of resolving a position ticket.
type ClaimResult struct {
	// ClaimedAssets were paid out of the unclaimed pool.
	ClaimedAssets uint64
	// NewTicket identifies the unprocessed remainder of the position. Zero
	// when the position resolved fully.
	NewTicket uint64
	// LeftShares is the size of the remainder behind NewTicket.
	LeftShares uint64
}

// Claim resolves the position identified by [ticket] against the checkpoint
// log and removes the claimed portion from the unclaimed pool.
//
// [timestamp] must match the position's original entry time; this prevents a
// ticket from being confused with a different position after queue
// re-entries. [claimDelay] is the minimum maturity in seconds since entry
// before assets become payable, which keeps an exit from front-running a
// reward publication within the same attestation window.
//
// If only part of the position was processed, a fresh ticket
// [ticket + exitedShares] is issued for the remainder: the position logically
// moves forward through the queue by the amount already serviced.
func (q *Queue) Claim(ticket, timestamp uint64, index int, now, claimDelay uint64) (ClaimResult, error) {
	position, ok := q.GetPosition(ticket)
	if !ok {
		return ClaimResult{}, ErrPositionNotFound
	}
	if position.EnteredAt != timestamp {
		return ClaimResult{}, ErrTimestampMismatch
	}
	if now < position.EnteredAt+claimDelay {
		return ClaimResult{}, ErrClaimNotMatured
	}

	exited, err := q.CalculateExited(ticket, index)
	if err != nil {
		return ClaimResult{}, err
	}
	if exited.ExitedAssets > q.unclaimedAssets {
		return ClaimResult{}, ErrUnclaimedUnderflow
	}

	q.unclaimedAssets -= exited.ExitedAssets
	q.positions.Delete(position)

	result := ClaimResult{
		ClaimedAssets: exited.ExitedAssets,
		LeftShares:    exited.LeftShares,
	}
	if exited.LeftShares > 0 {
		result.NewTicket = ticket + exited.ExitedShares
		q.positions.ReplaceOrInsert(&Position{
			Ticket:    result.NewTicket,
			Owner:     position.Owner,
			Shares:    exited.LeftShares,
			EnteredAt: position.EnteredAt,
		})
	}
	return result, nil
}
