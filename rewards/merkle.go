// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package rewards

import (
	"bytes"
	"encoding/binary"

	"github.com/luxfi/ids"

	"github.com/luxfi/vault/utils/hashing"
)

// LeafBytes serializes one committee leaf: the cumulative reward and
// cumulative unlocked reward attested for [vaultID] at [epoch]. The encoding
// is fixed so roots are reproducible across implementations.
func LeafBytes(vaultID ids.ID, epoch uint64, cumulativeReward int64, cumulativeUnlocked uint64) []byte {
	buf := make([]byte, ids.IDLen+3*8)
	copy(buf, vaultID[:])
	binary.BigEndian.PutUint64(buf[ids.IDLen:], epoch)
	binary.BigEndian.PutUint64(buf[ids.IDLen+8:], uint64(cumulativeReward))
	binary.BigEndian.PutUint64(buf[ids.IDLen+16:], cumulativeUnlocked)
	return buf
}

// LeafHash hashes one committee leaf.
func LeafHash(vaultID ids.ID, epoch uint64, cumulativeReward int64, cumulativeUnlocked uint64) []byte {
	return hashing.ComputeHash256(LeafBytes(vaultID, epoch, cumulativeReward, cumulativeUnlocked))
}

// VerifyProof folds a sorted-pair merkle branch from [leaf] and reports
// whether it reproduces [root]. Siblings are combined in byte order, so the
// branch does not need to carry direction bits.
func VerifyProof(root []byte, leaf []byte, proof [][]byte) bool {
	node := leaf
	for _, sibling := range proof {
		if bytes.Compare(node, sibling) <= 0 {
			node = hashing.ComputeHash256Pair(node, sibling)
		} else {
			node = hashing.ComputeHash256Pair(sibling, node)
		}
	}
	return bytes.Equal(node, root)
}

// BuildTree builds a sorted-pair merkle tree over [leaves] (already hashed)
// and returns the root together with one branch per leaf. An odd node at any
// level is promoted unchanged.
func BuildTree(leaves [][]byte) ([]byte, [][][]byte) {
	if len(leaves) == 0 {
		return nil, nil
	}

	proofs := make([][][]byte, len(leaves))
	level := make([][]byte, len(leaves))
	copy(level, leaves)

	// Track which tree node each original leaf currently folds into.
	at := make([]int, len(leaves))
	for i := range at {
		at[i] = i
	}

	for len(level) > 1 {
		next := make([][]byte, 0, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			if i+1 == len(level) {
				next = append(next, level[i])
				continue
			}
			a, b := level[i], level[i+1]
			for leaf, pos := range at {
				if pos == i {
					proofs[leaf] = append(proofs[leaf], b)
				} else if pos == i+1 {
					proofs[leaf] = append(proofs[leaf], a)
				}
			}
			if bytes.Compare(a, b) <= 0 {
				next = append(next, hashing.ComputeHash256Pair(a, b))
			} else {
				next = append(next, hashing.ComputeHash256Pair(b, a))
			}
		}
		for leaf, pos := range at {
			at[leaf] = pos / 2
		}
		level = next
	}
	return level[0], proofs
}
