// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package hashing provides the hash primitives used by the vault's
// attestation proofs.
package hashing

import "crypto/sha256"

// HashLen is the number of bytes in a sha256 hash.
const HashLen = sha256.Size

// ComputeHash256Array computes the sha256 hash of [buf] as a fixed array.
func ComputeHash256Array(buf []byte) [HashLen]byte {
	return sha256.Sum256(buf)
}

// ComputeHash256 computes the sha256 hash of [buf].
func ComputeHash256(buf []byte) []byte {
	arr := ComputeHash256Array(buf)
	return arr[:]
}

// ComputeHash256Pair hashes the concatenation of [a] and [b]. Used to build
// and verify merkle branches.
func ComputeHash256Pair(a, b []byte) []byte {
	h := sha256.New()
	h.Write(a)
	h.Write(b)
	return h.Sum(nil)
}
