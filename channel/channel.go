// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package channel implements the Fiat-Shamir transcript the matmul sumcheck
// verifier must replay bit-for-bit against the off-chain prover, together
// with the Poseidon2 permutation/sponge primitive it is built on.
//
// The ordering and packing of mix and draw operations are the entire
// security model here: a different chunking, domain tag or draw schedule
// produces a different, non-interoperable transcript that rejects valid
// proofs. Each verification call creates a fresh Channel and discards it;
// the Channel must never become process-wide state.
package channel

import (
	"math/big"

	"github.com/luxfi/matverify/m31"
)

// Domain tags distinguishing the two permutation call shapes.
const (
	mixTag  = 2
	drawTag = 3
)

// Channel is the mutable transcript state: a running digest plus a counter
// of draws since the last mix.
type Channel struct {
	digest    Felt
	drawCount uint64
}

// New returns a fresh channel with zero digest and zero draw count.
func New() *Channel {
	return &Channel{}
}

// Digest returns the current transcript digest.
func (c *Channel) Digest() Felt {
	return c.digest
}

// MixU64 absorbs a narrow integer: digest becomes the first output lane of
// Permute3(digest, value, 2) and the draw counter resets.
func (c *Channel) MixU64(v uint64) {
	c.mix(FeltFromUint64(v))
}

// MixFelt absorbs an arbitrary field element with the same domain tag as
// MixU64.
func (c *Channel) MixFelt(f Felt) {
	c.mix(f)
}

func (c *Channel) mix(f Felt) {
	c.digest, _, _ = Permute3(c.digest, f, FeltFromUint64(mixTag))
	c.drawCount = 0
}

// MixPolyCoeffs absorbs one sumcheck round polynomial. The first two
// coefficients are packed into one Felt and the third into a second; this
// two-chunk split (2 values, then 1) must be reproduced exactly.
func (c *Channel) MixPolyCoeffs(c0, c1, c2 m31.QM31) {
	packed1 := PackQM31s(c0, c1)
	packed2 := PackQM31s(c2)
	c.digest = Sponge([]Felt{c.digest, packed1, packed2})
	c.drawCount = 0
}

// DrawFelt produces one pseudorandom field element as the first output lane
// of Permute3(digest, drawCount, 3), then increments the counter. The
// digest itself does not advance on draws; only mixes advance it.
func (c *Channel) DrawFelt() Felt {
	out, _, _ := Permute3(c.digest, FeltFromUint64(c.drawCount), FeltFromUint64(drawTag))
	c.drawCount++
	return out
}

// DrawQM31 draws one secure-field challenge: the drawn Felt is split into
// eight 31-bit little-endian chunks, each independently reduced mod P, and
// the first four become the QM31 components (a.a, a.b, b.a, b.b). The
// remaining four chunks are discarded; that waste of entropy is deliberate
// and must be preserved for prover compatibility.
func (c *Channel) DrawQM31() m31.QM31 {
	f := c.DrawFelt()

	var x big.Int
	f.BigInt(&x)

	mask := big.NewInt(1<<31 - 1)
	tmp := new(big.Int)
	var limbs [8]uint32
	for i := range limbs {
		tmp.Rsh(&x, uint(31*i))
		tmp.And(tmp, mask)
		limbs[i] = uint32(tmp.Uint64())
	}

	return m31.FromUint32s(limbs[0], limbs[1], limbs[2], limbs[3])
}

// DrawQM31s draws count challenges with count independent DrawQM31 calls.
// Leftover chunks are never buffered across calls.
func (c *Channel) DrawQM31s(count int) []m31.QM31 {
	out := make([]m31.QM31, count)
	for i := range out {
		out[i] = c.DrawQM31()
	}
	return out
}

// PackQM31s packs the M31 limbs of the given values into a single Felt via
// acc = acc*2^31 + limb, starting from acc = 1. The leading 1 keeps packed
// values of different lengths from colliding. The same packing serializes
// claimed sums for mixing and QM31 table entries as Merkle leaves.
func PackQM31s(vals ...m31.QM31) Felt {
	var acc, shift, limb Felt
	acc.SetOne()
	shift.SetUint64(1 << 31)
	for _, v := range vals {
		for _, c := range v.Components() {
			limb.SetUint64(uint64(c))
			acc.Mul(&acc, &shift)
			acc.Add(&acc, &limb)
		}
	}
	return acc
}
