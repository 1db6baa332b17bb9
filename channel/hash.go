// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package channel

import (
	"math/big"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr/poseidon2"
)

// Felt is a single prime-field residue, the native word of the transcript:
// channel digests, Merkle nodes, commitments and packed QM31 values are all
// Felts. M31 limbs are range-restricted to [0, 2^31 - 1) when packed into
// one.
type Felt = fr.Element

// Poseidon2 permutation parameters for the width-3 state (full rounds,
// partial rounds as gnark-crypto ships for this field).
const (
	permWidth         = 3
	permFullRounds    = 8
	permPartialRounds = 56

	spongeRate = 2
)

// perm is the shared width-3 permutation. Parameters are read-only after
// construction, so concurrent Permutation calls are safe.
var perm = poseidon2.NewPermutation(permWidth, permFullRounds, permPartialRounds)

// Permute3 applies the width-3 permutation to (x, y, z) and returns all
// three output lanes. The channel only consumes the first lane; the call
// shape (which operand carries the domain tag) is part of the transcript
// contract, the permutation internals are not.
func Permute3(x, y, z Felt) (Felt, Felt, Felt) {
	state := [permWidth]fr.Element{x, y, z}
	if err := perm.Permutation(state[:]); err != nil {
		// Only reachable on a state/width mismatch, which the fixed-size
		// array rules out.
		panic(err)
	}
	return state[0], state[1], state[2]
}

// Sponge hashes a sequence of Felts with a rate-2, capacity-1 sponge built
// on the same width-3 permutation: inputs are padded with a single 1 (then
// a 0 if needed to fill the last block), absorbed two at a time by addition
// into the first two lanes, permuting after each block. The first lane of
// the final state is the digest.
func Sponge(inputs []Felt) Felt {
	padded := make([]Felt, len(inputs), len(inputs)+spongeRate)
	copy(padded, inputs)
	var one Felt
	one.SetOne()
	padded = append(padded, one)
	if len(padded)%spongeRate != 0 {
		padded = append(padded, Felt{})
	}

	var state [permWidth]fr.Element
	for i := 0; i < len(padded); i += spongeRate {
		state[0].Add(&state[0], &padded[i])
		state[1].Add(&state[1], &padded[i+1])
		if err := perm.Permutation(state[:]); err != nil {
			panic(err)
		}
	}
	return state[0]
}

// HashPair is the Merkle node hash: Sponge over the two children in order.
func HashPair(left, right Felt) Felt {
	return Sponge([]Felt{left, right})
}

// Modulus returns the felt field modulus.
func Modulus() *big.Int {
	return fr.Modulus()
}

// FeltFromUint64 returns v as a field element.
func FeltFromUint64(v uint64) Felt {
	var f Felt
	f.SetUint64(v)
	return f
}
