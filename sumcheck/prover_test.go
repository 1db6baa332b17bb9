// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package sumcheck

import (
	"encoding/binary"
	"math/rand"

	"github.com/luxfi/matverify/channel"
	"github.com/luxfi/matverify/m31"
)

// Honest-prover helpers. Tests build accepting transcripts by replaying the
// exact channel schedule the verifier expects: mix dimensions, draw row and
// column challenges, mix the claimed sum and commitments, run the sumcheck
// rounds, then produce one Merkle-committed folding opening per table.

// merkleTree is a full binary tree over felt leaves; levels[0] holds the
// leaves, the last level the root.
type merkleTree struct {
	levels [][]channel.Felt
}

func newMerkleTree(leaves []channel.Felt) *merkleTree {
	levels := [][]channel.Felt{leaves}
	cur := leaves
	for len(cur) > 1 {
		next := make([]channel.Felt, len(cur)/2)
		for i := range next {
			next[i] = channel.HashPair(cur[2*i], cur[2*i+1])
		}
		levels = append(levels, next)
		cur = next
	}
	return &merkleTree{levels: levels}
}

func (t *merkleTree) root() channel.Felt {
	return t.levels[len(t.levels)-1][0]
}

func (t *merkleTree) path(pos uint64) []channel.Felt {
	path := make([]channel.Felt, 0, len(t.levels)-1)
	for _, level := range t.levels[:len(t.levels)-1] {
		path = append(path, level[pos^1])
		pos >>= 1
	}
	return path
}

func packLeaves(table []m31.QM31) []channel.Felt {
	leaves := make([]channel.Felt, len(table))
	for i, v := range table {
		leaves[i] = channel.PackQM31s(v)
	}
	return leaves
}

// foldTable halves a table with the lo/hi split: out[i] = lo[i] + r*(hi[i]-lo[i]).
func foldTable(table []m31.QM31, r m31.QM31) []m31.QM31 {
	mid := len(table) / 2
	out := make([]m31.QM31, mid)
	for i := range out {
		lo, hi := table[i], table[mid+i]
		out[i] = lo.Add(r.Mul(hi.Sub(lo)))
	}
	return out
}

// proveMatMul builds an honest proof for the given restricted tables (each
// of length nextPow2(k)). The optional corrupt hook runs on the folding
// layers after the sumcheck, before the opening trees are built; tests use
// it to produce openings that authenticate but fold inconsistently.
func proveMatMul(mDim, kDim, nDim uint64, aTable, bTable []m31.QM31, corrupt func(aLayers, bLayers [][]m31.QM31)) *MatMulProof {
	rounds := ceilLog2(nextPowTwo(kDim))

	claimedSum := m31.Zero()
	for i := range aTable {
		claimedSum = claimedSum.Add(aTable[i].Mul(bTable[i]))
	}

	aRoot := newMerkleTree(packLeaves(aTable)).root()
	bRoot := newMerkleTree(packLeaves(bTable)).root()

	ch := channel.New()
	ch.MixU64(mDim)
	ch.MixU64(kDim)
	ch.MixU64(nDim)
	ch.DrawQM31s(ceilLog2(nextPowTwo(mDim)))
	ch.DrawQM31s(ceilLog2(nextPowTwo(nDim)))
	ch.MixFelt(channel.PackQM31s(claimedSum))
	ch.MixFelt(aRoot)
	ch.MixFelt(bRoot)

	proof := &MatMulProof{
		M: mDim, K: kDim, N: nDim,
		NumRounds:   rounds,
		ClaimedSum:  claimedSum,
		ACommitment: aRoot,
		BCommitment: bRoot,
	}

	aLayers := [][]m31.QM31{aTable}
	bLayers := [][]m31.QM31{bTable}
	a, b := aTable, bTable
	assignment := make([]m31.QM31, 0, rounds)
	for r := 0; r < rounds; r++ {
		mid := len(a) / 2
		c0, p1, c2 := m31.Zero(), m31.Zero(), m31.Zero()
		for i := 0; i < mid; i++ {
			c0 = c0.Add(a[i].Mul(b[i]))
			p1 = p1.Add(a[mid+i].Mul(b[mid+i]))
			c2 = c2.Add(a[mid+i].Sub(a[i]).Mul(b[mid+i].Sub(b[i])))
		}
		c1 := p1.Sub(c0).Sub(c2)
		proof.RoundPolys = append(proof.RoundPolys, RoundPoly{C0: c0, C1: c1, C2: c2})

		ch.MixPolyCoeffs(c0, c1, c2)
		challenge := ch.DrawQM31()
		assignment = append(assignment, challenge)

		a = foldTable(a, challenge)
		b = foldTable(b, challenge)
		aLayers = append(aLayers, a)
		bLayers = append(bLayers, b)
	}
	proof.FinalAEval = a[0]
	proof.FinalBEval = b[0]

	if corrupt != nil {
		corrupt(aLayers, bLayers)
	}

	proof.AOpening = proveOpening(ch, aLayers, rounds)
	proof.BOpening = proveOpening(ch, bLayers, rounds)
	return proof
}

// proveOpening commits every folding layer, mixes the roots, draws the
// query indices the verifier will re-derive, and assembles the
// authentication paths.
func proveOpening(ch *channel.Channel, layers [][]m31.QM31, rounds int) MleOpeningProof {
	trees := make([]*merkleTree, rounds)
	for r := 0; r < rounds; r++ {
		trees[r] = newMerkleTree(packLeaves(layers[r]))
	}

	opening := MleOpeningProof{
		FinalValue: layers[rounds][0],
	}

	ch.MixFelt(trees[0].root())
	for r := 1; r < rounds; r++ {
		opening.IntermediateRoots = append(opening.IntermediateRoots, trees[r].root())
		ch.MixFelt(trees[r].root())
	}

	halfN := uint64(1) << (rounds - 1)
	nQueries := uint64(maxQueries)
	if halfN < nQueries {
		nQueries = halfN
	}

	for q := uint64(0); q < nQueries; q++ {
		f := ch.DrawFelt()
		buf := f.Bytes()
		idx := binary.BigEndian.Uint64(buf[len(buf)-8:]) % halfN

		query := MleQueryProof{InitialPairIndex: idx}
		for r := 0; r < rounds; r++ {
			layer := layers[r]
			mid := uint64(len(layer)) / 2
			query.Rounds = append(query.Rounds, MleQueryRound{
				LeftValue:     layer[idx],
				RightValue:    layer[mid+idx],
				LeftSiblings:  trees[r].path(idx),
				RightSiblings: trees[r].path(mid + idx),
			})
			if r < rounds-1 {
				idx = idx % (mid / 2)
			}
		}
		opening.Queries = append(opening.Queries, query)
	}
	return opening
}

func randQM31(r *rand.Rand) m31.QM31 {
	return m31.FromUint32s(
		r.Uint32()%m31.P,
		r.Uint32()%m31.P,
		r.Uint32()%m31.P,
		r.Uint32()%m31.P,
	)
}

func randTable(r *rand.Rand, size int) []m31.QM31 {
	table := make([]m31.QM31, size)
	for i := range table {
		table[i] = randQM31(r)
	}
	return table
}
