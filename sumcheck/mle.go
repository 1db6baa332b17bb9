// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package sumcheck

import (
	"encoding/binary"
	"sync"

	"github.com/luxfi/matverify/channel"
	"github.com/luxfi/matverify/m31"
)

// maxQueries caps the number of spot-check queries per opening; small
// tables use one query per pair instead.
const maxQueries = 14

// verifyMleOpening checks that the Merkle-committed table behind root
// evaluates, as a multilinear extension at the sumcheck assignment, to
// claimed. It advances the shared channel (mixing the roots, drawing the
// query indices) and then spot-checks every query through all folding
// layers. A single failing query or layer invalidates the whole opening.
func verifyMleOpening(
	ch *channel.Channel,
	root channel.Felt,
	assignment []m31.QM31,
	claimed m31.QM31,
	opening *MleOpeningProof,
) (bool, string) {
	nRounds := len(assignment)
	if nRounds == 0 || len(opening.IntermediateRoots) != nRounds-1 {
		return false, DetailOpeningShape
	}
	if !opening.FinalValue.Equal(claimed) {
		return false, DetailClaimedValue
	}

	// Mixing the commitment and every intermediate root both binds them
	// into the transcript and advances it so the query indices depend on
	// all of them.
	ch.MixFelt(root)
	for _, r := range opening.IntermediateRoots {
		ch.MixFelt(r)
	}

	halfN := uint64(1) << (nRounds - 1)
	nQueries := uint64(maxQueries)
	if halfN < nQueries {
		nQueries = halfN
	}
	if uint64(len(opening.Queries)) != nQueries {
		return false, DetailOpeningShape
	}

	indices := make([]uint64, nQueries)
	for i := range indices {
		f := ch.DrawFelt()
		b := f.Bytes()
		indices[i] = binary.BigEndian.Uint64(b[len(b)-8:]) % halfN
	}

	// Query indices are all drawn; the per-query walks are independent of
	// the channel and of each other, so they run concurrently.
	details := make([]string, nQueries)
	var wg sync.WaitGroup
	for q := range opening.Queries {
		wg.Add(1)
		go func(q int) {
			defer wg.Done()
			details[q] = verifyMleQuery(root, assignment, opening, &opening.Queries[q], indices[q])
		}(q)
	}
	wg.Wait()

	for _, detail := range details {
		if detail != "" {
			return false, detail
		}
	}
	return true, ""
}

// verifyMleQuery walks one spot-check query through all folding layers:
// authenticate both halves of the lo/hi pair against the layer root, fold
// them with the round challenge, and check the fold lands in the next layer
// (or equals FinalValue at the last one).
func verifyMleQuery(
	root channel.Felt,
	assignment []m31.QM31,
	opening *MleOpeningProof,
	query *MleQueryProof,
	drawnIndex uint64,
) string {
	nRounds := len(assignment)
	if len(query.Rounds) != nRounds {
		return DetailOpeningShape
	}
	if query.InitialPairIndex != drawnIndex {
		return DetailQueryIndex
	}

	idx := query.InitialPairIndex
	for r := 0; r < nRounds; r++ {
		round := &query.Rounds[r]

		// Layer r holds 2^(nRounds-r) values; the pair is the lo/hi split
		// (idx, mid+idx), not consecutive entries.
		depth := nRounds - r
		mid := uint64(1) << (depth - 1)

		layerRoot := root
		if r > 0 {
			layerRoot = opening.IntermediateRoots[r-1]
		}

		// Leaves are the raw packed-QM31 table values, no leaf hash.
		if len(round.LeftSiblings) != depth || len(round.RightSiblings) != depth {
			return DetailOpeningShape
		}
		if !authenticatePath(channel.PackQM31s(round.LeftValue), idx, round.LeftSiblings, layerRoot) {
			return DetailMerkleAuth
		}
		if !authenticatePath(channel.PackQM31s(round.RightValue), mid+idx, round.RightSiblings, layerRoot) {
			return DetailMerkleAuth
		}

		// Challenges apply in forward order: the first sumcheck challenge
		// folds layer 0.
		folded := round.LeftValue.Add(assignment[r].Mul(round.RightValue.Sub(round.LeftValue)))

		if r == nRounds-1 {
			if !folded.Equal(opening.FinalValue) {
				return DetailFinalValue
			}
			break
		}

		// The fold lands at position idx of the next layer; the next
		// round's pair must contain it in the matching half.
		nextMid := mid / 2
		next := &query.Rounds[r+1]
		if idx < nextMid {
			if !next.LeftValue.Equal(folded) {
				return DetailFoldConsistency
			}
		} else {
			if !next.RightValue.Equal(folded) {
				return DetailFoldConsistency
			}
		}
		idx = idx % nextMid
	}
	return ""
}

// authenticatePath recomputes the Merkle root from a leaf and its sibling
// path, pairing left/right by the position's bits from the bottom up.
func authenticatePath(leaf channel.Felt, pos uint64, siblings []channel.Felt, root channel.Felt) bool {
	cur := leaf
	for _, sib := range siblings {
		if pos&1 == 0 {
			cur = channel.HashPair(cur, sib)
		} else {
			cur = channel.HashPair(sib, cur)
		}
		pos >>= 1
	}
	return cur.Equal(&root)
}
