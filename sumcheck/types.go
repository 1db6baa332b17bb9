// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package sumcheck verifies, without re-executing the computation, that a
// claimed matrix multiplication C = A x B was performed correctly, from a
// succinct transcript produced by an off-chain prover: a sumcheck protocol
// over the QM31 secure field plus one multilinear-extension opening per
// input matrix, all bound to a shared Fiat-Shamir channel.
//
// Exposed on-chain as the MatMulVerify precompile in the Lux AI range
// (LP-7210); see contract.go for the call encoding.
package sumcheck

import (
	"github.com/luxfi/matverify/channel"
	"github.com/luxfi/matverify/m31"
)

// RoundPoly is the per-round sumcheck message: coefficients of the
// degree <= 2 polynomial p(x) = C0 + C1*x + C2*x^2.
type RoundPoly struct {
	C0, C1, C2 m31.QM31
}

// EvalAt evaluates the polynomial at x by Horner's method.
func (p RoundPoly) EvalAt(x m31.QM31) m31.QM31 {
	return p.C0.Add(x.Mul(p.C1.Add(x.Mul(p.C2))))
}

// MleQueryRound carries the authenticated folding pair for one layer of one
// spot-check query: both halves of the pair plus their Merkle paths.
type MleQueryRound struct {
	LeftValue     m31.QM31
	RightValue    m31.QM31
	LeftSiblings  []channel.Felt
	RightSiblings []channel.Felt
}

// MleQueryProof is one spot-check query: the drawn pair index in the first
// layer and one MleQueryRound per folding layer.
type MleQueryProof struct {
	InitialPairIndex uint64
	Rounds           []MleQueryRound
}

// MleOpeningProof proves that an MLE over n boolean variables, committed as
// a Merkle tree over its 2^n raw evaluation values, equals FinalValue at
// the point given by the sumcheck challenges.
type MleOpeningProof struct {
	// IntermediateRoots holds the Merkle roots of folding layers 1..n-1.
	// Layer 0 is authenticated against the table commitment itself.
	IntermediateRoots []channel.Felt
	Queries           []MleQueryProof
	FinalValue        m31.QM31
}

// MatMulProof is the full prover transcript for one verified matmul:
// dimensions of A (m x k) and B (k x n), the claimed inner-product sum, the
// per-round sumcheck polynomials, the two final MLE evaluations, and a
// Merkle commitment plus opening per input matrix.
//
// Invariant: NumRounds = ceil(log2(nextPow2(K))). All fields are
// prover-supplied and consumed read-only.
type MatMulProof struct {
	M, K, N   uint64
	NumRounds int

	ClaimedSum m31.QM31
	RoundPolys []RoundPoly

	FinalAEval m31.QM31
	FinalBEval m31.QM31

	ACommitment channel.Felt
	BCommitment channel.Felt
	AOpening    MleOpeningProof
	BOpening    MleOpeningProof
}

// Rejection reason tags. Round-consistency failures are round-indexed
// ("ROUND_3_FAIL") and built with roundFailTag.
const (
	ReasonBadShape           = "BAD_SHAPE"
	ReasonBadDimensions      = "BAD_DIMENSIONS"
	ReasonBadRoundCount      = "BAD_ROUND_COUNT"
	ReasonCommitmentMismatch = "COMMITMENT_MISMATCH"
	ReasonFinalFail          = "FINAL_FAIL"
	ReasonAMleFail           = "A_MLE_FAIL"
	ReasonBMleFail           = "B_MLE_FAIL"
)

// MLE opening failure details, reported alongside ReasonAMleFail or
// ReasonBMleFail.
const (
	DetailOpeningShape    = "OPENING_SHAPE_FAIL"
	DetailQueryIndex      = "QUERY_INDEX_FAIL"
	DetailMerkleAuth      = "MERKLE_AUTH_FAIL"
	DetailFoldConsistency = "FOLD_CONSISTENCY_FAIL"
	DetailFinalValue      = "FINAL_VALUE_FAIL"
	DetailClaimedValue    = "CLAIMED_VALUE_FAIL"
)

// Result is the verification outcome: accept/reject, an audit hash binding
// the transcript on acceptance (for external logging only), and symbolic
// reason plus detail tags on rejection. Untrusted proofs are expected
// input, so a rejection is never surfaced as an error.
type Result struct {
	Valid     bool
	AuditHash channel.Felt
	Reason    string
	Detail    string
}

func accept(audit channel.Felt) *Result {
	return &Result{Valid: true, AuditHash: audit}
}

func reject(reason string) *Result {
	return &Result{Reason: reason}
}

func rejectDetail(reason, detail string) *Result {
	return &Result{Reason: reason, Detail: detail}
}
