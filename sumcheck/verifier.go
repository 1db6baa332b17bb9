// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package sumcheck

import (
	"fmt"
	"math/bits"

	log "github.com/luxfi/log"

	"github.com/luxfi/matverify/channel"
	"github.com/luxfi/matverify/m31"
	"github.com/luxfi/matverify/registry"
)

// Verifier checks matmul sumcheck proofs against the model registry.
// Verification itself is pure and deterministic; the only mutable state is
// the per-call Channel, created and discarded inside VerifyMatMul.
type Verifier struct {
	registry *registry.Registry
	log      log.Logger

	// Statistics
	TotalVerifications uint64
	TotalAccepted      uint64
	TotalRejected      uint64
}

// NewVerifier creates a verifier bound to a model registry.
func NewVerifier(reg *registry.Registry) *Verifier {
	return &Verifier{
		registry: reg,
		log:      log.NewTestLogger(log.InfoLevel),
	}
}

// VerifyMatMul runs the fixed verification sequence: shape validation,
// registry commitment check, then one continuous Fiat-Shamir channel
// through dimension mixing, row/column draws, the sumcheck rounds and both
// MLE openings. Splitting the channel or reordering any step produces a
// different transcript and rejects valid proofs.
func (v *Verifier) VerifyMatMul(modelID [32]byte, proof *MatMulProof) *Result {
	v.TotalVerifications++

	if r := validateShape(proof); r != nil {
		return v.rejected(r)
	}

	// Registry check runs before the channel is even initialized: a proof
	// for an unregistered weight commitment gets no cryptography at all.
	expected, ok := v.registry.Lookup(modelID)
	if !ok || !proof.ACommitment.Equal(&expected) {
		return v.rejected(reject(ReasonCommitmentMismatch))
	}

	ch := channel.New()
	ch.MixU64(proof.M)
	ch.MixU64(proof.K)
	ch.MixU64(proof.N)

	// Row and column challenges are consumed by the prover when it
	// restricts A and B to vectors; the verifier draws them only to keep
	// the channel in lockstep.
	ch.DrawQM31s(ceilLog2(nextPowTwo(proof.M)))
	ch.DrawQM31s(ceilLog2(nextPowTwo(proof.N)))

	ch.MixFelt(channel.PackQM31s(proof.ClaimedSum))
	ch.MixFelt(proof.ACommitment)
	ch.MixFelt(proof.BCommitment)

	assignment, audit, tag := verifyRounds(ch, proof)
	if tag != "" {
		return v.rejected(reject(tag))
	}

	if ok, detail := verifyMleOpening(ch, proof.ACommitment, assignment, proof.FinalAEval, &proof.AOpening); !ok {
		return v.rejected(rejectDetail(ReasonAMleFail, detail))
	}
	if ok, detail := verifyMleOpening(ch, proof.BCommitment, assignment, proof.FinalBEval, &proof.BOpening); !ok {
		return v.rejected(rejectDetail(ReasonBMleFail, detail))
	}

	v.TotalAccepted++
	return accept(audit)
}

// rejected bumps counters and logs the reason tag.
func (v *Verifier) rejected(r *Result) *Result {
	v.TotalRejected++
	v.log.Debug("matmul proof rejected: " + r.Reason)
	return r
}

// validateShape rejects malformed proofs before any cryptography runs.
func validateShape(p *MatMulProof) *Result {
	if p == nil {
		return reject(ReasonBadShape)
	}
	if p.M == 0 || p.K == 0 || p.N == 0 {
		return reject(ReasonBadDimensions)
	}
	if p.NumRounds <= 0 || p.NumRounds != ceilLog2(nextPowTwo(p.K)) {
		return reject(ReasonBadRoundCount)
	}
	if len(p.RoundPolys) != p.NumRounds {
		return reject(ReasonBadShape)
	}
	return nil
}

// verifyRounds runs the sumcheck state machine: per round, check
// p(0) + p(1) against the running expected sum, absorb the coefficients,
// draw the round challenge and fold the expected sum to p(challenge).
// Returns the ordered challenge assignment and, on success, the audit hash
// binding the round-0 digest, round count, claimed sum and both final
// evaluations.
func verifyRounds(ch *channel.Channel, proof *MatMulProof) ([]m31.QM31, channel.Felt, string) {
	initialDigest := ch.Digest()
	assignment := make([]m31.QM31, 0, proof.NumRounds)
	expected := proof.ClaimedSum

	for i, p := range proof.RoundPolys {
		p0 := p.C0
		p1 := p.C0.Add(p.C1).Add(p.C2)
		if !p0.Add(p1).Equal(expected) {
			return nil, channel.Felt{}, roundFailTag(i)
		}

		ch.MixPolyCoeffs(p.C0, p.C1, p.C2)
		r := ch.DrawQM31()
		assignment = append(assignment, r)
		expected = p.EvalAt(r)
	}

	if !expected.Equal(proof.FinalAEval.Mul(proof.FinalBEval)) {
		return nil, channel.Felt{}, ReasonFinalFail
	}

	audit := channel.Sponge([]channel.Felt{
		initialDigest,
		channel.FeltFromUint64(uint64(proof.NumRounds)),
		channel.PackQM31s(proof.ClaimedSum),
		channel.PackQM31s(proof.FinalAEval),
		channel.PackQM31s(proof.FinalBEval),
	})
	return assignment, audit, ""
}

func roundFailTag(round int) string {
	return fmt.Sprintf("ROUND_%d_FAIL", round)
}

// nextPowTwo returns the smallest power of two >= v.
func nextPowTwo(v uint64) uint64 {
	if v <= 1 {
		return 1
	}
	return 1 << bits.Len64(v-1)
}

// ceilLog2 returns log2(v) for the power of two v (0 for v <= 1).
func ceilLog2(v uint64) int {
	if v <= 1 {
		return 0
	}
	return bits.Len64(v - 1)
}
