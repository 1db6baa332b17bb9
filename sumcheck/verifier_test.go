// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package sumcheck

import (
	"math/rand"
	"testing"

	"github.com/luxfi/geth/common"

	"github.com/luxfi/matverify/channel"
	"github.com/luxfi/matverify/m31"
	"github.com/luxfi/matverify/registry"
)

// newTestVerifier registers a model whose weight commitment matches the
// proof's A commitment and returns the verifier with the model ID.
func newTestVerifier(t *testing.T, proof *MatMulProof) (*Verifier, [32]byte) {
	t.Helper()
	reg := registry.New()
	owner := common.HexToAddress("0x0100000000000000000000000000000000000000")
	id, err := reg.Register(owner, "test-model", 1, proof.ACommitment)
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	return NewVerifier(reg), id
}

func honestProof(t *testing.T, seed int64, mDim, kDim, nDim uint64) *MatMulProof {
	t.Helper()
	r := rand.New(rand.NewSource(seed))
	size := int(nextPowTwo(kDim))
	return proveMatMul(mDim, kDim, nDim, randTable(r, size), randTable(r, size), nil)
}

func TestVerifyMatMulAccept(t *testing.T) {
	proof := honestProof(t, 1, 4, 8, 4)
	v, id := newTestVerifier(t, proof)

	res := v.VerifyMatMul(id, proof)
	if !res.Valid {
		t.Fatalf("honest proof rejected: %s / %s", res.Reason, res.Detail)
	}
	if res.AuditHash.IsZero() {
		t.Fatal("accepting result carries zero audit hash")
	}
	if v.TotalAccepted != 1 || v.TotalRejected != 0 {
		t.Fatalf("counters = %d/%d, want 1/0", v.TotalAccepted, v.TotalRejected)
	}
}

func TestVerifyMatMulDeterministic(t *testing.T) {
	proof := honestProof(t, 2, 2, 4, 2)
	v, id := newTestVerifier(t, proof)

	r1 := v.VerifyMatMul(id, proof)
	r2 := v.VerifyMatMul(id, proof)
	if !r1.Valid || !r2.Valid {
		t.Fatalf("honest proof rejected: %s %s", r1.Reason, r2.Reason)
	}
	if !r1.AuditHash.Equal(&r2.AuditHash) {
		t.Fatal("audit hash differs between identical verifications")
	}
}

func TestSingleRoundAccept(t *testing.T) {
	// k=2 is the smallest instance: one round, one query, and a degenerate
	// high half of B so the round polynomial keeps c2 = 0.
	r := rand.New(rand.NewSource(3))
	b := randQM31(r)
	aTable := []m31.QM31{randQM31(r), randQM31(r)}
	bTable := []m31.QM31{b, b}

	proof := proveMatMul(1, 2, 1, aTable, bTable, nil)
	if !proof.RoundPolys[0].C2.IsZero() {
		t.Fatal("constant-B table should produce c2 = 0")
	}

	v, id := newTestVerifier(t, proof)
	if res := v.VerifyMatMul(id, proof); !res.Valid {
		t.Fatalf("single-round proof rejected: %s / %s", res.Reason, res.Detail)
	}
}

func TestRoundConsistencyFailure(t *testing.T) {
	proof := honestProof(t, 4, 4, 8, 4)
	proof.RoundPolys[0].C0 = proof.RoundPolys[0].C0.Add(m31.One())

	v, id := newTestVerifier(t, proof)
	res := v.VerifyMatMul(id, proof)
	if res.Valid {
		t.Fatal("tampered round polynomial accepted")
	}
	if res.Reason != "ROUND_0_FAIL" {
		t.Fatalf("reason = %s, want ROUND_0_FAIL", res.Reason)
	}
	if !res.AuditHash.IsZero() {
		t.Fatal("rejecting result must carry zero audit hash")
	}
}

func TestLaterRoundFailure(t *testing.T) {
	proof := honestProof(t, 5, 4, 8, 4)
	proof.RoundPolys[2].C1 = proof.RoundPolys[2].C1.Add(m31.One())

	v, id := newTestVerifier(t, proof)
	res := v.VerifyMatMul(id, proof)
	if res.Valid || res.Reason != "ROUND_2_FAIL" {
		t.Fatalf("reason = %s, want ROUND_2_FAIL", res.Reason)
	}
}

func TestMerkleAuthFailure(t *testing.T) {
	proof := honestProof(t, 6, 4, 8, 4)
	proof.AOpening.Queries[0].Rounds[0].LeftValue =
		proof.AOpening.Queries[0].Rounds[0].LeftValue.Add(m31.One())

	v, id := newTestVerifier(t, proof)
	res := v.VerifyMatMul(id, proof)
	if res.Valid {
		t.Fatal("flipped opening value accepted")
	}
	if res.Reason != ReasonAMleFail {
		t.Fatalf("reason = %s, want %s", res.Reason, ReasonAMleFail)
	}
	if res.Detail != DetailMerkleAuth {
		t.Fatalf("detail = %s, want %s", res.Detail, DetailMerkleAuth)
	}
}

func TestBOpeningFailure(t *testing.T) {
	proof := honestProof(t, 7, 4, 8, 4)
	proof.BOpening.Queries[0].Rounds[0].LeftSiblings[0] = channel.FeltFromUint64(1)

	v, id := newTestVerifier(t, proof)
	res := v.VerifyMatMul(id, proof)
	if res.Valid || res.Reason != ReasonBMleFail {
		t.Fatalf("reason = %s, want %s", res.Reason, ReasonBMleFail)
	}
	if res.Detail != DetailMerkleAuth {
		t.Fatalf("detail = %s, want %s", res.Detail, DetailMerkleAuth)
	}
}

func TestCommitmentMismatch(t *testing.T) {
	proof := honestProof(t, 8, 2, 4, 2)

	reg := registry.New()
	// Registered commitment differs from the proof's.
	id, err := reg.Register(common.Address{}, "other-model", 1, channel.FeltFromUint64(42))
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	v := NewVerifier(reg)

	res := v.VerifyMatMul(id, proof)
	if res.Valid || res.Reason != ReasonCommitmentMismatch {
		t.Fatalf("reason = %s, want %s", res.Reason, ReasonCommitmentMismatch)
	}

	// Entirely unregistered ID rejects the same way.
	var missing [32]byte
	res = v.VerifyMatMul(missing, proof)
	if res.Valid || res.Reason != ReasonCommitmentMismatch {
		t.Fatalf("reason = %s, want %s", res.Reason, ReasonCommitmentMismatch)
	}
}

func TestShapeValidation(t *testing.T) {
	base := honestProof(t, 9, 2, 4, 2)
	v, id := newTestVerifier(t, base)

	cases := []struct {
		name   string
		mutate func(p *MatMulProof)
		reason string
	}{
		{"zero m", func(p *MatMulProof) { p.M = 0 }, ReasonBadDimensions},
		{"zero k", func(p *MatMulProof) { p.K = 0 }, ReasonBadDimensions},
		{"zero n", func(p *MatMulProof) { p.N = 0 }, ReasonBadDimensions},
		// k=5 needs ceil(log2(8)) = 3 rounds, not 2.
		{"round count vs k", func(p *MatMulProof) { p.K = 5 }, ReasonBadRoundCount},
		{"zero rounds", func(p *MatMulProof) { p.NumRounds = 0 }, ReasonBadRoundCount},
		{"poly count", func(p *MatMulProof) { p.RoundPolys = p.RoundPolys[:1] }, ReasonBadShape},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := *base
			p.RoundPolys = append([]RoundPoly(nil), base.RoundPolys...)
			tc.mutate(&p)
			res := v.VerifyMatMul(id, &p)
			if res.Valid || res.Reason != tc.reason {
				t.Fatalf("reason = %s, want %s", res.Reason, tc.reason)
			}
		})
	}

	if res := v.VerifyMatMul(id, nil); res.Valid || res.Reason != ReasonBadShape {
		t.Fatalf("nil proof: reason = %s, want %s", res.Reason, ReasonBadShape)
	}
}

func TestFinalEvaluationFailure(t *testing.T) {
	proof := honestProof(t, 10, 4, 8, 4)
	proof.FinalAEval = proof.FinalAEval.Add(m31.One())

	v, id := newTestVerifier(t, proof)
	res := v.VerifyMatMul(id, proof)
	if res.Valid || res.Reason != ReasonFinalFail {
		t.Fatalf("reason = %s, want %s", res.Reason, ReasonFinalFail)
	}
}

func TestClaimedValueFailure(t *testing.T) {
	proof := honestProof(t, 11, 4, 8, 4)
	// Opening claims a final value different from the sumcheck's.
	proof.AOpening.FinalValue = proof.AOpening.FinalValue.Add(m31.One())

	v, id := newTestVerifier(t, proof)
	res := v.VerifyMatMul(id, proof)
	if res.Valid || res.Reason != ReasonAMleFail || res.Detail != DetailClaimedValue {
		t.Fatalf("reason/detail = %s/%s, want %s/%s",
			res.Reason, res.Detail, ReasonAMleFail, DetailClaimedValue)
	}
}

func TestQueryIndexFailure(t *testing.T) {
	proof := honestProof(t, 12, 4, 8, 4)
	q := &proof.AOpening.Queries[0]
	halfN := uint64(1) << (proof.NumRounds - 1)
	q.InitialPairIndex = (q.InitialPairIndex + 1) % halfN

	v, id := newTestVerifier(t, proof)
	res := v.VerifyMatMul(id, proof)
	if res.Valid || res.Reason != ReasonAMleFail || res.Detail != DetailQueryIndex {
		t.Fatalf("reason/detail = %s/%s, want %s/%s",
			res.Reason, res.Detail, ReasonAMleFail, DetailQueryIndex)
	}
}

func TestFoldConsistencyFailure(t *testing.T) {
	// Corrupt every entry of A's first folded layer after the sumcheck but
	// before the opening trees are built: the Merkle paths still
	// authenticate against the (corrupted) intermediate root, so the first
	// check to fail is the fold into that layer.
	r := rand.New(rand.NewSource(13))
	proof := proveMatMul(4, 8, 4, randTable(r, 8), randTable(r, 8),
		func(aLayers, bLayers [][]m31.QM31) {
			for i := range aLayers[1] {
				aLayers[1][i] = aLayers[1][i].Add(m31.One())
			}
		})

	v, id := newTestVerifier(t, proof)
	res := v.VerifyMatMul(id, proof)
	if res.Valid || res.Reason != ReasonAMleFail || res.Detail != DetailFoldConsistency {
		t.Fatalf("reason/detail = %s/%s, want %s/%s",
			res.Reason, res.Detail, ReasonAMleFail, DetailFoldConsistency)
	}
}

func TestOpeningShapeFailure(t *testing.T) {
	proof := honestProof(t, 14, 4, 8, 4)
	proof.AOpening.IntermediateRoots = proof.AOpening.IntermediateRoots[:1]

	v, id := newTestVerifier(t, proof)
	res := v.VerifyMatMul(id, proof)
	if res.Valid || res.Reason != ReasonAMleFail || res.Detail != DetailOpeningShape {
		t.Fatalf("reason/detail = %s/%s, want %s/%s",
			res.Reason, res.Detail, ReasonAMleFail, DetailOpeningShape)
	}
}

// TestSoundnessUnderMutation sweeps single-field mutations across the whole
// proof; every one must reject.
func TestSoundnessUnderMutation(t *testing.T) {
	mutations := []struct {
		name   string
		mutate func(p *MatMulProof)
	}{
		{"claimed sum", func(p *MatMulProof) { p.ClaimedSum = p.ClaimedSum.Add(m31.One()) }},
		{"final a", func(p *MatMulProof) { p.FinalAEval = p.FinalAEval.Add(m31.One()) }},
		{"final b", func(p *MatMulProof) { p.FinalBEval = p.FinalBEval.Add(m31.One()) }},
		{"b commitment", func(p *MatMulProof) { p.BCommitment = channel.FeltFromUint64(5) }},
		{"a opening final", func(p *MatMulProof) { p.AOpening.FinalValue = p.AOpening.FinalValue.Add(m31.One()) }},
		{"b opening final", func(p *MatMulProof) { p.BOpening.FinalValue = p.BOpening.FinalValue.Add(m31.One()) }},
		{"intermediate root", func(p *MatMulProof) { p.AOpening.IntermediateRoots[0] = channel.FeltFromUint64(5) }},
		{"query right value", func(p *MatMulProof) {
			q := &p.BOpening.Queries[1].Rounds[1]
			q.RightValue = q.RightValue.Add(m31.One())
		}},
		{"query sibling", func(p *MatMulProof) {
			p.AOpening.Queries[1].Rounds[2].RightSiblings[0] = channel.FeltFromUint64(5)
		}},
	}
	for round := 0; round < 3; round++ {
		round := round
		for ci, name := range []string{"c0", "c1", "c2"} {
			ci := ci
			mutations = append(mutations, struct {
				name   string
				mutate func(p *MatMulProof)
			}{
				name: "round " + string(rune('0'+round)) + " " + name,
				mutate: func(p *MatMulProof) {
					rp := &p.RoundPolys[round]
					switch ci {
					case 0:
						rp.C0 = rp.C0.Add(m31.One())
					case 1:
						rp.C1 = rp.C1.Add(m31.One())
					case 2:
						rp.C2 = rp.C2.Add(m31.One())
					}
				},
			})
		}
	}

	for i, mut := range mutations {
		t.Run(mut.name, func(t *testing.T) {
			proof := honestProof(t, 100+int64(i), 4, 8, 4)
			v, id := newTestVerifier(t, proof)
			if res := v.VerifyMatMul(id, proof); !res.Valid {
				t.Fatalf("baseline rejected: %s / %s", res.Reason, res.Detail)
			}
			mut.mutate(proof)
			if res := v.VerifyMatMul(id, proof); res.Valid {
				t.Fatal("mutated proof accepted")
			}
		})
	}
}
