// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package sumcheck

import (
	"encoding/binary"
	"errors"

	"github.com/holiman/uint256"

	"github.com/luxfi/matverify/channel"
	"github.com/luxfi/matverify/m31"
)

// Binary proof encoding, big-endian throughout. Field elements travel as
// 32-byte EVM words; QM31 values as their four 4-byte M31 limbs in
// (a.a, a.b, b.a, b.b) order; lengths as 4-byte counts.
//
// Layout:
//
//	m, k, n               3 x 8 bytes
//	numRounds             4 bytes
//	claimedSum            16 bytes
//	roundPolys            numRounds x 48 bytes
//	finalAEval, finalBEval 2 x 16 bytes
//	aCommitment, bCommitment 2 x 32 bytes
//	aOpening, bOpening    variable (see encodeOpening)

var (
	ErrTruncatedProof   = errors.New("truncated matmul proof encoding")
	ErrProofTooLarge    = errors.New("matmul proof encoding exceeds size bounds")
	ErrInvalidFieldWord = errors.New("proof word is not a canonical field element")
)

// Decode bounds; a well-formed proof for any practical matrix size is far
// below these.
const (
	maxDecodeRounds  = 64
	maxDecodeQueries = 64
	maxDecodeDepth   = 64
)

const (
	qm31Size = 16
	wordSize = 32
)

// EncodeProof serializes a proof into the precompile input layout.
func EncodeProof(p *MatMulProof) []byte {
	var buf []byte
	buf = binary.BigEndian.AppendUint64(buf, p.M)
	buf = binary.BigEndian.AppendUint64(buf, p.K)
	buf = binary.BigEndian.AppendUint64(buf, p.N)
	buf = binary.BigEndian.AppendUint32(buf, uint32(p.NumRounds))
	buf = appendQM31(buf, p.ClaimedSum)
	for _, rp := range p.RoundPolys {
		buf = appendQM31(buf, rp.C0)
		buf = appendQM31(buf, rp.C1)
		buf = appendQM31(buf, rp.C2)
	}
	buf = appendQM31(buf, p.FinalAEval)
	buf = appendQM31(buf, p.FinalBEval)
	buf = appendFelt(buf, p.ACommitment)
	buf = appendFelt(buf, p.BCommitment)
	buf = appendOpening(buf, &p.AOpening)
	buf = appendOpening(buf, &p.BOpening)
	return buf
}

func appendOpening(buf []byte, o *MleOpeningProof) []byte {
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(o.IntermediateRoots)))
	for _, r := range o.IntermediateRoots {
		buf = appendFelt(buf, r)
	}
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(o.Queries)))
	for _, q := range o.Queries {
		buf = binary.BigEndian.AppendUint64(buf, q.InitialPairIndex)
		buf = binary.BigEndian.AppendUint32(buf, uint32(len(q.Rounds)))
		for _, rd := range q.Rounds {
			buf = appendQM31(buf, rd.LeftValue)
			buf = appendQM31(buf, rd.RightValue)
			buf = binary.BigEndian.AppendUint32(buf, uint32(len(rd.LeftSiblings)))
			for _, s := range rd.LeftSiblings {
				buf = appendFelt(buf, s)
			}
			buf = binary.BigEndian.AppendUint32(buf, uint32(len(rd.RightSiblings)))
			for _, s := range rd.RightSiblings {
				buf = appendFelt(buf, s)
			}
		}
	}
	buf = appendQM31(buf, o.FinalValue)
	return buf
}

func appendQM31(buf []byte, v m31.QM31) []byte {
	for _, c := range v.Components() {
		buf = binary.BigEndian.AppendUint32(buf, uint32(c))
	}
	return buf
}

func appendFelt(buf []byte, f channel.Felt) []byte {
	b := f.Bytes()
	return append(buf, b[:]...)
}

// decoder is a bounds-checked cursor over the proof bytes.
type decoder struct {
	buf []byte
	off int
	err error
}

func (d *decoder) take(n int) []byte {
	if d.err != nil {
		return nil
	}
	if d.off+n > len(d.buf) {
		d.err = ErrTruncatedProof
		return nil
	}
	b := d.buf[d.off : d.off+n]
	d.off += n
	return b
}

func (d *decoder) uint64() uint64 {
	b := d.take(8)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint64(b)
}

func (d *decoder) uint32() uint32 {
	b := d.take(4)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint32(b)
}

func (d *decoder) qm31() m31.QM31 {
	b := d.take(qm31Size)
	if b == nil {
		return m31.Zero()
	}
	return m31.FromUint32s(
		binary.BigEndian.Uint32(b[0:4]),
		binary.BigEndian.Uint32(b[4:8]),
		binary.BigEndian.Uint32(b[8:12]),
		binary.BigEndian.Uint32(b[12:16]),
	)
}

// felt parses one 32-byte EVM word. Words at or above the field modulus
// are rejected rather than silently reduced, so every commitment has one
// canonical encoding.
func (d *decoder) felt() channel.Felt {
	var f channel.Felt
	b := d.take(wordSize)
	if b == nil {
		return f
	}
	word := new(uint256.Int).SetBytes32(b)
	if word.Cmp(feltModulus) >= 0 {
		d.err = ErrInvalidFieldWord
		return f
	}
	f.SetBytes(b)
	return f
}

// feltModulus is the field modulus as an EVM word, for canonicity checks.
var feltModulus = func() *uint256.Int {
	var m uint256.Int
	m.SetFromBig(channel.Modulus())
	return &m
}()

// DecodeProof parses the precompile input layout back into a proof. It
// validates only framing; semantic shape checks belong to the verifier.
func DecodeProof(input []byte) (*MatMulProof, error) {
	d := &decoder{buf: input}
	p := &MatMulProof{}

	p.M = d.uint64()
	p.K = d.uint64()
	p.N = d.uint64()
	p.NumRounds = int(d.uint32())
	if d.err == nil && p.NumRounds > maxDecodeRounds {
		return nil, ErrProofTooLarge
	}
	p.ClaimedSum = d.qm31()
	if d.err == nil {
		p.RoundPolys = make([]RoundPoly, p.NumRounds)
		for i := range p.RoundPolys {
			p.RoundPolys[i] = RoundPoly{C0: d.qm31(), C1: d.qm31(), C2: d.qm31()}
		}
	}
	p.FinalAEval = d.qm31()
	p.FinalBEval = d.qm31()
	p.ACommitment = d.felt()
	p.BCommitment = d.felt()

	if err := decodeOpening(d, &p.AOpening); err != nil {
		return nil, err
	}
	if err := decodeOpening(d, &p.BOpening); err != nil {
		return nil, err
	}
	if d.err != nil {
		return nil, d.err
	}
	if d.off != len(input) {
		return nil, ErrTruncatedProof
	}
	return p, nil
}

func decodeOpening(d *decoder, o *MleOpeningProof) error {
	nRoots := d.uint32()
	if d.err == nil && nRoots > maxDecodeRounds {
		return ErrProofTooLarge
	}
	if d.err == nil {
		o.IntermediateRoots = make([]channel.Felt, nRoots)
		for i := range o.IntermediateRoots {
			o.IntermediateRoots[i] = d.felt()
		}
	}

	nQueries := d.uint32()
	if d.err == nil && nQueries > maxDecodeQueries {
		return ErrProofTooLarge
	}
	if d.err == nil {
		o.Queries = make([]MleQueryProof, nQueries)
		for i := range o.Queries {
			q := &o.Queries[i]
			q.InitialPairIndex = d.uint64()
			nRounds := d.uint32()
			if d.err == nil && nRounds > maxDecodeRounds {
				return ErrProofTooLarge
			}
			if d.err != nil {
				break
			}
			q.Rounds = make([]MleQueryRound, nRounds)
			for j := range q.Rounds {
				rd := &q.Rounds[j]
				rd.LeftValue = d.qm31()
				rd.RightValue = d.qm31()
				if err := decodeSiblings(d, &rd.LeftSiblings); err != nil {
					return err
				}
				if err := decodeSiblings(d, &rd.RightSiblings); err != nil {
					return err
				}
			}
		}
	}

	o.FinalValue = d.qm31()
	return d.err
}

func decodeSiblings(d *decoder, out *[]channel.Felt) error {
	n := d.uint32()
	if d.err == nil && n > maxDecodeDepth {
		return ErrProofTooLarge
	}
	if d.err != nil {
		return d.err
	}
	*out = make([]channel.Felt, n)
	for i := range *out {
		(*out)[i] = d.felt()
	}
	return d.err
}
