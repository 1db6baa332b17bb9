// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package m31 implements the Mersenne-31 field tower used by the matmul
// sumcheck verifier: M31 (p = 2^31 - 1), its degree-2 extension CM31 with
// i^2 = -1, and the degree-4 "secure field" QM31 with j^2 = 2 + i.
//
// All challenges and claimed evaluations live in QM31; the base field is
// small enough that single products fit a 64-bit accumulator, while the top
// extension is large enough (~124 bits) that forging a false transcript is
// statistically impossible.
package m31

// P is the Mersenne prime 2^31 - 1.
const P uint32 = (1 << 31) - 1

// M31 is an element of the prime field of order P, always kept canonically
// reduced into [0, P).
type M31 uint32

// Reduce maps an arbitrary uint64 into the canonical range [0, P).
func Reduce(v uint64) M31 {
	return M31(v % uint64(P))
}

// Add returns a + b. Inputs are canonical so the sum is below 2P and a
// single conditional subtraction suffices.
func (a M31) Add(b M31) M31 {
	s := uint32(a) + uint32(b)
	if s >= P {
		s -= P
	}
	return M31(s)
}

// Sub returns a - b.
func (a M31) Sub(b M31) M31 {
	d := uint32(a) + P - uint32(b)
	if d >= P {
		d -= P
	}
	return M31(d)
}

// Neg returns -a.
func (a M31) Neg() M31 {
	if a == 0 {
		return 0
	}
	return M31(P - uint32(a))
}

// Mul returns a * b. The full 62-bit product fits a uint64 and is reduced
// once.
func (a M31) Mul(b M31) M31 {
	return M31(uint64(a) * uint64(b) % uint64(P))
}

// Pow returns a^exp by square-and-multiply.
func (a M31) Pow(exp uint64) M31 {
	result := M31(1)
	base := a
	for exp > 0 {
		if exp&1 == 1 {
			result = result.Mul(base)
		}
		base = base.Mul(base)
		exp >>= 1
	}
	return result
}

// Inv computes the multiplicative inverse via Fermat's little theorem:
// a^(p-2) mod p. Inv(0) returns 0.
func (a M31) Inv() M31 {
	if a == 0 {
		return 0
	}
	return a.Pow(uint64(P) - 2)
}

// IsZero reports whether a is the additive identity.
func (a M31) IsZero() bool {
	return a == 0
}

// CM31 is a + b*i with i^2 = -1, the degree-2 extension of M31.
type CM31 struct {
	A, B M31
}

// Add returns x + y componentwise.
func (x CM31) Add(y CM31) CM31 {
	return CM31{x.A.Add(y.A), x.B.Add(y.B)}
}

// Sub returns x - y componentwise.
func (x CM31) Sub(y CM31) CM31 {
	return CM31{x.A.Sub(y.A), x.B.Sub(y.B)}
}

// Neg returns -x.
func (x CM31) Neg() CM31 {
	return CM31{x.A.Neg(), x.B.Neg()}
}

// Mul returns x * y by schoolbook complex multiplication, four base-field
// multiplications. Karatsuba buys nothing at this size.
func (x CM31) Mul(y CM31) CM31 {
	ac := x.A.Mul(y.A)
	bd := x.B.Mul(y.B)
	ad := x.A.Mul(y.B)
	bc := x.B.Mul(y.A)
	return CM31{ac.Sub(bd), ad.Add(bc)}
}

// Double returns 2x.
func (x CM31) Double() CM31 {
	return x.Add(x)
}

// Inv computes the inverse as conj(x) / (a^2 + b^2). Inv(0) returns 0.
func (x CM31) Inv() CM31 {
	norm := x.A.Mul(x.A).Add(x.B.Mul(x.B))
	normInv := norm.Inv()
	return CM31{x.A.Mul(normInv), x.B.Neg().Mul(normInv)}
}

// IsZero reports whether x is the additive identity.
func (x CM31) IsZero() bool {
	return x.A == 0 && x.B == 0
}

// mulJSquared returns (2 + i) * x, the reduction of the j^2 cross term back
// into CM31. This exact identity is part of the wire contract: any other
// representation of the extension is a different field.
func mulJSquared(x CM31) CM31 {
	// (2 + i)(a + bi) = (2a - b) + (a + 2b)i
	return CM31{
		A: x.A.Add(x.A).Sub(x.B),
		B: x.A.Add(x.B.Add(x.B)),
	}
}

// QM31 is a + b*j over CM31 with j^2 = 2 + i, the degree-4 extension used
// for every verifier challenge and claimed value.
type QM31 struct {
	A, B CM31
}

// FromM31 lifts a base-field element into QM31.
func FromM31(v M31) QM31 {
	return QM31{A: CM31{A: v}}
}

// FromUint32s builds a QM31 from its four M31 components (a.a, a.b, b.a,
// b.b), each reduced into canonical range.
func FromUint32s(a, b, c, d uint32) QM31 {
	return QM31{
		A: CM31{Reduce(uint64(a)), Reduce(uint64(b))},
		B: CM31{Reduce(uint64(c)), Reduce(uint64(d))},
	}
}

// Zero returns the additive identity.
func Zero() QM31 { return QM31{} }

// One returns the multiplicative identity.
func One() QM31 { return FromM31(1) }

// Add returns x + y componentwise.
func (x QM31) Add(y QM31) QM31 {
	return QM31{x.A.Add(y.A), x.B.Add(y.B)}
}

// Sub returns x - y componentwise.
func (x QM31) Sub(y QM31) QM31 {
	return QM31{x.A.Sub(y.A), x.B.Sub(y.B)}
}

// Neg returns -x.
func (x QM31) Neg() QM31 {
	return QM31{x.A.Neg(), x.B.Neg()}
}

// Mul returns x * y by Karatsuba over CM31: three CM31 multiplications
// instead of four, with the cross term folded back via j^2 = 2 + i.
func (x QM31) Mul(y QM31) QM31 {
	ac := x.A.Mul(y.A)
	bd := x.B.Mul(y.B)
	cross := x.A.Add(x.B).Mul(y.A.Add(y.B))
	return QM31{
		A: ac.Add(mulJSquared(bd)),
		B: cross.Sub(ac).Sub(bd),
	}
}

// Inv computes the inverse as (a - bj) / (a^2 - (2+i) b^2). Inv(0) returns 0.
func (x QM31) Inv() QM31 {
	denom := x.A.Mul(x.A).Sub(mulJSquared(x.B.Mul(x.B)))
	denomInv := denom.Inv()
	return QM31{x.A.Mul(denomInv), x.B.Neg().Mul(denomInv)}
}

// Equal reports componentwise equality.
func (x QM31) Equal(y QM31) bool {
	return x == y
}

// IsZero reports whether x is the additive identity.
func (x QM31) IsZero() bool {
	return x.A.IsZero() && x.B.IsZero()
}

// Components returns the four M31 limbs (a.a, a.b, b.a, b.b), the canonical
// serialization order used for transcript packing and Merkle leaves.
func (x QM31) Components() [4]M31 {
	return [4]M31{x.A.A, x.A.B, x.B.A, x.B.B}
}
