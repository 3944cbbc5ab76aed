// Package bn254 wraps the gnark-crypto BN254 primitives behind the canonical
// big-endian byte layouts used on the wire: 64-byte G1 points (x ‖ y),
// 128-byte G2 points (x_imag ‖ x_real ‖ y_imag ‖ y_real) and 32-byte Fr
// scalars.
//
// Decoding is best-effort syntactic: coordinates must be canonical field
// elements, but curve and subgroup membership are adjudicated by
// PairingCheck, which refuses invalid points.
package bn254

import (
	"errors"
	"math/big"

	"github.com/consensys/gnark-crypto/ecc/bn254"
	"github.com/consensys/gnark-crypto/ecc/bn254/fp"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
)

// Byte widths of the canonical encodings.
const (
	G1Len     = 64
	G2Len     = 128
	ScalarLen = 32
)

var (
	ErrInvalidG1 = errors.New("bn254: invalid G1 encoding")
	ErrInvalidG2 = errors.New("bn254: invalid G2 encoding")

	// rMinusOne = r - 1 ≡ -1 (mod r); used for G1 negation by scalar
	// multiplication instead of base-field arithmetic on y.
	rMinusOne = new(big.Int).Sub(fr.Modulus(), big.NewInt(1))
)

// FrModulus returns the BN254 scalar field order r.
func FrModulus() *big.Int {
	return fr.Modulus()
}

// FpModulus returns the BN254 base field order p.
func FpModulus() *big.Int {
	return fp.Modulus()
}

// IsInField reports whether v is a valid scalar, i.e. 0 <= v < r.
func IsInField(v *big.Int) bool {
	return v.Sign() >= 0 && v.Cmp(fr.Modulus()) < 0
}

// DecodeG1 parses a 64-byte x ‖ y point. The all-zero encoding is the point
// at infinity; y = 0 with nonzero x is rejected.
func DecodeG1(b [G1Len]byte) (*bn254.G1Affine, error) {
	var p bn254.G1Affine
	if err := p.X.SetBytesCanonical(b[:32]); err != nil {
		return nil, ErrInvalidG1
	}
	if err := p.Y.SetBytesCanonical(b[32:]); err != nil {
		return nil, ErrInvalidG1
	}
	if p.Y.IsZero() && !p.X.IsZero() {
		return nil, ErrInvalidG1
	}
	return &p, nil
}

// EncodeG1 writes a point in the canonical 64-byte layout.
func EncodeG1(p *bn254.G1Affine) [G1Len]byte {
	var out [G1Len]byte
	x := p.X.Bytes()
	y := p.Y.Bytes()
	copy(out[:32], x[:])
	copy(out[32:], y[:])
	return out
}

// DecodeG2 parses a 128-byte x_imag ‖ x_real ‖ y_imag ‖ y_real point.
func DecodeG2(b [G2Len]byte) (*bn254.G2Affine, error) {
	var p bn254.G2Affine
	if err := p.X.A1.SetBytesCanonical(b[0:32]); err != nil {
		return nil, ErrInvalidG2
	}
	if err := p.X.A0.SetBytesCanonical(b[32:64]); err != nil {
		return nil, ErrInvalidG2
	}
	if err := p.Y.A1.SetBytesCanonical(b[64:96]); err != nil {
		return nil, ErrInvalidG2
	}
	if err := p.Y.A0.SetBytesCanonical(b[96:128]); err != nil {
		return nil, ErrInvalidG2
	}
	return &p, nil
}

// EncodeG2 writes a point in the canonical 128-byte layout.
func EncodeG2(p *bn254.G2Affine) [G2Len]byte {
	var out [G2Len]byte
	xi := p.X.A1.Bytes()
	xr := p.X.A0.Bytes()
	yi := p.Y.A1.Bytes()
	yr := p.Y.A0.Bytes()
	copy(out[0:32], xi[:])
	copy(out[32:64], xr[:])
	copy(out[64:96], yi[:])
	copy(out[96:128], yr[:])
	return out
}

// ScalarMul returns s·p. The scalar is taken as-is; callers enforce s < r.
func ScalarMul(p *bn254.G1Affine, s *big.Int) *bn254.G1Affine {
	var out bn254.G1Affine
	out.ScalarMultiplication(p, s)
	return &out
}

// Add returns a + b in G1.
func Add(a, b *bn254.G1Affine) *bn254.G1Affine {
	var out bn254.G1Affine
	out.Add(a, b)
	return &out
}

// Neg returns -p, computed as [r-1]·p.
func Neg(p *bn254.G1Affine) *bn254.G1Affine {
	return ScalarMul(p, rMinusOne)
}

// PairingCheck reports whether ∏ e(g1[i], g2[i]) = 1 in the target group.
// Points that are off-curve or outside the prime-order subgroup make the
// check return false rather than an error; this is where the cryptographic
// validity skipped by DecodeG1/DecodeG2 is enforced.
func PairingCheck(g1 []bn254.G1Affine, g2 []bn254.G2Affine) bool {
	if len(g1) != len(g2) {
		return false
	}
	for i := range g1 {
		if !g1[i].IsInfinity() && !(g1[i].IsOnCurve() && g1[i].IsInSubGroup()) {
			return false
		}
		if !g2[i].IsInfinity() && !(g2[i].IsOnCurve() && g2[i].IsInSubGroup()) {
			return false
		}
	}
	ok, err := bn254.PairingCheck(g1, g2)
	if err != nil {
		return false
	}
	return ok
}
