package bn254

import (
	"math/big"
	"testing"

	curve "github.com/consensys/gnark-crypto/ecc/bn254"
)

func generators() (curve.G1Affine, curve.G2Affine) {
	_, _, g1, g2 := curve.Generators()
	return g1, g2
}

func TestIsInField(t *testing.T) {
	r := FrModulus()

	cases := []struct {
		name string
		v    *big.Int
		want bool
	}{
		{"zero", big.NewInt(0), true},
		{"one", big.NewInt(1), true},
		{"r minus one", new(big.Int).Sub(r, big.NewInt(1)), true},
		{"r", new(big.Int).Set(r), false},
		{"r plus one", new(big.Int).Add(r, big.NewInt(1)), false},
		{"negative", big.NewInt(-1), false},
	}
	for _, tc := range cases {
		if got := IsInField(tc.v); got != tc.want {
			t.Errorf("%s: IsInField = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestG1EncodeDecodeRoundTrip(t *testing.T) {
	g1, _ := generators()

	enc := EncodeG1(&g1)
	dec, err := DecodeG1(enc)
	if err != nil {
		t.Fatalf("decode generator: %v", err)
	}
	if !dec.Equal(&g1) {
		t.Fatal("G1 round trip changed the point")
	}
}

func TestG1DecodeInfinity(t *testing.T) {
	var zero [G1Len]byte
	p, err := DecodeG1(zero)
	if err != nil {
		t.Fatalf("decode infinity: %v", err)
	}
	if !p.IsInfinity() {
		t.Fatal("all-zero encoding should decode to the point at infinity")
	}
}

func TestG1DecodeRejectsZeroYWithNonzeroX(t *testing.T) {
	var b [G1Len]byte
	b[31] = 1 // x = 1, y = 0
	if _, err := DecodeG1(b); err == nil {
		t.Fatal("expected decode failure for y = 0 with nonzero x")
	}
}

func TestG1DecodeRejectsNonCanonicalCoordinate(t *testing.T) {
	var b [G1Len]byte
	pBytes := FpModulus().Bytes()
	copy(b[32-len(pBytes):32], pBytes) // x = p
	b[63] = 1                          // y = 1
	if _, err := DecodeG1(b); err == nil {
		t.Fatal("expected decode failure for x >= p")
	}
}

func TestG2EncodeDecodeRoundTrip(t *testing.T) {
	_, g2 := generators()

	enc := EncodeG2(&g2)
	dec, err := DecodeG2(enc)
	if err != nil {
		t.Fatalf("decode generator: %v", err)
	}
	if !dec.Equal(&g2) {
		t.Fatal("G2 round trip changed the point")
	}
}

func TestG2DecodeRejectsNonCanonicalCoordinate(t *testing.T) {
	_, g2 := generators()
	enc := EncodeG2(&g2)
	pBytes := FpModulus().Bytes()
	copy(enc[32-len(pBytes):32], pBytes) // x_imag = p
	if _, err := DecodeG2(enc); err == nil {
		t.Fatal("expected decode failure for coordinate >= p")
	}
}

func TestNegMatchesAffineNegation(t *testing.T) {
	g1, _ := generators()

	var want curve.G1Affine
	want.Neg(&g1)

	got := Neg(&g1)
	if !got.Equal(&want) {
		t.Fatal("[r-1]·P != -P")
	}
}

func TestScalarMulAndAdd(t *testing.T) {
	g1, _ := generators()

	double := ScalarMul(&g1, big.NewInt(2))
	sum := Add(&g1, &g1)
	if !double.Equal(sum) {
		t.Fatal("2·G != G + G")
	}
}

func TestPairingCheckCancellation(t *testing.T) {
	g1, g2 := generators()
	neg := Neg(&g1)

	// e(G1, G2) · e(-G1, G2) = 1
	if !PairingCheck([]curve.G1Affine{g1, *neg}, []curve.G2Affine{g2, g2}) {
		t.Fatal("cancelling pairing product should pass")
	}

	// e(G1, G2) != 1
	if PairingCheck([]curve.G1Affine{g1}, []curve.G2Affine{g2}) {
		t.Fatal("single nontrivial pairing should fail")
	}
}

func TestPairingCheckRejectsOffCurvePoint(t *testing.T) {
	g1, g2 := generators()
	neg := Neg(&g1)

	var bad curve.G1Affine
	bad.X.SetOne()
	bad.Y.SetOne() // 1 != 1 + 3, not on the curve

	if PairingCheck([]curve.G1Affine{bad, *neg}, []curve.G2Affine{g2, g2}) {
		t.Fatal("off-curve G1 point must fail the pairing check")
	}
}

func TestPairingCheckRejectsLengthMismatch(t *testing.T) {
	g1, g2 := generators()
	if PairingCheck([]curve.G1Affine{g1, g1}, []curve.G2Affine{g2}) {
		t.Fatal("mismatched vector lengths must fail")
	}
}
