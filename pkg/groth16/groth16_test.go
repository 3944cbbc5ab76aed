package groth16

import (
	"errors"
	"math/big"
	"testing"

	curve "github.com/consensys/gnark-crypto/ecc/bn254"

	"github.com/AshFrancis/zkvote/pkg/bn254"
	"github.com/AshFrancis/zkvote/pkg/protocol"
)

// dummyVK builds a syntactically valid key from curve generators with the
// given IC length. It cannot verify any real proof; the tests below only
// exercise shape and bounds handling.
func dummyVK(icLen int) *VerificationKey {
	_, _, g1, g2 := curve.Generators()

	vk := &VerificationKey{
		Alpha: bn254.EncodeG1(&g1),
		Beta:  bn254.EncodeG2(&g2),
		Gamma: bn254.EncodeG2(&g2),
		Delta: bn254.EncodeG2(&g2),
	}
	vk.IC = make([][bn254.G1Len]byte, icLen)
	for i := range vk.IC {
		p := bn254.ScalarMul(&g1, big.NewInt(int64(i+2)))
		vk.IC[i] = bn254.EncodeG1(p)
	}
	return vk
}

func dummyProof() *Proof {
	_, _, g1, g2 := curve.Generators()
	return &Proof{
		A: bn254.EncodeG1(&g1),
		B: bn254.EncodeG2(&g2),
		C: bn254.EncodeG1(&g1),
	}
}

func signals(n int) []*big.Int {
	out := make([]*big.Int, n)
	for i := range out {
		out[i] = big.NewInt(int64(i + 1))
	}
	return out
}

func TestVKHashDeterministic(t *testing.T) {
	vk := dummyVK(6)
	if vk.Hash() != vk.Hash() {
		t.Fatal("hash must be deterministic")
	}
}

func TestVKHashSensitivity(t *testing.T) {
	a := dummyVK(6)
	b := dummyVK(6)
	b.IC[5][63] ^= 1

	if a.Hash() == b.Hash() {
		t.Fatal("a single flipped IC byte must change the digest")
	}

	c := dummyVK(6)
	c.Alpha[63] ^= 1
	if a.Hash() == c.Hash() {
		t.Fatal("a flipped alpha byte must change the digest")
	}
}

func TestAssertInField(t *testing.T) {
	if err := AssertInField(big.NewInt(12345)); err != nil {
		t.Fatalf("small scalar: %v", err)
	}
	if err := AssertInField(bn254.FrModulus()); !errors.Is(err, protocol.ErrSignalNotInField) {
		t.Fatalf("r itself: got %v, want SignalNotInField", err)
	}
}

func TestValidateNullifier(t *testing.T) {
	if err := ValidateNullifier(big.NewInt(12345)); err != nil {
		t.Fatalf("valid nullifier: %v", err)
	}
	if err := ValidateNullifier(big.NewInt(0)); !errors.Is(err, protocol.ErrInvalidNullifier) {
		t.Fatalf("zero nullifier: got %v, want InvalidNullifier", err)
	}
	if err := ValidateNullifier(bn254.FrModulus()); !errors.Is(err, protocol.ErrSignalNotInField) {
		t.Fatalf("nullifier = r: got %v, want SignalNotInField", err)
	}
}

func TestVerifyRejectsICLengthMismatch(t *testing.T) {
	vk := dummyVK(6)
	if Verify(vk, dummyProof(), signals(4)) {
		t.Fatal("|IC| != |signals|+1 must fail")
	}
	if Verify(vk, dummyProof(), signals(6)) {
		t.Fatal("|IC| != |signals|+1 must fail")
	}
}

func TestVerifyRejectsOutOfFieldSignal(t *testing.T) {
	vk := dummyVK(6)
	sig := signals(5)
	sig[2] = new(big.Int).Set(bn254.FrModulus())
	if Verify(vk, dummyProof(), sig) {
		t.Fatal("signal = r must fail")
	}
}

func TestVerifyRejectsUndecodableProofPoint(t *testing.T) {
	vk := dummyVK(6)

	proof := dummyProof()
	proof.A = [bn254.G1Len]byte{} // infinity is fine
	proof.A[31] = 1               // x = 1, y = 0: invalid encoding
	if Verify(vk, proof, signals(5)) {
		t.Fatal("undecodable A must fail")
	}

	proof = dummyProof()
	for i := range proof.B {
		proof.B[i] = 0xff // coordinates >= p
	}
	if Verify(vk, proof, signals(5)) {
		t.Fatal("undecodable B must fail")
	}
}

func TestVerifyRejectsGeneratorProof(t *testing.T) {
	// Syntactically valid points that do not satisfy the Groth16 identity.
	vk := dummyVK(6)
	if Verify(vk, dummyProof(), signals(5)) {
		t.Fatal("generator-built proof must not verify")
	}
}
