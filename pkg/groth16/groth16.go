// Package groth16 verifies Groth16 proofs over BN254 against verification
// keys stored in the canonical wire layout. It is the shared verification
// library for the vote engine and the comment store.
package groth16

import (
	"crypto/sha256"
	"math/big"

	curve "github.com/consensys/gnark-crypto/ecc/bn254"

	"github.com/AshFrancis/zkvote/pkg/bn254"
	"github.com/AshFrancis/zkvote/pkg/protocol"
)

// VerificationKey holds a Groth16 verification key in canonical bytes.
// IC has length |public signals| + 1; IC[0] is the constant term.
type VerificationKey struct {
	Alpha [bn254.G1Len]byte
	Beta  [bn254.G2Len]byte
	Gamma [bn254.G2Len]byte
	Delta [bn254.G2Len]byte
	IC    [][bn254.G1Len]byte
}

// Proof is a Groth16 proof: A, C in G1 and B in G2.
type Proof struct {
	A [bn254.G1Len]byte
	B [bn254.G2Len]byte
	C [bn254.G1Len]byte
}

// Hash digests the key as sha256(alpha ‖ beta ‖ gamma ‖ delta ‖ ic[0] ‖ …).
// Proposals snapshot this digest so a later VK rotation cannot silently
// change what an in-flight proposal verifies against.
func (vk *VerificationKey) Hash() [32]byte {
	h := sha256.New()
	h.Write(vk.Alpha[:])
	h.Write(vk.Beta[:])
	h.Write(vk.Gamma[:])
	h.Write(vk.Delta[:])
	for i := range vk.IC {
		h.Write(vk.IC[i][:])
	}
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// AssertInField rejects scalars outside [0, r).
func AssertInField(v *big.Int) error {
	if !bn254.IsInField(v) {
		return protocol.ErrSignalNotInField
	}
	return nil
}

// ValidateNullifier rejects zero or out-of-field nullifiers.
func ValidateNullifier(n *big.Int) error {
	if n.Sign() == 0 {
		return protocol.ErrInvalidNullifier
	}
	return AssertInField(n)
}

// Verify checks the Groth16 identity
//
//	e(-A, B) · e(alpha, beta) · e(vk_x, gamma) · e(C, delta) = 1
//
// with vk_x = IC[0] + Σ publicSignals[i]·IC[i+1]. Every failure path —
// shape mismatch, out-of-field signal, undecodable point, failed pairing —
// reports false; there is no silent success.
func Verify(vk *VerificationKey, proof *Proof, publicSignals []*big.Int) bool {
	if len(vk.IC) != len(publicSignals)+1 {
		return false
	}
	for _, s := range publicSignals {
		if !bn254.IsInField(s) {
			return false
		}
	}

	a, err := bn254.DecodeG1(proof.A)
	if err != nil {
		return false
	}
	b, err := bn254.DecodeG2(proof.B)
	if err != nil {
		return false
	}
	c, err := bn254.DecodeG1(proof.C)
	if err != nil {
		return false
	}
	alpha, err := bn254.DecodeG1(vk.Alpha)
	if err != nil {
		return false
	}
	beta, err := bn254.DecodeG2(vk.Beta)
	if err != nil {
		return false
	}
	gamma, err := bn254.DecodeG2(vk.Gamma)
	if err != nil {
		return false
	}
	delta, err := bn254.DecodeG2(vk.Delta)
	if err != nil {
		return false
	}

	// vk_x = IC[0] + sum(publicSignals[i] * IC[i+1])
	vkX, err := bn254.DecodeG1(vk.IC[0])
	if err != nil {
		return false
	}
	for i, s := range publicSignals {
		ic, err := bn254.DecodeG1(vk.IC[i+1])
		if err != nil {
			return false
		}
		vkX = bn254.Add(vkX, bn254.ScalarMul(ic, s))
	}

	negA := bn254.Neg(a)

	return bn254.PairingCheck(
		[]curve.G1Affine{*negA, *alpha, *vkX, *c},
		[]curve.G2Affine{*b, *beta, *gamma, *delta},
	)
}
