// Package crypto derives the voter-side field elements: the membership
// commitment and the per-proposal nullifier. Both mirror the vote circuit's
// Poseidon2 hashing exactly, so host-side derivations and in-circuit
// recomputations agree.
package crypto

import (
	"crypto/rand"
	"math/big"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr/poseidon2"
)

// hashElements hashes field elements with Poseidon2, writing each input in
// canonical 32-byte fr.Element encoding (a zero value writes 32 zero bytes,
// matching the circuit).
func hashElements(inputs ...*big.Int) *big.Int {
	h := poseidon2.NewMerkleDamgardHasher()
	for _, in := range inputs {
		var e fr.Element
		e.SetBigInt(in)
		b := e.Bytes()
		h.Write(b[:])
	}
	return new(big.Int).SetBytes(h.Sum(nil))
}

// GenerateSecret generates a random non-zero BN254 scalar field element.
func GenerateSecret() (*big.Int, error) {
	for {
		s, err := rand.Int(rand.Reader, ecc.BN254.ScalarField())
		if err != nil {
			return nil, err
		}
		if s.Sign() != 0 {
			return s, nil
		}
	}
}

// GenerateSalt generates a random BN254 scalar field element.
func GenerateSalt() (*big.Int, error) {
	return rand.Int(rand.Reader, ecc.BN254.ScalarField())
}

// DeriveCommitment computes commitment = H(secret, salt), matching the
// circuit. The commitment is the public leaf registered in the membership
// tree.
func DeriveCommitment(secret, salt *big.Int) *big.Int {
	return hashElements(secret, salt)
}

// DeriveNullifier computes nullifier = H(secret, daoId, proposalId),
// matching the circuit. Including daoId separates nullifier domains across
// DAOs so votes cannot be linked between them.
func DeriveNullifier(secret *big.Int, daoID, proposalID uint64) *big.Int {
	return hashElements(secret, new(big.Int).SetUint64(daoID), new(big.Int).SetUint64(proposalID))
}
