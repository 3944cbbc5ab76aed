package vote

import (
	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/std/hash"
	"github.com/consensys/gnark/std/permutation/poseidon2"
)

// VoteCircuit proves that the prover controls a secret whose commitment is a
// leaf of the membership tree with the public root, and binds the ballot to
// a deterministic nullifier so the host can reject double votes without
// learning which member voted.
//
// Public signal order is load-bearing: the host assembles
// [root, nullifier, daoId, proposalId, choice] when verifying.
type VoteCircuit struct {
	// Publics
	Root       frontend.Variable `gnark:"root,public"`
	Nullifier  frontend.Variable `gnark:"nullifier,public"`
	DaoID      frontend.Variable `gnark:"daoId,public"`
	ProposalID frontend.Variable `gnark:"proposalId,public"`
	Choice     frontend.Variable `gnark:"choice,public"`

	// Privates
	Secret   frontend.Variable            `gnark:"secret"`
	Salt     frontend.Variable            `gnark:"salt"`
	Siblings [TreeDepth]frontend.Variable `gnark:"siblings"`
	PathBits [TreeDepth]frontend.Variable `gnark:"pathBits"` // 0 = left child, 1 = right child
}

func (circuit *VoteCircuit) Define(api frontend.API) error {
	p, err := poseidon2.NewPoseidon2FromParameters(api, 2, 6, 50)
	if err != nil {
		return err
	}

	// 1. Secret must be non-zero; commitment = H(secret, salt).
	api.AssertIsEqual(api.IsZero(circuit.Secret), 0)

	commitHasher := hash.NewMerkleDamgardHasher(api, p, 0)
	commitHasher.Write(circuit.Secret)
	commitHasher.Write(circuit.Salt)
	commitment := commitHasher.Sum()
	commitHasher.Reset()

	// 2. Fold the Merkle path from the commitment up to the public root.
	// PathBits[i] = 1 means the running node is the right child at level i.
	current := commitment
	levelHasher := hash.NewMerkleDamgardHasher(api, p, 0)
	for i := 0; i < TreeDepth; i++ {
		api.AssertIsBoolean(circuit.PathBits[i])

		left := api.Select(circuit.PathBits[i], circuit.Siblings[i], current)
		right := api.Select(circuit.PathBits[i], current, circuit.Siblings[i])

		levelHasher.Reset()
		levelHasher.Write(left, right)
		current = levelHasher.Sum()
	}
	api.AssertIsEqual(current, circuit.Root)

	// 3. Nullifier = H(secret, daoId, proposalId). Binding daoId prevents
	// cross-DAO nullifier linkability.
	nullHasher := hash.NewMerkleDamgardHasher(api, p, 0)
	nullHasher.Write(circuit.Secret)
	nullHasher.Write(circuit.DaoID)
	nullHasher.Write(circuit.ProposalID)
	derivedNullifier := nullHasher.Sum()
	nullHasher.Reset()

	api.AssertIsEqual(circuit.Nullifier, derivedNullifier)

	// 4. The ballot is a bit.
	api.AssertIsBoolean(circuit.Choice)

	return nil
}
