package vote

import (
	"fmt"
	"math/big"

	"github.com/AshFrancis/zkvote/pkg/crypto"
	"github.com/AshFrancis/zkvote/pkg/merkle"
)

// WitnessResult holds the populated circuit assignment plus the derived
// public values callers need when submitting the vote to the host.
type WitnessResult struct {
	Assignment VoteCircuit
	Commitment *big.Int
	Nullifier  *big.Int
	Root       *big.Int
}

// PrepareWitness derives all witness values from the voter's secret and the
// Merkle path of their commitment. siblings and pathBits come from the
// accumulator's MerklePath and must have exactly TreeDepth entries.
func PrepareWitness(secret, salt *big.Int, daoID, proposalID uint64, choice bool, siblings []*big.Int, pathBits []int) (*WitnessResult, error) {
	if len(siblings) != TreeDepth || len(pathBits) != TreeDepth {
		return nil, fmt.Errorf("merkle path has %d levels, circuit expects %d", len(siblings), TreeDepth)
	}

	commitment := crypto.DeriveCommitment(secret, salt)
	nullifier := crypto.DeriveNullifier(secret, daoID, proposalID)

	// Fold the path host-side to obtain the root the proof will claim.
	root := new(big.Int).Set(commitment)
	for i := 0; i < TreeDepth; i++ {
		if pathBits[i] == 0 {
			root = merkle.HashChildren(root, siblings[i])
		} else {
			root = merkle.HashChildren(siblings[i], root)
		}
	}

	choiceSignal := big.NewInt(0)
	if choice {
		choiceSignal = big.NewInt(1)
	}

	var assignment VoteCircuit
	assignment.Root = root
	assignment.Nullifier = nullifier
	assignment.DaoID = new(big.Int).SetUint64(daoID)
	assignment.ProposalID = new(big.Int).SetUint64(proposalID)
	assignment.Choice = choiceSignal
	assignment.Secret = secret
	assignment.Salt = salt
	for i := 0; i < TreeDepth; i++ {
		assignment.Siblings[i] = siblings[i]
		assignment.PathBits[i] = big.NewInt(int64(pathBits[i]))
	}

	return &WitnessResult{
		Assignment: assignment,
		Commitment: commitment,
		Nullifier:  nullifier,
		Root:       root,
	}, nil
}
