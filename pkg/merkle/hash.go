package merkle

import (
	"math/big"
	"sync"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr/poseidon2"

	"github.com/AshFrancis/zkvote/config"
)

// HashChildren hashes two tree nodes into their parent with Poseidon2.
// Inputs are converted to canonical 32-byte fr.Element encoding so that a
// zero value writes 32 zero bytes (matching the circuit) instead of the
// empty slice returned by big.Int.Bytes().
func HashChildren(left, right *big.Int) *big.Int {
	h := poseidon2.NewMerkleDamgardHasher()

	var lFr, rFr fr.Element
	lFr.SetBigInt(left)
	rFr.SetBigInt(right)

	lBytes := lFr.Bytes()
	rBytes := rFr.Bytes()
	h.Write(lBytes[:])
	h.Write(rBytes[:])

	return new(big.Int).SetBytes(h.Sum(nil))
}

// Zero-subtree hash chain, shared by every DAO tree:
//
//	zeros[0] = 0
//	zeros[i+1] = HashChildren(zeros[i], zeros[i])
//
// Populated lazily on first use, up to the maximum supported depth.
var (
	zerosOnce sync.Once
	zeros     [config.MaxTreeDepth + 1]*big.Int
)

func ensureZeros() {
	zerosOnce.Do(func() {
		zeros[0] = big.NewInt(0)
		for i := 1; i <= config.MaxTreeDepth; i++ {
			zeros[i] = HashChildren(zeros[i-1], zeros[i-1])
		}
	})
}

// ZeroAtLevel returns the hash of an all-empty subtree at the given level.
func ZeroAtLevel(level int) *big.Int {
	ensureZeros()
	return zeros[level]
}

// EmptyRoot returns the root of an empty tree of the given depth.
func EmptyRoot(depth int) *big.Int {
	return ZeroAtLevel(depth)
}
