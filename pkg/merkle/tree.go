package merkle

import (
	"math/big"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"

	"github.com/AshFrancis/zkvote/config"
	"github.com/AshFrancis/zkvote/pkg/protocol"
)

// tree is the per-DAO incremental Merkle state. All mutation goes through
// the Accumulator, which holds the lock and performs authorization.
type tree struct {
	depth         int
	nextLeafIndex uint64

	// filled[i] is the most recent left-child hash at level i (the
	// right-incremental frontier used by insert).
	filled []*big.Int

	// roots is the bounded FIFO history; roots[len-1] is the current root.
	roots []*big.Int

	// leaves holds the inserted leaf values by index; a revoked leaf is
	// zeroed in place. Needed to recompute paths on revocation and to
	// extract circuit witnesses.
	leaves []*big.Int

	leafIndex    map[string]uint64
	revoked      map[string]bool
	revokedAt    map[string]uint64
	reinstatedAt map[string]uint64

	// minValidRootIndex is the lowest root-history index acceptable in
	// trailing mode; advanced past pre-revocation roots on removal.
	minValidRootIndex int
}

// leafKey canonicalizes a field element for map lookup.
func leafKey(v *big.Int) string {
	var e fr.Element
	e.SetBigInt(v)
	b := e.Bytes()
	return string(b[:])
}

func newTree(depth int) *tree {
	t := &tree{
		depth:        depth,
		filled:       make([]*big.Int, depth),
		leafIndex:    make(map[string]uint64),
		revoked:      make(map[string]bool),
		revokedAt:    make(map[string]uint64),
		reinstatedAt: make(map[string]uint64),
	}
	for i := 0; i < depth; i++ {
		t.filled[i] = ZeroAtLevel(i)
	}
	t.roots = []*big.Int{EmptyRoot(depth)}
	return t
}

func (t *tree) capacity() uint64 {
	return uint64(1) << t.depth
}

func (t *tree) currentRoot() *big.Int {
	return t.roots[len(t.roots)-1]
}

// pushRoot appends to the history, evicting the oldest entry beyond the cap.
// Eviction shifts indices down. minValidRootIndex shifts with them (floored
// at 0) so it keeps pointing at the same root; the earliest-root indices
// stored in proposals do not shift, which only ever tightens that comparison.
func (t *tree) pushRoot(root *big.Int) {
	t.roots = append(t.roots, root)
	if len(t.roots) > config.MaxRoots {
		overflow := len(t.roots) - config.MaxRoots
		t.roots = t.roots[overflow:]
		t.minValidRootIndex -= overflow
		if t.minValidRootIndex < 0 {
			t.minValidRootIndex = 0
		}
	}
}

// rootIndex returns the position of root in the history. When a value
// occurs more than once (a reinstatement can reproduce a pre-revocation
// root) the last occurrence wins, so the fresh occurrence clears the
// min-valid watermark.
func (t *tree) rootIndex(root *big.Int) (int, bool) {
	for i := len(t.roots) - 1; i >= 0; i-- {
		if t.roots[i].Cmp(root) == 0 {
			return i, true
		}
	}
	return 0, false
}

// insert appends a leaf using the right-incremental frontier and returns the
// new root.
func (t *tree) insert(commitment *big.Int) (*big.Int, error) {
	key := leafKey(commitment)
	if _, ok := t.leafIndex[key]; ok {
		return nil, protocol.ErrDuplicateCommitment
	}
	if t.nextLeafIndex >= t.capacity() {
		return nil, protocol.ErrTreeFull
	}

	h := new(big.Int).Set(commitment)
	idx := t.nextLeafIndex
	for i := 0; i < t.depth; i++ {
		if idx%2 == 0 {
			t.filled[i] = h
			h = HashChildren(h, ZeroAtLevel(i))
		} else {
			h = HashChildren(t.filled[i], h)
		}
		idx /= 2
	}

	t.pushRoot(h)
	t.leafIndex[key] = t.nextLeafIndex
	t.leaves = append(t.leaves, new(big.Int).Set(commitment))
	t.nextLeafIndex++
	return h, nil
}

// revoke zeroes the leaf in place, recomputes the tree and advances the
// min-valid watermark past all pre-revocation roots. The leaf slot and
// leafIndex entry survive so the commitment can never be re-inserted.
func (t *tree) revoke(commitment *big.Int, now uint64) (*big.Int, error) {
	key := leafKey(commitment)
	idx, ok := t.leafIndex[key]
	if !ok {
		return nil, protocol.ErrCommitmentNotFound
	}
	if t.revoked[key] {
		return nil, protocol.ErrCommitmentRevoked
	}

	t.leaves[idx] = big.NewInt(0)
	root := t.recompute()
	t.pushRoot(root)
	t.minValidRootIndex = len(t.roots) - 1

	t.revoked[key] = true
	t.revokedAt[key] = now
	return root, nil
}

// reinstate restores the original leaf value at its original index.
func (t *tree) reinstate(commitment *big.Int, now uint64) (*big.Int, error) {
	key := leafKey(commitment)
	idx, ok := t.leafIndex[key]
	if !ok {
		return nil, protocol.ErrCommitmentNotFound
	}
	if !t.revoked[key] {
		return nil, protocol.ErrNotRevoked
	}

	t.leaves[idx] = new(big.Int).Set(commitment)
	root := t.recompute()
	t.pushRoot(root)

	t.revoked[key] = false
	t.reinstatedAt[key] = now
	return root, nil
}

// recompute rebuilds the root and the frontier from the stored leaves.
// Insertion never needs this; revocation and reinstatement do, because
// zeroing a leaf invalidates completed-subtree hashes the frontier caches.
func (t *tree) recompute() *big.Int {
	n := int(t.nextLeafIndex)
	if n == 0 {
		for i := 0; i < t.depth; i++ {
			t.filled[i] = ZeroAtLevel(i)
		}
		return EmptyRoot(t.depth)
	}

	level := make([]*big.Int, n)
	copy(level, t.leaves)

	for i := 0; i < t.depth; i++ {
		// Refresh the frontier entry at this level. The path of the last
		// inserted leaf identifies which node insert would read next: the
		// node itself when its index is even, its completed left sibling
		// when odd.
		j := (t.nextLeafIndex - 1) >> uint(i)
		if j%2 == 0 {
			t.filled[i] = level[j]
		} else {
			t.filled[i] = level[j-1]
		}

		next := make([]*big.Int, (len(level)+1)/2)
		for k := range next {
			left := level[2*k]
			right := ZeroAtLevel(i)
			if 2*k+1 < len(level) {
				right = level[2*k+1]
			}
			next[k] = HashChildren(left, right)
		}
		level = next
	}

	return level[0]
}

// path returns the sibling hashes and position bits for the leaf at idx,
// computed from the current leaf values. bits[i] = 1 means the node at
// level i is a right child (sibling on the left).
func (t *tree) path(idx uint64) ([]*big.Int, []int) {
	n := int(t.nextLeafIndex)
	level := make([]*big.Int, n)
	copy(level, t.leaves)

	siblings := make([]*big.Int, t.depth)
	bits := make([]int, t.depth)

	pos := idx
	for i := 0; i < t.depth; i++ {
		var sibIdx uint64
		if pos%2 == 0 {
			sibIdx = pos + 1
			bits[i] = 0
		} else {
			sibIdx = pos - 1
			bits[i] = 1
		}
		if sibIdx < uint64(len(level)) {
			siblings[i] = level[sibIdx]
		} else {
			siblings[i] = ZeroAtLevel(i)
		}

		next := make([]*big.Int, (len(level)+1)/2)
		for k := range next {
			left := level[2*k]
			right := ZeroAtLevel(i)
			if 2*k+1 < len(level) {
				right = level[2*k+1]
			}
			next[k] = HashChildren(left, right)
		}
		level = next
		pos /= 2
	}

	return siblings, bits
}
