package merkle

import (
	"errors"
	"math/big"
	"testing"

	"github.com/AshFrancis/zkvote/config"
	"github.com/AshFrancis/zkvote/pkg/dao"
	"github.com/AshFrancis/zkvote/pkg/protocol"
)

const (
	testAdmin  = dao.Address("admin")
	testMember = dao.Address("member")
)

// testClock is a deterministic, strictly increasing Unix clock.
type testClock struct{ t uint64 }

func (c *testClock) now() uint64 {
	c.t++
	return 1_000_000 + c.t
}

// newTestAccumulator wires a registry, an SBT with one minted member, and an
// accumulator with a deterministic clock. Returns the DAO id.
func newTestAccumulator(t *testing.T) (*Accumulator, *dao.MemoryRegistry, *dao.MemorySBT, uint64) {
	t.Helper()

	registry := dao.NewMemoryRegistry(nil)
	sbt := dao.NewMemorySBT(registry, nil)
	daoID, err := registry.CreateDao("Test DAO", testAdmin, false)
	if err != nil {
		t.Fatalf("create dao: %v", err)
	}
	if err := sbt.Mint(daoID, testMember, testAdmin); err != nil {
		t.Fatalf("mint sbt: %v", err)
	}

	clock := &testClock{}
	return NewAccumulator(sbt, nil, clock.now), registry, sbt, daoID
}

func mustInit(t *testing.T, acc *Accumulator, daoID uint64, depth int) {
	t.Helper()
	if err := acc.InitTree(daoID, depth, testAdmin); err != nil {
		t.Fatalf("init tree: %v", err)
	}
}

func mustRegister(t *testing.T, acc *Accumulator, daoID uint64, commitment *big.Int) {
	t.Helper()
	if err := acc.RegisterWithCaller(daoID, commitment, testMember); err != nil {
		t.Fatalf("register %v: %v", commitment, err)
	}
}

// reconstructRoot recomputes the root bottom-up from the raw leaf values,
// independently of the incremental frontier.
func reconstructRoot(leaves []*big.Int, depth int) *big.Int {
	level := append([]*big.Int(nil), leaves...)
	for i := 0; i < depth; i++ {
		next := make([]*big.Int, 0, (len(level)+1)/2)
		for j := 0; j < len(level); j += 2 {
			right := ZeroAtLevel(i)
			if j+1 < len(level) {
				right = level[j+1]
			}
			next = append(next, HashChildren(level[j], right))
		}
		if len(next) == 0 {
			next = append(next, ZeroAtLevel(i+1))
		}
		level = next
	}
	return level[0]
}

func TestHashChildrenMatchesZerosChain(t *testing.T) {
	zero := big.NewInt(0)
	h := HashChildren(zero, zero)
	if h.Cmp(ZeroAtLevel(1)) != 0 {
		t.Fatal("zeros[1] != H(0, 0)")
	}
	if EmptyRoot(2).Cmp(HashChildren(h, h)) != 0 {
		t.Fatal("zeros[2] != H(zeros[1], zeros[1])")
	}
}

func TestInitTreeValidation(t *testing.T) {
	acc, _, _, daoID := newTestAccumulator(t)

	if err := acc.InitTree(daoID, 0, testAdmin); !errors.Is(err, protocol.ErrInvalidDepth) {
		t.Fatalf("depth 0: got %v, want InvalidDepth", err)
	}
	if err := acc.InitTree(daoID, config.MaxTreeDepth+1, testAdmin); !errors.Is(err, protocol.ErrInvalidDepth) {
		t.Fatalf("depth 33: got %v, want InvalidDepth", err)
	}
	if err := acc.InitTree(daoID, 5, testMember); !errors.Is(err, protocol.ErrNotAdmin) {
		t.Fatalf("non-admin init: got %v, want NotAdmin", err)
	}

	mustInit(t, acc, daoID, 5)
	if err := acc.InitTree(daoID, 5, testAdmin); !errors.Is(err, protocol.ErrAlreadyInitialized) {
		t.Fatalf("double init: got %v, want AlreadyInitialized", err)
	}
}

func TestInitTreeEmptyRoot(t *testing.T) {
	acc, _, _, daoID := newTestAccumulator(t)
	mustInit(t, acc, daoID, 5)

	root, err := acc.CurrentRoot(daoID)
	if err != nil {
		t.Fatalf("current root: %v", err)
	}
	if root.Cmp(EmptyRoot(5)) != 0 {
		t.Fatal("empty tree root must equal zeros[depth]")
	}

	info, err := acc.GetTreeInfo(daoID)
	if err != nil {
		t.Fatalf("tree info: %v", err)
	}
	if info.Depth != 5 || info.NextLeafIndex != 0 {
		t.Fatalf("tree info = %+v", info)
	}
}

func TestRegisterRequiresInitializedTree(t *testing.T) {
	acc, _, _, daoID := newTestAccumulator(t)
	err := acc.RegisterWithCaller(daoID, big.NewInt(42), testMember)
	if !errors.Is(err, protocol.ErrTreeNotInitialized) {
		t.Fatalf("got %v, want TreeNotInitialized", err)
	}
}

func TestRegisterAuthorization(t *testing.T) {
	acc, _, _, daoID := newTestAccumulator(t)
	mustInit(t, acc, daoID, 5)

	err := acc.RegisterWithCaller(daoID, big.NewInt(42), dao.Address("stranger"))
	if !errors.Is(err, protocol.ErrNotDaoMember) {
		t.Fatalf("non-member register: got %v, want NotDaoMember", err)
	}

	// Closed-membership DAO rejects self-registration.
	err = acc.SelfRegister(daoID, big.NewInt(42), dao.Address("stranger"))
	if !errors.Is(err, protocol.ErrUnauthorized) {
		t.Fatalf("self-register closed dao: got %v, want Unauthorized", err)
	}
}

func TestSelfRegisterOpenMembership(t *testing.T) {
	registry := dao.NewMemoryRegistry(nil)
	sbt := dao.NewMemorySBT(registry, nil)
	daoID, err := registry.CreateDao("Open DAO", testAdmin, true)
	if err != nil {
		t.Fatalf("create dao: %v", err)
	}
	acc := NewAccumulator(sbt, nil, nil)
	mustInit(t, acc, daoID, 4)

	if err := acc.SelfRegister(daoID, big.NewInt(77), dao.Address("anyone")); err != nil {
		t.Fatalf("self-register open dao: %v", err)
	}
	if _, ok := acc.LeafIndex(daoID, big.NewInt(77)); !ok {
		t.Fatal("leaf index missing after self-register")
	}
}

func TestInsertUpdatesRootAndIndex(t *testing.T) {
	acc, _, _, daoID := newTestAccumulator(t)
	mustInit(t, acc, daoID, 5)

	empty, _ := acc.CurrentRoot(daoID)

	c := big.NewInt(12345)
	mustRegister(t, acc, daoID, c)

	root, _ := acc.CurrentRoot(daoID)
	if root.Cmp(empty) == 0 {
		t.Fatal("insert must change the root")
	}
	idx, ok := acc.LeafIndex(daoID, c)
	if !ok || idx != 0 {
		t.Fatalf("leaf index = %d, %v; want 0, true", idx, ok)
	}

	// Old root stays in history.
	if !acc.RootOk(daoID, empty) {
		t.Fatal("pre-insert root must remain in history")
	}
}

func TestInsertRejectsDuplicate(t *testing.T) {
	acc, _, _, daoID := newTestAccumulator(t)
	mustInit(t, acc, daoID, 5)

	c := big.NewInt(12345)
	mustRegister(t, acc, daoID, c)
	err := acc.RegisterWithCaller(daoID, c, testMember)
	if !errors.Is(err, protocol.ErrDuplicateCommitment) {
		t.Fatalf("got %v, want DuplicateCommitment", err)
	}
}

func TestInsertRejectsOutOfFieldCommitment(t *testing.T) {
	acc, _, _, daoID := newTestAccumulator(t)
	mustInit(t, acc, daoID, 5)

	r := new(big.Int).Lsh(big.NewInt(1), 254) // > r
	err := acc.RegisterWithCaller(daoID, r, testMember)
	if !errors.Is(err, protocol.ErrSignalNotInField) {
		t.Fatalf("got %v, want SignalNotInField", err)
	}
}

func TestDepthOneCapacity(t *testing.T) {
	acc, _, _, daoID := newTestAccumulator(t)
	mustInit(t, acc, daoID, 1)

	mustRegister(t, acc, daoID, big.NewInt(1))
	mustRegister(t, acc, daoID, big.NewInt(2))

	err := acc.RegisterWithCaller(daoID, big.NewInt(3), testMember)
	if !errors.Is(err, protocol.ErrTreeFull) {
		t.Fatalf("third insert at depth 1: got %v, want TreeFull", err)
	}

	info, _ := acc.GetTreeInfo(daoID)
	if info.NextLeafIndex != 2 {
		t.Fatalf("next leaf index = %d after failed insert, want 2", info.NextLeafIndex)
	}
}

func TestInsertMatchesReconstruction(t *testing.T) {
	acc, _, _, daoID := newTestAccumulator(t)
	mustInit(t, acc, daoID, 4)

	var leaves []*big.Int
	for i := int64(1); i <= 7; i++ {
		c := big.NewInt(i * 1111)
		mustRegister(t, acc, daoID, c)
		leaves = append(leaves, c)

		root, _ := acc.CurrentRoot(daoID)
		want := reconstructRoot(leaves, 4)
		if root.Cmp(want) != 0 {
			t.Fatalf("after %d inserts: incremental root differs from bottom-up reconstruction", i)
		}
	}
}

func TestRootHistoryFIFO(t *testing.T) {
	acc, _, _, daoID := newTestAccumulator(t)
	mustInit(t, acc, daoID, 8)

	firstRoot, _ := acc.CurrentRoot(daoID) // empty root, history index 0

	// config.MaxRoots inserts push the initial root out of the window.
	for i := 0; i < config.MaxRoots; i++ {
		mustRegister(t, acc, daoID, big.NewInt(int64(1000+i)))
	}

	if acc.RootOk(daoID, firstRoot) {
		t.Fatal("oldest root must be evicted FIFO")
	}

	current, _ := acc.CurrentRoot(daoID)
	idx, ok := acc.RootIndex(daoID, current)
	if !ok || idx != config.MaxRoots-1 {
		t.Fatalf("current root index = %d, %v; want %d, true", idx, ok, config.MaxRoots-1)
	}
}

func TestRevokeChangesRootAndSetsWatermark(t *testing.T) {
	acc, _, _, daoID := newTestAccumulator(t)
	mustInit(t, acc, daoID, 5)

	c := big.NewInt(12345)
	mustRegister(t, acc, daoID, c)
	rootWithMember, _ := acc.CurrentRoot(daoID)

	if err := acc.RemoveMember(daoID, testMember, testAdmin); err != nil {
		t.Fatalf("remove member: %v", err)
	}

	rootAfter, _ := acc.CurrentRoot(daoID)
	if rootAfter.Cmp(rootWithMember) == 0 {
		t.Fatal("revocation must change the root")
	}

	// The zeroed single-leaf tree hashes like the empty tree.
	if rootAfter.Cmp(EmptyRoot(5)) != 0 {
		t.Fatal("zeroing the only leaf must restore the empty root value")
	}

	if _, ok := acc.RevokedAt(daoID, c); !ok {
		t.Fatal("revoked_at must be set")
	}
	if !acc.IsRevoked(daoID, c) {
		t.Fatal("commitment must report revoked")
	}

	// Watermark points at the post-revocation root.
	idx, ok := acc.RootIndex(daoID, rootAfter)
	if !ok {
		t.Fatal("post-revocation root missing from history")
	}
	if got := acc.MinValidRootIndex(daoID); got != idx {
		t.Fatalf("min valid root index = %d, want %d", got, idx)
	}

	// Leaf slot is preserved: re-registration stays impossible.
	err := acc.RegisterWithCaller(daoID, c, testMember)
	if !errors.Is(err, protocol.ErrDuplicateCommitment) {
		t.Fatalf("re-register revoked commitment: got %v, want DuplicateCommitment", err)
	}
	info, _ := acc.GetTreeInfo(daoID)
	if info.NextLeafIndex != 1 {
		t.Fatalf("next leaf index = %d after revocation, want 1", info.NextLeafIndex)
	}
}

func TestRevokeUnknownMember(t *testing.T) {
	acc, _, _, daoID := newTestAccumulator(t)
	mustInit(t, acc, daoID, 5)

	err := acc.RemoveMember(daoID, dao.Address("ghost"), testAdmin)
	if !errors.Is(err, protocol.ErrCommitmentNotFound) {
		t.Fatalf("got %v, want CommitmentNotFound", err)
	}
}

func TestRevokeAuthorizationAndDoubleRevoke(t *testing.T) {
	acc, _, _, daoID := newTestAccumulator(t)
	mustInit(t, acc, daoID, 5)
	mustRegister(t, acc, daoID, big.NewInt(12345))

	if err := acc.RemoveMember(daoID, testMember, testMember); !errors.Is(err, protocol.ErrNotAdmin) {
		t.Fatalf("non-admin remove: got %v, want NotAdmin", err)
	}
	if err := acc.RemoveMember(daoID, testMember, testAdmin); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if err := acc.RemoveMember(daoID, testMember, testAdmin); !errors.Is(err, protocol.ErrCommitmentRevoked) {
		t.Fatalf("double remove: got %v, want CommitmentRevoked", err)
	}
}

func TestReinstateRestoresLeaf(t *testing.T) {
	acc, _, _, daoID := newTestAccumulator(t)
	mustInit(t, acc, daoID, 5)

	c := big.NewInt(12345)
	// RemoveMember and ReinstateMember act on testMember's last
	// registration, which is c.
	mustRegister(t, acc, daoID, big.NewInt(67890))
	mustRegister(t, acc, daoID, c)
	rootBefore, _ := acc.CurrentRoot(daoID)

	if err := acc.ReinstateMember(daoID, testMember, testAdmin); !errors.Is(err, protocol.ErrNotRevoked) {
		t.Fatalf("reinstate active member: got %v, want NotRevoked", err)
	}

	if err := acc.RemoveMember(daoID, testMember, testAdmin); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if err := acc.ReinstateMember(daoID, testMember, testAdmin); err != nil {
		t.Fatalf("reinstate: %v", err)
	}

	rootAfter, _ := acc.CurrentRoot(daoID)
	if rootAfter.Cmp(rootBefore) != 0 {
		t.Fatal("reinstatement must restore the pre-revocation root value")
	}
	if acc.IsRevoked(daoID, c) {
		t.Fatal("commitment must not report revoked after reinstatement")
	}

	revokedAt, _ := acc.RevokedAt(daoID, c)
	reinstatedAt, ok := acc.ReinstatedAt(daoID, c)
	if !ok || reinstatedAt <= revokedAt {
		t.Fatalf("reinstated_at = %d must be set and later than revoked_at = %d", reinstatedAt, revokedAt)
	}

	// The fresh occurrence of the restored root clears the watermark.
	idx, ok := acc.RootIndex(daoID, rootAfter)
	if !ok {
		t.Fatal("restored root missing from history")
	}
	if idx < acc.MinValidRootIndex(daoID) {
		t.Fatal("restored root occurrence must not predate the watermark")
	}
}

func TestRevokeReinstateCycles(t *testing.T) {
	acc, _, _, daoID := newTestAccumulator(t)
	mustInit(t, acc, daoID, 5)

	c := big.NewInt(555)
	mustRegister(t, acc, daoID, c)

	for cycle := 0; cycle < 3; cycle++ {
		if err := acc.RemoveMember(daoID, testMember, testAdmin); err != nil {
			t.Fatalf("cycle %d remove: %v", cycle, err)
		}
		if err := acc.ReinstateMember(daoID, testMember, testAdmin); err != nil {
			t.Fatalf("cycle %d reinstate: %v", cycle, err)
		}
	}

	revokedAt, _ := acc.RevokedAt(daoID, c)
	reinstatedAt, _ := acc.ReinstatedAt(daoID, c)
	if reinstatedAt <= revokedAt {
		t.Fatal("latest reinstatement must postdate latest revocation")
	}
}

func TestInsertAfterRevocationStaysConsistent(t *testing.T) {
	acc, _, _, daoID := newTestAccumulator(t)
	mustInit(t, acc, daoID, 4)

	leaves := []*big.Int{big.NewInt(101), big.NewInt(202), big.NewInt(303)}
	for _, c := range leaves {
		mustRegister(t, acc, daoID, c)
	}

	// Zero a leaf, then keep inserting: the refreshed frontier must
	// keep incremental roots in sync with bottom-up reconstruction.
	if err := acc.RemoveMember(daoID, testMember, testAdmin); err != nil {
		t.Fatalf("remove: %v", err)
	}
	// testMember registered all three; the registrant map points at the
	// last registration, so leaf 303 was zeroed.
	expect := []*big.Int{big.NewInt(101), big.NewInt(202), big.NewInt(0)}

	root, _ := acc.CurrentRoot(daoID)
	if root.Cmp(reconstructRoot(expect, 4)) != 0 {
		t.Fatal("post-revocation root differs from reconstruction")
	}

	mustRegister(t, acc, daoID, big.NewInt(404))
	expect = append(expect, big.NewInt(404))

	root, _ = acc.CurrentRoot(daoID)
	if root.Cmp(reconstructRoot(expect, 4)) != 0 {
		t.Fatal("post-revocation insert root differs from reconstruction")
	}
}

func TestMerklePathFoldsToRoot(t *testing.T) {
	acc, _, _, daoID := newTestAccumulator(t)
	mustInit(t, acc, daoID, 4)

	commitments := []*big.Int{big.NewInt(11), big.NewInt(22), big.NewInt(33)}
	for _, c := range commitments {
		mustRegister(t, acc, daoID, c)
	}
	root, _ := acc.CurrentRoot(daoID)

	for _, c := range commitments {
		siblings, bits, err := acc.MerklePath(daoID, c)
		if err != nil {
			t.Fatalf("merkle path for %v: %v", c, err)
		}
		if len(siblings) != 4 || len(bits) != 4 {
			t.Fatalf("path length = %d/%d, want 4/4", len(siblings), len(bits))
		}

		cur := new(big.Int).Set(c)
		for i := range siblings {
			if bits[i] == 0 {
				cur = HashChildren(cur, siblings[i])
			} else {
				cur = HashChildren(siblings[i], cur)
			}
		}
		if cur.Cmp(root) != 0 {
			t.Fatalf("path for %v does not fold to the current root", c)
		}
	}

	if _, _, err := acc.MerklePath(daoID, big.NewInt(999)); !errors.Is(err, protocol.ErrCommitmentNotFound) {
		t.Fatalf("path for unknown commitment: got %v, want CommitmentNotFound", err)
	}
}

func TestRootQueriesOnUninitializedDao(t *testing.T) {
	acc, _, _, _ := newTestAccumulator(t)

	if _, err := acc.CurrentRoot(999); !errors.Is(err, protocol.ErrTreeNotInitialized) {
		t.Fatalf("got %v, want TreeNotInitialized", err)
	}
	if acc.RootOk(999, big.NewInt(1)) {
		t.Fatal("root_ok on uninitialized DAO must be false")
	}
	if acc.MinValidRootIndex(999) != 0 {
		t.Fatal("min valid root index defaults to 0")
	}
}
