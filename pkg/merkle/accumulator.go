// Package merkle implements the per-DAO membership accumulator: a
// fixed-depth incremental Merkle tree over the BN254 scalar field, hashed
// with Poseidon2, with a bounded FIFO root history, in-place leaf zeroing
// for member revocation, and a minimum-valid-root watermark consumed by
// trailing-mode vote eligibility.
package merkle

import (
	"math/big"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/AshFrancis/zkvote/config"
	"github.com/AshFrancis/zkvote/pkg/bn254"
	"github.com/AshFrancis/zkvote/pkg/dao"
	"github.com/AshFrancis/zkvote/pkg/protocol"
)

// TreeInitEvent is published when a DAO initializes its tree.
type TreeInitEvent struct {
	DaoID     uint64
	Depth     int
	EmptyRoot *big.Int
}

// CommitEvent is published when a commitment is inserted.
type CommitEvent struct {
	DaoID      uint64
	Commitment *big.Int
	Index      uint64
	NewRoot    *big.Int
}

// MemberRemovedEvent is published when a member's leaf is zeroed.
type MemberRemovedEvent struct {
	DaoID      uint64
	Commitment *big.Int
	NewRoot    *big.Int
}

// MemberReinstatedEvent is published when a revoked leaf is restored.
type MemberReinstatedEvent struct {
	DaoID      uint64
	Commitment *big.Int
	NewRoot    *big.Int
}

// TreeInfo summarizes a DAO tree.
type TreeInfo struct {
	Depth         int
	NextLeafIndex uint64
	Root          *big.Int
}

// Accumulator holds the membership trees of all DAOs. Authorization is
// resolved through the SBT's registry on every mutating call.
type Accumulator struct {
	mu    sync.RWMutex
	sbt   dao.SBT
	trees map[uint64]*tree

	// commitment registered per caller, so admins can revoke by address
	byAddr map[uint64]map[dao.Address]*big.Int

	now  func() uint64
	sink protocol.EventSink
	log  zerolog.Logger
}

// NewAccumulator constructs an empty accumulator. A nil sink drops events;
// a nil now defaults to the wall clock.
func NewAccumulator(sbt dao.SBT, sink protocol.EventSink, now func() uint64) *Accumulator {
	if sink == nil {
		sink = protocol.NopSink{}
	}
	if now == nil {
		now = func() uint64 { return uint64(time.Now().Unix()) }
	}
	return &Accumulator{
		sbt:    sbt,
		trees:  make(map[uint64]*tree),
		byAddr: make(map[uint64]map[dao.Address]*big.Int),
		now:    now,
		sink:   sink,
		log:    zerolog.Nop(),
	}
}

// WithLogger attaches a logger and returns the accumulator.
func (a *Accumulator) WithLogger(log zerolog.Logger) *Accumulator {
	a.log = log
	return a
}

// InitTree creates the membership tree for a DAO. Admin-authorized;
// 1 <= depth <= 32; a DAO initializes at most once.
func (a *Accumulator) InitTree(daoID uint64, depth int, admin dao.Address) error {
	if err := a.requireAdmin(daoID, admin); err != nil {
		return err
	}
	if depth < 1 || depth > config.MaxTreeDepth {
		return protocol.ErrInvalidDepth
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if _, ok := a.trees[daoID]; ok {
		return protocol.ErrAlreadyInitialized
	}
	t := newTree(depth)
	a.trees[daoID] = t

	a.log.Info().Uint64("dao", daoID).Int("depth", depth).Msg("membership tree initialized")
	a.sink.Publish(TreeInitEvent{DaoID: daoID, Depth: depth, EmptyRoot: t.currentRoot()})
	return nil
}

// RegisterWithCaller inserts a commitment for an SBT-holding member.
func (a *Accumulator) RegisterWithCaller(daoID uint64, commitment *big.Int, caller dao.Address) error {
	if !a.sbt.Has(daoID, caller) {
		return protocol.ErrNotDaoMember
	}
	return a.register(daoID, commitment, caller)
}

// SelfRegister inserts a commitment without an SBT check; only DAOs with
// open membership allow it.
func (a *Accumulator) SelfRegister(daoID uint64, commitment *big.Int, caller dao.Address) error {
	if !a.sbt.Registry().IsMembershipOpen(daoID) {
		return protocol.ErrUnauthorized
	}
	return a.register(daoID, commitment, caller)
}

func (a *Accumulator) register(daoID uint64, commitment *big.Int, caller dao.Address) error {
	if !bn254.IsInField(commitment) {
		return protocol.ErrSignalNotInField
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	t, ok := a.trees[daoID]
	if !ok {
		return protocol.ErrTreeNotInitialized
	}

	index := t.nextLeafIndex
	root, err := t.insert(commitment)
	if err != nil {
		return err
	}

	if a.byAddr[daoID] == nil {
		a.byAddr[daoID] = make(map[dao.Address]*big.Int)
	}
	a.byAddr[daoID][caller] = new(big.Int).Set(commitment)

	a.log.Debug().Uint64("dao", daoID).Uint64("index", index).Msg("commitment registered")
	a.sink.Publish(CommitEvent{DaoID: daoID, Commitment: commitment, Index: index, NewRoot: root})
	return nil
}

// RemoveMember zeroes the leaf registered by addr. Admin-authorized. The
// post-revocation root becomes the minimum valid root for trailing-mode
// eligibility.
func (a *Accumulator) RemoveMember(daoID uint64, addr dao.Address, admin dao.Address) error {
	if err := a.requireAdmin(daoID, admin); err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	t, ok := a.trees[daoID]
	if !ok {
		return protocol.ErrTreeNotInitialized
	}
	commitment, ok := a.byAddr[daoID][addr]
	if !ok {
		return protocol.ErrCommitmentNotFound
	}

	root, err := t.revoke(commitment, a.now())
	if err != nil {
		return err
	}

	a.log.Info().Uint64("dao", daoID).Str("member", string(addr)).Msg("member removed")
	a.sink.Publish(MemberRemovedEvent{DaoID: daoID, Commitment: commitment, NewRoot: root})
	return nil
}

// ReinstateMember restores a revoked member's leaf. Admin-authorized.
func (a *Accumulator) ReinstateMember(daoID uint64, addr dao.Address, admin dao.Address) error {
	if err := a.requireAdmin(daoID, admin); err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	t, ok := a.trees[daoID]
	if !ok {
		return protocol.ErrTreeNotInitialized
	}
	commitment, ok := a.byAddr[daoID][addr]
	if !ok {
		return protocol.ErrCommitmentNotFound
	}

	root, err := t.reinstate(commitment, a.now())
	if err != nil {
		return err
	}

	a.log.Info().Uint64("dao", daoID).Str("member", string(addr)).Msg("member reinstated")
	a.sink.Publish(MemberReinstatedEvent{DaoID: daoID, Commitment: commitment, NewRoot: root})
	return nil
}

// CurrentRoot returns the newest root in the history.
func (a *Accumulator) CurrentRoot(daoID uint64) (*big.Int, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	t, ok := a.trees[daoID]
	if !ok {
		return nil, protocol.ErrTreeNotInitialized
	}
	return t.currentRoot(), nil
}

// RootOk reports whether root appears in the bounded history.
func (a *Accumulator) RootOk(daoID uint64, root *big.Int) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()

	t, ok := a.trees[daoID]
	if !ok {
		return false
	}
	_, ok = t.rootIndex(root)
	return ok
}

// RootIndex returns the history position of root, if present.
func (a *Accumulator) RootIndex(daoID uint64, root *big.Int) (int, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	t, ok := a.trees[daoID]
	if !ok {
		return 0, false
	}
	return t.rootIndex(root)
}

// MinValidRootIndex returns the trailing-mode watermark; 0 until a member
// is removed.
func (a *Accumulator) MinValidRootIndex(daoID uint64) int {
	a.mu.RLock()
	defer a.mu.RUnlock()

	t, ok := a.trees[daoID]
	if !ok {
		return 0
	}
	return t.minValidRootIndex
}

// LeafIndex returns the index a commitment was inserted at.
func (a *Accumulator) LeafIndex(daoID uint64, commitment *big.Int) (uint64, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	t, ok := a.trees[daoID]
	if !ok {
		return 0, false
	}
	idx, ok := t.leafIndex[leafKey(commitment)]
	return idx, ok
}

// RevokedAt returns the Unix timestamp of the most recent revocation.
func (a *Accumulator) RevokedAt(daoID uint64, commitment *big.Int) (uint64, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	t, ok := a.trees[daoID]
	if !ok {
		return 0, false
	}
	ts, ok := t.revokedAt[leafKey(commitment)]
	return ts, ok
}

// ReinstatedAt returns the Unix timestamp of the most recent reinstatement.
func (a *Accumulator) ReinstatedAt(daoID uint64, commitment *big.Int) (uint64, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	t, ok := a.trees[daoID]
	if !ok {
		return 0, false
	}
	ts, ok := t.reinstatedAt[leafKey(commitment)]
	return ts, ok
}

// IsRevoked reports whether a commitment is currently revoked, i.e. revoked
// and not reinstated since.
func (a *Accumulator) IsRevoked(daoID uint64, commitment *big.Int) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()

	t, ok := a.trees[daoID]
	if !ok {
		return false
	}
	return t.revoked[leafKey(commitment)]
}

// GetTreeInfo returns depth, next leaf index and current root.
func (a *Accumulator) GetTreeInfo(daoID uint64) (TreeInfo, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	t, ok := a.trees[daoID]
	if !ok {
		return TreeInfo{}, protocol.ErrTreeNotInitialized
	}
	return TreeInfo{Depth: t.depth, NextLeafIndex: t.nextLeafIndex, Root: t.currentRoot()}, nil
}

// MerklePath returns the sibling hashes and position bits proving the
// commitment's leaf against the current root, for witness preparation.
func (a *Accumulator) MerklePath(daoID uint64, commitment *big.Int) ([]*big.Int, []int, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	t, ok := a.trees[daoID]
	if !ok {
		return nil, nil, protocol.ErrTreeNotInitialized
	}
	idx, ok := t.leafIndex[leafKey(commitment)]
	if !ok {
		return nil, nil, protocol.ErrCommitmentNotFound
	}
	siblings, bits := t.path(idx)
	return siblings, bits, nil
}

func (a *Accumulator) requireAdmin(daoID uint64, admin dao.Address) error {
	daoAdmin, err := a.sbt.Registry().GetAdmin(daoID)
	if err != nil {
		return err
	}
	if daoAdmin != admin {
		return protocol.ErrNotAdmin
	}
	return nil
}
