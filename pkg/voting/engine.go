// Package voting implements the proposal and vote engine: per-DAO
// verification-key versioning, proposal lifecycle, and anonymous vote
// admission gated by Groth16 membership proofs against the Merkle
// accumulator.
package voting

import (
	"math/big"
	"sync"
	"time"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/rs/zerolog"

	"github.com/AshFrancis/zkvote/config"
	"github.com/AshFrancis/zkvote/pkg/dao"
	"github.com/AshFrancis/zkvote/pkg/groth16"
	"github.com/AshFrancis/zkvote/pkg/protocol"
)

// MembershipTree is the narrow accumulator view the engine consumes.
// *merkle.Accumulator satisfies it.
type MembershipTree interface {
	CurrentRoot(daoID uint64) (*big.Int, error)
	RootOk(daoID uint64, root *big.Int) bool
	RootIndex(daoID uint64, root *big.Int) (int, bool)
	MinValidRootIndex(daoID uint64) int
	IsRevoked(daoID uint64, commitment *big.Int) bool
}

type nullifierKey struct {
	daoID      uint64
	proposalID uint64
	nullifier  string
}

func nullKey(daoID, proposalID uint64, nullifier *big.Int) nullifierKey {
	var e fr.Element
	e.SetBigInt(nullifier)
	b := e.Bytes()
	return nullifierKey{daoID: daoID, proposalID: proposalID, nullifier: string(b[:])}
}

// Engine is the proposal and vote state machine for all DAOs.
type Engine struct {
	mu       sync.RWMutex
	registry dao.Registry
	sbt      dao.SBT
	tree     MembershipTree

	// vks[daoID][v-1] is verification key version v; versions are dense
	// and never pruned so in-flight proposals stay verifiable.
	vks map[uint64][]*groth16.VerificationKey

	// proposals[daoID][id-1]; ids are dense and 1-indexed per DAO.
	proposals map[uint64][]*Proposal

	nullifiers map[nullifierKey]bool

	adminOnlyPropose map[uint64]bool

	now  func() uint64
	sink protocol.EventSink
	log  zerolog.Logger

	// verifyProof is swapped out by tests that exercise admission ordering
	// without generating real proofs.
	verifyProof func(*groth16.VerificationKey, *groth16.Proof, []*big.Int) bool
}

// NewEngine constructs an engine. A nil sink drops events; a nil now
// defaults to the wall clock.
func NewEngine(registry dao.Registry, sbt dao.SBT, tree MembershipTree, sink protocol.EventSink, now func() uint64) *Engine {
	if sink == nil {
		sink = protocol.NopSink{}
	}
	if now == nil {
		now = func() uint64 { return uint64(time.Now().Unix()) }
	}
	return &Engine{
		registry:         registry,
		sbt:              sbt,
		tree:             tree,
		vks:              make(map[uint64][]*groth16.VerificationKey),
		proposals:        make(map[uint64][]*Proposal),
		nullifiers:       make(map[nullifierKey]bool),
		adminOnlyPropose: make(map[uint64]bool),
		now:              now,
		sink:             sink,
		log:              zerolog.Nop(),
		verifyProof:      groth16.Verify,
	}
}

// WithLogger attaches a logger and returns the engine.
func (e *Engine) WithLogger(log zerolog.Logger) *Engine {
	e.log = log
	return e
}

// ─── Verification keys ──────────────────────────────────────────────────────

func validateVKShape(vk *groth16.VerificationKey) error {
	if len(vk.IC) > config.MaxICLength {
		return protocol.ErrVkShapeInvalid
	}
	if len(vk.IC) != config.ExpectedICLength {
		return protocol.ErrVkShapeInvalid
	}
	return nil
}

// SetVK registers a new verification key version for a DAO. Admin-only.
// The previous versions remain queryable so proposals snapshotted against
// them keep verifying.
func (e *Engine) SetVK(daoID uint64, vk *groth16.VerificationKey, admin dao.Address) (uint32, error) {
	if err := e.requireAdmin(daoID, admin); err != nil {
		return 0, err
	}
	return e.appendVK(daoID, vk)
}

// SetVKFromRegistry registers a key on behalf of the trusted registry during
// DAO initialization; no admin check.
func (e *Engine) SetVKFromRegistry(daoID uint64, vk *groth16.VerificationKey) (uint32, error) {
	return e.appendVK(daoID, vk)
}

func (e *Engine) appendVK(daoID uint64, vk *groth16.VerificationKey) (uint32, error) {
	if err := validateVKShape(vk); err != nil {
		return 0, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.vks[daoID] = append(e.vks[daoID], vk)
	version := uint32(len(e.vks[daoID]))

	e.log.Info().Uint64("dao", daoID).Uint32("version", version).Msg("verification key set")
	e.sink.Publish(VKSetEvent{DaoID: daoID, Version: version})
	return version, nil
}

// GetVK returns the latest verification key for a DAO.
func (e *Engine) GetVK(daoID uint64) (*groth16.VerificationKey, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	versions := e.vks[daoID]
	if len(versions) == 0 {
		return nil, protocol.ErrVkNotSet
	}
	return versions[len(versions)-1], nil
}

// VKForVersion returns a historical verification key.
func (e *Engine) VKForVersion(daoID uint64, version uint32) (*groth16.VerificationKey, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.vkForVersionLocked(daoID, version)
}

func (e *Engine) vkForVersionLocked(daoID uint64, version uint32) (*groth16.VerificationKey, error) {
	versions := e.vks[daoID]
	if version < 1 || int(version) > len(versions) {
		return nil, protocol.ErrVkVersionUnknown
	}
	return versions[version-1], nil
}

// VKVersionCount returns the number of registered versions.
func (e *Engine) VKVersionCount(daoID uint64) uint32 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return uint32(len(e.vks[daoID]))
}

// ─── DAO options ────────────────────────────────────────────────────────────

// SetAdminOnlyPropose restricts proposal creation to the DAO admin.
func (e *Engine) SetAdminOnlyPropose(daoID uint64, adminOnly bool, admin dao.Address) error {
	if err := e.requireAdmin(daoID, admin); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.adminOnlyPropose[daoID] = adminOnly
	return nil
}

// ─── Proposal creation ──────────────────────────────────────────────────────

// CreateProposal opens a proposal under the DAO's latest verification key.
func (e *Engine) CreateProposal(daoID uint64, description, contentCid string, endTime uint64, creator dao.Address, mode VoteMode) (uint64, error) {
	return e.createProposal(daoID, description, contentCid, endTime, creator, mode, 0)
}

// CreateProposalWithVKVersion opens a proposal pinned to an existing
// verification key version; future versions are rejected.
func (e *Engine) CreateProposalWithVKVersion(daoID uint64, description, contentCid string, endTime uint64, creator dao.Address, mode VoteMode, version uint32) (uint64, error) {
	if version == 0 {
		return 0, protocol.ErrVkVersionUnknown
	}
	return e.createProposal(daoID, description, contentCid, endTime, creator, mode, version)
}

// createProposal authorizes the creator, bounds the inputs, snapshots the
// verification key identity and the eligible Merkle root, then persists the
// proposal Active with a dense id. version 0 selects the latest key.
func (e *Engine) createProposal(daoID uint64, description, contentCid string, endTime uint64, creator dao.Address, mode VoteMode, version uint32) (uint64, error) {
	if err := e.authorizeCreator(daoID, creator); err != nil {
		return 0, err
	}
	if len(description) > config.MaxDescriptionLen {
		return 0, protocol.ErrDescriptionTooLong
	}
	if len(contentCid) > config.MaxContentCidLen {
		return 0, protocol.ErrContentCidTooLong
	}
	if endTime != 0 && endTime <= e.now() {
		return 0, protocol.ErrInvalidEndTime
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if version == 0 {
		version = uint32(len(e.vks[daoID]))
		if version == 0 {
			return 0, protocol.ErrVkNotSet
		}
	}
	vk, err := e.vkForVersionLocked(daoID, version)
	if err != nil {
		return 0, err
	}

	eligibleRoot, err := e.tree.CurrentRoot(daoID)
	if err != nil {
		return 0, err
	}
	earliestIdx, ok := e.tree.RootIndex(daoID, eligibleRoot)
	if !ok {
		return 0, protocol.ErrRootNotInHistory
	}

	id := uint64(len(e.proposals[daoID])) + 1
	p := &Proposal{
		ID:                id,
		DaoID:             daoID,
		Description:       description,
		ContentCid:        contentCid,
		EndTime:           endTime,
		CreatedBy:         creator,
		VkVersion:         version,
		VkHash:            vk.Hash(),
		EligibleRoot:      new(big.Int).Set(eligibleRoot),
		EarliestRootIndex: earliestIdx,
		VoteMode:          mode,
		State:             Active,
	}
	e.proposals[daoID] = append(e.proposals[daoID], p)

	e.log.Info().Uint64("dao", daoID).Uint64("proposal", id).Str("mode", mode.String()).Msg("proposal created")
	e.sink.Publish(ProposalEvent{DaoID: daoID, ProposalID: id, Description: description, Creator: creator})
	return id, nil
}

func (e *Engine) authorizeCreator(daoID uint64, creator dao.Address) error {
	e.mu.RLock()
	adminOnly := e.adminOnlyPropose[daoID]
	e.mu.RUnlock()

	if adminOnly {
		return e.requireAdmin(daoID, creator)
	}
	if !e.sbt.Has(daoID, creator) {
		return protocol.ErrNotDaoMember
	}
	return nil
}

// ─── Vote admission ─────────────────────────────────────────────────────────

// Vote admits an anonymous ballot. The order of checks is material: state
// and deadline before signal bounds, eligibility before revocation, both
// before nullifier uniqueness, and the pairing check last.
func (e *Engine) Vote(daoID, proposalID uint64, choice bool, nullifier, root, commitment *big.Int, proof *groth16.Proof) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	// 1. Load proposal.
	p, err := e.proposalLocked(daoID, proposalID)
	if err != nil {
		return err
	}

	// 2. State.
	if p.State != Active {
		return protocol.ErrInvalidState
	}

	// 3. Deadline. end_time = 0 never closes.
	if p.EndTime != 0 && e.now() > p.EndTime {
		return protocol.ErrVotingClosed
	}

	// 4. Public-signal field bounds.
	if err := groth16.AssertInField(root); err != nil {
		return err
	}
	if err := groth16.AssertInField(nullifier); err != nil {
		return err
	}

	// 5. Nullifier non-zero.
	if nullifier.Sign() == 0 {
		return protocol.ErrInvalidNullifier
	}

	// 6. Eligibility by mode.
	switch p.VoteMode {
	case Fixed:
		if root.Cmp(p.EligibleRoot) != 0 {
			return protocol.ErrRootMismatch
		}
	case Trailing:
		idx, ok := e.tree.RootIndex(daoID, root)
		if !ok {
			return protocol.ErrRootNotInHistory
		}
		if idx < p.EarliestRootIndex {
			return protocol.ErrRootPredatesProposal
		}
		if idx < e.tree.MinValidRootIndex(daoID) {
			return protocol.ErrRootPredatesRemoval
		}
	}

	// 7. Revocation gate: currently-revoked commitments cannot vote,
	// regardless of when the proposal was created.
	if e.tree.IsRevoked(daoID, commitment) {
		return protocol.ErrCommitmentRevoked
	}

	// 8. Nullifier uniqueness.
	key := nullKey(daoID, proposalID, nullifier)
	if e.nullifiers[key] {
		return protocol.ErrAlreadyVoted
	}

	// 9. Verification key integrity against the proposal snapshot.
	vk, err := e.vkForVersionLocked(daoID, p.VkVersion)
	if err != nil {
		return err
	}
	if vk.Hash() != p.VkHash {
		return protocol.ErrInvalidProof
	}

	// 10. Public signals, in circuit order.
	choiceSignal := big.NewInt(0)
	if choice {
		choiceSignal = big.NewInt(1)
	}
	publicSignals := []*big.Int{
		root,
		nullifier,
		new(big.Int).SetUint64(daoID),
		new(big.Int).SetUint64(proposalID),
		choiceSignal,
	}

	// 11. Groth16 verification.
	if !e.verifyProof(vk, proof, publicSignals) {
		return protocol.ErrInvalidProof
	}

	// 12. Effects.
	e.nullifiers[key] = true
	if choice {
		p.YesVotes++
	} else {
		p.NoVotes++
	}

	e.log.Debug().Uint64("dao", daoID).Uint64("proposal", proposalID).Bool("choice", choice).Msg("vote admitted")
	e.sink.Publish(VoteEvent{DaoID: daoID, ProposalID: proposalID, Choice: choice, Nullifier: new(big.Int).Set(nullifier)})
	return nil
}

// ─── State transitions ──────────────────────────────────────────────────────

// CloseProposal moves Active -> Closed. Idempotent on Closed; forbidden on
// Archived. The transition event fires at most once.
func (e *Engine) CloseProposal(daoID, proposalID uint64, admin dao.Address) error {
	if err := e.requireAdmin(daoID, admin); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	p, err := e.proposalLocked(daoID, proposalID)
	if err != nil {
		return err
	}
	switch p.State {
	case Active:
		p.State = Closed
		e.log.Info().Uint64("dao", daoID).Uint64("proposal", proposalID).Msg("proposal closed")
		e.sink.Publish(ProposalClosedEvent{DaoID: daoID, ProposalID: proposalID})
		return nil
	case Closed:
		return nil
	default:
		return protocol.ErrInvalidState
	}
}

// ArchiveProposal moves Closed -> Archived. No other source state is legal.
func (e *Engine) ArchiveProposal(daoID, proposalID uint64, admin dao.Address) error {
	if err := e.requireAdmin(daoID, admin); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	p, err := e.proposalLocked(daoID, proposalID)
	if err != nil {
		return err
	}
	if p.State != Closed {
		return protocol.ErrInvalidState
	}
	p.State = Archived

	e.log.Info().Uint64("dao", daoID).Uint64("proposal", proposalID).Msg("proposal archived")
	e.sink.Publish(ProposalArchivedEvent{DaoID: daoID, ProposalID: proposalID})
	return nil
}

// ─── Queries ────────────────────────────────────────────────────────────────

// GetProposal returns a copy of the proposal record.
func (e *Engine) GetProposal(daoID, proposalID uint64) (Proposal, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	p, err := e.proposalLocked(daoID, proposalID)
	if err != nil {
		return Proposal{}, err
	}
	out := *p
	out.EligibleRoot = new(big.Int).Set(p.EligibleRoot)
	return out, nil
}

// GetResults returns the yes and no counts.
func (e *Engine) GetResults(daoID, proposalID uint64) (uint64, uint64, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	p, err := e.proposalLocked(daoID, proposalID)
	if err != nil {
		return 0, 0, err
	}
	return p.YesVotes, p.NoVotes, nil
}

// IsNullifierUsed reports whether a nullifier has voted on a proposal.
func (e *Engine) IsNullifierUsed(daoID, proposalID uint64, nullifier *big.Int) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.nullifiers[nullKey(daoID, proposalID, nullifier)]
}

// ProposalCount returns the number of proposals created for a DAO.
func (e *Engine) ProposalCount(daoID uint64) uint64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return uint64(len(e.proposals[daoID]))
}

// GetVoteMode returns a proposal's eligibility mode.
func (e *Engine) GetVoteMode(daoID, proposalID uint64) (VoteMode, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	p, err := e.proposalLocked(daoID, proposalID)
	if err != nil {
		return Fixed, err
	}
	return p.VoteMode, nil
}

// GetEligibleRoot returns a proposal's snapshotted root.
func (e *Engine) GetEligibleRoot(daoID, proposalID uint64) (*big.Int, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	p, err := e.proposalLocked(daoID, proposalID)
	if err != nil {
		return nil, err
	}
	return new(big.Int).Set(p.EligibleRoot), nil
}

// GetEarliestIdx returns the history index of the snapshotted root at
// creation time.
func (e *Engine) GetEarliestIdx(daoID, proposalID uint64) (int, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	p, err := e.proposalLocked(daoID, proposalID)
	if err != nil {
		return 0, err
	}
	return p.EarliestRootIndex, nil
}

// proposalLocked requires e.mu held (read or write).
func (e *Engine) proposalLocked(daoID, proposalID uint64) (*Proposal, error) {
	list := e.proposals[daoID]
	if proposalID < 1 || proposalID > uint64(len(list)) {
		return nil, protocol.ErrProposalNotFound
	}
	return list[proposalID-1], nil
}

func (e *Engine) requireAdmin(daoID uint64, admin dao.Address) error {
	daoAdmin, err := e.registry.GetAdmin(daoID)
	if err != nil {
		return err
	}
	if daoAdmin != admin {
		return protocol.ErrNotAdmin
	}
	return nil
}
