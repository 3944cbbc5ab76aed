// Package comments implements the proposal comment store. Anonymous
// comments reuse the vote circuit's proof schema and the vote engine's
// eligibility policy, but deliberately skip nullifier uniqueness: the
// nullifier only proves ownership for later edits and deletes, it does not
// limit how often a member may comment.
package comments

import (
	"math/big"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/AshFrancis/zkvote/config"
	"github.com/AshFrancis/zkvote/pkg/dao"
	"github.com/AshFrancis/zkvote/pkg/groth16"
	"github.com/AshFrancis/zkvote/pkg/protocol"
	"github.com/AshFrancis/zkvote/pkg/voting"
)

// Who deleted a comment.
const (
	DeletedByNone uint8 = iota
	DeletedByUser
	DeletedByAdmin
)

// Comment is a stored comment. Author is nil for anonymous comments; those
// carry the proving nullifier instead.
type Comment struct {
	ID         uint64
	DaoID      uint64
	ProposalID uint64

	Author     *dao.Address
	ContentCid string
	ParentID   *uint64

	CreatedAt uint64
	UpdatedAt uint64

	RevisionCids []string
	Deleted      bool
	DeletedBy    uint8

	Nullifier *big.Int
}

// CommentCreatedEvent is published when a comment is stored.
type CommentCreatedEvent struct {
	DaoID       uint64
	ProposalID  uint64
	CommentID   uint64
	IsAnonymous bool
}

// CommentEditedEvent is published when a comment's content changes.
type CommentEditedEvent struct {
	DaoID      uint64
	ProposalID uint64
	CommentID  uint64
}

// CommentDeletedEvent is published on soft deletion.
type CommentDeletedEvent struct {
	DaoID      uint64
	ProposalID uint64
	CommentID  uint64
	DeletedBy  uint8
}

// ProposalDirectory is the vote-engine view the store consumes:
// *voting.Engine satisfies it.
type ProposalDirectory interface {
	ProposalCount(daoID uint64) uint64
	GetVK(daoID uint64) (*groth16.VerificationKey, error)
	GetVoteMode(daoID, proposalID uint64) (voting.VoteMode, error)
	GetEligibleRoot(daoID, proposalID uint64) (*big.Int, error)
	GetEarliestIdx(daoID, proposalID uint64) (int, error)
}

type commentKey struct {
	daoID      uint64
	proposalID uint64
}

// Store holds all comments, keyed by (dao, proposal).
type Store struct {
	mu       sync.RWMutex
	registry dao.Registry
	sbt      dao.SBT
	tree     voting.MembershipTree
	voting   ProposalDirectory

	comments map[commentKey][]*Comment

	now  func() uint64
	sink protocol.EventSink
	log  zerolog.Logger

	// verify is swapped out by tests that exercise gating without
	// generating real proofs.
	verify func(*groth16.VerificationKey, *groth16.Proof, []*big.Int) bool
}

// NewStore constructs an empty comment store.
func NewStore(registry dao.Registry, sbt dao.SBT, tree voting.MembershipTree, directory ProposalDirectory, sink protocol.EventSink, now func() uint64) *Store {
	if sink == nil {
		sink = protocol.NopSink{}
	}
	if now == nil {
		now = func() uint64 { return uint64(time.Now().Unix()) }
	}
	return &Store{
		registry: registry,
		sbt:      sbt,
		tree:     tree,
		voting:   directory,
		comments: make(map[commentKey][]*Comment),
		now:      now,
		sink:     sink,
		log:      zerolog.Nop(),
		verify:   groth16.Verify,
	}
}

// WithLogger attaches a logger and returns the store.
func (s *Store) WithLogger(log zerolog.Logger) *Store {
	s.log = log
	return s
}

// AddComment stores a public comment under the author's address.
func (s *Store) AddComment(daoID, proposalID uint64, contentCid string, parentID *uint64, author dao.Address) (uint64, error) {
	if len(contentCid) > config.MaxContentCidLen {
		return 0, protocol.ErrContentCidTooLong
	}
	if !s.sbt.Has(daoID, author) {
		return 0, protocol.ErrNotDaoMember
	}
	if err := s.assertProposalExists(daoID, proposalID); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.validateParentLocked(daoID, proposalID, parentID); err != nil {
		return 0, err
	}

	a := author
	return s.appendLocked(daoID, proposalID, &Comment{
		Author:     &a,
		ContentCid: contentCid,
		ParentID:   parentID,
	}, false), nil
}

// AddAnonymousComment stores a comment gated by a membership proof. The
// proof schema and eligibility checks mirror vote admission, except that
// nullifier reuse is allowed.
func (s *Store) AddAnonymousComment(daoID, proposalID uint64, contentCid string, parentID *uint64, nullifier, root, commitment *big.Int, choice bool, proof *groth16.Proof) (uint64, error) {
	// Field bounds first: values >= r must never reach storage or the
	// verifier.
	if err := groth16.AssertInField(nullifier); err != nil {
		return 0, err
	}
	if err := groth16.AssertInField(root); err != nil {
		return 0, err
	}
	if nullifier.Sign() == 0 {
		return 0, protocol.ErrInvalidNullifier
	}
	if len(contentCid) > config.MaxContentCidLen {
		return 0, protocol.ErrContentCidTooLong
	}
	if err := s.assertProposalExists(daoID, proposalID); err != nil {
		return 0, err
	}
	if err := s.validateEligibility(daoID, proposalID, root); err != nil {
		return 0, err
	}
	if s.tree.IsRevoked(daoID, commitment) {
		return 0, protocol.ErrCommitmentRevoked
	}
	if err := s.verifyProof(daoID, proposalID, nullifier, root, choice, proof); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.validateParentLocked(daoID, proposalID, parentID); err != nil {
		return 0, err
	}

	return s.appendLocked(daoID, proposalID, &Comment{
		ContentCid: contentCid,
		ParentID:   parentID,
		Nullifier:  new(big.Int).Set(nullifier),
	}, true), nil
}

// EditComment replaces a public comment's content; only its author may.
// The previous content is kept in the revision history, capped.
func (s *Store) EditComment(daoID, proposalID, commentID uint64, newContentCid string, author dao.Address) error {
	if len(newContentCid) > config.MaxContentCidLen {
		return protocol.ErrContentCidTooLong
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := s.commentLocked(daoID, proposalID, commentID)
	if err != nil {
		return err
	}
	if c.Deleted {
		return protocol.ErrCommentDeleted
	}
	if c.Author == nil || *c.Author != author {
		return protocol.ErrNotCommentOwner
	}

	s.reviseLocked(c, newContentCid)
	s.sink.Publish(CommentEditedEvent{DaoID: daoID, ProposalID: proposalID, CommentID: commentID})
	return nil
}

// EditAnonymousComment replaces an anonymous comment's content. Ownership is
// proven by presenting a fresh proof for the stored nullifier: the nullifier
// binds (secret, dao, proposal), so only the original commenter can produce
// it.
func (s *Store) EditAnonymousComment(daoID, proposalID, commentID uint64, newContentCid string, nullifier, root *big.Int, choice bool, proof *groth16.Proof) error {
	if err := groth16.AssertInField(nullifier); err != nil {
		return err
	}
	if err := groth16.AssertInField(root); err != nil {
		return err
	}
	if len(newContentCid) > config.MaxContentCidLen {
		return protocol.ErrContentCidTooLong
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := s.commentLocked(daoID, proposalID, commentID)
	if err != nil {
		return err
	}
	if c.Deleted {
		return protocol.ErrCommentDeleted
	}
	if c.Nullifier == nil || c.Nullifier.Cmp(nullifier) != 0 {
		return protocol.ErrNotCommentOwner
	}
	if err := s.verifyProof(daoID, proposalID, nullifier, root, choice, proof); err != nil {
		return err
	}

	s.reviseLocked(c, newContentCid)
	s.sink.Publish(CommentEditedEvent{DaoID: daoID, ProposalID: proposalID, CommentID: commentID})
	return nil
}

// DeleteComment soft-deletes a public comment; only its author may.
// Idempotent on already-deleted comments.
func (s *Store) DeleteComment(daoID, proposalID, commentID uint64, author dao.Address) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := s.commentLocked(daoID, proposalID, commentID)
	if err != nil {
		return err
	}
	if c.Deleted {
		return nil
	}
	if c.Author == nil || *c.Author != author {
		return protocol.ErrNotCommentOwner
	}

	s.deleteLocked(daoID, proposalID, c, DeletedByUser)
	return nil
}

// DeleteAnonymousComment soft-deletes an anonymous comment given a fresh
// proof for its nullifier.
func (s *Store) DeleteAnonymousComment(daoID, proposalID, commentID uint64, nullifier, root *big.Int, choice bool, proof *groth16.Proof) error {
	if err := groth16.AssertInField(nullifier); err != nil {
		return err
	}
	if err := groth16.AssertInField(root); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := s.commentLocked(daoID, proposalID, commentID)
	if err != nil {
		return err
	}
	if c.Deleted {
		return nil
	}
	if c.Nullifier == nil || c.Nullifier.Cmp(nullifier) != 0 {
		return protocol.ErrNotCommentOwner
	}
	if err := s.verifyProof(daoID, proposalID, nullifier, root, choice, proof); err != nil {
		return err
	}

	s.deleteLocked(daoID, proposalID, c, DeletedByUser)
	return nil
}

// AdminDeleteComment soft-deletes any comment; DAO-admin authorized.
func (s *Store) AdminDeleteComment(daoID, proposalID, commentID uint64, admin dao.Address) error {
	daoAdmin, err := s.registry.GetAdmin(daoID)
	if err != nil {
		return err
	}
	if daoAdmin != admin {
		return protocol.ErrNotAdmin
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := s.commentLocked(daoID, proposalID, commentID)
	if err != nil {
		return err
	}
	if c.Deleted {
		return nil
	}

	s.deleteLocked(daoID, proposalID, c, DeletedByAdmin)
	return nil
}

// GetComment returns a copy of a comment.
func (s *Store) GetComment(daoID, proposalID, commentID uint64) (Comment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, err := s.commentLocked(daoID, proposalID, commentID)
	if err != nil {
		return Comment{}, err
	}
	return *c, nil
}

// CommentCount returns the number of comments on a proposal.
func (s *Store) CommentCount(daoID, proposalID uint64) uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return uint64(len(s.comments[commentKey{daoID, proposalID}]))
}

// GetComments returns copies of comments in [offset, offset+limit).
func (s *Store) GetComments(daoID, proposalID uint64, offset, limit uint64) []Comment {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list := s.comments[commentKey{daoID, proposalID}]
	if offset >= uint64(len(list)) {
		return nil
	}
	end := offset + limit
	if end > uint64(len(list)) {
		end = uint64(len(list))
	}
	out := make([]Comment, 0, end-offset)
	for _, c := range list[offset:end] {
		out = append(out, *c)
	}
	return out
}

// ─── Internal helpers ───────────────────────────────────────────────────────

func (s *Store) assertProposalExists(daoID, proposalID uint64) error {
	if proposalID < 1 || proposalID > s.voting.ProposalCount(daoID) {
		return protocol.ErrProposalNotFound
	}
	return nil
}

// validateEligibility applies the vote engine's root policy: exact snapshot
// in fixed mode; history membership, proposal floor and removal watermark in
// trailing mode.
func (s *Store) validateEligibility(daoID, proposalID uint64, root *big.Int) error {
	mode, err := s.voting.GetVoteMode(daoID, proposalID)
	if err != nil {
		return err
	}
	switch mode {
	case voting.Fixed:
		eligible, err := s.voting.GetEligibleRoot(daoID, proposalID)
		if err != nil {
			return err
		}
		if root.Cmp(eligible) != 0 {
			return protocol.ErrRootMismatch
		}
	case voting.Trailing:
		idx, ok := s.tree.RootIndex(daoID, root)
		if !ok {
			return protocol.ErrRootNotInHistory
		}
		earliest, err := s.voting.GetEarliestIdx(daoID, proposalID)
		if err != nil {
			return err
		}
		if idx < earliest {
			return protocol.ErrRootPredatesProposal
		}
		if idx < s.tree.MinValidRootIndex(daoID) {
			return protocol.ErrRootPredatesRemoval
		}
	}
	return nil
}

func (s *Store) verifyProof(daoID, proposalID uint64, nullifier, root *big.Int, choice bool, proof *groth16.Proof) error {
	vk, err := s.voting.GetVK(daoID)
	if err != nil {
		return err
	}

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

	if !s.verify(vk, proof, publicSignals) {
		return protocol.ErrInvalidProof
	}
	return nil
}

// validateParentLocked requires s.mu held.
func (s *Store) validateParentLocked(daoID, proposalID uint64, parentID *uint64) error {
	if parentID == nil {
		return nil
	}
	if *parentID < 1 || *parentID > uint64(len(s.comments[commentKey{daoID, proposalID}])) {
		return protocol.ErrInvalidParentComment
	}
	return nil
}

// appendLocked requires s.mu held.
func (s *Store) appendLocked(daoID, proposalID uint64, c *Comment, anonymous bool) uint64 {
	key := commentKey{daoID, proposalID}
	id := uint64(len(s.comments[key])) + 1
	now := s.now()

	c.ID = id
	c.DaoID = daoID
	c.ProposalID = proposalID
	c.CreatedAt = now
	c.UpdatedAt = now
	s.comments[key] = append(s.comments[key], c)

	s.log.Debug().Uint64("dao", daoID).Uint64("proposal", proposalID).Uint64("comment", id).Bool("anonymous", anonymous).Msg("comment stored")
	s.sink.Publish(CommentCreatedEvent{DaoID: daoID, ProposalID: proposalID, CommentID: id, IsAnonymous: anonymous})
	return id
}

// reviseLocked requires s.mu held.
func (s *Store) reviseLocked(c *Comment, newContentCid string) {
	if len(c.RevisionCids) < config.MaxCommentRevisions {
		c.RevisionCids = append(c.RevisionCids, c.ContentCid)
	}
	c.ContentCid = newContentCid
	c.UpdatedAt = s.now()
}

// deleteLocked requires s.mu held.
func (s *Store) deleteLocked(daoID, proposalID uint64, c *Comment, by uint8) {
	c.Deleted = true
	c.DeletedBy = by
	c.UpdatedAt = s.now()
	s.sink.Publish(CommentDeletedEvent{DaoID: daoID, ProposalID: proposalID, CommentID: c.ID, DeletedBy: by})
}

// commentLocked requires s.mu held.
func (s *Store) commentLocked(daoID, proposalID, commentID uint64) (*Comment, error) {
	list := s.comments[commentKey{daoID, proposalID}]
	if commentID < 1 || commentID > uint64(len(list)) {
		return nil, protocol.ErrCommentNotFound
	}
	return list[commentID-1], nil
}
