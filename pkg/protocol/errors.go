// Package protocol carries the shared error taxonomy and event plumbing for
// the zkvote core. Every fatal condition in the core maps to exactly one
// coded variant; errors are surfaced to the host, never recovered.
package protocol

import "fmt"

// Code is a stable integer identifying an error variant. Codes are part of
// the host contract and never renumbered.
type Code uint32

const (
	// Authorization
	CodeNotAdmin     Code = 1
	CodeNotDaoMember Code = 5
	CodeUnauthorized Code = 19

	// Eligibility
	CodeCommitmentRevoked    Code = 9
	CodeRootNotInHistory     Code = 12
	CodeRootMismatch         Code = 29
	CodeRootPredatesProposal Code = 30
	CodeRootPredatesRemoval  Code = 33

	// Verification
	CodeInvalidProof     Code = 15
	CodeVkShapeInvalid   Code = 41
	CodeVkVersionUnknown Code = 42
	CodeVkNotSet         Code = 46

	// Lifecycle
	CodeAlreadyInitialized Code = 18
	CodeProposalNotFound   Code = 28
	CodeInvalidState       Code = 34
	CodeVotingClosed       Code = 35
	CodeAlreadyVoted       Code = 36
	CodeTreeNotInitialized Code = 43

	// Inputs
	CodeSignalNotInField    Code = 31
	CodeInvalidNullifier    Code = 32
	CodeInvalidDepth        Code = 37
	CodeTreeFull            Code = 38
	CodeDuplicateCommitment Code = 39
	CodeDescriptionTooLong  Code = 40
	CodeContentCidTooLong   Code = 27
	CodeCommitmentNotFound  Code = 44
	CodeNotRevoked          Code = 45
	CodeInvalidEndTime      Code = 50

	// Registry / SBT
	CodeDaoNotFound   Code = 47
	CodeNameTooLong   Code = 48
	CodeAlreadyMinted Code = 49

	// Comments
	CodeCommentNotFound      Code = 22
	CodeCommentDeleted       Code = 23
	CodeNotCommentOwner      Code = 24
	CodeInvalidParentComment Code = 25
)

// Error is a coded error variant. Variants are compared by identity, so the
// package-level sentinels below work with errors.Is.
type Error struct {
	Code Code
	Name string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s (code %d)", e.Name, e.Code)
}

var (
	ErrNotAdmin     = &Error{CodeNotAdmin, "not admin"}
	ErrNotDaoMember = &Error{CodeNotDaoMember, "not DAO member"}
	ErrUnauthorized = &Error{CodeUnauthorized, "unauthorized"}

	ErrCommitmentRevoked    = &Error{CodeCommitmentRevoked, "commitment revoked"}
	ErrRootNotInHistory     = &Error{CodeRootNotInHistory, "root not in history"}
	ErrRootMismatch         = &Error{CodeRootMismatch, "root must match proposal eligible root"}
	ErrRootPredatesProposal = &Error{CodeRootPredatesProposal, "root predates proposal"}
	ErrRootPredatesRemoval  = &Error{CodeRootPredatesRemoval, "root predates member removal"}

	ErrInvalidProof     = &Error{CodeInvalidProof, "invalid proof"}
	ErrVkShapeInvalid   = &Error{CodeVkShapeInvalid, "verification key shape invalid"}
	ErrVkVersionUnknown = &Error{CodeVkVersionUnknown, "verification key version unknown"}
	ErrVkNotSet         = &Error{CodeVkNotSet, "verification key not set"}

	ErrAlreadyInitialized = &Error{CodeAlreadyInitialized, "already initialized"}
	ErrProposalNotFound   = &Error{CodeProposalNotFound, "proposal not found"}
	ErrInvalidState       = &Error{CodeInvalidState, "invalid proposal state"}
	ErrVotingClosed       = &Error{CodeVotingClosed, "voting period closed"}
	ErrAlreadyVoted       = &Error{CodeAlreadyVoted, "already voted"}
	ErrTreeNotInitialized = &Error{CodeTreeNotInitialized, "tree not initialized"}

	ErrSignalNotInField    = &Error{CodeSignalNotInField, "public signal not in scalar field"}
	ErrInvalidNullifier    = &Error{CodeInvalidNullifier, "nullifier is zero"}
	ErrInvalidDepth        = &Error{CodeInvalidDepth, "invalid tree depth"}
	ErrTreeFull            = &Error{CodeTreeFull, "tree is full"}
	ErrDuplicateCommitment = &Error{CodeDuplicateCommitment, "commitment already registered"}
	ErrDescriptionTooLong  = &Error{CodeDescriptionTooLong, "description too long"}
	ErrContentCidTooLong   = &Error{CodeContentCidTooLong, "content cid too long"}
	ErrCommitmentNotFound  = &Error{CodeCommitmentNotFound, "commitment not found"}
	ErrNotRevoked          = &Error{CodeNotRevoked, "commitment not revoked"}
	ErrInvalidEndTime      = &Error{CodeInvalidEndTime, "end time must be zero or in the future"}

	ErrDaoNotFound   = &Error{CodeDaoNotFound, "DAO not found"}
	ErrNameTooLong   = &Error{CodeNameTooLong, "DAO name too long"}
	ErrAlreadyMinted = &Error{CodeAlreadyMinted, "SBT already minted"}

	ErrCommentNotFound      = &Error{CodeCommentNotFound, "comment not found"}
	ErrCommentDeleted       = &Error{CodeCommentDeleted, "comment deleted"}
	ErrNotCommentOwner      = &Error{CodeNotCommentOwner, "not comment owner"}
	ErrInvalidParentComment = &Error{CodeInvalidParentComment, "invalid parent comment"}
)
