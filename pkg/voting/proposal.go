package voting

import (
	"math/big"

	"github.com/AshFrancis/zkvote/pkg/dao"
)

// VoteMode selects which Merkle roots a proposal accepts.
type VoteMode uint8

const (
	// Fixed admits only the exact root snapshotted at proposal creation.
	Fixed VoteMode = iota
	// Trailing admits any historical root from the proposal's creation
	// index onward, subject to the revocation watermark.
	Trailing
)

func (m VoteMode) String() string {
	switch m {
	case Fixed:
		return "fixed"
	case Trailing:
		return "trailing"
	default:
		return "unknown"
	}
}

// ProposalState is the lifecycle stage of a proposal. State only advances.
type ProposalState uint8

const (
	Active ProposalState = iota
	Closed
	Archived
)

func (s ProposalState) String() string {
	switch s {
	case Active:
		return "active"
	case Closed:
		return "closed"
	case Archived:
		return "archived"
	default:
		return "unknown"
	}
}

// Proposal is the per-proposal record. EligibleRoot and VkHash are
// snapshotted at creation and never change.
type Proposal struct {
	ID          uint64
	DaoID       uint64
	Description string
	ContentCid  string

	YesVotes uint64
	NoVotes  uint64

	// EndTime is a Unix deadline; 0 means no deadline.
	EndTime   uint64
	CreatedBy dao.Address

	VkVersion uint32
	VkHash    [32]byte

	EligibleRoot      *big.Int
	EarliestRootIndex int

	VoteMode VoteMode
	State    ProposalState
}

// VKSetEvent is published when a DAO registers a new verification key
// version.
type VKSetEvent struct {
	DaoID   uint64
	Version uint32
}

// ProposalEvent is published at proposal creation.
type ProposalEvent struct {
	DaoID       uint64
	ProposalID  uint64
	Description string
	Creator     dao.Address
}

// VoteEvent is published when a vote is admitted.
type VoteEvent struct {
	DaoID      uint64
	ProposalID uint64
	Choice     bool
	Nullifier  *big.Int
}

// ProposalClosedEvent is published on the Active -> Closed transition.
type ProposalClosedEvent struct {
	DaoID      uint64
	ProposalID uint64
}

// ProposalArchivedEvent is published on the Closed -> Archived transition.
type ProposalArchivedEvent struct {
	DaoID      uint64
	ProposalID uint64
}
