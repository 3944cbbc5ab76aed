package protocol

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorsAreSentinels(t *testing.T) {
	wrapped := fmt.Errorf("vote admission: %w", ErrAlreadyVoted)
	if !errors.Is(wrapped, ErrAlreadyVoted) {
		t.Fatal("wrapped sentinel must satisfy errors.Is")
	}
	if errors.Is(wrapped, ErrInvalidProof) {
		t.Fatal("distinct sentinels must not match")
	}
}

// TestCodeStability pins the externally visible codes; renumbering breaks
// host integrations.
func TestCodeStability(t *testing.T) {
	pinned := map[*Error]Code{
		ErrNotAdmin:             1,
		ErrNotDaoMember:         5,
		ErrCommitmentRevoked:    9,
		ErrRootNotInHistory:     12,
		ErrInvalidProof:         15,
		ErrAlreadyInitialized:   18,
		ErrUnauthorized:         19,
		ErrCommentNotFound:      22,
		ErrContentCidTooLong:    27,
		ErrProposalNotFound:     28,
		ErrRootMismatch:         29,
		ErrRootPredatesProposal: 30,
		ErrSignalNotInField:     31,
		ErrInvalidNullifier:     32,
		ErrRootPredatesRemoval:  33,
	}
	for err, want := range pinned {
		if err.Code != want {
			t.Errorf("%s: code = %d, want %d", err.Name, err.Code, want)
		}
	}
}

func TestErrorMessageIncludesCode(t *testing.T) {
	if got := ErrTreeFull.Error(); got != "tree is full (code 38)" {
		t.Fatalf("message = %q", got)
	}
}
