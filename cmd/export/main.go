// Command export runs the full flow end to end against an in-memory host —
// DAO creation, tree init, commitment registration, proposal creation,
// proof generation and vote admission — then writes a JSON fixture with the
// canonical verification key, proof and public signals for host integration
// tests.
package main

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"os"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark/backend/groth16"
	"github.com/consensys/gnark/frontend"
	"github.com/rs/zerolog"

	"github.com/AshFrancis/zkvote/circuits/vote"
	"github.com/AshFrancis/zkvote/pkg/comments"
	"github.com/AshFrancis/zkvote/pkg/crypto"
	"github.com/AshFrancis/zkvote/pkg/dao"
	"github.com/AshFrancis/zkvote/pkg/merkle"
	"github.com/AshFrancis/zkvote/pkg/protocol"
	"github.com/AshFrancis/zkvote/pkg/setup"
	"github.com/AshFrancis/zkvote/pkg/voting"
)

// VoteFixture holds everything a host integration test needs to replay the
// vote.
type VoteFixture struct {
	VkAlpha    string   `json:"vk_alpha"`
	VkBeta     string   `json:"vk_beta"`
	VkGamma    string   `json:"vk_gamma"`
	VkDelta    string   `json:"vk_delta"`
	VkIC       []string `json:"vk_ic"`
	ProofA     string   `json:"proof_a"`
	ProofB     string   `json:"proof_b"`
	ProofC     string   `json:"proof_c"`
	Root       string   `json:"root"`
	Nullifier  string   `json:"nullifier"`
	Commitment string   `json:"commitment"`
	DaoID      uint64   `json:"dao_id"`
	ProposalID uint64   `json:"proposal_id"`
	Choice     bool     `json:"choice"`
}

func main() {
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	sink := protocol.LogSink{Log: logger}

	// 1. Compile and set up the vote circuit (dev keys).
	fmt.Println("Compiling circuit...")
	ccs, err := setup.CompileCircuit(&vote.VoteCircuit{})
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("Constraints: %d\n", ccs.GetNbConstraints())

	pk, vk, err := groth16.Setup(ccs)
	if err != nil {
		log.Fatal(err)
	}
	canonicalVK, err := setup.CanonicalVerificationKey(vk)
	if err != nil {
		log.Fatal(err)
	}

	// 2. Assemble the in-memory host.
	registry := dao.NewMemoryRegistry(sink)
	sbt := dao.NewMemorySBT(registry, sink)
	tree := merkle.NewAccumulator(sbt, sink, nil).WithLogger(logger)
	engine := voting.NewEngine(registry, sbt, tree, sink, nil).WithLogger(logger)
	store := comments.NewStore(registry, sbt, tree, engine, sink, nil).WithLogger(logger)

	admin := dao.Address("admin")
	member := dao.Address("member")

	daoID, err := registry.CreateDao("Fixture DAO", admin, false)
	if err != nil {
		log.Fatal(err)
	}
	if err := sbt.Mint(daoID, member, admin); err != nil {
		log.Fatal(err)
	}
	if err := tree.InitTree(daoID, vote.TreeDepth, admin); err != nil {
		log.Fatal(err)
	}
	if _, err := engine.SetVK(daoID, canonicalVK, admin); err != nil {
		log.Fatal(err)
	}

	// 3. Register the member's commitment.
	secret, err := crypto.GenerateSecret()
	if err != nil {
		log.Fatal(err)
	}
	salt, err := crypto.GenerateSalt()
	if err != nil {
		log.Fatal(err)
	}
	commitment := crypto.DeriveCommitment(secret, salt)
	if err := tree.RegisterWithCaller(daoID, commitment, member); err != nil {
		log.Fatal(err)
	}

	// 4. Create the proposal.
	proposalID, err := engine.CreateProposal(daoID, "Fixture proposal", "bafyfixture", 0, member, voting.Fixed)
	if err != nil {
		log.Fatal(err)
	}

	// 5. Prove.
	siblings, bits, err := tree.MerklePath(daoID, commitment)
	if err != nil {
		log.Fatal(err)
	}
	const choice = true
	witnessResult, err := vote.PrepareWitness(secret, salt, daoID, proposalID, choice, siblings, bits)
	if err != nil {
		log.Fatal(err)
	}

	witness, err := frontend.NewWitness(&witnessResult.Assignment, ecc.BN254.ScalarField())
	if err != nil {
		log.Fatal(err)
	}
	proof, err := groth16.Prove(ccs, pk, witness)
	if err != nil {
		log.Fatal(err)
	}
	canonicalProof, err := setup.CanonicalProof(proof)
	if err != nil {
		log.Fatal(err)
	}

	// 6. Submit the vote through the engine.
	err = engine.Vote(daoID, proposalID, choice, witnessResult.Nullifier, witnessResult.Root, commitment, canonicalProof)
	if err != nil {
		log.Fatal(err)
	}
	yes, no, err := engine.GetResults(daoID, proposalID)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("Results: yes=%d no=%d\n", yes, no)

	// 7. Reuse the same proof schema for an anonymous comment.
	if _, err := store.AddAnonymousComment(daoID, proposalID, "bafycomment", nil,
		witnessResult.Nullifier, witnessResult.Root, commitment, choice, canonicalProof); err != nil {
		log.Fatal(err)
	}

	// 8. Write the fixture.
	fixture := VoteFixture{
		VkAlpha:    hex.EncodeToString(canonicalVK.Alpha[:]),
		VkBeta:     hex.EncodeToString(canonicalVK.Beta[:]),
		VkGamma:    hex.EncodeToString(canonicalVK.Gamma[:]),
		VkDelta:    hex.EncodeToString(canonicalVK.Delta[:]),
		ProofA:     hex.EncodeToString(canonicalProof.A[:]),
		ProofB:     hex.EncodeToString(canonicalProof.B[:]),
		ProofC:     hex.EncodeToString(canonicalProof.C[:]),
		Root:       witnessResult.Root.String(),
		Nullifier:  witnessResult.Nullifier.String(),
		Commitment: commitment.String(),
		DaoID:      daoID,
		ProposalID: proposalID,
		Choice:     choice,
	}
	for i := range canonicalVK.IC {
		fixture.VkIC = append(fixture.VkIC, hex.EncodeToString(canonicalVK.IC[i][:]))
	}

	out, err := json.MarshalIndent(&fixture, "", "  ")
	if err != nil {
		log.Fatal(err)
	}
	if err := os.WriteFile("vote_fixture.json", out, 0o644); err != nil {
		log.Fatal(err)
	}
	fmt.Println("Wrote vote_fixture.json")
}
