package vote

const (
	// TreeDepth is the membership tree depth this circuit is compiled for.
	// A DAO whose proofs verify against this circuit's keys must initialize
	// its tree with the same depth.
	TreeDepth = 16

	// PublicSignalCount is the number of public signals the circuit
	// exposes: root, nullifier, daoId, proposalId, choice.
	PublicSignalCount = 5
)
