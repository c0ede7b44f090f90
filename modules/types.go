// Package modules defines the shared types and interfaces consumed by
// the recovery engine, mirroring the teacher's own "modules" package:
// a central, dependency-light vocabulary that every other package
// imports instead of redefining its own copies of the same shapes.
package modules

import (
	"fmt"

	"go.thebigfile.com/availcore/crypto"
)

// RecoveryKey is a content hash of the candidate (spec.md §3). It
// uniquely identifies a recovery across sessions.
type RecoveryKey = crypto.Hash

// ValidatorIndex indexes into the session's ordered validator list.
type ValidatorIndex uint32

// ValidatorID identifies a validator within a session.
type ValidatorID crypto.Hash

// DiscoveryID is the network-layer identity used to reach a validator.
type DiscoveryID string

// SessionContext is derived from session info and is immutable for the
// life of one recovery (spec.md §3).
type SessionContext struct {
	Validators    []ValidatorID
	DiscoveryKeys []DiscoveryID
	// Groups maps a backing-group index to the validator indices that
	// make up that group. Not every session exposes every group.
	Groups map[uint32][]ValidatorIndex
}

// Threshold returns floor((N-1)/3)+1, the minimum number of chunks
// required to reconstruct a payload of N validators.
func Threshold(n int) int {
	return (n-1)/3 + 1
}

// RecoveryParams bundles everything a Recovery Task needs to run,
// independent of how the recovery was requested (spec.md §3).
type RecoveryParams struct {
	Validators    []ValidatorID
	DiscoveryKeys []DiscoveryID
	Threshold     int
	CandidateHash RecoveryKey
	ErasureRoot   crypto.Hash

	// BackingGroup, when non-nil, lists the validator indices of the
	// candidate's backing group, used only by the Backers phase.
	BackingGroup []ValidatorIndex
}

// Validate enforces the invariants spec.md §3 names for RecoveryParams:
// |validators| == |discovery_keys| >= 1, 1 <= threshold <= N.
func (p RecoveryParams) Validate() error {
	n := len(p.Validators)
	if n != len(p.DiscoveryKeys) {
		return fmt.Errorf("validators/discovery_keys length mismatch: %d != %d", n, len(p.DiscoveryKeys))
	}
	if n < 1 {
		return fmt.Errorf("validator set must be non-empty")
	}
	if p.Threshold < 1 || p.Threshold > n {
		return fmt.Errorf("threshold %d out of range [1, %d]", p.Threshold, n)
	}
	return nil
}

// NewRecoveryParams derives RecoveryParams from a session context and
// a candidate's identifying hashes.
func NewRecoveryParams(ctx SessionContext, candidateHash RecoveryKey, erasureRoot crypto.Hash, backingGroup uint32, hasGroup bool) RecoveryParams {
	p := RecoveryParams{
		Validators:    ctx.Validators,
		DiscoveryKeys: ctx.DiscoveryKeys,
		Threshold:     Threshold(len(ctx.Validators)),
		CandidateHash: candidateHash,
		ErasureRoot:   erasureRoot,
	}
	if hasGroup {
		if group, ok := ctx.Groups[backingGroup]; ok {
			p.BackingGroup = group
		}
	}
	return p
}

// OutcomeKind tags the variant of a RecoveryOutcome.
type OutcomeKind int

const (
	// OutcomeRecovered means the payload was reconstructed and its
	// re-encoding matches the erasure root.
	OutcomeRecovered OutcomeKind = iota
	// OutcomeUnavailable means too few responses were gathered.
	OutcomeUnavailable
	// OutcomeInvalid means enough data was obtained but it failed the
	// root check.
	OutcomeInvalid
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeRecovered:
		return "Recovered"
	case OutcomeUnavailable:
		return "Unavailable"
	case OutcomeInvalid:
		return "Invalid"
	default:
		return "Unknown"
	}
}

// RecoveryOutcome is the frozen, cacheable result of a recovery
// (spec.md §3). Cloning it is a plain value copy: Data is a slice
// header over a shared backing array, the same cheap-clone shape the
// spec asks for ("typically wraps a reference-counted byte buffer").
type RecoveryOutcome struct {
	Kind OutcomeKind
	Data []byte
}

// Recovered constructs a Recovered outcome.
func Recovered(data []byte) RecoveryOutcome {
	return RecoveryOutcome{Kind: OutcomeRecovered, Data: data}
}

// Unavailable is the Unavailable outcome singleton value.
var Unavailable = RecoveryOutcome{Kind: OutcomeUnavailable}

// Invalid is the Invalid outcome singleton value.
var Invalid = RecoveryOutcome{Kind: OutcomeInvalid}

// ErasureChunk is a Merkle-verified chunk belonging to one validator.
type ErasureChunk struct {
	Index ValidatorIndex
	Chunk []byte
	Proof [][]byte
}

// LeafInfo identifies an activated relay-chain leaf.
type LeafInfo struct {
	Hash   crypto.Hash
	Number uint64
}

// LiveTip is the highest activated leaf observed, used as the anchor
// for session-info queries (spec.md §3).
type LiveTip struct {
	BlockNumber uint64
	BlockHash   crypto.Hash
}

// Update replaces the tip with each leaf at least as high as the
// current tip (so of several equal-height leaves the last wins), matching
// the Event Loop's "update LiveTip to the max-height activated block"
// contract (spec.md §4.5).
func (t *LiveTip) Update(leaves []LeafInfo) {
	for _, l := range leaves {
		if l.Number >= t.BlockNumber {
			t.BlockNumber = l.Number
			t.BlockHash = l.Hash
		}
	}
}
