package modules

import (
	"context"

	"go.thebigfile.com/availcore/crypto"
)

// Disposition mirrors the relay-chain network bridge's
// IfDisconnected knob (spec.md §6): whether a request dial should
// establish a fresh connection or give up immediately.
type Disposition int

const (
	// TryConnect dials the peer if not already connected. This is the
	// only disposition the recovery engine ever uses (spec.md §4.1).
	TryConnect Disposition = iota
	// ImmediateError fails the request instead of dialing.
	ImmediateError
)

// NetworkBridge is the external collaborator that dispatches requests
// to peers (spec.md §1, §6). The core only ever consumes this
// interface; see networkbridge/ for a siamux-backed default adapter.
type NetworkBridge interface {
	// RequestChunk issues a ChunkFetchingRequest to discoveryKey and
	// delivers exactly one ChunkRequestResult on out, honoring ctx
	// cancellation. It must not block the caller past enqueueing the
	// request.
	RequestChunk(ctx context.Context, discoveryKey DiscoveryID, candidateHash crypto.Hash, index ValidatorIndex, disposition Disposition, out chan<- ChunkRequestResult)

	// RequestAvailableData issues an AvailableDataFetchingRequest to
	// discoveryKey and blocks until a response or ctx is done.
	RequestAvailableData(ctx context.Context, discoveryKey DiscoveryID, candidateHash crypto.Hash, disposition Disposition) (AvailableDataFetchingResponse, error)

	// IncomingAvailableDataRequests is the inbound peer request stream
	// the Event Loop multiplexes (spec.md §4.5, input 3).
	IncomingAvailableDataRequests() <-chan IncomingAvailableDataRequest
}

// AvailabilityStore is the external collaborator holding a queryable
// key/value of chunks and payloads (spec.md §1, §6).
type AvailabilityStore interface {
	// QueryAvailableData returns the full payload if this node holds
	// it locally.
	QueryAvailableData(ctx context.Context, candidateHash crypto.Hash) (data []byte, found bool, err error)
	// QueryAllChunks returns every chunk this node holds locally for
	// candidateHash. Store contents are trusted (spec.md §4.1 "Seed").
	QueryAllChunks(ctx context.Context, candidateHash crypto.Hash) ([]ErasureChunk, error)
}

// SessionInfoOracle resolves session info anchored at a relay-chain
// block (spec.md §6).
type SessionInfoOracle interface {
	SessionInfo(ctx context.Context, liveBlockHash crypto.Hash, sessionIndex uint32) (SessionContext, error)
}

// ErasureCodec is the external collaborator providing erasure coding
// primitives (spec.md §1 "obtain_chunks, reconstruct"). See
// erasurecodec/ for the default Reed-Solomon adapter.
type ErasureCodec interface {
	// Reconstruct rebuilds the original payload from at least
	// threshold chunks out of validatorsLen total, keyed by chunk
	// index. It returns an error if reconstruction is not possible
	// (too few chunks, inconsistent shard sizes).
	Reconstruct(validatorsLen int, chunks map[ValidatorIndex][]byte) ([]byte, error)

	// ObtainChunks re-encodes data into validatorsLen ordered chunks,
	// the inverse of Reconstruct, used to re-derive the Merkle root
	// for the post-reconstruction root check (spec.md §4.1 step 4).
	ObtainChunks(validatorsLen int, data []byte) ([][]byte, error)
}

// MerkleVerifier is the external collaborator providing Merkle branch
// construction/verification (spec.md §1 "branches, branch_hash"). See
// erasurecodec/ for the default adapter.
type MerkleVerifier interface {
	// VerifyBranch reports whether leaf, at position index among
	// leavesCount total leaves, is consistent with root given proof.
	VerifyBranch(root crypto.Hash, proof [][]byte, index uint32, leavesCount int, leaf []byte) bool

	// Root computes the Merkle root over an ordered set of leaves
	// (spec.md §4.1 step 4, comparing against erasure_root).
	Root(leaves [][]byte) crypto.Hash
}

// Alerter exposes operationally interesting, non-fatal conditions,
// mirroring the teacher's modules.Alerter / gateway.Alerts() pattern.
type Alerter interface {
	Alerts() (crit, err, warn, info []Alert)
}

// AlertSeverity classifies an Alert.
type AlertSeverity int

const (
	SeverityInfo AlertSeverity = iota
	SeverityWarning
	SeverityError
	SeverityCritical
)

// Alert is a single operator-facing notice.
type Alert struct {
	Msg      string
	Cause    string
	Module   string
	Severity AlertSeverity
}
