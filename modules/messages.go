package modules

import "go.thebigfile.com/availcore/crypto"

// Wire message payloads (spec.md §6). Framing is out of scope; these
// are the content types the NetworkBridge adapter marshals.

// AvailableDataFetchingRequest asks a peer for the full candidate payload.
type AvailableDataFetchingRequest struct {
	CandidateHash crypto.Hash
}

// AvailableDataFetchingResponse is either a payload or NoSuchData.
type AvailableDataFetchingResponse struct {
	Data  []byte
	Found bool
}

// ChunkFetchingRequest asks a peer for a single erasure-coded chunk.
type ChunkFetchingRequest struct {
	CandidateHash crypto.Hash
	Index         ValidatorIndex
}

// ChunkFetchingResponse is either a chunk (data + Merkle proof) or
// NoSuchChunk. The requester splices its own Index into the response
// to form a verifiable ErasureChunk (spec.md §6).
type ChunkFetchingResponse struct {
	Chunk []byte
	Proof [][]byte
	Found bool
}

// ChunkRequestResult is what the network bridge delivers for one
// outstanding chunk request, tagged with the validator it was sent to
// so the fetcher can route it back into FetcherState.
type ChunkRequestResult struct {
	Validator ValidatorIndex
	Response  ChunkFetchingResponse
	Err       error
}

// IncomingAvailableDataRequest is an inbound peer request the Event
// Loop must answer from the local availability store (spec.md §4.5).
type IncomingAvailableDataRequest struct {
	CandidateHash crypto.Hash
	// Respond delivers the local answer. ok=false means NoSuchData.
	// DecodeErr, when true, means the request itself was malformed and
	// Respond must not be called; the Event Loop logs the condition with
	// its configured reputation cost and sends no reply. No reputation
	// change is applied to the peer.
	Respond   func(data []byte, ok bool)
	DecodeErr bool
}
