package recovery

import (
	"context"
	"time"

	"gitlab.com/NebulousLabs/errors"
	"gitlab.com/NebulousLabs/log"

	"go.thebigfile.com/availcore/crypto"
	"go.thebigfile.com/availcore/modules"
)

// maxConcurrentChunkRequests caps the Chunk Fetcher's internal
// parallelism (spec.md §4.1 "up to min(50, threshold)").
const maxConcurrentChunkRequests = 50

// chunkWaveDeadline is the per-await deadline within a wait wave
// (spec.md §4.1 step 3, §5).
const chunkWaveDeadline = time.Second

// chunkFetcher runs the bounded-parallelism chunk-fetching phase of a
// recovery (spec.md §4.1).
type chunkFetcher struct {
	bridge modules.NetworkBridge
	store  modules.AvailabilityStore
	codec  modules.ErasureCodec
	merkle modules.MerkleVerifier
	log    *log.Logger

	// waveDeadline is chunkWaveDeadline by default; tests shrink it so
	// the wave-timeout-then-refill path (spec.md §4.1 step 3) can be
	// exercised without a real one-second wait.
	waveDeadline time.Duration
}

func newChunkFetcher(bridge modules.NetworkBridge, store modules.AvailabilityStore, codec modules.ErasureCodec, merkle modules.MerkleVerifier, logger *log.Logger) *chunkFetcher {
	return &chunkFetcher{bridge: bridge, store: store, codec: codec, merkle: merkle, log: logger, waveDeadline: chunkWaveDeadline}
}

// run executes the full Chunk Fetcher contract and returns the
// recovery's final outcome.
func (f *chunkFetcher) run(ctx context.Context, params modules.RecoveryParams, seed int64) modules.RecoveryOutcome {
	n := len(params.Validators)
	threshold := params.Threshold
	maxConcurrent := maxConcurrentChunkRequests
	if threshold < maxConcurrent {
		maxConcurrent = threshold
	}

	state := newFetcherState(n, seed)
	f.seedFromStore(ctx, state, params)

	responses := make(chan modules.ChunkRequestResult, maxConcurrent)
	for {
		if state.total() < threshold {
			return modules.Unavailable
		}
		if len(state.collected) >= threshold {
			return f.reconstruct(state, n, params.ErasureRoot)
		}

		// Refill: pop from the back (LIFO) while slots remain.
		for len(state.inFlight) < maxConcurrent {
			idx, ok := state.popBack()
			if !ok {
				break
			}
			state.markInFlight(idx)
			f.bridge.RequestChunk(ctx, params.DiscoveryKeys[idx], params.CandidateHash, idx, modules.TryConnect, responses)
		}

		if f.waitWave(ctx, state, responses, n, threshold, params.ErasureRoot) {
			return modules.Unavailable
		}
	}
}

// waitWave drains completions until collected reaches threshold,
// the recovery becomes unreachable, the 1-second per-await deadline
// elapses with no further completions, or ctx is canceled. It returns
// true if the recovery should terminate Unavailable right away (ctx
// canceled mid-wave).
func (f *chunkFetcher) waitWave(ctx context.Context, state *fetcherState, responses chan modules.ChunkRequestResult, n, threshold int, root crypto.Hash) bool {
	timer := time.NewTimer(f.waveDeadline)
	defer timer.Stop()
	for {
		select {
		case res := <-responses:
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			f.handleResult(state, res, n, root)
			if len(state.collected) >= threshold || state.total() < threshold {
				// Termination condition reached; break the wave so
				// run's loop can act on it (spec.md §4.1 step 3).
				return false
			}
			timer.Reset(f.waveDeadline)
		case <-timer.C:
			// Wave deadline elapsed with no further completions;
			// return to refill (spec.md §4.1 step 3).
			return false
		case <-ctx.Done():
			return true
		}
	}
}

func (f *chunkFetcher) handleResult(state *fetcherState, res modules.ChunkRequestResult, n int, root crypto.Hash) {
	switch {
	case res.Err == nil && res.Response.Found:
		if f.merkle.VerifyBranch(root, res.Response.Proof, uint32(res.Validator), n, res.Response.Chunk) {
			state.insertCollected(res.Validator, modules.ErasureChunk{
				Index: res.Validator,
				Chunk: res.Response.Chunk,
				Proof: res.Response.Proof,
			})
		} else {
			// Invalid Merkle proof: discard silently, no peer penalty
			// (spec.md §4.1: request/response channels are already
			// authenticated to discovery identity).
			state.drop(res.Validator)
		}
	case errors.Contains(res.Err, modules.ErrNoSuchChunk), errors.Contains(res.Err, modules.ErrInvalidResponse):
		state.drop(res.Validator)
	case errors.Contains(res.Err, modules.ErrNetworkError), errors.Contains(res.Err, modules.ErrCanceled):
		state.requeue(res.Validator)
	default:
		// Unclassified transport error: treat as transient, same as
		// NetworkError, so a misbehaving bridge adapter cannot starve
		// the recovery by returning opaque errors.
		state.requeue(res.Validator)
	}
}

// seedFromStore queries locally held chunks before any network
// activity (spec.md §4.1 "Seed"). Store contents are trusted; no
// Merkle re-verification is performed on them.
func (f *chunkFetcher) seedFromStore(ctx context.Context, state *fetcherState, params modules.RecoveryParams) {
	chunks, err := f.store.QueryAllChunks(ctx, params.CandidateHash)
	if err != nil {
		f.log.Debugln("querying local chunks failed, proceeding with none:", err)
		return
	}
	for _, c := range chunks {
		state.insertCollected(c.Index, c)
	}
}

func (f *chunkFetcher) reconstruct(state *fetcherState, n int, root crypto.Hash) modules.RecoveryOutcome {
	chunkMap := make(map[modules.ValidatorIndex][]byte, len(state.collected))
	for idx, c := range state.collected {
		chunkMap[idx] = c.Chunk
	}
	data, err := f.codec.Reconstruct(n, chunkMap)
	if err != nil {
		f.log.Debugln("reconstruction failed:", err)
		return modules.Invalid
	}
	reencoded, err := f.codec.ObtainChunks(n, data)
	if err != nil {
		f.log.Debugln("re-encoding reconstructed payload failed:", err)
		return modules.Invalid
	}
	if f.merkle.Root(reencoded) != root {
		return modules.Invalid
	}
	return modules.Recovered(data)
}
