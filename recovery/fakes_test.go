package recovery

import (
	"context"
	"time"

	"go.thebigfile.com/availcore/crypto"
	"go.thebigfile.com/availcore/modules"
)

// fakeBridge is an in-memory modules.NetworkBridge double, built the
// way the teacher's own package-internal tests construct lightweight
// fakes rather than pulling in a mocking framework.
type fakeBridge struct {
	chunks      map[modules.ValidatorIndex]modules.ChunkFetchingResponse
	chunkErrs   map[modules.ValidatorIndex]error
	chunkDelays map[modules.ValidatorIndex]time.Duration
	available   map[modules.DiscoveryID]modules.AvailableDataFetchingResponse
	availErrs   map[modules.DiscoveryID]error
	incoming    chan modules.IncomingAvailableDataRequest
	chunkCalls  []modules.ValidatorIndex
}

func newFakeBridge() *fakeBridge {
	return &fakeBridge{
		chunks:      make(map[modules.ValidatorIndex]modules.ChunkFetchingResponse),
		chunkErrs:   make(map[modules.ValidatorIndex]error),
		chunkDelays: make(map[modules.ValidatorIndex]time.Duration),
		available:   make(map[modules.DiscoveryID]modules.AvailableDataFetchingResponse),
		availErrs:   make(map[modules.DiscoveryID]error),
		incoming:    make(chan modules.IncomingAvailableDataRequest, 1),
	}
}

// RequestChunk implements modules.NetworkBridge. A per-index delay
// registered in chunkDelays lets tests stagger response arrival, e.g.
// to cross a chunk fetcher's wave deadline deliberately.
func (b *fakeBridge) RequestChunk(ctx context.Context, discoveryKey modules.DiscoveryID, candidateHash crypto.Hash, index modules.ValidatorIndex, disposition modules.Disposition, out chan<- modules.ChunkRequestResult) {
	b.chunkCalls = append(b.chunkCalls, index)
	go func() {
		if d, ok := b.chunkDelays[index]; ok {
			select {
			case <-time.After(d):
			case <-ctx.Done():
				return
			}
		}
		result := modules.ChunkRequestResult{Validator: index}
		if err, ok := b.chunkErrs[index]; ok {
			result.Err = err
		} else if resp, ok := b.chunks[index]; ok {
			result.Response = resp
		} else {
			result.Err = modules.ErrNoSuchChunk
		}
		select {
		case out <- result:
		case <-ctx.Done():
		}
	}()
}

func (b *fakeBridge) RequestAvailableData(ctx context.Context, discoveryKey modules.DiscoveryID, candidateHash crypto.Hash, disposition modules.Disposition) (modules.AvailableDataFetchingResponse, error) {
	if err, ok := b.availErrs[discoveryKey]; ok {
		return modules.AvailableDataFetchingResponse{}, err
	}
	if resp, ok := b.available[discoveryKey]; ok {
		return resp, nil
	}
	return modules.AvailableDataFetchingResponse{}, modules.ErrNoSuchData
}

func (b *fakeBridge) IncomingAvailableDataRequests() <-chan modules.IncomingAvailableDataRequest {
	return b.incoming
}

// fakeStore is an in-memory modules.AvailabilityStore double.
type fakeStore struct {
	data   map[crypto.Hash][]byte
	chunks map[crypto.Hash][]modules.ErasureChunk
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		data:   make(map[crypto.Hash][]byte),
		chunks: make(map[crypto.Hash][]modules.ErasureChunk),
	}
}

func (s *fakeStore) QueryAvailableData(ctx context.Context, candidateHash crypto.Hash) ([]byte, bool, error) {
	data, ok := s.data[candidateHash]
	return data, ok, nil
}

func (s *fakeStore) QueryAllChunks(ctx context.Context, candidateHash crypto.Hash) ([]modules.ErasureChunk, error) {
	return s.chunks[candidateHash], nil
}

// fakeOracle is an in-memory modules.SessionInfoOracle double.
type fakeOracle struct {
	ctx modules.SessionContext
	err error
}

func (o *fakeOracle) SessionInfo(ctx context.Context, liveBlockHash crypto.Hash, sessionIndex uint32) (modules.SessionContext, error) {
	return o.ctx, o.err
}
