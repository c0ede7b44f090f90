package recovery

import (
	"go.thebigfile.com/availcore/build"
	"go.thebigfile.com/availcore/modules"
)

// fetcherState is the Chunks-phase state spec.md §3 names:
// FetcherState{pending, in_flight, collected}. It is owned entirely
// by the single goroutine running a Recovery Task's Chunk Fetcher, so
// it needs no internal locking.
type fetcherState struct {
	pending   []modules.ValidatorIndex // deque; index len-1 is the "back"
	inFlight  map[modules.ValidatorIndex]struct{}
	collected map[modules.ValidatorIndex]modules.ErasureChunk
}

func newFetcherState(n int, seed int64) *fetcherState {
	return &fetcherState{
		pending:   shuffledValidators(n, seed),
		inFlight:  make(map[modules.ValidatorIndex]struct{}),
		collected: make(map[modules.ValidatorIndex]modules.ErasureChunk),
	}
}

// removeFromPending drops idx from pending wherever it sits, used
// when the Seed step already found idx locally.
func (s *fetcherState) removeFromPending(idx modules.ValidatorIndex) {
	for i, v := range s.pending {
		if v == idx {
			s.pending = append(s.pending[:i], s.pending[i+1:]...)
			return
		}
	}
}

// insertCollected records a Merkle-verified chunk and removes its
// validator from pending/in_flight, keeping the three sets disjoint
// (spec.md §3 FetcherState invariant).
func (s *fetcherState) insertCollected(idx modules.ValidatorIndex, chunk modules.ErasureChunk) {
	if _, alreadyCollected := s.collected[idx]; alreadyCollected {
		build.Critical("fetcherState: validator collected twice", idx)
	}
	delete(s.inFlight, idx)
	s.removeFromPending(idx)
	s.collected[idx] = chunk
	if build.DEBUG {
		s.checkDisjoint()
	}
}

// checkDisjoint verifies pending/in_flight/collected share no
// validator, the invariant the Chunks phase depends on to never
// double-count a shard toward the reconstruction threshold.
func (s *fetcherState) checkDisjoint() {
	seen := make(map[modules.ValidatorIndex]string, s.total())
	mark := func(idx modules.ValidatorIndex, set string) {
		if prior, ok := seen[idx]; ok {
			build.Critical("fetcherState: validator in both", prior, "and", set, ":", idx)
		}
		seen[idx] = set
	}
	for _, idx := range s.pending {
		mark(idx, "pending")
	}
	for idx := range s.inFlight {
		mark(idx, "in_flight")
	}
	for idx := range s.collected {
		mark(idx, "collected")
	}
}

// popBack pops a validator from the back of pending (LIFO refill,
// spec.md §4.1 step 2).
func (s *fetcherState) popBack() (modules.ValidatorIndex, bool) {
	if len(s.pending) == 0 {
		return 0, false
	}
	idx := s.pending[len(s.pending)-1]
	s.pending = s.pending[:len(s.pending)-1]
	return idx, true
}

// pushFront re-queues a validator after a transient network failure
// (spec.md §4.1 step 3, NetworkError/Canceled).
func (s *fetcherState) pushFront(idx modules.ValidatorIndex) {
	s.pending = append([]modules.ValidatorIndex{idx}, s.pending...)
}

// markInFlight records idx as having an outstanding request.
func (s *fetcherState) markInFlight(idx modules.ValidatorIndex) {
	s.inFlight[idx] = struct{}{}
}

// drop removes idx from in_flight without re-queueing it (NoSuchChunk
// / InvalidResponse: "the validator is dropped from consideration").
func (s *fetcherState) drop(idx modules.ValidatorIndex) {
	delete(s.inFlight, idx)
}

// requeue moves idx from in_flight back to the front of pending.
func (s *fetcherState) requeue(idx modules.ValidatorIndex) {
	delete(s.inFlight, idx)
	s.pushFront(idx)
}

func (s *fetcherState) total() int {
	return len(s.collected) + len(s.inFlight) + len(s.pending)
}
