package recovery

import (
	"bytes"
	"context"
	"io"
	"testing"

	"gitlab.com/NebulousLabs/log"

	"go.thebigfile.com/availcore/crypto"
	"go.thebigfile.com/availcore/erasurecodec"
	"go.thebigfile.com/availcore/modules"
)

func TestBackersFetcherRecoversFromFirstMatchingBacker(t *testing.T) {
	codec := erasurecodec.New()
	payload := bytes.Repeat([]byte("backer payload "), 20)
	n := 5

	shards, err := codec.ObtainChunks(n, payload)
	if err != nil {
		t.Fatal(err)
	}
	root := codec.Root(shards)

	candidateHash := crypto.Hash{5}
	params := testParams(n, candidateHash, root)
	params.BackingGroup = []modules.ValidatorIndex{0, 1, 2}

	bridge := newFakeBridge()
	bridge.available[params.DiscoveryKeys[1]] = modules.AvailableDataFetchingResponse{Data: payload, Found: true}

	fetcher := newBackersFetcher(bridge, codec, codec, log.New(io.Discard))
	outcome := fetcher.run(context.Background(), params, 11)
	if outcome.Kind != modules.OutcomeRecovered {
		t.Fatalf("expected Recovered, got %v", outcome.Kind)
	}
	if !bytes.Equal(outcome.Data, payload) {
		t.Fatal("recovered payload does not match the backer's payload")
	}
}

func TestBackersFetcherSkipsMismatchedPayload(t *testing.T) {
	codec := erasurecodec.New()
	payload := []byte("real payload")
	wrongPayload := []byte("a different, unrelated payload of different length")
	n := 4

	shards, err := codec.ObtainChunks(n, payload)
	if err != nil {
		t.Fatal(err)
	}
	root := codec.Root(shards)

	candidateHash := crypto.Hash{6}
	params := testParams(n, candidateHash, root)
	params.BackingGroup = []modules.ValidatorIndex{0, 1}

	bridge := newFakeBridge()
	// Every backer responds, but with a payload that doesn't match the
	// erasure root; the fetcher must exhaust the list and return
	// Unavailable rather than accepting the mismatch.
	bridge.available[params.DiscoveryKeys[0]] = modules.AvailableDataFetchingResponse{Data: wrongPayload, Found: true}
	bridge.available[params.DiscoveryKeys[1]] = modules.AvailableDataFetchingResponse{Data: wrongPayload, Found: true}

	var mismatches []modules.ValidatorIndex
	fetcher := newBackersFetcher(bridge, codec, codec, log.New(io.Discard))
	fetcher.onRootMismatch = func(v modules.ValidatorIndex) {
		mismatches = append(mismatches, v)
	}

	outcome := fetcher.run(context.Background(), params, 3)
	if outcome.Kind != modules.OutcomeUnavailable {
		t.Fatalf("expected Unavailable, got %v", outcome.Kind)
	}
	if len(mismatches) != 2 {
		t.Fatalf("expected onRootMismatch to fire for both backers, got %d calls", len(mismatches))
	}
}

func TestBackersFetcherUnavailableWhenGroupEmpty(t *testing.T) {
	codec := erasurecodec.New()
	candidateHash := crypto.Hash{7}
	params := testParams(3, candidateHash, crypto.Hash{})
	params.BackingGroup = nil

	bridge := newFakeBridge()
	fetcher := newBackersFetcher(bridge, codec, codec, log.New(io.Discard))
	outcome := fetcher.run(context.Background(), params, 0)
	if outcome.Kind != modules.OutcomeUnavailable {
		t.Fatalf("expected Unavailable for an empty backing group, got %v", outcome.Kind)
	}
}
