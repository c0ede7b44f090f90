package recovery

import (
	"context"
	"math/rand"

	"gitlab.com/NebulousLabs/errors"
	"gitlab.com/NebulousLabs/log"

	"go.thebigfile.com/availcore/modules"
)

// backersFetcher runs the optional fast-path phase of a recovery,
// requesting the full payload from the candidate's backing group in
// random order (spec.md §4.2).
type backersFetcher struct {
	bridge modules.NetworkBridge
	codec  modules.ErasureCodec
	merkle modules.MerkleVerifier
	log    *log.Logger

	// onRootMismatch, when non-nil, is invoked for every backer whose
	// payload fails the root check, so the Recovery Task can register
	// the backer-root-mismatch alert (SPEC_FULL.md §4.9) without
	// backersFetcher itself depending on the alerting subsystem.
	onRootMismatch func(modules.ValidatorIndex)
}

func newBackersFetcher(bridge modules.NetworkBridge, codec modules.ErasureCodec, merkle modules.MerkleVerifier, logger *log.Logger) *backersFetcher {
	return &backersFetcher{bridge: bridge, codec: codec, merkle: merkle, log: logger}
}

// run requests the full payload sequentially from each backer in
// random order, returning on the first payload whose re-encoding
// matches erasureRoot, or Unavailable once the list is exhausted.
func (f *backersFetcher) run(ctx context.Context, params modules.RecoveryParams, seed int64) modules.RecoveryOutcome {
	order := make([]modules.ValidatorIndex, len(params.BackingGroup))
	copy(order, params.BackingGroup)
	rand.New(rand.NewSource(seed)).Shuffle(len(order), func(i, j int) {
		order[i], order[j] = order[j], order[i]
	})

	n := len(params.Validators)
	for _, validator := range order {
		resp, err := f.bridge.RequestAvailableData(ctx, params.DiscoveryKeys[validator], params.CandidateHash, modules.TryConnect)
		if err != nil {
			// NoSuchData and transport errors are logged and the next
			// backer is tried (spec.md §4.2); no peer accounting.
			f.log.Debugln("backer request failed, trying next backer:", err)
			continue
		}
		if !resp.Found {
			continue
		}
		reencoded, err := f.codec.ObtainChunks(n, resp.Data)
		if err != nil {
			f.log.Debugln("re-encoding backer payload failed, trying next backer:", errors.AddContext(err, "backer"))
			continue
		}
		if f.merkle.Root(reencoded) != params.ErasureRoot {
			// A mismatched payload causes the loop to continue without
			// reporting the peer (spec.md §4.2, open question in §9:
			// preserve "continue silently" but surface a metric).
			if f.onRootMismatch != nil {
				f.onRootMismatch(validator)
			}
			continue
		}
		return modules.Recovered(resp.Data)
	}
	return modules.Unavailable
}
