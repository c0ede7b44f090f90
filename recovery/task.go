package recovery

import (
	"context"

	"gitlab.com/NebulousLabs/log"

	"go.thebigfile.com/availcore/build"
	"go.thebigfile.com/availcore/modules"
)

// phase tags the small closed set of phases a Recovery Task can run,
// represented as a variant rather than dynamic dispatch (spec.md §9
// "avoid dynamic dispatch for the phase itself").
type phase int

const (
	phaseLocal phase = iota
	phaseBackers
	phaseChunks
)

// task drives a single recovery end-to-end through Local -> Backers
// (optional) -> Chunks, strictly in that order (spec.md §4.3, §5).
type task struct {
	key    modules.RecoveryKey
	params modules.RecoveryParams

	store    modules.AvailabilityStore
	backers  *backersFetcher
	chunks   *chunkFetcher
	fastPath bool
	seed     int64
	log      *log.Logger

	onBackerMismatch func(modules.ValidatorIndex)
}

// run executes the state machine and returns the terminal outcome.
func (t *task) run(ctx context.Context) modules.RecoveryOutcome {
	// Phase 0: Local.
	if data, found, err := t.store.QueryAvailableData(ctx, t.key); err != nil {
		t.log.Debugln(build.ExtendErr("local availability-store query failed, falling through to network recovery", err))
	} else if found {
		// No Merkle check necessary; the store is authoritative for
		// locally written data (spec.md §4.3 Phase 0).
		return modules.Recovered(data)
	}

	// Route: Backers is enabled only in fast-path mode with a backing
	// group the session info exposes (spec.md §4.3 Phase 1).
	if t.fastPath && len(t.params.BackingGroup) > 0 {
		t.backers.onRootMismatch = t.onBackerMismatch
		switch outcome := t.backers.run(ctx, t.params, t.seed); outcome.Kind {
		case modules.OutcomeRecovered, modules.OutcomeInvalid:
			return outcome
		case modules.OutcomeUnavailable:
			// Fall through to Chunks.
		}
	}

	// Phase 2: Chunks. Its outcome is the recovery's outcome.
	return t.chunks.run(ctx, t.params, t.seed)
}
