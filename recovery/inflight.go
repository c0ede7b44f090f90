package recovery

import (
	"go.thebigfile.com/availcore/crypto"
	"go.thebigfile.com/availcore/modules"
)

// waiter is a single caller awaiting a recovery's outcome. Done is
// closed by the caller when it is no longer interested (the Go
// analogue of dropping a oneshot receiver); Response is only ever
// written to by the Coordinator goroutine.
type waiter struct {
	response chan<- modules.RecoveryOutcome
	done     <-chan struct{}
}

// inFlightRecovery is the Coordinator's bookkeeping for a recovery
// that has been started but not yet completed (spec.md §3). At most
// one exists per RecoveryKey at any time.
type inFlightRecovery struct {
	key     crypto.Hash
	cancel  func()
	waiters []waiter
}

func (r *inFlightRecovery) addWaiter(w waiter) {
	r.waiters = append(r.waiters, w)
}

// broadcast delivers outcome to every still-live waiter, silently
// skipping any whose Done has already fired (spec.md §4.4 "Waiter
// cancellation").
func (r *inFlightRecovery) broadcast(outcome modules.RecoveryOutcome) {
	for _, w := range r.waiters {
		select {
		case <-w.done:
			// Receiver dropped; skip silently.
		default:
			select {
			case w.response <- outcome:
			case <-w.done:
			}
		}
	}
}
