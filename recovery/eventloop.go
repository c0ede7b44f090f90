package recovery

import (
	"context"

	"gitlab.com/NebulousLabs/log"

	"go.thebigfile.com/availcore/modules"
)

// Subsystem multiplexes the four input sources spec.md §4.5 names,
// with no starvation guarantees beyond the Go runtime's fairness
// across select cases. It owns no state of its own beyond the
// channels; all durable state lives in the Coordinator.
type Subsystem struct {
	Coordinator *Coordinator
	bridge      modules.NetworkBridge
	store       modules.AvailabilityStore
	log         *log.Logger

	// reputationCost is written to the debug log when an inbound
	// request fails to decode (spec.md §4.5, input 3). Neither the
	// engine nor the bundled network bridge applies it to the peer,
	// and no reply is sent for a malformed request.
	reputationCost int

	Signals  chan interface{}
	Requests chan RecoverRequest
}

// NewSubsystem wires a Subsystem around a Coordinator and its network
// bridge / local store collaborators.
func NewSubsystem(coordinator *Coordinator, bridge modules.NetworkBridge, store modules.AvailabilityStore, reputationCost int, logger *log.Logger) *Subsystem {
	return &Subsystem{
		Coordinator:    coordinator,
		bridge:         bridge,
		store:          store,
		log:            logger,
		reputationCost: reputationCost,
		Signals:        make(chan interface{}, 16),
		Requests:       make(chan RecoverRequest, 16),
	}
}

// Run multiplexes until a ConcludeSignal arrives or ctx is canceled,
// at which point in-flight Recovery Tasks are cancelled implicitly
// via ctx propagation (spec.md §4.5 "Shutdown").
func (s *Subsystem) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case sig := <-s.Signals:
			if done := s.handleSignal(sig); done {
				return nil
			}

		case req := <-s.Requests:
			s.Coordinator.Recover(ctx, req)

		case incoming := <-s.bridge.IncomingAvailableDataRequests():
			s.handleIncoming(ctx, incoming)

		case msg := <-s.Coordinator.Completions():
			s.Coordinator.finish(msg)
		}
	}
}

// handleSignal applies one overseer control signal and reports
// whether the subsystem should stop (spec.md §4.5, input 1).
func (s *Subsystem) handleSignal(sig interface{}) (stop bool) {
	switch v := sig.(type) {
	case ConcludeSignal:
		return true
	case ActiveLeaves:
		s.Coordinator.updateTip(v.Activated)
	case BlockFinalized:
		// Ignored (spec.md §4.5).
	default:
		s.log.Debugln("unrecognized overseer signal", v)
	}
	return false
}

// handleIncoming answers an inbound peer request from the local
// availability store (spec.md §4.5, input 3).
func (s *Subsystem) handleIncoming(ctx context.Context, req modules.IncomingAvailableDataRequest) {
	if req.DecodeErr {
		s.log.Debugln("malformed incoming available-data request; reputation cost", s.reputationCost)
		return
	}
	data, found, err := s.store.QueryAvailableData(ctx, req.CandidateHash)
	if err != nil {
		s.log.Debugln("local store query failed while answering peer request:", err)
		req.Respond(nil, false)
		return
	}
	req.Respond(data, found)
}
