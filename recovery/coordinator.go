package recovery

import (
	"context"

	"gitlab.com/NebulousLabs/log"
	"gitlab.com/NebulousLabs/threadgroup"

	"go.thebigfile.com/availcore/build"
	"go.thebigfile.com/availcore/crypto"
	"go.thebigfile.com/availcore/modules"
)

// RecoverRequest is the Coordinator's entry point (spec.md §4.4
// "recover(candidate_receipt, session_index, backing_group,
// response_channel)").
type RecoverRequest struct {
	CandidateHash crypto.Hash
	ErasureRoot   crypto.Hash
	SessionIndex  uint32
	BackingGroup  *uint32

	// Response receives exactly one outcome, unless Done fires first.
	Response chan<- modules.RecoveryOutcome
	// Done, when closed, means the caller is no longer interested
	// (the Go analogue of dropping a oneshot receiver).
	Done <-chan struct{}
}

type completionMsg struct {
	key     crypto.Hash
	outcome modules.RecoveryOutcome
}

// Coordinator deduplicates recovery requests, owns the LRU of
// completed outcomes, and fans results out to waiters (spec.md §4.4).
// Its in-flight table is touched only from the Event Loop goroutine, so
// it needs no lock (spec.md §5 "Shared state"); the cache carries its
// own mutex because the debug API reads its length from another
// goroutine.
type Coordinator struct {
	cache    *recoveryCache
	inFlight map[crypto.Hash]*inFlightRecovery

	sessionOracle modules.SessionInfoOracle
	bridge        modules.NetworkBridge
	store         modules.AvailabilityStore
	codec         modules.ErasureCodec
	merkle        modules.MerkleVerifier
	fastPath      bool

	alerter *modules.GenericAlerter
	log     *log.Logger
	tg      *threadgroup.ThreadGroup

	// completions is the one-shot channel Recovery Tasks report their
	// outcome through (spec.md §5): each finished task sends exactly
	// one completionMsg here, and only the Event Loop ever reads it.
	completions chan completionMsg

	liveTip modules.LiveTip
}

// NewCoordinator wires a Coordinator against its external
// collaborators (spec.md §6) and a fast-path/chunks-only mode
// (spec.md §6 "Configuration").
func NewCoordinator(
	sessionOracle modules.SessionInfoOracle,
	bridge modules.NetworkBridge,
	store modules.AvailabilityStore,
	codec modules.ErasureCodec,
	merkle modules.MerkleVerifier,
	fastPath bool,
	logger *log.Logger,
) *Coordinator {
	return &Coordinator{
		cache:         newRecoveryCache(),
		inFlight:      make(map[crypto.Hash]*inFlightRecovery),
		sessionOracle: sessionOracle,
		bridge:        bridge,
		store:         store,
		codec:         codec,
		merkle:        merkle,
		fastPath:      fastPath,
		alerter:       modules.NewAlerter("recovery"),
		log:           logger,
		tg:            new(threadgroup.ThreadGroup),
		completions:   make(chan completionMsg, 64),
	}
}

// Alerts implements modules.Alerter.
func (c *Coordinator) Alerts() (crit, err, warn, info []modules.Alert) {
	return c.alerter.Alerts()
}

// CacheLen reports the LRU's current occupancy, used by the debug API.
func (c *Coordinator) CacheLen() int {
	return c.cache.len()
}

// Completions exposes the one-shot completion channel the Event Loop
// multiplexes (spec.md §4.5, input 4).
func (c *Coordinator) Completions() <-chan completionMsg {
	return c.completions
}

// updateTip is called by the Event Loop on ActiveLeaves (spec.md
// §4.5, input 1); it is the anchor for session-info queries.
func (c *Coordinator) updateTip(leaves []modules.LeafInfo) {
	c.liveTip.Update(leaves)
}

// Recover implements the Coordinator's cache-hit / in-flight-join /
// cold-start contract (spec.md §4.4). It must only be called from the
// Event Loop goroutine.
func (c *Coordinator) Recover(ctx context.Context, req RecoverRequest) {
	if outcome, ok := c.cache.get(req.CandidateHash); ok {
		deliver(req.Response, req.Done, outcome, c.log)
		return
	}
	if existing, ok := c.inFlight[req.CandidateHash]; ok {
		existing.addWaiter(waiter{response: req.Response, done: req.Done})
		return
	}
	c.coldStart(ctx, req)
}

func (c *Coordinator) coldStart(ctx context.Context, req RecoverRequest) {
	sessionCtx, err := c.sessionOracle.SessionInfo(ctx, c.liveTip.BlockHash, req.SessionIndex)
	if err != nil {
		c.log.Debugln("session info unavailable for recovery", req.CandidateHash, err)
		deliver(req.Response, req.Done, modules.Unavailable, c.log)
		return
	}

	var groupIdx uint32
	hasGroup := req.BackingGroup != nil
	if hasGroup {
		groupIdx = *req.BackingGroup
	}
	params := modules.NewRecoveryParams(sessionCtx, req.CandidateHash, req.ErasureRoot, groupIdx, hasGroup)
	if err := params.Validate(); err != nil {
		c.log.Debugln("invalid recovery params for", req.CandidateHash, err)
		deliver(req.Response, req.Done, modules.Unavailable, c.log)
		return
	}

	if _, exists := c.inFlight[req.CandidateHash]; exists {
		// Recover already checked the in-flight map and should have
		// joined this entry instead of cold-starting a second one.
		build.Critical("coordinator: duplicate in-flight recovery for", req.CandidateHash)
	}
	entry := &inFlightRecovery{key: req.CandidateHash}
	entry.addWaiter(waiter{response: req.Response, done: req.Done})
	c.inFlight[req.CandidateHash] = entry

	taskCtx, cancel := context.WithCancel(ctx)
	entry.cancel = cancel

	t := &task{
		key:      req.CandidateHash,
		params:   params,
		store:    c.store,
		backers:  newBackersFetcher(c.bridge, c.codec, c.merkle, c.log),
		chunks:   newChunkFetcher(c.bridge, c.store, c.codec, c.merkle, c.log),
		fastPath: c.fastPath,
		seed:     newRecoverySeed(),
		log:      c.log,
		onBackerMismatch: func(modules.ValidatorIndex) {
			c.alerter.RegisterAlert(
				"backer-root-mismatch-"+req.CandidateHash.String(),
				"a backer returned a payload inconsistent with the erasure root",
				req.CandidateHash.String(),
				modules.SeverityWarning,
			)
		},
	}

	if err := c.tg.Add(); err != nil {
		// Subsystem is shutting down; fail this recovery rather than
		// leak an untracked goroutine.
		delete(c.inFlight, req.CandidateHash)
		deliver(req.Response, req.Done, modules.Unavailable, c.log)
		return
	}
	go func() {
		defer c.tg.Done()
		outcome := t.run(taskCtx)
		select {
		case c.completions <- completionMsg{key: req.CandidateHash, outcome: outcome}:
		case <-ctx.Done():
		}
	}()
}

// finish is called by the Event Loop for each drained completion: it
// caches the outcome, broadcasts it, and removes the in-flight entry
// (spec.md §4.4 "Completion").
func (c *Coordinator) finish(msg completionMsg) {
	c.cache.put(msg.key, msg.outcome)
	entry, ok := c.inFlight[msg.key]
	if !ok {
		return
	}
	delete(c.inFlight, msg.key)
	entry.broadcast(msg.outcome)
	if msg.outcome.Kind == modules.OutcomeUnavailable {
		c.alerter.RegisterAlert(
			"unavailable-"+msg.key.String(),
			"recovery exhausted all sources",
			msg.key.String(),
			modules.SeverityInfo,
		)
	} else {
		c.alerter.UnregisterAlert("unavailable-" + msg.key.String())
	}
}

// deliver sends outcome on resp unless done fires first, logging a
// dropped cache-hit delivery as a recoverable, caller-visible failure
// (spec.md §7 "Caller-visible failures").
func deliver(resp chan<- modules.RecoveryOutcome, done <-chan struct{}, outcome modules.RecoveryOutcome, logger *log.Logger) {
	select {
	case resp <- outcome:
	case <-done:
		logger.Debugln("caller dropped its response channel before delivery")
	}
}

// Close stops the Coordinator: it proactively cancels every in-flight
// Recovery Task via its own context rather than waiting on the
// caller's ctx to propagate, then waits for the resulting goroutines
// to drain (spec.md §4.5 "Shutdown").
func (c *Coordinator) Close() error {
	for _, entry := range c.inFlight {
		entry.cancel()
	}
	return c.tg.Stop()
}
