package modules

import "gitlab.com/NebulousLabs/errors"

// Sentinel errors a NetworkBridge/AvailabilityStore implementation
// returns so the recovery engine can classify a failure the way
// spec.md §4.1 requires (NoSuchChunk vs InvalidResponse vs
// NetworkError vs Canceled all get different retry treatment).
var (
	// ErrNoSuchChunk means the peer does not hold the requested chunk.
	ErrNoSuchChunk = errors.New("no such chunk")
	// ErrNoSuchData means the peer does not hold the full payload.
	ErrNoSuchData = errors.New("no such available data")
	// ErrInvalidResponse means the peer's response was malformed.
	ErrInvalidResponse = errors.New("invalid response")
	// ErrNetworkError means the request could not be completed due to
	// a transient network condition (dial failure, reset, timeout).
	ErrNetworkError = errors.New("network error")
	// ErrCanceled means the request was canceled before completion.
	ErrCanceled = errors.New("request canceled")
	// ErrSessionInfoUnavailable means the session-info oracle has
	// nothing for the requested (block, session) pair.
	ErrSessionInfoUnavailable = errors.New("session info unavailable")
)
