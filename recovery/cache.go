package recovery

import (
	lru "github.com/hashicorp/golang-lru"
	"gitlab.com/NebulousLabs/demotemutex"

	"go.thebigfile.com/availcore/crypto"
	"go.thebigfile.com/availcore/modules"
)

// cacheCapacity is the fixed LRU size spec.md §3 names for
// RecoveryCache: "purely a latency optimisation; never authoritative".
const cacheCapacity = 16

// recoveryCache is a bounded LRU mapping RecoveryKey to RecoveryOutcome.
// It is owned by the event loop goroutine for writes (spec.md §5,
// "accessed only by the event loop"), but the debug API's /cache
// handler reads its length from a different goroutine, so every
// access is guarded by a demotemutex the way low-contention,
// occasionally cross-goroutine Sia state is guarded elsewhere in the
// teacher's codebase.
type recoveryCache struct {
	lru *lru.Cache
	mu  demotemutex.DemoteMutex
}

func newRecoveryCache() *recoveryCache {
	c, err := lru.New(cacheCapacity)
	if err != nil {
		// lru.New only errors for a non-positive size; cacheCapacity
		// is a positive constant, so this can never happen.
		panic(err)
	}
	return &recoveryCache{lru: c}
}

// get returns the cached outcome for key, if present.
func (c *recoveryCache) get(key crypto.Hash) (modules.RecoveryOutcome, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.lru.Get(key)
	if !ok {
		return modules.RecoveryOutcome{}, false
	}
	return v.(modules.RecoveryOutcome), true
}

// put inserts or refreshes key's cached outcome.
func (c *recoveryCache) put(key crypto.Hash, outcome modules.RecoveryOutcome) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Add(key, outcome)
}

// len reports the number of cached outcomes, used by the debug API.
func (c *recoveryCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}
