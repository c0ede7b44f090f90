package recovery

import (
	"encoding/binary"
	"math/rand"

	"gitlab.com/NebulousLabs/fastrand"

	"go.thebigfile.com/availcore/modules"
)

// newRecoverySeed produces a fresh, non-deterministic 64-bit seed for
// production use, using fastrand's CSPRNG the way the rest of the
// teacher's codebase sources entropy. Tests pass a fixed seed instead
// to pin validator shuffle order (spec.md
// §9 "Validator shuffling ... seed from a per-recovery random source
// so tests can pin the order"); fastrand itself has no seeding hook,
// which is exactly why it is only used here, to mint the seed, and
// never for the shuffle itself.
func newRecoverySeed() int64 {
	var b [8]byte
	fastrand.Read(b[:])
	return int64(binary.BigEndian.Uint64(b[:]))
}

// shuffledValidators returns validator indices [0, n) in a
// pseudo-random order derived from seed.
func shuffledValidators(n int, seed int64) []modules.ValidatorIndex {
	order := make([]modules.ValidatorIndex, n)
	for i := range order {
		order[i] = modules.ValidatorIndex(i)
	}
	r := rand.New(rand.NewSource(seed))
	r.Shuffle(n, func(i, j int) {
		order[i], order[j] = order[j], order[i]
	})
	return order
}
