package recovery

import "go.thebigfile.com/availcore/modules"

// Overseer control signals and messages (spec.md §4.5, §6).

// ActiveLeaves reports newly activated relay-chain leaves.
type ActiveLeaves struct {
	Activated []modules.LeafInfo
}

// BlockFinalized is ignored by the recovery engine (spec.md §4.5).
type BlockFinalized struct {
	Hash   [32]byte
	Number uint64
}

// ConcludeSignal asks the subsystem to stop accepting new work and
// return cleanly (spec.md §4.5 "Shutdown").
type ConcludeSignal struct{}
