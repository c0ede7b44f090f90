package modules

import (
	"testing"

	"go.thebigfile.com/availcore/crypto"
)

func TestThreshold(t *testing.T) {
	cases := map[int]int{1: 1, 2: 1, 3: 1, 4: 2, 7: 3, 10: 4, 100: 34}
	for n, want := range cases {
		if got := Threshold(n); got != want {
			t.Errorf("Threshold(%d) = %d, want %d", n, got, want)
		}
	}
}

func TestRecoveryParamsValidate(t *testing.T) {
	valid := RecoveryParams{
		Validators:    []ValidatorID{{}, {}, {}},
		DiscoveryKeys: []DiscoveryID{"a", "b", "c"},
		Threshold:     1,
	}
	if err := valid.Validate(); err != nil {
		t.Fatal(err)
	}

	mismatched := valid
	mismatched.DiscoveryKeys = []DiscoveryID{"a", "b"}
	if err := mismatched.Validate(); err == nil {
		t.Fatal("expected error for mismatched validators/discovery_keys lengths")
	}

	empty := RecoveryParams{}
	if err := empty.Validate(); err == nil {
		t.Fatal("expected error for empty validator set")
	}

	badThreshold := valid
	badThreshold.Threshold = 0
	if err := badThreshold.Validate(); err == nil {
		t.Fatal("expected error for threshold below 1")
	}
	badThreshold.Threshold = 4
	if err := badThreshold.Validate(); err == nil {
		t.Fatal("expected error for threshold above N")
	}
}

func TestNewRecoveryParamsGroupLookup(t *testing.T) {
	ctx := SessionContext{
		Validators:    []ValidatorID{{}, {}, {}, {}},
		DiscoveryKeys: []DiscoveryID{"a", "b", "c", "d"},
		Groups: map[uint32][]ValidatorIndex{
			0: {0, 1},
		},
	}
	params := NewRecoveryParams(ctx, crypto.Hash{}, crypto.Hash{}, 0, true)
	if len(params.BackingGroup) != 2 {
		t.Fatalf("expected backing group of 2 validators, got %d", len(params.BackingGroup))
	}

	noGroup := NewRecoveryParams(ctx, crypto.Hash{}, crypto.Hash{}, 0, false)
	if noGroup.BackingGroup != nil {
		t.Fatal("expected nil backing group when hasGroup is false")
	}

	missingGroup := NewRecoveryParams(ctx, crypto.Hash{}, crypto.Hash{}, 5, true)
	if missingGroup.BackingGroup != nil {
		t.Fatal("expected nil backing group for an index the session doesn't expose")
	}
}

func TestLiveTipUpdateTracksMaxHeight(t *testing.T) {
	var tip LiveTip
	h1 := crypto.Hash{1}
	h2 := crypto.Hash{2}
	h3 := crypto.Hash{3}

	tip.Update([]LeafInfo{{Hash: h1, Number: 5}, {Hash: h2, Number: 10}})
	if tip.BlockNumber != 10 || tip.BlockHash != h2 {
		t.Fatalf("expected tip at height 10 / %v, got %d / %v", h2, tip.BlockNumber, tip.BlockHash)
	}

	tip.Update([]LeafInfo{{Hash: h3, Number: 3}})
	if tip.BlockNumber != 10 || tip.BlockHash != h2 {
		t.Fatal("expected lower-height leaf to leave the tip unchanged")
	}
}
