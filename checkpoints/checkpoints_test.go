package checkpoints

import (
	"testing"

	"github.com/noctis-project/noctis/crypto"
)

func hashN(n byte) crypto.Hash {
	var h crypto.Hash
	h[0] = n
	return h
}

func TestCheckBlock(t *testing.T) {
	s := New()
	if err := s.Add(10, hashN(1)); err != nil {
		t.Fatalf("add: %v", err)
	}

	if passed, isCheckpoint := s.CheckBlock(10, hashN(1)); !passed || !isCheckpoint {
		t.Fatalf("expected matching checkpoint to pass, got passed=%v isCheckpoint=%v", passed, isCheckpoint)
	}
	if passed, isCheckpoint := s.CheckBlock(10, hashN(2)); passed || !isCheckpoint {
		t.Fatalf("expected mismatched checkpoint to fail, got passed=%v isCheckpoint=%v", passed, isCheckpoint)
	}
	if passed, isCheckpoint := s.CheckBlock(11, hashN(9)); !passed || isCheckpoint {
		t.Fatalf("expected a non-checkpoint height to pass trivially, got passed=%v isCheckpoint=%v", passed, isCheckpoint)
	}
}

func TestAddRejectsDuplicateHeight(t *testing.T) {
	s := New()
	if err := s.Add(5, hashN(1)); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := s.Add(5, hashN(2)); err == nil {
		t.Fatal("expected an error re-adding an existing checkpoint height")
	}
}

func TestIsInCheckpointZone(t *testing.T) {
	s := New()
	s.Add(10, hashN(1))
	s.Add(20, hashN(2))

	if s.IsInCheckpointZone(21) {
		t.Fatal("height past every checkpoint should not be in the zone")
	}
	if !s.IsInCheckpointZone(20) || !s.IsInCheckpointZone(5) {
		t.Fatal("heights at or below the highest checkpoint should be in the zone")
	}
}

func TestIsAlternativeBlockAllowed(t *testing.T) {
	s := New()
	s.Add(10, hashN(1))

	if s.IsAlternativeBlockAllowed(0, 1) {
		t.Fatal("an empty blockchain should never allow an alternative block")
	}
	if !s.IsAlternativeBlockAllowed(5, 3) {
		t.Fatal("before the first checkpoint, any alternative should be allowed")
	}
	if s.IsAlternativeBlockAllowed(15, 10) {
		t.Fatal("an alternative that would rewrite at or before the last checkpoint must be rejected")
	}
	if !s.IsAlternativeBlockAllowed(15, 11) {
		t.Fatal("an alternative strictly after the last checkpoint should be allowed")
	}
}

func TestHeightsReturnsSortedOrder(t *testing.T) {
	s := New()
	s.Add(30, hashN(3))
	s.Add(10, hashN(1))
	s.Add(20, hashN(2))

	got := s.Heights()
	want := []uint64{10, 20, 30}
	if len(got) != len(want) {
		t.Fatalf("heights = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("heights = %v, want %v", got, want)
		}
	}
}
