package segment

import (
	"testing"

	"github.com/noctis-project/noctis/blockmodel"
	"github.com/noctis-project/noctis/crypto"
)

func hashN(n byte) crypto.Hash {
	var h crypto.Hash
	h[0] = n
	return h
}

func pushSimpleBlock(t *testing.T, s *Segment, n byte, keyImages ...crypto.Hash) {
	t.Helper()
	err := s.PushBlock(PushInput{
		Hash:      hashN(n),
		Timestamp: int64(1000 + n),
		Transactions: []PushTransaction{
			{
				Hash: hashN(100 + n),
				Outputs: []blockmodel.Output{
					{Amount: 10, TargetKind: blockmodel.OutputKey},
					{Amount: 10, TargetKind: blockmodel.OutputKey},
				},
			},
		},
		SpentSet:            SpentSet{KeyImages: keyImages},
		Size:                100,
		GeneratedCoinsDelta: 5,
		Difficulty:          7,
	})
	if err != nil {
		t.Fatalf("push block %d: %v", n, err)
	}
}

func TestPushBlockAssignsGlobalIndexesInOrder(t *testing.T) {
	s := NewRoot()
	pushSimpleBlock(t, s, 1)
	pushSimpleBlock(t, s, 2)

	info, ok := s.TxInfoByHash(hashN(101))
	if !ok {
		t.Fatal("expected tx info for block 1's tx")
	}
	if info.GlobalOutputIndexes[0] != 0 || info.GlobalOutputIndexes[1] != 1 {
		t.Fatalf("block 1 global indexes = %v, want [0 1]", info.GlobalOutputIndexes)
	}

	info2, ok := s.TxInfoByHash(hashN(102))
	if !ok {
		t.Fatal("expected tx info for block 2's tx")
	}
	if info2.GlobalOutputIndexes[0] != 2 || info2.GlobalOutputIndexes[1] != 3 {
		t.Fatalf("block 2 global indexes = %v, want [2 3]", info2.GlobalOutputIndexes)
	}
}

func TestPushBlockRejectsDuplicateKeyImage(t *testing.T) {
	s := NewRoot()
	ki := hashN(200)
	pushSimpleBlock(t, s, 1, ki)

	err := s.PushBlock(PushInput{
		Hash:     hashN(2),
		SpentSet: SpentSet{KeyImages: []crypto.Hash{ki}},
	})
	if err == nil {
		t.Fatal("expected error on duplicate key image")
	}
}

func TestPushBlockRejectsKeyImageSpentInAncestor(t *testing.T) {
	root := NewRoot()
	ki := hashN(200)
	pushSimpleBlock(t, root, 1, ki)

	child, err := root.Split(1)
	if err != nil {
		t.Fatalf("split: %v", err)
	}
	child.Parent = root

	err = child.PushBlock(PushInput{
		Hash:     hashN(2),
		SpentSet: SpentSet{KeyImages: []crypto.Hash{ki}},
	})
	if err == nil {
		t.Fatal("expected rejection for key image already spent in ancestor")
	}
}

func TestSplitPartitionsIndexesByHeight(t *testing.T) {
	root := NewRoot()
	for i := byte(1); i <= 4; i++ {
		pushSimpleBlock(t, root, i)
	}

	upper, err := root.Split(2)
	if err != nil {
		t.Fatalf("split: %v", err)
	}

	if root.Count() != 2 {
		t.Fatalf("lower count = %d, want 2", root.Count())
	}
	if upper.Count() != 2 {
		t.Fatalf("upper count = %d, want 2", upper.Count())
	}

	if _, ok := root.BlockHeightByHash(hashN(1)); !ok {
		t.Fatal("expected block 1 (height 0) to remain in lower segment")
	}
	if _, ok := root.BlockHeightByHash(hashN(3)); ok {
		t.Fatal("block 3 (height 2) should have moved to upper segment")
	}
	if h, ok := upper.BlockHeightByHash(hashN(3)); !ok || h != 2 {
		t.Fatalf("expected block 3 at height 2 in upper segment, got (%d,%v)", h, ok)
	}

	if _, ok := root.TxInfoByHash(hashN(103)); ok {
		t.Fatal("tx from height 2 should have moved to upper segment")
	}
	if _, ok := upper.TxInfoByHash(hashN(103)); !ok {
		t.Fatal("tx from height 2 should be present in upper segment")
	}
}

func TestSplitPreservesGlobalIndexAssignment(t *testing.T) {
	root := NewRoot()
	for i := byte(1); i <= 3; i++ {
		pushSimpleBlock(t, root, i)
	}

	upper, err := root.Split(2)
	if err != nil {
		t.Fatalf("split: %v", err)
	}
	upper.Parent = root

	var seen []uint64
	status, err := upper.ExtractKeyOutputs(10, 100, []uint64{4, 5}, func(info *TxInfo, outIdx int, gi uint64) error {
		seen = append(seen, gi)
		return nil
	})
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if status != ExtractSuccess {
		t.Fatalf("status = %v, want ExtractSuccess", status)
	}
	if len(seen) != 2 || seen[0] != 4 || seen[1] != 5 {
		t.Fatalf("visited global indexes = %v, want [4 5]", seen)
	}
}

func TestExtractKeyOutputsInvalidIndex(t *testing.T) {
	root := NewRoot()
	pushSimpleBlock(t, root, 1)

	status, err := root.ExtractKeyOutputs(10, 100, []uint64{99}, func(*TxInfo, int, uint64) error {
		t.Fatal("visitor should not run for an invalid index")
		return nil
	})
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if status != ExtractInvalidGlobalIndex {
		t.Fatalf("status = %v, want ExtractInvalidGlobalIndex", status)
	}
}

func TestExtractKeyOutputsLockedStopsScan(t *testing.T) {
	s := NewRoot()
	err := s.PushBlock(PushInput{
		Hash: hashN(1),
		Transactions: []PushTransaction{
			{
				Hash:       hashN(101),
				UnlockTime: 1000,
				Outputs: []blockmodel.Output{
					{Amount: 10, TargetKind: blockmodel.OutputKey},
				},
			},
		},
	})
	if err != nil {
		t.Fatalf("push: %v", err)
	}

	visited := 0
	status, err := s.ExtractKeyOutputs(10, 1, []uint64{0}, func(*TxInfo, int, uint64) error {
		visited++
		return nil
	})
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if status != ExtractOutputLocked {
		t.Fatalf("status = %v, want ExtractOutputLocked", status)
	}
	if visited != 0 {
		t.Fatal("visitor should not have run for a locked output")
	}
}
