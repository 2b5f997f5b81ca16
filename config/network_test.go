package config

import (
	"testing"

	"github.com/noctis-project/noctis/blockmodel"
)

func TestGenesisBlockDecodesAndHasNoTransactions(t *testing.T) {
	params := MainNetParams()
	raw := params.GenesisBlock()

	if len(raw.TxBytes) != 0 {
		t.Fatalf("genesis TxBytes = %d, want 0", len(raw.TxBytes))
	}

	tpl, err := blockmodel.DecodeBlockTemplate(raw.TemplateBytes)
	if err != nil {
		t.Fatalf("decoding genesis template: %s", err)
	}
	if len(tpl.TxHashes) != 0 {
		t.Fatalf("tpl.TxHashes = %d, want 0", len(tpl.TxHashes))
	}
	if tpl.Coinbase == nil || len(tpl.Coinbase.Outputs) != 1 {
		t.Fatalf("tpl.Coinbase = %+v, want exactly one output", tpl.Coinbase)
	}
	if tpl.Coinbase.Outputs[0].Key != params.FoundationKey {
		t.Fatalf("genesis coinbase key = %x, want %x", tpl.Coinbase.Outputs[0].Key, params.FoundationKey)
	}
}

func TestTestNetParamsNarrowsDifficultyWindow(t *testing.T) {
	main := MainNetParams()
	test := TestNetParams()
	if test.Consensus.DifficultyWindow >= main.Consensus.DifficultyWindow {
		t.Fatalf("testnet DifficultyWindow = %d, want fewer than mainnet's %d", test.Consensus.DifficultyWindow, main.Consensus.DifficultyWindow)
	}
}

func TestCheckpointSetSeedsEveryEntry(t *testing.T) {
	params := MainNetParams()
	var h1 [32]byte
	h1[0] = 0xAA
	params.Checkpoints = []CheckpointEntry{{Height: 10, Hash: h1}}

	set, err := params.CheckpointSet()
	if err != nil {
		t.Fatalf("CheckpointSet: %s", err)
	}
	if !set.IsInCheckpointZone(5) {
		t.Fatalf("expected height 5 to sit below the checkpoint at height 10")
	}
}
