package core

import (
	"testing"

	"golang.org/x/crypto/ed25519"

	"github.com/noctis-project/noctis/blockmodel"
	"github.com/noctis-project/noctis/crypto"
	"github.com/noctis-project/noctis/eventbus"
)

// TestAddTransactionPublishesAddTransactionEvent guards spec section
// 4.H/5's event-bus contract: a successful pool admission must publish
// a KindAddTransaction event, the same way every other admission path
// (blocks, chain switches, pool evictions) already does.
func TestAddTransactionPublishesAddTransactionEvent(t *testing.T) {
	c := newTestCore(t)

	// The genesis block carries one non-coinbase transaction alongside
	// the coinbase, purely to seed a spendable key output: AddGenesis
	// bypasses the ordinary validation pipeline, so this extra
	// transaction's own (absent) inputs are never checked.
	pub, priv := ed25519.GenerateKey(nil)
	var seedKey [32]byte
	copy(seedKey[:], pub)

	reward := c.params.BaseReward(0)
	seedTx := &blockmodel.Transaction{
		Outputs: []blockmodel.Output{{Amount: reward, TargetKind: blockmodel.OutputKey, Key: seedKey}},
	}
	seedCached := blockmodel.NewCachedTransaction(seedTx)

	genesisTpl := &blockmodel.BlockTemplate{
		MajorVersion: 1,
		Timestamp:    1_700_000_000,
		Coinbase: &blockmodel.Transaction{
			Inputs:     []blockmodel.Input{{Kind: blockmodel.InputCoinbase, CoinbaseHeight: 0}},
			Outputs:    []blockmodel.Output{{Amount: reward, TargetKind: blockmodel.OutputKey, Key: testMinerKey()}},
			UnlockTime: c.params.MinedMoneyUnlockWindow,
		},
		TxHashes: []crypto.Hash{seedCached.Hash()},
	}
	genesisRaw := &blockmodel.RawBlock{
		TemplateBytes: blockmodel.EncodeBlockTemplate(genesisTpl),
		TxBytes:       [][]byte{blockmodel.EncodeTransactionWithSignatures(seedTx)},
	}
	if err := c.AddGenesis(genesisRaw); err != nil {
		t.Fatalf("AddGenesis: %v", err)
	}

	spendPub, _ := ed25519.GenerateKey(nil)
	var spendKey [32]byte
	copy(spendKey[:], spendPub)

	spendTx := &blockmodel.Transaction{
		Inputs: []blockmodel.Input{
			{Kind: blockmodel.InputKey, Amount: reward, OutputIndexes: []uint64{0}, KeyImage: hashN(7)},
		},
		Outputs: []blockmodel.Output{{Amount: reward - 1, TargetKind: blockmodel.OutputKey, Key: spendKey}},
	}
	cachedSpend := blockmodel.NewCachedTransaction(spendTx)
	msg := cachedSpend.PrefixHash()
	spendTx.RingSignatures = [][][]byte{{ed25519.Sign(priv, msg[:])}}

	sub := c.events.Subscribe(8)
	if err := c.AddTransaction(blockmodel.EncodeTransactionWithSignatures(spendTx)); err != nil {
		t.Fatalf("AddTransaction: %v", err)
	}

	ev, err := sub.Front()
	if err != nil {
		t.Fatalf("Front: %v", err)
	}
	if ev.Kind != eventbus.KindAddTransaction {
		t.Fatalf("event kind = %v, want KindAddTransaction", ev.Kind)
	}
	if len(ev.Hashes) != 1 || ev.Hashes[0] != cachedSpend.Hash() {
		t.Fatalf("event hashes = %v, want [%s]", ev.Hashes, cachedSpend.Hash())
	}
}
