package p2p

import (
	"testing"

	"github.com/noctis-project/noctis/blockmodel"
	"github.com/noctis-project/noctis/crypto"
	"github.com/noctis-project/noctis/eventbus"
	"github.com/noctis-project/noctis/p2p/relaypb"
	"github.com/noctis-project/noctis/ruleerrors"
)

// fakeSubmitter is a minimal Submitter double so Relay's message
// handling can be exercised without a real core.Core.
type fakeSubmitter struct {
	addedBlocks []*blockmodel.RawBlock
	addedTxs    [][]byte
	blocksReply []*blockmodel.RawBlock
	addBlockErr error
}

func (f *fakeSubmitter) AddBlock(raw *blockmodel.RawBlock) (ruleerrors.AddBlockErrorCode, error) {
	if f.addBlockErr != nil {
		return 0, f.addBlockErr
	}
	f.addedBlocks = append(f.addedBlocks, raw)
	return ruleerrors.AddedToMain, nil
}

func (f *fakeSubmitter) AddTransaction(raw []byte) error {
	f.addedTxs = append(f.addedTxs, raw)
	return nil
}

func (f *fakeSubmitter) QueryBlocks(knownIDs []crypto.Hash, limit int) (uint64, []*blockmodel.RawBlock, error) {
	return 0, f.blocksReply, nil
}

func TestHandleBlocksSubmitsEachToCore(t *testing.T) {
	sub := &fakeSubmitter{}
	r := NewRelay(sub, nil)

	env := &relaypb.Envelope{
		Kind: int32(relaypb.KindBlocks),
		Blocks: &relaypb.BlocksMessage{
			Blocks: []*relaypb.RawBlockMessage{
				{TemplateBytes: []byte("a")},
				{TemplateBytes: []byte("b")},
			},
		},
	}

	resp, err := r.handle(env)
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if resp != nil {
		t.Fatalf("resp = %v, want nil (blocks are fire-and-forget)", resp)
	}
	if len(sub.addedBlocks) != 2 {
		t.Fatalf("addedBlocks = %d, want 2", len(sub.addedBlocks))
	}
}

func TestHandleTxForwardsToCore(t *testing.T) {
	sub := &fakeSubmitter{}
	r := NewRelay(sub, nil)

	env := &relaypb.Envelope{Kind: int32(relaypb.KindTx), Tx: &relaypb.TxMessage{TxBytes: []byte("tx")}}
	if _, err := r.handle(env); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(sub.addedTxs) != 1 || string(sub.addedTxs[0]) != "tx" {
		t.Fatalf("addedTxs = %v, want [tx]", sub.addedTxs)
	}
}

func TestHandleGetBlocksRepliesWithBlocks(t *testing.T) {
	sub := &fakeSubmitter{blocksReply: []*blockmodel.RawBlock{{TemplateBytes: []byte("x")}}}
	r := NewRelay(sub, nil)

	env := &relaypb.Envelope{Kind: int32(relaypb.KindGetBlocks), GetBlocks: &relaypb.GetBlocksMessage{Limit: 10}}
	resp, err := r.handle(env)
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if resp == nil || relaypb.EnvelopeKind(resp.Kind) != relaypb.KindBlocks {
		t.Fatalf("resp = %v, want a KindBlocks envelope", resp)
	}
	if len(resp.Blocks.Blocks) != 1 || string(resp.Blocks.Blocks[0].TemplateBytes) != "x" {
		t.Fatalf("resp.Blocks = %v, want one block with template \"x\"", resp.Blocks.Blocks)
	}
}

func TestHandleUnknownKindErrors(t *testing.T) {
	r := NewRelay(&fakeSubmitter{}, nil)
	if _, err := r.handle(&relaypb.Envelope{Kind: 99}); err == nil {
		t.Fatal("handle(unknown kind): got nil error, want an error")
	}
}

func TestInventoryEnvelopeTranslatesBlockEvents(t *testing.T) {
	hash := crypto.Hash{0xAB}
	env := inventoryEnvelope(eventbus.NewBlock(5, hash))
	if env == nil {
		t.Fatal("inventoryEnvelope(NewBlock) = nil, want an Inv envelope")
	}
	if relaypb.EnvelopeKind(env.Kind) != relaypb.KindInv {
		t.Fatalf("Kind = %d, want KindInv", env.Kind)
	}
	if env.Inv.Height != 5 {
		t.Fatalf("Inv.Height = %d, want 5", env.Inv.Height)
	}

	if inventoryEnvelope(eventbus.NewAddTransaction(nil)) != nil {
		t.Fatal("inventoryEnvelope(AddTransaction) = non-nil, want nil (mempool churn has no wire form)")
	}
}
