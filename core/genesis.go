package core

import (
	"github.com/pkg/errors"

	"github.com/noctis-project/noctis/blockmodel"
	"github.com/noctis-project/noctis/eventbus"
	"github.com/noctis-project/noctis/segment"
	"github.com/noctis-project/noctis/segmenttree"
)

// AddGenesis seeds the empty chain with the genesis block. It bypasses
// the ordinary validation pipeline the way the currency's real genesis
// block always does (there is no parent to validate against, no
// difficulty retarget window, no reward history): the block is taken
// on trust, the same way segmenttree.Tree.PushGenesis bypasses
// AddBlock's parent lookup. Returns an error if the chain already has
// a genesis block.
func (c *Core) AddGenesis(raw *blockmodel.RawBlock) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.canonicalHeight(); ok {
		return errors.New("genesis block already present")
	}

	decoded, err := decodeBlock(raw)
	if err != nil {
		return errors.Wrap(err, "decoding genesis block")
	}

	mat := segmenttree.BlockMaterial{
		Hash: decoded.hash,
		Push: genesisPushInput(decoded, c.params.MinimumDifficulty),
		Raw:  raw,
	}

	if err := c.tree.PushGenesis(mat); err != nil {
		return err
	}
	c.events.Publish(eventbus.NewBlock(0, decoded.hash))
	return nil
}

// genesisPushInput builds the segment.PushInput for a genesis block:
// no parent, no difficulty window, no fee/reward history — the whole
// coinbase output sum becomes GeneratedCoinsDelta outright and
// difficulty is the network floor. Shared by AddGenesis and Load's
// store replay, which both bypass the ordinary validation pipeline for
// the same reason (spec section 4.C's genesis special case).
func genesisPushInput(decoded *decodedBlock, minimumDifficulty uint64) segment.PushInput {
	var coinbaseSum uint64
	for _, out := range decoded.template.Coinbase.Outputs {
		coinbaseSum += out.Amount
	}

	working := &segment.SpentSet{}
	pushTxs := make([]segment.PushTransaction, len(decoded.transactions))
	size := blockmodel.NewCachedTransaction(decoded.template.Coinbase).Size()
	for i, tx := range decoded.transactions {
		t := tx.Transaction()
		pushTxs[i] = segment.PushTransaction{
			Hash:       tx.Hash(),
			Outputs:    t.Outputs,
			UnlockTime: t.UnlockTime,
			PaymentID:  blockmodel.ExtractPaymentID(t.Extra),
		}
		size += tx.Size()
	}

	return segment.PushInput{
		Hash:                decoded.hash,
		Timestamp:           decoded.template.Timestamp,
		Transactions:        pushTxs,
		SpentSet:            *working,
		Size:                size,
		GeneratedCoinsDelta: coinbaseSum,
		Difficulty:          minimumDifficulty,
	}
}
