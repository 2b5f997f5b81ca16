package core

import (
	"github.com/pkg/errors"

	"github.com/noctis-project/noctis/blockmodel"
	"github.com/noctis-project/noctis/crypto"
	"github.com/noctis-project/noctis/eventbus"
)

// AddTransaction implements spec section 4.G's add_tx_to_pool: decode
// the wire transaction and hand it to the mempool's Admit algorithm
// against the current canonical chain.
func (c *Core) AddTransaction(raw []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	height, ok := c.canonicalHeight()
	if !ok {
		return errCoreNotReady
	}

	t, err := blockmodel.DecodeTransactionWithSignatures(raw)
	if err != nil {
		return errors.Wrap(err, "decoding transaction")
	}
	tx := blockmodel.NewCachedTransaction(t)

	view := c.canonicalView()
	_, _, recentSizes := recentWindow(view, height, c.params.RewardBlocksWindow)
	paymentID := blockmodel.ExtractPaymentID(t.Extra)
	if err := c.pool.Admit(view, height+1, tx, recentSizes, paymentID); err != nil {
		return err
	}

	c.events.Publish(eventbus.NewAddTransaction([]crypto.Hash{tx.Hash()}))
	return nil
}
