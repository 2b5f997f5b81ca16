package core

import (
	"github.com/pkg/errors"

	"github.com/noctis-project/noctis/blockmodel"
	"github.com/noctis-project/noctis/ruleerrors"
)

// SubmitBlock implements spec section 4.G's submit_block: a miner
// supplies back only the block template bytes it mined (the body was
// already selected from the pool by an earlier get_block_template
// call), so the transactions must be reassembled from the mempool by
// hash before the block can go through the ordinary add_block path.
//
// If any templated transaction has since left the pool (evicted,
// expired, or never actually broadcast), this fails the same way any
// other validation rejection does: a *ruleerrors.BlockValidationError
// carrying ruleerrors.ErrTransactionAbsentInPool, rather than attempting
// a partial or incorrect reassembly. The returned code is meaningless on
// this path, exactly as it is for any other validation failure.
func (c *Core) SubmitBlock(templateBytes []byte) (ruleerrors.AddBlockErrorCode, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	tpl, err := blockmodel.DecodeBlockTemplate(templateBytes)
	if err != nil {
		return ruleerrors.DeserializationFailed, errors.Wrap(err, "decoding submitted template")
	}

	txBytes := make([][]byte, len(tpl.TxHashes))
	for i, hash := range tpl.TxHashes {
		entry, ok := c.pool.Get(hash)
		if !ok {
			return 0, ruleerrors.NewBlockValidationError(ruleerrors.ErrTransactionAbsentInPool, "transaction %s named by template is no longer pooled", hash)
		}
		txBytes[i] = entry.Tx.Encoded()
	}

	raw := &blockmodel.RawBlock{
		TemplateBytes: templateBytes,
		TxBytes:       txBytes,
	}
	return c.addBlock(raw)
}
