package core

import (
	"github.com/pkg/errors"

	"github.com/noctis-project/noctis/blockmodel"
	"github.com/noctis-project/noctis/crypto"
)

// decodedBlock is a RawBlock parsed into its header and cached,
// hash-checked transactions.
type decodedBlock struct {
	hash         crypto.Hash
	template     *blockmodel.BlockTemplate
	transactions []*blockmodel.CachedTransaction
}

// decodeBlock parses raw and verifies that its transaction blobs hash
// to exactly the TxHashes list the template claims, in the same
// order: a raw block is a blob-of-blobs (spec section 6), and nothing
// about the wire format otherwise ties the two together.
func decodeBlock(raw *blockmodel.RawBlock) (*decodedBlock, error) {
	tpl, err := blockmodel.DecodeBlockTemplate(raw.TemplateBytes)
	if err != nil {
		return nil, errors.Wrap(err, "decoding block template")
	}
	if len(raw.TxBytes) != len(tpl.TxHashes) {
		return nil, errors.Errorf("block carries %d transaction blobs but template names %d hashes", len(raw.TxBytes), len(tpl.TxHashes))
	}

	txs := make([]*blockmodel.CachedTransaction, len(raw.TxBytes))
	for i, blob := range raw.TxBytes {
		t, err := blockmodel.DecodeTransactionWithSignatures(blob)
		if err != nil {
			return nil, errors.Wrapf(err, "decoding transaction %d", i)
		}
		cached := blockmodel.NewCachedTransaction(t)
		if cached.Hash() != tpl.TxHashes[i] {
			return nil, errors.Errorf("transaction %d hash mismatch: blob hashes to %s, template names %s", i, cached.Hash(), tpl.TxHashes[i])
		}
		txs[i] = cached
	}

	hash := crypto.HashBytes(blockmodel.EncodeBlockTemplate(tpl))
	return &decodedBlock{hash: hash, template: tpl, transactions: txs}, nil
}
