package blockmodel

import "github.com/noctis-project/noctis/crypto"

// BlockTemplate is the parsed header of spec section 3: major/minor
// version, parent-block-hash, timestamp, nonce, coinbase transaction,
// and the list of included non-coinbase transaction hashes.
//
// Invariant: for every block above the genesis, ParentBlockHash equals
// the hash of the block at height-1 in whatever segment contains it
// (enforced by validator, not here).
type BlockTemplate struct {
	MajorVersion    uint8
	MinorVersion    uint8
	ParentBlockHash crypto.Hash
	Timestamp       int64
	Nonce           uint64
	Coinbase        *Transaction
	TxHashes        []crypto.Hash
}
