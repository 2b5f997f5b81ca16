// Package blockmodel implements the data model of spec section 3:
// the opaque RawBlock persisted unit, the parsed BlockTemplate header,
// the tagged-union Transaction, and the lazily-memoized
// CachedTransaction wrapper around it.
//
// Go has no tagged unions (spec section 9's design note), so Input and
// Output carry an explicit Kind discriminant alongside the union of
// fields, the way the teacher's domainmessage package represents
// on-wire variant records as flat structs with a type tag.
package blockmodel

import "github.com/noctis-project/noctis/crypto"

// InputKind discriminates a transaction input's variant.
type InputKind uint8

// Supported InputKind values.
const (
	InputCoinbase InputKind = iota
	InputKey
	InputMultisig
)

// Input is the tagged union `CoinbaseInput | KeyInput | MultisigInput`
// of spec section 3.
type Input struct {
	Kind InputKind

	// CoinbaseInput
	CoinbaseHeight uint64

	// KeyInput
	Amount        uint64
	OutputIndexes []uint64 // absolute global indexes, already delta-decoded
	KeyImage      crypto.Hash

	// MultisigInput
	MultisigOutputIndex uint64
	SigCount            uint32
}

// OutputTargetKind discriminates a transaction output's target
// variant.
type OutputTargetKind uint8

// Supported OutputTargetKind values.
const (
	OutputKey OutputTargetKind = iota
	OutputMultisig
)

// Output is `{ amount, target }` where target is
// `KeyOutput | MultisigOutput`, per spec section 3.
type Output struct {
	Amount     uint64
	TargetKind OutputTargetKind

	// KeyOutput
	Key crypto.PublicKey

	// MultisigOutput
	RequiredSigs uint32
	Keys         []crypto.PublicKey
}

// Transaction is the full parsed transaction of spec section 3.
// RingSignatures is parallel to Inputs: for a KeyInput, the signature
// set resolved against that input's ring; for a MultisigInput, the
// signer's signatures in required order; a CoinbaseInput carries no
// signature.
type Transaction struct {
	Inputs         []Input
	Outputs        []Output
	UnlockTime     uint64
	RingSignatures [][][]byte
	Extra          []byte
}

// IsCoinbase reports whether this transaction is a coinbase
// transaction: exactly one input of CoinbaseInput type.
func (t *Transaction) IsCoinbase() bool {
	return len(t.Inputs) == 1 && t.Inputs[0].Kind == InputCoinbase
}

// OutputSum returns the sum of output amounts and whether it
// overflowed a u64.
func (t *Transaction) OutputSum() (sum uint64, overflowed bool) {
	for _, out := range t.Outputs {
		next := sum + out.Amount
		if next < sum {
			return 0, true
		}
		sum = next
	}
	return sum, false
}

// InputSum returns the sum of non-coinbase input amounts and whether
// it overflowed a u64. Coinbase inputs contribute no amount (the
// reward is the output sum for a coinbase transaction).
func (t *Transaction) InputSum() (sum uint64, overflowed bool) {
	for _, in := range t.Inputs {
		if in.Kind == InputCoinbase {
			continue
		}
		next := sum + in.Amount
		if next < sum {
			return 0, true
		}
		sum = next
	}
	return sum, false
}

// GlobalOutputRef identifies one transaction output by its position
// in the canonical chain: the `(block_height, tx_index, output_index)`
// triple of spec section 3's global output index.
type GlobalOutputRef struct {
	BlockHeight uint64
	TxIndex     uint32
	OutputIndex uint32
}

// PerBlockStats are the cached per-block statistics of spec section 3.
type PerBlockStats struct {
	Hash                         crypto.Hash
	Timestamp                    int64
	CumulativeDifficulty         uint64
	AlreadyGeneratedCoins        uint64
	AlreadyGeneratedTransactions uint64
	BlockSize                    uint64
}

// RawBlock is the opaque persisted unit of spec section 3: a block
// template blob plus an ordered sequence of opaque transaction blobs.
type RawBlock struct {
	TemplateBytes []byte
	TxBytes       [][]byte
}
