package blockmodel

import "github.com/noctis-project/noctis/crypto"

// CachedTransaction is a Transaction plus lazily-computed memoized
// derivatives, per spec section 3: binary encoding, transaction hash,
// prefix hash, and fee.
//
// None of the accessors are safe for concurrent first-use: callers in
// this module only ever reach a CachedTransaction while holding the
// core façade's lock (spec section 5), so no internal synchronization
// is added here, matching the "no internal locking" contract spec
// section 4.B states for the segment cache.
type CachedTransaction struct {
	tx *Transaction

	encoded    []byte
	hash       *crypto.Hash
	prefixHash *crypto.Hash
	fee        *uint64
	feeOK      bool
}

// NewCachedTransaction wraps tx for memoized access.
func NewCachedTransaction(tx *Transaction) *CachedTransaction {
	return &CachedTransaction{tx: tx}
}

// Transaction returns the wrapped transaction.
func (c *CachedTransaction) Transaction() *Transaction {
	return c.tx
}

// Encoded returns (and memoizes) the canonical binary encoding,
// including signatures.
func (c *CachedTransaction) Encoded() []byte {
	if c.encoded == nil {
		c.encoded = EncodeTransactionWithSignatures(c.tx)
	}
	return c.encoded
}

// Hash returns (and memoizes) the transaction hash: the hash of the
// full encoding including signatures.
func (c *CachedTransaction) Hash() crypto.Hash {
	if c.hash == nil {
		h := crypto.HashBytes(c.Encoded())
		c.hash = &h
	}
	return *c.hash
}

// PrefixHash returns (and memoizes) the hash of every field except
// signatures.
func (c *CachedTransaction) PrefixHash() crypto.Hash {
	if c.prefixHash == nil {
		h := crypto.HashBytes(EncodeTransactionPrefix(c.tx))
		c.prefixHash = &h
	}
	return *c.prefixHash
}

// Fee returns (and memoizes) the sum of input amounts minus the sum of
// output amounts. Coinbase transactions have no well-defined fee;
// calling Fee on one returns (0, false).
func (c *CachedTransaction) Fee() (fee uint64, ok bool) {
	if c.fee != nil {
		return *c.fee, c.feeOK
	}
	if c.tx.IsCoinbase() {
		c.fee, c.feeOK = new(uint64), false
		return 0, false
	}
	inSum, overflow := c.tx.InputSum()
	if overflow {
		c.fee, c.feeOK = new(uint64), false
		return 0, false
	}
	outSum, overflow := c.tx.OutputSum()
	if overflow || outSum > inSum {
		c.fee, c.feeOK = new(uint64), false
		return 0, false
	}
	f := inSum - outSum
	c.fee = &f
	c.feeOK = true
	return f, true
}

// Size returns the byte size of the transaction's canonical encoding,
// used for block-size and mempool-size accounting.
func (c *CachedTransaction) Size() uint64 {
	return uint64(len(c.Encoded()))
}
