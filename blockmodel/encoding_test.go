package blockmodel

import (
	"bytes"
	"testing"

	"github.com/davecgh/go-spew/spew"
	"github.com/noctis-project/noctis/crypto"
)

func sampleTransaction() *Transaction {
	var key crypto.PublicKey
	key[0] = 0xAB
	var keyImage crypto.Hash
	keyImage[0] = 0xCD
	return &Transaction{
		Inputs: []Input{
			{Kind: InputKey, Amount: 100, OutputIndexes: []uint64{5, 9, 20}, KeyImage: keyImage},
		},
		Outputs: []Output{
			{Amount: 90, TargetKind: OutputKey, Key: key},
		},
		UnlockTime: 0,
		RingSignatures: [][][]byte{
			{{1, 2, 3}, {4, 5, 6}},
		},
		Extra: []byte{0xde, 0xad, 0xbe, 0xef},
	}
}

func TestRawBlockRoundTrip(t *testing.T) {
	tx := sampleTransaction()
	raw := &RawBlock{
		TemplateBytes: []byte{1, 2, 3, 4},
		TxBytes:       [][]byte{EncodeTransactionWithSignatures(tx), {9, 9, 9}},
	}

	encoded := EncodeRawBlock(raw)
	decoded, err := DecodeRawBlock(encoded)
	if err != nil {
		t.Fatalf("DecodeRawBlock: %v", err)
	}

	if !bytes.Equal(decoded.TemplateBytes, raw.TemplateBytes) {
		t.Fatalf("template bytes mismatch: %s", spew.Sdump(decoded, raw))
	}
	if len(decoded.TxBytes) != len(raw.TxBytes) {
		t.Fatalf("tx count mismatch: got %d want %d", len(decoded.TxBytes), len(raw.TxBytes))
	}
	for i := range raw.TxBytes {
		if !bytes.Equal(decoded.TxBytes[i], raw.TxBytes[i]) {
			t.Fatalf("tx %d bytes mismatch", i)
		}
	}
}

func TestEncodeTransactionIsDeterministic(t *testing.T) {
	tx1 := sampleTransaction()
	tx2 := sampleTransaction()

	if !bytes.Equal(EncodeTransactionWithSignatures(tx1), EncodeTransactionWithSignatures(tx2)) {
		t.Fatal("two semantically equal transactions produced different encodings")
	}

	ct1 := NewCachedTransaction(tx1)
	ct2 := NewCachedTransaction(tx2)
	if ct1.Hash() != ct2.Hash() {
		t.Fatal("two semantically equal transactions produced different hashes")
	}
	if ct1.PrefixHash() != ct2.PrefixHash() {
		t.Fatal("two semantically equal transactions produced different prefix hashes")
	}
}

func TestCachedTransactionFee(t *testing.T) {
	tx := sampleTransaction()
	ct := NewCachedTransaction(tx)
	fee, ok := ct.Fee()
	if !ok {
		t.Fatal("expected valid fee")
	}
	if fee != 10 {
		t.Fatalf("fee = %d, want 10", fee)
	}
}

func TestCachedTransactionCoinbaseHasNoFee(t *testing.T) {
	tx := &Transaction{
		Inputs:  []Input{{Kind: InputCoinbase, CoinbaseHeight: 1}},
		Outputs: []Output{{Amount: 50, TargetKind: OutputKey}},
	}
	ct := NewCachedTransaction(tx)
	if _, ok := ct.Fee(); ok {
		t.Fatal("coinbase transaction should not have a well-defined fee")
	}
}
