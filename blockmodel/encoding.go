package blockmodel

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/pkg/errors"

	"github.com/noctis-project/noctis/crypto"
)

// EncodeTransaction canonically serializes t. Two semantically equal
// transactions always produce byte-equal output, which is the only
// requirement spec section 6 places on the wire format (hashes must be
// deterministic); the exact byte layout is this module's own, not a
// reproduction of any external protocol.
func EncodeTransaction(t *Transaction) []byte {
	var buf bytes.Buffer
	putUvarint(&buf, uint64(len(t.Inputs)))
	for _, in := range t.Inputs {
		encodeInput(&buf, in)
	}
	putUvarint(&buf, uint64(len(t.Outputs)))
	for _, out := range t.Outputs {
		encodeOutput(&buf, out)
	}
	putUvarint(&buf, t.UnlockTime)
	putUvarint(&buf, uint64(len(t.Extra)))
	buf.Write(t.Extra)
	return buf.Bytes()
}

// EncodeTransactionPrefix serializes every field of t except its
// signatures: the "prefix hash" of spec section 3 is the hash of this
// encoding.
func EncodeTransactionPrefix(t *Transaction) []byte {
	return EncodeTransaction(t)
}

// EncodeTransactionWithSignatures serializes t including its ring
// signatures, for the full transaction hash used on the wire.
func EncodeTransactionWithSignatures(t *Transaction) []byte {
	var buf bytes.Buffer
	buf.Write(EncodeTransaction(t))
	putUvarint(&buf, uint64(len(t.RingSignatures)))
	for _, sigSet := range t.RingSignatures {
		putUvarint(&buf, uint64(len(sigSet)))
		for _, sig := range sigSet {
			putUvarint(&buf, uint64(len(sig)))
			buf.Write(sig)
		}
	}
	return buf.Bytes()
}

func encodeInput(buf *bytes.Buffer, in Input) {
	buf.WriteByte(byte(in.Kind))
	switch in.Kind {
	case InputCoinbase:
		putUvarint(buf, in.CoinbaseHeight)
	case InputKey:
		putUvarint(buf, in.Amount)
		putUvarint(buf, uint64(len(in.OutputIndexes)))
		prev := uint64(0)
		for i, idx := range in.OutputIndexes {
			if i == 0 {
				putUvarint(buf, idx)
			} else {
				putUvarint(buf, idx-prev)
			}
			prev = idx
		}
		buf.Write(in.KeyImage[:])
	case InputMultisig:
		putUvarint(buf, in.Amount)
		putUvarint(buf, in.MultisigOutputIndex)
		putUvarint(buf, uint64(in.SigCount))
	}
}

func encodeOutput(buf *bytes.Buffer, out Output) {
	putUvarint(buf, out.Amount)
	buf.WriteByte(byte(out.TargetKind))
	switch out.TargetKind {
	case OutputKey:
		buf.Write(out.Key[:])
	case OutputMultisig:
		putUvarint(buf, uint64(out.RequiredSigs))
		putUvarint(buf, uint64(len(out.Keys)))
		for _, k := range out.Keys {
			buf.Write(k[:])
		}
	}
}

func putUvarint(buf *bytes.Buffer, v uint64) {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], v)
	buf.Write(tmp[:n])
}

// EncodeBlockTemplate canonically serializes a BlockTemplate header
// plus its embedded coinbase and included-tx-hash list.
func EncodeBlockTemplate(bt *BlockTemplate) []byte {
	var buf bytes.Buffer
	buf.WriteByte(bt.MajorVersion)
	buf.WriteByte(bt.MinorVersion)
	buf.Write(bt.ParentBlockHash[:])
	putUvarint(&buf, uint64(bt.Timestamp))
	putUvarint(&buf, bt.Nonce)
	coinbase := EncodeTransactionWithSignatures(bt.Coinbase)
	putUvarint(&buf, uint64(len(coinbase)))
	buf.Write(coinbase)
	putUvarint(&buf, uint64(len(bt.TxHashes)))
	for _, h := range bt.TxHashes {
		buf.Write(h[:])
	}
	return buf.Bytes()
}

// EncodeRawBlock serializes raw as the canonical blob-of-blobs of spec
// section 6: the template bytes followed by a length-prefixed list of
// transaction blobs.
func EncodeRawBlock(raw *RawBlock) []byte {
	var buf bytes.Buffer
	putUvarint(&buf, uint64(len(raw.TemplateBytes)))
	buf.Write(raw.TemplateBytes)
	putUvarint(&buf, uint64(len(raw.TxBytes)))
	for _, tx := range raw.TxBytes {
		putUvarint(&buf, uint64(len(tx)))
		buf.Write(tx)
	}
	return buf.Bytes()
}

// DecodeTransaction is the inverse of EncodeTransaction: it parses the
// input/output/unlock-time/extra fields but expects no trailing
// signature section, matching EncodeTransaction's own output.
func DecodeTransaction(data []byte) (*Transaction, error) {
	r := bytes.NewReader(data)
	t, err := decodeTransactionBody(r)
	if err != nil {
		return nil, err
	}
	return t, nil
}

// DecodeTransactionWithSignatures is the inverse of
// EncodeTransactionWithSignatures: the wire format used for every
// transaction this module actually stores or relays, since a
// transaction without its ring signatures cannot be revalidated.
func DecodeTransactionWithSignatures(data []byte) (*Transaction, error) {
	r := bytes.NewReader(data)
	t, err := decodeTransactionBody(r)
	if err != nil {
		return nil, err
	}
	sigSetCount, err := binary.ReadUvarint(r)
	if err != nil {
		return nil, errors.Wrap(err, "reading ring signature set count")
	}
	t.RingSignatures = make([][][]byte, 0, sigSetCount)
	for i := uint64(0); i < sigSetCount; i++ {
		sigCount, err := binary.ReadUvarint(r)
		if err != nil {
			return nil, errors.Wrapf(err, "reading signature count for input %d", i)
		}
		sigs := make([][]byte, 0, sigCount)
		for j := uint64(0); j < sigCount; j++ {
			sigLen, err := binary.ReadUvarint(r)
			if err != nil {
				return nil, errors.Wrapf(err, "reading signature %d/%d length", i, j)
			}
			sig := make([]byte, sigLen)
			if _, err := io.ReadFull(r, sig); err != nil {
				return nil, errors.Wrapf(err, "reading signature %d/%d bytes", i, j)
			}
			sigs = append(sigs, sig)
		}
		t.RingSignatures = append(t.RingSignatures, sigs)
	}
	return t, nil
}

func decodeTransactionBody(r *bytes.Reader) (*Transaction, error) {
	inCount, err := binary.ReadUvarint(r)
	if err != nil {
		return nil, errors.Wrap(err, "reading input count")
	}
	inputs := make([]Input, 0, inCount)
	for i := uint64(0); i < inCount; i++ {
		in, err := decodeInput(r)
		if err != nil {
			return nil, errors.Wrapf(err, "reading input %d", i)
		}
		inputs = append(inputs, in)
	}

	outCount, err := binary.ReadUvarint(r)
	if err != nil {
		return nil, errors.Wrap(err, "reading output count")
	}
	outputs := make([]Output, 0, outCount)
	for i := uint64(0); i < outCount; i++ {
		out, err := decodeOutput(r)
		if err != nil {
			return nil, errors.Wrapf(err, "reading output %d", i)
		}
		outputs = append(outputs, out)
	}

	unlockTime, err := binary.ReadUvarint(r)
	if err != nil {
		return nil, errors.Wrap(err, "reading unlock time")
	}
	extraLen, err := binary.ReadUvarint(r)
	if err != nil {
		return nil, errors.Wrap(err, "reading extra length")
	}
	extra := make([]byte, extraLen)
	if _, err := io.ReadFull(r, extra); err != nil {
		return nil, errors.Wrap(err, "reading extra bytes")
	}

	return &Transaction{Inputs: inputs, Outputs: outputs, UnlockTime: unlockTime, Extra: extra}, nil
}

func decodeInput(r *bytes.Reader) (Input, error) {
	kindByte, err := r.ReadByte()
	if err != nil {
		return Input{}, errors.Wrap(err, "reading input kind")
	}
	in := Input{Kind: InputKind(kindByte)}
	switch in.Kind {
	case InputCoinbase:
		height, err := binary.ReadUvarint(r)
		if err != nil {
			return Input{}, errors.Wrap(err, "reading coinbase height")
		}
		in.CoinbaseHeight = height
	case InputKey:
		amount, err := binary.ReadUvarint(r)
		if err != nil {
			return Input{}, errors.Wrap(err, "reading key input amount")
		}
		in.Amount = amount
		idxCount, err := binary.ReadUvarint(r)
		if err != nil {
			return Input{}, errors.Wrap(err, "reading output index count")
		}
		indexes := make([]uint64, idxCount)
		var prev uint64
		for i := range indexes {
			delta, err := binary.ReadUvarint(r)
			if err != nil {
				return Input{}, errors.Wrapf(err, "reading output index %d", i)
			}
			if i == 0 {
				indexes[i] = delta
			} else {
				indexes[i] = prev + delta
			}
			prev = indexes[i]
		}
		in.OutputIndexes = indexes
		if _, err := io.ReadFull(r, in.KeyImage[:]); err != nil {
			return Input{}, errors.Wrap(err, "reading key image")
		}
	case InputMultisig:
		amount, err := binary.ReadUvarint(r)
		if err != nil {
			return Input{}, errors.Wrap(err, "reading multisig input amount")
		}
		in.Amount = amount
		outIdx, err := binary.ReadUvarint(r)
		if err != nil {
			return Input{}, errors.Wrap(err, "reading multisig output index")
		}
		in.MultisigOutputIndex = outIdx
		sigCount, err := binary.ReadUvarint(r)
		if err != nil {
			return Input{}, errors.Wrap(err, "reading multisig sig count")
		}
		in.SigCount = uint32(sigCount)
	default:
		return Input{}, errors.Errorf("unknown input kind %d", kindByte)
	}
	return in, nil
}

func decodeOutput(r *bytes.Reader) (Output, error) {
	amount, err := binary.ReadUvarint(r)
	if err != nil {
		return Output{}, errors.Wrap(err, "reading output amount")
	}
	kindByte, err := r.ReadByte()
	if err != nil {
		return Output{}, errors.Wrap(err, "reading output target kind")
	}
	out := Output{Amount: amount, TargetKind: OutputTargetKind(kindByte)}
	switch out.TargetKind {
	case OutputKey:
		if _, err := io.ReadFull(r, out.Key[:]); err != nil {
			return Output{}, errors.Wrap(err, "reading output key")
		}
	case OutputMultisig:
		requiredSigs, err := binary.ReadUvarint(r)
		if err != nil {
			return Output{}, errors.Wrap(err, "reading required sig count")
		}
		out.RequiredSigs = uint32(requiredSigs)
		keyCount, err := binary.ReadUvarint(r)
		if err != nil {
			return Output{}, errors.Wrap(err, "reading multisig key count")
		}
		keys := make([]crypto.PublicKey, keyCount)
		for i := range keys {
			if _, err := io.ReadFull(r, keys[i][:]); err != nil {
				return Output{}, errors.Wrapf(err, "reading multisig key %d", i)
			}
		}
		out.Keys = keys
	default:
		return Output{}, errors.Errorf("unknown output target kind %d", kindByte)
	}
	return out, nil
}

// DecodeBlockTemplate is the inverse of EncodeBlockTemplate.
func DecodeBlockTemplate(data []byte) (*BlockTemplate, error) {
	r := bytes.NewReader(data)
	bt := &BlockTemplate{}
	majorVersion, err := r.ReadByte()
	if err != nil {
		return nil, errors.Wrap(err, "reading major version")
	}
	bt.MajorVersion = majorVersion
	minorVersion, err := r.ReadByte()
	if err != nil {
		return nil, errors.Wrap(err, "reading minor version")
	}
	bt.MinorVersion = minorVersion
	if _, err := io.ReadFull(r, bt.ParentBlockHash[:]); err != nil {
		return nil, errors.Wrap(err, "reading parent block hash")
	}
	timestamp, err := binary.ReadUvarint(r)
	if err != nil {
		return nil, errors.Wrap(err, "reading timestamp")
	}
	bt.Timestamp = int64(timestamp)
	nonce, err := binary.ReadUvarint(r)
	if err != nil {
		return nil, errors.Wrap(err, "reading nonce")
	}
	bt.Nonce = nonce

	coinbaseLen, err := binary.ReadUvarint(r)
	if err != nil {
		return nil, errors.Wrap(err, "reading coinbase length")
	}
	coinbaseBytes := make([]byte, coinbaseLen)
	if _, err := io.ReadFull(r, coinbaseBytes); err != nil {
		return nil, errors.Wrap(err, "reading coinbase bytes")
	}
	coinbase, err := DecodeTransactionWithSignatures(coinbaseBytes)
	if err != nil {
		return nil, errors.Wrap(err, "decoding coinbase")
	}
	bt.Coinbase = coinbase

	hashCount, err := binary.ReadUvarint(r)
	if err != nil {
		return nil, errors.Wrap(err, "reading tx hash count")
	}
	hashes := make([]crypto.Hash, hashCount)
	for i := range hashes {
		if _, err := io.ReadFull(r, hashes[i][:]); err != nil {
			return nil, errors.Wrapf(err, "reading tx hash %d", i)
		}
	}
	bt.TxHashes = hashes
	return bt, nil
}

// DecodeRawBlock is the inverse of EncodeRawBlock.
func DecodeRawBlock(data []byte) (*RawBlock, error) {
	r := bytes.NewReader(data)
	templateLen, err := binary.ReadUvarint(r)
	if err != nil {
		return nil, errors.Wrap(err, "reading template length")
	}
	template := make([]byte, templateLen)
	if _, err := io.ReadFull(r, template); err != nil {
		return nil, errors.Wrap(err, "reading template bytes")
	}
	txCount, err := binary.ReadUvarint(r)
	if err != nil {
		return nil, errors.Wrap(err, "reading tx count")
	}
	txs := make([][]byte, 0, txCount)
	for i := uint64(0); i < txCount; i++ {
		txLen, err := binary.ReadUvarint(r)
		if err != nil {
			return nil, errors.Wrapf(err, "reading tx %d length", i)
		}
		txBytes := make([]byte, txLen)
		if _, err := io.ReadFull(r, txBytes); err != nil {
			return nil, errors.Wrapf(err, "reading tx %d bytes", i)
		}
		txs = append(txs, txBytes)
	}
	return &RawBlock{TemplateBytes: template, TxBytes: txs}, nil
}
