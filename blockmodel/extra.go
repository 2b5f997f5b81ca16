package blockmodel

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/noctis-project/noctis/crypto"
)

// Extra tag bytes. Spec section 3 describes a 32-byte payment-id tag
// "extracted from extra" without pinning down the tag-value-length
// framing; this module resolves that open question by reusing the
// currency's real extra-field shape: a sequence of
// [tag byte][payload], where a tag's payload length is implied by the
// tag for fixed-size fields and length-prefixed otherwise. Only the
// payment-id tag is interpreted here; the public-key and nonce tags are
// skipped by their length, while padding or any other tag ends the
// scan with no payment id.
const (
	extraTagPadding   = 0x00
	extraTagPubKey    = 0x01
	extraTagNonce     = 0x02
	extraTagPaymentID = 0x03
)

// ExtractPaymentID scans extra for the payment-id tag and returns the
// 32-byte tag it carries, or nil if extra carries none or is
// malformed. Used to populate mempool.Entry.PaymentID and
// segment.PushTransaction.PaymentID when a block or pooled transaction
// is processed.
func ExtractPaymentID(extra []byte) *crypto.Hash {
	r := bytes.NewReader(extra)
	for {
		tagByte, err := r.ReadByte()
		if err != nil {
			return nil
		}
		switch tagByte {
		case extraTagPadding:
			return nil
		case extraTagPubKey:
			var discard [crypto.PublicKeySize]byte
			if _, err := io.ReadFull(r, discard[:]); err != nil {
				return nil
			}
		case extraTagPaymentID:
			var id crypto.Hash
			if _, err := io.ReadFull(r, id[:]); err != nil {
				return nil
			}
			return &id
		case extraTagNonce:
			n, err := binary.ReadUvarint(r)
			if err != nil {
				return nil
			}
			if _, err := r.Seek(int64(n), io.SeekCurrent); err != nil {
				return nil
			}
		default:
			return nil
		}
	}
}
