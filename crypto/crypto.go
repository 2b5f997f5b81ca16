// Package crypto wraps the hash and signature primitives that spec
// section 6 treats as opaque collaborators: hash(bytes) -> 32B, a PoW
// hash variant, and key/signature/ring-signature checks. The real
// currency's primitives (a memory-hard PoW hash, CryptoNote ring
// signatures) are out of this module's scope per spec section 1; this
// package gives the validator and segment cache a concrete,
// library-backed stand-in to call so every pass/fail path in the spec
// has real code behind it.
//
// Grounded on the teacher's golang.org/x/crypto dependency, retargeted
// from address hashing (ripemd160/sha256, used for bitcoin-style
// addresses the teacher doesn't need here either) to blake2b for the
// content hash and ed25519 for key/signature checks.
package crypto

import (
	"crypto/subtle"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/ed25519"
)

// HashSize is the length in bytes of a Hash.
const HashSize = 32

// Hash is a 32-byte digest.
type Hash [HashSize]byte

// String returns the hex encoding of the hash.
func (h Hash) String() string {
	const hexDigits = "0123456789abcdef"
	out := make([]byte, 0, HashSize*2)
	for _, b := range h {
		out = append(out, hexDigits[b>>4], hexDigits[b&0x0f])
	}
	return string(out)
}

// IsZero reports whether the hash is all zero bytes.
func (h Hash) IsZero() bool {
	var zero Hash
	return h == zero
}

// HashBytes computes the content hash of b, used for transaction and
// block-template hashes per spec section 3.
func HashBytes(b []byte) Hash {
	return Hash(blake2b.Sum256(b))
}

// PoWHash computes the proof-of-work hash variant keyed by a block
// header's serialized bytes, per spec section 4.D rule 12. The real
// currency's PoW function (a memory-hard hash) is out of scope; this
// is a plain content hash standing in for it so difficulty comparison
// has a concrete function to call.
func PoWHash(header []byte) Hash {
	return HashBytes(header)
}

// PublicKeySize is the length in bytes of a PublicKey.
const PublicKeySize = ed25519.PublicKeySize

// PublicKey is an output or multisig target key.
type PublicKey [PublicKeySize]byte

// CheckKey reports whether pub is a well-formed target key. ed25519
// public keys are fixed-size by construction; the check that matters
// here is that the key is not the identity/zero key, which the
// currency's wire format would never produce for a real output.
func CheckKey(pub PublicKey) bool {
	var zero PublicKey
	return subtle.ConstantTimeCompare(pub[:], zero[:]) == 0
}

// CheckSignature verifies that sig is a valid signature over msg by
// the holder of pub.
func CheckSignature(msg []byte, pub PublicKey, sig []byte) bool {
	if len(sig) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(pub[:]), msg, sig)
}

// CheckRingSignature verifies a ring signature: a parallel list of
// per-member signatures over msg, keyed by keyImage for double-spend
// detection elsewhere. The real CryptoNote ring signature scheme
// allows any single ring member to have signed; as a concrete stand-in
// for the opaque primitive of spec section 6, this implementation
// requires at least one parallel (pubKeys[i], sigs[i]) pair to verify,
// matching the "one real signer among decoys" shape without
// implementing the actual linkable-ring-signature math.
func CheckRingSignature(msg []byte, keyImage [HashSize]byte, pubKeys []PublicKey, sigs [][]byte) bool {
	if len(pubKeys) == 0 || len(pubKeys) != len(sigs) {
		return false
	}
	for i, pub := range pubKeys {
		if CheckSignature(msg, pub, sigs[i]) {
			return true
		}
	}
	return false
}
