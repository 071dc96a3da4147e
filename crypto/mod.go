// Package crypto defines the cryptographic primitives consumed by the
// contract engine: a hash factory for deterministic digests, and the signer
// abstraction used to sign and verify contract transactions.
//
// The engine treats signatures as opaque bytes keyed by an address; the
// concrete scheme lives in the sub-packages.
package crypto

import (
	"encoding"
	"hash"
)

// HashFactory is an interface to produce a hash digest.
type HashFactory interface {
	New() hash.Hash
}

// Signature is a verifiable element for a unique message.
type Signature interface {
	encoding.BinaryMarshaler

	// Equal returns true when the other signature is the same.
	Equal(other Signature) bool
}

// PublicKey is a public identity that can be used to verify a signature.
type PublicKey interface {
	encoding.BinaryMarshaler

	// Verify returns nil when the signature matches the message for this
	// public key.
	Verify(msg []byte, sig Signature) error

	// Equal returns true when the other public key is the same.
	Equal(other interface{}) bool
}

// Signer provides the primitives to sign and verify messages.
type Signer interface {
	// GetPublicKey returns the public key of the signer.
	GetPublicKey() PublicKey

	// Sign returns the signature of the message.
	Sign(msg []byte) (Signature, error)
}
