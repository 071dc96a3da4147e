// Package fake provides fake implementations for interfaces commonly used in
// the repository. The implementations offer configuration to return errors
// when the unit test needs them.
package fake

import (
	"hash"

	"github.com/porwchain/porw/crypto"
	"golang.org/x/xerrors"
)

var fakeErr = xerrors.New("fake error")

// GetError returns the fake error.
func GetError() error {
	return fakeErr
}

// Signer is a fake crypto.Signer that can be configured to fail.
//
// - implements crypto.Signer
type Signer struct {
	err error
}

// NewBadSigner returns a signer that always fails to sign.
func NewBadSigner() Signer {
	return Signer{err: fakeErr}
}

// GetPublicKey implements crypto.Signer.
func (s Signer) GetPublicKey() crypto.PublicKey {
	return PublicKey{}
}

// Sign implements crypto.Signer.
func (s Signer) Sign([]byte) (crypto.Signature, error) {
	if s.err != nil {
		return nil, s.err
	}

	return Signature{}, nil
}

// PublicKey is a fake crypto.PublicKey.
//
// - implements crypto.PublicKey
type PublicKey struct {
	err error
}

// NewBadPublicKey returns a public key failing to marshal.
func NewBadPublicKey() PublicKey {
	return PublicKey{err: fakeErr}
}

// MarshalBinary implements encoding.BinaryMarshaler.
func (pk PublicKey) MarshalBinary() ([]byte, error) {
	if pk.err != nil {
		return nil, pk.err
	}

	return []byte("fake-public-key"), nil
}

// Verify implements crypto.PublicKey.
func (pk PublicKey) Verify([]byte, crypto.Signature) error {
	return pk.err
}

// Equal implements crypto.PublicKey.
func (pk PublicKey) Equal(other interface{}) bool {
	_, ok := other.(PublicKey)

	return ok
}

// Signature is a fake crypto.Signature.
//
// - implements crypto.Signature
type Signature struct{}

// MarshalBinary implements encoding.BinaryMarshaler.
func (Signature) MarshalBinary() ([]byte, error) {
	return []byte("fake-signature"), nil
}

// Equal implements crypto.Signature.
func (Signature) Equal(other crypto.Signature) bool {
	_, ok := other.(Signature)

	return ok
}

// HashFactory is a fake crypto.HashFactory producing writers that fail.
//
// - implements crypto.HashFactory
type HashFactory struct{}

// NewBadHashFactory returns a factory whose hashes fail on write.
func NewBadHashFactory() HashFactory {
	return HashFactory{}
}

// New implements crypto.HashFactory.
func (HashFactory) New() hash.Hash {
	return badHash{}
}

type badHash struct{}

func (badHash) Write([]byte) (int, error) { return 0, fakeErr }
func (badHash) Sum(b []byte) []byte       { return b }
func (badHash) Reset()                    {}
func (badHash) Size() int                 { return 0 }
func (badHash) BlockSize() int            { return 32 }
