// Package ed25519 implements the signer abstraction with Schnorr signatures
// over the Edwards 25519 elliptic curve, through the kyber library.
package ed25519

import (
	"bytes"
	"fmt"

	"github.com/porwchain/porw/crypto"
	"github.com/porwchain/porw/crypto/loader"
	"go.dedis.ch/kyber/v3"
	"go.dedis.ch/kyber/v3/sign/schnorr"
	"go.dedis.ch/kyber/v3/suites"
	"go.dedis.ch/kyber/v3/util/key"
	"golang.org/x/xerrors"
)

// Algorithm is the name of the signature scheme.
const Algorithm = "CURVE-ED25519"

var suite = suites.MustFind("Ed25519")

// PublicKey is the adapter of a kyber Ed25519 point.
//
// - implements crypto.PublicKey
type PublicKey struct {
	point kyber.Point
}

// NewPublicKey returns the public key unmarshaled from the data.
func NewPublicKey(data []byte) (PublicKey, error) {
	point := suite.Point()

	err := point.UnmarshalBinary(data)
	if err != nil {
		return PublicKey{}, xerrors.Errorf("couldn't unmarshal point: %v", err)
	}

	return PublicKey{point: point}, nil
}

// MarshalBinary implements encoding.BinaryMarshaler. It produces the byte
// representation of the public key.
func (pk PublicKey) MarshalBinary() ([]byte, error) {
	return pk.point.MarshalBinary()
}

// Verify implements crypto.PublicKey. It returns nil when the signature
// matches the message for this public key.
func (pk PublicKey) Verify(msg []byte, sig crypto.Signature) error {
	signature, ok := sig.(Signature)
	if !ok {
		return xerrors.Errorf("invalid signature type '%T'", sig)
	}

	err := schnorr.Verify(suite, pk.point, msg, signature.data)
	if err != nil {
		return xerrors.Errorf("schnorr verify failed: %v", err)
	}

	return nil
}

// Equal implements crypto.PublicKey. It returns true when the other public
// key is the same point.
func (pk PublicKey) Equal(other interface{}) bool {
	pubkey, ok := other.(PublicKey)
	if !ok {
		return false
	}

	return pubkey.point.Equal(pk.point)
}

// String implements fmt.Stringer. It returns a shortened representation of
// the point for logs.
func (pk PublicKey) String() string {
	data, err := pk.point.MarshalBinary()
	if err != nil {
		return "schnorr:malformed_point"
	}

	return fmt.Sprintf("schnorr:%x", data)[:8+16]
}

// Signature is the adapter of a kyber Schnorr signature.
//
// - implements crypto.Signature
type Signature struct {
	data []byte
}

// NewSignature returns a new signature from the data.
func NewSignature(data []byte) Signature {
	return Signature{data: data}
}

// MarshalBinary implements encoding.BinaryMarshaler. It returns the bytes of
// the signature.
func (sig Signature) MarshalBinary() ([]byte, error) {
	return sig.data, nil
}

// Equal implements crypto.Signature. It returns true when both signatures
// hold the same bytes.
func (sig Signature) Equal(other crypto.Signature) bool {
	otherSig, ok := other.(Signature)
	if !ok {
		return false
	}

	return bytes.Equal(sig.data, otherSig.data)
}

// Signer is the adapter of a kyber Ed25519 key pair.
//
// - implements crypto.Signer
type Signer struct {
	keyPair *key.Pair
}

// NewSigner generates a new random key pair and returns the signer.
func NewSigner() Signer {
	return Signer{
		keyPair: key.NewKeyPair(suite),
	}
}

// NewSignerFromBytes restores a signer from the marshaled private key.
func NewSignerFromBytes(data []byte) (Signer, error) {
	scalar := suite.Scalar()

	err := scalar.UnmarshalBinary(data)
	if err != nil {
		return Signer{}, xerrors.Errorf("couldn't unmarshal scalar: %v", err)
	}

	kp := &key.Pair{
		Private: scalar,
		Public:  suite.Point().Mul(scalar, nil),
	}

	return Signer{keyPair: kp}, nil
}

// LoadSigner loads the signer key through the loader, generating and storing
// a fresh one when none exists yet.
func LoadSigner(ld loader.Loader) (Signer, error) {
	data, err := ld.LoadOrCreate(generator{})
	if err != nil {
		return Signer{}, xerrors.Errorf("while loading: %v", err)
	}

	signer, err := NewSignerFromBytes(data)
	if err != nil {
		return Signer{}, xerrors.Errorf("while restoring: %v", err)
	}

	return signer, nil
}

// GetPublicKey implements crypto.Signer. It returns the public key of the
// key pair.
func (s Signer) GetPublicKey() crypto.PublicKey {
	return PublicKey{point: s.keyPair.Public}
}

// GetAddress returns the address derived from the public key.
func (s Signer) GetAddress() (string, error) {
	return crypto.AddressOf(s.GetPublicKey())
}

// Sign implements crypto.Signer. It returns the Schnorr signature of the
// message.
func (s Signer) Sign(msg []byte) (crypto.Signature, error) {
	sig, err := schnorr.Sign(suite, s.keyPair.Private, msg)
	if err != nil {
		return nil, xerrors.Errorf("couldn't sign: %v", err)
	}

	return Signature{data: sig}, nil
}

// generator creates a fresh private key for the loader.
//
// - implements loader.Generator
type generator struct{}

// Generate implements loader.Generator. It returns the marshaled private key
// of a new random key pair.
func (generator) Generate() ([]byte, error) {
	kp := key.NewKeyPair(suite)

	data, err := kp.Private.MarshalBinary()
	if err != nil {
		return nil, xerrors.Errorf("couldn't marshal scalar: %v", err)
	}

	return data, nil
}
