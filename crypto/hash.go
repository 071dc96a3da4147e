package crypto

import (
	"crypto/sha256"
	"hash"

	"golang.org/x/crypto/sha3"
)

// HashAlgorithm is the identifier of a supported hash algorithm.
type HashAlgorithm int

// Supported algorithms. Sha256 is the default used for contract and
// transaction identifiers.
const (
	Sha256 HashAlgorithm = iota
	Sha3_256
)

// hashFactory is a hash factory backed by the SHA family.
//
// - implements crypto.HashFactory
type hashFactory struct {
	algorithm HashAlgorithm
}

// NewHashFactory returns a factory for the given algorithm.
func NewHashFactory(a HashAlgorithm) HashFactory {
	return hashFactory{algorithm: a}
}

// NewSha256Factory returns a factory producing SHA-256 digests.
func NewSha256Factory() HashFactory {
	return hashFactory{algorithm: Sha256}
}

// New implements crypto.HashFactory. It returns a new hash instance.
func (f hashFactory) New() hash.Hash {
	switch f.algorithm {
	case Sha256:
		return sha256.New()
	case Sha3_256:
		return sha3.New256()
	default:
		panic("unknown hash algorithm")
	}
}
