package crypto

import (
	"crypto/sha256"
	"encoding/hex"

	"golang.org/x/xerrors"
)

// AddressSize is the number of bytes of an address before hex encoding.
const AddressSize = 20

// AddressOf derives the address of a public key: the hex encoding of the
// first 20 bytes of the SHA-256 digest of the marshaled key.
func AddressOf(pk PublicKey) (string, error) {
	data, err := pk.MarshalBinary()
	if err != nil {
		return "", xerrors.Errorf("couldn't marshal public key: %v", err)
	}

	digest := sha256.Sum256(data)

	return hex.EncodeToString(digest[:AddressSize]), nil
}

// IsValidAddress returns true when the string is a well-formed address.
func IsValidAddress(addr string) bool {
	if len(addr) != AddressSize*2 {
		return false
	}

	_, err := hex.DecodeString(addr)

	return err == nil
}
