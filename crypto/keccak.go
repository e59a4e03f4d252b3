// Package crypto provides the hash and signature primitives the engine
// treats as external collaborators: Keccak-256 (trie hashing, CREATE
// address derivation, code hashing, the SHA3 opcode) and secp256k1
// signature recovery (the ECRECOVER precompile).
package crypto

import (
	"github.com/evmkit/evmkit/types"
	"golang.org/x/crypto/sha3"
)

// Keccak256 calculates the Keccak-256 hash of the given data.
func Keccak256(data ...[]byte) []byte {
	d := sha3.NewLegacyKeccak256()
	for _, b := range data {
		d.Write(b)
	}
	return d.Sum(nil)
}

// Keccak256Hash calculates Keccak-256 and returns it as a types.Hash.
func Keccak256Hash(data ...[]byte) types.Hash {
	return types.BytesToHash(Keccak256(data...))
}
