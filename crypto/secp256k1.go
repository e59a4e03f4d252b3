package crypto

import (
	"errors"
	"math/big"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"

	"github.com/evmkit/evmkit/types"
)

// secp256k1N is the order of the secp256k1 curve.
var secp256k1N, _ = new(big.Int).SetString("fffffffffffffffffffffffffffffffebaaedce6af48a03bbfd25e8cd0364141", 16)

// secp256k1halfN is half the order, used for the EIP-2 low-S check.
var secp256k1halfN = new(big.Int).Div(secp256k1N, big.NewInt(2))

var (
	ErrInvalidRecoveryID = errors.New("crypto: invalid recovery id")
	ErrInvalidSignature  = errors.New("crypto: invalid signature")
)

// Ecrecover recovers the 65-byte uncompressed public key from a 32-byte
// message hash and a 65-byte signature (R || S || V, V in {0,1,27,28}).
// This backs the ECRECOVER precompile (address 0x01).
func Ecrecover(hash, sig []byte) ([]byte, error) {
	pub, err := SigToPub(hash, sig)
	if err != nil {
		return nil, err
	}
	return pub.SerializeUncompressed(), nil
}

// SigToPub recovers the secp256k1 public key from hash and a 65-byte signature.
func SigToPub(hash, sig []byte) (*secp256k1.PublicKey, error) {
	if len(hash) != 32 {
		return nil, errors.New("crypto: message hash must be 32 bytes")
	}
	if len(sig) != 65 {
		return nil, ErrInvalidSignature
	}

	v := sig[64]
	switch {
	case v == 27 || v == 28:
		v -= 27
	case v == 0 || v == 1:
		// already raw
	default:
		return nil, ErrInvalidRecoveryID
	}
	if v > 1 {
		return nil, ErrInvalidRecoveryID
	}

	// decred's compact signature format is [27+recid || R(32) || S(32)].
	compact := make([]byte, 65)
	compact[0] = 27 + v
	copy(compact[1:33], sig[0:32])
	copy(compact[33:65], sig[32:64])

	pub, _, err := ecdsa.RecoverCompact(compact, hash)
	if err != nil {
		return nil, ErrInvalidSignature
	}
	return pub, nil
}

// PubkeyToAddress derives the Ethereum address from an uncompressed public key.
// Address = Keccak256(pubkey[1:])[12:].
func PubkeyToAddress(pub *secp256k1.PublicKey) types.Address {
	pubBytes := pub.SerializeUncompressed()
	hash := Keccak256(pubBytes[1:])
	return types.BytesToAddress(hash[12:])
}

// ValidateSignatureValues checks r, s, v for validity per Homestead rules.
// If homestead is true, s must be in the lower half of the curve order,
// which rejects the malleable high-S form (EIP-2).
func ValidateSignatureValues(v byte, r, s *big.Int, homestead bool) bool {
	if r == nil || s == nil {
		return false
	}
	if v > 1 {
		return false
	}
	if r.Sign() <= 0 || s.Sign() <= 0 {
		return false
	}
	if r.Cmp(secp256k1N) >= 0 || s.Cmp(secp256k1N) >= 0 {
		return false
	}
	if homestead && s.Cmp(secp256k1halfN) > 0 {
		return false
	}
	return true
}
