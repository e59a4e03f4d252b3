package crypto

import (
	"math/big"

	"github.com/evmkit/evmkit/types"
)

// CompactSignature is a 65-byte ECDSA signature: R (32) || S (32) || V (1).
type CompactSignature struct {
	R [32]byte
	S [32]byte
	V byte
}

// ParseCompactSignature parses a 65-byte signature into a CompactSignature.
func ParseCompactSignature(sig []byte) (*CompactSignature, error) {
	if len(sig) != 65 {
		return nil, ErrInvalidSignature
	}
	cs := &CompactSignature{V: sig[64]}
	copy(cs.R[:], sig[:32])
	copy(cs.S[:], sig[32:64])
	return cs, nil
}

// Bytes encodes the compact signature as 65 bytes: R || S || V.
func (cs *CompactSignature) Bytes() []byte {
	buf := make([]byte, 65)
	copy(buf[:32], cs.R[:])
	copy(buf[32:64], cs.S[:])
	buf[64] = cs.V
	return buf
}

// RBigInt returns R as a big.Int.
func (cs *CompactSignature) RBigInt() *big.Int { return new(big.Int).SetBytes(cs.R[:]) }

// SBigInt returns S as a big.Int.
func (cs *CompactSignature) SBigInt() *big.Int { return new(big.Int).SetBytes(cs.S[:]) }

// NormalizeV converts V from any Ethereum encoding (raw 0/1, legacy 27/28,
// or EIP-155 35+2*chainID/36+2*chainID) to a raw recovery id plus chain ID.
// Returns chain ID 0 for non-EIP-155 encodings.
func NormalizeV(v *big.Int) (byte, *big.Int) {
	if v.IsInt64() {
		vu := v.Uint64()
		if vu == 0 || vu == 1 {
			return byte(vu), new(big.Int)
		}
		if vu == 27 || vu == 28 {
			return byte(vu - 27), new(big.Int)
		}
	}
	if v.Cmp(big.NewInt(35)) >= 0 {
		diff := new(big.Int).Sub(v, big.NewInt(35))
		recoveryBit := byte(new(big.Int).Mod(diff, big.NewInt(2)).Uint64())
		chainID := new(big.Int).Div(diff, big.NewInt(2))
		return recoveryBit, chainID
	}
	return 0xff, nil // invalid
}

// EcrecoverAddress recovers the signer's Ethereum address from a message
// hash and a raw (R, S, V) triple. It backs the ECRECOVER precompile,
// which validates only that r, s fall in [1, secp256k1_n) and deliberately
// does not apply the EIP-2 low-S restriction: that check exists to stop a
// party from submitting a malleable transaction signature, not to reject
// recovery against an arbitrary past (hash, r, s, v) a caller supplies
// (spec §4.9.1). It returns the zero address (not an error) on any
// recovery failure, matching the precompile's fail-soft semantics.
func EcrecoverAddress(hash types.Hash, v byte, r, s *big.Int) types.Address {
	if !ValidateSignatureValues(v, r, s, false) {
		return types.Address{}
	}
	sig := make([]byte, 65)
	rb, sb := r.Bytes(), s.Bytes()
	copy(sig[32-len(rb):32], rb)
	copy(sig[64-len(sb):64], sb)
	sig[64] = v

	pub, err := SigToPub(hash.Bytes(), sig)
	if err != nil {
		return types.Address{}
	}
	return PubkeyToAddress(pub)
}
