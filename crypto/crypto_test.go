package crypto

import (
	"math/big"
	"testing"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
)

// secp256k1GenerateForTest generates a throwaway key pair for signature tests.
func secp256k1GenerateForTest() (*secp256k1.PrivateKey, error) {
	return secp256k1.GeneratePrivateKey()
}

// signForTest produces a 65-byte R||S||V signature over hash using priv.
func signForTest(priv *secp256k1.PrivateKey, hash []byte) []byte {
	compact := ecdsa.SignCompact(priv, hash, false)
	sig := make([]byte, 65)
	copy(sig[0:32], compact[1:33])
	copy(sig[32:64], compact[33:65])
	sig[64] = (compact[0] - 27) & 1
	return sig
}

func TestKeccak256Empty(t *testing.T) {
	got := Keccak256Hash([]byte{})
	want := "0xc5d2460186f7233c927e7db2dcc703c0e500b653ca82273b7bfad8045d85a470"
	if got.Hex() != want {
		t.Fatalf("Keccak256(empty) = %s, want %s", got.Hex(), want)
	}
}

func TestEcrecoverRoundTrip(t *testing.T) {
	priv, err := secp256k1GenerateForTest()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	hash := Keccak256Hash([]byte("evmkit signature recovery test"))

	sig := signForTest(priv, hash.Bytes())
	addr := EcrecoverAddress(hash, sig[64], new(big.Int).SetBytes(sig[:32]), new(big.Int).SetBytes(sig[32:64]))
	wantAddr := PubkeyToAddress(priv.PubKey())
	if addr != wantAddr {
		t.Fatalf("EcrecoverAddress = %s, want %s", addr.Hex(), wantAddr.Hex())
	}
}

// TestEcrecoverAcceptsHighS checks that the ECRECOVER precompile path does
// not impose the EIP-2 low-S restriction: a signature's (r, s, v) and its
// malleable twin (r, n-s, v^1) both recover the same address.
func TestEcrecoverAcceptsHighS(t *testing.T) {
	priv, err := secp256k1GenerateForTest()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	hash := Keccak256Hash([]byte("high-s acceptance"))
	sig := signForTest(priv, hash.Bytes())
	wantAddr := PubkeyToAddress(priv.PubKey())

	s := new(big.Int).SetBytes(sig[32:64])
	highS := new(big.Int).Sub(secp256k1N, s)
	flippedV := sig[64] ^ 1

	addr := EcrecoverAddress(hash, flippedV, new(big.Int).SetBytes(sig[:32]), highS)
	if addr != wantAddr {
		t.Fatalf("EcrecoverAddress(malleable high-S) = %s, want %s", addr.Hex(), wantAddr.Hex())
	}
}

func TestEcrecoverRejectsOutOfRangeS(t *testing.T) {
	priv, err := secp256k1GenerateForTest()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	hash := Keccak256Hash([]byte("out of range s"))
	sig := signForTest(priv, hash.Bytes())

	addr := EcrecoverAddress(hash, sig[64], new(big.Int).SetBytes(sig[:32]), secp256k1N)
	if addr != ([20]byte{}) {
		t.Fatalf("expected zero address for s == secp256k1_n, got %s", addr.Hex())
	}
}
