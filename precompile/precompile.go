// Package precompile implements the fixed-address native contracts spec
// §4.9 requires the executive driver to special-case instead of
// interpreting as EVM bytecode.
package precompile

import (
	"crypto/sha256"
	"errors"
	"math/big"

	"golang.org/x/crypto/ripemd160"

	"github.com/evmkit/evmkit/crypto"
	"github.com/evmkit/evmkit/params"
	"github.com/evmkit/evmkit/types"
)

// Contract is the interface every fixed-address native contract
// implements: a gas-cost function over the raw call input, and the run
// function producing its output (or an error, which aborts the call the
// same way a Go error from bytecode execution would).
type Contract interface {
	RequiredGas(input []byte) uint64
	Run(input []byte) ([]byte, error)
}

// ErrNotImplemented is returned by the precompiles spec §4.9 permits an
// initial implementation to stub: their gas cost is still computed
// correctly (so callers are charged the right amount before the attempt),
// but Run always fails.
var ErrNotImplemented = errors.New("precompile: cryptographic operation not implemented")

// Registry maps the eight fixed addresses (0x01-0x08) to their contract.
var Registry = map[types.Address]Contract{
	addr(1): ecrecover{},
	addr(2): sha256Hash{},
	addr(3): ripemd160Hash{},
	addr(4): identity{},
	addr(5): modExp{},
	addr(6): bn256Add{},
	addr(7): bn256Mul{},
	addr(8): bn256Pairing{},
}

func addr(b byte) types.Address {
	var a types.Address
	a[len(a)-1] = b
	return a
}

// IsPrecompile reports whether a is one of the fixed precompile addresses.
func IsPrecompile(a types.Address) bool {
	_, ok := Registry[a]
	return ok
}

// Run charges gas against the caller's budget and executes the
// precompile at addr, returning the output, gas remaining, and any error.
func Run(a types.Address, input []byte, gas uint64) ([]byte, uint64, error) {
	c, ok := Registry[a]
	if !ok {
		return nil, gas, errors.New("precompile: no contract at address")
	}
	cost := c.RequiredGas(input)
	if gas < cost {
		return nil, 0, errors.New("precompile: out of gas")
	}
	out, err := c.Run(input)
	return out, gas - cost, err
}

// --- ECRECOVER (0x01) ---

type ecrecover struct{}

func (ecrecover) RequiredGas([]byte) uint64 { return params.GasEcrecover }

func (ecrecover) Run(input []byte) ([]byte, error) {
	input = padRight(input, 128)

	var hash types.Hash
	copy(hash[:], input[0:32])
	v := new(big.Int).SetBytes(input[32:64])
	r := new(big.Int).SetBytes(input[64:96])
	s := new(big.Int).SetBytes(input[96:128])

	if v.BitLen() > 8 {
		return nil, nil
	}
	vByte := byte(v.Uint64())
	if vByte != 27 && vByte != 28 {
		return nil, nil
	}

	recovered := crypto.EcrecoverAddress(hash, vByte-27, r, s)
	if recovered == (types.Address{}) {
		return nil, nil
	}
	out := make([]byte, 32)
	copy(out[12:], recovered.Bytes())
	return out, nil
}

// --- SHA256 (0x02) ---

type sha256Hash struct{}

func (sha256Hash) RequiredGas(input []byte) uint64 {
	return params.GasSha256Base + params.GasSha256Word*wordCount(len(input))
}

func (sha256Hash) Run(input []byte) ([]byte, error) {
	h := sha256.Sum256(input)
	return h[:], nil
}

// --- RIPEMD160 (0x03) ---

type ripemd160Hash struct{}

func (ripemd160Hash) RequiredGas(input []byte) uint64 {
	return params.GasRipemd160Base + params.GasRipemd160Word*wordCount(len(input))
}

func (ripemd160Hash) Run(input []byte) ([]byte, error) {
	h := ripemd160.New()
	h.Write(input)
	digest := h.Sum(nil)
	out := make([]byte, 32)
	copy(out[12:], digest)
	return out, nil
}

// --- IDENTITY (0x04) ---

type identity struct{}

func (identity) RequiredGas(input []byte) uint64 {
	return params.GasIdentityBase + params.GasIdentityWord*wordCount(len(input))
}

func (identity) Run(input []byte) ([]byte, error) {
	out := make([]byte, len(input))
	copy(out, input)
	return out, nil
}

// --- MODEXP (0x05) ---
//
// The gas formula is implemented in full (spec §4.9 requires every caller
// to be charged the correct amount even for a stubbed contract); the
// modular-exponentiation itself is stubbed per spec's explicit allowance
// that address 0x05 "may be stubbed (return a CallError) in an initial
// implementation."

type modExp struct{}

func (modExp) RequiredGas(input []byte) uint64 {
	input = padRight(input, 96)
	baseLen := new(big.Int).SetBytes(input[0:32]).Uint64()
	expLen := new(big.Int).SetBytes(input[32:64]).Uint64()
	modLen := new(big.Int).SetBytes(input[64:96]).Uint64()

	adjExpLen := adjustedExpLen(expLen, baseLen, input[96:])

	maxLen := baseLen
	if modLen > maxLen {
		maxLen = modLen
	}
	words := (maxLen + 7) / 8
	multComplexity := words * words

	gas := multComplexity * max64(adjExpLen, 1) / 3
	if gas < params.GasModExpMin {
		gas = params.GasModExpMin
	}
	return gas
}

func (modExp) Run([]byte) ([]byte, error) { return nil, ErrNotImplemented }

func adjustedExpLen(expLen, baseLen uint64, data []byte) uint64 {
	if expLen <= 32 {
		exp := new(big.Int).SetBytes(getDataSlice(data, baseLen, expLen))
		if exp.Sign() == 0 {
			return 0
		}
		return uint64(exp.BitLen() - 1)
	}
	firstExp := new(big.Int).SetBytes(getDataSlice(data, baseLen, 32))
	adj := uint64(0)
	if firstExp.Sign() > 0 {
		adj = uint64(firstExp.BitLen() - 1)
	}
	return adj + 8*(expLen-32)
}

// --- BN256_ADD (0x06), BN256_MUL (0x07), BN256_PAIRING (0x08) ---
//
// Gas formulas per the Byzantium schedule; runtime stubbed for the same
// reason as MODEXP.

type bn256Add struct{}

func (bn256Add) RequiredGas([]byte) uint64 { return params.GasBn256AddBase }
func (bn256Add) Run([]byte) ([]byte, error) { return nil, ErrNotImplemented }

type bn256Mul struct{}

func (bn256Mul) RequiredGas([]byte) uint64 { return params.GasBn256MulBase }
func (bn256Mul) Run([]byte) ([]byte, error) { return nil, ErrNotImplemented }

type bn256Pairing struct{}

func (bn256Pairing) RequiredGas(input []byte) uint64 {
	points := uint64(len(input) / 192)
	return params.GasBn256PairingBase + points*params.GasBn256PairingPerPt
}
func (bn256Pairing) Run([]byte) ([]byte, error) { return nil, ErrNotImplemented }

// --- shared helpers ---

func wordCount(size int) uint64 {
	if size == 0 {
		return 0
	}
	return uint64((size + 31) / 32)
}

func padRight(data []byte, minLen int) []byte {
	if len(data) >= minLen {
		return data
	}
	padded := make([]byte, minLen)
	copy(padded, data)
	return padded
}

func getDataSlice(data []byte, offset, length uint64) []byte {
	if length == 0 {
		return nil
	}
	result := make([]byte, length)
	if offset >= uint64(len(data)) {
		return result
	}
	end := offset + length
	if end > uint64(len(data)) {
		end = uint64(len(data))
	}
	copy(result, data[offset:end])
	return result
}

func max64(a, b uint64) uint64 {
	if a > b {
		return a
	}
	return b
}
