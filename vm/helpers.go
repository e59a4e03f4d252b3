package vm

import (
	"github.com/holiman/uint256"

	"github.com/evmkit/evmkit/types"
)

// addressFromWord extracts the low 20 bytes of a stack word as an address,
// the convention every address-taking opcode (BALANCE, EXTCODESIZE, the
// CALL family, ...) uses.
func addressFromWord(w *uint256.Int) types.Address {
	return types.Address(w.Bytes20())
}

// bytesToHashHelper wraps types.BytesToHash for call sites that already
// have a fixed-size slice in hand.
func bytesToHashHelper(b []byte) types.Hash {
	return types.BytesToHash(b)
}

// addressToWord widens an address into a stack word (zero-extended).
func addressToWord(addr types.Address) *uint256.Int {
	var w uint256.Int
	w.SetBytes(addr[:])
	return &w
}

// hashToWord widens a hash into a stack word.
func hashToWord(h types.Hash) *uint256.Int {
	var w uint256.Int
	w.SetBytes(h[:])
	return &w
}
