package vm

import (
	"github.com/holiman/uint256"

	"github.com/evmkit/evmkit/params"
)

// maxMemory is the 1 GiB ceiling spec §4.4.3 places on any single memory
// request; anything beyond it is treated as an immediate OutOfGas rather
// than an attempt to actually grow memory that far.
const maxMemory = 1 << 30

// memorySizeFunc computes the byte size of memory an opcode's stack
// arguments require, without mutating the stack. It returns ErrOutOfGas if
// the requested window overflows 64 bits or exceeds maxMemory.
type memorySizeFunc func(st *Stack) (uint64, error)

// dynamicGasFunc computes the non-constant gas an opcode's execution
// costs (memory expansion plus any opcode-specific component), given the
// memory size (already word-aligned) the opcode's memorySizeFunc reported
// and the frame's current high-water mark. It returns the gas to charge
// and the frame's new high-water mark.
type dynamicGasFunc func(evm *EVM, contract *Contract, st *Stack, mem *Memory, memSize uint64, hw uint64) (cost uint64, newHW uint64, err error)

// boundedOffsetLen adds two stack values as a memory window bound, failing
// with ErrOutOfGas rather than wrapping if the sum doesn't fit in a sane
// range.
func boundedOffsetLen(offset, length *uint256.Int) (uint64, error) {
	if length.IsZero() {
		return 0, nil
	}
	if !offset.IsUint64() || !length.IsUint64() {
		return 0, ErrOutOfGas
	}
	off, ln := offset.Uint64(), length.Uint64()
	end := off + ln
	if end < off || end > maxMemory {
		return 0, ErrOutOfGas
	}
	return end, nil
}

// memWords returns the word-count high-water mark for a byte length.
func memWords(size uint64) uint64 { return MemoryWordSize(size) }

// memCost is the Yellow Paper memory-expansion cost for a` word count:
// G_MEMORY * a + a^2/512.
func memCost(words uint64) uint64 {
	return words*params.GasMemory + (words*words)/512
}

// chargeMemExpansion computes the delta cost of growing the frame's memory
// high-water mark to cover memSize bytes, per spec §4.4.3: "global" cost is
// recomputed from scratch and only the incremental delta against the
// frame's stored high-water mark is charged.
func chargeMemExpansion(memSize uint64, hw uint64) (cost uint64, newHW uint64) {
	words := memWords(memSize)
	if words <= hw {
		return 0, hw
	}
	return memCost(words) - memCost(hw), words
}

func memSizeNone(st *Stack) (uint64, error) { return 0, nil }

func memSize1Arg(offIdx int, lenConst uint64) memorySizeFunc {
	return func(st *Stack) (uint64, error) {
		off := st.Back(offIdx)
		return boundedOffsetLen(off, uint256.NewInt(lenConst))
	}
}

func memSizeOffsetLen(offIdx, lenIdx int) memorySizeFunc {
	return func(st *Stack) (uint64, error) {
		return boundedOffsetLen(st.Back(offIdx), st.Back(lenIdx))
	}
}

// gasMemExpansionOnly is the dynamicGas function for opcodes whose only
// special cost is memory expansion (MLOAD, MSTORE, MSTORE8, RETURN).
func gasMemExpansionOnly(evm *EVM, contract *Contract, st *Stack, mem *Memory, memSize uint64, hw uint64) (uint64, uint64, error) {
	cost, newHW := chargeMemExpansion(memSize, hw)
	return cost, newHW, nil
}

// gasCopy charges memory expansion plus G_COPY per word copied, for
// CALLDATACOPY/CODECOPY/EXTCODECOPY/RETURNDATACOPY.
func gasCopy(lenIdx int) dynamicGasFunc {
	return func(evm *EVM, contract *Contract, st *Stack, mem *Memory, memSize uint64, hw uint64) (uint64, uint64, error) {
		cost, newHW := chargeMemExpansion(memSize, hw)
		length := st.Back(lenIdx)
		if !length.IsUint64() {
			return 0, hw, ErrOutOfGas
		}
		words := memWords(length.Uint64())
		return cost + words*params.GasCopy, newHW, nil
	}
}

// gasReturndataCopy additionally bounds-checks against the last call's
// return data buffer (spec §4.4.3: "raw_offset + len <= |return_data|").
func gasReturndataCopy(evm *EVM, contract *Contract, st *Stack, mem *Memory, memSize uint64, hw uint64) (uint64, uint64, error) {
	rawOffset := st.Back(1)
	length := st.Back(2)
	if !rawOffset.IsUint64() || !length.IsUint64() {
		return 0, hw, ErrOutOfBounds
	}
	end := rawOffset.Uint64() + length.Uint64()
	if end < rawOffset.Uint64() || end > uint64(len(evm.ReturnData())) {
		return 0, hw, ErrOutOfBounds
	}
	cost, newHW := chargeMemExpansion(memSize, hw)
	words := memWords(length.Uint64())
	return cost + words*params.GasCopy, newHW, nil
}

// gasKeccak256 charges memory expansion plus G_SHA3_WORD per word hashed.
func gasKeccak256(evm *EVM, contract *Contract, st *Stack, mem *Memory, memSize uint64, hw uint64) (uint64, uint64, error) {
	cost, newHW := chargeMemExpansion(memSize, hw)
	length := st.Back(1)
	if !length.IsUint64() {
		return 0, hw, ErrOutOfGas
	}
	words := memWords(length.Uint64())
	return cost + words*params.GasSha3Word, newHW, nil
}

// gasExp charges G_EXP_BYTE per byte of the exponent's bit length.
func gasExp(evm *EVM, contract *Contract, st *Stack, mem *Memory, memSize uint64, hw uint64) (uint64, uint64, error) {
	exp := st.Back(1)
	nbytes := (exp.BitLen() + 7) / 8
	return uint64(nbytes) * params.GasExpByte, hw, nil
}

// gasLog charges memory expansion plus the per-topic and per-data-byte
// components of spec §4.4.3's LOG-n formula.
func gasLog(n int) dynamicGasFunc {
	return func(evm *EVM, contract *Contract, st *Stack, mem *Memory, memSize uint64, hw uint64) (uint64, uint64, error) {
		cost, newHW := chargeMemExpansion(memSize, hw)
		length := st.Back(1)
		if !length.IsUint64() {
			return 0, hw, ErrOutOfGas
		}
		cost += uint64(n)*params.GasLogTopic + length.Uint64()*params.GasLogData
		return cost, newHW, nil
	}
}

// forwardedGas applies the EIP-150 63/64 rule to whatever of the frame's
// gas remains after base has already been notionally charged.
func forwardedGas(contract *Contract, base uint64) (forward uint64, ok bool) {
	if base > contract.Gas {
		return 0, false
	}
	available := contract.Gas - base
	return available - available/64, true
}

// gasCreate charges memory expansion, G_CREATE, and the 63/64-rule
// forwarded gas (spec §4.4.3: CREATE "debit[s] the stashed gas up front").
// The forwarded amount is stashed on evm.callGasTemp for opCreate to read.
func gasCreate(evm *EVM, contract *Contract, st *Stack, mem *Memory, memSize uint64, hw uint64) (uint64, uint64, error) {
	cost, newHW := chargeMemExpansion(memSize, hw)
	base := cost + params.GasCreate
	forward, ok := forwardedGas(contract, base)
	if !ok {
		return 0, hw, ErrOutOfGas
	}
	evm.callGasTemp = forward
	return base + forward, newHW, nil
}

// gasCreate2 is gasCreate plus G_SHA3_WORD per word of init code (the
// init-code hash CREATE2 folds into its address derivation).
func gasCreate2(evm *EVM, contract *Contract, st *Stack, mem *Memory, memSize uint64, hw uint64) (uint64, uint64, error) {
	length := st.Back(2)
	if !length.IsUint64() {
		return 0, hw, ErrOutOfGas
	}
	cost, newHW := chargeMemExpansion(memSize, hw)
	words := memWords(length.Uint64())
	base := cost + params.GasCreate + words*params.GasSha3Word
	forward, ok := forwardedGas(contract, base)
	if !ok {
		return 0, hw, ErrOutOfGas
	}
	evm.callGasTemp = forward
	return base + forward, newHW, nil
}

// gasCallFamily computes CALL/CALLCODE/DELEGATECALL/STATICCALL's dynamic
// gas: memory expansion, the value-transfer surcharge (CALL/CALLCODE),
// the new-account surcharge (CALL only — CALLCODE/DELEGATECALL/STATICCALL
// never create an account since they don't target a new receiver), and
// the EIP-150 forwarded amount, stashed on evm.callGasTemp for the
// opcode's execute stage to read (spec §4.4.3).
func gasCallFamily(hasValue, createsAccount bool) dynamicGasFunc {
	return func(evm *EVM, contract *Contract, st *Stack, mem *Memory, memSize uint64, hw uint64) (uint64, uint64, error) {
		memCost, newHW := chargeMemExpansion(memSize, hw)
		var extra uint64
		if hasValue {
			value := st.Back(2)
			if !value.IsZero() {
				extra += params.GasCallValueTransfer
				if createsAccount {
					addr := addressFromWord(st.Back(1))
					if evm.StateDB.Empty(addr) {
						extra += params.GasCallNewAccount
					}
				}
			}
		}
		base := memCost + extra
		forward, ok := forwardedGas(contract, base)
		if !ok {
			return 0, hw, ErrOutOfGas
		}
		requested := st.Back(0)
		if requested.IsUint64() && requested.Uint64() < forward {
			forward = requested.Uint64()
		}
		evm.callGasTemp = forward
		return base + forward, newHW, nil
	}
}

// sstoreDynamicGas implements spec §4.4.5: net-metered (EIP-1283) when
// evm.Cfg.EIP1283 is set, otherwise the legacy set/reset/clear schedule.
func sstoreDynamicGas(evm *EVM, contract *Contract, st *Stack, mem *Memory, memSize uint64, hw uint64) (uint64, uint64, error) {
	key32 := st.Back(0).Bytes32()
	newVal32 := st.Back(1).Bytes32()
	addr := contract.Address
	key := bytesToHashHelper(key32[:])
	newVal := bytesToHashHelper(newVal32[:])

	current := evm.StateDB.GetState(addr, key)

	if !evm.Cfg.EIP1283 {
		switch {
		case current.IsZero() && !newVal.IsZero():
			return params.GasSstoreSetLegacy, hw, nil
		case !current.IsZero() && newVal.IsZero():
			evm.StateDB.AddRefund(evm.TxContext.Origin, params.GasSstoreClearRefundLegacy)
			return params.GasSstoreResetLegacy, hw, nil
		default:
			return params.GasSstoreResetLegacy, hw, nil
		}
	}

	if current == newVal {
		return params.GasSstoreNoopEIP2200, hw, nil
	}

	original := evm.StateDB.GetCommittedState(addr, key)
	if original == current {
		if original.IsZero() {
			return params.GasSstoreInitEIP2200, hw, nil
		}
		if newVal.IsZero() {
			evm.StateDB.AddRefund(evm.TxContext.Origin, params.GasSstoreCleanRefund)
		}
		return params.GasSstoreCleanEIP2200, hw, nil
	}

	// Subsequent write within the same transaction: reverse or grant
	// refunds for transitions back to, or away from, the original value.
	if !original.IsZero() {
		if current.IsZero() {
			evm.StateDB.SubRefund(evm.TxContext.Origin, params.GasSstoreCleanRefund)
		} else if newVal.IsZero() {
			evm.StateDB.AddRefund(evm.TxContext.Origin, params.GasSstoreCleanRefund)
		}
	}
	if original == newVal {
		if original.IsZero() {
			evm.StateDB.AddRefund(evm.TxContext.Origin, params.GasSstoreInitRefund)
		} else {
			evm.StateDB.AddRefund(evm.TxContext.Origin, params.GasSstoreCleanRefund)
		}
	}
	return params.GasSstoreDirtyEIP2200, hw, nil
}

// gasSelfDestruct charges the new-account surcharge when the beneficiary
// is empty and the frame carries a balance to transfer, and grants the
// legacy per-account refund unless EIP-3529 has retired it (spec §4.4.3,
// §4.8's idempotent-refund discussion).
func gasSelfDestruct(evm *EVM, contract *Contract, st *Stack, mem *Memory, memSize uint64, hw uint64) (uint64, uint64, error) {
	cost := params.GasSelfDestruct
	beneficiary := addressFromWord(st.Back(0))
	if !evm.StateDB.GetBalance(contract.Address).IsZero() && evm.StateDB.Empty(beneficiary) {
		cost += params.GasSelfDestructNewAccount
	}
	if !evm.Cfg.EIP3529 && !evm.StateDB.HasSelfDestructed(contract.Address) {
		evm.StateDB.AddRefund(evm.TxContext.Origin, params.GasSelfDestructRefund)
	}
	return cost, hw, nil
}
