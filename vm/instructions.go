package vm

import (
	"errors"

	"github.com/holiman/uint256"

	"github.com/evmkit/evmkit/crypto"
	"github.com/evmkit/evmkit/types"
)

// Arithmetic

func opAdd(pc uint64, evm *EVM, contract *Contract, mem *Memory, st *Stack) (uint64, []byte, error) {
	x, y := st.Pop(), st.Peek()
	y.Add(&x, y)
	return pc + 1, nil, nil
}

func opMul(pc uint64, evm *EVM, contract *Contract, mem *Memory, st *Stack) (uint64, []byte, error) {
	x, y := st.Pop(), st.Peek()
	y.Mul(&x, y)
	return pc + 1, nil, nil
}

func opSub(pc uint64, evm *EVM, contract *Contract, mem *Memory, st *Stack) (uint64, []byte, error) {
	x, y := st.Pop(), st.Peek()
	y.Sub(&x, y)
	return pc + 1, nil, nil
}

func opDiv(pc uint64, evm *EVM, contract *Contract, mem *Memory, st *Stack) (uint64, []byte, error) {
	x, y := st.Pop(), st.Peek()
	y.Div(&x, y)
	return pc + 1, nil, nil
}

func opSdiv(pc uint64, evm *EVM, contract *Contract, mem *Memory, st *Stack) (uint64, []byte, error) {
	x, y := st.Pop(), st.Peek()
	y.SDiv(&x, y)
	return pc + 1, nil, nil
}

func opMod(pc uint64, evm *EVM, contract *Contract, mem *Memory, st *Stack) (uint64, []byte, error) {
	x, y := st.Pop(), st.Peek()
	y.Mod(&x, y)
	return pc + 1, nil, nil
}

func opSmod(pc uint64, evm *EVM, contract *Contract, mem *Memory, st *Stack) (uint64, []byte, error) {
	x, y := st.Pop(), st.Peek()
	y.SMod(&x, y)
	return pc + 1, nil, nil
}

func opAddmod(pc uint64, evm *EVM, contract *Contract, mem *Memory, st *Stack) (uint64, []byte, error) {
	x, y, z := st.Pop(), st.Pop(), st.Peek()
	z.AddMod(&x, &y, z)
	return pc + 1, nil, nil
}

func opMulmod(pc uint64, evm *EVM, contract *Contract, mem *Memory, st *Stack) (uint64, []byte, error) {
	x, y, z := st.Pop(), st.Pop(), st.Peek()
	z.MulMod(&x, &y, z)
	return pc + 1, nil, nil
}

func opExp(pc uint64, evm *EVM, contract *Contract, mem *Memory, st *Stack) (uint64, []byte, error) {
	base, exponent := st.Pop(), st.Peek()
	exponent.Exp(&base, exponent)
	return pc + 1, nil, nil
}

func opSignExtend(pc uint64, evm *EVM, contract *Contract, mem *Memory, st *Stack) (uint64, []byte, error) {
	back, num := st.Pop(), st.Peek()
	num.ExtendSign(num, &back)
	return pc + 1, nil, nil
}

// Comparison / bitwise

func opLt(pc uint64, evm *EVM, contract *Contract, mem *Memory, st *Stack) (uint64, []byte, error) {
	x, y := st.Pop(), st.Peek()
	if x.Lt(y) {
		y.SetOne()
	} else {
		y.Clear()
	}
	return pc + 1, nil, nil
}

func opGt(pc uint64, evm *EVM, contract *Contract, mem *Memory, st *Stack) (uint64, []byte, error) {
	x, y := st.Pop(), st.Peek()
	if x.Gt(y) {
		y.SetOne()
	} else {
		y.Clear()
	}
	return pc + 1, nil, nil
}

func opSlt(pc uint64, evm *EVM, contract *Contract, mem *Memory, st *Stack) (uint64, []byte, error) {
	x, y := st.Pop(), st.Peek()
	if x.Slt(y) {
		y.SetOne()
	} else {
		y.Clear()
	}
	return pc + 1, nil, nil
}

func opSgt(pc uint64, evm *EVM, contract *Contract, mem *Memory, st *Stack) (uint64, []byte, error) {
	x, y := st.Pop(), st.Peek()
	if x.Sgt(y) {
		y.SetOne()
	} else {
		y.Clear()
	}
	return pc + 1, nil, nil
}

func opEq(pc uint64, evm *EVM, contract *Contract, mem *Memory, st *Stack) (uint64, []byte, error) {
	x, y := st.Pop(), st.Peek()
	if x.Eq(y) {
		y.SetOne()
	} else {
		y.Clear()
	}
	return pc + 1, nil, nil
}

func opIszero(pc uint64, evm *EVM, contract *Contract, mem *Memory, st *Stack) (uint64, []byte, error) {
	x := st.Peek()
	if x.IsZero() {
		x.SetOne()
	} else {
		x.Clear()
	}
	return pc + 1, nil, nil
}

func opAnd(pc uint64, evm *EVM, contract *Contract, mem *Memory, st *Stack) (uint64, []byte, error) {
	x, y := st.Pop(), st.Peek()
	y.And(&x, y)
	return pc + 1, nil, nil
}

func opOr(pc uint64, evm *EVM, contract *Contract, mem *Memory, st *Stack) (uint64, []byte, error) {
	x, y := st.Pop(), st.Peek()
	y.Or(&x, y)
	return pc + 1, nil, nil
}

func opXor(pc uint64, evm *EVM, contract *Contract, mem *Memory, st *Stack) (uint64, []byte, error) {
	x, y := st.Pop(), st.Peek()
	y.Xor(&x, y)
	return pc + 1, nil, nil
}

func opNot(pc uint64, evm *EVM, contract *Contract, mem *Memory, st *Stack) (uint64, []byte, error) {
	x := st.Peek()
	x.Not(x)
	return pc + 1, nil, nil
}

func opByte(pc uint64, evm *EVM, contract *Contract, mem *Memory, st *Stack) (uint64, []byte, error) {
	th, val := st.Pop(), st.Peek()
	val.Byte(&th)
	return pc + 1, nil, nil
}

func opShl(pc uint64, evm *EVM, contract *Contract, mem *Memory, st *Stack) (uint64, []byte, error) {
	shift, value := st.Pop(), st.Peek()
	if shift.LtUint64(256) {
		value.Lsh(value, uint(shift.Uint64()))
	} else {
		value.Clear()
	}
	return pc + 1, nil, nil
}

func opShr(pc uint64, evm *EVM, contract *Contract, mem *Memory, st *Stack) (uint64, []byte, error) {
	shift, value := st.Pop(), st.Peek()
	if shift.LtUint64(256) {
		value.Rsh(value, uint(shift.Uint64()))
	} else {
		value.Clear()
	}
	return pc + 1, nil, nil
}

func opSar(pc uint64, evm *EVM, contract *Contract, mem *Memory, st *Stack) (uint64, []byte, error) {
	shift, value := st.Pop(), st.Peek()
	if shift.GtUint64(255) {
		if value.Sign() >= 0 {
			value.Clear()
		} else {
			value.SetAllOne()
		}
		return pc + 1, nil, nil
	}
	value.SRsh(value, uint(shift.Uint64()))
	return pc + 1, nil, nil
}

func opKeccak256(pc uint64, evm *EVM, contract *Contract, mem *Memory, st *Stack) (uint64, []byte, error) {
	offset, length := st.Pop(), st.Peek()
	data := mem.GetPtr(offset.Uint64(), length.Uint64())
	hash := crypto.Keccak256(data)
	length.SetBytes(hash)
	return pc + 1, nil, nil
}

// Environment

func opAddress(pc uint64, evm *EVM, contract *Contract, mem *Memory, st *Stack) (uint64, []byte, error) {
	st.Push(addressToWord(contract.Address))
	return pc + 1, nil, nil
}

func opBalance(pc uint64, evm *EVM, contract *Contract, mem *Memory, st *Stack) (uint64, []byte, error) {
	slot := st.Peek()
	addr := addressFromWord(slot)
	slot.Set(evm.StateDB.GetBalance(addr))
	return pc + 1, nil, nil
}

func opOrigin(pc uint64, evm *EVM, contract *Contract, mem *Memory, st *Stack) (uint64, []byte, error) {
	st.Push(addressToWord(evm.TxContext.Origin))
	return pc + 1, nil, nil
}

func opCaller(pc uint64, evm *EVM, contract *Contract, mem *Memory, st *Stack) (uint64, []byte, error) {
	st.Push(addressToWord(contract.CallerAddress))
	return pc + 1, nil, nil
}

func opCallvalue(pc uint64, evm *EVM, contract *Contract, mem *Memory, st *Stack) (uint64, []byte, error) {
	st.Push(new(uint256.Int).Set(contract.Value))
	return pc + 1, nil, nil
}

func opCalldataload(pc uint64, evm *EVM, contract *Contract, mem *Memory, st *Stack) (uint64, []byte, error) {
	slot := st.Peek()
	offset, overflow := slot.Uint64WithOverflow()
	if overflow {
		slot.Clear()
		return pc + 1, nil, nil
	}
	slot.SetBytes(getDataPadded(contract.Input, offset, 32))
	return pc + 1, nil, nil
}

func opCalldatasize(pc uint64, evm *EVM, contract *Contract, mem *Memory, st *Stack) (uint64, []byte, error) {
	st.Push(new(uint256.Int).SetUint64(uint64(len(contract.Input))))
	return pc + 1, nil, nil
}

func opCalldatacopy(pc uint64, evm *EVM, contract *Contract, mem *Memory, st *Stack) (uint64, []byte, error) {
	memOffset, dataOffset, length := st.Pop(), st.Pop(), st.Pop()
	off, overflow := dataOffset.Uint64WithOverflow()
	if overflow {
		off = ^uint64(0)
	}
	data := getDataPadded(contract.Input, off, length.Uint64())
	mem.Set(memOffset.Uint64(), data)
	return pc + 1, nil, nil
}

func opCodesize(pc uint64, evm *EVM, contract *Contract, mem *Memory, st *Stack) (uint64, []byte, error) {
	st.Push(new(uint256.Int).SetUint64(uint64(len(contract.Code))))
	return pc + 1, nil, nil
}

func opCodecopy(pc uint64, evm *EVM, contract *Contract, mem *Memory, st *Stack) (uint64, []byte, error) {
	memOffset, codeOffset, length := st.Pop(), st.Pop(), st.Pop()
	off, overflow := codeOffset.Uint64WithOverflow()
	if overflow {
		off = ^uint64(0)
	}
	data := getDataPadded(contract.Code, off, length.Uint64())
	mem.Set(memOffset.Uint64(), data)
	return pc + 1, nil, nil
}

func opGasprice(pc uint64, evm *EVM, contract *Contract, mem *Memory, st *Stack) (uint64, []byte, error) {
	st.Push(new(uint256.Int).Set(evm.TxContext.GasPrice))
	return pc + 1, nil, nil
}

func opExtcodesize(pc uint64, evm *EVM, contract *Contract, mem *Memory, st *Stack) (uint64, []byte, error) {
	slot := st.Peek()
	addr := addressFromWord(slot)
	slot.SetUint64(uint64(evm.StateDB.GetCodeSize(addr)))
	return pc + 1, nil, nil
}

func opExtcodecopy(pc uint64, evm *EVM, contract *Contract, mem *Memory, st *Stack) (uint64, []byte, error) {
	addrWord := st.Pop()
	memOffset, codeOffset, length := st.Pop(), st.Pop(), st.Pop()
	addr := addressFromWord(&addrWord)
	off, overflow := codeOffset.Uint64WithOverflow()
	if overflow {
		off = ^uint64(0)
	}
	code := evm.StateDB.GetCode(addr)
	data := getDataPadded(code, off, length.Uint64())
	mem.Set(memOffset.Uint64(), data)
	return pc + 1, nil, nil
}

func opReturndatasize(pc uint64, evm *EVM, contract *Contract, mem *Memory, st *Stack) (uint64, []byte, error) {
	st.Push(new(uint256.Int).SetUint64(uint64(len(evm.ReturnData()))))
	return pc + 1, nil, nil
}

func opReturndatacopy(pc uint64, evm *EVM, contract *Contract, mem *Memory, st *Stack) (uint64, []byte, error) {
	memOffset, dataOffset, length := st.Pop(), st.Pop(), st.Pop()
	off := dataOffset.Uint64()
	rd := evm.ReturnData()
	data := make([]byte, length.Uint64())
	copy(data, rd[off:off+length.Uint64()])
	mem.Set(memOffset.Uint64(), data)
	return pc + 1, nil, nil
}

func opExtcodehash(pc uint64, evm *EVM, contract *Contract, mem *Memory, st *Stack) (uint64, []byte, error) {
	slot := st.Peek()
	addr := addressFromWord(slot)
	if evm.StateDB.Empty(addr) {
		slot.Clear()
		return pc + 1, nil, nil
	}
	slot.SetBytes(evm.StateDB.GetCodeHash(addr).Bytes())
	return pc + 1, nil, nil
}

// Block

func opBlockhash(pc uint64, evm *EVM, contract *Contract, mem *Memory, st *Stack) (uint64, []byte, error) {
	num := st.Peek()
	if evm.Context.GetHash == nil || !num.IsUint64() {
		num.Clear()
		return pc + 1, nil, nil
	}
	n := num.Uint64()
	current := evm.Context.BlockNumber.Uint64()
	if n >= current || current-n > 256 {
		num.Clear()
		return pc + 1, nil, nil
	}
	num.SetBytes(evm.Context.GetHash(n).Bytes())
	return pc + 1, nil, nil
}

func opCoinbase(pc uint64, evm *EVM, contract *Contract, mem *Memory, st *Stack) (uint64, []byte, error) {
	st.Push(addressToWord(evm.Context.Coinbase))
	return pc + 1, nil, nil
}

func opTimestamp(pc uint64, evm *EVM, contract *Contract, mem *Memory, st *Stack) (uint64, []byte, error) {
	st.Push(new(uint256.Int).SetUint64(evm.Context.Time))
	return pc + 1, nil, nil
}

func opNumber(pc uint64, evm *EVM, contract *Contract, mem *Memory, st *Stack) (uint64, []byte, error) {
	st.Push(new(uint256.Int).Set(evm.Context.BlockNumber))
	return pc + 1, nil, nil
}

func opPrevrandao(pc uint64, evm *EVM, contract *Contract, mem *Memory, st *Stack) (uint64, []byte, error) {
	st.Push(hashToWord(evm.Context.PrevRandao))
	return pc + 1, nil, nil
}

func opGaslimit(pc uint64, evm *EVM, contract *Contract, mem *Memory, st *Stack) (uint64, []byte, error) {
	st.Push(new(uint256.Int).SetUint64(evm.Context.GasLimit))
	return pc + 1, nil, nil
}

func opChainid(pc uint64, evm *EVM, contract *Contract, mem *Memory, st *Stack) (uint64, []byte, error) {
	var w uint256.Int
	w.SetFromBig(evm.Cfg.ChainID)
	st.Push(&w)
	return pc + 1, nil, nil
}

func opSelfbalance(pc uint64, evm *EVM, contract *Contract, mem *Memory, st *Stack) (uint64, []byte, error) {
	st.Push(evm.StateDB.GetBalance(contract.Address))
	return pc + 1, nil, nil
}

func opBasefee(pc uint64, evm *EVM, contract *Contract, mem *Memory, st *Stack) (uint64, []byte, error) {
	st.Push(new(uint256.Int).Set(evm.Context.BaseFee))
	return pc + 1, nil, nil
}

// Stack / memory / flow

func opStop(pc uint64, evm *EVM, contract *Contract, mem *Memory, st *Stack) (uint64, []byte, error) {
	return pc, nil, nil
}

func opPop(pc uint64, evm *EVM, contract *Contract, mem *Memory, st *Stack) (uint64, []byte, error) {
	st.Pop()
	return pc + 1, nil, nil
}

func opMload(pc uint64, evm *EVM, contract *Contract, mem *Memory, st *Stack) (uint64, []byte, error) {
	offset := st.Peek()
	offset.SetBytes(mem.GetPtr(offset.Uint64(), 32))
	return pc + 1, nil, nil
}

func opMstore(pc uint64, evm *EVM, contract *Contract, mem *Memory, st *Stack) (uint64, []byte, error) {
	offset, val := st.Pop(), st.Pop()
	mem.Set32(offset.Uint64(), &val)
	return pc + 1, nil, nil
}

func opMstore8(pc uint64, evm *EVM, contract *Contract, mem *Memory, st *Stack) (uint64, []byte, error) {
	offset, val := st.Pop(), st.Pop()
	mem.Set8(offset.Uint64(), byte(val.Uint64()))
	return pc + 1, nil, nil
}

func opSload(pc uint64, evm *EVM, contract *Contract, mem *Memory, st *Stack) (uint64, []byte, error) {
	loc := st.Peek()
	key := bytesToHashHelper(loc.Bytes32()[:])
	val := evm.StateDB.GetState(contract.Address, key)
	loc.SetBytes(val.Bytes())
	return pc + 1, nil, nil
}

func opSstore(pc uint64, evm *EVM, contract *Contract, mem *Memory, st *Stack) (uint64, []byte, error) {
	key, val := st.Pop(), st.Pop()
	keyBytes := key.Bytes32()
	valBytes := val.Bytes32()
	evm.StateDB.SetState(contract.Address, bytesToHashHelper(keyBytes[:]), bytesToHashHelper(valBytes[:]))
	return pc + 1, nil, nil
}

func opJump(pc uint64, evm *EVM, contract *Contract, mem *Memory, st *Stack) (uint64, []byte, error) {
	dest := st.Pop()
	if !contract.validJumpdest(&dest) {
		return 0, nil, ErrInvalidJumpDestination
	}
	return dest.Uint64(), nil, nil
}

func opJumpi(pc uint64, evm *EVM, contract *Contract, mem *Memory, st *Stack) (uint64, []byte, error) {
	dest, cond := st.Pop(), st.Pop()
	if cond.IsZero() {
		return pc + 1, nil, nil
	}
	if !contract.validJumpdest(&dest) {
		return 0, nil, ErrInvalidJumpDestination
	}
	return dest.Uint64(), nil, nil
}

func opPc(pc uint64, evm *EVM, contract *Contract, mem *Memory, st *Stack) (uint64, []byte, error) {
	st.Push(new(uint256.Int).SetUint64(pc))
	return pc + 1, nil, nil
}

func opMsize(pc uint64, evm *EVM, contract *Contract, mem *Memory, st *Stack) (uint64, []byte, error) {
	st.Push(new(uint256.Int).SetUint64(uint64(mem.Len())))
	return pc + 1, nil, nil
}

func opGas(pc uint64, evm *EVM, contract *Contract, mem *Memory, st *Stack) (uint64, []byte, error) {
	st.Push(new(uint256.Int).SetUint64(contract.Gas))
	return pc + 1, nil, nil
}

func opJumpdest(pc uint64, evm *EVM, contract *Contract, mem *Memory, st *Stack) (uint64, []byte, error) {
	return pc + 1, nil, nil
}

func opPush0(pc uint64, evm *EVM, contract *Contract, mem *Memory, st *Stack) (uint64, []byte, error) {
	st.Push(new(uint256.Int))
	return pc + 1, nil, nil
}

// makePush builds the execution function for PUSH1..PUSH32.
func makePush(n int) executionFunc {
	return func(pc uint64, evm *EVM, contract *Contract, mem *Memory, st *Stack) (uint64, []byte, error) {
		start := pc + 1
		data := getDataPadded(contract.Code, start, uint64(n))
		var w uint256.Int
		w.SetBytes(data)
		st.Push(&w)
		return pc + 1 + uint64(n), nil, nil
	}
}

// makeDup builds the execution function for DUP1..DUP16.
func makeDup(n int) executionFunc {
	return func(pc uint64, evm *EVM, contract *Contract, mem *Memory, st *Stack) (uint64, []byte, error) {
		st.Dup(n)
		return pc + 1, nil, nil
	}
}

// makeSwap builds the execution function for SWAP1..SWAP16.
func makeSwap(n int) executionFunc {
	return func(pc uint64, evm *EVM, contract *Contract, mem *Memory, st *Stack) (uint64, []byte, error) {
		st.Swap(n)
		return pc + 1, nil, nil
	}
}

// makeLog builds the execution function for LOG0..LOG4.
func makeLog(n int) executionFunc {
	return func(pc uint64, evm *EVM, contract *Contract, mem *Memory, st *Stack) (uint64, []byte, error) {
		if evm.StateDB == nil {
			return 0, nil, ErrNoStateDB
		}
		offset, length := st.Pop(), st.Pop()
		data := mem.Get(offset.Uint64(), length.Uint64())
		topics := make([]types.Hash, n)
		for i := 0; i < n; i++ {
			t := st.Pop()
			b := t.Bytes32()
			topics[i] = bytesToHashHelper(b[:])
		}
		evm.StateDB.AddLog(&types.Log{
			Address:     contract.Address,
			Topics:      topics,
			Data:        data,
			BlockNumber: evm.Context.BlockNumber.Uint64(),
		})
		return pc + 1, nil, nil
	}
}

// CALL family. All four variants funnel through the EVM's Call/CallCode/
// DelegateCall/StaticCall methods, which already implement Guard A
// (insufficient balance) and Guard B (depth exceeded) by returning the
// forwarded gas untouched and an error without ever invoking the child
// frame (spec §4.4.7). The opcode's only job is to translate that result
// into a success/failure stack push and credit unused gas back.

func opCall(pc uint64, evm *EVM, contract *Contract, mem *Memory, st *Stack) (uint64, []byte, error) {
	if evm.ReadOnly() {
		value := st.Back(2)
		if !value.IsZero() {
			return 0, nil, ErrMutableCallInStaticContext
		}
	}
	gasWord, addrWord, value := st.Pop(), st.Pop(), st.Pop()
	argsOffset, argsLen, retOffset, retLen := st.Pop(), st.Pop(), st.Pop(), st.Pop()
	_ = gasWord

	addr := addressFromWord(&addrWord)
	args := mem.Get(argsOffset.Uint64(), argsLen.Uint64())

	gas := evm.callGasTemp
	if !value.IsZero() {
		gas += evm.Cfg.CallStipend
	}

	ret, gasLeft, err := evm.Call(contract.Address, addr, args, gas, &value)
	contract.RefundGas(gasLeft)
	pushCallResult(st, err)
	evm.returnData = ret
	writeCallReturn(mem, ret, retOffset.Uint64(), retLen.Uint64())
	return pc + 1, nil, nil
}

func opCallcode(pc uint64, evm *EVM, contract *Contract, mem *Memory, st *Stack) (uint64, []byte, error) {
	gasWord, addrWord, value := st.Pop(), st.Pop(), st.Pop()
	argsOffset, argsLen, retOffset, retLen := st.Pop(), st.Pop(), st.Pop(), st.Pop()
	_ = gasWord

	addr := addressFromWord(&addrWord)
	args := mem.Get(argsOffset.Uint64(), argsLen.Uint64())

	gas := evm.callGasTemp
	if !value.IsZero() {
		gas += evm.Cfg.CallStipend
	}

	ret, gasLeft, err := evm.CallCode(contract.Address, addr, args, gas, &value)
	contract.RefundGas(gasLeft)
	pushCallResult(st, err)
	evm.returnData = ret
	writeCallReturn(mem, ret, retOffset.Uint64(), retLen.Uint64())
	return pc + 1, nil, nil
}

func opDelegatecall(pc uint64, evm *EVM, contract *Contract, mem *Memory, st *Stack) (uint64, []byte, error) {
	gasWord, addrWord := st.Pop(), st.Pop()
	argsOffset, argsLen, retOffset, retLen := st.Pop(), st.Pop(), st.Pop(), st.Pop()
	_ = gasWord

	addr := addressFromWord(&addrWord)
	args := mem.Get(argsOffset.Uint64(), argsLen.Uint64())

	gas := evm.callGasTemp

	ret, gasLeft, err := evm.DelegateCall(contract.CallerAddress, contract.Address, addr, args, gas, contract.Value)
	contract.RefundGas(gasLeft)
	pushCallResult(st, err)
	evm.returnData = ret
	writeCallReturn(mem, ret, retOffset.Uint64(), retLen.Uint64())
	return pc + 1, nil, nil
}

func opStaticcall(pc uint64, evm *EVM, contract *Contract, mem *Memory, st *Stack) (uint64, []byte, error) {
	gasWord, addrWord := st.Pop(), st.Pop()
	argsOffset, argsLen, retOffset, retLen := st.Pop(), st.Pop(), st.Pop(), st.Pop()
	_ = gasWord

	addr := addressFromWord(&addrWord)
	args := mem.Get(argsOffset.Uint64(), argsLen.Uint64())

	gas := evm.callGasTemp

	ret, gasLeft, err := evm.StaticCall(contract.Address, addr, args, gas)
	contract.RefundGas(gasLeft)
	pushCallResult(st, err)
	evm.returnData = ret
	writeCallReturn(mem, ret, retOffset.Uint64(), retLen.Uint64())
	return pc + 1, nil, nil
}

// pushCallResult pushes the CALL-family success bit: 0 on any error
// (Guard A/B, precompile failure, or the child frame reverting/erroring),
// 1 otherwise. The caller never sees a Go error from CALL/CALLCODE/
// DELEGATECALL/STATICCALL; only RETURN's own opcode family can halt the
// parent frame.
func pushCallResult(st *Stack, err error) {
	if err != nil {
		st.Push(new(uint256.Int))
		return
	}
	st.Push(uint256.NewInt(1))
}

// writeCallReturn copies up to retLen bytes of a completed call's return
// data into memory at retOffset, per spec §4.4.7: a short return buffer
// is copied in full and not zero-padded.
func writeCallReturn(mem *Memory, ret []byte, retOffset, retLen uint64) {
	if retLen == 0 {
		return
	}
	n := uint64(len(ret))
	if n > retLen {
		n = retLen
	}
	mem.Set(retOffset, ret[:n])
}

// CREATE family

func opCreate(pc uint64, evm *EVM, contract *Contract, mem *Memory, st *Stack) (uint64, []byte, error) {
	if evm.ReadOnly() {
		return 0, nil, ErrMutableCallInStaticContext
	}
	value, offset, length := st.Pop(), st.Pop(), st.Pop()
	code := mem.Get(offset.Uint64(), length.Uint64())

	ret, addr, gasLeft, err := evm.Create(contract.Address, code, evm.callGasTemp, &value)
	contract.RefundGas(gasLeft)
	pushCreateResult(st, addr, err)
	if errors.Is(err, ErrExecutionReverted) {
		evm.returnData = ret
	} else {
		evm.returnData = nil
	}
	return pc + 1, nil, nil
}

func opCreate2(pc uint64, evm *EVM, contract *Contract, mem *Memory, st *Stack) (uint64, []byte, error) {
	if evm.ReadOnly() {
		return 0, nil, ErrMutableCallInStaticContext
	}
	value, offset, length, salt := st.Pop(), st.Pop(), st.Pop(), st.Pop()
	code := mem.Get(offset.Uint64(), length.Uint64())

	ret, addr, gasLeft, err := evm.Create2(contract.Address, code, evm.callGasTemp, &value, &salt)
	contract.RefundGas(gasLeft)
	pushCreateResult(st, addr, err)
	if errors.Is(err, ErrExecutionReverted) {
		evm.returnData = ret
	} else {
		evm.returnData = nil
	}
	return pc + 1, nil, nil
}

// pushCreateResult pushes the new contract's address on success, 0 on any
// failure (balance, depth, collision, code-size, or deposit-cost guard).
func pushCreateResult(st *Stack, addr types.Address, err error) {
	if err != nil {
		st.Push(new(uint256.Int))
		return
	}
	st.Push(addressToWord(addr))
}

func opReturn(pc uint64, evm *EVM, contract *Contract, mem *Memory, st *Stack) (uint64, []byte, error) {
	offset, length := st.Pop(), st.Pop()
	return 0, mem.Get(offset.Uint64(), length.Uint64()), nil
}

func opRevert(pc uint64, evm *EVM, contract *Contract, mem *Memory, st *Stack) (uint64, []byte, error) {
	offset, length := st.Pop(), st.Pop()
	return 0, mem.Get(offset.Uint64(), length.Uint64()), ErrExecutionReverted
}

func opInvalid(pc uint64, evm *EVM, contract *Contract, mem *Memory, st *Stack) (uint64, []byte, error) {
	return 0, nil, ErrInvalidOpcode
}

// opSelfdestruct transfers the frame's balance to the named beneficiary
// and marks the account for removal at transaction commit. A second
// SELFDESTRUCT of the same account within the same transaction is a
// no-op (spec §4.8). The refund is handled elsewhere: gasSelfDestruct
// grants it only for an account not yet self-destructed, and
// StateDB.SelfDestruct voids it on replay when the config asks for that.
func opSelfdestruct(pc uint64, evm *EVM, contract *Contract, mem *Memory, st *Stack) (uint64, []byte, error) {
	if evm.ReadOnly() {
		return 0, nil, ErrMutableCallInStaticContext
	}
	beneficiary := st.Pop()
	addr := addressFromWord(&beneficiary)
	evm.StateDB.SelfDestruct(contract.Address, addr)
	return 0, nil, nil
}

// getDataPadded returns data[offset:offset+size], zero-padded on the right
// if the requested window runs past the end of data. Used by every opcode
// that reads from a byte buffer at an attacker-controlled offset
// (CALLDATACOPY, CODECOPY, EXTCODECOPY, PUSH's immediate-data fetch, ...).
func getDataPadded(data []byte, offset, size uint64) []byte {
	out := make([]byte, size)
	if offset >= uint64(len(data)) {
		return out
	}
	end := offset + size
	if end > uint64(len(data)) {
		end = uint64(len(data))
	}
	copy(out, data[offset:end])
	return out
}
