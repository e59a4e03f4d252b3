package vm

import (
	"errors"
	"fmt"

	"github.com/holiman/uint256"

	"github.com/evmkit/evmkit/crypto"
	"github.com/evmkit/evmkit/log"
	"github.com/evmkit/evmkit/params"
	"github.com/evmkit/evmkit/rlp"
	"github.com/evmkit/evmkit/types"
)

var (
	ErrOutOfGas                = errors.New("out of gas")
	ErrStackOverflow            = errors.New("stack overflow")
	ErrStackUnderflow           = errors.New("stack underflow")
	ErrInvalidJumpDestination   = errors.New("invalid jump destination")
	ErrMutableCallInStaticContext = errors.New("write protection: mutable call in static context")
	ErrExecutionReverted        = errors.New("execution reverted")
	ErrMaxCallDepthExceeded     = errors.New("max call depth exceeded")
	ErrInvalidOpcode            = errors.New("invalid opcode")
	ErrOutOfBounds              = errors.New("out of bounds")
	ErrExceedMaxCodeSize        = errors.New("exceed max code size")
	ErrContractAlreadyExist     = errors.New("contract address collision")
	ErrInsufficientBalance      = errors.New("insufficient balance for transfer")
	ErrNoStateDB                = errors.New("no state database configured")
)

// PanicError wraps a panic recovered from inside a single opcode's
// execution, so that a bug in one contract's bytecode cannot crash the
// embedding host process.
type PanicError struct {
	Recovered any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("interpreter panic: %v", e.Recovered)
}

// GetHashFunc resolves the hash of a historical block by number, for the
// BLOCKHASH opcode.
type GetHashFunc func(uint64) types.Hash

// BlockContext carries the block-level information the interpreter's
// environment opcodes read (COINBASE, TIMESTAMP, NUMBER, ...).
type BlockContext struct {
	GetHash     GetHashFunc
	BlockNumber *uint256.Int
	Time        uint64
	Coinbase    types.Address
	GasLimit    uint64
	BaseFee     *uint256.Int
	PrevRandao  types.Hash
}

// TxContext carries the transaction-level information the interpreter's
// environment opcodes read (ORIGIN, GASPRICE).
type TxContext struct {
	Origin   types.Address
	GasPrice *uint256.Int
}

// StateDB is everything the interpreter and the call/create dispatch need
// from the world-state layer. Declared here, rather than imported from
// package state, so that package state (which has no reason to import vm)
// never has to: state.WorldState satisfies this interface structurally.
type StateDB interface {
	CreateAccount(addr types.Address)
	Exist(addr types.Address) bool
	Empty(addr types.Address) bool

	GetBalance(addr types.Address) *uint256.Int
	AddBalance(addr types.Address, amount *uint256.Int)
	SubBalance(addr types.Address, amount *uint256.Int)

	GetNonce(addr types.Address) uint64
	SetNonce(addr types.Address, nonce uint64)

	GetCode(addr types.Address) []byte
	SetCode(addr types.Address, code []byte)
	GetCodeHash(addr types.Address) types.Hash
	GetCodeSize(addr types.Address) int

	GetState(addr types.Address, key types.Hash) types.Hash
	SetState(addr types.Address, key types.Hash, value types.Hash)
	GetCommittedState(addr types.Address, key types.Hash) types.Hash

	SelfDestruct(addr, beneficiary types.Address) bool
	HasSelfDestructed(addr types.Address) bool

	Snapshot() int
	RevertToSnapshot(id int)
	DiscardSnapshot(id int)

	AddLog(l *types.Log)

	AddRefund(origin types.Address, gas uint64)
	SubRefund(origin types.Address, gas uint64)
	GetRefund(origin types.Address) uint64
}

// EVM ties together the jump table, the world state, and the block/tx
// context to execute one transaction's worth of recursive CALL/CREATE
// frames. One EVM instance belongs to exactly one in-flight transaction;
// it is not safe for concurrent use.
type EVM struct {
	Context   BlockContext
	TxContext TxContext
	Cfg       *params.Config
	StateDB   StateDB

	depth      int
	readOnly   bool
	jumpTable  JumpTable
	precompiles map[types.Address]PrecompiledContract
	returnData []byte
	callGasTemp uint64 // the forwarded-gas amount computed by a CALL/CREATE-family opcode's dynamicGas stage, consumed by its execute stage

	log *log.Logger
}

// PrecompiledContract is implemented by package precompile's fixed-address
// contracts; declared here to avoid an import cycle (precompile imports
// nothing from vm).
type PrecompiledContract interface {
	RequiredGas(input []byte) uint64
	Run(input []byte) ([]byte, error)
}

// NewEVM builds an EVM ready to run CALL/CREATE frames against stateDB.
func NewEVM(blockCtx BlockContext, txCtx TxContext, cfg *params.Config, stateDB StateDB, precompiles map[types.Address]PrecompiledContract) *EVM {
	if cfg == nil {
		cfg = params.DefaultConfig()
	}
	return &EVM{
		Context:     blockCtx,
		TxContext:   txCtx,
		Cfg:         cfg,
		StateDB:     stateDB,
		jumpTable:   NewJumpTable(cfg),
		precompiles: precompiles,
		log:         log.Default().Module("vm"),
	}
}

// Depth returns the current call-frame recursion depth (0 at the top level).
func (evm *EVM) Depth() int { return evm.depth }

// ReadOnly reports whether the EVM is currently inside a STATICCALL context.
func (evm *EVM) ReadOnly() bool { return evm.readOnly }

// ReturnData is the output of the most recently completed child CALL/CREATE,
// consulted by RETURNDATASIZE/RETURNDATACOPY.
func (evm *EVM) ReturnData() []byte { return evm.returnData }

func (evm *EVM) precompile(addr types.Address) (PrecompiledContract, bool) {
	p, ok := evm.precompiles[addr]
	return p, ok
}

func runPrecompile(p PrecompiledContract, input []byte, gas uint64) ([]byte, uint64, error) {
	cost := p.RequiredGas(input)
	if gas < cost {
		return nil, 0, ErrOutOfGas
	}
	out, err := p.Run(input)
	if err != nil {
		return nil, gas - cost, err
	}
	return out, gas - cost, nil
}

// Run executes contract's code against input, following the fetch/decode/
// execute loop of spec §4.4.2: constant gas, then special-tier dynamic
// gas (including memory expansion), then memory resize, then the opcode's
// semantic action.
func (evm *EVM) Run(contract *Contract, input []byte) (ret []byte, err error) {
	contract.Input = input

	defer func() {
		if r := recover(); r != nil {
			evm.log.Error("recovered panic inside interpreter loop", "panic", r)
			ret, err = nil, &PanicError{Recovered: r}
		}
	}()

	var (
		pc  uint64
		st  = newStack()
		mem = NewMemory()
		hw  uint64 // memory high-water word count, never decreases within this frame
	)

	for {
		op := contract.GetOp(pc)
		opn := evm.jumpTable[op]
		if opn == nil || opn.execute == nil {
			return nil, fmt.Errorf("%w: 0x%x", ErrInvalidOpcode, byte(op))
		}

		if st.Len() < opn.minStack {
			return nil, ErrStackUnderflow
		}
		if st.Len() > opn.maxStack {
			return nil, ErrStackOverflow
		}
		if evm.readOnly && opn.writes {
			return nil, ErrMutableCallInStaticContext
		}

		if opn.constantGas > 0 && !contract.UseGas(opn.constantGas) {
			return nil, ErrOutOfGas
		}

		var memSize uint64
		if opn.memorySize != nil {
			req, merr := opn.memorySize(st)
			if merr != nil {
				return nil, merr
			}
			memSize = MemoryWordSize(req) * 32
		}

		if opn.dynamicGas != nil {
			cost, hwNext, derr := opn.dynamicGas(evm, contract, st, mem, memSize, hw)
			if derr != nil {
				return nil, derr
			}
			if !contract.UseGas(cost) {
				return nil, ErrOutOfGas
			}
			hw = hwNext
		}

		if memSize > 0 {
			mem.Resize(memSize)
		}

		evm.log.Debug("step", "pc", pc, "op", op.String(), "gas", contract.Gas, "depth", evm.depth)

		nextPC, retData, serr := opn.execute(pc, evm, contract, mem, st)
		if serr != nil {
			if errors.Is(serr, ErrExecutionReverted) {
				return retData, serr
			}
			return nil, serr
		}

		if opn.halts {
			return retData, nil
		}
		if opn.jumps {
			pc = nextPC
			continue
		}
		pc = nextPC
	}
}

// Call executes a message call to addr (spec §4.4.7 CALL variant and
// §4.7's call_pure precompile/interpreter dispatch).
func (evm *EVM) Call(caller, addr types.Address, input []byte, gas uint64, value *uint256.Int) ([]byte, uint64, error) {
	return evm.runCall(caller, addr, addr, input, gas, value, false, false)
}

// CallCode executes addr's code in caller's own storage/address context
// (spec §4.4.7 CALLCODE row: receiver=self, address=self).
func (evm *EVM) CallCode(caller, addr types.Address, input []byte, gas uint64, value *uint256.Int) ([]byte, uint64, error) {
	return evm.runCall(caller, caller, addr, input, gas, value, false, false)
}

// DelegateCall executes addr's code with the parent frame's caller and
// value preserved, and value transfer disabled (spec §4.4.7 DELEGATECALL row).
func (evm *EVM) DelegateCall(parentCaller types.Address, self types.Address, addr types.Address, input []byte, gas uint64, parentValue *uint256.Int) ([]byte, uint64, error) {
	return evm.runCallAs(parentCaller, self, addr, input, gas, parentValue, false, true)
}

// StaticCall executes a read-only message call (spec §4.4.7 STATICCALL row).
func (evm *EVM) StaticCall(caller, addr types.Address, input []byte, gas uint64) ([]byte, uint64, error) {
	return evm.runCall(caller, addr, addr, input, gas, new(uint256.Int), true, false)
}

func (evm *EVM) runCall(caller, receiver, codeAddr types.Address, input []byte, gas uint64, value *uint256.Int, static, delegate bool) ([]byte, uint64, error) {
	return evm.runCallAs(caller, receiver, codeAddr, input, gas, value, static, delegate)
}

// runCallAs is the shared body for all four CALL-family variants: the
// variants differ only in (sender-as-seen-by-child, receiver, value,
// read-only), all of which the caller has already resolved.
func (evm *EVM) runCallAs(sender, receiver, codeAddr types.Address, input []byte, gas uint64, value *uint256.Int, static, delegate bool) ([]byte, uint64, error) {
	if evm.depth >= evm.Cfg.MaxCallDepth {
		return nil, gas, ErrMaxCallDepthExceeded
	}
	if evm.StateDB == nil {
		return nil, gas, ErrNoStateDB
	}
	if value == nil {
		value = new(uint256.Int)
	}

	transfers := !value.IsZero() && !delegate && !evm.Cfg.DisableTransferValue
	if transfers && evm.StateDB.GetBalance(sender).Cmp(value) < 0 {
		return nil, gas, ErrInsufficientBalance
	}

	snapshot := evm.StateDB.Snapshot()

	if p, ok := evm.precompile(codeAddr); ok {
		ret, gasLeft, err := runPrecompile(p, input, gas)
		if err != nil {
			evm.StateDB.RevertToSnapshot(snapshot)
		} else {
			evm.StateDB.DiscardSnapshot(snapshot)
		}
		evm.returnData = ret
		return ret, gasLeft, err
	}

	if !evm.StateDB.Exist(receiver) {
		if !transfers {
			evm.StateDB.DiscardSnapshot(snapshot)
			return nil, gas, nil
		}
		evm.StateDB.CreateAccount(receiver)
	}

	if transfers {
		if evm.readOnly {
			evm.StateDB.RevertToSnapshot(snapshot)
			return nil, gas, ErrMutableCallInStaticContext
		}
		evm.StateDB.SubBalance(sender, value)
		evm.StateDB.AddBalance(receiver, value)
	}

	code := evm.StateDB.GetCode(codeAddr)
	if len(code) == 0 {
		evm.StateDB.DiscardSnapshot(snapshot)
		return nil, gas, nil
	}

	contract := NewContract(sender, receiver, value, gas)
	contract.Code = code
	contract.CodeHash = evm.StateDB.GetCodeHash(codeAddr)
	contract.IsDelegate = delegate

	prevReadOnly := evm.readOnly
	evm.readOnly = prevReadOnly || static
	evm.depth++
	ret, err := evm.Run(contract, input)
	evm.depth--
	evm.readOnly = prevReadOnly

	evm.returnData = ret
	gasLeft := contract.Gas

	switch {
	case err == nil:
		evm.StateDB.DiscardSnapshot(snapshot)
	case errors.Is(err, ErrExecutionReverted):
		evm.StateDB.RevertToSnapshot(snapshot)
	default:
		evm.StateDB.RevertToSnapshot(snapshot)
		gasLeft = 0
	}
	return ret, gasLeft, err
}

// createAddressRLP mirrors the RLP list [sender, nonce] the Yellow Paper
// hashes to derive a CREATE address.
type createAddressRLP struct {
	Sender types.Address
	Nonce  uint64
}

func createAddress(caller types.Address, nonce uint64) types.Address {
	enc, err := rlp.EncodeToBytes(createAddressRLP{Sender: caller, Nonce: nonce})
	if err != nil {
		panic(err)
	}
	return types.BytesToAddress(crypto.Keccak256(enc)[12:])
}

func create2Address(caller types.Address, salt *uint256.Int, initCodeHash []byte) types.Address {
	saltBytes := salt.Bytes32()
	data := make([]byte, 0, 1+20+32+32)
	data = append(data, 0xff)
	data = append(data, caller[:]...)
	data = append(data, saltBytes[:]...)
	data = append(data, initCodeHash...)
	return types.BytesToAddress(crypto.Keccak256(data)[12:])
}

// Create deploys new contract code via CREATE (spec §4.4.8).
func (evm *EVM) Create(caller types.Address, code []byte, gas uint64, value *uint256.Int) ([]byte, types.Address, uint64, error) {
	nonce := evm.StateDB.GetNonce(caller)
	addr := createAddress(caller, nonce)
	return evm.create(caller, code, gas, value, addr)
}

// Create2 deploys new contract code via CREATE2 (spec §4.4.8).
func (evm *EVM) Create2(caller types.Address, code []byte, gas uint64, value *uint256.Int, salt *uint256.Int) ([]byte, types.Address, uint64, error) {
	initCodeHash := crypto.Keccak256(code)
	addr := create2Address(caller, salt, initCodeHash)
	return evm.create(caller, code, gas, value, addr)
}

func (evm *EVM) create(caller types.Address, code []byte, gas uint64, value *uint256.Int, addr types.Address) ([]byte, types.Address, uint64, error) {
	if evm.depth >= evm.Cfg.MaxCallDepth {
		return nil, types.Address{}, gas, ErrMaxCallDepthExceeded
	}
	if evm.readOnly {
		return nil, types.Address{}, gas, ErrMutableCallInStaticContext
	}
	if evm.StateDB == nil {
		return nil, types.Address{}, gas, ErrNoStateDB
	}
	if value == nil {
		value = new(uint256.Int)
	}
	if !value.IsZero() && evm.StateDB.GetBalance(caller).Cmp(value) < 0 {
		return nil, types.Address{}, gas, ErrInsufficientBalance
	}

	// EIP-161: sender's nonce is bumped before the child frame executes,
	// regardless of how the child frame turns out.
	evm.StateDB.SetNonce(caller, evm.StateDB.GetNonce(caller)+1)

	// EIP-684: reject if an account already lives at the target address.
	existingHash := evm.StateDB.GetCodeHash(addr)
	if evm.StateDB.GetNonce(addr) != 0 || (!existingHash.IsZero() && existingHash != types.EmptyCodeHash) {
		return nil, types.Address{}, gas, ErrContractAlreadyExist
	}

	snapshot := evm.StateDB.Snapshot()

	if !evm.StateDB.Exist(addr) {
		evm.StateDB.CreateAccount(addr)
	}
	evm.StateDB.SetNonce(addr, 1)

	if !value.IsZero() {
		evm.StateDB.SubBalance(caller, value)
		evm.StateDB.AddBalance(addr, value)
	}

	contract := NewContract(caller, addr, value, gas)
	contract.Code = code

	evm.depth++
	ret, err := evm.Run(contract, nil)
	evm.depth--
	evm.returnData = ret

	gasLeft := contract.Gas

	if err != nil {
		evm.StateDB.RevertToSnapshot(snapshot)
		if errors.Is(err, ErrExecutionReverted) {
			return ret, types.Address{}, gasLeft, err
		}
		return nil, types.Address{}, 0, err
	}

	if len(ret) > params.MaxCodeSize {
		evm.StateDB.RevertToSnapshot(snapshot)
		return nil, types.Address{}, 0, ErrExceedMaxCodeSize
	}
	depositCost := uint64(len(ret)) * params.GasCodeDeposit
	if gasLeft < depositCost {
		evm.StateDB.RevertToSnapshot(snapshot)
		return nil, types.Address{}, 0, ErrOutOfGas
	}
	gasLeft -= depositCost
	if len(ret) > 0 {
		evm.StateDB.SetCode(addr, ret)
	}
	evm.StateDB.DiscardSnapshot(snapshot)
	return ret, addr, gasLeft, nil
}
