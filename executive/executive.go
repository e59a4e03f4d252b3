// Package executive implements the transaction driver (spec §4.7): the
// intrinsic-gas check, nonce/balance guards, the create()/call() dispatch
// into package vm, and the gas-refund/coinbase-credit/account-sweep
// bookkeeping that runs once the interpreter returns.
package executive

import (
	"errors"
	"math/big"
	"time"

	"github.com/holiman/uint256"

	"github.com/evmkit/evmkit/log"
	"github.com/evmkit/evmkit/metrics"
	"github.com/evmkit/evmkit/params"
	"github.com/evmkit/evmkit/precompile"
	"github.com/evmkit/evmkit/state"
	"github.com/evmkit/evmkit/types"
	"github.com/evmkit/evmkit/vm"
)

// collector receives per-transaction gas/outcome metrics if a caller opts
// in via SetMetricsCollector; nil by default so Execute has no observable
// cost for callers that don't scrape Prometheus.
var collector *metrics.ExecutionCollector

// SetMetricsCollector wires a Prometheus collector into every subsequent
// call to Execute. Pass nil to disable.
func SetMetricsCollector(c *metrics.ExecutionCollector) { collector = c }

func (s Status) label() string {
	switch s {
	case StatusNormal:
		return "normal"
	case StatusReverted:
		return "reverted"
	default:
		return "failed"
	}
}

var (
	// ErrNotEnoughBaseGas is returned when gas_limit is below the
	// transaction's intrinsic gas (spec §4.7 step 1).
	ErrNotEnoughBaseGas = errors.New("executive: not enough gas for intrinsic cost")
	// ErrInvalidNonce is returned by the nonce guard (spec §4.7 step 2).
	ErrInvalidNonce = errors.New("executive: invalid nonce")
	// ErrNotEnoughBalance is returned by the balance guard (spec §4.7 step 3).
	ErrNotEnoughBalance = errors.New("executive: not enough balance for gas * price + value")
)

// Status classifies how a transaction finished, driving which branch of
// spec §4.7 step 7 the driver applies.
type Status int

const (
	StatusNormal Status = iota
	StatusReverted
	StatusFailed
)

// Result is everything the executive driver reports back for a finished
// transaction (a failed pre-flight guard never reaches this — it returns
// a plain error instead).
type Result struct {
	Status          Status
	ReturnData      []byte
	ContractAddress types.Address // only set for a successful create
	GasUsed         uint64
	Logs            []*types.Log
	Err             error // the underlying vm error, nil for StatusNormal
}

var evmLog = log.Default().Module("executive")

// Execute runs one transaction against world to completion, applying the
// pre-flight guards, dispatching into the interpreter, and performing the
// post-execution gas settlement described by spec §4.7.
func Execute(tx *Transaction, blockCtx vm.BlockContext, world *state.WorldState, cfg *params.Config) (*Result, error) {
	world.SetConfig(cfg)
	started := time.Now()
	metrics.EVMExecutions.Inc()
	metrics.TxThroughput.Mark(1)
	defer func() { metrics.EVMExecutionTime.Observe(float64(time.Since(started).Milliseconds())) }()

	intrinsic := tx.IntrinsicGas()
	if tx.GasLimit < intrinsic {
		return nil, ErrNotEnoughBaseGas
	}

	if tx.CheckNonce {
		if have := world.GetNonce(tx.From); have != tx.Nonce {
			return nil, ErrInvalidNonce
		}
	}

	gasPrice := tx.GasPrice
	if gasPrice == nil {
		gasPrice = new(big.Int)
	}
	value := tx.Value
	if value == nil {
		value = new(big.Int)
	}

	prepaid := new(big.Int).Mul(new(big.Int).SetUint64(tx.GasLimit), gasPrice)
	cost := new(big.Int).Add(prepaid, value)
	if tx.CheckBalance {
		balance := world.GetBalance(tx.From).ToBig()
		if balance.Cmp(cost) < 0 {
			return nil, ErrNotEnoughBalance
		}
	}

	world.SubBalance(tx.From, bigToU256(prepaid))

	if !tx.IsCreate() {
		// CREATE bumps the sender's own nonce itself, as part of deriving
		// the new contract's address (spec §4.4.8) — bumping it here too
		// would both double-count it and derive the wrong address.
		world.SetNonce(tx.From, world.GetNonce(tx.From)+1)
	}

	precompiles := precompileTable()
	txCtx := vm.TxContext{Origin: tx.From, GasPrice: bigToU256(gasPrice)}

	evm := vm.NewEVM(blockCtx, txCtx, cfg, world, precompiles)

	gas := tx.GasLimit - intrinsic
	valueU256 := bigToU256(value)

	checkpoint := world.Checkpoint()

	var (
		ret     []byte
		gasLeft uint64
		vmErr   error
		created types.Address
	)
	if tx.IsCreate() {
		ret, created, gasLeft, vmErr = evm.Create(tx.From, tx.Data, gas, valueU256)
	} else {
		ret, gasLeft, vmErr = evm.Call(tx.From, *tx.To, tx.Data, gas, valueU256)
	}

	status, hard := classify(vmErr)

	switch {
	case hard:
		// Hard error: checkpoint was taken after the pre-debit and the
		// nonce bump above, so RevertCheckpoint only undoes whatever the
		// interpreter did — the sender's prepaid gasLimit*gasPrice stays
		// debited and the nonce stays bumped. The coinbase gets that exact amount, unconditionally,
		// matching the debit-then-credit-back pattern below.
		world.RevertCheckpoint(checkpoint)
		flatFee := new(big.Int).Mul(new(big.Int).SetUint64(tx.GasLimit), gasPrice)
		world.AddBalance(blockCtx.Coinbase, bigToU256(flatFee))
		evmLog.Debug("transaction hard error", "err", vmErr)
		metrics.EVMFailed.Inc()
		metrics.EVMGasUsed.Add(int64(tx.GasLimit))
		if collector != nil {
			collector.Observe(StatusFailed.label(), tx.GasLimit)
		}
		return &Result{Status: StatusFailed, GasUsed: tx.GasLimit, Err: vmErr}, nil
	case status == StatusReverted:
		world.DiscardCheckpoint(checkpoint)
	default:
		world.DiscardCheckpoint(checkpoint)
	}

	gasUsed := tx.GasLimit - gasLeft

	if status == StatusNormal {
		divisor := uint64(params.RefundCapDivisorLegacy)
		if cfg.EIP3529 {
			divisor = params.RefundCapDivisorLondon
		}
		refund := world.GetRefund(tx.From)
		if max := gasUsed / divisor; refund > max {
			refund = max
		}
		creditSender := new(big.Int).Mul(new(big.Int).SetUint64(gasLeft+refund), gasPrice)
		world.AddBalance(tx.From, bigToU256(creditSender))

		coinbaseAmt := new(big.Int).Mul(new(big.Int).SetUint64(gasUsed-refund), gasPrice)
		world.AddBalance(blockCtx.Coinbase, bigToU256(coinbaseAmt))

		for addr := range world.SelfDestructSet() {
			world.KillContract(addr)
		}
	} else {
		creditSender := new(big.Int).Mul(new(big.Int).SetUint64(gasLeft), gasPrice)
		world.AddBalance(tx.From, bigToU256(creditSender))

		coinbaseAmt := new(big.Int).Mul(new(big.Int).SetUint64(gasUsed), gasPrice)
		world.AddBalance(blockCtx.Coinbase, bigToU256(coinbaseAmt))
	}

	world.KillGarbage(world.TouchedSet())

	metrics.EVMGasUsed.Add(int64(gasUsed))
	if status == StatusReverted {
		metrics.EVMReverted.Inc()
	}
	if collector != nil {
		collector.Observe(status.label(), gasUsed)
	}

	return &Result{
		Status:          status,
		ReturnData:      ret,
		ContractAddress: created,
		GasUsed:         gasUsed,
		Logs:            world.Logs(),
		Err:             vmErr,
	}, nil
}

// ErrStaticCreate is returned by ExecuteStatic for a to=nil transaction: a
// read-only query has nothing to deploy and no state to create into.
var ErrStaticCreate = errors.New("executive: static call cannot create a contract")

// ExecuteStatic runs tx as a read-only query (spec §4.7's parallel entry
// for eth_call-style invocations): read_only is forced true and value
// transfer is disabled regardless of cfg, contract creation is rejected,
// and — since no mutation is permitted — no checkpoint is taken or
// discarded around the call. Nonce and balance guards still apply only if
// the caller opted into them via tx.CheckNonce/tx.CheckBalance.
func ExecuteStatic(tx *Transaction, blockCtx vm.BlockContext, world *state.WorldState, cfg *params.Config) (*Result, error) {
	world.SetConfig(cfg)
	if tx.IsCreate() {
		return nil, ErrStaticCreate
	}

	intrinsic := tx.IntrinsicGas()
	if tx.GasLimit < intrinsic {
		return nil, ErrNotEnoughBaseGas
	}
	if tx.CheckNonce {
		if have := world.GetNonce(tx.From); have != tx.Nonce {
			return nil, ErrInvalidNonce
		}
	}
	if tx.CheckBalance {
		gasPrice := tx.GasPrice
		if gasPrice == nil {
			gasPrice = new(big.Int)
		}
		cost := new(big.Int).Mul(new(big.Int).SetUint64(tx.GasLimit), gasPrice)
		if world.GetBalance(tx.From).ToBig().Cmp(cost) < 0 {
			return nil, ErrNotEnoughBalance
		}
	}

	readOnlyCfg := *cfg
	readOnlyCfg.DisableTransferValue = true

	precompiles := precompileTable()
	txCtx := vm.TxContext{Origin: tx.From}
	evm := vm.NewEVM(blockCtx, txCtx, &readOnlyCfg, world, precompiles)

	ret, gasLeft, vmErr := evm.StaticCall(tx.From, *tx.To, tx.Data, tx.GasLimit-intrinsic)
	status, _ := classify(vmErr)
	gasUsed := tx.GasLimit - gasLeft

	return &Result{Status: status, ReturnData: ret, GasUsed: gasUsed, Err: vmErr}, nil
}

func classify(err error) (status Status, hard bool) {
	switch {
	case err == nil:
		return StatusNormal, false
	case errors.Is(err, vm.ErrExecutionReverted):
		return StatusReverted, false
	default:
		return StatusFailed, true
	}
}

// bigToU256 converts a non-negative big.Int amount (Wei, always well within
// 256 bits for any realistic balance) to *uint256.Int.
func bigToU256(v *big.Int) *uint256.Int {
	return new(uint256.Int).SetFromBig(v)
}

func precompileTable() map[types.Address]vm.PrecompiledContract {
	out := make(map[types.Address]vm.PrecompiledContract, len(precompile.Registry))
	for addr, c := range precompile.Registry {
		out[addr] = c
	}
	return out
}
