package executive

import (
	"math/big"

	"github.com/evmkit/evmkit/params"
	"github.com/evmkit/evmkit/types"
)

// Transaction is the executive driver's input: a fully-resolved message,
// independent of any wire encoding. CheckNonce/CheckBalance let a
// conformance-test harness disable the corresponding step 2/3 guard
// (spec §4.7) when replaying a fixture that already assumes them passed.
type Transaction struct {
	From       types.Address
	To         *types.Address // nil ⇒ contract creation
	Value      *big.Int
	GasLimit   uint64
	GasPrice   *big.Int
	Data       []byte
	Nonce        uint64
	CheckNonce   bool
	CheckBalance bool
}

// IsCreate reports whether this transaction creates a new contract.
func (tx *Transaction) IsCreate() bool { return tx.To == nil }

// IntrinsicGas computes the base gas cost of tx before any EVM execution
// (spec §4.7 step 1): 21000, plus 32000 for contract creation, plus
// 68 per non-zero input byte and 4 per zero input byte.
func (tx *Transaction) IntrinsicGas() uint64 {
	gas := params.TxGasBase
	if tx.IsCreate() {
		gas += params.TxGasCreate
	}
	for _, b := range tx.Data {
		if b == 0 {
			gas += params.TxDataZeroGas
		} else {
			gas += params.TxDataNonZeroGas
		}
	}
	return gas
}
