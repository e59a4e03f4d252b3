package executive

import (
	"math/big"
	"testing"

	"github.com/evmkit/evmkit/kvstore"
	"github.com/evmkit/evmkit/params"
	"github.com/evmkit/evmkit/state"
	"github.com/evmkit/evmkit/types"
	"github.com/evmkit/evmkit/vm"
)

func newWorld(t *testing.T) *state.WorldState {
	t.Helper()
	return state.New(kvstore.NewMemoryStore())
}

func TestExecuteSimpleValueTransfer(t *testing.T) {
	world := newWorld(t)
	from := types.HexToAddress("0x1111111111111111111111111111111111111111")
	to := types.HexToAddress("0x2222222222222222222222222222222222222222")

	world.NewContract(from, big.NewInt(1_000_000), 0, nil)

	tx := &Transaction{
		From:     from,
		To:       &to,
		Value:    big.NewInt(100),
		GasLimit: 21000,
		GasPrice: big.NewInt(1),
	}

	res, err := Execute(tx, vm.BlockContext{Coinbase: types.HexToAddress("0xc0")}, world, params.DefaultConfig())
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.Status != StatusNormal {
		t.Fatalf("status = %v, want StatusNormal (err=%v)", res.Status, res.Err)
	}
	if res.GasUsed != 21000 {
		t.Fatalf("gasUsed = %d, want 21000", res.GasUsed)
	}
	if got := world.GetBalance(to).Uint64(); got != 100 {
		t.Fatalf("recipient balance = %d, want 100", got)
	}
	if got := world.GetNonce(from); got != 1 {
		t.Fatalf("sender nonce = %d, want 1", got)
	}

	// Sender paid value + gas*price, and got nothing back as refund since
	// none was accrued; coinbase collects the full fee.
	wantSenderBalance := uint64(1_000_000 - 100 - 21000)
	if got := world.GetBalance(from).Uint64(); got != wantSenderBalance {
		t.Fatalf("sender balance = %d, want %d", got, wantSenderBalance)
	}
	if got := world.GetBalance(types.HexToAddress("0xc0")).Uint64(); got != 21000 {
		t.Fatalf("coinbase balance = %d, want 21000", got)
	}
}

func TestExecuteRejectsInsufficientIntrinsicGas(t *testing.T) {
	world := newWorld(t)
	from := types.HexToAddress("0x1111111111111111111111111111111111111111")
	to := types.HexToAddress("0x2222222222222222222222222222222222222222")
	world.NewContract(from, big.NewInt(1_000_000), 0, nil)

	tx := &Transaction{From: from, To: &to, Value: big.NewInt(0), GasLimit: 100, GasPrice: big.NewInt(1)}
	if _, err := Execute(tx, vm.BlockContext{}, world, params.DefaultConfig()); err != ErrNotEnoughBaseGas {
		t.Fatalf("err = %v, want ErrNotEnoughBaseGas", err)
	}
}

func TestExecuteRejectsInvalidNonce(t *testing.T) {
	world := newWorld(t)
	from := types.HexToAddress("0x1111111111111111111111111111111111111111")
	to := types.HexToAddress("0x2222222222222222222222222222222222222222")
	world.NewContract(from, big.NewInt(1_000_000), 0, nil)

	tx := &Transaction{
		From: from, To: &to, Value: big.NewInt(0),
		GasLimit: 21000, GasPrice: big.NewInt(1),
		Nonce: 5, CheckNonce: true,
	}
	if _, err := Execute(tx, vm.BlockContext{}, world, params.DefaultConfig()); err != ErrInvalidNonce {
		t.Fatalf("err = %v, want ErrInvalidNonce", err)
	}
}

// TestExecuteHardErrorConservesEther checks invariant I3: on a hard error
// the sender's prepaid gasLimit*gasPrice does not vanish — it lands on the
// coinbase in full, since RevertCheckpoint cannot undo a debit that
// happened before the checkpoint was taken.
func TestExecuteHardErrorConservesEther(t *testing.T) {
	world := newWorld(t)
	from := types.HexToAddress("0x1111111111111111111111111111111111111111")
	to := types.HexToAddress("0x2222222222222222222222222222222222222222")
	coinbase := types.HexToAddress("0xc0")

	world.NewContract(from, big.NewInt(1_000_000), 0, nil)
	world.NewContract(to, big.NewInt(0), 0, []byte{0xFE}) // INVALID opcode

	tx := &Transaction{
		From:     from,
		To:       &to,
		Value:    big.NewInt(0),
		GasLimit: 30000,
		GasPrice: big.NewInt(1),
	}

	res, err := Execute(tx, vm.BlockContext{Coinbase: coinbase}, world, params.DefaultConfig())
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.Status != StatusFailed {
		t.Fatalf("status = %v, want StatusFailed", res.Status)
	}

	wantSenderBalance := uint64(1_000_000 - 30000)
	if got := world.GetBalance(from).Uint64(); got != wantSenderBalance {
		t.Fatalf("sender balance = %d, want %d", got, wantSenderBalance)
	}
	if got := world.GetBalance(coinbase).Uint64(); got != 30000 {
		t.Fatalf("coinbase balance = %d, want 30000 (full flat fee, no vanished wei)", got)
	}
}

func TestExecuteStaticRejectsCreate(t *testing.T) {
	world := newWorld(t)
	from := types.HexToAddress("0x1111111111111111111111111111111111111111")
	world.NewContract(from, big.NewInt(1_000_000), 0, nil)

	tx := &Transaction{From: from, Value: big.NewInt(0), GasLimit: 100000, GasPrice: big.NewInt(1)}
	if _, err := ExecuteStatic(tx, vm.BlockContext{}, world, params.DefaultConfig()); err != ErrStaticCreate {
		t.Fatalf("err = %v, want ErrStaticCreate", err)
	}
}

// TestExecuteStaticDoesNotTransferValue checks that ExecuteStatic forces
// disable_transfer_value and never mutates balances, even when the caller's
// Config has DisableTransferValue unset.
func TestExecuteStaticDoesNotTransferValue(t *testing.T) {
	world := newWorld(t)
	from := types.HexToAddress("0x1111111111111111111111111111111111111111")
	to := types.HexToAddress("0x2222222222222222222222222222222222222222")
	world.NewContract(from, big.NewInt(1_000_000), 0, nil)
	world.NewContract(to, big.NewInt(0), 0, nil)

	tx := &Transaction{
		From:     from,
		To:       &to,
		Value:    big.NewInt(500),
		GasLimit: 100000,
		GasPrice: big.NewInt(0),
	}

	res, err := ExecuteStatic(tx, vm.BlockContext{}, world, params.DefaultConfig())
	if err != nil {
		t.Fatalf("ExecuteStatic: %v", err)
	}
	if res.Status != StatusNormal {
		t.Fatalf("status = %v, want StatusNormal (err=%v)", res.Status, res.Err)
	}
	if got := world.GetBalance(from).Uint64(); got != 1_000_000 {
		t.Fatalf("sender balance = %d, want unchanged 1000000", got)
	}
	if got := world.GetBalance(to).Uint64(); got != 0 {
		t.Fatalf("recipient balance = %d, want unchanged 0", got)
	}
}

func TestExecuteRejectsInsufficientBalance(t *testing.T) {
	world := newWorld(t)
	from := types.HexToAddress("0x1111111111111111111111111111111111111111")
	to := types.HexToAddress("0x2222222222222222222222222222222222222222")
	world.NewContract(from, big.NewInt(100), 0, nil)

	tx := &Transaction{
		From: from, To: &to, Value: big.NewInt(0),
		GasLimit: 21000, GasPrice: big.NewInt(1),
		CheckBalance: true,
	}
	if _, err := Execute(tx, vm.BlockContext{}, world, params.DefaultConfig()); err != ErrNotEnoughBalance {
		t.Fatalf("err = %v, want ErrNotEnoughBalance", err)
	}
}
