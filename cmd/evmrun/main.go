// Command evmrun loads a JSON state-test fixture and replays it against the
// executive driver, printing the resulting status, gas usage, and post-state
// root. It is a harness for the scenario list described alongside the
// engine, not a production entry point.
package main

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/evmkit/evmkit/executive"
	"github.com/evmkit/evmkit/kvstore"
	"github.com/evmkit/evmkit/log"
	"github.com/evmkit/evmkit/metrics"
	"github.com/evmkit/evmkit/params"
	"github.com/evmkit/evmkit/state"
	"github.com/evmkit/evmkit/types"
	"github.com/evmkit/evmkit/vm"
)

func init() {
	// evmrun is an interactive CLI, not a service writing to a log
	// aggregator, so it gets the colorized console logger rather than the
	// JSON handler New uses by default.
	log.SetDefault(log.NewConsole(slog.LevelInfo))
}

// fixture mirrors the handful of fields a state-test scenario needs: a
// genesis account allocation plus the single transaction to apply to it.
type fixture struct {
	Alloc map[string]struct {
		Balance string `json:"balance"`
		Nonce   uint64 `json:"nonce"`
		Code    string `json:"code"`
	} `json:"alloc"`
	Transaction struct {
		From     string `json:"from"`
		To       string `json:"to"` // empty ⇒ contract creation
		Value    string `json:"value"`
		GasLimit uint64 `json:"gasLimit"`
		GasPrice string `json:"gasPrice"`
		Data     string `json:"data"`
		Nonce    uint64 `json:"nonce"`
	} `json:"transaction"`
	Coinbase string `json:"coinbase"`
}

func main() {
	app := &cli.App{
		Name:  "evmrun",
		Usage: "replay a JSON state-test fixture against the execution engine",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "fixture", Aliases: []string{"f"}, Required: true, Usage: "path to a fixture JSON file"},
			&cli.StringFlag{Name: "metrics-addr", Usage: "if set, serve Prometheus-format metrics (evm.executions, evm.gas_used, ...) at http://<addr>/metrics after the run"},
		},
		Action: run,
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "evmrun:", err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	raw, err := os.ReadFile(c.String("fixture"))
	if err != nil {
		return fmt.Errorf("read fixture: %w", err)
	}
	var fx fixture
	if err := json.Unmarshal(raw, &fx); err != nil {
		return fmt.Errorf("parse fixture: %w", err)
	}

	world := state.New(kvstore.NewMemoryStore())
	// A single evmrun process only ever replays one fixture through one
	// WorldState, so the cache mostly demonstrates the wiring; it earns
	// its keep once a caller batches many fixtures against a shared store.
	world.SetAccountCache(state.NewAccountCache(4 << 20))
	for addrHex, acct := range fx.Alloc {
		addr := types.HexToAddress(addrHex)
		balance, ok := new(big.Int).SetString(acct.Balance, 0)
		if !ok {
			balance = new(big.Int)
		}
		code, err := decodeHex(acct.Code)
		if err != nil {
			return fmt.Errorf("alloc %s: code: %w", addrHex, err)
		}
		world.NewContract(addr, balance, acct.Nonce, code)
	}

	data, err := decodeHex(fx.Transaction.Data)
	if err != nil {
		return fmt.Errorf("transaction data: %w", err)
	}
	value, ok := new(big.Int).SetString(fx.Transaction.Value, 0)
	if !ok {
		value = new(big.Int)
	}
	gasPrice, ok := new(big.Int).SetString(fx.Transaction.GasPrice, 0)
	if !ok {
		gasPrice = new(big.Int)
	}

	tx := &executive.Transaction{
		From:     types.HexToAddress(fx.Transaction.From),
		Value:    value,
		GasLimit: fx.Transaction.GasLimit,
		GasPrice: gasPrice,
		Data:     data,
		Nonce:    fx.Transaction.Nonce,
	}
	if fx.Transaction.To != "" {
		to := types.HexToAddress(fx.Transaction.To)
		tx.To = &to
	}

	blockCtx := vm.BlockContext{
		Coinbase: types.HexToAddress(fx.Coinbase),
		GasLimit: fx.Transaction.GasLimit,
	}

	result, err := executive.Execute(tx, blockCtx, world, params.DefaultConfig())
	if err != nil {
		return fmt.Errorf("execute: %w", err)
	}

	root, err := world.Commit()
	if err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	fmt.Printf("status=%d gasUsed=%d contract=%s root=%s\n",
		result.Status, result.GasUsed, result.ContractAddress.Hex(), root.Hex())
	if result.Err != nil {
		fmt.Printf("vm error: %v\n", result.Err)
	}

	if addr := c.String("metrics-addr"); addr != "" {
		exporter := metrics.NewPrometheusExporter(metrics.DefaultRegistry, metrics.DefaultPrometheusConfig())
		fmt.Fprintf(os.Stderr, "serving metrics at http://%s/metrics\n", addr)
		return http.ListenAndServe(addr, exporter.Handler())
	}
	return nil
}

func decodeHex(s string) ([]byte, error) {
	if s == "" {
		return nil, nil
	}
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		s = s[2:]
	}
	return hex.DecodeString(s)
}
