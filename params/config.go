package params

import "math/big"

// Config carries the feature toggles and gas-schedule parameters the
// interpreter, executive driver, and world-state layer are parameterized
// over. A zero Config is not valid; use DefaultConfig or NewConfig with
// options.
type Config struct {
	ChainID *big.Int

	// EIP1283 selects net-metered SSTORE gas accounting (EIP-1283/EIP-2200)
	// over the legacy set/reset/clear SSTORE schedule.
	EIP1283 bool

	// EIP2929 is carried in the configuration, but no gas function reads
	// it: BALANCE/EXTCODE*/SLOAD/CALL-family opcodes are always charged
	// their fixed constant costs, with no warm/cold access-list pricing.
	EIP2929 bool

	// EIP3529 caps gas refunds at gasUsed/5 instead of gasUsed/2, and
	// removes the SELFDESTRUCT refund.
	EIP3529 bool

	// MaxCallDepth bounds CALL/CREATE recursion (spec default: 1024).
	MaxCallDepth int

	// CallStipend is the gas forwarded to a callee on a value-bearing CALL
	// regardless of the caller's requested gas (spec default: 2300).
	CallStipend uint64

	// DisableTransferValue, when set, makes CALL's value-transfer step a
	// no-op: the VALUE argument is still visible to CALLVALUE, but no
	// balance moves between caller and callee. Used by host chains that
	// settle value transfer out-of-band.
	DisableTransferValue bool

	// RevertSelfDestructRefundOnReplay controls whether a SELFDESTRUCT
	// refund granted earlier in a transaction is voided if the same
	// account self-destructs again after a checkpoint revert re-exposes
	// it as live.
	RevertSelfDestructRefundOnReplay bool
}

// Option configures a Config.
type Option func(*Config)

// WithChainID sets the chain ID consulted by the CHAINID opcode.
func WithChainID(id *big.Int) Option {
	return func(c *Config) { c.ChainID = id }
}

// WithEIP1283 toggles net-metered SSTORE accounting.
func WithEIP1283(enabled bool) Option {
	return func(c *Config) { c.EIP1283 = enabled }
}

// WithEIP2929 sets the EIP2929 flag (see Config.EIP2929).
func WithEIP2929(enabled bool) Option {
	return func(c *Config) { c.EIP2929 = enabled }
}

// WithMaxCallDepth overrides the default call-stack depth limit.
func WithMaxCallDepth(n int) Option {
	return func(c *Config) { c.MaxCallDepth = n }
}

// WithDisableTransferValue disables balance movement on value-bearing CALLs.
func WithDisableTransferValue(disabled bool) Option {
	return func(c *Config) { c.DisableTransferValue = disabled }
}

// WithRevertSelfDestructRefundOnReplay toggles whether a SELFDESTRUCT
// refund granted earlier in a transaction is voided when the same account
// self-destructs again after a checkpoint revert re-exposes it as live.
func WithRevertSelfDestructRefundOnReplay(enabled bool) Option {
	return func(c *Config) { c.RevertSelfDestructRefundOnReplay = enabled }
}

// NewConfig builds a Config from DefaultConfig with the given options applied.
func NewConfig(opts ...Option) *Config {
	c := DefaultConfig()
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// DefaultConfig returns the post-London, post-EIP-1283 configuration used
// by the reference executive driver and the bundled test fixtures.
func DefaultConfig() *Config {
	return &Config{
		ChainID:                          big.NewInt(1),
		EIP1283:                          true,
		EIP2929:                          true,
		EIP3529:                          true,
		MaxCallDepth:                     MaxCallDepth,
		CallStipend:                      GasCallStipend,
		RevertSelfDestructRefundOnReplay: true,
	}
}
