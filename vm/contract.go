package vm

import (
	"github.com/holiman/uint256"

	"github.com/evmkit/evmkit/types"
)

// Contract represents a single CALL/CREATE frame's execution context: the
// code being run, its input data, the gas remaining in the frame, and the
// cached JUMPDEST analysis for that code.
type Contract struct {
	CallerAddress types.Address
	Address       types.Address
	Code          []byte
	CodeHash      types.Hash
	Input         []byte
	Gas           uint64
	Value         *uint256.Int

	// IsDelegate marks a DELEGATECALL frame: code executes in Address's
	// context but CallerAddress/Value are inherited from the parent frame
	// rather than reset to the immediate caller.
	IsDelegate bool

	jumpdests map[uint64]bool
}

// NewContract creates a contract execution frame.
func NewContract(caller, addr types.Address, value *uint256.Int, gas uint64) *Contract {
	if value == nil {
		value = new(uint256.Int)
	}
	return &Contract{
		CallerAddress: caller,
		Address:       addr,
		Value:         value,
		Gas:           gas,
	}
}

// GetOp returns the opcode at position n, or STOP past the end of code.
func (c *Contract) GetOp(n uint64) OpCode {
	if n < uint64(len(c.Code)) {
		return OpCode(c.Code[n])
	}
	return STOP
}

// UseGas attempts to consume gas from the frame. Returns false, leaving Gas
// unchanged, if the frame doesn't have enough.
func (c *Contract) UseGas(gas uint64) bool {
	if c.Gas < gas {
		return false
	}
	c.Gas -= gas
	return true
}

// RefundGas credits gas back to the frame, e.g. unused gas returned by a
// callee frame.
func (c *Contract) RefundGas(gas uint64) {
	c.Gas += gas
}

// SetCallCode installs the code (and its hash) a CALL-type frame executes,
// optionally relocating the frame's nominal address (DELEGATECALL/CALLCODE
// run foreign code under the caller's own address).
func (c *Contract) SetCallCode(addr *types.Address, hash types.Hash, code []byte) {
	c.Code = code
	c.CodeHash = hash
	if addr != nil {
		c.Address = *addr
	}
}

// validJumpdest reports whether dest names a JUMPDEST opcode that is not
// itself PUSH immediate data.
func (c *Contract) validJumpdest(dest *uint256.Int) bool {
	if !dest.IsUint64() {
		return false
	}
	udest := dest.Uint64()
	if udest >= uint64(len(c.Code)) {
		return false
	}
	if OpCode(c.Code[udest]) != JUMPDEST {
		return false
	}
	return c.isCode(udest)
}

// isCode reports whether pos holds a JUMPDEST opcode rather than PUSH
// immediate data, lazily running the JUMPDEST analysis pass over the code.
func (c *Contract) isCode(pos uint64) bool {
	if c.jumpdests == nil {
		c.jumpdests = make(map[uint64]bool)
		c.analyzeJumpdests()
	}
	return c.jumpdests[pos]
}

// analyzeJumpdests scans the code once, recording every JUMPDEST position
// that is reachable as an instruction and skipping over PUSH data so a
// JUMPDEST byte embedded in push immediates is never mistaken for a target.
func (c *Contract) analyzeJumpdests() {
	for i := uint64(0); i < uint64(len(c.Code)); i++ {
		op := OpCode(c.Code[i])
		if op == JUMPDEST {
			c.jumpdests[i] = true
		}
		if op.IsPush() {
			i += uint64(op.PushBytes())
		}
	}
}
