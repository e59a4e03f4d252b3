package vm

import (
	"fmt"

	"github.com/holiman/uint256"
)

// Word is a 256-bit EVM machine word with native modulo-2^256 arithmetic.
type Word = uint256.Int

// Stack is the EVM operand stack: up to 1024 256-bit words, LIFO.
type Stack struct {
	data []uint256.Int
}

// newStack allocates a stack with a small initial backing capacity (16
// items); it grows by append up to the protocol limit.
func newStack() *Stack {
	return &Stack{data: make([]uint256.Int, 0, 16)}
}

// Push pushes a word onto the stack.
func (st *Stack) Push(v *uint256.Int) {
	st.data = append(st.data, *v)
}

// Pop removes and returns the top word. Callers must check Len first;
// popping an empty stack panics, matching the teacher's contract that
// stack-underflow is checked before every opcode dispatch.
func (st *Stack) Pop() uint256.Int {
	n := len(st.data) - 1
	v := st.data[n]
	st.data = st.data[:n]
	return v
}

// Peek returns a pointer to the top word without removing it.
func (st *Stack) Peek() *uint256.Int {
	return &st.data[len(st.data)-1]
}

// PeekN returns a pointer to the word n positions from the top (0 = top).
func (st *Stack) PeekN(n int) *uint256.Int {
	return &st.data[len(st.data)-1-n]
}

// Back is an alias for PeekN, matching the teacher's naming.
func (st *Stack) Back(n int) *uint256.Int { return st.PeekN(n) }

// Swap exchanges the top word with the word n positions below it.
func (st *Stack) Swap(n int) {
	top := len(st.data) - 1
	st.data[top], st.data[top-n] = st.data[top-n], st.data[top]
}

// Dup pushes a copy of the word n positions from the top (1 = top).
func (st *Stack) Dup(n int) {
	v := st.data[len(st.data)-n]
	st.data = append(st.data, v)
}

// Len returns the number of words currently on the stack.
func (st *Stack) Len() int { return len(st.data) }

// Data exposes the backing slice for tracing/debugging.
func (st *Stack) Data() []uint256.Int { return st.data }

// String renders the stack top-to-bottom for trace output.
func (st *Stack) String() string {
	s := make([]string, len(st.data))
	for i := range st.data {
		s[len(st.data)-1-i] = st.data[i].Hex()
	}
	return fmt.Sprintf("%v", s)
}
