package vm

import "github.com/holiman/uint256"

// Memory is the EVM's byte-addressable, linear memory. It grows only in
// 32-byte words and never shrinks within a frame; the interpreter tracks
// the highest word-count it has ever expanded to (the "memory gas
// high-water mark") separately, since REVERT/out-of-gas must not refund
// previously-charged expansion gas.
type Memory struct {
	store []byte
}

// NewMemory returns empty memory.
func NewMemory() *Memory {
	return &Memory{}
}

// MemoryWordSize rounds a byte size up to the next 32-byte word count.
func MemoryWordSize(size uint64) uint64 {
	return (size + 31) / 32
}

// Resize grows memory so it is at least `size` bytes long, word-aligned.
// It is a no-op if memory is already at least that large.
func (m *Memory) Resize(size uint64) {
	if uint64(len(m.store)) >= size {
		return
	}
	words := MemoryWordSize(size)
	target := words * 32
	m.store = append(m.store, make([]byte, target-uint64(len(m.store)))...)
}

// Set copies value into memory at the given offset. The caller must have
// already resized memory to cover [offset, offset+len(value)).
func (m *Memory) Set(offset uint64, value []byte) {
	if len(value) == 0 {
		return
	}
	copy(m.store[offset:offset+uint64(len(value))], value)
}

// Set32 writes a 256-bit word at offset, big-endian, zero-padded.
func (m *Memory) Set32(offset uint64, val *uint256.Int) {
	b := val.Bytes32()
	copy(m.store[offset:offset+32], b[:])
}

// Set8 writes a single byte at offset (MSTORE8).
func (m *Memory) Set8(offset uint64, val byte) {
	m.store[offset] = val
}

// Get returns a copy of memory at [offset, offset+size).
func (m *Memory) Get(offset, size uint64) []byte {
	if size == 0 {
		return nil
	}
	out := make([]byte, size)
	end := offset + size
	if offset < uint64(len(m.store)) {
		copyEnd := end
		if copyEnd > uint64(len(m.store)) {
			copyEnd = uint64(len(m.store))
		}
		copy(out, m.store[offset:copyEnd])
	}
	return out
}

// GetPtr returns a direct slice reference into memory at [offset, offset+size).
// The caller must not retain it past the next memory mutation.
func (m *Memory) GetPtr(offset, size uint64) []byte {
	if size == 0 {
		return nil
	}
	return m.store[offset : offset+size]
}

// Len returns the current length of memory in bytes.
func (m *Memory) Len() int { return len(m.store) }

// Data returns the full backing slice.
func (m *Memory) Data() []byte { return m.store }
