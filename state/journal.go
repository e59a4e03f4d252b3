package state

import (
	"math/big"

	"github.com/evmkit/evmkit/types"
)

// journalEntry is one revertible state mutation. Every WorldState setter
// appends an entry before applying the change, so RevertCheckpoint can
// walk backwards and undo exactly what happened since a Checkpoint call.
type journalEntry interface {
	revert(w *WorldState)
}

// journal is the checkpoint-stack revert log described by the world-state
// operations: Checkpoint records the current entry count, RevertCheckpoint
// unwinds every entry recorded since, and DiscardCheckpoint simply drops
// the bookkeeping without touching the entries (the changes become part
// of whatever checkpoint encloses it).
type journal struct {
	entries     []journalEntry
	checkpoints []int
}

func newJournal() *journal {
	return &journal{}
}

func (j *journal) append(entry journalEntry) {
	j.entries = append(j.entries, entry)
}

func (j *journal) checkpoint() int {
	j.checkpoints = append(j.checkpoints, len(j.entries))
	return len(j.checkpoints) - 1
}

func (j *journal) discard(id int) {
	j.checkpoints = j.checkpoints[:id]
}

func (j *journal) revert(id int, w *WorldState) {
	mark := j.checkpoints[id]
	for i := len(j.entries) - 1; i >= mark; i-- {
		j.entries[i].revert(w)
	}
	j.entries = j.entries[:mark]
	j.checkpoints = j.checkpoints[:id]
}

type createContractChange struct {
	addr      types.Address
	prev      *stateObject // nil if nothing lived at addr before
	wasKilled bool         // addr was in the killed set before the create
}

func (ch createContractChange) revert(w *WorldState) {
	if ch.prev == nil {
		delete(w.cache, ch.addr)
	} else {
		w.cache[ch.addr] = ch.prev
	}
	if ch.wasKilled {
		w.killed[ch.addr] = struct{}{}
	} else {
		delete(w.killed, ch.addr)
	}
}

type killContractChange struct {
	addr types.Address
	prev *stateObject // nil if nothing lived at addr before the kill
}

func (ch killContractChange) revert(w *WorldState) {
	delete(w.killed, ch.addr)
	if ch.prev != nil {
		w.cache[ch.addr] = ch.prev
	} else {
		delete(w.cache, ch.addr)
	}
}

type balanceChange struct {
	addr types.Address
	prev *big.Int
}

func (ch balanceChange) revert(w *WorldState) {
	if obj := w.cache[ch.addr]; obj != nil {
		obj.account.Balance = ch.prev
	}
}

type nonceChange struct {
	addr types.Address
	prev uint64
}

func (ch nonceChange) revert(w *WorldState) {
	if obj := w.cache[ch.addr]; obj != nil {
		obj.account.Nonce = ch.prev
	}
}

type codeChange struct {
	addr     types.Address
	prevCode []byte
	prevHash []byte
}

func (ch codeChange) revert(w *WorldState) {
	if obj := w.cache[ch.addr]; obj != nil {
		obj.code = ch.prevCode
		obj.account.CodeHash = ch.prevHash
	}
}

type abiChange struct {
	addr    types.Address
	prevAbi []byte
	prevHash []byte
}

func (ch abiChange) revert(w *WorldState) {
	if obj := w.cache[ch.addr]; obj != nil {
		obj.abi = ch.prevAbi
		obj.account.AbiHash = ch.prevHash
	}
}

type storageChange struct {
	addr       types.Address
	key        types.Hash
	prev       types.Hash
	prevExists bool
}

func (ch storageChange) revert(w *WorldState) {
	obj := w.cache[ch.addr]
	if obj == nil {
		return
	}
	if ch.prevExists {
		obj.storageChanges[ch.key] = ch.prev
	} else {
		delete(obj.storageChanges, ch.key)
	}
}

type selfDestructChange struct {
	addr           types.Address
	prevDestructed bool
	prevBalance    *big.Int
}

func (ch selfDestructChange) revert(w *WorldState) {
	obj := w.cache[ch.addr]
	if obj == nil {
		return
	}
	obj.selfDestructed = ch.prevDestructed
	obj.account.Balance = ch.prevBalance
}

type touchedChange struct {
	addr types.Address
}

func (ch touchedChange) revert(w *WorldState) {
	delete(w.touched, ch.addr)
}

type logChange struct {
	prevLen int
}

func (ch logChange) revert(w *WorldState) {
	w.logs = w.logs[:ch.prevLen]
}

type refundOriginChange struct {
	origin types.Address
	prev   uint64
}

func (ch refundOriginChange) revert(w *WorldState) {
	w.refund[ch.origin] = ch.prev
}
