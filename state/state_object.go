package state

import (
	"math/big"

	"github.com/evmkit/evmkit/crypto"
	"github.com/evmkit/evmkit/kvstore"
	"github.com/evmkit/evmkit/rlp"
	"github.com/evmkit/evmkit/types"
)

// stateObject is the in-cache representation of one account: its consensus
// record plus whatever storage/code/ABI writes have accumulated against it
// during the current transaction but have not yet been committed to the
// backing store.
type stateObject struct {
	account types.Account
	code    []byte
	abi     []byte

	codeDirty bool
	abiDirty  bool

	// storageChanges caches every key this object has had SSTORE'd during
	// the transaction; committed reads for keys not present here fall
	// through to the backing store.
	storageChanges map[types.Hash]types.Hash

	selfDestructed bool
}

func newStateObject() *stateObject {
	return &stateObject{
		account:        types.NewAccount(),
		storageChanges: make(map[types.Hash]types.Hash),
	}
}

// initCode installs code and marks it dirty for the next commit.
func (o *stateObject) initCode(code []byte) {
	o.code = code
	o.account.CodeHash = crypto.Keccak256(code)
	o.codeDirty = true
}

// initAbi installs an ABI blob, mirroring initCode's dirty-tracking.
func (o *stateObject) initAbi(abi []byte) {
	o.abi = abi
	o.account.AbiHash = crypto.Keccak256(abi)
	o.abiDirty = true
}

func (o *stateObject) incNonce() {
	o.account.Nonce++
}

// addBalance panics on overflow: a 256-bit Ether balance overflowing is
// a protocol invariant violation, not a recoverable error.
func (o *stateObject) addBalance(x *big.Int) {
	sum := new(big.Int).Add(o.account.Balance, x)
	if sum.BitLen() > 256 {
		panic("state: balance overflow")
	}
	o.account.Balance = sum
}

// subBalance panics on underflow; callers must check sufficiency first
// (the executive driver and CALL/CREATE guards do).
func (o *stateObject) subBalance(x *big.Int) {
	if o.account.Balance.Cmp(x) < 0 {
		panic("state: balance underflow")
	}
	o.account.Balance = new(big.Int).Sub(o.account.Balance, x)
}

func (o *stateObject) setStorage(key, value types.Hash) {
	o.storageChanges[key] = value
}

// getStorage checks the dirty cache, then the committed view backed by
// store, returning the zero hash for a key never written.
func (o *stateObject) getStorage(addr types.Address, store kvstore.KeyValueStore, key types.Hash) types.Hash {
	if v, ok := o.storageChanges[key]; ok {
		return v
	}
	view := kvstore.NewAccountView(store, addr)
	raw, err := view.Get(storageDBKey(key))
	if err != nil || raw == nil {
		return types.Hash{}
	}
	var trimmed []byte
	if err := rlp.DecodeBytes(raw, &trimmed); err != nil {
		return types.Hash{}
	}
	var h types.Hash
	copy(h[32-len(trimmed):], trimmed)
	return h
}

// commitStorage writes every cached key to the address-scoped view of
// store, deleting zero-valued slots rather than writing them (spec §4.5:
// "delete on zero-value").
func (o *stateObject) commitStorage(addr types.Address, store kvstore.KeyValueStore) error {
	if len(o.storageChanges) == 0 {
		return nil
	}
	view := kvstore.NewAccountView(store, addr)
	for key, val := range o.storageChanges {
		dbKey := storageDBKey(key)
		if val.IsZero() {
			if err := view.Delete(dbKey); err != nil {
				return err
			}
			continue
		}
		trimmed := trimLeadingZeros(val.Bytes())
		enc, err := rlp.EncodeToBytes(trimmed)
		if err != nil {
			return err
		}
		if err := view.Put(dbKey, enc); err != nil {
			return err
		}
	}
	o.storageChanges = make(map[types.Hash]types.Hash)
	return nil
}

// commitCode writes the code blob iff dirty and nonempty (spec §4.5).
func (o *stateObject) commitCode(addr types.Address, store kvstore.KeyValueStore) error {
	if o.codeDirty && len(o.code) > 0 {
		view := kvstore.NewAccountView(store, addr)
		if err := view.Put(codeDBKey(), o.code); err != nil {
			return err
		}
	}
	o.codeDirty = false
	if o.abiDirty && len(o.abi) > 0 {
		view := kvstore.NewAccountView(store, addr)
		if err := view.Put(abiDBKey(), o.abi); err != nil {
			return err
		}
	}
	o.abiDirty = false
	return nil
}

// cloneClean copies only the account fields (spec §4.5 clone_clean), used
// when a checkpoint needs to remember the pre-mutation account record
// without pinning down its pending storage writes.
func (o *stateObject) cloneClean() *stateObject {
	return &stateObject{
		account:        o.account.Copy(),
		code:           o.code,
		abi:            o.abi,
		storageChanges: make(map[types.Hash]types.Hash),
		selfDestructed: o.selfDestructed,
	}
}

// cloneDirty is cloneClean plus a copy of the pending storage writes
// (spec §4.5 clone_dirty).
func (o *stateObject) cloneDirty() *stateObject {
	cp := o.cloneClean()
	cp.code = append([]byte(nil), o.code...)
	cp.abi = append([]byte(nil), o.abi...)
	cp.codeDirty = o.codeDirty
	cp.abiDirty = o.abiDirty
	for k, v := range o.storageChanges {
		cp.storageChanges[k] = v
	}
	return cp
}

// merge overwrites every field of o with other's (spec §4.5 merge), used
// by revert_checkpoint to restore a prior snapshot into the live cache.
func (o *stateObject) merge(other *stateObject) {
	*o = *other
}

// empty reports the EIP-161 emptiness predicate: zero nonce, zero
// balance, and the canonical empty code hash.
func (o *stateObject) empty() bool {
	return o.account.Nonce == 0 &&
		o.account.Balance.Sign() == 0 &&
		types.BytesToHash(o.account.CodeHash) == types.EmptyCodeHash
}

func trimLeadingZeros(b []byte) []byte {
	for i, v := range b {
		if v != 0 {
			return b[i:]
		}
	}
	return []byte{}
}

func storageDBKey(key types.Hash) []byte {
	return append([]byte("s/"), key[:]...)
}

func codeDBKey() []byte { return []byte("code") }
func abiDBKey() []byte  { return []byte("abi") }
