package state

import (
	"math/big"
	"sort"

	"github.com/holiman/uint256"
	"golang.org/x/sync/errgroup"

	"github.com/evmkit/evmkit/crypto"
	"github.com/evmkit/evmkit/kvstore"
	"github.com/evmkit/evmkit/params"
	"github.com/evmkit/evmkit/rlp"
	"github.com/evmkit/evmkit/trie"
	"github.com/evmkit/evmkit/types"
	"github.com/evmkit/evmkit/vm"
)

// WorldState is the journaled, checkpointable account cache described by
// spec §4.6: a Merkle-Patricia trie root, an external key-value store, a
// cache of address to stateObject, and a checkpoint stack that can unwind
// every mutation recorded since any given Checkpoint call.
type WorldState struct {
	root  types.Hash
	store kvstore.KeyValueStore
	cache map[types.Address]*stateObject

	killed map[types.Address]struct{}

	journal *journal
	touched map[types.Address]struct{}
	logs    []*types.Log

	refund map[types.Address]uint64

	// originStorage lazily remembers the pre-write value of every storage
	// slot touched during the transaction (spec §4.8), keyed by address
	// then slot; EIP-1283's SSTORE gas schedule reads it as "original".
	originStorage map[types.Address]map[types.Hash]types.Hash

	selfDestructSet map[types.Address]types.Address // addr -> beneficiary, insertion order irrelevant

	refundOrigin types.Address // most recent AddRefund/SubRefund origin; constant within one transaction
	cfg          *params.Config

	accountCache *AccountCache // optional shared read-through cache, see SetAccountCache
}

// New returns an empty world state backed by store, with the empty trie root.
func New(store kvstore.KeyValueStore) *WorldState {
	return &WorldState{
		root:            types.EmptyRootHash,
		store:           store,
		cache:           make(map[types.Address]*stateObject),
		killed:          make(map[types.Address]struct{}),
		journal:         newJournal(),
		touched:         make(map[types.Address]struct{}),
		refund:          make(map[types.Address]uint64),
		originStorage:   make(map[types.Address]map[types.Hash]types.Hash),
		selfDestructSet: make(map[types.Address]types.Address),
	}
}

// SetConfig wires the feature-toggle config consulted by state-layer
// behavior that depends on it (currently just the selfdestruct-refund-
// replay rule in SelfDestruct below). Safe to call repeatedly; the
// executive driver calls it once at the start of Execute/ExecuteStatic.
func (w *WorldState) SetConfig(cfg *params.Config) { w.cfg = cfg }

// SetAccountCache wires a shared AccountCache in front of this WorldState's
// trie-backed store reads. Passing the same *AccountCache to several
// WorldState instances (e.g. one per transaction in a batch replay) lets
// them skip redundant store lookups for accounts one of them already read.
func (w *WorldState) SetAccountCache(c *AccountCache) { w.accountCache = c }

func (w *WorldState) touch(addr types.Address) {
	if _, ok := w.touched[addr]; !ok {
		w.journal.append(touchedChange{addr: addr})
		w.touched[addr] = struct{}{}
	}
}

// getStateObject checks cache; on a miss, reads the account record from
// the trie-backed store and populates a Clean cache entry. Returns nil if
// no account lives at addr.
func (w *WorldState) getStateObject(addr types.Address) *stateObject {
	if obj, ok := w.cache[addr]; ok {
		return obj
	}

	var rec rlpAccountRecord
	if w.accountCache != nil {
		if cached, ok := w.accountCache.Get(addr); ok {
			rec = cached
			obj := newStateObjectFromRecord(rec)
			w.cache[addr] = obj
			return obj
		}
	}

	view := kvstore.NewAccountView(w.store, addr)
	raw, err := view.Get(accountDBKey())
	if err != nil || raw == nil {
		return nil
	}
	if err := rlp.DecodeBytes(raw, &rec); err != nil {
		return nil
	}
	if w.accountCache != nil {
		w.accountCache.Put(addr, rec)
	}
	obj := newStateObjectFromRecord(rec)
	w.cache[addr] = obj
	return obj
}

// newStateObjectFromRecord builds a Clean stateObject from a decoded
// account record, whether it came from the trie-backed store or the
// optional AccountCache.
func newStateObjectFromRecord(rec rlpAccountRecord) *stateObject {
	return &stateObject{
		account: types.Account{
			Nonce:       rec.Nonce,
			Balance:     rec.Balance,
			StorageRoot: types.BytesToHash(rec.StorageRoot),
			CodeHash:    rec.CodeHash,
			AbiHash:     rec.AbiHash,
		},
		storageChanges: make(map[types.Hash]types.Hash),
	}
}

func (w *WorldState) getOrNewStateObject(addr types.Address) *stateObject {
	if obj := w.getStateObject(addr); obj != nil {
		return obj
	}
	obj := newStateObject()
	w.cache[addr] = obj
	return obj
}

// recordPrior journals the cache entry for addr exactly as it stood before
// the caller's mutation, per spec §4.6's "each first records the prior
// cache entry into the current checkpoint layer".
func (w *WorldState) recordPrior(addr types.Address, prior *stateObject) {
	_, wasKilled := w.killed[addr]
	delete(w.killed, addr)
	if len(w.journal.checkpoints) == 0 {
		return
	}
	if prior == nil {
		w.journal.append(createContractChange{addr: addr, prev: nil, wasKilled: wasKilled})
		return
	}
	w.journal.append(createContractChange{addr: addr, prev: prior.cloneDirty(), wasKilled: wasKilled})
}

// NewContract overwrites the cache entry for addr as Dirty (spec §4.6
// new_contract), installing the given balance, nonce, and code.
func (w *WorldState) NewContract(addr types.Address, balance *big.Int, nonce uint64, code []byte) {
	prior := w.cache[addr]
	w.recordPrior(addr, prior)
	obj := newStateObject()
	obj.account.Balance = new(big.Int).Set(balance)
	obj.account.Nonce = nonce
	if len(code) > 0 {
		obj.initCode(code)
	}
	w.cache[addr] = obj
	w.touch(addr)
}

// KillContract marks addr's cache entry Dirty-with-no-account: it is
// erased from the trie on the next Commit (spec §4.6).
func (w *WorldState) KillContract(addr types.Address) {
	prior := w.cache[addr]
	if len(w.journal.checkpoints) != 0 {
		var prevClone *stateObject
		if prior != nil {
			prevClone = prior.cloneDirty()
		}
		w.journal.append(killContractChange{addr: addr, prev: prevClone})
	}
	delete(w.cache, addr)
	w.killed[addr] = struct{}{}
}

// KillGarbage sweeps every touched address whose cached entry is both
// present and empty (spec §4.6 kill_garbage / EIP-161).
func (w *WorldState) KillGarbage(touchedSet map[types.Address]struct{}) {
	for addr := range touchedSet {
		if obj, ok := w.cache[addr]; ok && obj.empty() {
			w.KillContract(addr)
		}
	}
}

// Checkpoint pushes an empty journal layer and returns its index.
func (w *WorldState) Checkpoint() int { return w.journal.checkpoint() }

// DiscardCheckpoint drops the top layer's bookkeeping; its recorded
// mutations become part of the enclosing checkpoint (spec §4.6).
func (w *WorldState) DiscardCheckpoint(id int) { w.journal.discard(id) }

// RevertCheckpoint unwinds every mutation recorded since id (spec §4.6).
func (w *WorldState) RevertCheckpoint(id int) { w.journal.revert(id, w) }

// Commit writes every Dirty entry's storage and code through an
// address-scoped view of the backing store, serialises its account record
// into the trie (deleting killed accounts), and returns the new root.
// Checkpoints must be empty: Commit is a transaction-boundary operation.
func (w *WorldState) Commit() (types.Hash, error) {
	if len(w.journal.checkpoints) != 0 {
		return types.Hash{}, errOpenCheckpoints
	}

	addrs := make([]types.Address, 0, len(w.cache)+len(w.killed))
	for addr := range w.cache {
		addrs = append(addrs, addr)
	}
	for addr := range w.killed {
		addrs = append(addrs, addr)
	}
	sort.Slice(addrs, func(i, j int) bool { return addrs[i].Hex() < addrs[j].Hex() })

	var g errgroup.Group
	for _, addr := range addrs {
		addr := addr
		obj, live := w.cache[addr]
		if !live {
			continue
		}
		g.Go(func() error {
			if err := obj.commitStorage(addr, w.store); err != nil {
				return err
			}
			return obj.commitCode(addr, w.store)
		})
	}
	if err := g.Wait(); err != nil {
		return types.Hash{}, err
	}

	stateTrie := trie.New()
	for _, addr := range addrs {
		hashedAddr := crypto.Keccak256(addr[:])
		obj, live := w.cache[addr]
		view := kvstore.NewAccountView(w.store, addr)
		if !live {
			stateTrie.Delete(hashedAddr)
			if err := view.Delete(accountDBKey()); err != nil {
				return types.Hash{}, err
			}
			if w.accountCache != nil {
				w.accountCache.Del(addr)
			}
			continue
		}
		rec := rlpAccountRecord{
			Nonce:       obj.account.Nonce,
			Balance:     obj.account.Balance,
			StorageRoot: obj.account.StorageRoot.Bytes(),
			CodeHash:    obj.account.CodeHash,
			AbiHash:     obj.account.AbiHash,
		}
		enc, err := rlp.EncodeToBytes(rec)
		if err != nil {
			return types.Hash{}, err
		}
		if err := stateTrie.Put(hashedAddr, enc); err != nil {
			return types.Hash{}, err
		}
		if err := view.Put(accountDBKey(), enc); err != nil {
			return types.Hash{}, err
		}
		if w.accountCache != nil {
			w.accountCache.Put(addr, rec)
		}
	}

	w.root = stateTrie.Hash()
	w.killed = make(map[types.Address]struct{})
	return w.root, nil
}

// rlpAccountRecord is the RLP-serialisable account record stored in the
// top-level trie: [nonce, balance, storageRoot, codeHash, abiHash].
type rlpAccountRecord struct {
	Nonce       uint64
	Balance     *big.Int
	StorageRoot []byte
	CodeHash    []byte
	AbiHash     []byte
}

func accountDBKey() []byte { return []byte("account") }

var errOpenCheckpoints = errInvalid("state: commit with open checkpoints")

type errInvalid string

func (e errInvalid) Error() string { return string(e) }

// --- vm.StateDB implementation: big.Int account fields are exposed to
// the interpreter as uint256 words; the trie and store never see a
// uint256 value directly. ---

func (w *WorldState) CreateAccount(addr types.Address) {
	prior := w.cache[addr]
	w.recordPrior(addr, prior)
	w.cache[addr] = newStateObject()
	w.touch(addr)
}

func (w *WorldState) Exist(addr types.Address) bool {
	return w.getStateObject(addr) != nil
}

func (w *WorldState) Empty(addr types.Address) bool {
	obj := w.getStateObject(addr)
	return obj == nil || obj.empty()
}

func (w *WorldState) GetBalance(addr types.Address) *uint256.Int {
	obj := w.getStateObject(addr)
	if obj == nil {
		return new(uint256.Int)
	}
	var v uint256.Int
	v.SetFromBig(obj.account.Balance)
	return &v
}

func (w *WorldState) AddBalance(addr types.Address, amount *uint256.Int) {
	if amount.IsZero() {
		w.touch(addr)
		return
	}
	obj := w.getOrNewStateObject(addr)
	w.journal.append(balanceChange{addr: addr, prev: new(big.Int).Set(obj.account.Balance)})
	obj.addBalance(amount.ToBig())
	w.touch(addr)
}

func (w *WorldState) SubBalance(addr types.Address, amount *uint256.Int) {
	if amount.IsZero() {
		w.touch(addr)
		return
	}
	obj := w.getOrNewStateObject(addr)
	w.journal.append(balanceChange{addr: addr, prev: new(big.Int).Set(obj.account.Balance)})
	obj.subBalance(amount.ToBig())
	w.touch(addr)
}

func (w *WorldState) GetNonce(addr types.Address) uint64 {
	if obj := w.getStateObject(addr); obj != nil {
		return obj.account.Nonce
	}
	return 0
}

func (w *WorldState) SetNonce(addr types.Address, nonce uint64) {
	obj := w.getOrNewStateObject(addr)
	w.journal.append(nonceChange{addr: addr, prev: obj.account.Nonce})
	obj.account.Nonce = nonce
	w.touch(addr)
}

func (w *WorldState) GetCode(addr types.Address) []byte {
	if obj := w.getStateObject(addr); obj != nil {
		return obj.code
	}
	return nil
}

func (w *WorldState) SetCode(addr types.Address, code []byte) {
	obj := w.getOrNewStateObject(addr)
	w.journal.append(codeChange{addr: addr, prevCode: obj.code, prevHash: obj.account.CodeHash})
	obj.initCode(code)
	w.touch(addr)
}

func (w *WorldState) GetCodeHash(addr types.Address) types.Hash {
	if obj := w.getStateObject(addr); obj != nil {
		return types.BytesToHash(obj.account.CodeHash)
	}
	return types.Hash{}
}

func (w *WorldState) GetCodeSize(addr types.Address) int {
	if obj := w.getStateObject(addr); obj != nil {
		return len(obj.code)
	}
	return 0
}

// SetAbi installs an ABI blob for addr, the supplemented counterpart to
// SetCode that lets a deploying transaction attach descriptive metadata
// without it affecting consensus-critical code or storage roots.
func (w *WorldState) SetAbi(addr types.Address, abi []byte) {
	obj := w.getOrNewStateObject(addr)
	w.journal.append(abiChange{addr: addr, prevAbi: obj.abi, prevHash: obj.account.AbiHash})
	obj.initAbi(abi)
	w.touch(addr)
}

func (w *WorldState) GetAbi(addr types.Address) []byte {
	if obj := w.getStateObject(addr); obj != nil {
		return obj.abi
	}
	return nil
}

// GetState returns the dirty-then-committed value of key (spec §4.8
// get_storage), and lazily seeds originStorage with whatever value was
// live the first time this transaction ever looked at the slot.
func (w *WorldState) GetState(addr types.Address, key types.Hash) types.Hash {
	obj := w.getStateObject(addr)
	var val types.Hash
	if obj != nil {
		val = obj.getStorage(addr, w.store, key)
	}
	w.seedOriginStorage(addr, key, val)
	return val
}

func (w *WorldState) seedOriginStorage(addr types.Address, key, val types.Hash) {
	slots, ok := w.originStorage[addr]
	if !ok {
		slots = make(map[types.Hash]types.Hash)
		w.originStorage[addr] = slots
	}
	if _, seen := slots[key]; !seen {
		slots[key] = val
	}
}

func (w *WorldState) SetState(addr types.Address, key, value types.Hash) {
	obj := w.getOrNewStateObject(addr)
	w.seedOriginStorage(addr, key, obj.getStorage(addr, w.store, key))
	prev, exists := obj.storageChanges[key]
	w.journal.append(storageChange{addr: addr, key: key, prev: prev, prevExists: exists})
	obj.setStorage(key, value)
	w.touch(addr)
}

// GetCommittedState returns the transaction-original value of key, the
// "original" SSTORE's EIP-1283/2200 net-metering schedule compares
// against — not the backing store's value at arbitrary points mid-tx.
func (w *WorldState) GetCommittedState(addr types.Address, key types.Hash) types.Hash {
	if slots, ok := w.originStorage[addr]; ok {
		if v, ok := slots[key]; ok {
			return v
		}
	}
	return w.GetState(addr, key)
}

// SelfDestruct implements spec §4.8's idempotent selfdestruct: the first
// call per transaction transfers the account's balance to beneficiary and
// returns true; later calls on the same address are no-ops that return
// false, signalling the caller to reverse whatever refund it had
// speculatively granted at gas-metering time.
func (w *WorldState) SelfDestruct(addr, beneficiary types.Address) bool {
	if _, already := w.selfDestructSet[addr]; already {
		if w.cfg != nil && w.cfg.RevertSelfDestructRefundOnReplay {
			w.SubRefund(w.refundOrigin, params.GasSelfDestructRefund)
		}
		return false
	}
	obj := w.getStateObject(addr)
	if obj == nil {
		w.selfDestructSet[addr] = beneficiary
		return true
	}
	w.journal.append(selfDestructChange{
		addr:           addr,
		prevDestructed: obj.selfDestructed,
		prevBalance:    new(big.Int).Set(obj.account.Balance),
	})
	bal := new(big.Int).Set(obj.account.Balance)
	obj.selfDestructed = true
	obj.account.Balance = new(big.Int)
	if addr != beneficiary && bal.Sign() > 0 {
		ben := w.getOrNewStateObject(beneficiary)
		w.journal.append(balanceChange{addr: beneficiary, prev: new(big.Int).Set(ben.account.Balance)})
		ben.addBalance(bal)
	}
	w.selfDestructSet[addr] = beneficiary
	w.touch(addr)
	w.touch(beneficiary)
	return true
}

func (w *WorldState) HasSelfDestructed(addr types.Address) bool {
	_, ok := w.selfDestructSet[addr]
	return ok
}

// SelfDestructSet exposes the accumulated selfdestruct set for the
// executive driver's commit-time purge (spec §4.7 step 7).
func (w *WorldState) SelfDestructSet() map[types.Address]types.Address {
	return w.selfDestructSet
}

// TouchedSet exposes the accumulated touched-address set for kill_garbage.
func (w *WorldState) TouchedSet() map[types.Address]struct{} {
	return w.touched
}

func (w *WorldState) Snapshot() int { return w.Checkpoint() }

func (w *WorldState) RevertToSnapshot(id int) { w.RevertCheckpoint(id) }

func (w *WorldState) DiscardSnapshot(id int) { w.DiscardCheckpoint(id) }

func (w *WorldState) AddLog(l *types.Log) {
	w.journal.append(logChange{prevLen: len(w.logs)})
	w.logs = append(w.logs, l)
}

func (w *WorldState) Logs() []*types.Log { return w.logs }

func (w *WorldState) AddRefund(origin types.Address, gas uint64) {
	w.refundOrigin = origin
	w.journal.append(refundOriginChange{origin: origin, prev: w.refund[origin]})
	w.refund[origin] += gas
}

func (w *WorldState) SubRefund(origin types.Address, gas uint64) {
	w.refundOrigin = origin
	w.journal.append(refundOriginChange{origin: origin, prev: w.refund[origin]})
	if gas > w.refund[origin] {
		w.refund[origin] = 0
		return
	}
	w.refund[origin] -= gas
}

func (w *WorldState) GetRefund(origin types.Address) uint64 {
	return w.refund[origin]
}

var _ vm.StateDB = (*WorldState)(nil)
