package state

import (
	"github.com/VictoriaMetrics/fastcache"

	"github.com/evmkit/evmkit/rlp"
	"github.com/evmkit/evmkit/types"
)

// AccountCache is a bounded, concurrency-safe cache of RLP-encoded account
// records, fronting the trie-backed store the way the teacher's
// pkg/core/state.AccountCache fronts repeated account lookups — but backed
// by fastcache's sharded, off-heap byte cache instead of a hand-rolled LRU
// linked list, so it can be shared across the many short-lived WorldState
// instances a batch replay (e.g. cmd/evmrun over a scenario list) churns
// through without re-reading the same hot accounts from disk each time.
type AccountCache struct {
	c *fastcache.Cache
}

// NewAccountCache creates an AccountCache pre-sized to hold roughly
// maxBytes of account records.
func NewAccountCache(maxBytes int) *AccountCache {
	return &AccountCache{c: fastcache.New(maxBytes)}
}

// Get returns the cached account record for addr, if present.
func (c *AccountCache) Get(addr types.Address) (rlpAccountRecord, bool) {
	raw, found := c.c.HasGet(nil, addr[:])
	if !found {
		return rlpAccountRecord{}, false
	}
	var rec rlpAccountRecord
	if err := rlp.DecodeBytes(raw, &rec); err != nil {
		return rlpAccountRecord{}, false
	}
	return rec, true
}

// Put stores addr's account record, overwriting any prior entry.
func (c *AccountCache) Put(addr types.Address, rec rlpAccountRecord) {
	enc, err := rlp.EncodeToBytes(rec)
	if err != nil {
		return
	}
	c.c.Set(addr[:], enc)
}

// Del evicts addr's entry, so a destroyed or recreated account is never
// served back out of the cache with a stale record.
func (c *AccountCache) Del(addr types.Address) { c.c.Del(addr[:]) }

// Reset clears every cached entry.
func (c *AccountCache) Reset() { c.c.Reset() }
