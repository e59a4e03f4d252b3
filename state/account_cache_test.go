package state

import (
	"math/big"
	"testing"

	"github.com/evmkit/evmkit/kvstore"
)

func TestAccountCacheRoundTrip(t *testing.T) {
	c := NewAccountCache(1 << 16)
	a := addr(9)
	rec := rlpAccountRecord{Nonce: 3, Balance: big.NewInt(42), CodeHash: []byte{1, 2, 3}}

	if _, ok := c.Get(a); ok {
		t.Fatalf("expected miss before Put")
	}
	c.Put(a, rec)
	got, ok := c.Get(a)
	if !ok {
		t.Fatalf("expected hit after Put")
	}
	if got.Nonce != rec.Nonce || got.Balance.Cmp(rec.Balance) != 0 {
		t.Fatalf("Get = %+v, want %+v", got, rec)
	}
}

func TestAccountCacheDel(t *testing.T) {
	c := NewAccountCache(1 << 16)
	a := addr(10)
	c.Put(a, rlpAccountRecord{Nonce: 1, Balance: big.NewInt(1)})
	c.Del(a)
	if _, ok := c.Get(a); ok {
		t.Fatalf("expected miss after Del")
	}
}

func TestWorldStateUsesSharedAccountCacheAcrossInstances(t *testing.T) {
	store := kvstore.NewMemoryStore()
	cache := NewAccountCache(1 << 16)

	w1 := New(store)
	w1.SetAccountCache(cache)
	a := addr(11)
	w1.NewContract(a, big.NewInt(77), 5, nil)
	if _, err := w1.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	w2 := New(store)
	w2.SetAccountCache(cache)
	if got := w2.GetBalance(a).Uint64(); got != 77 {
		t.Fatalf("balance via shared cache = %d, want 77", got)
	}
	if got := w2.GetNonce(a); got != 5 {
		t.Fatalf("nonce via shared cache = %d, want 5", got)
	}
}
