package kvstore

import (
	"testing"

	"github.com/evmkit/evmkit/types"
)

func TestMemoryStoreGetPutDelete(t *testing.T) {
	s := NewMemoryStore()
	if _, err := s.Get([]byte("a")); err != ErrKeyNotFound {
		t.Fatalf("Get missing key = %v, want ErrKeyNotFound", err)
	}
	if err := s.Put([]byte("a"), []byte("1")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	v, err := s.Get([]byte("a"))
	if err != nil || string(v) != "1" {
		t.Fatalf("Get(a) = %q, %v, want 1, nil", v, err)
	}
	if err := s.Delete([]byte("a")); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if ok, _ := s.Has([]byte("a")); ok {
		t.Fatalf("Has(a) after delete = true")
	}
}

func TestMemoryStoreBatchAtomicity(t *testing.T) {
	s := NewMemoryStore()
	s.Put([]byte("x"), []byte("old"))

	b := s.Batch()
	b.Put([]byte("x"), []byte("new"))
	b.Put([]byte("y"), []byte("2"))
	b.Delete([]byte("z"))

	if v, _ := s.Get([]byte("x")); string(v) != "old" {
		t.Fatalf("batch write leaked before Write(): x = %q", v)
	}
	if err := b.Write(); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if v, _ := s.Get([]byte("x")); string(v) != "new" {
		t.Fatalf("x after Write() = %q, want new", v)
	}
	if v, _ := s.Get([]byte("y")); string(v) != "2" {
		t.Fatalf("y after Write() = %q, want 2", v)
	}
}

func TestAccountViewIsolation(t *testing.T) {
	back := NewMemoryStore()
	a := types.HexToAddress("0x0000000000000000000000000000000000000001")
	b := types.HexToAddress("0x0000000000000000000000000000000000000002")

	va := NewAccountView(back, a)
	vb := NewAccountView(back, b)

	if err := va.Put([]byte("slot"), []byte("fromA")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if _, err := vb.Get([]byte("slot")); err != ErrKeyNotFound {
		t.Fatalf("account B sees account A's slot: err = %v", err)
	}
	got, err := va.Get([]byte("slot"))
	if err != nil || string(got) != "fromA" {
		t.Fatalf("Get = %q, %v, want fromA, nil", got, err)
	}
}
