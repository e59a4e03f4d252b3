package trie

import (
	"testing"

	"github.com/evmkit/evmkit/types"
)

type readerFunc func(types.Hash) ([]byte, error)

func (f readerFunc) Node(h types.Hash) ([]byte, error) { return f(h) }

type putterFunc func(types.Hash, []byte) error

func (f putterFunc) Put(h types.Hash, data []byte) error { return f(h, data) }

func TestTriePutGetDelete(t *testing.T) {
	tr := New()
	entries := map[string]string{
		"do":  "verb",
		"dog": "puppy",
		"doge": "coin",
		"horse": "stallion",
	}
	for k, v := range entries {
		if err := tr.Put([]byte(k), []byte(v)); err != nil {
			t.Fatalf("Put(%q): %v", k, err)
		}
	}
	for k, v := range entries {
		got, err := tr.Get([]byte(k))
		if err != nil {
			t.Fatalf("Get(%q): %v", k, err)
		}
		if string(got) != v {
			t.Fatalf("Get(%q) = %q, want %q", k, got, v)
		}
	}
	if err := tr.Delete([]byte("dog")); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := tr.Get([]byte("dog")); err != ErrNotFound {
		t.Fatalf("Get(dog) after delete = %v, want ErrNotFound", err)
	}
	if tr.Len() != len(entries)-1 {
		t.Fatalf("Len() = %d, want %d", tr.Len(), len(entries)-1)
	}
}

func TestTrieHashDeterministic(t *testing.T) {
	tr1, tr2 := New(), New()
	for _, kv := range [][2]string{{"a", "1"}, {"b", "2"}, {"c", "3"}} {
		tr1.Put([]byte(kv[0]), []byte(kv[1]))
	}
	for _, kv := range [][2]string{{"c", "3"}, {"a", "1"}, {"b", "2"}} {
		tr2.Put([]byte(kv[0]), []byte(kv[1]))
	}
	if tr1.Hash() != tr2.Hash() {
		t.Fatalf("insertion order affected root hash: %s != %s", tr1.Hash(), tr2.Hash())
	}
}

func TestEmptyTrieHash(t *testing.T) {
	tr := New()
	if tr.Hash() != emptyRoot {
		t.Fatalf("empty trie hash = %s, want %s", tr.Hash(), emptyRoot)
	}
}

func TestCommitAndResolve(t *testing.T) {
	tr := New()
	tr.Put([]byte("key1"), []byte("value1"))
	tr.Put([]byte("key2longerthanthirtytwobytes!!!!"), []byte("value2"))

	db := NewNodeDatabase(nil)
	root, err := CommitTrie(tr, db)
	if err != nil {
		t.Fatalf("CommitTrie: %v", err)
	}

	store := make(map[types.Hash][]byte)
	if err := db.Commit(putterFunc(func(h types.Hash, data []byte) error {
		store[h] = data
		return nil
	})); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	reader := readerFunc(func(h types.Hash) ([]byte, error) {
		if data, ok := store[h]; ok {
			return data, nil
		}
		return nil, ErrNodeNotFound
	})

	rt, err := NewResolvableTrie(root, NewNodeDatabase(reader))
	if err != nil {
		t.Fatalf("NewResolvableTrie: %v", err)
	}
	got, err := rt.Get([]byte("key1"))
	if err != nil {
		t.Fatalf("resolved Get: %v", err)
	}
	if string(got) != "value1" {
		t.Fatalf("resolved Get = %q, want value1", got)
	}
}
