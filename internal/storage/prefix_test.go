package storage

import (
	"fmt"
	"testing"
)

func TestPrefixDB_Isolation(t *testing.T) {
	inner := NewMemory()
	dbA := NewPrefixDB(inner, []byte("a/"))
	dbB := NewPrefixDB(inner, []byte("b/"))

	if err := dbA.Put([]byte("key"), []byte("fromA")); err != nil {
		t.Fatal(err)
	}
	if err := dbB.Put([]byte("key"), []byte("fromB")); err != nil {
		t.Fatal(err)
	}

	got, err := dbA.Get([]byte("key"))
	if err != nil || string(got) != "fromA" {
		t.Fatalf("A.Get = %q, %v; want fromA", got, err)
	}
	got, err = dbB.Get([]byte("key"))
	if err != nil || string(got) != "fromB" {
		t.Fatalf("B.Get = %q, %v; want fromB", got, err)
	}
	raw, err := inner.Get([]byte("a/key"))
	if err != nil || string(raw) != "fromA" {
		t.Fatalf("inner a/key = %q, %v; want fromA", raw, err)
	}
}

func TestPrefixDB_ForEachStripsPrefix(t *testing.T) {
	db := NewPrefixDB(NewMemory(), []byte("l/"))
	db.Put([]byte("b/k1"), []byte("v1"))
	db.Put([]byte("b/k2"), []byte("v2"))
	db.Put([]byte("r/k3"), []byte("v3"))

	var keys []string
	err := db.ForEach([]byte("b/"), func(key, value []byte) error {
		keys = append(keys, string(key))
		return nil
	})
	if err != nil {
		t.Fatalf("ForEach: %v", err)
	}
	if len(keys) != 2 || keys[0] != "b/k1" || keys[1] != "b/k2" {
		t.Fatalf("ForEach keys = %v, want [b/k1 b/k2]", keys)
	}
}

func TestPrefixDB_ForEachStopEarly(t *testing.T) {
	db := NewPrefixDB(NewMemory(), []byte("p/"))
	for i := 0; i < 10; i++ {
		db.Put([]byte(fmt.Sprintf("k%d", i)), []byte("v"))
	}

	count := 0
	stopErr := fmt.Errorf("stop")
	err := db.ForEach(nil, func(key, value []byte) error {
		count++
		if count >= 3 {
			return stopErr
		}
		return nil
	})
	if err != stopErr {
		t.Fatalf("ForEach err = %v, want stopErr", err)
	}
	if count != 3 {
		t.Fatalf("ForEach called %d times, want 3", count)
	}
}

func TestPrefixDB_WrapSharesCommit(t *testing.T) {
	inner := NewMemory()
	state := NewPrefixDB(inner, []byte("l/"))
	outbox := NewPrefixDB(inner, []byte("o/"))

	b := inner.NewBatch()
	state.Wrap(b).Put([]byte("token"), []byte("t"))
	outbox.Wrap(b).Put([]byte("1"), []byte("evt"))

	if ok, _ := state.Has([]byte("token")); ok {
		t.Fatal("write visible before commit")
	}
	if err := b.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if ok, _ := state.Has([]byte("token")); !ok {
		t.Error("state write missing after commit")
	}
	if ok, _ := outbox.Has([]byte("1")); !ok {
		t.Error("outbox write missing after commit")
	}
}

// plainDB hides the Batcher implementation of MemoryDB.
type plainDB struct{ DB }

func TestPrefixDB_SequentialFallback(t *testing.T) {
	inner := NewMemory()
	db := NewPrefixDB(plainDB{inner}, []byte("x/"))

	b := db.NewBatch()
	if _, ok := b.(*sequentialBatch); !ok {
		t.Fatalf("NewBatch() = %T, want *sequentialBatch", b)
	}
	b.Put([]byte("k"), []byte("v"))
	if err := b.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	got, err := inner.Get([]byte("x/k"))
	if err != nil || string(got) != "v" {
		t.Fatalf("inner x/k = %q, %v; want v", got, err)
	}
}
