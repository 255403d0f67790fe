package state

import (
	"testing"

	"bountyexchange/storage"
)

type kvRecord struct {
	Name  string
	Count uint64
}

func TestKVPutGetRoundTrip(t *testing.T) {
	mgr := NewManager(storage.NewMemDB())

	if ok, err := mgr.KVGet([]byte("missing"), &kvRecord{}); err != nil || ok {
		t.Fatalf("expected missing key, got ok=%v err=%v", ok, err)
	}
	if err := mgr.KVPut([]byte("rec"), kvRecord{Name: "a", Count: 3}); err != nil {
		t.Fatalf("put: %v", err)
	}
	var out kvRecord
	ok, err := mgr.KVGet([]byte("rec"), &out)
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if out.Name != "a" || out.Count != 3 {
		t.Fatalf("unexpected record %+v", out)
	}
	if err := mgr.KVPut(nil, kvRecord{}); err == nil {
		t.Fatalf("expected empty key to be rejected")
	}
}

func TestKVAppendDeduplicates(t *testing.T) {
	mgr := NewManager(storage.NewMemDB())
	for _, v := range [][]byte{{1}, {2}, {1}, {3}} {
		if err := mgr.KVAppend([]byte("list"), v); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	var list [][]byte
	if err := mgr.KVGetList([]byte("list"), &list); err != nil {
		t.Fatalf("get list: %v", err)
	}
	if len(list) != 3 || list[0][0] != 1 || list[1][0] != 2 || list[2][0] != 3 {
		t.Fatalf("unexpected list %v", list)
	}

	var empty [][]byte
	if err := mgr.KVGetList([]byte("other"), &empty); err != nil {
		t.Fatalf("get empty list: %v", err)
	}
	if empty == nil || len(empty) != 0 {
		t.Fatalf("expected initialised empty slice")
	}
	var notPtr [][]byte
	if err := mgr.KVGetList([]byte("other"), notPtr); err == nil {
		t.Fatalf("expected non-pointer destination to be rejected")
	}
}

func TestNamespacesIsolateKeys(t *testing.T) {
	mgr := NewManager(storage.NewMemDB())
	a := mgr.Namespace([]byte("a"))
	b := mgr.Namespace([]byte("b"))

	if err := a.KVPut([]byte("k"), uint64(1)); err != nil {
		t.Fatalf("put: %v", err)
	}
	if ok, _ := b.KVGet([]byte("k"), new(uint64)); ok {
		t.Fatalf("namespace b must not see namespace a keys")
	}
	if ok, _ := mgr.KVGet([]byte("k"), new(uint64)); ok {
		t.Fatalf("root must not see namespaced keys")
	}
	nested := a.Namespace([]byte("x"))
	if ok, _ := nested.KVGet([]byte("k"), new(uint64)); ok {
		t.Fatalf("nested namespace must not see parent keys")
	}
}

func TestSnapshotRevertAndCommit(t *testing.T) {
	db := storage.NewMemDB()
	mgr := NewManager(db)
	scoped := mgr.Namespace([]byte("scope"))

	if err := mgr.KVPut([]byte("keep"), uint64(1)); err != nil {
		t.Fatalf("put: %v", err)
	}
	rev := mgr.Snapshot()
	if err := mgr.KVPut([]byte("keep"), uint64(2)); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := scoped.KVPut([]byte("drop"), uint64(3)); err != nil {
		t.Fatalf("put: %v", err)
	}
	scoped.RevertToSnapshot(rev)

	var v uint64
	if ok, _ := mgr.KVGet([]byte("keep"), &v); !ok || v != 1 {
		t.Fatalf("expected reverted value 1, got %d (ok=%v)", v, ok)
	}
	if ok, _ := scoped.KVGet([]byte("drop"), &v); ok {
		t.Fatalf("expected namespaced write to be reverted")
	}
	if db.Len() != 0 {
		t.Fatalf("nothing may reach the database before commit")
	}

	if err := mgr.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if mgr.Pending() != 0 {
		t.Fatalf("expected no pending writes after commit")
	}
	if db.Len() != 1 {
		t.Fatalf("expected one committed key, got %d", db.Len())
	}

	reopened := NewManager(db)
	if ok, _ := reopened.KVGet([]byte("keep"), &v); !ok || v != 1 {
		t.Fatalf("committed value not visible to new manager")
	}
}

func TestDiscardDropsPendingWrites(t *testing.T) {
	db := storage.NewMemDB()
	mgr := NewManager(db)
	if err := mgr.KVPut([]byte("k"), uint64(9)); err != nil {
		t.Fatalf("put: %v", err)
	}
	mgr.Discard()
	if ok, _ := mgr.KVGet([]byte("k"), new(uint64)); ok {
		t.Fatalf("discarded write still visible")
	}
	if err := mgr.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if db.Len() != 0 {
		t.Fatalf("discarded write reached database")
	}
}
