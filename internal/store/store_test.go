package store

import (
	"bytes"
	"path/filepath"
	"testing"
)

func TestOpenMemory(t *testing.T) {
	db, err := Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		t.Fatal(err)
	}
}

func TestBlobAbsent(t *testing.T) {
	db, err := Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	v, err := db.GetBlob("peer_storage", "peer_macs")
	if err != nil || v != nil {
		t.Fatalf("absent blob: v=%v err=%v", v, err)
	}
}

func TestBlobSetGetReplace(t *testing.T) {
	db, err := Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	if err := db.SetBlob("ns", "k", []byte{1, 2, 3}); err != nil {
		t.Fatal(err)
	}
	if err := db.SetBlob("ns", "k", []byte{4, 5, 6, 7, 8, 9}); err != nil {
		t.Fatal(err)
	}
	v, err := db.GetBlob("ns", "k")
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(v, []byte{4, 5, 6, 7, 8, 9}) {
		t.Fatalf("value = %v", v)
	}
	if v, _ := db.GetBlob("other", "k"); v != nil {
		t.Fatalf("namespace leak: %v", v)
	}
}

func TestBlobEmptyValue(t *testing.T) {
	db, err := Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	if err := db.SetBlob("ns", "k", nil); err != nil {
		t.Fatal(err)
	}
	v, err := db.GetBlob("ns", "k")
	if err != nil || v == nil || len(v) != 0 {
		t.Fatalf("empty blob: v=%v err=%v", v, err)
	}
}

func TestBlobEraseIdempotent(t *testing.T) {
	db, err := Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	_ = db.SetBlob("ns", "k", []byte{1})
	if err := db.EraseBlob("ns", "k"); err != nil {
		t.Fatal(err)
	}
	if err := db.EraseBlob("ns", "k"); err != nil {
		t.Fatal(err)
	}
	if v, _ := db.GetBlob("ns", "k"); v != nil {
		t.Fatalf("erased blob still present: %v", v)
	}
}

func TestBlobSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gw.db")
	db, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := db.SetBlob("peer_storage", "peer_macs", []byte{1, 2, 3, 4, 5, 6}); err != nil {
		t.Fatal(err)
	}
	db.Close()

	db, err = Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	v, err := db.GetBlob("peer_storage", "peer_macs")
	if err != nil || !bytes.Equal(v, []byte{1, 2, 3, 4, 5, 6}) {
		t.Fatalf("after reopen: v=%v err=%v", v, err)
	}
}
