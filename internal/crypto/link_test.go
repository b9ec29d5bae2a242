package crypto

import (
	"bytes"
	"errors"
	"testing"

	"dev.c0redev.nowgate/internal/ident"
)

var testPMK = []byte("pmk1234567890123")

func TestDeriveKeyDeterministic(t *testing.T) {
	a := ident.MAC{0xaa, 0xbb, 0xcc, 0xdd, 0xee, 0xff}
	k1, err := DeriveKey(testPMK, a)
	if err != nil {
		t.Fatal(err)
	}
	k2, _ := DeriveKey(testPMK, a)
	if len(k1) != KeySize || !bytes.Equal(k1, k2) {
		t.Fatal("derive not deterministic")
	}
	k3, _ := DeriveKey(testPMK, ident.MAC{0xaa, 0xbb, 0xcc, 0xdd, 0xee, 0x00})
	if bytes.Equal(k1, k3) {
		t.Fatal("different nodes share a key")
	}
	k4, _ := DeriveKey([]byte("another-pmk-0000"), a)
	if bytes.Equal(k1, k4) {
		t.Fatal("different pmk gives same key")
	}
}

func TestDeriveKeyShortPMK(t *testing.T) {
	if _, err := DeriveKey([]byte("short"), ident.MAC{1}); !errors.Is(err, ErrShortPMK) {
		t.Fatalf("err = %v", err)
	}
}

func TestSealOpen(t *testing.T) {
	key, _ := DeriveKey(testPMK, ident.MAC{1, 2, 3, 4, 5, 6})
	ct, err := Seal(key, nil, []byte(`{"type":"config_request"}`))
	if err != nil {
		t.Fatal(err)
	}
	pt, err := Open(key, ct)
	if err != nil {
		t.Fatal(err)
	}
	if string(pt) != `{"type":"config_request"}` {
		t.Fatalf("plaintext = %q", pt)
	}
	ct[len(ct)-1] ^= 1
	if _, err := Open(key, ct); err == nil {
		t.Fatal("tampered ciphertext opened")
	}
	other, _ := DeriveKey(testPMK, ident.MAC{6, 5, 4, 3, 2, 1})
	ct[len(ct)-1] ^= 1
	if _, err := Open(other, ct); err == nil {
		t.Fatal("opened with wrong key")
	}
}
