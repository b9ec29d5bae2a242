package ident

import (
	"os"
	"path/filepath"
	"testing"
)

func TestParse(t *testing.T) {
	tests := []struct {
		in   string
		want MAC
	}{
		{"AA:BB:CC:DD:EE:FF", MAC{0xaa, 0xbb, 0xcc, 0xdd, 0xee, 0xff}},
		{"aa:bb:cc:dd:ee:0f", MAC{0xaa, 0xbb, 0xcc, 0xdd, 0xee, 0x0f}},
		{"FF:FF:FF:FF:FF:FF", Broadcast},
		{"00:00:00:00:00:00", Zero},
		{"", Zero},
		{"AA:BB:CC:DD:EE", Zero},
		{"AA-BB-CC-DD-EE-FF", Zero},
		{"AA:BB:CC:DD:EE:FG", Zero},
		{"AA:BB:CC:DD:EE:FF:00", Zero},
	}
	for _, tt := range tests {
		if got := Parse(tt.in); got != tt.want {
			t.Errorf("Parse(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestStringRoundTrip(t *testing.T) {
	m := MAC{0x01, 0x23, 0x45, 0x67, 0x89, 0xab}
	if s := m.String(); s != "01:23:45:67:89:AB" {
		t.Fatalf("String() = %q", s)
	}
	if Parse(m.String()) != m {
		t.Fatal("roundtrip mismatch")
	}
}

func TestRandomIsLocalUnicast(t *testing.T) {
	for i := 0; i < 32; i++ {
		m, err := Random()
		if err != nil {
			t.Fatal(err)
		}
		if m[0]&0x01 != 0 || m[0]&0x02 == 0 {
			t.Fatalf("not locally administered unicast: %v", m)
		}
		if m.IsZero() || m.IsBroadcast() {
			t.Fatalf("reserved mac generated: %v", m)
		}
	}
}

func TestLoadOrCreatePersists(t *testing.T) {
	dir := t.TempDir()
	m1, err := LoadOrCreate(dir, OwnFile)
	if err != nil {
		t.Fatal(err)
	}
	m2, err := LoadOrCreate(dir, OwnFile)
	if err != nil {
		t.Fatal(err)
	}
	if m1 != m2 {
		t.Fatalf("second load %v != first %v", m2, m1)
	}
}

func TestLoadOrCreateRejectsGarbage(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, OwnFile), []byte("not-a-mac"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadOrCreate(dir, OwnFile); err == nil {
		t.Fatal("expected error for garbage mac file")
	}
}
