package ident

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// OwnFile is the file under the data dir holding this endpoint's MAC.
const OwnFile = "gateway_mac"

// LoadOrCreate returns the MAC persisted at dataDir/name, generating and
// writing a random one on first run.
func LoadOrCreate(dataDir, name string) (MAC, error) {
	if dataDir == "" {
		dataDir = "."
	}
	path := filepath.Join(dataDir, name)
	b, err := os.ReadFile(path)
	if err == nil {
		s := strings.TrimSpace(string(b))
		m := Parse(s)
		if m.IsZero() || m.IsBroadcast() {
			return Zero, fmt.Errorf("ident: bad mac %q in %s", s, path)
		}
		return m, nil
	}
	if !os.IsNotExist(err) {
		return Zero, err
	}
	m, err := Random()
	if err != nil {
		return Zero, err
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return Zero, err
	}
	if err := os.WriteFile(path, []byte(m.String()+"\n"), 0o600); err != nil {
		return Zero, err
	}
	return m, nil
}
