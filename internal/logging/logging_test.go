package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"dev.c0redev.nowgate/internal/config"
)

func TestSetupWritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "gw.log")
	log, err := Setup(config.LogConfig{Level: "debug", Format: "json", Outputs: []string{path}})
	if err != nil {
		t.Fatal(err)
	}
	log.Named("gateway").Debug("hello")
	_ = log.Sync()
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(b), `"msg":"hello"`) || !strings.Contains(string(b), `"logger":"gateway"`) {
		t.Fatalf("log = %s", b)
	}
}

func TestSetupLevelFilter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gw.log")
	log, err := Setup(config.LogConfig{Level: "warn", Format: "json", Outputs: []string{path}})
	if err != nil {
		t.Fatal(err)
	}
	log.Info("quiet")
	log.Warn("loud")
	_ = log.Sync()
	b, _ := os.ReadFile(path)
	if strings.Contains(string(b), "quiet") || !strings.Contains(string(b), "loud") {
		t.Fatalf("log = %s", b)
	}
}
