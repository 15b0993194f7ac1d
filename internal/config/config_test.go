package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeTemp(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestLoadClientOverlaysOnlyDefinedKeys(t *testing.T) {
	path := writeTemp(t, `addr = "127.0.0.1:9"
max_connection_attempts = 5
`)
	cf, err := LoadClient(path)
	if err != nil {
		t.Fatalf("LoadClient: %v", err)
	}
	if cf.Addr != "127.0.0.1:9" {
		t.Fatalf("Addr: got %q want %q", cf.Addr, "127.0.0.1:9")
	}
	if cf.Props.MaxConnectionAttempts != 5 {
		t.Fatalf("MaxConnectionAttempts: got %d want 5", cf.Props.MaxConnectionAttempts)
	}
	if cf.Props.AlivenessTestDelay != 1000*time.Millisecond {
		t.Fatalf("AlivenessTestDelay: got %v want unchanged default", cf.Props.AlivenessTestDelay)
	}
}

func TestLoadClientRejectsInvalidOverlay(t *testing.T) {
	path := writeTemp(t, `aliveness_test_delay_ms = 0`)
	if _, err := LoadClient(path); err == nil {
		t.Fatalf("LoadClient: expected validation error for zero aliveness delay")
	}
}

func TestLoadServerAppliesBacklogAndPolicyOverrides(t *testing.T) {
	path := writeTemp(t, `port = 4000
new_connection_backlog = 8
use_blacklist = false
use_whitelist = true
denylist = ["10.0.0.1"]
`)
	sf, err := LoadServer(path)
	if err != nil {
		t.Fatalf("LoadServer: %v", err)
	}
	if sf.Port != 4000 {
		t.Fatalf("Port: got %d want 4000", sf.Port)
	}
	if sf.Props.NewConnectionBacklog != 8 {
		t.Fatalf("NewConnectionBacklog: got %d want 8", sf.Props.NewConnectionBacklog)
	}
	if !sf.Props.UseWhitelist || sf.Props.UseBlacklist {
		t.Fatalf("policy flags not overlaid: %+v", sf.Props)
	}
	if len(sf.Denylist) != 1 || sf.Denylist[0] != "10.0.0.1" {
		t.Fatalf("Denylist: got %v", sf.Denylist)
	}
}

func TestLoadServerRejectsConflictingPolicy(t *testing.T) {
	path := writeTemp(t, `use_blacklist = true
use_whitelist = true
`)
	if _, err := LoadServer(path); err == nil {
		t.Fatalf("LoadServer: expected validation error for conflicting policy")
	}
}

func TestWriteTemplateRefusesOverwriteByDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "client.toml")
	if err := WriteTemplate(path, "client", false); err != nil {
		t.Fatalf("WriteTemplate: %v", err)
	}
	if err := WriteTemplate(path, "client", false); err == nil {
		t.Fatalf("WriteTemplate: expected refusal on existing file")
	}
	if err := WriteTemplate(path, "client", true); err != nil {
		t.Fatalf("WriteTemplate with overwrite: %v", err)
	}
}
