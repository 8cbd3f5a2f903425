package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestEnvHelpers(t *testing.T) {
	t.Setenv("CFG_BOOL", "yes")
	t.Setenv("CFG_INT", "42")
	t.Setenv("CFG_BAD_INT", "x")
	t.Setenv("CFG_DUR", "90s")
	t.Setenv("CFG_DUR_SECONDS", "120")

	if !envBool("CFG_BOOL", false) {
		t.Error("envBool yes = false, want true")
	}
	if got := envInt("CFG_INT", 1); got != 42 {
		t.Errorf("envInt = %d, want 42", got)
	}
	if got := envInt("CFG_BAD_INT", 7); got != 7 {
		t.Errorf("envInt bad = %d, want default 7", got)
	}
	if got := envDur("CFG_DUR", 0); got != 90*time.Second {
		t.Errorf("envDur = %v, want 90s", got)
	}
	if got := envDur("CFG_DUR_SECONDS", 0); got != 120*time.Second {
		t.Errorf("envDur seconds = %v, want 2m", got)
	}
}

func TestLoadAppliesFloors(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("DATA_DIR", dir)
	t.Setenv("SECRET_KEY", "0123456789abcdef0123456789abcdef")
	t.Setenv("MAX_REQUEST_BYTES", "10")
	t.Setenv("MAX_MULTIPART_PARTS", "1")
	t.Setenv("HOUSEKEEPING_INTERVAL_SECONDS", "5")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.MaxRequestBytes != mb {
		t.Errorf("MaxRequestBytes = %d, want %d", cfg.MaxRequestBytes, mb)
	}
	if cfg.MaxMultipartParts != 10 {
		t.Errorf("MaxMultipartParts = %d, want 10", cfg.MaxMultipartParts)
	}
	if cfg.HousekeepingInterval != time.Minute {
		t.Errorf("HousekeepingInterval = %v, want 1m", cfg.HousekeepingInterval)
	}
	if cfg.DatabasePath != filepath.Join(dir, "atlas.db") {
		t.Errorf("DatabasePath = %q", cfg.DatabasePath)
	}
}

func TestSecretKeyGeneratedOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keys", "secret.key")

	first, err := loadSecretKey("", path)
	if err != nil {
		t.Fatalf("loadSecretKey: %v", err)
	}
	if len(first) != 64 {
		t.Errorf("generated key length = %d, want 64", len(first))
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat key file: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("key file mode = %v, want 0600", info.Mode().Perm())
	}

	second, err := loadSecretKey("", path)
	if err != nil {
		t.Fatalf("loadSecretKey again: %v", err)
	}
	if string(first) != string(second) {
		t.Error("second load generated a new key")
	}
}

func TestSecretKeyTooShort(t *testing.T) {
	if _, err := loadSecretKey("short", ""); err == nil {
		t.Error("expected error for short SECRET_KEY")
	}
}

func TestHostAllowed(t *testing.T) {
	cfg := &Config{PublicBaseURL: "https://atlasbahamas.com"}
	if !cfg.HostAllowed("atlasbahamas.com") {
		t.Error("base URL host should be allowed")
	}
	if !cfg.HostAllowed("localhost") {
		t.Error("localhost should be allowed with empty list")
	}
	if cfg.HostAllowed("evil.example") {
		t.Error("unknown host should be rejected")
	}

	cfg.AllowedHosts = []string{".atlasbahamas.com"}
	if !cfg.HostAllowed("www.atlasbahamas.com") {
		t.Error("subdomain should match leading-dot entry")
	}
}
