package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestSaveAndLoad(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.toml")

	cfg := &Config{DefaultProfile: "work"}
	cfg.Gateway.Workspace = "ws-1"
	cfg.Sync.Interval = Duration(15 * time.Second)
	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.DefaultProfile != "work" {
		t.Errorf("DefaultProfile = %q, want %q", loaded.DefaultProfile, "work")
	}
	if loaded.Gateway.Workspace != "ws-1" {
		t.Errorf("Workspace = %q, want ws-1", loaded.Gateway.Workspace)
	}
	if loaded.Sync.Interval.Std() != 15*time.Second {
		t.Errorf("Interval = %v, want 15s", loaded.Sync.Interval.Std())
	}
}

func TestLoadMissingUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Sync.Interval.Std() != 10*time.Second {
		t.Errorf("default Interval = %v, want 10s", cfg.Sync.Interval.Std())
	}
	if cfg.Gateway.CacheTTL.Std() != 5*time.Minute {
		t.Errorf("default CacheTTL = %v, want 5m", cfg.Gateway.CacheTTL.Std())
	}
	if cfg.Notify.MaxEntries != 50 {
		t.Errorf("default MaxEntries = %d, want 50", cfg.Notify.MaxEntries)
	}
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("KONSUL_API_TOKEN", "tok-123")
	t.Setenv("KONSUL_SYNC_INTERVAL", "3s")
	t.Setenv("KONSUL_CACHE_TTL", "90s")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Gateway.Token != "tok-123" {
		t.Errorf("Token = %q, want tok-123", cfg.Gateway.Token)
	}
	if cfg.Sync.Interval.Std() != 3*time.Second {
		t.Errorf("Interval = %v, want 3s", cfg.Sync.Interval.Std())
	}
	if cfg.Gateway.CacheTTL.Std() != 90*time.Second {
		t.Errorf("CacheTTL = %v, want 90s", cfg.Gateway.CacheTTL.Std())
	}
}

func TestSaveNeverWritesToken(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.toml")

	cfg := &Config{}
	cfg.Gateway.Token = "secret-token"
	if err := Save(path, cfg); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(data), "secret-token") {
		t.Error("token leaked into config file")
	}
}

func TestSavePermissions(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.toml")

	if err := Save(path, &Config{DefaultProfile: "main"}); err != nil {
		t.Fatal(err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("file permission = %o, want 0600", perm)
	}
}
