package profile

import (
	"path/filepath"
	"strings"
	"testing"
)

func TestPathsUnderProfileDir(t *testing.T) {
	dir := Dir("ops")
	if !strings.HasSuffix(dir, filepath.Join(".konsul", "profiles", "ops")) {
		t.Errorf("Dir = %q, want suffix .konsul/profiles/ops", dir)
	}
	if !strings.HasPrefix(StateDBPath("ops"), dir) {
		t.Errorf("StateDBPath not under profile dir: %q", StateDBPath("ops"))
	}
	if !strings.HasPrefix(LogPath("ops"), LogDir("ops")) {
		t.Errorf("LogPath not under log dir: %q", LogPath("ops"))
	}
}

func TestConfigPathInBaseDir(t *testing.T) {
	if filepath.Dir(ConfigPath()) != BaseDir() {
		t.Errorf("ConfigPath = %q, want inside %q", ConfigPath(), BaseDir())
	}
}
