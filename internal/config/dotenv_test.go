package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDotEnv_FromWorkingDirectory(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("EV_DOTENV_PROBE=loaded\n"), 0o600); err != nil {
		t.Fatalf("Failed to write .env: %v", err)
	}

	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Failed to get working directory: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("Failed to chdir: %v", err)
	}
	t.Cleanup(func() { os.Chdir(wd) })

	t.Setenv("EV_DOTENV_PROBE", "")
	os.Unsetenv("EV_DOTENV_PROBE")

	path := LoadDotEnv()
	if path == "" {
		t.Fatal("Expected .env to be found")
	}
	if got := os.Getenv("EV_DOTENV_PROBE"); got != "loaded" {
		t.Errorf("Expected EV_DOTENV_PROBE=loaded, got %q", got)
	}
}
