package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestIntAndBoolFallbacks(t *testing.T) {
	t.Setenv("CFG_INT", "42")
	t.Setenv("CFG_BAD_INT", "forty")
	t.Setenv("CFG_BOOL", "Yes")

	if got := Int("CFG_INT", 1); got != 42 {
		t.Fatalf("expected 42, got %d", got)
	}
	if got := Int("CFG_BAD_INT", 7); got != 7 {
		t.Fatalf("expected fallback 7, got %d", got)
	}
	if got := Int("CFG_MISSING", 3); got != 3 {
		t.Fatalf("expected fallback 3, got %d", got)
	}
	if !Bool("CFG_BOOL", false) {
		t.Fatal("expected Yes to parse as true")
	}
	if Bool("CFG_MISSING", false) {
		t.Fatal("expected fallback false")
	}
}

func TestPortRejectsOutOfRange(t *testing.T) {
	t.Setenv("CFG_PORT", "70000")
	if _, err := Port("CFG_PORT", "8080"); err == nil {
		t.Fatal("expected error for port 70000")
	}
	if p, err := Port("CFG_PORT_MISSING", "8080"); err != nil || p != "8080" {
		t.Fatalf("expected fallback 8080, got %q (%v)", p, err)
	}
}

func TestSecondsAndList(t *testing.T) {
	t.Setenv("CFG_TTL", "90")
	t.Setenv("CFG_LIST", " a, ,b ,c")
	if got := Seconds("CFG_TTL", time.Second); got != 90*time.Second {
		t.Fatalf("expected 90s, got %s", got)
	}
	got := List("CFG_LIST")
	if len(got) != 3 || got[0] != "a" || got[1] != "b" || got[2] != "c" {
		t.Fatalf("unexpected list: %#v", got)
	}
}

func TestLoadDotenvKeepsExistingValues(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.env")
	if err := os.WriteFile(path, []byte("CFG_DOTENV_NEW=from-file\nCFG_DOTENV_SET=from-file\n"), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	t.Setenv("CFG_DOTENV_SET", "from-env")
	t.Cleanup(func() { _ = os.Unsetenv("CFG_DOTENV_NEW") })

	if err := LoadDotenv(path, filepath.Join(dir, "missing.env")); err != nil {
		t.Fatalf("LoadDotenv: %v", err)
	}
	if got := os.Getenv("CFG_DOTENV_NEW"); got != "from-file" {
		t.Fatalf("expected value from file, got %q", got)
	}
	if got := os.Getenv("CFG_DOTENV_SET"); got != "from-env" {
		t.Fatalf("expected existing env to win, got %q", got)
	}
}
