package utils_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/KaramelBytes/savloom-cli/internal/utils"
)

func TestSafeWriteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.csv")
	if err := utils.SafeWriteFile(path, []byte("a,b\n1,2\n")); err != nil {
		t.Fatalf("SafeWriteFile: %v", err)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if string(b) != "a,b\n1,2\n" {
		t.Errorf("content = %q", b)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Error("temp file left behind")
	}
}

func TestSafeWriteFileOverwrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.txt")
	if err := os.WriteFile(path, []byte("old"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := utils.SafeWriteFile(path, []byte("new")); err != nil {
		t.Fatalf("SafeWriteFile: %v", err)
	}
	b, _ := os.ReadFile(path)
	if string(b) != "new" {
		t.Errorf("content = %q, want new", b)
	}
}

func TestEnsureDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "a", "b", "c")
	if err := utils.EnsureDir(dir); err != nil {
		t.Fatalf("EnsureDir: %v", err)
	}
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		t.Errorf("expected directory at %s", dir)
	}
	// Idempotent on an existing directory.
	if err := utils.EnsureDir(dir); err != nil {
		t.Errorf("EnsureDir second call: %v", err)
	}
}

func TestPrettyJSON(t *testing.T) {
	b, err := utils.PrettyJSON(map[string]int{"rows": 4})
	if err != nil {
		t.Fatalf("PrettyJSON: %v", err)
	}
	if !strings.Contains(string(b), "\"rows\": 4") {
		t.Errorf("output = %q", b)
	}
}
