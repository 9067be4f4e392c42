package shellhook

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestScriptHasAllOSC133Sequences(t *testing.T) {
	script := Script("/bin/bash")
	for _, want := range []string{"133;A", "133;B", "133;C", "133;D"} {
		if !strings.Contains(script, want) {
			t.Fatalf("expected hook to contain %q, got:\n%s", want, script)
		}
	}
}

func TestScriptUnsupportedShellReturnsEmpty(t *testing.T) {
	if Script("/bin/zsh") != "" {
		t.Fatal("expected empty script for zsh")
	}
	if Script("/bin/fish") != "" {
		t.Fatal("expected empty script for fish")
	}
}

func TestInstallWritesFile(t *testing.T) {
	dir := t.TempDir()
	path, err := Install(dir, "/bin/bash")
	if err != nil {
		t.Fatalf("Install: %v", err)
	}
	if path == "" {
		t.Fatal("expected non-empty path for bash")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read installed hook: %v", err)
	}
	if !strings.Contains(string(data), "__omnish_prompt_cmd") {
		t.Fatal("expected installed hook to contain prompt_cmd function")
	}
	if filepath.Dir(path) != filepath.Join(dir, "hooks") {
		t.Fatalf("expected hook under hooks/ dir, got %s", path)
	}
}

func TestInstallUnsupportedShellReturnsEmptyPath(t *testing.T) {
	path, err := Install(t.TempDir(), "/bin/zsh")
	if err != nil {
		t.Fatalf("Install: %v", err)
	}
	if path != "" {
		t.Fatalf("expected empty path for zsh, got %q", path)
	}
}
