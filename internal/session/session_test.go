package session

import (
	"testing"

	"github.com/omnish-dev/omnish/internal/model"
)

func TestRegisterWriteEndRoundTrip(t *testing.T) {
	dir := t.TempDir()
	m, err := New(dir)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := m.Register("s1", "", map[string]string{"shell": "/bin/bash"}); err != nil {
		t.Fatalf("Register: %v", err)
	}

	if _, err := m.WriteIO("s1", 1000, model.DirOutput, []byte("\x1b]133;A\x07$ ")); err != nil {
		t.Fatalf("WriteIO: %v", err)
	}
	if _, err := m.WriteIO("s1", 1001, model.DirInput, []byte("echo hi\r")); err != nil {
		t.Fatalf("WriteIO: %v", err)
	}
	sealed, err := m.WriteIO("s1", 1002, model.DirOutput, []byte("\x1b]133;B;echo hi;/\x07hi\n\x1b]133;D;0\x07"))
	if err != nil {
		t.Fatalf("WriteIO: %v", err)
	}
	if len(sealed) != 1 {
		t.Fatalf("expected 1 sealed command, got %d", len(sealed))
	}

	cmds, err := m.GetCommands("s1")
	if err != nil || len(cmds) != 1 {
		t.Fatalf("GetCommands: %v %+v", err, cmds)
	}

	if err := m.EndSession("s1"); err != nil {
		t.Fatalf("EndSession: %v", err)
	}

	if _, err := m.GetCommands("s1"); err == nil {
		t.Fatal("expected error after session ended")
	}
}

func TestUnknownSessionErrors(t *testing.T) {
	m, _ := New(t.TempDir())
	if _, err := m.GetCommands("nope"); err == nil {
		t.Fatal("expected ErrUnknownSession")
	}
}

func TestBuildSessionContextStripsANSI(t *testing.T) {
	dir := t.TempDir()
	m, _ := New(dir)
	m.Register("s1", "", nil)
	m.WriteIO("s1", 1000, model.DirOutput, []byte("\x1b[31mred\x1b[0m text\n"))

	ctx, err := m.BuildSessionContext("s1", 0, 0, 1000)
	if err != nil {
		t.Fatalf("BuildSessionContext: %v", err)
	}
	if ctx != "red text\n" {
		t.Fatalf("got %q", ctx)
	}
}

func TestBuildAllSessionsContextIncludesHeaders(t *testing.T) {
	dir := t.TempDir()
	m, _ := New(dir)
	m.Register("alpha", "", nil)
	m.Register("beta", "", nil)
	m.WriteIO("alpha", 1000, model.DirOutput, []byte("from alpha\n"))
	m.WriteIO("beta", 1000, model.DirOutput, []byte("from beta\n"))

	ctx := m.BuildAllSessionsContext(10000)
	if !contains(ctx, "alpha") || !contains(ctx, "beta") {
		t.Fatalf("expected both session headers, got %q", ctx)
	}
}

func contains(haystack, needle string) bool {
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			return true
		}
	}
	return false
}
