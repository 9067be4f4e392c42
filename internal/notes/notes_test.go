package notes

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/omnish-dev/omnish/internal/llm"
	"github.com/omnish-dev/omnish/internal/model"
	"github.com/omnish-dev/omnish/internal/session"
)

func TestHourlySummarySkipsWhenEmpty(t *testing.T) {
	dir := t.TempDir()
	mgr, _ := session.New(filepath.Join(dir, "sessions"))
	notesDir := filepath.Join(dir, "notes")
	g := New(mgr, nil, notesDir)

	if err := g.HourlySummary(context.Background()); err != nil {
		t.Fatalf("HourlySummary: %v", err)
	}
	if _, err := os.Stat(filepath.Join(notesDir, "summaries")); !os.IsNotExist(err) {
		t.Fatal("expected no summaries directory to be created")
	}
}

func TestHourlySummaryWritesCommands(t *testing.T) {
	dir := t.TempDir()
	mgr, _ := session.New(filepath.Join(dir, "sessions"))
	mgr.Register("s1", "", nil)
	mgr.WriteIO("s1", 1000, model.DirOutput, []byte("\x1b]133;A\x07$ "))
	mgr.WriteIO("s1", 1001, model.DirInput, []byte("cargo build\r"))
	mgr.WriteIO("s1", 1002, model.DirOutput, []byte("\x1b]133;B;cargo build;/tmp\x07ok\n\x1b]133;D;0\x07"))

	notesDir := filepath.Join(dir, "notes")
	g := New(mgr, nil, notesDir)
	now := time.Now()
	g.now = func() time.Time { return now }

	if err := g.HourlySummary(context.Background()); err != nil {
		t.Fatalf("HourlySummary: %v", err)
	}

	path := filepath.Join(notesDir, "summaries", now.Format("2006-01-02-15")+".md")
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read summary: %v", err)
	}
	if !containsAll(string(data), "cargo build", "/tmp") {
		t.Fatalf("expected command details in summary, got %q", data)
	}
}

func TestDailyNoteAppendsLLMRecap(t *testing.T) {
	dir := t.TempDir()
	mgr, _ := session.New(filepath.Join(dir, "sessions"))
	mgr.Register("s1", "", nil)
	mgr.WriteIO("s1", 1000, model.DirOutput, []byte("\x1b]133;A\x07$ "))
	mgr.WriteIO("s1", 1001, model.DirInput, []byte("git pull\r"))
	mgr.WriteIO("s1", 1002, model.DirOutput, []byte("\x1b]133;B;git pull;/tmp\x07ok\n\x1b]133;D;0\x07"))

	notesDir := filepath.Join(dir, "notes")
	g := New(mgr, llm.NewTestProvider(), notesDir)
	now := time.Now()
	g.now = func() time.Time { return now }

	if err := g.DailyNote(context.Background()); err != nil {
		t.Fatalf("DailyNote: %v", err)
	}

	path := filepath.Join(notesDir, now.Format("2006-01-02")+".md")
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read daily note: %v", err)
	}
	if !containsAll(string(data), "git pull", "## Summary") {
		t.Fatalf("expected command and summary sections, got %q", data)
	}
}

func containsAll(haystack string, needles ...string) bool {
	for _, n := range needles {
		found := false
		for i := 0; i+len(n) <= len(haystack); i++ {
			if haystack[i:i+len(n)] == n {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
