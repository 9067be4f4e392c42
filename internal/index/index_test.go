package index

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/omnish-dev/omnish/internal/model"
)

func TestUpsertAndRecent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.db")
	idx, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer idx.Close()

	now := time.Now()
	rec := model.CommandRecord{
		ID: "s1:0", SessionID: "s1", Seq: 0,
		CommandLine: "echo hi", CWD: "/tmp", StartedAt: now,
	}
	if err := idx.Upsert(rec); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	recent, err := idx.Recent(10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(recent) != 1 || recent[0].CommandLine != "echo hi" {
		t.Fatalf("unexpected recent: %+v", recent)
	}
}

func TestUpsertUpdatesExistingRow(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.db")
	idx, _ := Open(path)
	defer idx.Close()

	now := time.Now()
	rec := model.CommandRecord{ID: "s1:0", SessionID: "s1", Seq: 0, CommandLine: "echo hi", StartedAt: now}
	idx.Upsert(rec)

	ended := now.Add(time.Second)
	code := 0
	rec.EndedAt = &ended
	rec.ExitCode = &code
	rec.OutputSummary = "hi\n"
	if err := idx.Upsert(rec); err != nil {
		t.Fatalf("Upsert update: %v", err)
	}

	recent, _ := idx.Recent(10)
	if len(recent) != 1 || recent[0].ExitCode == nil || *recent[0].ExitCode != 0 {
		t.Fatalf("expected updated row, got %+v", recent)
	}
}

func TestBySessionOrdersBySeq(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.db")
	idx, _ := Open(path)
	defer idx.Close()

	now := time.Now()
	idx.Upsert(model.CommandRecord{ID: "s1:1", SessionID: "s1", Seq: 1, StartedAt: now})
	idx.Upsert(model.CommandRecord{ID: "s1:0", SessionID: "s1", Seq: 0, StartedAt: now})

	recs, err := idx.BySession("s1")
	if err != nil {
		t.Fatalf("BySession: %v", err)
	}
	if len(recs) != 2 || recs[0].Seq != 0 || recs[1].Seq != 1 {
		t.Fatalf("expected seq-ordered rows, got %+v", recs)
	}
}
