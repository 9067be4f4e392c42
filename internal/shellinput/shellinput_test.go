package shellinput

import "testing"

func TestBasicTyping(t *testing.T) {
	tr := New()
	tr.EnterPrompt()
	for _, b := range []byte("git st") {
		tr.Feed(b)
	}
	if tr.Input() != "git st" {
		t.Fatalf("got %q", tr.Input())
	}
}

func TestEnterClearsAndLeavesPrompt(t *testing.T) {
	tr := New()
	tr.EnterPrompt()
	tr.Feed('l')
	tr.Feed('s')
	tr.Feed('\r')
	if tr.Input() != "" || tr.AtPrompt() {
		t.Fatalf("expected cleared input and left prompt, got %q atPrompt=%v", tr.Input(), tr.AtPrompt())
	}
}

func TestBackspace(t *testing.T) {
	tr := New()
	tr.EnterPrompt()
	tr.Feed('l')
	tr.Feed('s')
	tr.Feed(0x7f)
	if tr.Input() != "l" {
		t.Fatalf("got %q", tr.Input())
	}
}

func TestCtrlUClears(t *testing.T) {
	tr := New()
	tr.EnterPrompt()
	tr.Feed('l')
	tr.Feed('s')
	tr.Feed(0x15)
	if tr.Input() != "" {
		t.Fatalf("got %q", tr.Input())
	}
}

func TestIgnoredWhenNotAtPrompt(t *testing.T) {
	tr := New()
	tr.Feed('x')
	if tr.Input() != "" {
		t.Fatal("expected no mutation while not at prompt")
	}
}

func TestInjectAppendsAndBumps(t *testing.T) {
	tr := New()
	tr.EnterPrompt()
	tr.TakeChange()
	tr.Inject("t status")
	if tr.Input() != "t status" {
		t.Fatalf("got %q", tr.Input())
	}
	if !tr.TakeChange() {
		t.Fatal("expected changed flag set after inject")
	}
}

func TestTakeChangeClearsFlag(t *testing.T) {
	tr := New()
	tr.EnterPrompt()
	if !tr.TakeChange() {
		t.Fatal("expected change from EnterPrompt")
	}
	if tr.TakeChange() {
		t.Fatal("expected flag cleared after first take")
	}
}
