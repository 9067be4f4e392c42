package interceptor

import (
	"bytes"
	"testing"
	"time"
)

func feedAll(in *Interceptor, data []byte) []Action {
	var actions []Action
	for _, b := range data {
		actions = append(actions, in.Feed(b))
	}
	if a := in.FinishBatch(); a != nil {
		actions = append(actions, *a)
	}
	return actions
}

func TestPassthroughForwardsNonPrefixBytes(t *testing.T) {
	in := New([]byte("::"), nil)
	actions := feedAll(in, []byte("ls -la\r"))
	for _, a := range actions {
		if a.Kind != ActionForward {
			t.Fatalf("expected all Forward, got %v", a.Kind)
		}
	}
}

func TestPrefixDivergeFlushesBuffer(t *testing.T) {
	in := New([]byte("::"), nil)
	// ':' alone, then a non-':' byte should flush both bytes verbatim.
	a1 := in.Feed(':')
	if a1.Kind != ActionPending {
		t.Fatalf("expected Pending after partial prefix, got %v", a1.Kind)
	}
	a2 := in.Feed('x')
	if a2.Kind != ActionForward || !bytes.Equal(a2.Data, []byte(":x")) {
		t.Fatalf("expected Forward(':x'), got %v %q", a2.Kind, a2.Data)
	}
}

func TestChatModeEngageAndEnter(t *testing.T) {
	in := New([]byte("::"), nil)
	actions := feedAll(in, []byte("::hello\n"))
	last := actions[len(actions)-1]
	if last.Kind != ActionChat || string(last.Data) != "hello" {
		t.Fatalf("expected Chat(hello), got %v %q", last.Kind, last.Data)
	}
}

func TestChatBackspaceBelowPrefixCancels(t *testing.T) {
	in := New([]byte("::"), nil)
	feedAll(in, []byte("::"))
	if !in.inChat {
		t.Fatal("expected chat mode engaged")
	}
	a := in.Feed(0x7f) // backspace with empty typed content -> falls below prefix
	if a.Kind != ActionCancel {
		t.Fatalf("expected Cancel, got %v", a.Kind)
	}
	if in.inChat {
		t.Fatal("expected chat mode exited")
	}
}

func TestBareEscapeAtEndOfBatchCancels(t *testing.T) {
	in := New([]byte("::"), nil)
	feedAll(in, []byte("::typing"))
	actions := feedAll(in, []byte{escByte})
	last := actions[len(actions)-1]
	if last.Kind != ActionCancel {
		t.Fatalf("expected Cancel for bare trailing ESC, got %v", last.Kind)
	}
}

func TestArrowKeyInSameReadIsNotCancel(t *testing.T) {
	in := New([]byte("::"), nil)
	feedAll(in, []byte("::typing"))
	actions := feedAll(in, []byte{escByte, '[', 'A'}) // up arrow, all in one read
	for _, a := range actions {
		if a.Kind == ActionCancel {
			t.Fatal("arrow key should not produce Cancel")
		}
	}
}

func TestArrowKeyInPlainPassthroughIsForwarded(t *testing.T) {
	in := New([]byte("::"), nil)
	// Up-arrow at a bare prompt, never having touched the chat prefix: must
	// reach the shell byte-for-byte, not be swallowed by the CSI filter.
	actions := feedAll(in, []byte{escByte, '[', 'A'})
	var got []byte
	for _, a := range actions {
		if a.Kind != ActionForward {
			t.Fatalf("expected all Forward for a plain-passthrough arrow key, got %v", a.Kind)
		}
		got = append(got, a.Data...)
	}
	if !bytes.Equal(got, []byte{escByte, '[', 'A'}) {
		t.Fatalf("expected arrow key forwarded verbatim, got %q", got)
	}
}

func TestBracketedPaste(t *testing.T) {
	in := New([]byte("::"), nil)
	feedAll(in, []byte("::"))
	paste := append([]byte{escByte, '[', '2', '0', '0', '~'}, []byte("pasted\x1b[31mtext")...)
	paste = append(paste, escByte, '[', '2', '0', '1', '~')
	actions := feedAll(in, paste)
	last := actions[len(actions)-1]
	if last.Kind != ActionBuffering {
		t.Fatalf("expected Buffering after paste terminator, got %v", last.Kind)
	}
	if !bytes.Contains(last.Data, []byte("pasted\x1b[31mtext")) {
		t.Fatalf("expected pasted content preserved verbatim, got %q", last.Data)
	}
}

func TestSuppressForwardsEverything(t *testing.T) {
	in := New([]byte("::"), nil)
	feedAll(in, []byte("::partial"))
	in.Suppress()
	a := in.Feed(':')
	if a.Kind != ActionForward {
		t.Fatalf("expected Forward while suppressed, got %v", a.Kind)
	}
	if in.inChat {
		t.Fatal("expected chat buffer discarded on suppression")
	}
}

func TestIdleGuardRefusesChatMidCommand(t *testing.T) {
	g := NewIdleGuard(500)
	// lastForward is "now" (zero duration elapsed): guard must refuse.
	if g.Allow(time.Now()) {
		t.Fatal("expected guard to refuse immediately after a forwarded keystroke")
	}
	if !g.Allow(time.Now().Add(-time.Second)) {
		t.Fatal("expected guard to allow once idle threshold has passed")
	}
	if !g.Allow(time.Time{}) {
		t.Fatal("expected guard to allow when there has been no forwarded keystroke yet")
	}
}
