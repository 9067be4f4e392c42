// Package shellinput mirrors the input line the user is currently typing
// at the shell prompt, so the daemon can propose ghost-text completions
// without the shell itself being involved.
package shellinput

// Tracker mirrors the live prompt input line.
type Tracker struct {
	input    []byte
	atPrompt bool
	seq      uint64
	changed  bool
	esc      int // 0: none, 1: after ESC, 2: inside ESC [ ... (CSI)
}

// New creates a Tracker, not yet at a prompt.
func New() *Tracker {
	return &Tracker{}
}

// EnterPrompt re-enters the prompt state (called on OSC 133;A or 133;D).
func (t *Tracker) EnterPrompt() {
	t.atPrompt = true
	t.input = t.input[:0]
	t.bump()
}

// LeavePrompt marks the tracker as no longer at a prompt (e.g. a command is
// now running).
func (t *Tracker) LeavePrompt() {
	t.atPrompt = false
	t.bump()
}

// AtPrompt reports whether the tracker currently believes the shell is
// sitting at an interactive prompt.
func (t *Tracker) AtPrompt() bool {
	return t.atPrompt
}

// Input returns the currently mirrored input line.
func (t *Tracker) Input() string {
	return string(t.input)
}

// Feed processes one forwarded input byte. Bytes are only interpreted while
// AtPrompt; otherwise they are ignored (the tracker does not try to model
// what a running foreground program does with its stdin).
func (t *Tracker) Feed(b byte) {
	if !t.atPrompt {
		return
	}
	if t.esc != 0 {
		// Skip the rest of an escape sequence: ESC + one byte, or
		// ESC [ parameters + a final byte in 0x40-0x7e.
		if t.esc == 1 && b == '[' {
			t.esc = 2
		} else if t.esc == 1 || (b >= 0x40 && b <= 0x7e) {
			t.esc = 0
		}
		return
	}
	switch {
	case b == 0x0a || b == 0x0d: // Enter
		t.input = t.input[:0]
		t.atPrompt = false
		t.bump()
	case b == 0x03 || b == 0x15: // Ctrl-C, Ctrl-U
		t.input = t.input[:0]
		t.bump()
	case b == 0x7f || b == 0x08: // Backspace/DEL
		if len(t.input) > 0 {
			t.input = t.input[:len(t.input)-1]
			t.bump()
		}
	case b == 0x09: // Tab: no-op
	case b >= 0x20 && b <= 0x7e: // printable ASCII
		t.input = append(t.input, b)
		t.bump()
	case b == 0x1b: // start of an escape sequence, skipped as a whole
		t.esc = 1
	default:
		// Other control bytes are ignored.
	}
}

// Inject appends text to the mirrored input without going through Feed,
// used when a ghost-text completion is accepted so the tracker reflects the
// injected suffix immediately.
func (t *Tracker) Inject(text string) {
	t.input = append(t.input, text...)
	t.bump()
}

func (t *Tracker) bump() {
	t.seq++
	t.changed = true
}

// Seq returns the current sequence id, bumped on every mutation.
func (t *Tracker) Seq() uint64 {
	return t.seq
}

// TakeChange reports whether the tracker has changed since the last call
// to TakeChange, clearing the flag atomically (single-threaded use only;
// there is no internal lock).
func (t *Tracker) TakeChange() bool {
	c := t.changed
	t.changed = false
	return c
}
