// Package completion implements the ghost-text completer: gating logic
// deciding when to ask the daemon for a suggestion, and reconciliation of
// late-arriving responses against whatever the user has typed since.
package completion

import (
	"strings"
	"time"

	"github.com/omnish-dev/omnish/internal/model"
)

const (
	debounce          = 500 * time.Millisecond
	inFlightTimeout   = 5 * time.Second
	maxConcurrent     = 5
)

type activeRequest struct {
	originalInput string
	sentAt        time.Time
}

// Completer tracks the ghost suffix shown after the user's current input
// and the in-flight completion requests that might refine or clear it.
type Completer struct {
	ghost        string
	ghostFrom    string // the input snapshot that produced ghost
	active       map[uint64]activeRequest
	sentSeq      uint64
	pendingSeq   uint64
	lastChange   time.Time

	now func() time.Time
}

// New creates an empty Completer.
func New() *Completer {
	return &Completer{
		active: make(map[uint64]activeRequest),
		now:    time.Now,
	}
}

// Ghost returns the current ghost suffix, or "" if none.
func (c *Completer) Ghost() string {
	return c.ghost
}

// OnInputChange must be called on every edit to the current input line. It
// trims or clears the ghost to stay consistent with what was just typed,
// and bumps pendingSeq so stale responses can be detected.
func (c *Completer) OnInputChange(newInput string) {
	c.pendingSeq++
	c.lastChange = c.now()

	if c.ghost == "" {
		return
	}
	if strings.HasPrefix(newInput, c.ghostFrom) {
		typed := newInput[len(c.ghostFrom):]
		if strings.HasPrefix(c.ghost, typed) {
			c.ghost = c.ghost[len(typed):]
			c.ghostFrom = newInput
			return
		}
	}
	c.ghost = ""
	c.ghostFrom = ""
}

// ShouldRequest reports whether a new completion request should be issued
// for currentInput at currentSeq, and if so registers it as active and
// returns the sequence id to send.
func (c *Completer) ShouldRequest(currentSeq uint64, currentInput string) (uint64, bool) {
	n := c.now()

	if len(c.active) >= maxConcurrent {
		return 0, false
	}
	if !c.lastChange.IsZero() && n.Sub(c.lastChange) < debounce {
		return 0, false
	}

	timeout := inFlightTimeout
	if currentInput == "" {
		timeout *= 2
	}
	for _, req := range c.active {
		if req.originalInput == currentInput && n.Sub(req.sentAt) < timeout {
			return 0, false
		}
	}

	if c.sentSeq != 0 && currentSeq <= c.sentSeq {
		return 0, false
	}

	seq := currentSeq
	c.active[seq] = activeRequest{originalInput: currentInput, sentAt: n}
	c.sentSeq = seq
	return seq, true
}

// OnResponse reconciles an arriving completion response against the live
// input state. currentInput is what the user has typed right now (which
// may have moved on since the request was sent).
func (c *Completer) OnResponse(responseSeq uint64, suggestions []model.Suggestion, currentInput string) {
	req, ok := c.active[responseSeq]
	if !ok {
		return
	}
	delete(c.active, responseSeq)

	if !isPrefixOrExtension(currentInput, req.originalInput) {
		return
	}
	if responseSeq < c.pendingSeq {
		return
	}
	// "User typed after the request was sent": besides pendingSeq advancing
	// past responseSeq (above), any input change recorded after sentAt
	// drops the response.
	if c.lastChange.After(req.sentAt) {
		return
	}
	if len(suggestions) == 0 {
		return
	}

	best := suggestions[0]
	for _, s := range suggestions[1:] {
		if s.Confidence > best.Confidence {
			best = s
		}
	}

	var fullLine string
	switch {
	case req.originalInput == "":
		fullLine = best.Text
	case strings.HasPrefix(best.Text, req.originalInput):
		fullLine = best.Text
	default:
		fullLine = req.originalInput + best.Text
	}

	if !strings.HasPrefix(fullLine, currentInput) {
		return
	}
	c.ghost = fullLine[len(currentInput):]
	c.ghostFrom = currentInput
}

func isPrefixOrExtension(a, b string) bool {
	return strings.HasPrefix(a, b) || strings.HasPrefix(b, a)
}

// Accept returns the current ghost suffix and clears it (without resetting
// lastChange — the caller is expected to immediately apply the suffix to
// the input, which will itself call OnInputChange).
func (c *Completer) Accept() string {
	g := c.ghost
	c.ghost = ""
	c.ghostFrom = ""
	return g
}

// Clear resets all state, including lastChange, so a freshly drawn prompt
// does not instantly re-fire the debounce window.
func (c *Completer) Clear() {
	c.ghost = ""
	c.ghostFrom = ""
	c.active = make(map[uint64]activeRequest)
	c.sentSeq = 0
	c.pendingSeq = 0
	c.lastChange = time.Time{}
}

// CleanupTimedOutRequests removes active entries older than inFlightTimeout.
func (c *Completer) CleanupTimedOutRequests() {
	n := c.now()
	for seq, req := range c.active {
		if n.Sub(req.sentAt) >= inFlightTimeout {
			delete(c.active, seq)
		}
	}
}
