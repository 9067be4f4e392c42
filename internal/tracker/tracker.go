// Package tracker reconstructs command records from a PTY output stream,
// using OSC 133 semantic prompt sequences when the shell emits them and
// falling back to prompt-like line-ending regexes otherwise.
package tracker

import (
	"regexp"
	"time"

	"github.com/omnish-dev/omnish/internal/ansiutil"
	"github.com/omnish-dev/omnish/internal/model"
	"github.com/omnish-dev/omnish/internal/osc133"
)

// defaultPromptPatterns matches a prompt-like line ending, after CSI
// stripping, used only in regex-fallback mode.
var defaultPromptPatterns = regexp.MustCompile(`[$#%❯]\s*$`)

// mode selects which detection strategy is active. A tracker starts in
// regex mode and switches permanently to OSC-133 mode the first time any
// 133 event is observed.
type mode int

const (
	modeRegex mode = iota
	modeOSC133
)

// Tracker reconstructs CommandRecords for one session's PTY stream. It is
// not safe for concurrent use — the driver feeds it serialized input and
// output chunks.
type Tracker struct {
	sessionID string
	nextSeq   int
	mode      mode

	osc *osc133.Detector

	pending        *model.CommandRecord
	pendingEntered bool // output-collection window open for the pending command

	// inputEditor replays the raw input-side bytes of the current pending
	// command through the mini line editor to recover command text when no
	// OSC-133 payload supplied it.
	inputEditor lineEditor

	// outputBuf accumulates output-side bytes once the pending command's
	// "entered" window has opened (OSC B seen, or regex prompt matched).
	outputBuf []byte

	streamPos int64 // running offset into the session's stream log

	sealed []model.CommandRecord

	now func() time.Time
}

// New creates a Tracker for sessionID, starting in regex-fallback mode.
func New(sessionID string) *Tracker {
	return &Tracker{
		sessionID: sessionID,
		osc:       osc133.New(),
		now:       time.Now,
	}
}

// FeedInput records raw input-side bytes typed while a command is pending
// (entered or not), for later mini-line-editor replay.
func (t *Tracker) FeedInput(data []byte) {
	if t.pending == nil {
		t.openPending()
	}
	t.inputEditor.feed(data)
	t.streamPos += int64(len(data))
}

// FeedOutput scans output-side bytes for OSC 133 sequences (switching the
// tracker to OSC-133 mode on the first hit) or, in regex mode, for
// prompt-like line endings. Returns any CommandRecords sealed as a result of
// this feed.
func (t *Tracker) FeedOutput(data []byte, tsMs int64) []model.CommandRecord {
	t.sealed = t.sealed[:0]

	events := t.osc.Scan(data)
	rest := data
	if len(events) > 0 {
		t.mode = modeOSC133
		consumed := 0
		for _, ev := range events {
			// Output before this event belongs to the command pending now.
			if t.pending != nil && t.pendingEntered && ev.Start > consumed {
				t.outputBuf = append(t.outputBuf, data[consumed:ev.Start]...)
			}
			t.handleOSCEvent(ev, tsMs)
			consumed = ev.End
		}
		rest = data[consumed:]
	} else if t.mode == modeRegex {
		t.scanRegex(data, tsMs)
	}

	if t.pending != nil && t.pendingEntered {
		t.outputBuf = append(t.outputBuf, rest...)
	}
	t.streamPos += int64(len(data))

	out := make([]model.CommandRecord, len(t.sealed))
	copy(out, t.sealed)
	return out
}

func (t *Tracker) openPending() {
	t.inputEditor.reset()
	t.outputBuf = t.outputBuf[:0]
	t.pendingEntered = false
	t.pending = &model.CommandRecord{
		ID:           model.MakeCommandID(t.sessionID, t.nextSeq),
		SessionID:    t.sessionID,
		Seq:          t.nextSeq,
		StreamOffset: t.streamPos,
	}
	t.nextSeq++
}

func (t *Tracker) handleOSCEvent(ev osc133.Event, tsMs int64) {
	switch ev.Kind {
	case osc133.PromptStart:
		t.sealPendingUnenteredIfAny(tsMs)
		t.openPending()
	case osc133.CommandStart:
		if t.pending == nil {
			t.openPending()
		}
		t.pending.CommandLine = ev.CommandLine
		t.pending.CWD = ev.CWD
		t.pending.StartedAt = toTime(tsMs)
		t.pendingEntered = true
		t.outputBuf = t.outputBuf[:0]
	case osc133.OutputStart:
		// Advisory only.
	case osc133.CommandEnd:
		if t.pending != nil {
			t.sealPending(tsMs, ev.ExitCode)
		}
	}
}

func (t *Tracker) sealPendingUnenteredIfAny(tsMs int64) {
	if t.pending != nil {
		t.sealPending(tsMs, nil)
	}
}

func (t *Tracker) sealPending(tsMs int64, exitCode *int) {
	p := t.pending
	if p.CommandLine == "" {
		p.CommandLine = t.inputEditor.commandText()
	}
	ended := toTime(tsMs)
	p.EndedAt = &ended
	p.ExitCode = exitCode
	p.OutputSummary = summarize(t.pendingEntered, t.outputBuf)
	p.StreamLength = t.streamPos - p.StreamOffset
	t.sealed = append(t.sealed, *p)
	t.pending = nil
	t.pendingEntered = false
}

// scanRegex implements prompt-like-line-ending detection for shells with no
// OSC-133 support. It operates on ANSI-stripped lines of the fed chunk.
func (t *Tracker) scanRegex(data []byte, tsMs int64) {
	stripped := ansiutil.Strip(data)
	if !defaultPromptPatterns.Match(stripped) {
		return
	}
	if t.pending == nil {
		t.openPending()
		t.pendingEntered = true
		return
	}
	// Subsequent match: seal current, open next.
	t.sealPending(tsMs, nil)
	t.openPending()
	t.pendingEntered = true
}

func toTime(tsMs int64) time.Time {
	return time.UnixMilli(tsMs).UTC()
}

const summaryHeadTail = 5

// summarize ANSI-strips buf, splits into non-empty trimmed lines, and keeps
// the head+tail if the total exceeds head+tail lines.
func summarize(entered bool, buf []byte) string {
	if !entered || len(buf) == 0 {
		return ""
	}
	lines := ansiutil.NonEmptyTrimmedLines(ansiutil.ToUTF8Lossy(ansiutil.Strip(buf)))
	if len(lines) <= summaryHeadTail*2 {
		return joinLines(lines)
	}
	head := lines[:summaryHeadTail]
	tail := lines[len(lines)-summaryHeadTail:]
	omitted := len(lines) - summaryHeadTail*2
	out := append([]string(nil), head...)
	out = append(out, marker(omitted))
	out = append(out, tail...)
	return joinLines(out)
}

func marker(omitted int) string {
	return "... (" + itoa(omitted) + " lines omitted) ..."
}

func joinLines(lines []string) string {
	out := ""
	for i, l := range lines {
		if i > 0 {
			out += "\n"
		}
		out += l
	}
	return out
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}
