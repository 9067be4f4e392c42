// Package display renders the client's two pieces of injected UI atop the
// raw PTY stream: dimmed ghost-text suggestions and chat-prefix output
// (including errors, in red). It writes raw escape sequences directly, the
// way internal/egg/vterm.go does in the teacher, rather than pulling in a
// terminal color library — there is no cursor-addressed rendering here to
// justify one, just a handful of SGR codes around plain text.
package display

import "fmt"

const (
	sgrReset = "\x1b[0m"
	sgrDim   = "\x1b[2m"
	sgrRed   = "\x1b[31m"
)

// Ghost wraps suggestion text in the dim SGR attribute so it reads as
// provisional, matching how shells like fish and zsh autosuggest.
func Ghost(suggestion string) string {
	if suggestion == "" {
		return ""
	}
	return sgrDim + suggestion + sgrReset
}

// ClearGhost returns the bytes to erase a previously painted ghost of
// length n characters that starts at the cursor (where CursorBack left
// it): erase from the cursor to end of line, without moving the cursor.
func ClearGhost(n int) string {
	if n <= 0 {
		return ""
	}
	return "\x1b[K"
}

// CursorBack returns the bytes to move the cursor left n columns without
// erasing anything, used after painting a ghost so the real cursor stays
// at the end of the user's typed text rather than past the suggestion.
func CursorBack(n int) string {
	if n <= 0 {
		return ""
	}
	return fmt.Sprintf("\x1b[%dD", n)
}

// ChatResponse renders a normal chat-prefix answer.
func ChatResponse(text string) string {
	return text
}

// ChatError renders a chat-prefix error in red, per the spec's
// "errors surfaced through the chat prefix render in red" requirement.
func ChatError(text string) string {
	return sgrRed + text + sgrReset
}

// PassthroughNotice is the one-line notice for a client running in plain
// passthrough without a daemon. The client does not print it: when the
// daemon is unreachable the shell runs in passthrough with no notice.
const PassthroughNotice = "[omnish] daemon not available, running in passthrough mode\r\n"
