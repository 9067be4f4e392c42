// Package probe collects the session attributes attached to a
// SessionStart frame: shell path, pid, tty, cwd, and hostname. Each is a
// thin, independently-failing reader so one unavailable probe (no
// controlling tty, unreadable /proc entry) never blocks session start.
package probe

import (
	"fmt"
	"os"
)

// Attrs gathers what it can into a session attribute map; failures are
// silently omitted rather than propagated, matching the spec's "thin
// adapter, no non-trivial engineering" framing for this component.
func Attrs(shell string) map[string]string {
	attrs := map[string]string{"shell": shell}

	attrs["pid"] = fmt.Sprintf("%d", os.Getpid())

	if tty, err := ttyName(); err == nil && tty != "" {
		attrs["tty"] = tty
	}
	if cwd, err := os.Getwd(); err == nil {
		attrs["cwd"] = cwd
	}
	if host, err := os.Hostname(); err == nil {
		attrs["hostname"] = host
	}

	return attrs
}
