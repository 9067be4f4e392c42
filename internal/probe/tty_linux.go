//go:build linux

package probe

import (
	"fmt"
	"os"
	"strings"
)

// ttyName resolves the controlling terminal via /proc/self/fd/0, falling
// back to the empty string if stdin is not a tty (piped input, tests).
func ttyName() (string, error) {
	link, err := os.Readlink("/proc/self/fd/0")
	if err != nil {
		return "", fmt.Errorf("probe: readlink stdin: %w", err)
	}
	if !strings.HasPrefix(link, "/dev/pts/") && !strings.HasPrefix(link, "/dev/tty") {
		return "", nil
	}
	return link, nil
}
