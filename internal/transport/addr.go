package transport

import "strings"

// Network reports the dial/listen network for addr: "unix" for a filesystem
// path (absolute, or dot-prefixed, or with no ":"), "tcp" otherwise.
func Network(addr string) string {
	if strings.HasPrefix(addr, "/") || strings.HasPrefix(addr, ".") {
		return "unix"
	}
	if !strings.Contains(addr, ":") {
		return "unix"
	}
	return "tcp"
}
