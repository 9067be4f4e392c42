//go:build !linux

package ptyproxy

// setProcTitle is a no-op outside Linux; the /proc/self/stat argv-area
// trick it relies on has no portable equivalent.
func setProcTitle(title string) {}
