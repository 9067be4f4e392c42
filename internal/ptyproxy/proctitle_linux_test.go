//go:build linux

package ptyproxy

import "testing"

func TestParseArgArea(t *testing.T) {
	ptr, cap := parseArgArea()
	if ptr == nil || cap <= 0 {
		t.Skip("argv area not available in this sandbox")
	}
}

func TestSetProcTitleNoPanic(t *testing.T) {
	// Exercises the truncation path regardless of whether the argv area
	// was locatable in this environment.
	setProcTitle("omnish: exercising a very long title that may exceed argv capacity by a wide margin")
}
