//go:build linux

package ptyproxy

import (
	"os"
	"strconv"
	"strings"
	"sync"
	"unsafe"

	"golang.org/x/sys/unix"
)

// argArea is the argv/environ memory region the kernel exposes via
// /proc/self/stat fields arg_start/arg_end (48/49, 1-indexed). Overwriting
// it is how `ps`/tmux's /proc/<pid>/cmdline read picks up a new title.
var (
	argAreaOnce sync.Once
	argPtr      unsafe.Pointer
	argCap      int
)

func parseArgArea() (unsafe.Pointer, int) {
	data, err := os.ReadFile("/proc/self/stat")
	if err != nil {
		return nil, 0
	}
	stat := string(data)
	closeParen := strings.LastIndexByte(stat, ')')
	if closeParen < 0 || closeParen+2 > len(stat) {
		return nil, 0
	}
	fields := strings.Fields(stat[closeParen+2:])
	// state is field 3; arg_start is field 48, arg_end is field 49 — index
	// 48-3=45 and 49-3=46 into the fields slice split after ")".
	if len(fields) <= 46 {
		return nil, 0
	}
	argStart, err := strconv.ParseUint(fields[45], 10, 64)
	if err != nil {
		return nil, 0
	}
	argEnd, err := strconv.ParseUint(fields[46], 10, 64)
	if err != nil || argEnd <= argStart {
		return nil, 0
	}
	return unsafe.Pointer(uintptr(argStart)), int(argEnd - argStart)
}

// setProcTitle overwrites the process's argv memory so tools that read
// /proc/<pid>/cmdline (tmux, ps) show title instead of the binary name.
// Best-effort: failures to locate the argv region are silent.
func setProcTitle(title string) {
	argAreaOnce.Do(func() {
		argPtr, argCap = parseArgArea()
	})
	if argPtr == nil || argCap == 0 {
		return
	}
	b := []byte(title)
	n := len(b)
	if n > argCap-1 {
		n = argCap - 1
	}
	dst := unsafe.Slice((*byte)(argPtr), argCap)
	copy(dst, b[:n])
	for i := n; i < argCap; i++ {
		dst[i] = 0
	}

	// /proc/self/comm (what `ps -o comm=` and htop's default column show)
	// is a separate 16-byte kernel field from argv; PR_SET_NAME updates it
	// so both views agree on the title.
	short := title
	if len(short) > 15 {
		short = short[:15]
	}
	_ = unix.Prctl(unix.PR_SET_NAME, uintptr(unsafe.Pointer(namePtr(short))), 0, 0, 0)
}

func namePtr(s string) *byte {
	b := append([]byte(s), 0)
	return &b[0]
}
