// Package ptyproxy spawns the user's shell under a pseudo-terminal and
// forwards bytes between the controlling terminal and the shell, mirroring
// both directions to a sink (the interceptor/tracker pipeline and the
// transport client) while keeping the real terminal in raw mode.
package ptyproxy

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"os/signal"
	"sync"
	"syscall"

	"github.com/creack/pty"
	"golang.org/x/term"

	"github.com/omnish-dev/omnish/internal/logger"
	"github.com/omnish-dev/omnish/internal/model"
)

// Sink receives a copy of every byte that crosses the proxy in either
// direction, stamped with the direction it travelled.
type Sink interface {
	Observe(dir model.Direction, data []byte)
}

// Proxy owns one spawned shell and the forwarding loop that connects it to
// the real terminal.
type Proxy struct {
	cmd  *exec.Cmd
	ptmx *os.File

	stdinFd int
	oldState *term.State

	sink Sink

	winchCh chan os.Signal
	done    chan struct{}
	wg      sync.WaitGroup

	writeMu  sync.Mutex // serializes writes to ptmx from Resize and input forwarding
	stdoutMu sync.Mutex // serializes writes to the real terminal between copyOutput and WriteStdout
}

// Options configures Spawn.
type Options struct {
	Shell   string            // defaults to $SHELL or /bin/sh
	Args    []string
	Dir     string
	EnvAdds map[string]string // appended to the child's environment
	Sink    Sink
}

// Spawn opens a PTY, forks the configured shell onto it, and puts the
// controlling terminal (stdin) into raw mode. The returned Proxy must have
// Run called to pump I/O and Close called on teardown to restore the
// terminal.
func Spawn(ctx context.Context, opts Options) (*Proxy, error) {
	shell := opts.Shell
	if shell == "" {
		shell = os.Getenv("SHELL")
	}
	if shell == "" {
		shell = "/bin/sh"
	}

	cmd := exec.CommandContext(ctx, shell, opts.Args...)
	cmd.Dir = opts.Dir
	cmd.Env = os.Environ()
	for k, v := range opts.EnvAdds {
		cmd.Env = append(cmd.Env, k+"="+v)
	}
	// Let the shell die on SIGTERM before WaitDelay forces a SIGKILL.
	cmd.Cancel = func() error {
		return cmd.Process.Signal(syscall.SIGTERM)
	}

	stdinFd := int(os.Stdin.Fd())
	size := &pty.Winsize{Cols: 80, Rows: 24}
	if term.IsTerminal(stdinFd) {
		if w, h, err := term.GetSize(stdinFd); err == nil {
			size.Cols, size.Rows = uint16(w), uint16(h)
		}
	}

	ptmx, err := pty.StartWithSize(cmd, size)
	if err != nil {
		return nil, fmt.Errorf("ptyproxy: start pty: %w", err)
	}

	p := &Proxy{
		cmd:     cmd,
		ptmx:    ptmx,
		stdinFd: stdinFd,
		sink:    opts.Sink,
		winchCh: make(chan os.Signal, 1),
		done:    make(chan struct{}),
	}

	if term.IsTerminal(stdinFd) {
		if old, err := term.MakeRaw(stdinFd); err != nil {
			logger.Warn("ptyproxy: raw mode failed", "error", err)
		} else {
			p.oldState = old
		}
	}

	setProcTitle(shell)

	return p, nil
}

// InputFn is called with raw bytes read from stdin before they are written
// to the PTY master; it returns the bytes that should actually be
// forwarded to the shell (possibly fewer than were read, if the caller's
// interceptor consumed some for its own state machine).
type InputFn func(data []byte) []byte

// Run pumps stdin -> pty and pty -> stdout until the PTY hangs up or stdin
// reaches EOF. process is invoked for each stdin read (see InputFn) and may
// be nil to forward bytes verbatim. Run blocks until the shell exits or the
// forwarding loop ends; it does not itself restore the terminal — call
// Close for that.
func (p *Proxy) Run(ctx context.Context, process InputFn) error {
	signal.Notify(p.winchCh, syscall.SIGWINCH)
	defer signal.Stop(p.winchCh)

	p.wg.Add(1)
	go p.watchResize()

	outErrCh := make(chan error, 1)
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		outErrCh <- p.copyOutput()
	}()

	inErrCh := make(chan error, 1)
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		inErrCh <- p.copyInput(process)
	}()

	var runErr error
	select {
	case runErr = <-outErrCh:
	case runErr = <-inErrCh:
	case <-ctx.Done():
		runErr = ctx.Err()
	}

	close(p.done)
	p.ptmx.Close()
	p.wg.Wait()
	return runErr
}

// WriteStdout writes b to the real terminal, serialized against the
// shell's own output so a ghost-text overlay can never interleave mid-chunk
// with a burst of command output.
func (p *Proxy) WriteStdout(b []byte) error {
	p.stdoutMu.Lock()
	defer p.stdoutMu.Unlock()
	_, err := os.Stdout.Write(b)
	return err
}

func (p *Proxy) copyOutput() error {
	buf := make([]byte, 32*1024)
	for {
		n, err := p.ptmx.Read(buf)
		if n > 0 {
			chunk := append([]byte(nil), buf[:n]...)
			p.stdoutMu.Lock()
			os.Stdout.Write(chunk)
			p.stdoutMu.Unlock()
			if p.sink != nil {
				p.sink.Observe(model.DirOutput, chunk)
			}
		}
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return fmt.Errorf("ptyproxy: master read: %w", err)
		}
	}
}

func (p *Proxy) copyInput(process InputFn) error {
	buf := make([]byte, 4096)
	for {
		n, err := os.Stdin.Read(buf)
		if n > 0 {
			raw := append([]byte(nil), buf[:n]...)
			if p.sink != nil {
				p.sink.Observe(model.DirInput, raw)
			}
			toForward := raw
			if process != nil {
				toForward = process(raw)
			}
			if len(toForward) > 0 {
				p.writeMu.Lock()
				_, werr := p.ptmx.Write(toForward)
				p.writeMu.Unlock()
				if werr != nil {
					return fmt.Errorf("ptyproxy: master write: %w", werr)
				}
			}
		}
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return fmt.Errorf("ptyproxy: stdin read: %w", err)
		}
	}
}

func (p *Proxy) watchResize() {
	defer p.wg.Done()
	for {
		select {
		case <-p.winchCh:
			if !term.IsTerminal(p.stdinFd) {
				continue
			}
			w, h, err := term.GetSize(p.stdinFd)
			if err != nil {
				continue
			}
			p.writeMu.Lock()
			pty.Setsize(p.ptmx, &pty.Winsize{Cols: uint16(w), Rows: uint16(h)})
			p.writeMu.Unlock()
		case <-p.done:
			return
		}
	}
}

// ExitCode returns the shell's exit status (128+signal if it died from a
// signal), valid only after Run has returned.
func (p *Proxy) ExitCode() int {
	if p.cmd.ProcessState == nil {
		return -1
	}
	if ws, ok := p.cmd.ProcessState.Sys().(syscall.WaitStatus); ok {
		if ws.Signaled() {
			return 128 + int(ws.Signal())
		}
	}
	return p.cmd.ProcessState.ExitCode()
}

// Close restores the original terminal state. Safe to call multiple times
// and guaranteed-idempotent on every exit path, including signal-triggered
// teardown.
func (p *Proxy) Close() error {
	if p.oldState != nil {
		err := term.Restore(p.stdinFd, p.oldState)
		p.oldState = nil
		return err
	}
	return nil
}
