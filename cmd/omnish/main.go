// Command omnish is the client: it spawns the user's shell under a PTY,
// mirrors every byte crossing it to the omnishd daemon over a Unix socket,
// and renders the daemon's two pieces of injected UI (ghost-text
// completions and chat-prefix answers) back onto the real terminal.
// Losing the daemon connection never blocks the shell — the proxy keeps
// running in plain passthrough.
package main

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/omnish-dev/omnish/internal/completion"
	"github.com/omnish-dev/omnish/internal/config"
	"github.com/omnish-dev/omnish/internal/display"
	"github.com/omnish-dev/omnish/internal/interceptor"
	"github.com/omnish-dev/omnish/internal/logger"
	"github.com/omnish-dev/omnish/internal/model"
	"github.com/omnish-dev/omnish/internal/osc133"
	"github.com/omnish-dev/omnish/internal/probe"
	"github.com/omnish-dev/omnish/internal/ptyproxy"
	"github.com/omnish-dev/omnish/internal/shellhook"
	"github.com/omnish-dev/omnish/internal/shellinput"
	"github.com/omnish-dev/omnish/internal/throttle"
	"github.com/omnish-dev/omnish/internal/transport"
)

func main() {
	root := &cobra.Command{
		Use:   "omnish",
		Short: "shell session wrapper with daemon-assisted completion and chat",
		RunE:  run,
	}
	root.Flags().String("shell", "", "shell to spawn (default $SHELL)")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "omnish:", err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadClientConfig()
	if err != nil {
		return fmt.Errorf("load client config: %w", err)
	}

	dataDir, err := config.DataDir()
	if err != nil {
		return fmt.Errorf("resolve data dir: %w", err)
	}
	if err := config.EnsureDir(dataDir); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	// logger.Init always tees to stdout, which is the wrong target once the
	// real terminal is in raw PTY-proxy mode: interleaved log lines would
	// corrupt the shell's own output. The client logs to a file only.
	if err := initFileOnlyLogger(filepath.Join(dataDir, "client.log")); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	shell, _ := cmd.Flags().GetString("shell")
	if shell == "" {
		shell = os.Getenv("SHELL")
	}
	if shell == "" {
		shell = "/bin/bash"
	}

	sessionID := uuid.NewString()
	attrs := probe.Attrs(shell)

	envAdds := map[string]string{}
	if hookPath, err := shellhook.Install(dataDir, shell); err != nil {
		logger.Warn("omnish: shell hook install failed", "error", err)
	} else if hookPath != "" {
		envAdds["BASH_ENV"] = hookPath
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := newApp(cfg, sessionID, attrs)

	onReconnect := func(ctx context.Context, c *transport.Client) error {
		_, err := c.Call(ctx, model.KindSessionStart, model.SessionStart{
			SessionID:   sessionID,
			TimestampMs: time.Now().UnixMilli(),
			Attrs:       attrs,
			AuthToken:   cfg.AuthToken,
		})
		return err
	}

	var tlsConfig = clientTLSConfig(cfg)
	client := transport.NewClient(cfg.Socket, tlsConfig, onReconnect)
	a.client = client

	go func() {
		if err := client.Run(ctx); err != nil && ctx.Err() == nil {
			logger.Warn("omnish: transport client stopped", "error", err)
		}
	}()

	proxy, err := ptyproxy.Spawn(ctx, ptyproxy.Options{
		Shell:   shell,
		EnvAdds: envAdds,
		Sink:    a,
	})
	if err != nil {
		return fmt.Errorf("spawn shell: %w", err)
	}
	a.proxy = proxy
	defer proxy.Close()

	runErr := proxy.Run(ctx, a.handleInput)

	_, _ = client.Call(context.Background(), model.KindSessionEnd, model.SessionEnd{
		SessionID:   sessionID,
		TimestampMs: time.Now().UnixMilli(),
		ExitCode:    intPtr(proxy.ExitCode()),
	})
	client.Close()

	if runErr != nil && ctx.Err() == nil {
		return fmt.Errorf("proxy: %w", runErr)
	}
	return nil
}

func intPtr(n int) *int { return &n }

// initFileOnlyLogger sets up logger.Log to write only to path, never to
// stdout/stderr, since the client's real stdout belongs to the proxied
// shell once the terminal is raw.
func initFileOnlyLogger(path string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return err
	}
	handler := slog.NewTextHandler(f, &slog.HandlerOptions{Level: slog.LevelInfo})
	logger.Log = slog.New(handler)
	slog.SetDefault(logger.Log)
	return nil
}

// clientTLSConfig builds the dial-side TLS config from client.yaml's tls
// block, or returns nil (plain socket) when TLS is disabled. A CAFile lets
// the client trust the daemon's self-signed cert without disabling
// verification.
func clientTLSConfig(cfg *config.ClientConfig) *tls.Config {
	if !cfg.TLS.Enabled {
		return nil
	}
	tlsCfg := &tls.Config{ServerName: cfg.TLS.ServerName}
	if cfg.TLS.CAFile != "" {
		pem, err := os.ReadFile(cfg.TLS.CAFile)
		if err != nil {
			logger.Warn("omnish: read ca_file failed, falling back to system roots", "error", err)
			return tlsCfg
		}
		pool := x509.NewCertPool()
		if pool.AppendCertsFromPEM(pem) {
			tlsCfg.RootCAs = pool
		}
	}
	return tlsCfg
}

// app wires the interceptor/tracker/completer pipeline to the transport
// client and renders ghost text / chat answers back onto the real
// terminal. A single mutex serializes access to the terminal-visible
// state (ghostDrawn, the completer, the shellinput tracker) between the
// PTY output goroutine and the asynchronous completion-response handler.
type app struct {
	sessionID string
	cfg       *config.ClientConfig
	client    *transport.Client
	proxy     *ptyproxy.Proxy

	throttle      *throttle.Throttle
	osc           *osc133.Detector
	shellIn       *shellinput.Tracker
	completer     *completion.Completer
	interceptor   *interceptor.Interceptor

	mu        sync.Mutex
	chatting  bool
	ghostDrawn int
}

func newApp(cfg *config.ClientConfig, sessionID string, attrs map[string]string) *app {
	idleMs := cfg.IdleGuardMs
	if idleMs <= 0 {
		idleMs = 150
	}
	prefix := cfg.ChatPrefix
	if prefix == "" {
		prefix = "::"
	}
	return &app{
		sessionID:   sessionID,
		cfg:         cfg,
		throttle:    throttle.New(),
		osc:         osc133.New(),
		shellIn:     shellinput.New(),
		completer:   completion.New(),
		interceptor: interceptor.New([]byte(prefix), interceptor.NewIdleGuard(idleMs)),
	}
}

// Observe implements ptyproxy.Sink. It mirrors every byte to the daemon
// (subject to the throttle on output) and, for output, scans for OSC 133
// boundaries to keep the shellinput tracker's prompt state in sync and
// redraws the ghost-text overlay after the shell's own output settles.
func (a *app) Observe(dir model.Direction, data []byte) {
	a.sendIoData(dir, data)

	if dir != model.DirOutput {
		return
	}

	events := a.osc.Scan(data)

	a.mu.Lock()
	defer a.mu.Unlock()
	for _, ev := range events {
		switch ev.Kind {
		case osc133.PromptStart, osc133.CommandEnd:
			a.shellIn.EnterPrompt()
			a.throttle.Reset()
		case osc133.CommandStart:
			a.shellIn.LeavePrompt()
		}
	}
	if a.shellIn.TakeChange() {
		a.redrawGhostLocked()
	}
}

func (a *app) sendIoData(dir model.Direction, data []byte) {
	if dir == model.DirOutput {
		if !a.throttle.Allow(len(data)) {
			return
		}
		a.throttle.RecordSent(len(data))
	}
	if a.client == nil || !a.client.Connected() {
		return
	}
	payload := model.IoData{
		SessionID:   a.sessionID,
		Direction:   dir,
		TimestampMs: time.Now().UnixMilli(),
		Data:        append([]byte(nil), data...),
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if _, err := a.client.Call(ctx, model.KindIoData, payload); err != nil {
			logger.Debug("omnish: io_data send failed", "error", err)
		}
	}()
}

// handleInput is the ptyproxy.InputFn: it runs every stdin read through
// the interceptor and, outside chat mode, mirrors accepted bytes into the
// shellinput tracker and the ghost-text completion pipeline. Tab accepts a
// pending ghost suggestion by forwarding the suggested suffix to the shell
// in place of the literal tab byte.
func (a *app) handleInput(raw []byte) []byte {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.chatting && len(raw) == 1 && raw[0] == 0x09 && a.shellIn.AtPrompt() {
		if ghost := a.completer.Accept(); ghost != "" {
			a.shellIn.Inject(ghost)
			a.completer.OnInputChange(a.shellIn.Input())
			a.redrawGhostLocked()
			return []byte(ghost)
		}
	}

	var forward []byte
	var chatMsg string
	chatTriggered := false

	for _, b := range raw {
		action := a.interceptor.Feed(b)
		fb, msg, triggered := a.applyActionLocked(action)
		forward = append(forward, fb...)
		if triggered {
			chatMsg, chatTriggered = msg, true
		}
	}
	if fin := a.interceptor.FinishBatch(); fin != nil {
		fb, msg, triggered := a.applyActionLocked(*fin)
		forward = append(forward, fb...)
		if triggered {
			chatMsg, chatTriggered = msg, true
		}
	}

	if !a.chatting {
		if a.shellIn.TakeChange() {
			a.completer.OnInputChange(a.shellIn.Input())
			a.maybeRequestCompletionLocked()
		}
	}

	if chatTriggered {
		go a.sendChatQuery(chatMsg)
	}

	return forward
}

// applyActionLocked applies one interceptor action. Must be called with
// a.mu held. The third return value reports whether a chat query should be
// dispatched (deferred to the caller so the network call never happens
// under a.mu).
func (a *app) applyActionLocked(action interceptor.Action) (forward []byte, chatMsg string, triggerChat bool) {
	switch action.Kind {
	case interceptor.ActionForward:
		a.chatting = false
		for _, b := range action.Data {
			a.shellIn.Feed(b)
		}
		return action.Data, "", false
	case interceptor.ActionBuffering, interceptor.ActionBackspace, interceptor.ActionTab:
		a.chatting = true
		return nil, "", false
	case interceptor.ActionChat:
		a.chatting = false
		return nil, string(action.Data), true
	case interceptor.ActionCancel:
		a.chatting = false
		return nil, "", false
	default: // ActionPending
		return nil, "", false
	}
}

func (a *app) sendChatQuery(query string) {
	if a.client == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	frame, err := a.client.Call(ctx, model.KindRequest, model.Request{
		RequestID: uuid.NewString(),
		SessionID: a.sessionID,
		Query:     query,
		Scope:     model.RequestScope{Kind: model.ScopeCurrent},
	})
	if err != nil {
		a.writeLine(display.ChatError(fmt.Sprintf("[omnish] %v", err)))
		return
	}
	var resp model.Response
	if err := frame.Decode(&resp); err != nil {
		a.writeLine(display.ChatError(fmt.Sprintf("[omnish] bad response: %v", err)))
		return
	}
	a.writeLine(display.ChatResponse(resp.Content))
}

func (a *app) writeLine(s string) {
	if a.proxy == nil {
		return
	}
	a.proxy.WriteStdout([]byte("\r\n" + s + "\r\n"))
}

// maybeRequestCompletionLocked issues a completion request if the
// completer's gating logic allows one right now. Must be called with a.mu
// held.
func (a *app) maybeRequestCompletionLocked() {
	if !a.shellIn.AtPrompt() || a.client == nil {
		return
	}
	input := a.shellIn.Input()
	seq, ok := a.completer.ShouldRequest(a.shellIn.Seq(), input)
	if !ok {
		return
	}
	go a.sendCompletionRequest(seq, input)
}

func (a *app) sendCompletionRequest(seq uint64, input string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	frame, err := a.client.Call(ctx, model.KindCompletionRequest, model.CompletionRequest{
		SessionID:  a.sessionID,
		Input:      input,
		CursorPos:  len(input),
		SequenceID: seq,
	})
	if err != nil {
		logger.Debug("omnish: completion request failed", "error", err)
		return
	}
	var resp model.CompletionResponse
	if err := frame.Decode(&resp); err != nil {
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.completer.OnResponse(resp.SequenceID, resp.Suggestions, a.shellIn.Input())
	a.redrawGhostLocked()
}

// redrawGhostLocked erases any previously painted ghost and paints the
// completer's current one, leaving the cursor where it was (right after
// the user's typed text) rather than past the suggestion. Must be called
// with a.mu held.
func (a *app) redrawGhostLocked() {
	if a.proxy == nil {
		return
	}
	var buf []byte
	if a.ghostDrawn > 0 {
		buf = append(buf, []byte(display.ClearGhost(a.ghostDrawn))...)
		a.ghostDrawn = 0
	}
	if a.shellIn.AtPrompt() {
		if ghost := a.completer.Ghost(); ghost != "" {
			n := len([]rune(ghost))
			buf = append(buf, []byte(display.Ghost(ghost))...)
			buf = append(buf, []byte(display.CursorBack(n))...)
			a.ghostDrawn = n
		}
	}
	if len(buf) > 0 {
		a.proxy.WriteStdout(buf)
	}
}
