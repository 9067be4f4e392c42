// Command omnishd is the daemon: it accepts connections from one or more
// omnish clients, reconstructs command records from their mirrored I/O
// streams, answers chat and completion requests through a pluggable LLM
// backend, and writes periodic markdown notes on a cron schedule.
package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/omnish-dev/omnish/internal/authtoken"
	"github.com/omnish-dev/omnish/internal/config"
	"github.com/omnish-dev/omnish/internal/cron"
	"github.com/omnish-dev/omnish/internal/index"
	"github.com/omnish-dev/omnish/internal/llm"
	"github.com/omnish-dev/omnish/internal/logger"
	"github.com/omnish-dev/omnish/internal/model"
	"github.com/omnish-dev/omnish/internal/notes"
	"github.com/omnish-dev/omnish/internal/session"
	"github.com/omnish-dev/omnish/internal/tlscert"
	"github.com/omnish-dev/omnish/internal/transport"
)

func main() {
	root := &cobra.Command{
		Use:   "omnishd",
		Short: "omnish session daemon",
		RunE:  run,
	}
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "omnishd:", err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	// The daemon snapshots its configuration at startup; the watcher still
	// runs so an operator editing daemon.yaml gets a logged reload, but
	// picking up a changed listen address or LLM backend without a
	// restart isn't implemented.
	watcher, err := config.NewDaemonConfigWatcher()
	if err != nil {
		return fmt.Errorf("load daemon config: %w", err)
	}
	cfg := watcher.Current()

	dataDir := cfg.DataDir
	if dataDir == "" {
		dir, err := config.DataDir()
		if err != nil {
			return fmt.Errorf("resolve data dir: %w", err)
		}
		dataDir = dir
	}
	if err := config.EnsureDir(dataDir); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	if err := logger.Init("info", filepath.Join(dataDir, "omnishd.log")); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	if cfg.AuthToken == "" {
		token, err := authtoken.EnsureToken(dataDir)
		if err != nil {
			return fmt.Errorf("ensure auth token: %w", err)
		}
		cfg.AuthToken = token
	}

	mgr, err := session.New(filepath.Join(dataDir, "sessions"))
	if err != nil {
		return fmt.Errorf("open session manager: %w", err)
	}

	idx, err := index.Open(filepath.Join(dataDir, "index.db"))
	if err != nil {
		return fmt.Errorf("open command index: %w", err)
	}
	defer idx.Close()

	provider, err := llm.NewProvider(cfg.LLM)
	if err != nil {
		return fmt.Errorf("init llm provider: %w", err)
	}

	gen := notes.New(mgr, provider, dataDir)

	tlsConfig, err := daemonTLSConfig(cfg, dataDir)
	if err != nil {
		return fmt.Errorf("init tls: %w", err)
	}

	srv := transport.NewServer(cfg.Listen, tlsConfig)
	d := &daemon{cfg: cfg, mgr: mgr, idx: idx, provider: provider}
	d.registerHandlers(srv)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runner, err := buildCronRunner(cfg.Cron, gen)
	if err != nil {
		return fmt.Errorf("build cron schedule: %w", err)
	}

	go runner.Run(ctx)
	go func() {
		if err := watcher.Watch(ctx); err != nil && ctx.Err() == nil {
			logger.Warn("omnishd: config watcher stopped", "error", err)
		}
	}()

	logger.Info("omnishd: listening", "addr", cfg.Listen, "tls", tlsConfig != nil)
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe(ctx) }()

	select {
	case <-ctx.Done():
		logger.Info("omnishd: shutting down")
		return nil
	case err := <-errCh:
		if ctx.Err() != nil {
			return nil
		}
		return err
	}
}

func daemonTLSConfig(cfg *config.DaemonConfig, dataDir string) (*tls.Config, error) {
	if !cfg.TLS.Enabled {
		return nil, nil
	}
	if cfg.TLS.CertFile != "" && cfg.TLS.KeyFile != "" {
		cert, err := tls.LoadX509KeyPair(cfg.TLS.CertFile, cfg.TLS.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("load configured cert/key: %w", err)
		}
		return &tls.Config{Certificates: []tls.Certificate{cert}}, nil
	}
	cert, err := tlscert.EnsureSelfSigned(dataDir, "127.0.0.1")
	if err != nil {
		return nil, fmt.Errorf("ensure self-signed cert: %w", err)
	}
	return &tls.Config{Certificates: []tls.Certificate{cert}}, nil
}

func buildCronRunner(cc config.CronConfig, gen *notes.Generator) (*cron.Runner, error) {
	var jobs []cron.Job

	add := func(name, expr string, run func(ctx context.Context)) error {
		if expr == "" {
			return nil
		}
		sched, err := cron.Parse(expr)
		if err != nil {
			return fmt.Errorf("parse %s schedule %q: %w", name, expr, err)
		}
		jobs = append(jobs, cron.Job{Name: name, Schedule: sched, Run: run})
		return nil
	}

	if err := add("hourly_summary", cc.HourlySummary, func(ctx context.Context) {
		if err := gen.HourlySummary(ctx); err != nil {
			logger.Warn("cron: hourly summary failed", "error", err)
		}
	}); err != nil {
		return nil, err
	}
	if err := add("daily_note", cc.DailyNote, func(ctx context.Context) {
		if err := gen.DailyNote(ctx); err != nil {
			logger.Warn("cron: daily note failed", "error", err)
		}
	}); err != nil {
		return nil, err
	}
	if err := add("eviction", cc.Eviction, func(ctx context.Context) {
		// Logs a tick only: no session is evicted and no state is pruned
		// here.
		logger.Debug("cron: eviction tick")
	}); err != nil {
		return nil, err
	}
	if err := add("cleanup", cc.Cleanup, func(ctx context.Context) {
		logger.Debug("cron: cleanup tick")
	}); err != nil {
		return nil, err
	}

	return cron.NewRunner(jobs, 60*time.Second), nil
}

type daemon struct {
	cfg      *config.DaemonConfig
	mgr      *session.Manager
	idx      *index.Index
	provider llm.Provider
}

func (d *daemon) registerHandlers(srv *transport.Server) {
	srv.Handle(model.KindSessionStart, d.handleSessionStart)
	srv.Handle(model.KindSessionEnd, d.handleSessionEnd)
	srv.Handle(model.KindIoData, d.handleIoData)
	srv.Handle(model.KindRequest, d.handleRequest)
	srv.Handle(model.KindCompletionRequest, d.handleCompletionRequest)
}

func (d *daemon) handleSessionStart(ctx context.Context, frame *transport.Frame) (model.Kind, any, error) {
	var ss model.SessionStart
	if err := frame.Decode(&ss); err != nil {
		return "", nil, fmt.Errorf("decode session_start: %w", err)
	}
	if !authtoken.Verify(d.cfg.AuthToken, ss.AuthToken) {
		return "", nil, fmt.Errorf("session_start: invalid auth token")
	}
	if err := d.mgr.Register(ss.SessionID, ss.ParentSessionID, ss.Attrs); err != nil {
		return "", nil, err
	}
	return model.KindAck, model.Ack{}, nil
}

func (d *daemon) handleSessionEnd(ctx context.Context, frame *transport.Frame) (model.Kind, any, error) {
	var se model.SessionEnd
	if err := frame.Decode(&se); err != nil {
		return "", nil, fmt.Errorf("decode session_end: %w", err)
	}
	if err := d.mgr.EndSession(se.SessionID); err != nil {
		return "", nil, err
	}
	return model.KindAck, model.Ack{}, nil
}

func (d *daemon) handleIoData(ctx context.Context, frame *transport.Frame) (model.Kind, any, error) {
	var io model.IoData
	if err := frame.Decode(&io); err != nil {
		return "", nil, fmt.Errorf("decode io_data: %w", err)
	}
	sealed, err := d.mgr.WriteIO(io.SessionID, io.TimestampMs, io.Direction, io.Data)
	if err != nil {
		return "", nil, err
	}
	for _, rec := range sealed {
		if err := d.idx.Upsert(rec); err != nil {
			logger.Warn("omnishd: index upsert failed", "id", rec.ID, "error", err)
		}
	}
	return model.KindAck, model.Ack{}, nil
}

func (d *daemon) handleRequest(ctx context.Context, frame *transport.Frame) (model.Kind, any, error) {
	var req model.Request
	if err := frame.Decode(&req); err != nil {
		return "", nil, fmt.Errorf("decode request: %w", err)
	}

	budget := d.cfg.ContextBudget
	if budget <= 0 {
		budget = 16000
	}

	var sessionContext string
	switch req.Scope.Kind {
	case model.ScopeAll:
		sessionContext = d.mgr.BuildAllSessionsContext(budget)
	default:
		text, err := d.mgr.BuildSessionContext(req.SessionID, 0, 0, budget)
		if err != nil {
			sessionContext = d.mgr.BuildAllSessionsContext(budget)
		} else {
			sessionContext = text
		}
	}

	answer, err := d.provider.Chat(ctx, req.Query, sessionContext)
	if err != nil {
		return "", nil, fmt.Errorf("llm chat: %w", err)
	}
	return model.KindResponse, model.Response{RequestID: req.RequestID, Content: answer, IsFinal: true}, nil
}

func (d *daemon) handleCompletionRequest(ctx context.Context, frame *transport.Frame) (model.Kind, any, error) {
	var req model.CompletionRequest
	if err := frame.Decode(&req); err != nil {
		return "", nil, fmt.Errorf("decode completion_request: %w", err)
	}

	budget := d.cfg.ContextBudget
	if budget <= 0 {
		budget = 16000
	}
	sessionContext, err := d.mgr.BuildSessionContext(req.SessionID, 0, 0, budget)
	if err != nil {
		sessionContext = ""
	}

	suggestions, err := d.provider.Complete(ctx, req.Input, sessionContext)
	if err != nil {
		return "", nil, fmt.Errorf("llm complete: %w", err)
	}
	return model.KindCompletionResponse, model.CompletionResponse{SequenceID: req.SequenceID, Suggestions: suggestions}, nil
}
