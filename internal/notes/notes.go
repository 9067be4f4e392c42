// Package notes generates the daemon's periodic markdown artifacts: an
// hourly summary of recent commands and a daily digest with an optional
// LLM-written recap. Both are thin file writers driven by cron.Runner; all
// the interesting reconstruction work happens upstream in internal/session
// and internal/tracker.
package notes

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/omnish-dev/omnish/internal/llm"
	"github.com/omnish-dev/omnish/internal/logger"
	"github.com/omnish-dev/omnish/internal/model"
	"github.com/omnish-dev/omnish/internal/session"
)

// Generator writes hourly and daily note files under dir, drawing recent
// commands from mgr and, if provider is non-nil, an LLM recap.
type Generator struct {
	mgr      *session.Manager
	provider llm.Provider
	dir      string
	now      func() time.Time
}

func New(mgr *session.Manager, provider llm.Provider, dir string) *Generator {
	return &Generator{mgr: mgr, provider: provider, dir: dir, now: time.Now}
}

// HourlySummary writes {dir}/summaries/{YYYY-MM-DD-HH}.md from the last
// hour's commands. No file is written if nothing ran.
func (g *Generator) HourlySummary(ctx context.Context) error {
	now := g.now()
	commands := g.mgr.CollectRecentCommands(now.Add(-time.Hour))
	if len(commands) == 0 {
		logger.Info("notes: hourly summary skipped, no commands in the last hour")
		return nil
	}

	summariesDir := filepath.Join(g.dir, "summaries")
	if err := os.MkdirAll(summariesDir, 0755); err != nil {
		return fmt.Errorf("notes: mkdir summaries: %w", err)
	}

	var md strings.Builder
	fmt.Fprintf(&md, "# Hourly summary: %s\n\n", now.Format("2006-01-02 15:00"))
	writeCommandTable(&md, commands)

	path := filepath.Join(summariesDir, now.Format("2006-01-02-15")+".md")
	if err := os.WriteFile(path, []byte(md.String()), 0644); err != nil {
		return fmt.Errorf("notes: write hourly summary: %w", err)
	}
	logger.Info("notes: wrote hourly summary", "path", path)
	return nil
}

// DailyNote writes {dir}/{YYYY-MM-DD}.md from the last 24 hours of
// commands, appending an LLM recap when a provider is configured.
func (g *Generator) DailyNote(ctx context.Context) error {
	now := g.now()
	commands := g.mgr.CollectRecentCommands(now.Add(-24 * time.Hour))
	if len(commands) == 0 {
		logger.Info("notes: daily note skipped, no commands in the last 24h")
		return nil
	}

	var md strings.Builder
	fmt.Fprintf(&md, "# Daily note: %s\n\n## Commands\n\n", now.Format("2006-01-02"))
	writeCommandTable(&md, commands)

	if g.provider != nil {
		recap, err := g.provider.Chat(ctx, "Summarize today's shell activity in two or three short paragraphs.", md.String())
		if err != nil {
			logger.Warn("notes: daily recap failed, writing without it", "error", err)
		} else {
			md.WriteString("\n## Summary\n\n")
			md.WriteString(recap)
			md.WriteString("\n")
		}
	}

	if err := os.MkdirAll(g.dir, 0755); err != nil {
		return fmt.Errorf("notes: mkdir: %w", err)
	}
	path := filepath.Join(g.dir, now.Format("2006-01-02")+".md")
	if err := os.WriteFile(path, []byte(md.String()), 0644); err != nil {
		return fmt.Errorf("notes: write daily note: %w", err)
	}
	logger.Info("notes: wrote daily note", "path", path)
	return nil
}

func writeCommandTable(md *strings.Builder, commands []model.CommandRecord) {
	md.WriteString("| Time | Directory | Command |\n")
	md.WriteString("|------|-----------|---------|\n")

	sort.Slice(commands, func(i, j int) bool { return commands[i].StartedAt.Before(commands[j].StartedAt) })
	for _, cmd := range commands {
		line := cmd.CommandLine
		if line == "" {
			line = "?"
		}
		line = strings.ReplaceAll(line, "|", "\\|")
		cwd := cmd.CWD
		if cwd == "" {
			cwd = "?"
		}
		fmt.Fprintf(md, "| %s | %s | %s |\n", cmd.StartedAt.Local().Format("15:04"), cwd, line)
	}
}
