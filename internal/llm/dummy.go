package llm

import (
	"context"
	"strings"
	"time"

	"github.com/omnish-dev/omnish/internal/model"
)

// DummyProvider answers without calling out to any network, for tests and
// for running the daemon with no configured backend.
type DummyProvider struct {
	delay time.Duration
}

func NewDummyProvider(delay time.Duration) *DummyProvider {
	return &DummyProvider{delay: delay}
}

func (d *DummyProvider) Chat(ctx context.Context, query, sessionContext string) (string, error) {
	if d.delay > 0 {
		select {
		case <-time.After(d.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	q := strings.TrimSpace(strings.ToLower(query))
	switch {
	case q == "":
		return "Ask me something about this session.", nil
	case strings.Contains(q, "help"):
		return "I can answer questions about recent commands in this shell session.", nil
	case sessionContext == "":
		return "No session context is available yet.", nil
	default:
		return "Based on recent session output: " + firstLine(sessionContext), nil
	}
}

func (d *DummyProvider) Complete(ctx context.Context, input, sessionContext string) ([]model.Suggestion, error) {
	if d.delay > 0 {
		select {
		case <-time.After(d.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	switch {
	case input == "":
		return nil, nil
	case strings.HasPrefix("git status", input):
		return []model.Suggestion{{Text: "git status", Confidence: 0.6}}, nil
	case strings.HasPrefix("cargo run", input):
		return []model.Suggestion{{Text: "cargo run", Confidence: 0.6}}, nil
	case strings.HasPrefix("docker compose up -d", input):
		return []model.Suggestion{{Text: "docker compose up -d", Confidence: 0.5}}, nil
	default:
		return []model.Suggestion{{Text: input, Confidence: 0.1}}, nil
	}
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
