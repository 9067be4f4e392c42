// Package llm provides thin adapters to LLM backends: a chat-style query
// used for the `::`-prefixed chat feature and periodic summaries, and a
// completion call used for ghost-text suggestions. Neither adapter contains
// prompt-construction or agent logic; that lives in the daemon code that
// calls them.
package llm

import (
	"context"

	"github.com/omnish-dev/omnish/internal/model"
)

// Provider is the capability set a daemon LLM backend must offer.
type Provider interface {
	// Chat answers a single query given a block of session context text.
	Chat(ctx context.Context, query, sessionContext string) (string, error)

	// Complete proposes ghost-text completions for a shell input prefix,
	// given recent session context.
	Complete(ctx context.Context, input, sessionContext string) ([]model.Suggestion, error)
}

// ChatMessage is the role/content pair sent to chat-completion style APIs.
type ChatMessage struct {
	Role    string
	Content string
}

func buildChatPrompt(query, sessionContext string) []ChatMessage {
	var msgs []ChatMessage
	if sessionContext != "" {
		msgs = append(msgs, ChatMessage{
			Role:    "system",
			Content: "You are an assistant embedded in a user's shell session. Recent session context follows:\n\n" + sessionContext,
		})
	}
	msgs = append(msgs, ChatMessage{Role: "user", Content: query})
	return msgs
}

func buildCompletionPrompt(input, sessionContext string) []ChatMessage {
	var msgs []ChatMessage
	msgs = append(msgs, ChatMessage{
		Role: "system",
		Content: "You complete shell commands. Given recent terminal context and the user's " +
			"in-progress input, respond with only the completed command line, nothing else.\n\n" + sessionContext,
	})
	msgs = append(msgs, ChatMessage{Role: "user", Content: input})
	return msgs
}
