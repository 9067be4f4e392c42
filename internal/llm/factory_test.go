package llm

import (
	"testing"

	"github.com/omnish-dev/omnish/internal/config"
)

func TestNewProviderDefaultsToDummy(t *testing.T) {
	p, err := NewProvider(config.LLMConfig{})
	if err != nil {
		t.Fatalf("NewProvider: %v", err)
	}
	if _, ok := p.(*DummyProvider); !ok {
		t.Fatalf("expected *DummyProvider, got %T", p)
	}
}

func TestNewProviderAnthropicRequiresKey(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")
	if _, err := NewProvider(config.LLMConfig{Backend: "anthropic"}); err == nil {
		t.Fatal("expected error when no anthropic api key is available")
	}
}

func TestNewProviderAnthropicFallsBackToEnv(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "sk-test")
	p, err := NewProvider(config.LLMConfig{Backend: "anthropic"})
	if err != nil {
		t.Fatalf("NewProvider: %v", err)
	}
	if _, ok := p.(*AnthropicProvider); !ok {
		t.Fatalf("expected *AnthropicProvider, got %T", p)
	}
}

func TestNewProviderOpenAICompat(t *testing.T) {
	p, err := NewProvider(config.LLMConfig{Backend: "openai_compat", BaseURL: "http://localhost:11434/v1"})
	if err != nil {
		t.Fatalf("NewProvider: %v", err)
	}
	if _, ok := p.(*OpenAICompatProvider); !ok {
		t.Fatalf("expected *OpenAICompatProvider, got %T", p)
	}
}

func TestNewProviderUnknownBackend(t *testing.T) {
	if _, err := NewProvider(config.LLMConfig{Backend: "bogus"}); err == nil {
		t.Fatal("expected error for unknown backend")
	}
}
