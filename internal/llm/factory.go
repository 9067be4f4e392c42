package llm

import (
	"fmt"
	"os"
	"time"

	"github.com/omnish-dev/omnish/internal/config"
)

// NewProvider constructs the configured backend. Unknown backends are a
// configuration error and should abort daemon startup.
func NewProvider(cfg config.LLMConfig) (Provider, error) {
	switch cfg.Backend {
	case "", "dummy":
		return NewDummyProvider(300 * time.Millisecond), nil
	case "anthropic":
		key := cfg.APIKey
		if key == "" {
			key = os.Getenv("ANTHROPIC_API_KEY")
		}
		if key == "" {
			return nil, fmt.Errorf("llm: anthropic backend requires an api key")
		}
		return NewAnthropicProvider(key, cfg.Model), nil
	case "openai_compat":
		key := cfg.APIKey
		if key == "" {
			key = os.Getenv("OPENAI_API_KEY")
		}
		return NewOpenAICompatProvider(cfg.BaseURL, key, cfg.Model), nil
	default:
		return nil, fmt.Errorf("llm: unknown backend %q", cfg.Backend)
	}
}

// NewTestProvider returns a low-latency dummy backend for unit tests.
func NewTestProvider() Provider {
	return NewDummyProvider(time.Millisecond)
}
