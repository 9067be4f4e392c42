package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// ClientConfig is the client's client.yaml.
type ClientConfig struct {
	Socket      string        `yaml:"socket,omitempty"`      // defaults to DefaultSocketPath()
	ChatPrefix  string        `yaml:"chat_prefix,omitempty"` // defaults to "::"
	IdleGuardMs int           `yaml:"idle_guard_ms,omitempty"`
	AuthToken   string        `yaml:"auth_token,omitempty"` // overridden by $OMNISH_AUTH_TOKEN when set
	TLS         TLSClient     `yaml:"tls,omitempty"`
	Prompts     PromptRegexes `yaml:"prompt_regexes,omitempty"`
}

// TLSClient configures the client's TLS dial behavior.
type TLSClient struct {
	Enabled    bool   `yaml:"enabled,omitempty"`
	ServerName string `yaml:"server_name,omitempty"`
	CAFile     string `yaml:"ca_file,omitempty"`
}

// PromptRegexes supports either a single string or a list in YAML, so a
// client.yaml written by hand doesn't have to remember it's a list.
type PromptRegexes []string

func (p *PromptRegexes) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		var s string
		if err := value.Decode(&s); err != nil {
			return err
		}
		*p = PromptRegexes{s}
		return nil
	case yaml.SequenceNode:
		var list []string
		if err := value.Decode(&list); err != nil {
			return err
		}
		*p = PromptRegexes(list)
		return nil
	default:
		return fmt.Errorf("config: prompt_regexes: unsupported YAML node kind %d", value.Kind)
	}
}

func defaultClientConfig() ClientConfig {
	return ClientConfig{
		Socket:      DefaultSocketPath(),
		ChatPrefix:  "::",
		IdleGuardMs: 150,
		Prompts:     PromptRegexes{`[$#%❯]\s*$`},
	}
}

// LoadClientConfig reads client.yaml (or the file named by
// OMNISH_CLIENT_CONFIG), applying defaults for anything unset, then the
// OMNISH_SOCKET / OMNISH_AUTH_TOKEN environment overrides.
func LoadClientConfig() (*ClientConfig, error) {
	cfg := defaultClientConfig()

	path, err := clientConfigPath()
	if err != nil {
		return nil, err
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("config: read client config %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("config: parse client config %s: %w", path, err)
		}
	}

	if sock := os.Getenv("OMNISH_SOCKET"); sock != "" {
		cfg.Socket = sock
	}
	if tok := os.Getenv("OMNISH_AUTH_TOKEN"); tok != "" {
		cfg.AuthToken = tok
	}

	return &cfg, nil
}

func clientConfigPath() (string, error) {
	if p := os.Getenv("OMNISH_CLIENT_CONFIG"); p != "" {
		return p, nil
	}
	dir, err := UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "client.yaml"), nil
}
