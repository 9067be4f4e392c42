package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/omnish-dev/omnish/internal/logger"
)

// DaemonConfig is the daemon's daemon.yaml.
type DaemonConfig struct {
	Listen        string        `yaml:"listen,omitempty"` // Unix path or host:port
	DataDir       string        `yaml:"data_dir,omitempty"`
	AuthToken     string        `yaml:"auth_token,omitempty"`
	TLS           TLSServer     `yaml:"tls,omitempty"`
	LLM           LLMConfig     `yaml:"llm,omitempty"`
	Cron          CronConfig    `yaml:"cron,omitempty"`
	ContextBudget int           `yaml:"context_budget_chars,omitempty"`
}

// TLSServer configures the daemon's optional TLS listener.
type TLSServer struct {
	Enabled  bool   `yaml:"enabled,omitempty"`
	CertFile string `yaml:"cert_file,omitempty"` // empty: self-signed, generated and cached
	KeyFile  string `yaml:"key_file,omitempty"`
}

// LLMConfig selects and configures the LLM backend adapter.
type LLMConfig struct {
	Backend string `yaml:"backend,omitempty"` // "anthropic" | "openai_compat" | "dummy"
	Model   string `yaml:"model,omitempty"`
	BaseURL string `yaml:"base_url,omitempty"` // openai_compat only
	APIKey  string `yaml:"api_key,omitempty"`  // falls back to $ANTHROPIC_API_KEY / $OPENAI_API_KEY
}

// CronConfig controls the daemon's background job schedule.
type CronConfig struct {
	HourlySummary string `yaml:"hourly_summary,omitempty"` // cron expression, default "0 * * * *"
	DailyNote     string `yaml:"daily_note,omitempty"`     // default "0 0 * * *"
	Eviction      string `yaml:"eviction,omitempty"`       // default "*/5 * * * *"
	Cleanup       string `yaml:"cleanup,omitempty"`        // default "0 3 * * *"
}

func defaultDaemonConfig() DaemonConfig {
	return DaemonConfig{
		Listen:        DefaultSocketPath(),
		ContextBudget: 16000,
		LLM:           LLMConfig{Backend: "dummy"},
		Cron: CronConfig{
			HourlySummary: "0 * * * *",
			DailyNote:     "0 0 * * *",
			Eviction:      "*/5 * * * *",
			Cleanup:       "0 3 * * *",
		},
	}
}

func daemonConfigPath() (string, error) {
	if p := os.Getenv("OMNISH_DAEMON_CONFIG"); p != "" {
		return p, nil
	}
	dir, err := UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "daemon.yaml"), nil
}

func loadDaemonConfigFile(path string) (DaemonConfig, error) {
	cfg := defaultDaemonConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("config: read daemon config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("config: parse daemon config %s: %w", path, err)
	}
	return cfg, nil
}

// LoadDaemonConfig reads daemon.yaml once, applying defaults. A
// configuration error at this stage should abort the process (the caller
// decides how).
func LoadDaemonConfig() (*DaemonConfig, error) {
	path, err := daemonConfigPath()
	if err != nil {
		return nil, err
	}
	cfg, err := loadDaemonConfigFile(path)
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

// DaemonConfigWatcher holds the live daemon configuration and reloads it
// from disk on fsnotify write events. A reload that fails to parse is
// logged and the previous configuration is kept.
type DaemonConfigWatcher struct {
	path string

	mu  sync.RWMutex
	cur *DaemonConfig

	generation atomic.Uint64
}

// NewDaemonConfigWatcher loads the initial configuration and prepares a
// watcher; call Watch to start reacting to file changes.
func NewDaemonConfigWatcher() (*DaemonConfigWatcher, error) {
	path, err := daemonConfigPath()
	if err != nil {
		return nil, err
	}
	cfg, err := loadDaemonConfigFile(path)
	if err != nil {
		return nil, err
	}
	w := &DaemonConfigWatcher{path: path, cur: &cfg}
	return w, nil
}

// Current returns the currently active configuration.
func (w *DaemonConfigWatcher) Current() *DaemonConfig {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.cur
}

// Watch runs until ctx is cancelled, reloading the config file whenever
// fsnotify reports a write to it.
func (w *DaemonConfigWatcher) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("config: new fsnotify watcher: %w", err)
	}
	defer watcher.Close()

	dir := filepath.Dir(w.path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("config: watch %s: %w", dir, err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != filepath.Clean(w.path) {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			w.reload()
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("config: watcher error", "error", err)
		}
	}
}

func (w *DaemonConfigWatcher) reload() {
	cfg, err := loadDaemonConfigFile(w.path)
	if err != nil {
		logger.Warn("config: reload failed, keeping previous config", "error", err)
		return
	}
	w.mu.Lock()
	w.cur = &cfg
	w.mu.Unlock()
	w.generation.Add(1)
	logger.Info("config: reloaded daemon config", "path", w.path)
}
