// Package shellhook holds the embedded shell-init snippet that turns a
// bash session into an OSC-133 emitter, and the logic that writes it to
// disk so a `PROMPT_COMMAND`/`trap DEBUG` pair can source it. Grounded on
// the original client's shell_hook.rs: a `DEBUG` trap fires on every
// command about to run (133;B,C) and `PROMPT_COMMAND` fires right before
// the next prompt is drawn (133;D for the command that just finished,
// then 133;A for the new prompt).
package shellhook

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const bashHook = `
# omnish shell integration — OSC 133 semantic prompts
__omnish_prompt_cmd() {
  local ec=$?
  printf '\033]133;D;%d\007' "$ec"
  printf '\033]133;A\007'
}
PROMPT_COMMAND="__omnish_prompt_cmd${PROMPT_COMMAND:+;$PROMPT_COMMAND}"

__omnish_preexec() {
  if [[ "$BASH_COMMAND" != "$PROMPT_COMMAND" ]] && [[ "$BASH_COMMAND" != __omnish_* ]]; then
    printf '\033]133;B;%s;cwd:%s\007' "$BASH_COMMAND" "$PWD"
    printf '\033]133;C\007'
  fi
}
trap '__omnish_preexec' DEBUG
`

// Script returns the hook source for shell, or "" if the shell has no
// supported integration (only bash is supported, matching the original
// client).
func Script(shell string) string {
	if !strings.HasSuffix(shell, "bash") {
		return ""
	}
	return bashHook
}

// Install writes the hook script for shell under dataDir/hooks and
// returns its path, or "" if the shell is unsupported.
func Install(dataDir, shell string) (string, error) {
	script := Script(shell)
	if script == "" {
		return "", nil
	}

	dir := filepath.Join(dataDir, "hooks")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("shellhook: mkdir %s: %w", dir, err)
	}

	path := filepath.Join(dir, "bash_hook.sh")
	if err := os.WriteFile(path, []byte(script), 0644); err != nil {
		return "", fmt.Errorf("shellhook: write %s: %w", path, err)
	}
	return path, nil
}

// SourceLine returns the shell command that sources the installed hook,
// suitable for injecting into the child shell's environment (e.g. via
// BASH_ENV) so it self-activates without editing the user's .bashrc.
func SourceLine(hookPath string) string {
	return fmt.Sprintf("source %q", hookPath)
}
