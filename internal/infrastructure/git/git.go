// Package git provides typed access to the git CLI for the working tree
// that holds the record file. Every command targets the repository
// directory via "git -C <dir>", and configured secrets (tokens embedded in
// remote URLs) are scrubbed from error messages before they reach a log.
package git

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// redacted replaces secrets in error output.
const redacted = "***"

// Repository represents a git working tree at a specific directory.
type Repository struct {
	dir     string
	binary  string
	secrets []string
}

// NewRepository returns a Repository targeting the given directory.
func NewRepository(dir string) *Repository {
	return &Repository{dir: dir, binary: "git"}
}

// Dir returns the repository directory.
func (r *Repository) Dir() string {
	return r.dir
}

// SetSecrets registers values that must never appear in returned errors.
// Empty values are ignored.
func (r *Repository) SetSecrets(secrets ...string) {
	r.secrets = r.secrets[:0]
	for _, s := range secrets {
		if s != "" {
			r.secrets = append(r.secrets, s)
		}
	}
}

// Run executes a git command targeting this repository and returns
// stdout. Stderr is captured separately and included in error messages on
// failure. The returned error wraps *exec.ExitError when git ran and exited
// non-zero, so ExitCode can distinguish "differences found" from a failure.
//
// Terminal prompts are disabled: a push with bad credentials fails instead
// of blocking on stdin.
func (r *Repository) Run(ctx context.Context, args ...string) (string, error) {
	fullArgs := append([]string{"-C", r.dir}, args...)
	var stdout, stderr bytes.Buffer
	command := exec.CommandContext(ctx, r.binary, fullArgs...)
	command.Stdout = &stdout
	command.Stderr = &stderr
	command.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0")

	if err := command.Run(); err != nil {
		return "", &CommandError{
			Args:   r.Redact(strings.Join(args, " ")),
			Dir:    r.dir,
			Stderr: r.Redact(strings.TrimSpace(stderr.String())),
			Err:    err,
		}
	}
	return stdout.String(), nil
}

// Redact replaces every registered secret in s.
func (r *Repository) Redact(s string) string {
	for _, secret := range r.secrets {
		s = strings.ReplaceAll(s, secret, redacted)
	}
	return s
}

// CommandError describes a failed git invocation.
type CommandError struct {
	Args   string
	Dir    string
	Stderr string
	Err    error
}

func (e *CommandError) Error() string {
	if e.Stderr == "" {
		return fmt.Sprintf("git %s in %s: %v", e.Args, e.Dir, e.Err)
	}
	return fmt.Sprintf("git %s in %s: %v (stderr: %s)", e.Args, e.Dir, e.Err, e.Stderr)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// ExitCode returns the exit status carried by err, or -1 when err did not
// come from a git process that ran to completion.
func ExitCode(err error) int {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}
