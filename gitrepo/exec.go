// Package gitrepo is the local repository adapter for the remote helper.
// It wraps the git plumbing commands the synchronization engine needs:
// ref resolution, graph walks, tree diffs, blob and note access.
package gitrepo

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// CommandExecutor abstracts command execution for testability. Tests
// substitute a scripted executor; production code runs real git.
type CommandExecutor interface {
	// Run executes a command in dir and returns its stdout.
	Run(ctx context.Context, dir string, name string, args ...string) ([]byte, error)
}

// CLIExecutor executes commands with os/exec.
type CLIExecutor struct{}

// Run executes a command and returns stdout. On failure the command's
// stderr is folded into the returned error.
func (CLIExecutor) Run(ctx context.Context, dir string, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	out, err := cmd.Output()
	if err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return out, fmt.Errorf("%s %s failed: %w: %s", name, strings.Join(args, " "), err, msg)
		}
		return out, fmt.Errorf("%s %s failed: %w", name, strings.Join(args, " "), err)
	}

	return out, nil
}
