// git-remote-mediawiki - a git remote helper that lets git clone, fetch,
// and push MediaWiki wikis as if they were git repositories
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"runtime/debug"
	"strings"

	"github.com/spf13/cobra"

	"github.com/olgasafonova/git-remote-mediawiki/bridge"
	"github.com/olgasafonova/git-remote-mediawiki/gitrepo"
	"github.com/olgasafonova/git-remote-mediawiki/metrics"
	"github.com/olgasafonova/git-remote-mediawiki/tracing"
	"github.com/olgasafonova/git-remote-mediawiki/wiki"
)

const (
	HelperName    = "git-remote-mediawiki"
	HelperVersion = "1.0.0"
)

// recoverPanic wraps a function with panic recovery and returns an error instead of crashing
func recoverPanic(logger *slog.Logger, operation string) {
	if r := recover(); r != nil {
		logger.Error("Panic recovered",
			"operation", operation,
			"panic", r,
			"stack", string(debug.Stack()))
	}
}

// newLogger builds the stderr logger; stdout carries the helper protocol
// and must stay clean. GIT_MW_LOG_LEVEL selects verbosity.
func newLogger() *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(os.Getenv("GIT_MW_LOG_LEVEL")) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	return slog.New(handler)
}

func newRootCommand() *cobra.Command {
	return &cobra.Command{
		Use:     HelperName + " <remote> [url]",
		Short:   "Git remote helper bridging repositories and MediaWiki wikis",
		Long:    "Invoked by git for mediawiki:// remotes: speaks the remote-helper protocol on stdin/stdout, importing wiki revisions as commits and replaying pushed commits as wiki edits.",
		Version: HelperVersion,
		Args:    cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), args)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
}

func run(ctx context.Context, args []string) error {
	logger := newLogger()
	defer recoverPanic(logger, "helper session")

	remote := args[0]
	rawURL := remote
	if len(args) == 2 {
		rawURL = args[1]
	}
	// git hands over the URL with the helper scheme still attached.
	rawURL = strings.TrimPrefix(rawURL, "mediawiki::")

	shutdown, err := tracing.Setup(ctx, tracing.DefaultConfig())
	if err != nil {
		logger.Warn("Tracing setup failed; continuing without traces", "error", err)
	} else {
		defer func() {
			if err := shutdown(ctx); err != nil {
				logger.Warn("Tracing shutdown failed", "error", err)
			}
		}()
	}

	gitDir := os.Getenv("GIT_DIR")
	if gitDir == "" {
		gitDir = "."
	}
	repo := gitrepo.New(gitDir)

	config, err := wiki.NewConfig(rawURL)
	if err != nil {
		return err
	}
	// Credentials from git config take precedence over the environment.
	if login := repo.ConfigGet(ctx, "remote."+remote+".mwLogin"); login != "" {
		config.Username = login
	}
	if password := repo.ConfigGet(ctx, "remote."+remote+".mwPassword"); password != "" {
		config.Password = password
	}

	client := wiki.NewClient(config, logger)

	logger.Debug("Helper starting",
		"version", HelperVersion, "remote", remote, "wiki", config.Host())

	session := bridge.NewSession(ctx, remote, client, repo, logger)
	dispatcher := bridge.NewDispatcher(session, os.Stdin, os.Stdout)

	runErr := dispatcher.Run(ctx)

	if summary := metrics.Summary(); summary != "" {
		logger.Debug("Session metrics", "counters", summary)
	}
	return runErr
}

func main() {
	root := newRootCommand()
	if err := root.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %s\n", err)
		os.Exit(1)
	}
}
