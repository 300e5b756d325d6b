// Package commands implements the profilex CLI.
package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/hazyhaar/profilex/history"
	"github.com/hazyhaar/profilex/internal/config"
	"github.com/hazyhaar/profilex/pipeline"
	"github.com/hazyhaar/profilex/service"
)

// version is set at build time with -ldflags "-X ...commands.version=...".
var version = "dev"

// app is the state shared by subcommands once flags are parsed.
type app struct {
	configPath string
	envFiles   []string
	logLevel   string

	cfg    *config.Config
	logger *slog.Logger
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "profilex",
		Short:         "profilex aggregates a public profile from a social site and a code host.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.load(cmd.ErrOrStderr())
		},
	}
	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "path to profilex.yaml")
	root.PersistentFlags().StringSliceVar(&a.envFiles, "env-file", nil, "dotenv files with credentials (default .env)")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "log level: debug, info, warn, error (overrides config)")

	root.AddCommand(newExtractCmd(a), newServeCmd(a), newMCPCmd(a), newHistoryCmd(a))
	return root
}

// ExecuteContext runs the CLI and exits non-zero on error.
func ExecuteContext(ctx context.Context) {
	if err := NewRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "profilex:", err)
		os.Exit(1)
	}
}

func (a *app) load(stderr io.Writer) error {
	cfg, err := config.Load(a.configPath, a.envFiles...)
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}
	a.cfg = cfg
	a.logger = slog.New(slog.NewJSONHandler(stderr, &slog.HandlerOptions{Level: cfg.LogLevel()}))
	return nil
}

// newService builds the pipeline and, unless disabled, opens the archive.
// The returned closer releases the archive.
func (a *app) newService(withHistory bool) (*service.Service, func(), error) {
	pipe, err := pipeline.New(a.cfg.Pipeline(a.logger))
	if err != nil {
		return nil, nil, err
	}
	if !withHistory {
		return service.New(pipe, nil, a.logger), func() {}, nil
	}
	store, err := history.Open(a.cfg.History.DBPath)
	if err != nil {
		return nil, nil, err
	}
	return service.New(pipe, store, a.logger), func() { store.Close() }, nil
}
