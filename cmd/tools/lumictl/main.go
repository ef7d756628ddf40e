// Command lumictl drives the LUMI core from a terminal against the local
// state store.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/zhouzirui/lumi/backend/internal/config"
	"github.com/zhouzirui/lumi/backend/internal/logging"
	"github.com/zhouzirui/lumi/backend/internal/service/insights"
	"github.com/zhouzirui/lumi/backend/internal/service/remote"
	"github.com/zhouzirui/lumi/backend/internal/service/session"
	"github.com/zhouzirui/lumi/backend/internal/storage/kv"
)

// app is the state shared by every command.
type app struct {
	profile string
	output  string

	store    kv.Store
	remote   remote.Client
	logger   *zap.Logger
	sessions *session.Service
	insights *insights.Service
}

func main() {
	a := &app{}
	err := newRootCmd(a).Execute()
	if cerr := a.close(); cerr != nil && err == nil {
		err = cerr
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	if err != nil {
		os.Exit(1)
	}
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:          "lumictl",
		Short:        "Inspect and drive the LUMI mood companion",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := validateOutput(a.output); err != nil {
				return err
			}
			return a.open(cmd.Context())
		},
	}
	root.PersistentFlags().StringVarP(&a.profile, "profile", "p", "default", "profile whose mood state is used")
	root.PersistentFlags().StringVarP(&a.output, "output", "o", formatText, "output format: text, json or yaml")

	root.AddCommand(
		newChatCmd(a),
		newConsentCmd(a),
		newMoodCmd(a),
		newInsightsCmd(a),
	)
	return root
}

// open wires the services from the environment, the same way the server does.
func (a *app) open(ctx context.Context) error {
	if a.sessions != nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "warning: failed to load .env: %v\n", err)
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	// stdout belongs to command output; logs stay at warn unless LOG_LEVEL is set.
	level := cfg.Log.Level
	if os.Getenv("LOG_LEVEL") == "" {
		level = "warn"
	}
	a.logger, err = logging.New(logging.Options{Level: level, Format: "console", File: cfg.Log.File})
	if err != nil {
		return err
	}

	a.store, err = kv.Open(cfg.Storage.Backend, cfg.Storage.ResolvedPath())
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	a.remote = remote.FromConfig(ctx, cfg, a.logger)

	a.sessions = session.NewService(a.store, a.remote, session.WithLogger(a.logger))
	a.insights = insights.NewService(a.sessions, a.remote, a.logger)
	return nil
}

func (a *app) close() error {
	if a.sessions != nil {
		a.sessions.Close()
		a.sessions = nil
	}
	if a.logger != nil {
		_ = a.logger.Sync()
	}
	if a.store == nil {
		return nil
	}
	err := a.store.Close()
	a.store = nil
	return err
}
