// Command mailtriage answers, escalates, or dismisses unread support email
// using a language model, recording every decision as Gmail labels.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/joshsymonds/mailtriage/internal/config"
	"github.com/joshsymonds/mailtriage/internal/credential"
	"github.com/joshsymonds/mailtriage/internal/gmail"
	"github.com/joshsymonds/mailtriage/internal/runtime"
)

var configPath string

func main() {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		runtime.DefaultLogger().Error("mailtriage failed", "error", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "mailtriage",
		Short:         "Triage unread support email with a language model",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "config file (default $HOME/.config/mailtriage/config.yaml)")
	root.AddCommand(newRunCmd(), newLabelsCmd(), newReportCmd())
	return root
}

// session is what every subcommand needs after startup.
type session struct {
	cfg    *config.Config
	log    *slog.Logger
	client gmail.Client
}

func openSession(ctx context.Context, needAPIKey bool) (*session, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if err := cfg.ResolveSecrets(credential.Get, needAPIKey); err != nil {
		return nil, err
	}
	logger := runtime.NewLogger(cfg.Log.Level)

	client, err := runtime.NewGmailClient(ctx, runtime.Credentials{
		TokenJSON:       cfg.Gmail.TokenJSON,
		CredentialsFile: cfg.Gmail.CredentialsFile,
		TokenFile:       cfg.Gmail.TokenFile,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("create gmail client: %w", err)
	}
	return &session{cfg: cfg, log: logger, client: client}, nil
}

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
