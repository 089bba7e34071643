package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/joshsymonds/mailtriage/internal/classify"
	"github.com/joshsymonds/mailtriage/internal/config"
	"github.com/joshsymonds/mailtriage/internal/labels"
	"github.com/joshsymonds/mailtriage/internal/rate"
	"github.com/joshsymonds/mailtriage/internal/reply"
	"github.com/joshsymonds/mailtriage/internal/triage"
)

func newRunCmd() *cobra.Command {
	var (
		dryRun      bool
		maxMessages int
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Process one batch of unread inbox messages",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			s, err := openSession(ctx, true)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("dry-run") {
				s.cfg.Triage.DryRun = dryRun
			}
			if cmd.Flags().Changed("max-messages") {
				if maxMessages <= 0 {
					return fmt.Errorf("--max-messages must be positive, got %d", maxMessages)
				}
				s.cfg.Triage.MaxMessages = maxMessages
			}
			return runTriage(ctx, s)
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "log decisions; send nothing and leave labels alone")
	cmd.Flags().IntVar(&maxMessages, "max-messages", triage.DefaultMaxMessages, "messages to process this run")
	return cmd
}

func runTriage(ctx context.Context, s *session) error {
	cfg := s.cfg
	completer, err := newCompleter(ctx, cfg.Completion)
	if err != nil {
		return fmt.Errorf("create completer: %w", err)
	}
	prompt, err := classify.LoadPrompt(cfg.Completion.PromptFile)
	if err != nil {
		return err
	}
	composer, err := reply.NewComposer(cfg.Reply.TemplateFile)
	if err != nil {
		return err
	}

	store := labels.NewStore(s.client, cfg.Labels.Names(), s.log)
	svc := triage.NewService(
		s.client,
		store,
		classify.NewClassifier(completer, prompt, s.log),
		composer,
		rate.NewPacer(cfg.Triage.Delay),
		s.log,
	)
	_, err = svc.Run(ctx, triage.Spec{
		MaxMessages: cfg.Triage.MaxMessages,
		StaleAfter:  cfg.Triage.StaleAfter,
		DryRun:      cfg.Triage.DryRun,
		From:        cfg.Triage.From,
	})
	if err != nil {
		return fmt.Errorf("run triage: %w", err)
	}
	return nil
}

func newCompleter(ctx context.Context, c config.CompletionConfig) (classify.Completer, error) {
	switch c.Provider {
	case config.ProviderGemini:
		return classify.NewGeminiCompleter(ctx, c.APIKey, c.Model, c.MaxTokens)
	default:
		return classify.NewOpenAICompleter(c.APIKey, c.BaseURL, c.Model, c.MaxTokens)
	}
}
