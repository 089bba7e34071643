package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/joshsymonds/mailtriage/internal/rate"
	"github.com/joshsymonds/mailtriage/internal/report"
)

const reportDelay = 100 * time.Millisecond

func newReportCmd() *cobra.Command {
	var (
		days   int
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Count recently labelled messages and list who awaits a human",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			s, err := openSession(ctx, false)
			if err != nil {
				return err
			}
			svc := report.NewService(s.client, s.cfg.Labels.Names(), rate.NewPacer(reportDelay), s.log)
			rep, err := svc.Run(ctx, report.Options{Days: days})
			if err != nil {
				return fmt.Errorf("run report: %w", err)
			}
			if asJSON {
				return report.WriteJSON(rep, cmd.OutOrStdout())
			}
			return report.PrintHuman(rep, cmd.OutOrStdout())
		},
	}
	cmd.Flags().IntVar(&days, "days", 7, "lookback window in days")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON instead of a table")
	return cmd
}
