package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/joshsymonds/mailtriage/internal/labels"
)

func newLabelsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "labels",
		Short: "Create missing automation labels and print their ids",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			s, err := openSession(ctx, false)
			if err != nil {
				return err
			}
			store := labels.NewStore(s.client, s.cfg.Labels.Names(), s.log)
			ids, err := store.Ensure(ctx)
			if err != nil {
				return err
			}
			names := make([]string, 0, len(ids))
			for name := range ids {
				names = append(names, name)
			}
			sort.Strings(names)
			out := cmd.OutOrStdout()
			for _, name := range names {
				if _, err := fmt.Fprintf(out, "%-30s %s\n", name, ids[name]); err != nil {
					return err
				}
			}
			return nil
		},
	}
}
