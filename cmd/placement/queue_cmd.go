package main

import (
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/fit-portal/placement/modules/internship/services"
)

func newQueueCmd() *cobra.Command {
	var (
		outcome string
		limit   int
	)

	cmd := &cobra.Command{
		Use:   "queue <period-id>",
		Short: "Print the review queue of a period",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return errors.Wrapf(err, "invalid period id %q", args[0])
			}
			e, err := openEnv(cmd.Context())
			if err != nil {
				return err
			}
			defer e.Close()

			queue := services.NewReviewQueueService(e.repos, services.NewNoopQueueCache())
			entries, err := queue.Rank(cmd.Context(), id, services.QueueFilter{Outcome: outcome, Limit: limit})
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), entries)
		},
	}
	cmd.Flags().StringVar(&outcome, "outcome", "", "undecided (default), organization, academy or all")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum entries (0 for all)")
	return cmd
}
