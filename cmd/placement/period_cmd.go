package main

import (
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/fit-portal/placement/modules/internship/services"
)

func newPeriodCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "period",
		Short: "Open or close a placement period",
	}
	cmd.AddCommand(periodTransitionCmd("open"), periodTransitionCmd("close"))
	return cmd
}

func periodTransitionCmd(action string) *cobra.Command {
	return &cobra.Command{
		Use:   action + " <period-id>",
		Short: action + " a placement period",
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

			periods := services.NewPeriodService(e.repos, nil)
			transition := periods.Open
			if action == "close" {
				transition = periods.Close
			}
			p, err := transition(cmd.Context(), id, periods.Now())
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), p)
		},
	}
}
