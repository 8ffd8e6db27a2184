package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tazhate/dosebot/internal/service"
)

func newRescheduleCmd() *cobra.Command {
	var userID string

	cmd := &cobra.Command{
		Use:   "reschedule",
		Short: "Cancel and re-plan the notifications of one or every user",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			var reports []service.RescheduleReport
			if userID != "" {
				report, err := a.planner.RescheduleUser(ctx, userID)
				if err != nil {
					return err
				}
				reports = append(reports, report)
			} else {
				reports, err = a.planner.RescheduleAll(ctx)
				if err != nil {
					return err
				}
			}

			printReports(cmd.OutOrStdout(), reports)
			return nil
		},
	}
	cmd.Flags().StringVarP(&userID, "user", "u", "", "reschedule only this user id")
	return cmd
}

func printReports(w io.Writer, reports []service.RescheduleReport) {
	for _, r := range reports {
		fmt.Fprintf(w, "%s\tmedications=%d\tnotifications=%d", r.UserID, r.Medications, r.Notifications)
		if len(r.Failed) > 0 {
			fmt.Fprintf(w, "\tfailed=%s", strings.Join(r.Failed, ","))
		}
		fmt.Fprintln(w)
	}
	if len(reports) == 0 {
		fmt.Fprintln(w, "no users")
	}
}
