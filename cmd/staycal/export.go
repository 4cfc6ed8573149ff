package main

import (
	"io"
	"time"

	"github.com/spf13/cobra"

	"staycal/internal/ics"
)

func exportCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "export",
		Short: "Print the published occupancy feed (feed + bookings) to stdout",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp(opts.cfg)
			if err != nil {
				return err
			}
			defer a.store.Close()

			if err := a.warmUp(cmd.Context(), opts.cfg); err != nil {
				return err
			}

			body := ics.Export(a.calendar.OccupiedIntervals(), ics.ExportOptions{
				Location: a.calendar.Location(),
				Now:      time.Now(),
			})
			_, err = io.WriteString(cmd.OutOrStdout(), body)
			return err
		},
	}
}
