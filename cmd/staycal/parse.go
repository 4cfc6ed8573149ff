package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"staycal/internal/availability"
	"staycal/internal/ics"
)

type intervalView struct {
	Start availability.DayKey `json:"start"`
	End   availability.DayKey `json:"end"`
	Days  int                 `json:"days"`
}

func parseCmd(opts *rootOptions) *cobra.Command {
	var (
		strict     bool
		outputJSON bool
	)

	cmd := &cobra.Command{
		Use:   "parse FILE",
		Short: "Print the busy intervals of an ICS file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			loc := resolveLocationOrLocal(opts.cfg.Timezone)

			ivs, err := ics.Parse(body, ics.ParseOptions{
				Location:    loc,
				Strict:      strict,
				HorizonDays: opts.cfg.Feed.HorizonDays,
			})
			if err != nil {
				return err
			}

			views := make([]intervalView, 0, len(ivs))
			for _, iv := range ivs {
				first, last := iv.Days(loc)
				views = append(views, intervalView{Start: first, End: last, Days: first.DaysUntil(last) + 1})
			}

			out := cmd.OutOrStdout()
			if outputJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(views)
			}
			for _, v := range views {
				fmt.Fprintf(out, "%s .. %s (%d days)\n", v.Start, v.End, v.Days)
			}
			fmt.Fprintf(out, "%d intervals\n", len(views))
			return nil
		},
	}
	cmd.Flags().BoolVar(&strict, "strict", false, "Use the strict parser (rejects incomplete events, expands RRULE)")
	cmd.Flags().BoolVar(&outputJSON, "json", false, "Output JSON")
	return cmd
}
