package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"psorcast/internal/schedule"
	"psorcast/internal/study"
)

func newScheduleCommand(ctx *commandContext) *cobra.Command {
	scheduleCmd := &cobra.Command{
		Use:   "schedule",
		Short: "Inspect and complete this week's activities",
	}
	scheduleCmd.AddCommand(newScheduleShowCommand(ctx))
	scheduleCmd.AddCommand(newScheduleFinishCommand(ctx))
	return scheduleCmd
}

func newScheduleShowCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the schedule for the current study week",
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := ctx.engine(cmd.Context())
			if err != nil {
				return err
			}
			summary := engine.Summary()
			if asJSON {
				return writeJSON(cmd, summary)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, renderPairs([][2]string{
				{"Study week", fmt.Sprintf("%d", summary.Week)},
				{"Window", fmt.Sprintf("%s to %s", summary.WindowStart.Format("2006-01-02"), summary.WindowEnd.Format("2006-01-02"))},
				{"Completed", fmt.Sprintf("%d of %d", summary.Completed, summary.Scheduled)},
			}))
			fmt.Fprintln(out, renderTable(
				[]string{"Activity", "Timing", "Due", "Done", "Finished"},
				scheduleRows(summary),
				[]columnAlignment{alignLeft, alignLeft, alignCenter, alignCenter, alignLeft},
			))
			if summary.AllComplete {
				fmt.Fprintln(out, "All activities complete for this week")
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit JSON")
	return cmd
}

func scheduleRows(summary schedule.WeekSummary) [][]string {
	rows := make([][]string, 0, len(summary.Activities))
	for _, a := range summary.Activities {
		timing := a.Timing.Frequency.String()
		if a.Timing.Frequency == schedule.Monthly {
			timing = fmt.Sprintf("%s from week %d", timing, a.Timing.StartWeek)
		}
		rows = append(rows, []string{
			a.Title,
			timing,
			yesNo(a.Due),
			yesNo(a.Complete),
			formatOptionalTime(a.FinishedOn),
		})
	}
	return rows
}

func newScheduleFinishCommand(ctx *commandContext) *cobra.Command {
	var at string
	cmd := &cobra.Command{
		Use:   "finish <activity>",
		Short: "Mark an activity finished",
		Long:  "Known activities: " + activityList(),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := study.ParseActivityID(args[0])
			if err != nil {
				return err
			}
			when, err := parseTimeFlag(at, ctx.now())
			if err != nil {
				return err
			}
			store, err := ctx.openStore()
			if err != nil {
				return err
			}
			if err := store.MarkActivityFinished(cmd.Context(), id, when); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s finished at %s\n", id.Title(), when.Format(displayDateLayout))
			return nil
		},
	}
	cmd.Flags().StringVar(&at, "at", "", "Completion time (default now)")
	return cmd
}

func activityList() string {
	ids := study.AllActivities()
	names := make([]string, 0, len(ids))
	for _, id := range ids {
		names = append(names, id.String())
	}
	return strings.Join(names, ", ")
}
