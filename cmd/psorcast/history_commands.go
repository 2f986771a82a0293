package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"psorcast/internal/history"
	"psorcast/internal/study"
	"psorcast/internal/timeline"
	"psorcast/internal/video"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "Record and inspect measurement history",
	}
	historyCmd.AddCommand(newHistoryAddCommand(ctx))
	historyCmd.AddCommand(newHistoryListCommand(ctx))
	historyCmd.AddCommand(newHistoryRemoveCommand(ctx))
	return historyCmd
}

func newHistoryAddCommand(ctx *commandContext) *cobra.Command {
	var (
		task      string
		imagePath string
		at        string
		report    string
		zone      string
		coverage  float64
		joints    int
	)
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Record a finished activity, optionally with its summary image",
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := study.ParseActivityID(task)
			if err != nil {
				return err
			}
			when, err := parseTimeFlag(at, ctx.now())
			if err != nil {
				return err
			}
			result := timeline.TaskResult{
				Activity:         id,
				FinishedAt:       when,
				ReportIdentifier: report,
				SelectedZone:     zone,
			}
			if cmd.Flags().Changed("coverage") {
				result.Coverage = &coverage
			}
			if cmd.Flags().Changed("joints") {
				result.JointCount = &joints
			}
			if imagePath != "" {
				file, err := os.Open(imagePath)
				if err != nil {
					return fmt.Errorf("open image: %w", err)
				}
				defer file.Close()
				result.SummaryImage = file
			}

			tl, err := ctx.timeline()
			if err != nil {
				return err
			}
			defer tl.Close()

			item, err := tl.ProcessTaskResult(cmd.Context(), result)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Recorded %s at %s\n", id.Title(), item.Date.Format(displayDateLayout))
			if item.HasImage() {
				fmt.Fprintf(out, "Cached frame %s\n", item.ImageName)
			}
			if err := tl.Wait(cmd.Context()); err != nil {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&task, "task", "t", "", "Activity identifier")
	cmd.Flags().StringVarP(&imagePath, "image", "i", "", "Summary image (JPEG)")
	cmd.Flags().StringVar(&at, "at", "", "Completion time (default now)")
	cmd.Flags().StringVar(&report, "report", "", "Report identifier")
	cmd.Flags().StringVar(&zone, "zone", "", "Selected body zone")
	cmd.Flags().Float64Var(&coverage, "coverage", 0, "Coverage fraction between 0 and 1")
	cmd.Flags().IntVar(&joints, "joints", 0, "Painful joint count")
	_ = cmd.MarkFlagRequired("task")
	return cmd
}

func newHistoryListCommand(ctx *commandContext) *cobra.Command {
	var (
		task   string
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recorded history items",
		RunE: func(cmd *cobra.Command, args []string) error {
			var filter history.ItemFilter
			if task != "" {
				id, err := study.ParseActivityID(task)
				if err != nil {
					return err
				}
				filter.Task = id
			}
			store, err := ctx.openStore()
			if err != nil {
				return err
			}
			items, err := store.HistoryItems(cmd.Context(), filter)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, items)
			}
			if len(items) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No history recorded")
				return nil
			}
			rows := make([][]string, 0, len(items))
			for _, item := range items {
				rows = append(rows, []string{
					strconv.FormatInt(item.ID, 10),
					item.TaskIdentifier.Title(),
					item.Date.Local().Format(displayDateLayout),
					historyValue(item),
					item.ImageName,
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"ID", "Activity", "Date", "Value", "Image"},
				rows,
				[]columnAlignment{alignRight},
			))
			return nil
		},
	}
	cmd.Flags().StringVarP(&task, "task", "t", "", "Only this activity")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit JSON")
	return cmd
}

func historyValue(item study.HistoryItem) string {
	switch {
	case item.Coverage != nil:
		return fmt.Sprintf("%.1f%%", *item.Coverage*100)
	case item.JointCount != nil:
		return fmt.Sprintf("%d joints", *item.JointCount)
	case item.Rotations != nil:
		r := item.Rotations
		return fmt.Sprintf("L %d/%d R %d/%d", r.LeftClockwise, r.LeftCounter, r.RightClockwise, r.RightCounter)
	case item.SelectedZone != "":
		return item.SelectedZone
	default:
		return "-"
	}
}

func newHistoryRemoveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <image>",
		Short: "Delete a cached frame and its history item, then rebuild the video",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tl, err := ctx.timeline()
			if err != nil {
				return err
			}
			defer tl.Close()
			if err := tl.DeleteFrame(cmd.Context(), args[0]); err != nil && !errors.Is(err, video.ErrTooFewFrames) {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", args[0])
			return tl.Wait(cmd.Context())
		},
	}
}
