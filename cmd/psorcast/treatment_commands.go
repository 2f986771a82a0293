package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

func newTreatmentCommand(ctx *commandContext) *cobra.Command {
	treatmentCmd := &cobra.Command{
		Use:   "treatment",
		Short: "Manage treatment ranges",
	}
	treatmentCmd.AddCommand(newTreatmentStartCommand(ctx))
	treatmentCmd.AddCommand(newTreatmentListCommand(ctx))
	return treatmentCmd
}

func newTreatmentStartCommand(ctx *commandContext) *cobra.Command {
	var treatments []string
	var at string
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start a new treatment range, closing the current one",
		RunE: func(cmd *cobra.Command, args []string) error {
			start, err := parseTimeFlag(at, ctx.now())
			if err != nil {
				return err
			}
			store, err := ctx.openStore()
			if err != nil {
				return err
			}
			r, err := store.StartTreatment(cmd.Context(), treatments, start)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Started treatment %d: %s (%s)\n",
				r.ID, strings.Join(r.Treatments, ", "), r.DateRangeString(ctx.now()))
			return nil
		},
	}
	cmd.Flags().StringArrayVarP(&treatments, "treatment", "t", nil, "Treatment name (repeatable)")
	cmd.Flags().StringVar(&at, "date", "", "Start date (default now)")
	_ = cmd.MarkFlagRequired("treatment")
	return cmd
}

func newTreatmentListCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List treatment ranges",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ctx.openStore()
			if err != nil {
				return err
			}
			ranges, err := store.TreatmentRanges(cmd.Context())
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, ranges)
			}
			if len(ranges) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No treatments recorded")
				return nil
			}
			now := ctx.now()
			rows := make([][]string, 0, len(ranges))
			for _, r := range ranges {
				rows = append(rows, []string{
					strconv.FormatInt(r.ID, 10),
					strings.Join(r.Treatments, ", "),
					r.DateRangeString(now),
					yesNo(r.Current()),
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"ID", "Treatments", "Dates", "Current"}, rows, []columnAlignment{alignRight}))
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit JSON")
	return cmd
}
