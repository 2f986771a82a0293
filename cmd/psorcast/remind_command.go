package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"psorcast/internal/reminders"
)

func newRemindCommand(ctx *commandContext) *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "remind",
		Short: "Send the last-call reminder for unfinished activities",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			engine, err := ctx.engine(cmd.Context())
			if err != nil {
				return err
			}
			summary := engine.Summary()
			out := cmd.OutOrStdout()
			if summary.Scheduled == 0 || summary.AllComplete {
				fmt.Fprintln(out, "Nothing left to do this week")
				return nil
			}
			message := reminders.LastCallMessage(summary)
			if dryRun {
				fmt.Fprintln(out, message)
				return nil
			}
			if cfg.Notifications.NtfyTopic == "" {
				fmt.Fprintln(out, "ntfy topic not configured; reminder not sent")
				fmt.Fprintln(out, message)
				return nil
			}
			service := reminders.NewService(cfg, ctx.loggerValue())
			if err := service.NotifyLastCall(cmd.Context(), summary); err != nil {
				return fmt.Errorf("send reminder: %w", err)
			}
			fmt.Fprintf(out, "Reminder sent: %d remaining\n", summary.Remaining())
			return nil
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Print the reminder instead of sending it")
	return cmd
}

func newTestNotifyCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "test-notify",
		Short: "Send a test notification",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if cfg.Notifications.NtfyTopic == "" {
				return fmt.Errorf("notifications.ntfy_topic is not configured")
			}
			service := reminders.NewService(cfg, ctx.loggerValue())
			if err := service.TestNotification(cmd.Context()); err != nil {
				return fmt.Errorf("send test notification: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Test notification sent")
			return nil
		},
	}
}
