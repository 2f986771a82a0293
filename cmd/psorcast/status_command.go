package main

import (
	"fmt"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"psorcast/internal/config"
	"psorcast/internal/preflight"
)

type statusReport struct {
	ConfigOK      bool               `json:"config_ok"`
	DaemonRunning bool               `json:"daemon_running"`
	LockFile      string             `json:"lock_file"`
	Database      string             `json:"database"`
	Checks        []preflight.Result `json:"checks"`
}

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show directory, binary and daemon status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			report := statusReport{
				ConfigOK:      true,
				DaemonRunning: daemonRunning(cfg),
				LockFile:      cfg.LockPath(),
				Database:      cfg.DatabasePath(),
				Checks:        preflight.RunAll(cmd.Context(), cfg),
			}
			if asJSON {
				return writeJSON(cmd, report)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, renderPairs([][2]string{
				{"Daemon", yesNo(report.DaemonRunning)},
				{"Lock file", report.LockFile},
				{"Database", report.Database},
			}))
			rows := make([][]string, 0, len(report.Checks))
			for _, check := range report.Checks {
				state := "ok"
				if !check.Passed {
					state = "FAIL"
				}
				rows = append(rows, []string{check.Name, state, check.Detail})
			}
			fmt.Fprintln(out, renderTable([]string{"Check", "State", "Detail"}, rows, []columnAlignment{alignLeft, alignCenter, alignLeft}))
			if failed := preflight.Failed(report.Checks); len(failed) > 0 {
				return fmt.Errorf("%d check(s) failed", len(failed))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit JSON")
	return cmd
}

// daemonRunning probes the daemon lock without holding it.
func daemonRunning(cfg *config.Config) bool {
	lock := flock.New(cfg.LockPath())
	ok, err := lock.TryLock()
	if err != nil {
		return false
	}
	if ok {
		_ = lock.Unlock()
		return false
	}
	return true
}
