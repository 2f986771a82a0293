package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"psorcast/internal/config"
	"psorcast/internal/framecache"
	"psorcast/internal/media/ffprobe"
	"psorcast/internal/study"
	"psorcast/internal/timeline"
	"psorcast/internal/video"
)

func newVideoCommand(ctx *commandContext) *cobra.Command {
	videoCmd := &cobra.Command{
		Use:   "video",
		Short: "Build and export treatment timeline videos",
	}
	videoCmd.AddCommand(newVideoBuildCommand(ctx))
	videoCmd.AddCommand(newVideoListCommand(ctx))
	videoCmd.AddCommand(newVideoExportCommand(ctx))
	return videoCmd
}

func newVideoBuildCommand(ctx *commandContext) *cobra.Command {
	var quiet bool
	cmd := &cobra.Command{
		Use:   "build <activity>",
		Short: "Render the current treatment video for an activity",
		Long:  "Known activities: " + activityList(),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := study.ParseActivityID(args[0])
			if err != nil {
				return err
			}
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			tl, err := ctx.timeline()
			if err != nil {
				return err
			}
			defer tl.Close()

			events, cancel := tl.Subscribe(16)
			defer cancel()

			task, err := tl.RecreateCurrentTreatmentVideo(cmd.Context(), id)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Rendering %d frames to %s\n", len(task.Frames()), task.OutputPath())

			progress := newProgressPrinter(out, quiet)
			if err := waitForRender(cmd.Context(), task, events, progress); err != nil {
				return err
			}
			progress.finish()
			if err := verifyRender(cmd.Context(), cfg, task); err != nil {
				return err
			}
			fmt.Fprintf(out, "Video ready: %s\n", task.OutputPath())
			return nil
		},
	}
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Suppress progress output")
	return cmd
}

// waitForRender drains events for task until it finishes.
func waitForRender(ctx context.Context, task *video.Task, events <-chan timeline.Event, progress *progressPrinter) error {
	for {
		select {
		case event, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if event.TaskID != task.ID() {
				continue
			}
			if event.Kind == timeline.EventVideoProgress {
				progress.update(event.Progress)
			}
		case <-task.Done():
			return task.Err()
		case <-ctx.Done():
			task.Cancel()
			<-task.Done()
			return ctx.Err()
		}
	}
}

func verifyRender(ctx context.Context, cfg *config.Config, task *video.Task) error {
	if !cfg.Video.VerifyOutput {
		return nil
	}
	result, err := ffprobe.Inspect(ctx, cfg.FFprobeBinary(), task.OutputPath())
	if err != nil {
		return err
	}
	settings := task.Settings()
	want := ffprobe.Expectation{FPS: settings.FPS}
	if settings.UseFixedSize {
		want.Width = settings.Width
		want.Height = settings.Height
	}
	if settings.FPS > 0 {
		want.MinDuration = float64(settings.TotalTicks(len(task.Frames()))) / float64(settings.FPS)
	}
	return ffprobe.Verify(result, want)
}

type progressPrinter struct {
	out       io.Writer
	quiet     bool
	inline    bool
	lastShown int
}

func newProgressPrinter(out io.Writer, quiet bool) *progressPrinter {
	inline := false
	if f, ok := out.(*os.File); ok {
		inline = isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}
	return &progressPrinter{out: out, quiet: quiet, inline: inline, lastShown: -1}
}

func (p *progressPrinter) update(fraction float64) {
	if p.quiet {
		return
	}
	percent := int(fraction * 100)
	if p.inline {
		if percent != p.lastShown {
			fmt.Fprintf(p.out, "\rProgress: %3d%%", percent)
			p.lastShown = percent
		}
		return
	}
	bucket := percent / 25 * 25
	if bucket > p.lastShown {
		fmt.Fprintf(p.out, "Progress: %d%%\n", bucket)
		p.lastShown = bucket
	}
}

func (p *progressPrinter) finish() {
	if !p.quiet && p.inline && p.lastShown >= 0 {
		fmt.Fprintln(p.out)
	}
}

func newVideoListCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List rendered videos and their export status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			store, err := ctx.openStore()
			if err != nil {
				return err
			}
			cache := framecache.New(afero.NewOsFs(), cfg.Paths.FrameDir, ctx.loggerValue())
			names, err := cache.Videos()
			if err != nil {
				return err
			}
			type videoRow struct {
				Filename string           `json:"filename"`
				Activity study.ActivityID `json:"activity"`
				Start    string           `json:"treatment_start"`
				Exported bool             `json:"exported"`
			}
			listing := make([]videoRow, 0, len(names))
			for _, name := range names {
				activity, start, ok := framecache.FilenameComponents(name)
				if !ok {
					continue
				}
				exported, err := store.ExportStatus(cmd.Context(), name)
				if err != nil {
					return err
				}
				listing = append(listing, videoRow{
					Filename: name,
					Activity: activity,
					Start:    start.Local().Format(displayDateLayout),
					Exported: exported,
				})
			}
			if asJSON {
				return writeJSON(cmd, listing)
			}
			if len(listing) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No videos rendered")
				return nil
			}
			rows := make([][]string, 0, len(listing))
			for _, v := range listing {
				rows = append(rows, []string{v.Filename, v.Activity.Title(), v.Start, yesNo(v.Exported)})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"File", "Activity", "Treatment start", "Exported"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignCenter},
			))
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit JSON")
	return cmd
}

func newVideoExportCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "export <filename>",
		Short: "Mark a rendered video as exported",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			name := args[0]
			cache := framecache.New(afero.NewOsFs(), cfg.Paths.FrameDir, ctx.loggerValue())
			exists, err := afero.Exists(cache.Fs(), cache.Path(name))
			if err != nil {
				return err
			}
			if !exists {
				return fmt.Errorf("video %s not found in %s", name, cache.Dir())
			}
			tl, err := ctx.timeline()
			if err != nil {
				return err
			}
			defer tl.Close()
			if err := tl.MarkExported(cmd.Context(), name); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Marked %s exported\n", name)
			return nil
		},
	}
}
