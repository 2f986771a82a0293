package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/afero"

	"psorcast/internal/config"
	"psorcast/internal/daemon"
	"psorcast/internal/framecache"
	"psorcast/internal/history"
	"psorcast/internal/logging"
	"psorcast/internal/preflight"
	"psorcast/internal/reminders"
	"psorcast/internal/timeline"
	"psorcast/internal/video"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel    string
	Development bool
}

// Run starts the psorcast daemon and blocks until SIGINT, SIGTERM or ctx
// cancellation.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	level := opts.LogLevel
	if level == "" {
		level = cfg.Logging.Level
	}
	logPath := filepath.Join(cfg.Paths.LogDir, "psorcastd.log")
	logger, err := logging.New(logging.Options{
		Level:       level,
		Format:      cfg.Logging.Format,
		OutputPaths: []string{"stderr", logPath},
		Development: opts.Development,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	if failed := preflight.Failed(preflight.RunAll(signalCtx, cfg)); len(failed) > 0 {
		for _, r := range failed {
			logging.ErrorWithContext(logger, "preflight check failed", "preflight_failed",
				logging.String("check", r.Name),
				logging.String("detail", r.Detail),
				logging.String(logging.FieldErrorHint, "run psorcast status for details"),
			)
		}
		return fmt.Errorf("preflight failed: %d check(s)", len(failed))
	}
	logDependencySnapshot(logger, cfg)

	pidPath := filepath.Join(cfg.Paths.LogDir, "psorcastd.pid")
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	store, err := history.Open(cfg)
	if err != nil {
		logger.Error("open history store", logging.Error(err))
		return err
	}
	defer store.Close()

	manager, err := NewTimeline(cfg, store, logger)
	if err != nil {
		return err
	}
	notifier := reminders.NewService(cfg, logger)

	d, err := daemon.New(cfg, manager, store, notifier, logger)
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}
	if err := d.Start(signalCtx); err != nil {
		logging.WarnWithContext(logger, "daemon start failed", "daemon_start_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check the lock file and frame directory"),
		)
		return err
	}
	defer d.Stop()

	<-signalCtx.Done()
	logger.Info("psorcast daemon shutting down")
	return nil
}

// NewTimeline wires a timeline.Manager over the on-disk frame cache with the
// ffmpeg encoder. The CLI uses it too.
func NewTimeline(cfg *config.Config, store *history.Store, logger *slog.Logger) (*timeline.Manager, error) {
	cache := framecache.New(afero.NewOsFs(), cfg.Paths.FrameDir, logger)
	encoderLogger := logging.NewComponentLogger(logger, "ffmpeg")
	return timeline.New(timeline.Options{
		Cache:      cache,
		Treatments: store,
		History:    store,
		Encoders: func(settings video.RenderSettings) video.Encoder {
			return video.NewFFmpegEncoder(settings,
				video.WithFFmpegBinary(cfg.FFmpegBinary()),
				video.WithCRF(cfg.Video.CRF),
				video.WithEncoderLogger(encoderLogger),
			)
		},
		Settings:      video.SettingsFromConfig(cfg),
		CaptionLayout: cfg.Video.CaptionLayout,
		Logger:        logger,
	})
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}

func logDependencySnapshot(logger *slog.Logger, cfg *config.Config) {
	if logger == nil || cfg == nil {
		return
	}
	attrs := []logging.Attr{logging.String(logging.FieldEventType, "dependency_snapshot")}
	for _, status := range preflight.CheckSystemDeps(context.Background(), cfg) {
		key := strings.ToLower(strings.ReplaceAll(status.Name, " ", "_"))
		attrs = append(attrs, logging.Bool(key+"_available", status.Available))
		if status.Resolved != "" {
			attrs = append(attrs, logging.String(key+"_binary", status.Resolved))
		}
	}
	attrs = append(attrs,
		logging.Bool("ntfy_configured", cfg.Notifications.NtfyTopic != ""),
		logging.String("frame_dir", cfg.Paths.FrameDir),
	)
	logger.Info("dependency snapshot", logging.Args(attrs...)...)
}
