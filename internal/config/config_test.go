package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"psorcast/internal/config"
)

func TestLoadDefaultConfigExpandsPaths(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Setenv("PSORCAST_NTFY_TOPIC", "")
	t.Chdir(tempHome)

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantData := filepath.Join(tempHome, ".local", "share", "psorcast")
	if cfg.Paths.DataDir != wantData {
		t.Fatalf("unexpected data dir: got %q want %q", cfg.Paths.DataDir, wantData)
	}
	if cfg.Paths.FrameDir != filepath.Join(wantData, "frames") {
		t.Fatalf("unexpected frame dir: %q", cfg.Paths.FrameDir)
	}
	if cfg.Video.FPS != 30 || cfg.Video.FramesPerImage != 30 || cfg.Video.FramesPerTransition != 10 {
		t.Fatalf("unexpected video timing defaults: %+v", cfg.Video)
	}
	if cfg.Video.Transition != "crossfade" {
		t.Fatalf("expected crossfade default, got %q", cfg.Video.Transition)
	}
	if cfg.FFmpegBinary() != "ffmpeg" || cfg.FFprobeBinary() != "ffprobe" {
		t.Fatalf("unexpected binaries: %q %q", cfg.FFmpegBinary(), cfg.FFprobeBinary())
	}
	if cfg.DatabasePath() != filepath.Join(wantData, "history.db") {
		t.Fatalf("unexpected database path: %q", cfg.DatabasePath())
	}
	if cfg.LockPath() != filepath.Join(wantData, "psorcastd.lock") {
		t.Fatalf("unexpected lock path: %q", cfg.LockPath())
	}

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories failed: %v", err)
	}
	for _, dir := range []string{cfg.Paths.DataDir, cfg.Paths.FrameDir, cfg.Paths.LogDir} {
		info, err := os.Stat(dir)
		if err != nil {
			t.Fatalf("expected directory %q to exist: %v", dir, err)
		}
		if !info.IsDir() {
			t.Fatalf("expected %q to be a directory", dir)
		}
	}
}

func TestLoadCustomConfig(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)

	configPath := filepath.Join(tempHome, "config.toml")
	payload := struct {
		Paths struct {
			DataDir  string `toml:"data_dir"`
			FrameDir string `toml:"frame_dir"`
		} `toml:"paths"`
		Video struct {
			FPS        int    `toml:"fps"`
			Transition string `toml:"transition"`
		} `toml:"video"`
		Logging struct {
			Format string `toml:"format"`
		} `toml:"logging"`
	}{}
	payload.Paths.DataDir = "~/study"
	payload.Paths.FrameDir = "~/study/frames"
	payload.Video.FPS = 15
	payload.Video.Transition = "Cross-Fade"
	payload.Logging.Format = "JSON"

	data, err := toml.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists || resolved != configPath {
		t.Fatalf("expected %q to be used, got %q (exists=%v)", configPath, resolved, exists)
	}
	if cfg.Paths.DataDir != filepath.Join(tempHome, "study") {
		t.Fatalf("unexpected data dir: %q", cfg.Paths.DataDir)
	}
	if cfg.Video.FPS != 15 {
		t.Fatalf("expected fps 15, got %d", cfg.Video.FPS)
	}
	if cfg.Video.Transition != "crossfade" {
		t.Fatalf("expected normalized transition, got %q", cfg.Video.Transition)
	}
	if cfg.Logging.Format != "json" {
		t.Fatalf("expected lowercased log format, got %q", cfg.Logging.Format)
	}
	if cfg.Video.FramesPerImage != config.Default().Video.FramesPerImage {
		t.Fatalf("expected default frames per image to survive partial config, got %d", cfg.Video.FramesPerImage)
	}
}

func TestNtfyTopicEnvFallback(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Setenv("PSORCAST_NTFY_TOPIC", " https://ntfy.example/study ")

	cfg, _, _, err := config.Load(filepath.Join(tempHome, "missing.toml"))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Notifications.NtfyTopic != "https://ntfy.example/study" {
		t.Fatalf("expected topic from env, got %q", cfg.Notifications.NtfyTopic)
	}
}

func TestValidateRejectsBadVideoSettings(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{"fps not dividing timescale", func(c *config.Config) { c.Video.FPS = 7 }, "video.fps"},
		{"zero fps", func(c *config.Config) { c.Video.FPS = 0 }, "video.fps"},
		{"zero frames per image", func(c *config.Config) { c.Video.FramesPerImage = 0 }, "video.frames_per_image"},
		{"negative transition frames", func(c *config.Config) { c.Video.FramesPerTransition = -1 }, "video.frames_per_transition"},
		{"unknown transition", func(c *config.Config) { c.Video.Transition = "wipe" }, "video.transition"},
		{"fixed size without dimensions", func(c *config.Config) {
			c.Video.FixedSize = true
			c.Video.Width = 0
		}, "video.width"},
		{"caption layout without verbs", func(c *config.Config) { c.Video.CaptionLayout = "none" }, "video.caption_layout"},
		{"monthly start week", func(c *config.Config) { c.Schedule.MonthlyStartWeek = 0 }, "schedule.monthly_start_week"},
		{"log format", func(c *config.Config) { c.Logging.Format = "xml" }, "logging.format"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := config.Default()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected %q in error, got %v", tc.want, err)
			}
		})
	}
}

func TestCreateSampleIsLoadable(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Setenv("PSORCAST_NTFY_TOPIC", "")

	target := filepath.Join(tempHome, "nested", "config.toml")
	if err := config.CreateSample(target); err != nil {
		t.Fatalf("CreateSample: %v", err)
	}
	cfg, _, exists, err := config.Load(target)
	if err != nil {
		t.Fatalf("Load sample: %v", err)
	}
	if !exists {
		t.Fatal("expected sample config to exist")
	}
	if cfg.Video.FooterText != "Psorcast" {
		t.Fatalf("unexpected footer text: %q", cfg.Video.FooterText)
	}
	if cfg.StallTimeout() <= 0 {
		t.Fatal("expected stall timeout from sample")
	}
}
