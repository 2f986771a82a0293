package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeVideo()
	c.normalizeNotifications()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.FrameDir) == "" {
		c.Paths.FrameDir = defaultFrameDir
	}
	if c.Paths.FrameDir, err = expandPath(c.Paths.FrameDir); err != nil {
		return fmt.Errorf("paths.frame_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if strings.TrimSpace(c.Daemon.LockFile) != "" {
		if c.Daemon.LockFile, err = expandPath(c.Daemon.LockFile); err != nil {
			return fmt.Errorf("daemon.lock_file: %w", err)
		}
	}
	return nil
}

func (c *Config) normalizeVideo() {
	c.Video.Transition = strings.ToLower(strings.TrimSpace(c.Video.Transition))
	if c.Video.Transition == "" {
		c.Video.Transition = defaultTransition
	}
	if c.Video.Transition == "cross_fade" || c.Video.Transition == "cross-fade" {
		c.Video.Transition = "crossfade"
	}
	if strings.TrimSpace(c.Video.CaptionLayout) == "" {
		c.Video.CaptionLayout = defaultCaptionLayout
	}
	c.Video.FFmpegBinary = strings.TrimSpace(c.Video.FFmpegBinary)
	c.Video.FFprobeBinary = strings.TrimSpace(c.Video.FFprobeBinary)
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.NtfyTopic == "" {
		if value, ok := os.LookupEnv("PSORCAST_NTFY_TOPIC"); ok {
			c.Notifications.NtfyTopic = strings.TrimSpace(value)
		}
	}
	if c.Notifications.RequestTimeout <= 0 {
		c.Notifications.RequestTimeout = defaultNotifyRequestTimeout
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
