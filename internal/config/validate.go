package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateVideo(); err != nil {
		return err
	}
	if err := c.validateSchedule(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	if err := c.validateDaemon(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateVideo() error {
	v := c.Video
	if v.FPS <= 0 || v.FPS > videoTimescale {
		return fmt.Errorf("video.fps must be between 1 and %d", videoTimescale)
	}
	if videoTimescale%v.FPS != 0 {
		return fmt.Errorf("video.fps must divide %d evenly (got %d)", videoTimescale, v.FPS)
	}
	if v.FramesPerImage <= 0 {
		return errors.New("video.frames_per_image must be positive")
	}
	if v.FramesPerTransition < 0 {
		return errors.New("video.frames_per_transition must be >= 0")
	}
	switch v.Transition {
	case "crossfade", "none":
	default:
		return fmt.Errorf("video.transition: unsupported value %q (want crossfade or none)", v.Transition)
	}
	if v.FixedSize && (v.Width <= 0 || v.Height <= 0) {
		return errors.New("video.width and video.height must be positive when fixed_size is enabled")
	}
	if v.FontSize <= 0 {
		return errors.New("video.font_size must be positive")
	}
	if v.Padding < 0 {
		return errors.New("video.padding must be >= 0")
	}
	if v.CRF < 0 || v.CRF > 51 {
		return errors.New("video.crf must be between 0 and 51")
	}
	if v.StallTimeoutSeconds < 0 {
		return errors.New("video.stall_timeout_seconds must be >= 0")
	}
	sample := time.Date(2020, time.March, 25, 0, 0, 0, 0, time.UTC).Format(v.CaptionLayout)
	if strings.TrimSpace(sample) == "" || sample == v.CaptionLayout {
		return fmt.Errorf("video.caption_layout %q does not contain a Go time layout", v.CaptionLayout)
	}
	return nil
}

func (c *Config) validateSchedule() error {
	if c.Schedule.MonthlyStartWeek < 1 {
		return errors.New("schedule.monthly_start_week must be >= 1")
	}
	if c.Schedule.MonthlyIntervalWeeks < 1 {
		return errors.New("schedule.monthly_interval_weeks must be >= 1")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	return nil
}

func (c *Config) validateDaemon() error {
	if c.Daemon.DebounceMillis < 0 {
		return errors.New("daemon.debounce_millis must be >= 0")
	}
	return nil
}
