package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	DataDir  string `toml:"data_dir"`
	FrameDir string `toml:"frame_dir"`
	LogDir   string `toml:"log_dir"`
}

// Video contains timeline compositor settings.
type Video struct {
	FPS                 int    `toml:"fps"`
	FramesPerImage      int    `toml:"frames_per_image"`
	FramesPerTransition int    `toml:"frames_per_transition"`
	Transition          string `toml:"transition"`

	// Width and Height only apply when FixedSize is set; otherwise the canvas
	// is derived from the frames.
	Width     int  `toml:"width"`
	Height    int  `toml:"height"`
	FixedSize bool `toml:"fixed_size"`

	FooterText          string  `toml:"footer_text"`
	FontSize            float64 `toml:"font_size"`
	Padding             int     `toml:"padding"`
	CaptionLayout       string  `toml:"caption_layout"`
	StallTimeoutSeconds int     `toml:"stall_timeout_seconds"`
	FFmpegBinary        string  `toml:"ffmpeg_binary"`
	FFprobeBinary       string  `toml:"ffprobe_binary"`
	CRF                 int     `toml:"crf"`
	VerifyOutput        bool    `toml:"verify_output"`
}

// Schedule contains the cadence applied to monthly activities.
type Schedule struct {
	MonthlyStartWeek     int `toml:"monthly_start_week"`
	MonthlyIntervalWeeks int `toml:"monthly_interval_weeks"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	LastCall       bool   `toml:"last_call"`
	VideoReady     bool   `toml:"video_ready"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Daemon contains configuration for the frame watcher daemon.
type Daemon struct {
	DebounceMillis int    `toml:"debounce_millis"`
	LockFile       string `toml:"lock_file"`
}

// Config encapsulates all configuration values for psorcast.
//
// Configuration sections by subsystem:
//   - Paths: data, frame cache, and log directories
//   - Video: compositor timing, canvas, and encoder binaries
//   - Schedule: monthly cadence for non-predominant activities
//   - Notifications: ntfy reminder settings
//   - Logging: log format and level
//   - Daemon: frame watcher debounce and lock file
type Config struct {
	Paths         Paths         `toml:"paths"`
	Video         Video         `toml:"video"`
	Schedule      Schedule      `toml:"schedule"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
	Daemon        Daemon        `toml:"daemon"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("psorcast.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the data, frame, and log directories.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.FrameDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// DatabasePath returns the history database location.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Paths.DataDir, "history.db")
}

// LockPath returns the daemon single-instance lock file location.
func (c *Config) LockPath() string {
	if strings.TrimSpace(c.Daemon.LockFile) != "" {
		return c.Daemon.LockFile
	}
	return filepath.Join(c.Paths.DataDir, "psorcastd.lock")
}

// FFmpegBinary returns the ffmpeg executable used by the compositor.
func (c *Config) FFmpegBinary() string {
	if v := strings.TrimSpace(c.Video.FFmpegBinary); v != "" {
		return v
	}
	return "ffmpeg"
}

// FFprobeBinary returns the ffprobe executable used for output verification.
func (c *Config) FFprobeBinary() string {
	if v := strings.TrimSpace(c.Video.FFprobeBinary); v != "" {
		return v
	}
	return "ffprobe"
}

// StallTimeout returns the encoder stall timeout, or zero when disabled.
func (c *Config) StallTimeout() time.Duration {
	if c.Video.StallTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(c.Video.StallTimeoutSeconds) * time.Second
}

// Debounce returns the frame watcher debounce window.
func (c *Config) Debounce() time.Duration {
	return time.Duration(c.Daemon.DebounceMillis) * time.Millisecond
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
