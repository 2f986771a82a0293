package config

const (
	defaultConfigPath           = "~/.config/psorcast/config.toml"
	defaultDataDir              = "~/.local/share/psorcast"
	defaultFrameDir             = "~/.local/share/psorcast/frames"
	defaultLogDir               = "~/.local/share/psorcast/logs"
	defaultFPS                  = 30
	defaultFramesPerImage       = 30
	defaultFramesPerTransition  = 10
	defaultTransition           = "crossfade"
	defaultWidth                = 1125
	defaultHeight               = 1383
	defaultFooterText           = "Psorcast"
	defaultFontSize             = 48
	defaultPadding              = 24
	defaultCaptionLayout        = "Jan 02, 2006"
	defaultStallTimeoutSeconds  = 120
	defaultCRF                  = 23
	defaultMonthlyStartWeek     = 2
	defaultMonthlyIntervalWeeks = 4
	defaultNotifyRequestTimeout = 10
	defaultLogFormat            = "console"
	defaultLogLevel             = "info"
	defaultDaemonDebounceMillis = 1500
	videoTimescale              = 600
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir:  defaultDataDir,
			FrameDir: defaultFrameDir,
			LogDir:   defaultLogDir,
		},
		Video: Video{
			FPS:                 defaultFPS,
			FramesPerImage:      defaultFramesPerImage,
			FramesPerTransition: defaultFramesPerTransition,
			Transition:          defaultTransition,
			Width:               defaultWidth,
			Height:              defaultHeight,
			FooterText:          defaultFooterText,
			FontSize:            defaultFontSize,
			Padding:             defaultPadding,
			CaptionLayout:       defaultCaptionLayout,
			StallTimeoutSeconds: defaultStallTimeoutSeconds,
			CRF:                 defaultCRF,
			VerifyOutput:        true,
		},
		Schedule: Schedule{
			MonthlyStartWeek:     defaultMonthlyStartWeek,
			MonthlyIntervalWeeks: defaultMonthlyIntervalWeeks,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyRequestTimeout,
			LastCall:       true,
			VideoReady:     true,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
		Daemon: Daemon{
			DebounceMillis: defaultDaemonDebounceMillis,
		},
	}
}
