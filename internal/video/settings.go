package video

import (
	"path/filepath"
	"strings"
	"time"

	"psorcast/internal/config"
)

// Timescale is the number of presentation ticks per second.
const Timescale = 600

// Transition selects how consecutive frames are joined.
type Transition string

const (
	TransitionCrossfade Transition = "crossfade"
	TransitionNone      Transition = "none"
)

// RenderSettings controls one timeline render.
type RenderSettings struct {
	// Width and Height are only honoured when UseFixedSize is set. Otherwise
	// the canvas is derived from the first frame.
	Width        int
	Height       int
	UseFixedSize bool

	FPS                 int
	FramesPerImage      int
	FramesPerTransition int
	Transition          Transition

	Dir      string
	Filename string
	Ext      string

	FooterText string
	FontSize   float64
	Padding    int

	// StallTimeout bounds each wait on the encoder. Zero disables it.
	StallTimeout time.Duration
}

// DefaultRenderSettings returns the compositor defaults.
func DefaultRenderSettings() RenderSettings {
	return RenderSettings{
		Width:               1125,
		Height:              1383,
		FPS:                 15,
		FramesPerImage:      30,
		FramesPerTransition: 5,
		Transition:          TransitionCrossfade,
		Ext:                 ".mp4",
		FontSize:            48,
		Padding:             24,
	}
}

// SettingsFromConfig builds the settings used for treatment videos.
func SettingsFromConfig(cfg *config.Config) RenderSettings {
	s := DefaultRenderSettings()
	if cfg == nil {
		return s
	}
	v := cfg.Video
	s.Width = v.Width
	s.Height = v.Height
	s.UseFixedSize = v.FixedSize
	s.FPS = v.FPS
	s.FramesPerImage = v.FramesPerImage
	s.FramesPerTransition = v.FramesPerTransition
	s.Transition = Transition(v.Transition)
	s.Dir = cfg.Paths.FrameDir
	s.FooterText = v.FooterText
	s.FontSize = v.FontSize
	s.Padding = v.Padding
	s.StallTimeout = cfg.StallTimeout()
	return s
}

// OutputPath returns Dir/Filename+Ext. A Filename that already carries Ext
// is not extended twice.
func (s RenderSettings) OutputPath() string {
	ext := s.Ext
	if ext == "" {
		ext = ".mp4"
	}
	name := s.Filename
	if !strings.HasSuffix(name, ext) {
		name += ext
	}
	return filepath.Join(s.Dir, name)
}

// FrameDuration is the length of one output frame in ticks.
func (s RenderSettings) FrameDuration() int64 {
	if s.FPS <= 0 {
		return Timescale
	}
	return int64(Timescale / s.FPS)
}

func (s RenderSettings) transitionFrames() int {
	if s.Transition != TransitionCrossfade || s.FramesPerTransition < 0 {
		return 0
	}
	return s.FramesPerTransition
}

// TotalTicks is the frame cursor value after n frames have been written.
func (s RenderSettings) TotalTicks(n int) int64 {
	if n <= 0 {
		return 0
	}
	return int64(n*s.FramesPerImage + (n-1)*s.transitionFrames())
}
