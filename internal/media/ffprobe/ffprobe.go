package ffprobe

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os/exec"
	"strconv"
	"strings"

	"psorcast/internal/services"
)

var commandContext = exec.CommandContext

// Result is the subset of ffprobe JSON used to verify rendered timelines.
type Result struct {
	Streams []Stream `json:"streams"`
	Format  Format   `json:"format"`
}

// Stream describes a single stream in the container.
type Stream struct {
	Index        int    `json:"index"`
	CodecName    string `json:"codec_name"`
	CodecType    string `json:"codec_type"`
	PixFmt       string `json:"pix_fmt"`
	Width        int    `json:"width"`
	Height       int    `json:"height"`
	AvgFrameRate string `json:"avg_frame_rate"`
	NbFrames     string `json:"nb_frames"`
	Duration     string `json:"duration"`
}

// Format captures container-level metadata.
type Format struct {
	Filename   string `json:"filename"`
	Duration   string `json:"duration"`
	Size       string `json:"size"`
	FormatName string `json:"format_name"`
}

// Inspect runs ffprobe against path and decodes its JSON report.
func Inspect(ctx context.Context, binary string, path string) (Result, error) {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		binary = "ffprobe"
	}
	path = strings.TrimSpace(path)
	if path == "" {
		return Result{}, services.Wrap(services.ErrValidation, "ffprobe", "inspect", "empty path", nil)
	}

	cmd := commandContext(ctx, binary, "-v", "error", "-hide_banner", "-show_format", "-show_streams", "-of", "json", "--", path)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return Result{}, services.Wrap(services.ErrExternalTool, "ffprobe", "inspect", strings.TrimSpace(string(output)), err)
	}

	var result Result
	if err := json.Unmarshal(output, &result); err != nil {
		return Result{}, services.Wrap(services.ErrExternalTool, "ffprobe", "parse", "invalid json", err)
	}
	return result, nil
}

// VideoStream returns the first video stream.
func (r Result) VideoStream() (Stream, bool) {
	for _, stream := range r.Streams {
		if strings.EqualFold(stream.CodecType, "video") {
			return stream, true
		}
	}
	return Stream{}, false
}

// DurationSeconds returns the container duration, 0 when absent and NaN when
// unparseable.
func (r Result) DurationSeconds() float64 {
	return parseFloat(r.Format.Duration)
}

// FrameRate parses avg_frame_rate ("30/1") into frames per second.
func (s Stream) FrameRate() float64 {
	num, den, ok := strings.Cut(strings.TrimSpace(s.AvgFrameRate), "/")
	if !ok {
		return parseFloat(num)
	}
	n := parseFloat(num)
	d := parseFloat(den)
	if d == 0 || math.IsNaN(n) || math.IsNaN(d) {
		return 0
	}
	return n / d
}

// Expectation is what a rendered timeline should look like.
type Expectation struct {
	Width       int
	Height      int
	FPS         int
	MinDuration float64
}

// Verify checks r against want and reports every mismatch in one error.
func Verify(r Result, want Expectation) error {
	stream, ok := r.VideoStream()
	if !ok {
		return services.Wrap(services.ErrValidation, "ffprobe", "verify", "no video stream", nil)
	}
	var problems []string
	if want.Width > 0 && stream.Width != want.Width {
		problems = append(problems, fmt.Sprintf("width %d, want %d", stream.Width, want.Width))
	}
	if want.Height > 0 && stream.Height != want.Height {
		problems = append(problems, fmt.Sprintf("height %d, want %d", stream.Height, want.Height))
	}
	if want.FPS > 0 && math.Abs(stream.FrameRate()-float64(want.FPS)) > 0.01 {
		problems = append(problems, fmt.Sprintf("frame rate %s, want %d", stream.AvgFrameRate, want.FPS))
	}
	if want.MinDuration > 0 {
		got := r.DurationSeconds()
		if math.IsNaN(got) || got+1.0/float64(max(want.FPS, 1)) < want.MinDuration {
			problems = append(problems, fmt.Sprintf("duration %s, want at least %.3f", r.Format.Duration, want.MinDuration))
		}
	}
	if len(problems) > 0 {
		return services.Wrap(services.ErrValidation, "ffprobe", "verify", strings.Join(problems, "; "), nil)
	}
	return nil
}

func parseFloat(value string) float64 {
	cleaned := strings.TrimSpace(value)
	if cleaned == "" {
		return 0
	}
	if parsed, err := strconv.ParseFloat(cleaned, 64); err == nil {
		return parsed
	}
	return math.NaN()
}
