package video_test

import (
	"context"
	"errors"
	"image/color"
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"

	"psorcast/internal/testsupport"
	"psorcast/internal/video"
)

type recordingObserver struct {
	mu         sync.Mutex
	progress   []float64
	completed  []string
	onProgress func(float64)
}

func (o *recordingObserver) Progress(_ string, fraction float64) {
	o.mu.Lock()
	o.progress = append(o.progress, fraction)
	hook := o.onProgress
	o.mu.Unlock()
	if hook != nil {
		hook(fraction)
	}
}

func (o *recordingObserver) Completed(_ string, outputPath string) {
	o.mu.Lock()
	o.completed = append(o.completed, outputPath)
	o.mu.Unlock()
}

func (o *recordingObserver) snapshot() ([]float64, []string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]float64(nil), o.progress...), append([]string(nil), o.completed...)
}

var palette = []color.RGBA{
	{R: 255, A: 255},
	{B: 255, A: 255},
	{G: 255, A: 255},
	{R: 255, G: 255, A: 255},
}

func writeFrames(t *testing.T, fs afero.Fs, n int) []video.RenderFrameURL {
	t.Helper()
	frames := make([]video.RenderFrameURL, 0, n)
	for i := 0; i < n; i++ {
		path := "/frames/" + string(rune('a'+i)) + ".png"
		testsupport.WriteImage(t, fs, path, 200, 160, palette[i%len(palette)])
		frames = append(frames, video.RenderFrameURL{Path: path, Text: "Mar 2" + string(rune('0'+i)) + ", 2020"})
	}
	return frames
}

func testSettings() video.RenderSettings {
	s := video.DefaultRenderSettings()
	s.FPS = 30
	s.FramesPerImage = 30
	s.FramesPerTransition = 10
	s.Dir = "/out"
	s.Filename = "walkingTask_2020-03-25T00:00:00.000+0000"
	s.FontSize = 12
	s.Padding = 4
	return s
}

func TestRenderDeterministicTiming(t *testing.T) {
	fs := afero.NewMemMapFs()
	frames := writeFrames(t, fs, 3)
	testsupport.WriteFile(t, fs, testSettings().OutputPath(), 16)

	encoder := video.NewRecordingEncoder()
	observer := &recordingObserver{}
	task := video.NewTask(fs, frames, testSettings(), encoder, observer, nil)

	if err := task.Render(context.Background()); err != nil {
		t.Fatalf("Render: %v", err)
	}
	if task.State() != video.StateCompleted {
		t.Fatalf("state %s", task.State())
	}
	if exists, _ := afero.Exists(fs, testSettings().OutputPath()); exists {
		t.Fatal("previous output should be removed before rendering")
	}

	recorded := encoder.Frames()
	if len(recorded) != 3+2*10+1 {
		t.Fatalf("expected 24 samples, got %d", len(recorded))
	}
	if recorded[0].PTS != 0 {
		t.Fatalf("first pts %d", recorded[0].PTS)
	}
	for i := 1; i < len(recorded); i++ {
		if recorded[i].PTS <= recorded[i-1].PTS {
			t.Fatalf("pts not increasing at %d: %d then %d", i, recorded[i-1].PTS, recorded[i].PTS)
		}
	}
	if got, want := recorded[len(recorded)-1].PTS, int64((3*30+2*10)*20); got != want {
		t.Fatalf("final pts %d want %d", got, want)
	}
	if got := task.FrameNum(); got != testSettings().TotalTicks(3) {
		t.Fatalf("frame cursor %d want %d", got, testSettings().TotalTicks(3))
	}

	size := encoder.Size()
	if size.X != 200 || size.X%2 != 0 || size.Y%2 != 0 || size.Y <= 160 {
		t.Fatalf("unexpected canvas %v", size)
	}

	progress, completed := observer.snapshot()
	if len(completed) != 1 || completed[0] != testSettings().OutputPath() {
		t.Fatalf("unexpected completion %v", completed)
	}
	for i := 1; i < len(progress); i++ {
		if progress[i] < progress[i-1] {
			t.Fatalf("progress went backwards: %v", progress)
		}
	}
	if progress[len(progress)-1] != 1.0 {
		t.Fatalf("final progress %f", progress[len(progress)-1])
	}
	select {
	case <-task.Done():
	default:
		t.Fatal("done channel should be closed")
	}
}

func TestCrossfadeSamples(t *testing.T) {
	fs := afero.NewMemMapFs()
	frames := writeFrames(t, fs, 2)
	settings := testSettings()
	settings.FramesPerTransition = 4

	encoder := video.NewRecordingEncoder()
	task := video.NewTask(fs, frames, settings, encoder, nil, nil)
	if err := task.Render(context.Background()); err != nil {
		t.Fatalf("Render: %v", err)
	}

	recorded := encoder.Frames()
	if len(recorded) != 2+4+1 {
		t.Fatalf("expected 7 samples, got %d", len(recorded))
	}
	assertColor(t, recorded[0].Center, color.RGBA{R: 255, A: 255})
	assertColor(t, recorded[2].Center, color.RGBA{R: 128, G: 64, B: 128, A: 255})
	assertColor(t, recorded[4].Center, color.RGBA{B: 255, A: 255})
	assertColor(t, recorded[5].Center, color.RGBA{B: 255, A: 255})
	for i := 1; i <= 4; i++ {
		if recorded[i].PTS != int64(30+i-1)*20 {
			t.Fatalf("transition %d pts %d", i, recorded[i].PTS)
		}
	}
}

func TestRenderWithoutTransition(t *testing.T) {
	fs := afero.NewMemMapFs()
	frames := writeFrames(t, fs, 3)
	settings := testSettings()
	settings.Transition = video.TransitionNone

	encoder := video.NewRecordingEncoder()
	if err := video.NewTask(fs, frames, settings, encoder, nil, nil).Render(context.Background()); err != nil {
		t.Fatalf("Render: %v", err)
	}
	recorded := encoder.Frames()
	want := []int64{0, 600, 1200, 1800}
	if len(recorded) != len(want) {
		t.Fatalf("expected %d samples, got %d", len(want), len(recorded))
	}
	for i, pts := range want {
		if recorded[i].PTS != pts {
			t.Fatalf("sample %d pts %d want %d", i, recorded[i].PTS, pts)
		}
	}
}

func TestRenderSkipsUnreadableFrame(t *testing.T) {
	fs := afero.NewMemMapFs()
	frames := writeFrames(t, fs, 3)
	if err := fs.Remove(frames[1].Path); err != nil {
		t.Fatal(err)
	}
	if err := afero.WriteFile(fs, frames[1].Path, []byte("not an image"), 0o644); err != nil {
		t.Fatal(err)
	}

	encoder := video.NewRecordingEncoder()
	task := video.NewTask(fs, frames, testSettings(), encoder, nil, nil)
	if err := task.Render(context.Background()); err != nil {
		t.Fatalf("Render: %v", err)
	}
	recorded := encoder.Frames()
	want := []int64{0, 30 * 20, 60 * 20}
	if len(recorded) != len(want) {
		t.Fatalf("expected %d samples, got %d", len(want), len(recorded))
	}
	for i, pts := range want {
		if recorded[i].PTS != pts {
			t.Fatalf("sample %d pts %d want %d", i, recorded[i].PTS, pts)
		}
	}
}

func TestRenderTooFewFrames(t *testing.T) {
	fs := afero.NewMemMapFs()
	frames := writeFrames(t, fs, 1)
	encoder := video.NewRecordingEncoder()
	observer := &recordingObserver{}
	task := video.NewTask(fs, frames, testSettings(), encoder, observer, nil)

	err := task.Render(context.Background())
	if !errors.Is(err, video.ErrTooFewFrames) {
		t.Fatalf("expected ErrTooFewFrames, got %v", err)
	}
	if task.State() != video.StateFailed {
		t.Fatalf("state %s", task.State())
	}
	if encoder.Started() {
		t.Fatal("encoder must not start")
	}
	if _, completed := observer.snapshot(); len(completed) != 0 {
		t.Fatal("completion must not fire")
	}
}

func TestCancelDuringRender(t *testing.T) {
	fs := afero.NewMemMapFs()
	frames := writeFrames(t, fs, 3)
	encoder := video.NewRecordingEncoder()
	observer := &recordingObserver{}
	task := video.NewTask(fs, frames, testSettings(), encoder, observer, nil)
	observer.onProgress = func(float64) { task.Cancel() }

	err := task.Render(context.Background())
	if !errors.Is(err, video.ErrCancelled) {
		t.Fatalf("expected ErrCancelled, got %v", err)
	}
	if task.State() != video.StateCancelled {
		t.Fatalf("state %s", task.State())
	}
	progress, completed := observer.snapshot()
	if len(progress) != 1 {
		t.Fatalf("expected exactly one progress event, got %d", len(progress))
	}
	if len(completed) != 0 {
		t.Fatal("completion must not fire after cancel")
	}
	if !encoder.Aborted() || encoder.Finished() {
		t.Fatal("encoder should be aborted, not finished")
	}
	if len(encoder.Frames()) != 1 {
		t.Fatalf("expected one appended frame, got %d", len(encoder.Frames()))
	}
}

func TestCancelBeforeStart(t *testing.T) {
	fs := afero.NewMemMapFs()
	task := video.NewTask(fs, writeFrames(t, fs, 2), testSettings(), video.NewRecordingEncoder(), nil, nil)
	task.Cancel()
	if task.State() != video.StateCancelled {
		t.Fatalf("state %s", task.State())
	}
	select {
	case <-task.Done():
	default:
		t.Fatal("done should be closed")
	}
	if err := task.Start(context.Background()); !errors.Is(err, video.ErrIllegalTransition) {
		t.Fatalf("expected illegal transition, got %v", err)
	}
}

func TestStartRunsInBackground(t *testing.T) {
	fs := afero.NewMemMapFs()
	encoder := video.NewRecordingEncoder()
	task := video.NewTask(fs, writeFrames(t, fs, 2), testSettings(), encoder, nil, nil)
	if err := task.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	select {
	case <-task.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("render did not finish")
	}
	if task.State() != video.StateCompleted || task.Err() != nil {
		t.Fatalf("state %s err %v", task.State(), task.Err())
	}
	if err := task.Start(context.Background()); !errors.Is(err, video.ErrIllegalTransition) {
		t.Fatalf("second Start should fail, got %v", err)
	}
}

func TestEncoderStartFailure(t *testing.T) {
	fs := afero.NewMemMapFs()
	encoder := video.NewRecordingEncoder()
	encoder.StartErr = errors.New("no encoder")
	observer := &recordingObserver{}
	task := video.NewTask(fs, writeFrames(t, fs, 2), testSettings(), encoder, observer, nil)

	if err := task.Render(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if task.State() != video.StateFailed {
		t.Fatalf("state %s", task.State())
	}
	if _, completed := observer.snapshot(); len(completed) != 0 {
		t.Fatal("completion must not fire")
	}
}

func TestEncoderStall(t *testing.T) {
	fs := afero.NewMemMapFs()
	encoder := video.NewRecordingEncoder()
	encoder.Gate = make(chan struct{})
	settings := testSettings()
	settings.StallTimeout = 20 * time.Millisecond
	task := video.NewTask(fs, writeFrames(t, fs, 2), settings, encoder, nil, nil)

	err := task.Render(context.Background())
	if !errors.Is(err, video.ErrEncoderStalled) {
		t.Fatalf("expected stall, got %v", err)
	}
	if task.State() != video.StateFailed {
		t.Fatalf("state %s", task.State())
	}
	if !encoder.Aborted() {
		t.Fatal("stalled encoder should be aborted")
	}
}

func TestRenderSettings(t *testing.T) {
	s := video.DefaultRenderSettings()
	if s.FPS != 15 || s.FramesPerImage != 30 || s.FramesPerTransition != 5 || s.Transition != video.TransitionCrossfade {
		t.Fatalf("unexpected defaults %+v", s)
	}
	if s.Width != 1125 || s.Height != 1383 || s.Ext != ".mp4" {
		t.Fatalf("unexpected canvas defaults %+v", s)
	}
	s.Dir = "/videos"
	s.Filename = "walkingTask_x"
	if s.OutputPath() != "/videos/walkingTask_x.mp4" {
		t.Fatalf("OutputPath %q", s.OutputPath())
	}
	s.Filename = "walkingTask_x.mp4"
	if s.OutputPath() != "/videos/walkingTask_x.mp4" {
		t.Fatalf("OutputPath should not double the extension: %q", s.OutputPath())
	}
	if s.FrameDuration() != 40 {
		t.Fatalf("FrameDuration %d", s.FrameDuration())
	}
	if s.TotalTicks(3) != 3*30+2*5 {
		t.Fatalf("TotalTicks %d", s.TotalTicks(3))
	}
	s.Transition = video.TransitionNone
	if s.TotalTicks(3) != 90 {
		t.Fatalf("TotalTicks without transition %d", s.TotalTicks(3))
	}
}

func TestSettingsFromConfig(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	s := video.SettingsFromConfig(cfg)
	if s.FPS != 30 || s.FramesPerImage != 30 || s.FramesPerTransition != 10 {
		t.Fatalf("unexpected timing %+v", s)
	}
	if s.Dir != cfg.Paths.FrameDir {
		t.Fatalf("Dir %q", s.Dir)
	}
	if s.StallTimeout != cfg.StallTimeout() {
		t.Fatalf("StallTimeout %s", s.StallTimeout)
	}
}

func assertColor(t *testing.T, got, want color.RGBA) {
	t.Helper()
	diff := func(a, b uint8) int {
		if a > b {
			return int(a - b)
		}
		return int(b - a)
	}
	if diff(got.R, want.R) > 2 || diff(got.G, want.G) > 2 || diff(got.B, want.B) > 2 {
		t.Fatalf("color %v want %v", got, want)
	}
}
