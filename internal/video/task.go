package video

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/spf13/afero"

	"psorcast/internal/logging"
	"psorcast/internal/services"
)

// State is the lifecycle of a render task.
type State int32

const (
	StateCreated State = iota
	StateRendering
	StateCompleted
	StateCancelled
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateRendering:
		return "rendering"
	case StateCompleted:
		return "completed"
	case StateCancelled:
		return "cancelled"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transitions are possible.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateCancelled || s == StateFailed
}

var (
	ErrIllegalTransition = errors.New("illegal task state transition")
	ErrTooFewFrames      = errors.New("at least two frames are required")
	ErrCancelled         = errors.New("render cancelled")
	ErrEncoderStalled    = errors.New("encoder stalled")
	ErrNotReady          = errors.New("encoder not ready for another frame")
)

// Observer receives render callbacks. Calls arrive on the render goroutine.
type Observer interface {
	Progress(taskID string, fraction float64)
	Completed(taskID string, outputPath string)
}

// ObserverFuncs adapts closures to Observer. Nil fields are skipped.
type ObserverFuncs struct {
	OnProgress  func(taskID string, fraction float64)
	OnCompleted func(taskID string, outputPath string)
}

func (o ObserverFuncs) Progress(taskID string, fraction float64) {
	if o.OnProgress != nil {
		o.OnProgress(taskID, fraction)
	}
}

func (o ObserverFuncs) Completed(taskID string, outputPath string) {
	if o.OnCompleted != nil {
		o.OnCompleted(taskID, outputPath)
	}
}

// Task renders one timeline video.
type Task struct {
	id       string
	fs       afero.Fs
	frames   []RenderFrameURL
	settings RenderSettings
	encoder  Encoder
	observer Observer
	logger   *slog.Logger

	cancelled atomic.Bool
	frameNum  atomic.Int64

	mu       sync.Mutex
	state    State
	err      error
	stop     context.CancelFunc
	done     chan struct{}
	doneOnce sync.Once
}

// NewTask prepares a render. Nothing runs until Start or Render is called.
func NewTask(fs afero.Fs, frames []RenderFrameURL, settings RenderSettings, encoder Encoder, observer Observer, logger *slog.Logger) *Task {
	if observer == nil {
		observer = ObserverFuncs{}
	}
	id := uuid.NewString()
	return &Task{
		id:       id,
		fs:       fs,
		frames:   append([]RenderFrameURL(nil), frames...),
		settings: settings,
		encoder:  encoder,
		observer: observer,
		logger: logging.NewComponentLogger(logger, "video").With(
			logging.String(logging.FieldTaskID, id),
			logging.String("output", settings.OutputPath()),
		),
		done: make(chan struct{}),
	}
}

func (t *Task) ID() string               { return t.id }
func (t *Task) Settings() RenderSettings { return t.settings }
func (t *Task) OutputPath() string       { return t.settings.OutputPath() }
func (t *Task) Frames() []RenderFrameURL { return append([]RenderFrameURL(nil), t.frames...) }

// FrameNum is the current presentation cursor in frames.
func (t *Task) FrameNum() int64 { return t.frameNum.Load() }

// Done is closed once the task reaches a terminal state and every callback
// for it has returned.
func (t *Task) Done() <-chan struct{} { return t.done }

func (t *Task) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Err returns the terminal error, if any.
func (t *Task) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

// Cancelled reports whether Cancel has been called.
func (t *Task) Cancelled() bool { return t.cancelled.Load() }

// Cancel requests the render stop at the next frame boundary. A task that
// has not started moves straight to Cancelled.
func (t *Task) Cancel() {
	t.cancelled.Store(true)
	t.mu.Lock()
	stop := t.stop
	state := t.state
	t.mu.Unlock()
	if stop != nil {
		stop()
	}
	if state == StateCreated {
		if t.transition(StateCancelled, ErrCancelled) == nil {
			t.closeDone()
		}
	}
}

func legalTransition(from, to State) bool {
	switch from {
	case StateCreated:
		return to == StateRendering || to == StateCancelled || to == StateFailed
	case StateRendering:
		return to == StateCompleted || to == StateCancelled || to == StateFailed
	default:
		return false
	}
}

func (t *Task) transition(to State, err error) error {
	t.mu.Lock()
	from := t.state
	if !legalTransition(from, to) {
		t.mu.Unlock()
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, from, to)
	}
	t.state = to
	if err != nil {
		t.err = err
	}
	t.mu.Unlock()
	return nil
}

func (t *Task) closeDone() {
	t.doneOnce.Do(func() { close(t.done) })
}

func (t *Task) begin(ctx context.Context) (context.Context, error) {
	if err := t.transition(StateRendering, nil); err != nil {
		return nil, err
	}
	runCtx, stop := context.WithCancel(ctx)
	t.mu.Lock()
	t.stop = stop
	t.mu.Unlock()
	return runCtx, nil
}

// Start renders on a new goroutine. It fails only if the task already left
// the Created state.
func (t *Task) Start(ctx context.Context) error {
	runCtx, err := t.begin(ctx)
	if err != nil {
		return err
	}
	go func() {
		_ = t.run(runCtx)
	}()
	return nil
}

// Render runs the task on the calling goroutine and returns its terminal error.
func (t *Task) Render(ctx context.Context) error {
	runCtx, err := t.begin(ctx)
	if err != nil {
		return err
	}
	return t.run(runCtx)
}

func (t *Task) fail(err error) error {
	logging.ErrorWithContext(t.logger, "timeline render failed", "render_failed",
		logging.Error(err),
		logging.String(logging.FieldErrorHint, "check ffmpeg and the frame cache"),
	)
	_ = t.transition(StateFailed, err)
	return err
}

func (t *Task) cancel() error {
	t.encoder.Abort()
	t.logger.Info("timeline render cancelled", logging.Int64("frame_num", t.frameNum.Load()))
	_ = t.transition(StateCancelled, ErrCancelled)
	return ErrCancelled
}

func (t *Task) stopRequested(ctx context.Context) bool {
	return t.cancelled.Load() || ctx.Err() != nil
}

// waitReady bounds one encoder wait by the stall timeout.
func (t *Task) waitReady(ctx context.Context) error {
	waitCtx := ctx
	if t.settings.StallTimeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, t.settings.StallTimeout)
		defer cancel()
	}
	err := t.encoder.WaitReady(waitCtx)
	if err == nil {
		return nil
	}
	if t.stopRequested(ctx) {
		return ErrCancelled
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return services.Wrap(services.ErrTimeout, "video", "wait for encoder",
			fmt.Sprintf("no slot within %s", t.settings.StallTimeout), ErrEncoderStalled)
	}
	return err
}

func (t *Task) progress(total int64) {
	fraction := 1.0
	if total > 0 {
		fraction = float64(t.frameNum.Load()) / float64(total)
	}
	if fraction > 1 {
		fraction = 1
	}
	t.observer.Progress(t.id, fraction)
}

func (t *Task) run(ctx context.Context) error {
	defer t.closeDone()
	defer func() {
		t.mu.Lock()
		stop := t.stop
		t.mu.Unlock()
		if stop != nil {
			stop()
		}
	}()

	if len(t.frames) < 2 {
		return t.fail(fmt.Errorf("%w: got %d", ErrTooFewFrames, len(t.frames)))
	}

	output := t.settings.OutputPath()
	if err := t.fs.Remove(output); err != nil && !errors.Is(err, os.ErrNotExist) {
		return t.fail(fmt.Errorf("remove previous output: %w", err))
	}

	face, err := newFace(t.settings.FontSize)
	if err != nil {
		return t.fail(err)
	}
	defer face.Close()

	layout, err := computeLayout(t.fs, t.frames, t.settings, face)
	if err != nil {
		return t.fail(fmt.Errorf("compute canvas: %w", err))
	}
	if err := t.encoder.Start(ctx, layout.size); err != nil {
		if t.stopRequested(ctx) {
			return t.cancel()
		}
		return t.fail(services.Wrap(services.ErrExternalTool, "video", "start encoder", "", err))
	}

	n := len(t.frames)
	perImage := int64(t.settings.FramesPerImage)
	transition := t.settings.transitionFrames()
	total := t.settings.TotalTicks(n)
	frameDuration := t.settings.FrameDuration()

	t.logger.Info("timeline render started",
		logging.Int("frames", n),
		logging.Int("width", layout.size.X),
		logging.Int("height", layout.size.Y),
		logging.Int64("total_ticks", total),
	)

	load := func(i int) (*image.RGBA, error) {
		img, err := t.frames[i].Load(t.fs)
		if err != nil {
			return nil, err
		}
		return composePlate(img, layout, t.settings.FooterText, face), nil
	}
	appendFrame := func(plate *image.RGBA) error {
		if t.stopRequested(ctx) {
			return ErrCancelled
		}
		if err := t.waitReady(ctx); err != nil {
			return err
		}
		return t.encoder.Append(plate, t.frameNum.Load()*frameDuration)
	}
	handle := func(err error) error {
		if errors.Is(err, ErrCancelled) {
			return t.cancel()
		}
		t.encoder.Abort()
		return t.fail(err)
	}

	var (
		next    *image.RGBA
		scratch *image.RGBA
	)
	for i := 0; i < n; i++ {
		if t.stopRequested(ctx) {
			return t.cancel()
		}

		cur := next
		next = nil
		if cur == nil {
			plate, err := load(i)
			if err != nil {
				logging.WarnWithContext(t.logger, "skipping unreadable frame", "frame_unreadable",
					logging.String("frame", t.frames[i].Path),
					logging.Error(err),
					logging.String(logging.FieldImpact, "frame omitted from timeline"),
				)
				continue
			}
			cur = plate
		}

		if err := appendFrame(cur); err != nil {
			return handle(err)
		}
		t.frameNum.Add(perImage)
		t.progress(total)

		last := i == n-1
		if !last && transition > 0 {
			plate, err := load(i + 1)
			if err != nil {
				logging.WarnWithContext(t.logger, "skipping transition into unreadable frame", "frame_unreadable",
					logging.String("frame", t.frames[i+1].Path),
					logging.Error(err),
					logging.String(logging.FieldImpact, "transition omitted from timeline"),
				)
			} else {
				next = plate
				if scratch == nil {
					scratch = image.NewRGBA(cur.Bounds())
				}
				for k := 1; k <= transition; k++ {
					crossfade(scratch, cur, next, float64(k)/float64(transition))
					if err := appendFrame(scratch); err != nil {
						return handle(err)
					}
					t.frameNum.Add(1)
					t.progress(total)
				}
			}
		}

		if last {
			if err := appendFrame(cur); err != nil {
				return handle(err)
			}
		}
	}

	finishCtx := ctx
	if t.settings.StallTimeout > 0 {
		var cancel context.CancelFunc
		finishCtx, cancel = context.WithTimeout(ctx, t.settings.StallTimeout)
		defer cancel()
	}
	if err := t.encoder.Finish(finishCtx); err != nil {
		if t.stopRequested(ctx) {
			return t.cancel()
		}
		if errors.Is(err, context.DeadlineExceeded) {
			err = services.Wrap(services.ErrTimeout, "video", "finish encoder", "", ErrEncoderStalled)
		}
		t.encoder.Abort()
		return t.fail(err)
	}

	if err := t.transition(StateCompleted, nil); err != nil {
		return err
	}
	t.observer.Progress(t.id, 1.0)
	t.logger.Info("timeline render completed", logging.Int64("frame_num", t.frameNum.Load()))
	t.observer.Completed(t.id, output)
	return nil
}
