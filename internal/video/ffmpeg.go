package video

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"

	"psorcast/internal/logging"
	"psorcast/internal/services"
)

var commandContext = exec.CommandContext

const defaultQueueDepth = 4

// FFmpegOption configures an FFmpegEncoder.
type FFmpegOption func(*FFmpegEncoder)

// WithFFmpegBinary overrides the ffmpeg executable.
func WithFFmpegBinary(binary string) FFmpegOption {
	return func(e *FFmpegEncoder) {
		if strings.TrimSpace(binary) != "" {
			e.binary = binary
		}
	}
}

// WithCRF sets the x264 constant rate factor.
func WithCRF(crf int) FFmpegOption {
	return func(e *FFmpegEncoder) {
		e.crf = crf
	}
}

// WithQueueDepth sets how many frames may be buffered ahead of ffmpeg.
func WithQueueDepth(depth int) FFmpegOption {
	return func(e *FFmpegEncoder) {
		if depth > 0 {
			e.depth = depth
		}
	}
}

// WithEncoderLogger attaches a logger.
func WithEncoderLogger(logger *slog.Logger) FFmpegOption {
	return func(e *FFmpegEncoder) {
		e.logger = logging.NewComponentLogger(logger, "ffmpeg")
	}
}

type queuedFrame struct {
	buf   []byte
	index int64
}

// FFmpegEncoder pipes raw RGBA frames into an ffmpeg child process that
// writes H.264 MP4. Presentation times are mapped to output frame indexes;
// gaps are filled by repeating the previous frame.
//
// ffmpeg writes to a hidden partial file next to the output, which Finish
// renames into place. Abort only ever removes that partial file, so an
// encoder that is torn down late cannot clobber a newer render of the same
// output.
type FFmpegEncoder struct {
	binary        string
	output        string
	partial       string
	fps           int
	crf           int
	depth         int
	frameDuration int64
	logger        *slog.Logger

	size   image.Point
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stderr *tailBuffer

	slots   chan []byte
	queue   chan queuedFrame
	dead    chan struct{}
	written chan struct{}

	mu        sync.Mutex
	reserved  [][]byte
	writeErr  error
	closeOnce sync.Once
	abortOnce sync.Once
}

// NewFFmpegEncoder returns an encoder writing to settings.OutputPath().
func NewFFmpegEncoder(settings RenderSettings, opts ...FFmpegOption) *FFmpegEncoder {
	e := &FFmpegEncoder{
		binary:        "ffmpeg",
		output:        settings.OutputPath(),
		fps:           settings.FPS,
		crf:           23,
		depth:         defaultQueueDepth,
		frameDuration: settings.FrameDuration(),
		logger:        logging.NewComponentLogger(nil, "ffmpeg"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *FFmpegEncoder) args() []string {
	return []string{
		"-y",
		"-hide_banner",
		"-loglevel", "error",
		"-f", "rawvideo",
		"-pix_fmt", "rgba",
		"-s", fmt.Sprintf("%dx%d", e.size.X, e.size.Y),
		"-r", strconv.Itoa(e.fps),
		"-i", "-",
		"-c:v", "libx264",
		"-preset", "veryfast",
		"-crf", strconv.Itoa(e.crf),
		"-pix_fmt", "yuv420p",
		"-movflags", "+faststart",
		"-f", "mp4",
		e.partial,
	}
}

// Start launches ffmpeg. The process is killed if ctx is cancelled.
func (e *FFmpegEncoder) Start(ctx context.Context, size image.Point) error {
	if size.X <= 0 || size.Y <= 0 || size.X%2 != 0 || size.Y%2 != 0 {
		return services.Wrap(services.ErrValidation, "ffmpeg", "start", fmt.Sprintf("invalid canvas %dx%d", size.X, size.Y), nil)
	}
	if e.fps <= 0 {
		return services.Wrap(services.ErrValidation, "ffmpeg", "start", "fps must be positive", nil)
	}
	e.size = size
	e.stderr = newTailBuffer(4096)
	e.partial = partialPath(e.output)

	cmd := commandContext(ctx, e.binary, e.args()...) //nolint:gosec
	cmd.Stderr = e.stderr
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("ffmpeg stdin: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return services.Wrap(services.ErrExternalTool, "ffmpeg", "start", e.binary, err)
	}
	e.cmd = cmd
	e.stdin = stdin

	frameBytes := size.X * size.Y * 4
	e.slots = make(chan []byte, e.depth)
	for i := 0; i < e.depth; i++ {
		e.slots <- make([]byte, frameBytes)
	}
	e.queue = make(chan queuedFrame, e.depth)
	e.dead = make(chan struct{})
	e.written = make(chan struct{})
	go e.writeLoop(frameBytes)

	e.logger.Debug("ffmpeg started",
		logging.String("output", e.output),
		logging.String("partial", e.partial),
		logging.Int("width", size.X),
		logging.Int("height", size.Y),
		logging.Int("fps", e.fps),
	)
	return nil
}

// WaitReady blocks until a frame buffer is free.
func (e *FFmpegEncoder) WaitReady(ctx context.Context) error {
	if e.slots == nil {
		return ErrNotReady
	}
	select {
	case buf := <-e.slots:
		e.mu.Lock()
		e.reserved = append(e.reserved, buf)
		e.mu.Unlock()
		return nil
	case <-e.dead:
		return e.failure()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Append copies frame into a reserved buffer and queues it for pts.
func (e *FFmpegEncoder) Append(frame *image.RGBA, pts int64) error {
	e.mu.Lock()
	if len(e.reserved) == 0 {
		e.mu.Unlock()
		return ErrNotReady
	}
	buf := e.reserved[len(e.reserved)-1]
	e.reserved = e.reserved[:len(e.reserved)-1]
	e.mu.Unlock()

	if frame.Rect.Dx() != e.size.X || frame.Rect.Dy() != e.size.Y {
		e.slots <- buf
		return fmt.Errorf("frame is %dx%d, canvas is %dx%d", frame.Rect.Dx(), frame.Rect.Dy(), e.size.X, e.size.Y)
	}
	rowBytes := e.size.X * 4
	for y := 0; y < e.size.Y; y++ {
		src := frame.Pix[y*frame.Stride : y*frame.Stride+rowBytes]
		copy(buf[y*rowBytes:], src)
	}
	e.queue <- queuedFrame{buf: buf, index: pts / e.frameDuration}
	return nil
}

func (e *FFmpegEncoder) writeLoop(frameBytes int) {
	defer close(e.written)
	held := make([]byte, frameBytes)
	last := int64(-1)
	for q := range e.queue {
		if e.failed() {
			e.slots <- q.buf
			continue
		}
		for last+1 < q.index {
			if err := e.writeFrame(held); err != nil {
				break
			}
			last++
		}
		if !e.failed() && q.index > last {
			if err := e.writeFrame(q.buf); err == nil {
				last = q.index
			}
		}
		copy(held, q.buf)
		e.slots <- q.buf
	}
}

func (e *FFmpegEncoder) writeFrame(buf []byte) error {
	if _, err := e.stdin.Write(buf); err != nil {
		e.mu.Lock()
		if e.writeErr == nil {
			e.writeErr = err
			close(e.dead)
		}
		e.mu.Unlock()
		return err
	}
	return nil
}

func (e *FFmpegEncoder) failed() bool {
	select {
	case <-e.dead:
		return true
	default:
		return false
	}
}

func (e *FFmpegEncoder) failure() error {
	e.mu.Lock()
	err := e.writeErr
	e.mu.Unlock()
	return services.Wrap(services.ErrExternalTool, "ffmpeg", "write frame", e.stderr.String(), err)
}

func (e *FFmpegEncoder) closeQueue() {
	e.closeOnce.Do(func() {
		if e.queue != nil {
			close(e.queue)
		}
	})
}

// partialPath names a hidden per-encoder file in the output directory so the
// final rename stays on one filesystem.
func partialPath(output string) string {
	dir, base := filepath.Split(output)
	return filepath.Join(dir, "."+base+"."+uuid.NewString()[:8]+".part")
}

// Finish flushes queued frames, closes stdin, waits for ffmpeg to exit, and
// moves the finished file to the output path.
func (e *FFmpegEncoder) Finish(ctx context.Context) error {
	if e.cmd == nil {
		return ErrNotReady
	}
	e.closeQueue()
	select {
	case <-e.written:
	case <-ctx.Done():
		e.Abort()
		return ctx.Err()
	}
	_ = e.stdin.Close()

	waitErr := make(chan error, 1)
	go func() { waitErr <- e.cmd.Wait() }()
	select {
	case err := <-waitErr:
		if err != nil {
			e.removePartial()
			return services.Wrap(services.ErrExternalTool, "ffmpeg", "encode", e.stderr.String(), err)
		}
		if e.failed() {
			e.removePartial()
			return e.failure()
		}
		if err := os.Rename(e.partial, e.output); err != nil {
			e.removePartial()
			return services.Wrap(services.ErrExternalTool, "ffmpeg", "publish output", e.output, err)
		}
		e.logger.Debug("ffmpeg finished", logging.String("output", e.output))
		return nil
	case <-ctx.Done():
		_ = e.cmd.Process.Kill()
		e.removePartial()
		return ctx.Err()
	}
}

// Abort kills ffmpeg and removes its partial file. The output path is left
// alone.
func (e *FFmpegEncoder) Abort() {
	e.abortOnce.Do(func() {
		if e.cmd == nil {
			return
		}
		if e.cmd.Process != nil {
			_ = e.cmd.Process.Kill()
		}
		_ = e.stdin.Close()
		e.closeQueue()
		go func() { _ = e.cmd.Wait() }()
		e.removePartial()
	})
}

func (e *FFmpegEncoder) removePartial() {
	if e.partial == "" {
		return
	}
	if err := os.Remove(e.partial); err != nil && !errors.Is(err, os.ErrNotExist) {
		e.logger.Warn("remove partial output", logging.String("partial", e.partial), logging.Error(err))
	}
}

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	mu  sync.Mutex
	max int
	buf bytes.Buffer
}

func newTailBuffer(max int) *tailBuffer {
	return &tailBuffer{max: max}
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf.Write(p)
	if over := t.buf.Len() - t.max; over > 0 {
		t.buf.Next(over)
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	if t == nil {
		return ""
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return strings.TrimSpace(t.buf.String())
}
